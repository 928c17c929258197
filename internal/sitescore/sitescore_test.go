package sitescore

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"burstscan/domain/core"
	"burstscan/domain/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func poissonSite(seed uint64, n int, meanGap float64) *events.Site {
	rng := rand.New(rand.NewPCG(seed, 1))
	times := make([]float64, n)
	t := rng.ExpFloat64() * meanGap
	for i := range times {
		times[i] = t
		t += rng.ExpFloat64() * meanGap
	}
	return events.NewSite("E1", "poisson", t, times)
}

func burstySite() *events.Site {
	var times []float64
	for b := 0; b < 10; b++ {
		for j := 0; j < 20; j++ {
			times = append(times, float64(b)*100+5+float64(j)*0.025)
		}
	}
	return events.NewSite("E1", "bursty", 1000, times)
}

func TestScoreRoundTrip(t *testing.T) {
	scorer := NewScorer(DefaultBins, zaptest.NewLogger(t))
	sites := []*events.Site{
		poissonSite(1, 200, 5),
		poissonSite(2, 50, 1),
		burstySite(),
		events.NewSite("E1", "single", 100, []float64{40}),
		events.NewSite("E1", "regular", 1000, regularTimes(100, 10)),
	}

	for _, site := range sites {
		score, err := scorer.Score(site)
		require.NoError(t, err, site.ID)
		assert.GreaterOrEqual(t, score.PValue, 0.0, site.ID)
		assert.LessOrEqual(t, score.PValue, 1.0, site.ID)
		assert.Equal(t, DefaultBins-2, score.DegreesOfFreedom)
		assert.Equal(t, site.Len(), score.EventCount)
		assert.InDelta(t, site.TotalTime/float64(site.Len()), score.AverageTimePerEvent, 1e-12)
		// the gaps including the wraparound one always add up to the total time
		assert.InDelta(t, score.AverageTimePerEvent, score.ObservedMeanGap, 1e-9)
		if score.PValue > 0 {
			require.True(t, score.Defined, site.ID)
			assert.InDelta(t, math.Log10(score.PValue), score.Score, 1e-12, site.ID)
			assert.LessOrEqual(t, score.Score, 0.0)
		} else {
			assert.False(t, score.Defined, site.ID)
			assert.True(t, math.IsNaN(score.Score), site.ID)
		}
	}
}

func regularTimes(n int, step float64) []float64 {
	times := make([]float64, n)
	for i := range times {
		times[i] = float64(i) * step
	}
	return times
}

func TestPoissonFitsBetterThanBursts(t *testing.T) {
	scorer := NewScorer(DefaultBins, nil)

	poisson, err := scorer.Score(poissonSite(3, 300, 2))
	require.NoError(t, err)
	bursty, err := scorer.Score(burstySite())
	require.NoError(t, err)

	assert.Greater(t, poisson.PValue, 1e-4)
	assert.Less(t, bursty.PValue, poisson.PValue)
}

func TestZeroPValueIsUndefined(t *testing.T) {
	times := make([]float64, 1000)
	site := events.NewSite("E1", "stacked", 1e6, times)

	score, err := NewScorer(DefaultBins, nil).Score(site)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score.PValue)
	assert.False(t, score.Defined)
	assert.True(t, math.IsNaN(score.Score))
	assert.False(t, math.IsInf(score.Score, -1))

	_, err = score.LogScore()
	assert.True(t, errors.Is(err, core.ErrScoreUndefined))
}

func TestScoreEmptySite(t *testing.T) {
	_, err := NewScorer(DefaultBins, nil).Score(events.NewSite("E1", "S1", 10, nil))
	assert.True(t, errors.Is(err, core.ErrEmptySite))
}

func TestNewScorerClampsBins(t *testing.T) {
	assert.Equal(t, DefaultBins, NewScorer(1, nil).bins)
	assert.Equal(t, 5, NewScorer(5, nil).bins)
}
