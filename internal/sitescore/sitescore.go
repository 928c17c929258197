// Package sitescore measures how far a site's inter-event gaps are from the
// exponential waiting times of a memoryless process.
package sitescore

import (
	"fmt"
	"math"
	"sort"

	"burstscan/domain/burst"
	"burstscan/domain/events"

	"github.com/montanaflynn/stats"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultBins is the histogram size used for the goodness-of-fit test.
const DefaultBins = 10

// minExpected floors the expected bin count so tail bins the fitted exponential
// considers impossible do not divide by zero.
const minExpected = 1e-9

// Scorer computes chi-squared goodness-of-fit site scores.
type Scorer struct {
	bins   int
	logger *zap.Logger
}

// NewScorer creates a scorer with the given histogram size (DefaultBins if < 3).
func NewScorer(bins int, logger *zap.Logger) *Scorer {
	if bins < 3 {
		bins = DefaultBins
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{bins: bins, logger: logger}
}

// Score fits the site's gaps, including the single wraparound gap, to an
// exponential with rate 1/averageTimePerEvent and converts Pearson's statistic
// into a p-value with bins-2 degrees of freedom.
func (s *Scorer) Score(site *events.Site) (burst.SiteScore, error) {
	gaps, err := site.Gaps()
	if err != nil {
		return burst.SiteScore{}, err
	}
	wrap, err := site.WrapGap()
	if err != nil {
		return burst.SiteScore{}, err
	}
	gaps = append(gaps, wrap)
	n := float64(len(gaps))

	averageTimePerEvent := site.TotalTime / float64(site.Len())
	observedMean, err := stats.Mean(gaps)
	if err != nil {
		return burst.SiteScore{}, fmt.Errorf("mean gap of %s: %w", site.Key(), err)
	}

	sort.Float64s(gaps)
	maxGap := gaps[len(gaps)-1]
	if !(maxGap > 0) {
		return burst.SiteScore{}, fmt.Errorf("site %s has no positive gap", site.Key())
	}

	dividers := make([]float64, s.bins+1)
	floats.Span(dividers, 0, maxGap)
	dividers[s.bins] = math.Inf(1)
	observed := stat.Histogram(nil, dividers, gaps, nil)

	model := distuv.Exponential{Rate: 1 / averageTimePerEvent}
	chi2 := 0.0
	for i, o := range observed {
		expected := n * (model.CDF(dividers[i+1]) - model.CDF(dividers[i]))
		if expected < minExpected {
			expected = minExpected
		}
		d := o - expected
		chi2 += d * d / expected
	}

	dof := s.bins - 2
	pValue := distuv.ChiSquared{K: float64(dof)}.Survival(chi2)
	if math.IsNaN(pValue) {
		return burst.SiteScore{}, fmt.Errorf("p-value of %s is NaN (chi2=%v)", site.Key(), chi2)
	}
	pValue = math.Max(0, math.Min(1, pValue))

	result := burst.SiteScore{
		Experiment:          site.Experiment,
		Site:                site.ID,
		EventCount:          site.Len(),
		AverageTimePerEvent: averageTimePerEvent,
		ObservedMeanGap:     observedMean,
		ChiSquared:          chi2,
		DegreesOfFreedom:    dof,
		PValue:              pValue,
		Score:               math.NaN(),
	}
	if pValue > 0 {
		result.Score = math.Log10(pValue)
		result.Defined = true
	} else {
		s.logger.Debug("site score undefined",
			zap.String("site", site.Key().String()),
			zap.Float64("chi_squared", chi2))
	}
	return result, nil
}
