package clustering

import (
	"errors"
	"math"
	"math/rand/v2"
	"sort"
	"testing"

	"burstscan/domain/burst"
	"burstscan/domain/core"
	"burstscan/domain/events"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clusterTimes(clusters []burst.EventCluster) [][]float64 {
	out := make([][]float64, len(clusters))
	for i, c := range clusters {
		out[i] = c.Times()
	}
	return out
}

func TestContiguous(t *testing.T) {
	tests := []struct {
		name   string
		times  []float64
		cutoff float64
		want   [][]float64
	}{
		{
			name:   "isolated trailing event is dropped",
			times:  []float64{0, 5, 6, 40},
			cutoff: 10,
			want:   [][]float64{{0, 5, 6}},
		},
		{
			name:   "gap equal to cutoff stays inside",
			times:  []float64{0, 10, 30},
			cutoff: 10,
			want:   [][]float64{{0, 10}},
		},
		{
			name:   "single event",
			times:  []float64{3},
			cutoff: 10,
			want:   [][]float64{},
		},
		{
			name:   "all isolated",
			times:  []float64{0, 20, 40, 60},
			cutoff: 5,
			want:   [][]float64{},
		},
		{
			name:   "two runs",
			times:  []float64{1, 2, 50, 51, 52, 99},
			cutoff: 3,
			want:   [][]float64{{1, 2}, {50, 51, 52}},
		},
		{
			name:   "one run spanning the site",
			times:  []float64{1, 2, 3, 4},
			cutoff: 1,
			want:   [][]float64{{1, 2, 3, 4}},
		},
		{
			name:   "end to end scenario",
			times:  []float64{10, 12, 13, 90},
			cutoff: 5,
			want:   [][]float64{{10, 12, 13}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			site := events.NewSite("E1", "S1", 100, tt.times)
			clusters, err := Contiguous(site, tt.cutoff)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, clusterTimes(clusters)); diff != "" {
				t.Errorf("Contiguous() mismatch (-want +got):\n%s", diff)
			}
			for _, c := range clusters {
				assert.Greater(t, c.Size(), 1)
				assert.LessOrEqual(t, c.MaxInterEventTime(), tt.cutoff)
			}
		})
	}
}

func TestContiguousEmptySite(t *testing.T) {
	_, err := Contiguous(events.NewSite("E1", "S1", 100, nil), 1)
	assert.True(t, errors.Is(err, core.ErrEmptySite))
}

func TestWindows(t *testing.T) {
	site := events.NewSite("E1", "S1", 100, []float64{1, 2, 4, 8})

	windows, err := Windows(site, 3)
	require.NoError(t, err)
	if diff := cmp.Diff([][]float64{{1, 2, 4}, {2, 4, 8}}, clusterTimes(windows)); diff != "" {
		t.Errorf("Windows() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 0, windows[0].Start)
	assert.Equal(t, 3, windows[0].End)

	all, err := Windows(site, 4)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	none, err := Windows(site, 5)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = Windows(site, 1)
	assert.True(t, errors.Is(err, core.ErrInvalidClusterSize))

	_, err = Windows(events.NewSite("E1", "S1", 100, nil), 2)
	assert.True(t, errors.Is(err, core.ErrEmptySite))
}

func TestMaxWindowScores(t *testing.T) {
	times := []float64{1, 2, 4, 8}
	scores := make([]float64, 6)
	MaxWindowScores(times, scores)

	assert.InDelta(t, 1.0, scores[2], 1e-12)     // 1->2
	assert.InDelta(t, 1.0/3.0, scores[3], 1e-12) // 1->4
	assert.InDelta(t, 1.0/7.0, scores[4], 1e-12) // 1->8
	assert.Equal(t, 0.0, scores[5])
}

func TestMaxWindowScoresMatchesWindows(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	times := make([]float64, 25)
	for i := range times {
		times[i] = rng.Float64() * 100
	}
	sort.Float64s(times)
	site := events.NewSite("E1", "S1", 100, times)

	scores := make([]float64, len(times)+1)
	MaxWindowScores(times, scores)

	for k := 2; k <= len(times); k++ {
		windows, err := Windows(site, k)
		require.NoError(t, err)
		best := 0.0
		for _, w := range windows {
			best = math.Max(best, w.Score())
		}
		assert.InDelta(t, best, scores[k], 1e-9, "size %d", k)
	}
}

func TestCollapse(t *testing.T) {
	site := events.NewSite("E1", "S1", 100, []float64{1, 2, 3, 4, 7, 8})
	a := burst.NewEventCluster(site, 0, 3) // {1,2,3}
	b := burst.NewEventCluster(site, 0, 4) // {1,2,3,4}
	c := burst.NewEventCluster(site, 4, 6) // {7,8}

	for name, collapse := range map[string]func([]burst.EventCluster) []burst.EventCluster{
		"sorted":    Collapse,
		"quadratic": CollapseQuadratic,
	} {
		t.Run(name, func(t *testing.T) {
			kept := collapse([]burst.EventCluster{a, b, c})
			if diff := cmp.Diff([][]float64{{1, 2, 3, 4}, {7, 8}}, clusterTimes(kept)); diff != "" {
				t.Errorf("collapse mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCollapseKeepsOverlappingButUnnested(t *testing.T) {
	site := events.NewSite("E1", "S1", 100, []float64{1, 2, 3, 4, 5})
	left := burst.NewEventCluster(site, 0, 3)
	right := burst.NewEventCluster(site, 2, 5)
	inner := burst.NewEventCluster(site, 2, 4)
	dup := burst.NewEventCluster(site, 0, 3)

	kept := Collapse([]burst.EventCluster{right, inner, left, dup})
	assert.Equal(t, [][]float64{{1, 2, 3}, {3, 4, 5}}, clusterTimes(kept))
	assert.Len(t, CollapseQuadratic([]burst.EventCluster{right, inner, left, dup}), 2)
}

func TestCollapseSeparatesSites(t *testing.T) {
	s1 := events.NewSite("E1", "S1", 100, []float64{1, 2, 3})
	s2 := events.NewSite("E1", "S2", 100, []float64{1, 2, 3})

	kept := Collapse([]burst.EventCluster{
		burst.NewEventCluster(s1, 0, 3),
		burst.NewEventCluster(s2, 0, 2),
	})
	assert.Len(t, kept, 2)
}

func TestCollapseAgreesWithQuadratic(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	site := events.NewSite("E1", "S1", 100, []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11})

	for trial := 0; trial < 50; trial++ {
		var clusters []burst.EventCluster
		for i := 0; i < 15; i++ {
			start := rng.IntN(site.Len() - 1)
			end := start + 2 + rng.IntN(site.Len()-start-1)
			clusters = append(clusters, burst.NewEventCluster(site, start, end))
		}

		fast := Collapse(clusters)
		slow := CollapseQuadratic(clusters)
		sortByRange(slow)
		require.Equal(t, clusterTimes(slow), clusterTimes(fast), "trial %d", trial)
	}
}

func sortByRange(clusters []burst.EventCluster) {
	sort.SliceStable(clusters, func(i, j int) bool {
		if clusters[i].Start != clusters[j].Start {
			return clusters[i].Start < clusters[j].Start
		}
		return clusters[i].End > clusters[j].End
	})
}
