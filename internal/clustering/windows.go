package clustering

import (
	"fmt"
	"math"

	"burstscan/domain/burst"
	"burstscan/domain/core"
	"burstscan/domain/events"
)

// Windows returns every run of exactly k consecutive events, one per start index.
// No gap constraint is applied.
func Windows(site *events.Site, k int) ([]burst.EventCluster, error) {
	if k < 2 {
		return nil, fmt.Errorf("%w: got %d", core.ErrInvalidClusterSize, k)
	}
	if site.Len() == 0 {
		return nil, core.NewEmptySiteError(site.Key())
	}
	n := site.Len()
	if k > n {
		return nil, nil
	}
	windows := make([]burst.EventCluster, 0, n-k+1)
	for start := 0; start+k <= n; start++ {
		windows = append(windows, burst.NewEventCluster(site, start, start+k))
	}
	return windows, nil
}

// MaxWindowScores fills dst[k] with the best score of any k-event window of the
// sorted times, for 2 <= k <= len(dst)-1. Sizes larger than len(times) score 0.
// dst[0] and dst[1] are left untouched.
func MaxWindowScores(times []float64, dst []float64) {
	n := len(times)
	for k := 2; k < len(dst); k++ {
		if k > n {
			dst[k] = 0
			continue
		}
		minSpan := math.Inf(1)
		for start := 0; start+k <= n; start++ {
			if span := times[start+k-1] - times[start]; span < minSpan {
				minSpan = span
			}
		}
		dst[k] = burst.ScoreSpan(minSpan)
	}
}
