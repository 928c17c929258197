// Package significance turns permutation null distributions into per-size score
// cutoffs and extracts the real clusters that beat them.
package significance

import (
	"fmt"

	"burstscan/domain/burst"
	"burstscan/internal/permutation"

	"github.com/montanaflynn/stats"
)

// CutoffsFromNull takes, for every size in the null, the nearest-rank (1 - alpha)
// quantile of the replica maxima. Cutoffs are never negative.
func CutoffsFromNull(null *permutation.NullDistribution, alpha float64, scope burst.Scope) (*burst.CutoffTable, error) {
	if !(alpha > 0 && alpha < 1) {
		return nil, fmt.Errorf("alpha must be in (0, 1), got %v", alpha)
	}
	table := &burst.CutoffTable{
		Scope:    scope,
		Owner:    null.Owner,
		Alpha:    alpha,
		Replicas: null.Replicas,
		Cutoffs:  make(map[int]float64, null.MaxSize),
	}
	if null.Replicas == 0 {
		return table, nil
	}

	percent := (1 - alpha) * 100
	for k := 2; k <= null.MaxSize; k++ {
		q, err := stats.PercentileNearestRank(null.Sample(k), percent)
		if err != nil {
			return nil, fmt.Errorf("cutoff for size %d of %s: %w", k, null.Owner, err)
		}
		if q < 0 {
			q = 0
		}
		table.Cutoffs[k] = q
	}
	return table, nil
}
