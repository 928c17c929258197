package significance

import (
	"burstscan/domain/burst"
	"burstscan/domain/events"
	"burstscan/internal/clustering"
)

// Extract keeps every window of the site whose score exceeds the cutoff for its
// size and whose largest internal gap is within maxInterEventTime, then drops
// windows nested inside other survivors.
func Extract(site *events.Site, table *burst.CutoffTable, maxInterEventTime float64) ([]burst.SignificantCluster, error) {
	if _, err := site.Times(); err != nil {
		return nil, err
	}

	var candidates []burst.EventCluster
	for k := 2; k <= site.Len(); k++ {
		cutoff, err := table.Cutoff(k)
		if err != nil {
			return nil, err
		}
		windows, err := clustering.Windows(site, k)
		if err != nil {
			return nil, err
		}
		for _, w := range windows {
			if w.Score() > cutoff && w.MaxInterEventTime() <= maxInterEventTime {
				candidates = append(candidates, w)
			}
		}
	}

	kept := clustering.Collapse(candidates)
	out := make([]burst.SignificantCluster, len(kept))
	for i, c := range kept {
		// Cutoff lookup cannot fail here: every kept size was looked up above.
		cutoff, _ := table.Cutoff(c.Size())
		out[i] = burst.SignificantCluster{Cluster: c, Scope: table.Scope, Cutoff: cutoff}
	}
	return out, nil
}
