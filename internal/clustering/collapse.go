package clustering

import (
	"sort"

	"burstscan/domain/burst"
	"burstscan/domain/core"
)

// Collapse drops every cluster whose members are all contained in another cluster
// of the set. Clusters are grouped per site, sorted by (start asc, end desc) and
// swept once, so the cost is O(m log m). The input slice is not modified.
func Collapse(clusters []burst.EventCluster) []burst.EventCluster {
	if len(clusters) < 2 {
		return append([]burst.EventCluster(nil), clusters...)
	}

	sorted := append([]burst.EventCluster(nil), clusters...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Experiment != b.Experiment {
			return a.Experiment < b.Experiment
		}
		if a.Site != b.Site {
			return a.Site < b.Site
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.End > b.End
	})

	kept := make([]burst.EventCluster, 0, len(sorted))
	var current core.SiteKey
	maxEnd := -1
	for _, c := range sorted {
		if c.Key() != current {
			current = c.Key()
			maxEnd = -1
		}
		// Every earlier cluster of this site starts at or before c, so c is nested
		// exactly when one of them reaches at least as far.
		if c.End <= maxEnd {
			continue
		}
		maxEnd = c.End
		kept = append(kept, c)
	}
	return kept
}

// CollapseQuadratic is the pairwise O(m^2) form of Collapse. Identical clusters are
// kept once.
func CollapseQuadratic(clusters []burst.EventCluster) []burst.EventCluster {
	kept := make([]burst.EventCluster, 0, len(clusters))
	for i, c := range clusters {
		nested := false
		for j, other := range clusters {
			if i == j || !other.Contains(c) {
				continue
			}
			if !c.Contains(other) || j < i {
				nested = true
				break
			}
		}
		if !nested {
			kept = append(kept, c)
		}
	}
	return kept
}
