package burst

import (
	"fmt"
	"sort"
	"strings"

	"burstscan/domain/core"
)

// Scope selects which null model a cutoff table was built from.
type Scope string

const (
	ScopeSite       Scope = "site"
	ScopeExperiment Scope = "experiment"
)

// ParseScopes accepts "site", "experiment" or "both".
func ParseScopes(s string) ([]Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(ScopeSite):
		return []Scope{ScopeSite}, nil
	case string(ScopeExperiment):
		return []Scope{ScopeExperiment}, nil
	case "both", "":
		return []Scope{ScopeSite, ScopeExperiment}, nil
	default:
		return nil, fmt.Errorf("unknown significance scope %q", s)
	}
}

// CutoffTable maps cluster size to the score a real cluster must exceed.
type CutoffTable struct {
	Scope    Scope           `json:"scope"`
	Owner    string          `json:"owner"`
	Alpha    float64         `json:"alpha"`
	Replicas int             `json:"replicas"`
	Cutoffs  map[int]float64 `json:"cutoffs"`
}

// Cutoff returns the threshold for clusters of size k.
func (t *CutoffTable) Cutoff(k int) (float64, error) {
	v, ok := t.Cutoffs[k]
	if !ok {
		return 0, fmt.Errorf("%w: size %d in %s table for %s", core.ErrCutoffNotFound, k, t.Scope, t.Owner)
	}
	return v, nil
}

// Sizes returns the covered cluster sizes in increasing order.
func (t *CutoffTable) Sizes() []int {
	sizes := make([]int, 0, len(t.Cutoffs))
	for k := range t.Cutoffs {
		sizes = append(sizes, k)
	}
	sort.Ints(sizes)
	return sizes
}

// SignificantCluster is a cluster that beat its size's cutoff.
type SignificantCluster struct {
	Cluster EventCluster `json:"cluster"`
	Scope   Scope        `json:"scope"`
	Cutoff  float64      `json:"cutoff"`
}
