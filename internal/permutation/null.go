package permutation

import (
	"fmt"
)

// NullDistribution holds the best window score per replica for each cluster size.
type NullDistribution struct {
	Owner    string
	Replicas int
	MaxSize  int
	// Maxima[k][i] is the best size-k window score of replica i, for 2 <= k <= MaxSize.
	Maxima [][]float64
}

func newNullDistribution(owner string, replicas, maxSize int) *NullDistribution {
	null := &NullDistribution{
		Owner:    owner,
		Replicas: replicas,
		MaxSize:  maxSize,
		Maxima:   make([][]float64, maxSize+1),
	}
	for k := 2; k <= maxSize; k++ {
		null.Maxima[k] = make([]float64, replicas)
	}
	return null
}

// Sample returns the replica maxima for size k, or nil when k is not covered.
func (n *NullDistribution) Sample(k int) []float64 {
	if k < 2 || k > n.MaxSize {
		return nil
	}
	return n.Maxima[k]
}

// Cost approximates the memory held by the distribution, in float64 slots.
func (n *NullDistribution) Cost() int64 {
	if n.MaxSize < 2 {
		return 1
	}
	return int64(n.Replicas) * int64(n.MaxSize-1)
}

// CombineNulls merges site nulls into an experiment null: for replica i and size k
// the result is the maximum over sites. Sites with fewer than k events contribute 0.
func CombineNulls(owner string, nulls []*NullDistribution) (*NullDistribution, error) {
	if len(nulls) == 0 {
		return newNullDistribution(owner, 0, 0), nil
	}
	replicas := nulls[0].Replicas
	maxSize := 0
	for _, n := range nulls {
		if n.Replicas != replicas {
			return nil, fmt.Errorf("cannot combine nulls with %d and %d replicas", replicas, n.Replicas)
		}
		if n.MaxSize > maxSize {
			maxSize = n.MaxSize
		}
	}

	combined := newNullDistribution(owner, replicas, maxSize)
	for _, n := range nulls {
		for k := 2; k <= n.MaxSize; k++ {
			dst := combined.Maxima[k]
			for i, v := range n.Maxima[k] {
				if v > dst[i] {
					dst[i] = v
				}
			}
		}
	}
	return combined, nil
}
