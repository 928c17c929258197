package events

import (
	"sort"
	"strings"

	"burstscan/domain/core"
)

// CompareExperiments orders experiments by name. Two distinct experiments with the
// same name cannot be ordered and yield core.ErrAmbiguousOrder.
func CompareExperiments(a, b *Experiment) (int, error) {
	if c := strings.Compare(a.Name.String(), b.Name.String()); c != 0 {
		return c, nil
	}
	if a != b {
		return 0, core.NewAmbiguousOrderError("experiment", a.Name.String())
	}
	return 0, nil
}

// CompareSites orders sites by experiment name, then site id.
func CompareSites(a, b *Site) (int, error) {
	if c := strings.Compare(a.Experiment.String(), b.Experiment.String()); c != 0 {
		return c, nil
	}
	if c := strings.Compare(a.ID.String(), b.ID.String()); c != 0 {
		return c, nil
	}
	if a != b {
		return 0, core.NewAmbiguousOrderError("site", a.Key().String())
	}
	return 0, nil
}

// SortExperiments sorts in place and aborts on the first ambiguous pair.
func SortExperiments(exps []*Experiment) error {
	var firstErr error
	sort.SliceStable(exps, func(i, j int) bool {
		c, err := CompareExperiments(exps[i], exps[j])
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return c < 0
	})
	return firstErr
}

// SortSites sorts in place and aborts on the first ambiguous pair.
func SortSites(sites []*Site) error {
	var firstErr error
	sort.SliceStable(sites, func(i, j int) bool {
		c, err := CompareSites(sites[i], sites[j])
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return c < 0
	})
	return firstErr
}
