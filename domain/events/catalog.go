package events

import (
	"fmt"
	"math"

	"burstscan/domain/core"
)

// Record is one parsed input row.
type Record struct {
	ExperimentName string
	TotalTime      float64
	SiteID         string
	Time           float64
	CentroidX      float64
	CentroidY      float64
}

// Catalog is the loaded, sorted experiment graph.
type Catalog struct {
	Experiments []*Experiment
}

// LoadCatalog builds experiments and sites from records. The result is sorted by
// experiment name and site id, with events sorted by time.
func LoadCatalog(records []Record) (*Catalog, error) {
	byName := make(map[core.ExperimentID]*Experiment)
	sites := make(map[core.SiteKey]*Site)
	var order []*Experiment

	for i, r := range records {
		expID, err := core.ParseExperimentID(r.ExperimentName)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		siteID, err := core.ParseSiteID(r.SiteID)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if !(r.TotalTime > 0) || math.IsInf(r.TotalTime, 0) {
			return nil, fmt.Errorf("record %d: %w: %v", i, core.ErrInvalidTotalTime, r.TotalTime)
		}
		if math.IsNaN(r.Time) || r.Time < 0 || r.Time > r.TotalTime {
			return nil, fmt.Errorf("record %d: %w: time %v not in [0, %v]", i, core.ErrEventOutOfRange, r.Time, r.TotalTime)
		}

		exp, ok := byName[expID]
		if !ok {
			exp = &Experiment{Name: expID, TotalTime: r.TotalTime}
			byName[expID] = exp
			order = append(order, exp)
		} else if exp.TotalTime != r.TotalTime {
			return nil, fmt.Errorf("record %d: %w: %s has %v and %v",
				i, core.ErrInconsistentExperiment, expID, exp.TotalTime, r.TotalTime)
		}

		key := core.SiteKey{Experiment: expID, Site: siteID}
		site, ok := sites[key]
		if !ok {
			site = &Site{
				Experiment: expID,
				ID:         siteID,
				CentroidX:  r.CentroidX,
				CentroidY:  r.CentroidY,
				TotalTime:  r.TotalTime,
			}
			sites[key] = site
			exp.Sites = append(exp.Sites, site)
		}
		site.Events = append(site.Events, Event{Experiment: expID, Site: siteID, Time: r.Time})
	}

	for _, exp := range order {
		for _, site := range exp.Sites {
			site.sortEvents()
		}
		if err := SortSites(exp.Sites); err != nil {
			return nil, err
		}
	}
	if err := SortExperiments(order); err != nil {
		return nil, err
	}

	return &Catalog{Experiments: order}, nil
}

// Experiment looks up an experiment by name.
func (c *Catalog) Experiment(name core.ExperimentID) (*Experiment, bool) {
	for _, e := range c.Experiments {
		if e.Name == name {
			return e, true
		}
	}
	return nil, false
}

// SiteCount returns the number of sites across all experiments.
func (c *Catalog) SiteCount() int {
	n := 0
	for _, e := range c.Experiments {
		n += len(e.Sites)
	}
	return n
}
