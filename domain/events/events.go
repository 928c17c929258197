// Package events holds the experiment / site / event data model.
package events

import (
	"sort"

	"burstscan/domain/core"
)

// Event is a single timestamp recorded at one site within one experiment.
type Event struct {
	Experiment core.ExperimentID `json:"experiment"`
	Site       core.SiteID       `json:"site"`
	Time       float64           `json:"time"`
}

// Site is an ordered collection of events sharing a spatial location.
type Site struct {
	Experiment core.ExperimentID `json:"experiment"`
	ID         core.SiteID       `json:"id"`
	CentroidX  float64           `json:"centroid_x"`
	CentroidY  float64           `json:"centroid_y"`
	TotalTime  float64           `json:"total_time"`
	Events     []Event           `json:"events"`
}

// NewSite builds a site from raw times. Times are copied and sorted.
func NewSite(experiment core.ExperimentID, id core.SiteID, totalTime float64, times []float64) *Site {
	s := &Site{
		Experiment: experiment,
		ID:         id,
		TotalTime:  totalTime,
		Events:     make([]Event, len(times)),
	}
	for i, t := range times {
		s.Events[i] = Event{Experiment: experiment, Site: id, Time: t}
	}
	s.sortEvents()
	return s
}

// Key returns the site's cross-experiment identity.
func (s *Site) Key() core.SiteKey {
	return core.SiteKey{Experiment: s.Experiment, Site: s.ID}
}

// Len returns the number of events at the site.
func (s *Site) Len() int {
	return len(s.Events)
}

// Times returns the sorted event times.
func (s *Site) Times() ([]float64, error) {
	if len(s.Events) == 0 {
		return nil, core.NewEmptySiteError(s.Key())
	}
	times := make([]float64, len(s.Events))
	for i, e := range s.Events {
		times[i] = e.Time
	}
	return times, nil
}

// Gaps returns the n-1 consecutive inter-event times.
func (s *Site) Gaps() ([]float64, error) {
	if len(s.Events) == 0 {
		return nil, core.NewEmptySiteError(s.Key())
	}
	gaps := make([]float64, 0, len(s.Events)-1)
	for i := 1; i < len(s.Events); i++ {
		gaps = append(gaps, s.Events[i].Time-s.Events[i-1].Time)
	}
	return gaps, nil
}

// WrapGap returns the time before the first event plus the time after the last one.
func (s *Site) WrapGap() (float64, error) {
	if len(s.Events) == 0 {
		return 0, core.NewEmptySiteError(s.Key())
	}
	first := s.Events[0].Time
	last := s.Events[len(s.Events)-1].Time
	return first + (s.TotalTime - last), nil
}

// WithTimes returns a derived copy of the site carrying the given times.
// Identity, centroid and event count are preserved; the receiver is not modified.
func (s *Site) WithTimes(times []float64) *Site {
	derived := NewSite(s.Experiment, s.ID, s.TotalTime, times)
	derived.CentroidX = s.CentroidX
	derived.CentroidY = s.CentroidY
	return derived
}

func (s *Site) sortEvents() {
	sort.SliceStable(s.Events, func(i, j int) bool {
		return s.Events[i].Time < s.Events[j].Time
	})
}

// Experiment is an ordered collection of sites sharing one observation duration.
type Experiment struct {
	Name      core.ExperimentID `json:"name"`
	TotalTime float64           `json:"total_time"`
	Sites     []*Site           `json:"sites"`
}

// Site looks up a site by id.
func (e *Experiment) Site(id core.SiteID) (*Site, bool) {
	for _, s := range e.Sites {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}

// MaxEventCount returns the largest event count of any site.
func (e *Experiment) MaxEventCount() int {
	maxCount := 0
	for _, s := range e.Sites {
		if s.Len() > maxCount {
			maxCount = s.Len()
		}
	}
	return maxCount
}

// EventCount returns the number of events across all sites.
func (e *Experiment) EventCount() int {
	total := 0
	for _, s := range e.Sites {
		total += s.Len()
	}
	return total
}
