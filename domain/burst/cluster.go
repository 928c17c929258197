// Package burst holds the result types of a burst analysis: clusters, cutoff tables,
// site scores and the per-run report.
package burst

import (
	"math"

	"burstscan/domain/core"
	"burstscan/domain/events"
)

// EventCluster is a contiguous run [Start, End) of one site's time-sorted events.
type EventCluster struct {
	Experiment core.ExperimentID `json:"experiment"`
	Site       core.SiteID       `json:"site"`
	Start      int               `json:"start"`
	End        int               `json:"end"`
	Events     []events.Event    `json:"events"`
}

// NewEventCluster slices a cluster out of a site. The caller guarantees
// 0 <= start <= end <= site.Len().
func NewEventCluster(site *events.Site, start, end int) EventCluster {
	members := make([]events.Event, end-start)
	copy(members, site.Events[start:end])
	return EventCluster{
		Experiment: site.Experiment,
		Site:       site.ID,
		Start:      start,
		End:        end,
		Events:     members,
	}
}

// Key returns the owning site's identity.
func (c EventCluster) Key() core.SiteKey {
	return core.SiteKey{Experiment: c.Experiment, Site: c.Site}
}

// Size returns the number of member events.
func (c EventCluster) Size() int {
	return len(c.Events)
}

// Times returns the member event times in order.
func (c EventCluster) Times() []float64 {
	times := make([]float64, len(c.Events))
	for i, e := range c.Events {
		times[i] = e.Time
	}
	return times
}

// Span is the time between the first and last member.
func (c EventCluster) Span() float64 {
	if len(c.Events) < 2 {
		return 0
	}
	return c.Events[len(c.Events)-1].Time - c.Events[0].Time
}

// Score is the reciprocal of the span. Clusters of size <= 1 score 0; a zero span
// scores +Inf.
func (c EventCluster) Score() float64 {
	if len(c.Events) < 2 {
		return 0
	}
	return ScoreSpan(c.Span())
}

// MaxInterEventTime is the largest consecutive gap inside the cluster.
func (c EventCluster) MaxInterEventTime() float64 {
	maxGap := 0.0
	for i := 1; i < len(c.Events); i++ {
		if gap := c.Events[i].Time - c.Events[i-1].Time; gap > maxGap {
			maxGap = gap
		}
	}
	return maxGap
}

// Contains reports whether every member of other is also a member of c.
func (c EventCluster) Contains(other EventCluster) bool {
	if c.Experiment != other.Experiment || c.Site != other.Site {
		return false
	}
	return c.Start <= other.Start && other.End <= c.End
}

// ScoreSpan converts a window span into a cluster score.
func ScoreSpan(span float64) float64 {
	if span <= 0 {
		return math.Inf(1)
	}
	return 1 / span
}
