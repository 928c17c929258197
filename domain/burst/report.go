package burst

import (
	"time"

	"burstscan/domain/core"
)

// Parameters records the settings a report was produced with.
type Parameters struct {
	Alpha                 float64 `json:"alpha"`
	MaxInterEventTime     float64 `json:"max_inter_event_time"`
	NumRandomPermutations int     `json:"num_random_permutations"`
	Seed                  int64   `json:"seed"`
	Scopes                []Scope `json:"scopes"`
}

// SkippedSite records a site whose scoring failed and was left out of the report.
type SkippedSite struct {
	Experiment core.ExperimentID `json:"experiment"`
	Site       core.SiteID       `json:"site"`
	Stage      string            `json:"stage"`
	Reason     string            `json:"reason"`
}

// Report is everything one analysis run produces.
type Report struct {
	RunID       core.RunID                     `json:"run_id"`
	CreatedAt   time.Time                      `json:"created_at"`
	Parameters  Parameters                     `json:"parameters"`
	Clusters    []EventCluster                 `json:"clusters"`
	Significant map[Scope][]SignificantCluster `json:"significant"`
	SiteScores  []SiteScore                    `json:"site_scores"`
	Skipped     []SkippedSite                  `json:"skipped,omitempty"`
}

// NewReport creates an empty report for a run.
func NewReport(runID core.RunID, params Parameters) *Report {
	return &Report{
		RunID:       runID,
		CreatedAt:   time.Now().UTC(),
		Parameters:  params,
		Significant: make(map[Scope][]SignificantCluster),
	}
}
