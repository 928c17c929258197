package burst

import (
	"burstscan/domain/core"
)

// SiteScore is the goodness-of-fit of a site's inter-event gaps to an exponential
// waiting-time model.
type SiteScore struct {
	Experiment          core.ExperimentID `json:"experiment"`
	Site                core.SiteID       `json:"site"`
	EventCount          int               `json:"event_count"`
	AverageTimePerEvent float64           `json:"average_time_per_event"`
	ObservedMeanGap     float64           `json:"observed_mean_gap"`
	ChiSquared          float64           `json:"chi_squared"`
	DegreesOfFreedom    int               `json:"degrees_of_freedom"`
	PValue              float64           `json:"p_value"`
	Score               float64           `json:"score"`
	// Defined is false when the p-value underflowed to zero; Score is NaN then.
	Defined bool `json:"defined"`
}

// LogScore returns log10(p-value), or ErrScoreUndefined when p == 0.
func (s SiteScore) LogScore() (float64, error) {
	if !s.Defined {
		return 0, core.ErrScoreUndefined
	}
	return s.Score, nil
}
