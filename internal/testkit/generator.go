package testkit

import (
	"context"
	"fmt"
	"sort"

	"burstscan/domain/events"
	"burstscan/ports"
)

// GeneratorConfig configures the synthetic event generator
type GeneratorConfig struct {
	Experiments        int     `json:"experiments"`
	SitesPerExperiment int     `json:"sites_per_experiment"`
	EventsPerSite      int     `json:"events_per_site"`
	TotalTime          float64 `json:"total_time"`
	// BurstSites is how many sites per experiment receive an injected burst.
	BurstSites int     `json:"burst_sites"`
	BurstSize  int     `json:"burst_size"`
	BurstWidth float64 `json:"burst_width"`
	Seed       int64   `json:"seed"`
}

// DefaultGeneratorConfig returns a small two-experiment layout with one bursty
// site per experiment
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Experiments:        2,
		SitesPerExperiment: 3,
		EventsPerSite:      20,
		TotalTime:          1000,
		BurstSites:         1,
		BurstSize:          8,
		BurstWidth:         2,
		Seed:               42,
	}
}

// EventGenerator produces records with uniformly scattered background events and
// optional tight bursts
type EventGenerator struct {
	config  GeneratorConfig
	rngPort ports.RNGPort
}

// NewEventGenerator creates a new generator
func NewEventGenerator(config GeneratorConfig, rngPort ports.RNGPort) *EventGenerator {
	return &EventGenerator{config: config, rngPort: rngPort}
}

// BurstWindow locates the injected burst of a site.
type BurstWindow struct {
	Experiment string
	Site       string
	Start      float64
	End        float64
}

// Generate returns the records plus the burst windows that were injected. Site
// names are "S01", "S02", ...; bursty sites come first.
func (g *EventGenerator) Generate(ctx context.Context) ([]events.Record, []BurstWindow, error) {
	c := g.config
	if c.TotalTime <= 0 || c.BurstWidth >= c.TotalTime {
		return nil, nil, fmt.Errorf("invalid generator timing: total %v, burst width %v", c.TotalTime, c.BurstWidth)
	}

	var records []events.Record
	var bursts []BurstWindow
	for e := 0; e < c.Experiments; e++ {
		expName := fmt.Sprintf("E%d", e+1)
		for s := 0; s < c.SitesPerExperiment; s++ {
			siteName := fmt.Sprintf("S%02d", s+1)
			rng, err := g.rngPort.SeededStream(ctx, "generator/"+expName+"/"+siteName, c.Seed)
			if err != nil {
				return nil, nil, err
			}

			times := make([]float64, 0, c.EventsPerSite+c.BurstSize)
			for i := 0; i < c.EventsPerSite; i++ {
				times = append(times, rng.Float64()*c.TotalTime)
			}
			if s < c.BurstSites && c.BurstSize > 0 {
				start := rng.Float64() * (c.TotalTime - c.BurstWidth)
				for i := 0; i < c.BurstSize; i++ {
					times = append(times, start+rng.Float64()*c.BurstWidth)
				}
				bursts = append(bursts, BurstWindow{Experiment: expName, Site: siteName, Start: start, End: start + c.BurstWidth})
			}
			sort.Float64s(times)

			x, y := rng.Float64()*100, rng.Float64()*100
			for _, v := range times {
				records = append(records, events.Record{
					ExperimentName: expName,
					TotalTime:      c.TotalTime,
					SiteID:         siteName,
					Time:           v,
					CentroidX:      x,
					CentroidY:      y,
				})
			}
		}
	}
	return records, bursts, nil
}
