// Package clustering finds runs of temporally close events within a site.
package clustering

import (
	"burstscan/domain/burst"
	"burstscan/domain/events"
)

// Contiguous splits a site's events into runs whose consecutive gaps are all
// <= maxInterEventTime. Runs of a single event are not clusters.
func Contiguous(site *events.Site, maxInterEventTime float64) ([]burst.EventCluster, error) {
	times, err := site.Times()
	if err != nil {
		return nil, err
	}

	var clusters []burst.EventCluster
	start := 0
	for i := 1; i < len(times); i++ {
		if times[i]-times[i-1] <= maxInterEventTime {
			continue
		}
		if i-start > 1 {
			clusters = append(clusters, burst.NewEventCluster(site, start, i))
		}
		start = i
	}
	if len(times)-start > 1 {
		clusters = append(clusters, burst.NewEventCluster(site, start, len(times)))
	}
	return clusters, nil
}
