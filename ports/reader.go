package ports

import (
	"context"

	"burstscan/domain/events"
)

// EventSource supplies parsed (experiment, site, time) records to the analysis core.
type EventSource interface {
	ReadRecords(ctx context.Context) ([]events.Record, error)
}
