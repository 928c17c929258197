package ports

import (
	"context"

	"burstscan/domain/burst"
)

// ReportSink receives the cluster and score records of a finished run.
type ReportSink interface {
	WriteReport(ctx context.Context, report *burst.Report) error
}
