package ports

import (
	"context"

	"github.com/bft-labs/tapgdc/internal/domain"
)

// Sink persists experiments keyed by metadata ID.
type Sink interface {
	// Save writes the metadata record and its table. The pair appears
	// atomically: a metadata record is never left without its table.
	Save(ctx context.Context, meta domain.ExperimentMetadata, table domain.Table) error
}

// ReportRepository persists the manifest of a batch run.
type ReportRepository interface {
	// Load returns the last saved report, or an empty report if none exists.
	Load(ctx context.Context) (domain.Report, error)

	// Save persists the report atomically.
	Save(ctx context.Context, report domain.Report) error
}
