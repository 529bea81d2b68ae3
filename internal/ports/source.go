package ports

import (
	"context"

	"github.com/bft-labs/tapgdc/internal/domain"
)

// CaptureSource ingests a multi-channel binary capture file.
type CaptureSource interface {
	// Read parses the capture at path, appends one PulseIteration per signal
	// channel to meta and returns the concatenated canonical table. On error
	// meta is left unchanged.
	Read(ctx context.Context, meta *domain.ExperimentMetadata, path string) (domain.Table, error)
}

// DelimitedSource ingests delimited-text matrices, one file per pulse iteration.
type DelimitedSource interface {
	// Read parses paths in order; the position of a path is its pulse
	// iteration. One default PulseIteration per path is appended to meta.
	Read(ctx context.Context, meta *domain.ExperimentMetadata, paths []string) (domain.Table, error)
}
