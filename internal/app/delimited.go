package app

import (
	"context"
	"time"

	"github.com/bft-labs/tapgdc/internal/domain"
	"github.com/bft-labs/tapgdc/internal/ports"
	"github.com/bft-labs/tapgdc/pkg/log"
)

// IngestDelimited stores one experiment built from delimited matrices, one
// path per pulse iteration in order. meta carries the ID and name.
func IngestDelimited(
	ctx context.Context,
	source ports.DelimitedSource,
	sink ports.Sink,
	meta domain.ExperimentMetadata,
	paths []string,
	logger log.Logger,
) (domain.FileResult, error) {
	logger = log.OrNoop(logger)
	start := time.Now()
	meta = meta.Clone()

	result := domain.FileResult{ID: meta.ID, Name: meta.Name}
	if len(paths) > 0 {
		result.Path = paths[0]
	}

	table, err := source.Read(ctx, &meta, paths)
	if err == nil {
		err = sink.Save(ctx, meta, table)
	}
	result.Duration = time.Since(start)
	if err != nil {
		result.Status = domain.StatusFailed
		result.Error = err.Error()
		logger.Error("delimited ingestion failed", log.String("id", meta.ID), log.Err(err))
		return result, err
	}

	result.Status = domain.StatusOK
	result.Channels = len(meta.PulseIterations)
	result.Rows = table.Len()
	logger.Info("delimited experiment ingested",
		log.String("id", meta.ID),
		log.Int("files", len(paths)),
		log.Int("rows", result.Rows),
		log.Duration("duration", result.Duration),
	)
	return result, nil
}
