// Package capture ingests multi-channel TDMS capture files.
//
// A capture is flattened into a table of qualified columns, demultiplexed by
// the channel identifier embedded in each column path, and every channel
// block is split into its header (acquisition parameters) and its signal
// matrix, which is then reshaped into the canonical table.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/bft-labs/tapgdc/internal/domain"
	"github.com/bft-labs/tapgdc/pkg/log"
	"github.com/bft-labs/tapgdc/pkg/tdms"
)

// Reader implements ports.CaptureSource.
type Reader struct {
	opts   domain.ReshapeOptions
	logger log.Logger
}

// Option configures a Reader.
type Option func(*Reader)

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(r *Reader) { r.logger = log.OrNoop(l) }
}

// WithSigPts sets the flux precision in decimal places.
func WithSigPts(n int) Option {
	return func(r *Reader) { r.opts.SigPts = n }
}

// NewReader creates a Reader with the default precision.
func NewReader(opts ...Option) *Reader {
	r := &Reader{opts: domain.DefaultReshapeOptions(), logger: log.NoopLogger{}}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Read parses the capture at path. Channels are processed in ascending
// numeric order; the first failing channel aborts the file and leaves meta
// unchanged.
func (r *Reader) Read(ctx context.Context, meta *domain.ExperimentMetadata, path string) (domain.Table, error) {
	f, err := tdms.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Table{}, fmt.Errorf("%w: %s", domain.ErrNotFound, path)
	}
	if err != nil {
		return domain.Table{}, fmt.Errorf("%w: %s: %w", domain.ErrParse, path, err)
	}

	pulses, table, err := r.Demux(ctx, FrameFromFile(f))
	if err != nil {
		return domain.Table{}, fmt.Errorf("%s: %w", path, err)
	}
	meta.PulseIterations = append(meta.PulseIterations, pulses...)
	return table, nil
}

// Demux splits a flat capture table into per-channel acquisition records and
// the concatenated canonical table.
func (r *Reader) Demux(ctx context.Context, fr Frame) ([]domain.PulseIteration, domain.Table, error) {
	chans, err := Channels(fr)
	if err != nil {
		return nil, domain.Table{}, err
	}

	pulses := make([]domain.PulseIteration, 0, len(chans))
	tables := make([]domain.Table, 0, len(chans))
	for _, ch := range chans {
		if err := ctx.Err(); err != nil {
			return nil, domain.Table{}, err
		}

		sub := fr.Select(ch.Columns)
		pi, err := DecodeHeader(sub)
		if err != nil {
			return nil, domain.Table{}, fmt.Errorf("channel %s: %w", ch.ID, err)
		}

		signal := ExtractSignal(sub)
		t, err := domain.Reshape(signal, ch.PulseIteration, r.opts)
		if err != nil {
			return nil, domain.Table{}, fmt.Errorf("channel %s: %w", ch.ID, err)
		}
		if t.Len() == 0 {
			r.logger.Warn("channel has no complete signal rows",
				log.String("channel", ch.ID),
				log.Int("pulse_iteration", ch.PulseIteration),
			)
		}
		r.logger.Debug("channel demultiplexed",
			log.String("channel", ch.ID),
			log.Int("pulse_iteration", ch.PulseIteration),
			log.Float64("amu", pi.AMU),
			log.Int("gain", pi.Gain),
			log.Int("samples", signal.Rows),
			log.Int("pulses", signal.Cols),
		)

		pulses = append(pulses, pi)
		tables = append(tables, t)
	}
	return pulses, domain.Concat(tables...), nil
}
