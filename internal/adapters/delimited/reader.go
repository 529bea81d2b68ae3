// Package delimited ingests comma separated signal matrices, one file per
// pulse iteration.
package delimited

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/bft-labs/tapgdc/internal/domain"
	"github.com/bft-labs/tapgdc/pkg/log"
)

// Reader implements ports.DelimitedSource. Each file is a matrix whose
// columns are pulses and whose rows are time samples; the first row is a
// header and carries no channel metadata.
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

// WithTime supplies explicit time values shared by every file, for
// non-uniform sampling.
func WithTime(t []float64) Option {
	return func(r *Reader) { r.opts.Time = t }
}

// NewReader creates a Reader with the default precision.
func NewReader(opts ...Option) *Reader {
	r := &Reader{opts: domain.DefaultReshapeOptions(), logger: log.NoopLogger{}}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Read parses paths in order and reshapes each matrix with its position as
// pulse iteration. A default PulseIteration is appended to meta per path.
func (r *Reader) Read(ctx context.Context, meta *domain.ExperimentMetadata, paths []string) (domain.Table, error) {
	tables := make([]domain.Table, 0, len(paths))
	pulses := make([]domain.PulseIteration, 0, len(paths))

	for i, p := range paths {
		if err := ctx.Err(); err != nil {
			return domain.Table{}, err
		}
		m, err := ReadMatrix(p)
		if err != nil {
			return domain.Table{}, err
		}
		t, err := domain.Reshape(m, i, r.opts)
		if err != nil {
			return domain.Table{}, fmt.Errorf("%w: %s: %w", domain.ErrParse, p, err)
		}
		r.logger.Debug("matrix reshaped",
			log.String("path", p),
			log.Int("pulse_iteration", i),
			log.Int("samples", m.Rows),
			log.Int("pulses", m.Cols),
		)
		tables = append(tables, t)
		pulses = append(pulses, domain.DefaultPulseIteration())
	}

	meta.PulseIterations = append(meta.PulseIterations, pulses...)
	return domain.Concat(tables...), nil
}

// ReadMatrix parses the comma separated matrix at path. Empty cells are
// read as missing values (NaN).
func ReadMatrix(path string) (domain.Matrix, error) {
	f, err := open(path)
	if err != nil {
		return domain.Matrix{}, err
	}
	defer f.Close()
	return parseMatrix(f, path)
}

// ReadColumn reads the first column of the comma separated file at path,
// skipping its header row.
func ReadColumn(path string) ([]float64, error) {
	m, err := ReadMatrix(path)
	if err != nil {
		return nil, err
	}
	if m.Cols == 0 {
		return nil, fmt.Errorf("%w: %s: no columns", domain.ErrParse, path)
	}
	out := make([]float64, m.Rows)
	for i := range out {
		out[i] = m.At(i, 0)
	}
	return out, nil
}

func open(path string) (*os.File, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, path)
	}
	return f, err
}

func parseMatrix(r io.Reader, name string) (domain.Matrix, error) {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return domain.Matrix{}, fmt.Errorf("%w: %s: empty file", domain.ErrParse, name)
	}
	if err != nil {
		return domain.Matrix{}, fmt.Errorf("%w: %s: %w", domain.ErrParse, name, err)
	}

	m := domain.Matrix{Cols: len(header)}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.Matrix{}, fmt.Errorf("%w: %s: %w", domain.ErrParse, name, err)
		}
		line, _ := cr.FieldPos(0)
		for j, cell := range rec {
			v, err := parseCell(cell)
			if err != nil {
				return domain.Matrix{}, fmt.Errorf("%w: %s: line %d, column %d: %q is not numeric",
					domain.ErrParse, name, line, j+1, cell)
			}
			m.Data = append(m.Data, v)
		}
		m.Rows++
	}
	return m, nil
}

func parseCell(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}
