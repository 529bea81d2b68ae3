// Package store persists experiments as a JSON metadata record plus a
// columnar parquet table, both keyed by the experiment ID.
//
// Layout under the root directory:
//
//	metadata/<ID>.json
//	timeseries/<ID>.parquet
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/bft-labs/tapgdc/internal/domain"
	"github.com/bft-labs/tapgdc/pkg/log"
)

const (
	MetadataDir   = "metadata"
	TimeseriesDir = "timeseries"

	tmpSuffix = ".tmp"
)

// intRow is the storage row of a table with integer sample ordinals.
type intRow struct {
	PulseIteration int64   `parquet:"pulse_iteration"`
	PulseIndex     int64   `parquet:"pulse_index"`
	TimeIndex      int64   `parquet:"time_index"`
	Flux           float64 `parquet:"flux"`
}

// floatRow is the storage row of a table with explicit time values.
type floatRow struct {
	PulseIteration int64   `parquet:"pulse_iteration"`
	PulseIndex     int64   `parquet:"pulse_index"`
	TimeIndex      float64 `parquet:"time_index"`
	Flux           float64 `parquet:"flux"`
}

// Sink implements ports.Sink on the local filesystem.
type Sink struct {
	root        string
	compression string
	logger      log.Logger

	rename func(oldpath, newpath string) error
}

// Option configures a Sink.
type Option func(*Sink)

// WithCompression sets the table codec: zstd, snappy, gzip or none.
func WithCompression(codec string) Option {
	return func(s *Sink) { s.compression = codec }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(s *Sink) { s.logger = log.OrNoop(l) }
}

// NewSink creates a Sink rooted at dir. The directory is created on first
// save.
func NewSink(dir string, opts ...Option) *Sink {
	s := &Sink{root: dir, compression: "zstd", logger: log.NoopLogger{}, rename: os.Rename}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Codec returns the writer option for a compression name.
func Codec(name string) (parquet.WriterOption, error) {
	switch strings.ToLower(name) {
	case "zstd", "":
		return parquet.Compression(&parquet.Zstd), nil
	case "snappy":
		return parquet.Compression(&parquet.Snappy), nil
	case "gzip":
		return parquet.Compression(&parquet.Gzip), nil
	case "none":
		return parquet.Compression(&parquet.Uncompressed), nil
	default:
		return nil, fmt.Errorf("unknown compression %q (want zstd, snappy, gzip or none)", name)
	}
}

// MetadataPath returns the metadata file path for id.
func (s *Sink) MetadataPath(id string) string {
	return filepath.Join(s.root, MetadataDir, id+".json")
}

// TablePath returns the table file path for id.
func (s *Sink) TablePath(id string) string {
	return filepath.Join(s.root, TimeseriesDir, id+".parquet")
}

// Save writes meta and table under meta.ID. Both files are staged under
// temporary names; the table is published first and removed again if the
// metadata cannot be published, so a metadata record never exists without
// its table. An existing pair with the same ID is replaced; if the
// replacement fails after its table was published, the old record is
// removed along with it.
func (s *Sink) Save(ctx context.Context, meta domain.ExperimentMetadata, table domain.Table) error {
	if meta.ID == "" {
		return fmt.Errorf("%w: experiment has no ID", domain.ErrIO)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	codec, err := Codec(s.compression)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrIO, err)
	}

	for _, dir := range []string{MetadataDir, TimeseriesDir} {
		if err := os.MkdirAll(filepath.Join(s.root, dir), 0o755); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrIO, err)
		}
	}

	tablePath, metaPath := s.TablePath(meta.ID), s.MetadataPath(meta.ID)
	tableTmp, metaTmp := tablePath+tmpSuffix, metaPath+tmpSuffix
	cleanup := func() {
		os.Remove(tableTmp)
		os.Remove(metaTmp)
	}

	if err := writeTable(tableTmp, table, codec); err != nil {
		cleanup()
		return fmt.Errorf("%w: write %s: %w", domain.ErrIO, tablePath, err)
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		cleanup()
		return fmt.Errorf("%w: encode metadata %s: %w", domain.ErrIO, meta.ID, err)
	}
	if err := os.WriteFile(metaTmp, data, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("%w: write %s: %w", domain.ErrIO, metaPath, err)
	}

	if err := s.rename(tableTmp, tablePath); err != nil {
		cleanup()
		return fmt.Errorf("%w: publish %s: %w", domain.ErrIO, tablePath, err)
	}
	if err := s.rename(metaTmp, metaPath); err != nil {
		cleanup()
		os.Remove(tablePath)
		os.Remove(metaPath)
		return fmt.Errorf("%w: publish %s: %w", domain.ErrIO, metaPath, err)
	}

	s.logger.Debug("experiment saved",
		log.String("id", meta.ID),
		log.Int("rows", table.Len()),
		log.String("table", tablePath),
	)
	return nil
}

func writeTable(path string, t domain.Table, codec parquet.WriterOption) error {
	if t.IntegerTime() {
		rows := make([]intRow, t.Len())
		for i := range rows {
			rows[i] = intRow{
				PulseIteration: t.PulseIteration[i],
				PulseIndex:     t.PulseIndex[i],
				TimeIndex:      t.TimeIndex[i],
				Flux:           t.Flux[i],
			}
		}
		return parquet.WriteFile(path, rows, codec)
	}

	rows := make([]floatRow, t.Len())
	for i := range rows {
		rows[i] = floatRow{
			PulseIteration: t.PulseIteration[i],
			PulseIndex:     t.PulseIndex[i],
			TimeIndex:      t.TimeValue[i],
			Flux:           t.Flux[i],
		}
	}
	return parquet.WriteFile(path, rows, codec)
}

// Load reads back the experiment stored under id.
func (s *Sink) Load(ctx context.Context, id string) (domain.ExperimentMetadata, domain.Table, error) {
	if err := ctx.Err(); err != nil {
		return domain.ExperimentMetadata{}, domain.Table{}, err
	}

	metaPath := s.MetadataPath(id)
	data, err := os.ReadFile(metaPath)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.ExperimentMetadata{}, domain.Table{}, fmt.Errorf("%w: %s", domain.ErrNotFound, metaPath)
	}
	if err != nil {
		return domain.ExperimentMetadata{}, domain.Table{}, fmt.Errorf("%w: %w", domain.ErrIO, err)
	}
	var meta domain.ExperimentMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return domain.ExperimentMetadata{}, domain.Table{}, fmt.Errorf("%w: %s: %w", domain.ErrParse, metaPath, err)
	}

	table, err := readTable(s.TablePath(id))
	if err != nil {
		return domain.ExperimentMetadata{}, domain.Table{}, err
	}
	return meta, table, nil
}

func readTable(path string) (domain.Table, error) {
	integer, err := integerTime(path)
	if err != nil {
		return domain.Table{}, err
	}

	if integer {
		rows, err := parquet.ReadFile[intRow](path)
		if err != nil {
			return domain.Table{}, fmt.Errorf("%w: %s: %w", domain.ErrParse, path, err)
		}
		t := domain.Table{
			PulseIteration: make([]int64, len(rows)),
			PulseIndex:     make([]int64, len(rows)),
			TimeIndex:      make([]int64, len(rows)),
			Flux:           make([]float64, len(rows)),
		}
		for i, r := range rows {
			t.PulseIteration[i], t.PulseIndex[i], t.TimeIndex[i], t.Flux[i] = r.PulseIteration, r.PulseIndex, r.TimeIndex, r.Flux
		}
		return t, nil
	}

	rows, err := parquet.ReadFile[floatRow](path)
	if err != nil {
		return domain.Table{}, fmt.Errorf("%w: %s: %w", domain.ErrParse, path, err)
	}
	t := domain.Table{
		PulseIteration: make([]int64, len(rows)),
		PulseIndex:     make([]int64, len(rows)),
		TimeValue:      make([]float64, len(rows)),
		Flux:           make([]float64, len(rows)),
	}
	for i, r := range rows {
		t.PulseIteration[i], t.PulseIndex[i], t.TimeValue[i], t.Flux[i] = r.PulseIteration, r.PulseIndex, r.TimeIndex, r.Flux
	}
	return t, nil
}

// integerTime reports whether the stored time_index column is int64.
func integerTime(path string) (bool, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("%w: %s", domain.ErrNotFound, path)
	}
	if err != nil {
		return false, fmt.Errorf("%w: %w", domain.ErrIO, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("%w: %w", domain.ErrIO, err)
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		return false, fmt.Errorf("%w: %s: %w", domain.ErrParse, path, err)
	}
	for _, field := range pf.Schema().Fields() {
		if field.Name() == domain.ColTimeIndex {
			return field.Type().Kind() == parquet.Int64, nil
		}
	}
	return false, fmt.Errorf("%w: %s: no %s column", domain.ErrParse, path, domain.ColTimeIndex)
}
