// Package app drives ingestion: batch runs over a capture tree, watch mode
// and single-experiment delimited ingestion.
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bft-labs/tapgdc/internal/domain"
	"github.com/bft-labs/tapgdc/internal/ports"
	"github.com/bft-labs/tapgdc/pkg/log"
)

// DefaultIDWidth is the number of digits experiment IDs are padded to.
const DefaultIDWidth = 4

// Config contains configuration for a batch run.
type Config struct {
	// SourceDir is the root of the capture tree.
	SourceDir string

	// Extension selects capture files, e.g. ".tdms".
	Extension string

	IDWidth int
	Workers int

	// TimeDelta is applied to every experiment as time_delta_s; zero keeps
	// the template value.
	TimeDelta float64
}

// ResultEmitter is called once per ingested file.
type ResultEmitter interface {
	OnFileDone(result domain.FileResult)
}

// Orchestrator ingests every capture file under a directory tree, one
// experiment per file.
type Orchestrator struct {
	config   Config
	template domain.ExperimentMetadata
	source   ports.CaptureSource
	sink     ports.Sink
	reports  ports.ReportRepository
	logger   log.Logger
	emitter  ResultEmitter

	mu     sync.Mutex
	report domain.Report
	ids    map[string]string
}

// NewOrchestrator creates an orchestrator. template seeds the metadata of
// every experiment; reports and emitter may be nil.
func NewOrchestrator(
	config Config,
	template domain.ExperimentMetadata,
	source ports.CaptureSource,
	sink ports.Sink,
	reports ports.ReportRepository,
	logger log.Logger,
	emitter ResultEmitter,
) *Orchestrator {
	if config.IDWidth < 1 {
		config.IDWidth = DefaultIDWidth
	}
	if config.Workers < 1 {
		config.Workers = 1
	}
	return &Orchestrator{
		config:   config,
		template: template,
		source:   source,
		sink:     sink,
		reports:  reports,
		logger:   log.OrNoop(logger),
		emitter:  emitter,
		ids:      make(map[string]string),
	}
}

// Discover returns every regular file under root whose extension is ext, in
// lexical walk order.
func Discover(root, ext string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && filepath.Ext(path) == ext {
			paths = append(paths, path)
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, root)
	}
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// FormatID zero-pads index to width digits. Indexes needing more digits are
// printed in full, so IDs stay unique past the padded range.
func FormatID(index, width int) string {
	return fmt.Sprintf("%0*d", width, index)
}

// DeriveName turns a capture path into an experiment name: the extension is
// removed and path separators and spaces become underscores.
func DeriveName(path, ext string) string {
	name := strings.TrimSuffix(filepath.ToSlash(path), ext)
	return strings.NewReplacer("/", "_", " ", "_").Replace(name)
}

// job is one file to ingest into a slot of the report.
type job struct {
	slot int
	path string
	id   string
}

// Run discovers the capture tree and ingests every file. IDs follow
// discovery order regardless of completion order. A failing file is
// recorded in the report and does not stop the batch; the returned error is
// reserved for discovery, cancellation and manifest failures.
func (o *Orchestrator) Run(ctx context.Context) (domain.Report, error) {
	paths, err := o.discover()
	if err != nil {
		return domain.Report{}, err
	}

	files := make([]domain.FileResult, len(paths))
	jobs := make([]job, len(paths))
	for i, path := range paths {
		jobs[i] = job{slot: i, path: path, id: FormatID(i, o.config.IDWidth)}
	}
	return o.execute(ctx, domain.Report{
		RunID:   uuid.NewString(),
		Source:  o.config.SourceDir,
		Started: time.Now().UTC(),
	}, files, jobs)
}

// Resume continues from the saved manifest. Files it records as ingested
// are skipped, failed files are retried under their recorded ID and new
// files get the IDs following the last one. Without a saved manifest it
// behaves like Run.
func (o *Orchestrator) Resume(ctx context.Context) (domain.Report, error) {
	if o.reports == nil {
		return o.Run(ctx)
	}
	prev, err := o.reports.Load(ctx)
	if err != nil {
		return domain.Report{}, err
	}
	if prev.RunID == "" {
		return o.Run(ctx)
	}
	paths, err := o.discover()
	if err != nil {
		return domain.Report{}, err
	}

	files := append([]domain.FileResult(nil), prev.Files...)
	slots := make(map[string]int, len(files))
	for i, f := range files {
		slots[f.Path] = i
	}
	var jobs []job
	for _, path := range paths {
		i, known := slots[path]
		switch {
		case !known:
			id := FormatID(len(files), o.config.IDWidth)
			files = append(files, domain.FileResult{ID: id, Path: path})
			jobs = append(jobs, job{slot: len(files) - 1, path: path, id: id})
		case files[i].Status != domain.StatusOK:
			jobs = append(jobs, job{slot: i, path: path, id: files[i].ID})
		}
	}
	o.logger.Info("resuming from manifest",
		log.String("run_id", prev.RunID),
		log.Int("recorded", len(prev.Files)),
		log.Int("pending", len(jobs)),
	)

	prev.Files = nil
	prev.Source = o.config.SourceDir
	return o.execute(ctx, prev, files, jobs)
}

func (o *Orchestrator) discover() ([]string, error) {
	paths, err := Discover(o.config.SourceDir, o.config.Extension)
	if err != nil {
		return nil, err
	}
	o.logger.Info("capture files discovered",
		log.String("source", o.config.SourceDir),
		log.Int("files", len(paths)),
		log.Int("workers", o.config.Workers),
	)
	return paths, nil
}

// execute runs jobs on the worker pool, each writing its own slot of files,
// then records files as the report and saves the manifest.
func (o *Orchestrator) execute(ctx context.Context, report domain.Report, files []domain.FileResult, jobs []job) (domain.Report, error) {
	o.mu.Lock()
	o.report = report
	o.mu.Unlock()

	var g errgroup.Group
	g.SetLimit(o.config.Workers)
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			files[j.slot] = o.Process(ctx, j.path, j.id)
			return nil
		})
	}
	_ = g.Wait()

	o.mu.Lock()
	for _, r := range files {
		o.ids[r.Path] = r.ID
	}
	o.report.Files = files
	o.report.Finished = time.Now().UTC()
	report = o.report
	o.mu.Unlock()

	o.logger.Info("batch finished",
		log.String("run_id", report.RunID),
		log.Int("files", len(report.Files)),
		log.Int("processed", len(jobs)),
		log.Int("failed", report.Failed()),
		log.Duration("elapsed", report.Finished.Sub(report.Started)),
	)

	if err := o.saveReport(ctx, report); err != nil {
		return report, err
	}
	return report, ctx.Err()
}

// Process ingests one capture file as experiment id and persists it.
func (o *Orchestrator) Process(ctx context.Context, path, id string) domain.FileResult {
	start := time.Now()

	meta := o.template.Clone()
	meta.ID = id
	meta.Name = DeriveName(o.relative(path), o.config.Extension)
	if o.config.TimeDelta > 0 {
		meta.TimeDeltaS = o.config.TimeDelta
	}

	result := domain.FileResult{ID: id, Name: meta.Name, Path: path}
	err := ctx.Err()
	if err == nil {
		var table domain.Table
		table, err = o.read(ctx, &meta, path)
		if err == nil {
			err = o.sink.Save(ctx, meta, table)
		}
		result.Channels = len(meta.PulseIterations)
		result.Rows = table.Len()
	}
	result.Duration = time.Since(start)

	if err != nil {
		result.Status = domain.StatusFailed
		result.Error = err.Error()
		result.Channels, result.Rows = 0, 0
		o.logger.Error("capture ingestion failed",
			log.String("id", id),
			log.String("path", path),
			log.Duration("duration", result.Duration),
			log.Err(err),
		)
	} else {
		result.Status = domain.StatusOK
		o.logger.Info("capture ingested",
			log.String("id", id),
			log.String("path", path),
			log.Int("channels", result.Channels),
			log.Int("rows", result.Rows),
			log.Duration("duration", result.Duration),
		)
	}

	if o.emitter != nil {
		o.emitter.OnFileDone(result)
	}
	return result
}

// read runs the capture source, turning a panic on malformed input into a
// parse failure of this file.
func (o *Orchestrator) read(ctx context.Context, meta *domain.ExperimentMetadata, path string) (table domain.Table, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: decoder panic: %v", domain.ErrParse, path, r)
		}
	}()
	return o.source.Read(ctx, meta, path)
}

// Report returns a copy of the current report.
func (o *Orchestrator) Report() domain.Report {
	o.mu.Lock()
	defer o.mu.Unlock()
	r := o.report
	r.Files = append([]domain.FileResult(nil), o.report.Files...)
	return r
}

func (o *Orchestrator) relative(path string) string {
	rel, err := filepath.Rel(o.config.SourceDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

func (o *Orchestrator) saveReport(ctx context.Context, report domain.Report) error {
	if o.reports == nil {
		return nil
	}
	if err := o.reports.Save(ctx, report); err != nil {
		o.logger.Error("failed to save manifest", log.Err(err))
		return err
	}
	return nil
}
