package app

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/bft-labs/tapgdc/internal/domain"
	"github.com/bft-labs/tapgdc/pkg/log"
)

// DefaultWatchDebounce is how long a capture must stay quiet before it is
// ingested.
const DefaultWatchDebounce = 2 * time.Second

// Watch ingests capture files as they appear under the source tree until ctx
// is done. A file is ingested once no write has been seen for debounce. New
// files get the next sequential ID; a rewritten file keeps its ID and is
// ingested again. The manifest is saved after every file.
func (o *Orchestrator) Watch(ctx context.Context, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	done := make(chan struct{})
	defer close(done)
	ready := make(chan string, 64)

	var mu sync.Mutex
	timers := make(map[string]*time.Timer)
	defer func() {
		mu.Lock()
		for _, t := range timers {
			t.Stop()
		}
		mu.Unlock()
	}()

	schedule := func(path string) {
		mu.Lock()
		defer mu.Unlock()
		if t, ok := timers[path]; ok {
			t.Stop()
		}
		timers[path] = time.AfterFunc(debounce, func() {
			mu.Lock()
			delete(timers, path)
			mu.Unlock()
			select {
			case ready <- path:
			case <-done:
			}
		})
	}

	if err := o.watchTree(watcher, o.config.SourceDir, nil); err != nil {
		return err
	}
	o.logger.Info("watching for captures",
		log.String("source", o.config.SourceDir),
		log.Duration("debounce", debounce),
	)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
					// Files may land in a new directory before it is watched.
					if err := o.watchTree(watcher, event.Name, schedule); err != nil {
						o.logger.Warn("failed to watch directory", log.String("path", event.Name), log.Err(err))
					}
					continue
				}
			}
			if filepath.Ext(event.Name) != o.config.Extension {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			schedule(event.Name)

		case path := <-ready:
			o.ingest(ctx, path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			o.logger.Warn("watcher error", log.Err(err))
		}
	}
}

// watchTree adds root and every directory below it to the watcher. When
// found is set it is called for every capture already present.
func (o *Orchestrator) watchTree(w *fsnotify.Watcher, root string, found func(string)) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		if found != nil && d.Type().IsRegular() && filepath.Ext(path) == o.config.Extension {
			found(path)
		}
		return nil
	})
}

// ingest processes one watched capture and records it in the report.
func (o *Orchestrator) ingest(ctx context.Context, path string) {
	o.mu.Lock()
	if o.report.RunID == "" {
		o.report = domain.Report{RunID: uuid.NewString(), Source: o.config.SourceDir, Started: time.Now().UTC()}
	}
	id, known := o.ids[path]
	if !known {
		id = FormatID(o.report.NextIndex(), o.config.IDWidth)
		o.ids[path] = id
		// Reserve the slot so IDs stay sequential.
		o.report.Files = append(o.report.Files, domain.FileResult{ID: id, Path: path})
	}
	o.mu.Unlock()

	result := o.Process(ctx, path, id)

	o.mu.Lock()
	for i := range o.report.Files {
		if o.report.Files[i].ID == id {
			o.report.Files[i] = result
			break
		}
	}
	o.report.Finished = time.Now().UTC()
	report := o.report
	report.Files = append([]domain.FileResult(nil), o.report.Files...)
	o.mu.Unlock()

	_ = o.saveReport(ctx, report)
}
