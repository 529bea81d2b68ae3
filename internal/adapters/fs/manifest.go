// Package fs holds filesystem adapters that are not tied to a data format.
package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bft-labs/tapgdc/internal/domain"
)

const manifestFileName = "manifest.json"

// ManifestRepository implements ports.ReportRepository using a JSON file in
// the output directory.
type ManifestRepository struct {
	dir string
}

// NewManifestRepository creates a ManifestRepository for the given directory.
func NewManifestRepository(dir string) *ManifestRepository {
	return &ManifestRepository{dir: dir}
}

// Load retrieves the last saved report.
// Returns an empty report and nil error if no manifest exists.
func (r *ManifestRepository) Load(ctx context.Context) (domain.Report, error) {
	data, err := os.ReadFile(r.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return domain.Report{}, nil
		}
		return domain.Report{}, fmt.Errorf("%w: %w", domain.ErrIO, err)
	}

	var report domain.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return domain.Report{}, fmt.Errorf("%w: %s: %w", domain.ErrParse, r.Path(), err)
	}
	return report, nil
}

// Save persists the report atomically (temp file, then rename).
func (r *ManifestRepository) Save(ctx context.Context, report domain.Report) error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrIO, err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode manifest: %w", domain.ErrIO, err)
	}

	path := r.Path()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrIO, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %w", domain.ErrIO, err)
	}
	return nil
}

// Path returns the full path to the manifest file.
func (r *ManifestRepository) Path() string {
	return filepath.Join(r.dir, manifestFileName)
}
