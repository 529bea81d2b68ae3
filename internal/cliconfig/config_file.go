package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/bft-labs/tapgdc/internal/domain"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	SourceDir     string  `toml:"source_dir"`
	OutputDir     string  `toml:"output_dir"`
	TimeDelta     float64 `toml:"time_delta_s"`
	Extension     string  `toml:"extension"`
	Precision     *int    `toml:"precision"`
	IDWidth       int     `toml:"id_width"`
	Workers       int     `toml:"workers"`
	Compression   string  `toml:"compression"`
	Watch         *bool   `toml:"watch"`
	WatchDebounce string  `toml:"watch_debounce"`
	MetricsFile   string  `toml:"metrics_file"`
	LogLevel      string  `toml:"log_level"`
	LogFormat     string  `toml:"log_format"`

	Experiment ExperimentFileConfig `toml:"experiment"`
}

// ExperimentFileConfig overrides the experiment metadata template. Numeric
// fields are pointers so that zero can be set explicitly.
type ExperimentFileConfig struct {
	Catalyst             string   `toml:"catalyst"`
	CatalystAmtMg        *float64 `toml:"catalyst_amt_mg"`
	CatalystPercentWt    *float64 `toml:"catalyst_percent_wt"`
	CatalystZoneLengthCm *float64 `toml:"catalyst_zone_length_cm"`
	Support              string   `toml:"support"`
	Creator              string   `toml:"creator"`
	DateCreated          string   `toml:"date_created"`
	PaperDOI             string   `toml:"paper_doi"`
	PreparationNotes     string   `toml:"preparation_notes"`
	ReactorLengthCm      *float64 `toml:"reactor_length_cm"`
	Temperature          *float64 `toml:"temperature"`
	InjectionAmtNmol     *float64 `toml:"injection_amt_nmol"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.tapgdc/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".tapgdc", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("source", fc.SourceDir, &cfg.SourceDir)
	s.setString("output", fc.OutputDir, &cfg.OutputDir)
	s.setString("extension", fc.Extension, &cfg.Extension)
	s.setString("compression", fc.Compression, &cfg.Compression)
	s.setString("metrics-file", fc.MetricsFile, &cfg.MetricsFile)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("log-format", fc.LogFormat, &cfg.LogFormat)

	s.setFloat("time-delta", fc.TimeDelta, &cfg.TimeDelta)

	s.setIntPtr("precision", fc.Precision, &cfg.SigPts)
	s.setInt("id-width", fc.IDWidth, &cfg.IDWidth)
	s.setInt("workers", fc.Workers, &cfg.Workers)

	s.setBool("watch", fc.Watch, &cfg.Watch)
	if err := s.setDuration("watch-debounce", fc.WatchDebounce, &cfg.WatchDebounce); err != nil {
		return err
	}

	return applyExperiment(&cfg.Experiment, fc.Experiment)
}

func applyExperiment(m *domain.ExperimentMetadata, ec ExperimentFileConfig) error {
	// The template has no flags, so nothing takes precedence over the file.
	s := newConfigSetter(nil)

	s.setString("", ec.Catalyst, &m.Catalyst)
	s.setString("", ec.Support, &m.Support)
	s.setString("", ec.Creator, &m.Creator)
	s.setString("", ec.DateCreated, &m.DateCreated)
	s.setString("", ec.PaperDOI, &m.PaperDOI)
	s.setString("", ec.PreparationNotes, &m.PreparationNotes)

	s.setFloatPtr("", ec.CatalystAmtMg, &m.CatalystAmtMg)
	s.setFloatPtr("", ec.CatalystPercentWt, &m.CatalystPercentWt)
	s.setFloatPtr("", ec.CatalystZoneLengthCm, &m.CatalystZoneLengthCm)
	s.setFloatPtr("", ec.ReactorLengthCm, &m.ReactorLengthCm)
	s.setFloatPtr("", ec.Temperature, &m.Temperature)
	s.setFloatPtr("", ec.InjectionAmtNmol, &m.InjectionAmtNmol)

	for _, v := range []*float64{ec.CatalystAmtMg, ec.CatalystPercentWt, ec.CatalystZoneLengthCm, ec.ReactorLengthCm, ec.InjectionAmtNmol} {
		if v != nil && *v < 0 {
			return fmt.Errorf("experiment amounts and lengths must not be negative, got %g", *v)
		}
	}
	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
