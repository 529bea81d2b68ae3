package cliconfig

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bft-labs/tapgdc/internal/domain"
)

// Default values for the extract pipeline.
const (
	DefaultTimeDelta     = 0.001
	DefaultExtension     = ".tdms"
	DefaultIDWidth       = 4
	DefaultCompression   = "zstd"
	DefaultWatchDebounce = 2 * time.Second
)

// maxIDWidth bounds the ID padding; wider IDs are still produced when the
// index needs them.
const maxIDWidth = 12

// Config holds CLI configuration for tapgdc.
type Config struct {
	SourceDir string
	OutputDir string

	// TimeDelta is the sampling interval in seconds written to every
	// experiment as time_delta_s.
	TimeDelta float64
	Extension string
	SigPts    int
	IDWidth   int
	Workers   int

	Compression string

	Watch         bool
	WatchDebounce time.Duration
	MetricsFile   string

	LogLevel  string
	LogFormat string

	// Experiment is the metadata template every experiment starts from.
	Experiment domain.ExperimentMetadata
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		OutputDir:     ".",
		TimeDelta:     DefaultTimeDelta,
		Extension:     DefaultExtension,
		SigPts:        domain.DefaultSigPts,
		IDWidth:       DefaultIDWidth,
		Workers:       1,
		Compression:   DefaultCompression,
		WatchDebounce: DefaultWatchDebounce,
		LogLevel:      "info",
		LogFormat:     "console",
		Experiment:    domain.DefaultMetadata(),
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}
	if c.TimeDelta <= 0 {
		return fmt.Errorf("time delta must be positive")
	}
	if c.Extension == "" {
		c.Extension = DefaultExtension
	}
	if !strings.HasPrefix(c.Extension, ".") {
		c.Extension = "." + c.Extension
	}
	if c.SigPts < 0 || c.SigPts > 15 {
		return fmt.Errorf("precision must be between 0 and 15, got %d", c.SigPts)
	}
	if c.IDWidth < 1 || c.IDWidth > maxIDWidth {
		return fmt.Errorf("id width must be between 1 and %d, got %d", maxIDWidth, c.IDWidth)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if c.WatchDebounce <= 0 {
		return fmt.Errorf("watch debounce must be positive")
	}

	c.Compression = strings.ToLower(c.Compression)
	switch c.Compression {
	case "zstd", "snappy", "gzip", "none":
	default:
		return fmt.Errorf("unknown compression %q (want zstd, snappy, gzip or none)", c.Compression)
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	switch strings.ToLower(c.LogFormat) {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log format %q (want console or json)", c.LogFormat)
	}

	for i, pi := range c.Experiment.PulseIterations {
		if _, err := domain.ParseReactionType(string(pi.ReactionType)); err != nil {
			return fmt.Errorf("experiment pulse iteration %d: %w", i, err)
		}
	}
	return nil
}

// ValidateSource checks the settings only the extract command needs.
func (c *Config) ValidateSource() error {
	if c.SourceDir == "" {
		return fmt.Errorf("source directory is required")
	}
	return nil
}

// Metadata returns the experiment template with the configured sampling
// interval.
func (c *Config) Metadata() domain.ExperimentMetadata {
	m := c.Experiment.Clone()
	m.TimeDeltaS = c.TimeDelta
	return m
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setIntPtr sets an int value from a pointer, zero included.
func (s *configSetter) setIntPtr(flag string, value *int, dst *int) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setFloat sets a float64 value if positive and flag not changed.
func (s *configSetter) setFloat(flag string, value float64, dst *float64) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setFloatPtr sets a float64 value from a pointer; zero and negative values
// are kept.
func (s *configSetter) setFloatPtr(flag string, value *float64, dst *float64) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if
// value is at least floor.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, floor int, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i < floor {
		return nil
	}
	*dst = i
	return nil
}

// setFloatFromString parses a string to float64 and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setFloatFromString(flag, value string, dst *float64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if f <= 0 {
		return nil
	}
	*dst = f
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
// Used for environment variables that come as strings.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
