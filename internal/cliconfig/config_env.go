package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (TAPGDC_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("source", os.Getenv("TAPGDC_SOURCE_DIR"), &cfg.SourceDir)
	s.setString("output", os.Getenv("TAPGDC_OUTPUT_DIR"), &cfg.OutputDir)
	s.setString("extension", os.Getenv("TAPGDC_EXTENSION"), &cfg.Extension)
	s.setString("compression", os.Getenv("TAPGDC_COMPRESSION"), &cfg.Compression)
	s.setString("metrics-file", os.Getenv("TAPGDC_METRICS_FILE"), &cfg.MetricsFile)
	s.setString("log-level", os.Getenv("TAPGDC_LOG_LEVEL"), &cfg.LogLevel)
	s.setString("log-format", os.Getenv("TAPGDC_LOG_FORMAT"), &cfg.LogFormat)

	if err := s.setFloatFromString("time-delta", os.Getenv("TAPGDC_TIME_DELTA"), &cfg.TimeDelta); err != nil {
		return err
	}

	if err := s.setIntFromString("precision", os.Getenv("TAPGDC_PRECISION"), 0, &cfg.SigPts); err != nil {
		return err
	}
	if err := s.setIntFromString("id-width", os.Getenv("TAPGDC_ID_WIDTH"), 1, &cfg.IDWidth); err != nil {
		return err
	}
	if err := s.setIntFromString("workers", os.Getenv("TAPGDC_WORKERS"), 1, &cfg.Workers); err != nil {
		return err
	}

	s.setBoolFromString("watch", os.Getenv("TAPGDC_WATCH"), &cfg.Watch)
	if err := s.setDuration("watch-debounce", os.Getenv("TAPGDC_WATCH_DEBOUNCE"), &cfg.WatchDebounce); err != nil {
		return err
	}

	return nil
}
