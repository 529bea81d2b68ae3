package cliconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestApplyFileConfig(t *testing.T) {
	trueVal := true
	zero := 0
	temp := 450.0

	tests := []struct {
		name       string
		fileConfig FileConfig
		changed    map[string]bool
		initial    Config
		expected   Config
		wantErr    bool
	}{
		{
			name: "applies all valid config values",
			fileConfig: FileConfig{
				SourceDir:     "/data/raw",
				OutputDir:     "/data/out",
				TimeDelta:     0.002,
				Precision:     &zero,
				Workers:       4,
				Watch:         &trueVal,
				WatchDebounce: "500ms",
			},
			changed: map[string]bool{},
			initial: Config{SigPts: 4},
			expected: Config{
				SourceDir:     "/data/raw",
				OutputDir:     "/data/out",
				TimeDelta:     0.002,
				SigPts:        0,
				Workers:       4,
				Watch:         true,
				WatchDebounce: 500 * time.Millisecond,
			},
		},
		{
			name: "respects changed flags",
			fileConfig: FileConfig{
				SourceDir: "/config/raw",
				Workers:   8,
			},
			changed: map[string]bool{"source": true},
			initial: Config{
				SourceDir: "/flag/raw",
				Workers:   1,
			},
			expected: Config{
				SourceDir: "/flag/raw", // unchanged because flag was set
				Workers:   8,
			},
		},
		{
			name: "returns error for invalid duration",
			fileConfig: FileConfig{
				WatchDebounce: "soon",
			},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name: "applies experiment template",
			fileConfig: FileConfig{
				Experiment: ExperimentFileConfig{Catalyst: "Pd", Temperature: &temp},
			},
			changed: map[string]bool{},
			initial: Config{},
			expected: Config{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.initial
			err := ApplyFileConfig(&cfg, tt.fileConfig, tt.changed)

			if tt.wantErr && err == nil {
				t.Error("ApplyFileConfig() expected error but got nil")
				return
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ApplyFileConfig() unexpected error: %v", err)
				return
			}
			if tt.wantErr {
				return
			}

			if cfg.SourceDir != tt.expected.SourceDir {
				t.Errorf("SourceDir = %v, want %v", cfg.SourceDir, tt.expected.SourceDir)
			}
			if cfg.OutputDir != tt.expected.OutputDir {
				t.Errorf("OutputDir = %v, want %v", cfg.OutputDir, tt.expected.OutputDir)
			}
			if cfg.TimeDelta != tt.expected.TimeDelta {
				t.Errorf("TimeDelta = %v, want %v", cfg.TimeDelta, tt.expected.TimeDelta)
			}
			if cfg.SigPts != tt.expected.SigPts {
				t.Errorf("SigPts = %v, want %v", cfg.SigPts, tt.expected.SigPts)
			}
			if cfg.Workers != tt.expected.Workers {
				t.Errorf("Workers = %v, want %v", cfg.Workers, tt.expected.Workers)
			}
			if cfg.Watch != tt.expected.Watch {
				t.Errorf("Watch = %v, want %v", cfg.Watch, tt.expected.Watch)
			}
			if cfg.WatchDebounce != tt.expected.WatchDebounce {
				t.Errorf("WatchDebounce = %v, want %v", cfg.WatchDebounce, tt.expected.WatchDebounce)
			}
			if tt.fileConfig.Experiment.Catalyst != "" && cfg.Experiment.Catalyst != tt.fileConfig.Experiment.Catalyst {
				t.Errorf("Experiment.Catalyst = %v, want %v", cfg.Experiment.Catalyst, tt.fileConfig.Experiment.Catalyst)
			}
			if tt.fileConfig.Experiment.Temperature != nil && cfg.Experiment.Temperature != *tt.fileConfig.Experiment.Temperature {
				t.Errorf("Experiment.Temperature = %v, want %v", cfg.Experiment.Temperature, *tt.fileConfig.Experiment.Temperature)
			}
		})
	}
}

func TestApplyFileConfigRejectsNegativeAmounts(t *testing.T) {
	neg := -1.0
	cfg := DefaultConfig()
	err := ApplyFileConfig(&cfg, FileConfig{Experiment: ExperimentFileConfig{CatalystAmtMg: &neg}}, nil)
	if err == nil {
		t.Fatal("ApplyFileConfig() expected error for negative catalyst amount")
	}
}

func TestLoadFileConfig(t *testing.T) {
	// Create a temporary TOML file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.toml")

	tomlContent := `
source_dir = "/data/raw"
output_dir = "/data/out"
time_delta_s = 0.0005
precision = 6
workers = 4
compression = "snappy"
watch_debounce = "3s"

[experiment]
catalyst = "Au"
support = "TiO2"
temperature = 350.5
`
	if err := os.WriteFile(configPath, []byte(tomlContent), 0o644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	fc, err := LoadFileConfig(configPath)
	if err != nil {
		t.Fatalf("LoadFileConfig() unexpected error: %v", err)
	}

	if fc.SourceDir != "/data/raw" {
		t.Errorf("SourceDir = %v, want /data/raw", fc.SourceDir)
	}
	if fc.TimeDelta != 0.0005 {
		t.Errorf("TimeDelta = %v, want 0.0005", fc.TimeDelta)
	}
	if fc.Precision == nil || *fc.Precision != 6 {
		t.Errorf("Precision = %v, want 6", fc.Precision)
	}
	if fc.Compression != "snappy" {
		t.Errorf("Compression = %v, want snappy", fc.Compression)
	}
	if fc.Experiment.Catalyst != "Au" || fc.Experiment.Support != "TiO2" {
		t.Errorf("Experiment = %+v, want Au on TiO2", fc.Experiment)
	}
	if fc.Experiment.Temperature == nil || *fc.Experiment.Temperature != 350.5 {
		t.Errorf("Experiment.Temperature = %v, want 350.5", fc.Experiment.Temperature)
	}

	cfg := DefaultConfig()
	if err := ApplyFileConfig(&cfg, fc, nil); err != nil {
		t.Fatalf("ApplyFileConfig() unexpected error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}
	if cfg.Experiment.Creator != "John Gleaves" {
		t.Errorf("Experiment.Creator = %v, want the default", cfg.Experiment.Creator)
	}
}

func TestLoadFileConfig_InvalidTOML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.toml")

	if err := os.WriteFile(configPath, []byte("source_dir = [unterminated"), 0o644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	if _, err := LoadFileConfig(configPath); err == nil {
		t.Error("LoadFileConfig() expected error for invalid TOML")
	}
}

func TestLoadFileConfig_Missing(t *testing.T) {
	if _, err := LoadFileConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("LoadFileConfig() expected error for missing file")
	}
}

func TestDefaultConfigPath(t *testing.T) {
	p := DefaultConfigPath()
	if p == "" {
		t.Skip("no home directory")
	}
	if !strings.HasSuffix(p, filepath.Join(".tapgdc", "config.toml")) {
		t.Errorf("DefaultConfigPath() = %v", p)
	}
}

func TestFileExists(t *testing.T) {
	tmpDir := t.TempDir()
	p := filepath.Join(tmpDir, "present")
	if err := os.WriteFile(p, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if !FileExists(p) {
		t.Error("FileExists() = false for existing file")
	}
	if FileExists(filepath.Join(tmpDir, "absent")) {
		t.Error("FileExists() = true for missing file")
	}
}
