package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/tapgdc/internal/adapters/capture"
	"github.com/bft-labs/tapgdc/internal/adapters/delimited"
	"github.com/bft-labs/tapgdc/internal/adapters/fs"
	"github.com/bft-labs/tapgdc/internal/adapters/store"
	"github.com/bft-labs/tapgdc/internal/app"
	"github.com/bft-labs/tapgdc/internal/cliconfig"
	"github.com/bft-labs/tapgdc/pkg/log"
)

const longHelp = `Normalize TAP reactor captures into long-form tables.

Every experiment becomes a pair of files under the output directory:
  metadata/<ID>.json        experiment and per-channel acquisition metadata
  timeseries/<ID>.parquet   pulse_iteration, pulse_index, time_index, flux

Configure via file ($HOME/.tapgdc/config.toml), TAPGDC_* environment
variables or flags, in increasing order of precedence.`

var exampleUsage = strings.TrimSpace(`
  tapgdc extract --source ./raw --output ./data --time-delta 0.001
  tapgdc extract --source ./raw --output ./data --workers 4 --watch
  tapgdc extract --source ./raw --output ./data --resume
  tapgdc csv --output ./data --id 0100 --name bench a.csv b.csv
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	root := &cobra.Command{
		Use:           "tapgdc",
		Short:         "Normalize TAP reactor captures into long-form tables",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.tapgdc/config.toml)")
	root.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn or error")
	root.PersistentFlags().StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: console or json")

	root.AddCommand(newExtractCommand(&cfg, &cfgPath), newCSVCommand(&cfg, &cfgPath))

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "tapgdc: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig applies the config file and environment on top of the flag
// defaults, leaving explicitly set flags alone, then validates the result.
func loadConfig(cmd *cobra.Command, cfg *cliconfig.Config, cfgPath string) (log.Logger, error) {
	cfgFile := cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(cfg, fc, changed); err != nil {
			return nil, err
		}
	} else if cfgPath != "" {
		return nil, fmt.Errorf("config file %s not found", cfgPath)
	}

	// TAPGDC_* override the file but not explicitly set flags.
	if err := cliconfig.ApplyEnvConfig(cfg, changed); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	zl, err := log.NewZerolog(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	logger := log.NewZerologAdapter(zl)
	logger.Debug("configuration",
		log.String("config_file", cfgFile),
		log.Any("config", cfg),
	)
	return logger, nil
}

func newExtractCommand(cfg *cliconfig.Config, cfgPath *string) *cobra.Command {
	var resume bool

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Ingest every capture file under a directory tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := loadConfig(cmd, cfg, *cfgPath)
			if err != nil {
				return err
			}
			if err := cfg.ValidateSource(); err != nil {
				return err
			}
			return runExtract(cmd.Context(), cfg, resume, logger)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.SourceDir, "source", cfg.SourceDir, "root directory of the capture tree")
	f.StringVar(&cfg.OutputDir, "output", cfg.OutputDir, "output directory for metadata/ and timeseries/")
	f.Float64Var(&cfg.TimeDelta, "time-delta", cfg.TimeDelta, "sampling interval in seconds")
	f.StringVar(&cfg.Extension, "extension", cfg.Extension, "capture file extension")
	f.IntVar(&cfg.SigPts, "precision", cfg.SigPts, "flux precision in decimal places")
	f.IntVar(&cfg.IDWidth, "id-width", cfg.IDWidth, "digits experiment IDs are zero-padded to")
	f.IntVar(&cfg.Workers, "workers", cfg.Workers, "files ingested concurrently")
	f.StringVar(&cfg.Compression, "compression", cfg.Compression, "table compression: zstd, snappy, gzip or none")
	f.BoolVar(&cfg.Watch, "watch", cfg.Watch, "keep running and ingest new captures as they appear")
	f.DurationVar(&cfg.WatchDebounce, "watch-debounce", cfg.WatchDebounce, "quiet period before a new capture is ingested")
	f.StringVar(&cfg.MetricsFile, "metrics-file", cfg.MetricsFile, "write prometheus metrics to this textfile")
	f.BoolVar(&resume, "resume", false, "continue from the manifest in the output directory: keep its IDs, ingest only new and failed captures")
	return cmd
}

func runExtract(parent context.Context, cfg *cliconfig.Config, resume bool, logger log.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := app.NewMetrics()
	o := app.NewOrchestrator(
		app.Config{
			SourceDir: cfg.SourceDir,
			Extension: cfg.Extension,
			IDWidth:   cfg.IDWidth,
			Workers:   cfg.Workers,
			TimeDelta: cfg.TimeDelta,
		},
		cfg.Metadata(),
		capture.NewReader(capture.WithLogger(logger), capture.WithSigPts(cfg.SigPts)),
		store.NewSink(cfg.OutputDir, store.WithCompression(cfg.Compression), store.WithLogger(logger)),
		fs.NewManifestRepository(cfg.OutputDir),
		logger,
		metrics,
	)

	run := o.Run
	if resume {
		run = o.Resume
	}
	report, err := run(ctx)
	writeMetrics(cfg, metrics, logger)
	if err != nil {
		return err
	}

	if cfg.Watch {
		if err := o.Watch(ctx, cfg.WatchDebounce); err != nil {
			return fmt.Errorf("watch: %w", err)
		}
		logger.Info("received signal, stopping")
		writeMetrics(cfg, metrics, logger)
		report = o.Report()
	}

	if n := report.Failed(); n > 0 {
		return fmt.Errorf("%d of %d capture files failed, see %s", n, len(report.Files),
			filepath.Join(cfg.OutputDir, "manifest.json"))
	}
	return nil
}

func writeMetrics(cfg *cliconfig.Config, m *app.Metrics, logger log.Logger) {
	if cfg.MetricsFile == "" {
		return
	}
	if err := m.WriteTextfile(cfg.MetricsFile); err != nil {
		logger.Warn("failed to write metrics", log.String("path", cfg.MetricsFile), log.Err(err))
	}
}

func newCSVCommand(cfg *cliconfig.Config, cfgPath *string) *cobra.Command {
	var id, name, timeFile string

	cmd := &cobra.Command{
		Use:   "csv [flags] FILE...",
		Short: "Ingest one experiment from delimited matrices, one file per pulse iteration",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := loadConfig(cmd, cfg, *cfgPath)
			if err != nil {
				return err
			}

			opts := []delimited.Option{delimited.WithLogger(logger), delimited.WithSigPts(cfg.SigPts)}
			if timeFile != "" {
				times, err := delimited.ReadColumn(timeFile)
				if err != nil {
					return fmt.Errorf("time file: %w", err)
				}
				opts = append(opts, delimited.WithTime(times))
			}

			meta := cfg.Metadata()
			meta.ID = id
			if name != "" {
				meta.Name = name
			} else {
				meta.Name = app.DeriveName(filepath.Base(args[0]), filepath.Ext(args[0]))
			}

			_, err = app.IngestDelimited(cmd.Context(),
				delimited.NewReader(opts...),
				store.NewSink(cfg.OutputDir, store.WithCompression(cfg.Compression), store.WithLogger(logger)),
				meta, args, logger)
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.OutputDir, "output", cfg.OutputDir, "output directory for metadata/ and timeseries/")
	f.Float64Var(&cfg.TimeDelta, "time-delta", cfg.TimeDelta, "sampling interval in seconds")
	f.IntVar(&cfg.SigPts, "precision", cfg.SigPts, "flux precision in decimal places")
	f.StringVar(&cfg.Compression, "compression", cfg.Compression, "table compression: zstd, snappy, gzip or none")
	f.StringVar(&id, "id", app.FormatID(0, cliconfig.DefaultIDWidth), "experiment ID")
	f.StringVar(&name, "name", "", "experiment name (default: derived from the first file)")
	f.StringVar(&timeFile, "time-file", "", "one-column CSV of explicit time values for non-uniform sampling")
	return cmd
}
