// Package log provides the structured logging port used by tapgdc components.
//
// Adapters, the orchestrator and the sink log through the [Logger] interface
// so they stay independent of a concrete logging library. A zerolog backed
// implementation is used by the CLI, and [NoopLogger] is the library default.
//
//	logger := log.NewZerologAdapter(zerolog.New(os.Stderr))
//	logger.Info("capture ingested", log.String("id", "0003"), log.Int("rows", 4096))
package log
