// Package ports defines the interfaces that connect the ingestion pipeline to
// its file formats and storage.
//
// # Port Interfaces
//
//   - [CaptureSource]: reads one multi-channel binary capture file
//   - [DelimitedSource]: reads one delimited-text file per pulse iteration
//   - [Sink]: persists a metadata record and its canonical table under one ID
//   - [ReportRepository]: persists the manifest of a batch run
//
// The orchestrator in internal/app depends only on these interfaces; the
// implementations live in internal/adapters.
package ports
