// Package domain contains the core entities of the TAP ingestion pipeline.
//
// This package is the innermost layer. It has no dependencies on file formats,
// storage or logging and contains only the pure transformation logic.
//
// # Entities
//
//   - [ExperimentMetadata]: one record per experiment (reactor and catalyst configuration)
//   - [PulseIteration]: acquisition parameters for one measured species/channel
//   - [Matrix]: a wide signal matrix, rows are time samples and columns are pulses
//   - [Table]: the canonical long-form table (pulse_iteration, pulse_index, time_index, flux)
//   - [Report]: the outcome of one batch run, one entry per capture file
//
// # Reshape Engine
//
// [Reshape] flattens a [Matrix] into a [Table], pulse by pulse, rounding every
// flux value to a fixed number of decimal places with round-half-to-even.
package domain
