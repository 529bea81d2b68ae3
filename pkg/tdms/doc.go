// Package tdms reads National Instruments TDMS capture files.
//
// TDMS files are a sequence of segments. Each segment starts with a 28 byte
// lead-in, optionally followed by metadata (object paths, raw data indexes and
// properties) and raw channel data. Objects are addressed by path:
//
//	/                      file (root)
//	/'Group'               group
//	/'Group'/'Channel'     channel
//
// This package is independent of the ingestion pipeline and exposes channel
// data as a float64 view, which is what instrument waveforms need.
//
// # Usage
//
//	f, err := tdms.ReadFile("/data/run-01.tdms")
//	if err != nil {
//	    return err
//	}
//	for _, ch := range f.Channels() {
//	    fmt.Println(ch.Path(), len(ch.Data))
//	}
//
// Test fixtures can be written with package tdmstest.
//
// # Limitations
//
// DAQmx raw data, extended precision floats, complex and fixed point channels
// are rejected with [ErrUnsupported].
package tdms
