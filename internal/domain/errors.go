package domain

import "errors"

// Error kinds returned by the ingestion pipeline. Concrete errors wrap one of
// these together with their cause and can be checked with errors.Is.
var (
	// ErrNotFound is returned when an input path does not exist.
	ErrNotFound = errors.New("tapgdc: not found")

	// ErrParse is returned for malformed delimited or binary content.
	ErrParse = errors.New("tapgdc: parse error")

	// ErrNoChannels is returned when a capture file has no signal channels
	// after the reserved channels are excluded.
	ErrNoChannels = errors.New("tapgdc: no signal channels")

	// ErrMalformedHeader is returned when a channel name or header cell
	// cannot be decoded.
	ErrMalformedHeader = errors.New("tapgdc: malformed header")

	// ErrIO is returned when the persistence sink fails to write.
	ErrIO = errors.New("tapgdc: io error")
)
