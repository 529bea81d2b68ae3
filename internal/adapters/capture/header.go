package capture

import (
	"fmt"
	"math"

	"github.com/bft-labs/tapgdc/internal/domain"
)

// Header layout of a channel sub-table. Acquisition parameters sit in the
// second column at fixed rows; these offsets are a contract with the
// instrument's export format.
const (
	headerColumn = 1

	amuRow          = 0
	gainRow         = 1
	injectedTimeRow = 4
	probeTimeRow    = 5
	pulseWidthRow   = 8
)

// Signal layout of a channel sub-table.
const (
	signalFirstRow    = 1
	signalFirstColumn = 3
)

// DecodeHeader extracts the acquisition parameters of one channel. The gain
// is stored as the detector setting (e.g. 1e-8) and decoded as
// round(-log10(setting)).
func DecodeHeader(sub domain.Matrix) (domain.PulseIteration, error) {
	pi := domain.DefaultPulseIteration()

	fields := []struct {
		name string
		row  int
		dst  *float64
	}{
		{"amu", amuRow, &pi.AMU},
		{"injected_time", injectedTimeRow, &pi.InjectedTime},
		{"probe_time", probeTimeRow, &pi.ProbeTime},
		{"pulse_width", pulseWidthRow, &pi.PulseWidth},
	}
	for _, f := range fields {
		v, err := headerCell(sub, f.row, f.name)
		if err != nil {
			return domain.PulseIteration{}, err
		}
		*f.dst = v
	}

	raw, err := headerCell(sub, gainRow, "gain")
	if err != nil {
		return domain.PulseIteration{}, err
	}
	if raw <= 0 {
		return domain.PulseIteration{}, fmt.Errorf("%w: gain setting %g must be positive", domain.ErrMalformedHeader, raw)
	}
	pi.Gain = int(math.Round(-math.Log10(raw)))

	return pi, nil
}

func headerCell(sub domain.Matrix, row int, name string) (float64, error) {
	if row >= sub.Rows || headerColumn >= sub.Cols {
		return 0, fmt.Errorf("%w: %s at row %d, column %d is outside the %dx%d channel block",
			domain.ErrMalformedHeader, name, row, headerColumn, sub.Rows, sub.Cols)
	}
	v := sub.At(row, headerColumn)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s at row %d is missing", domain.ErrMalformedHeader, name, row)
	}
	return v, nil
}

// ExtractSignal returns the signal samples of one channel: every row from
// the second on and every column from the fourth on, without the rows that
// contain a missing value.
func ExtractSignal(sub domain.Matrix) domain.Matrix {
	return sub.Slice(signalFirstRow, signalFirstColumn).DropMissing()
}
