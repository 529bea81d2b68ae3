package domain

import (
	"fmt"
	"math"
)

// DefaultSigPts is the default flux precision in decimal places, following
// the accurate mass measurement convention of four significant decimals.
const DefaultSigPts = 4

// ReshapeOptions configures Reshape.
type ReshapeOptions struct {
	// SigPts is the number of decimal places flux values are rounded to.
	SigPts int

	// Time, when set, replaces the integer time index. It must have one
	// entry per matrix row. Use it only for non-uniform sampling.
	Time []float64
}

// DefaultReshapeOptions returns options with the default precision and no
// explicit time values.
func DefaultReshapeOptions() ReshapeOptions {
	return ReshapeOptions{SigPts: DefaultSigPts}
}

// Reshape flattens x (rows are time samples, columns are pulses) into the
// canonical long-form table tagged with pulseIteration.
//
// Rows are emitted pulse by pulse: every time sample of pulse 0, then every
// time sample of pulse 1, and so on. The result has exactly x.Rows*x.Cols rows.
func Reshape(x Matrix, pulseIteration int, opts ReshapeOptions) (Table, error) {
	n, p := x.Rows, x.Cols
	if opts.Time != nil && len(opts.Time) != n {
		return Table{}, fmt.Errorf("time has %d values, matrix has %d rows", len(opts.Time), n)
	}

	size := n * p
	out := Table{
		PulseIteration: make([]int64, size),
		PulseIndex:     make([]int64, size),
		Flux:           make([]float64, size),
	}
	if opts.Time != nil {
		out.TimeValue = make([]float64, size)
	} else {
		out.TimeIndex = make([]int64, size)
	}

	k := 0
	for c := 0; c < p; c++ {
		for r := 0; r < n; r++ {
			out.PulseIteration[k] = int64(pulseIteration)
			out.PulseIndex[k] = int64(c)
			if opts.Time != nil {
				out.TimeValue[k] = opts.Time[r]
			} else {
				out.TimeIndex[k] = int64(r)
			}
			out.Flux[k] = Round(x.At(r, c), opts.SigPts)
			k++
		}
	}
	return out, nil
}

// Round rounds v to places decimal places using round-half-to-even.
// Negative places round to the left of the decimal point.
func Round(v float64, places int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	scale := math.Pow(10, float64(places))
	scaled := v * scale
	if math.IsInf(scaled, 0) {
		return v
	}
	return math.RoundToEven(scaled) / scale
}
