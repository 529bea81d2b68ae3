package domain

// Canonical column names, in storage order. Low-cardinality sorted columns
// come first so the columnar sink compresses them well.
const (
	ColPulseIteration = "pulse_iteration"
	ColPulseIndex     = "pulse_index"
	ColTimeIndex      = "time_index"
	ColFlux           = "flux"
)

// Columns is the fixed column order of the canonical table.
var Columns = []string{ColPulseIteration, ColPulseIndex, ColTimeIndex, ColFlux}

// Row is one row of the canonical table. TimeIndex holds either an integer
// sample ordinal or an explicit time value, see Table.IntegerTime.
type Row struct {
	PulseIteration int64
	PulseIndex     int64
	TimeIndex      float64
	Flux           float64
}

// Table is the canonical long-form table stored column by column.
//
// Exactly one of TimeIndex and TimeValue is populated: TimeIndex holds
// integer sample ordinals, TimeValue holds explicitly supplied time values
// (possibly fractional or non-uniform).
type Table struct {
	PulseIteration []int64
	PulseIndex     []int64
	TimeIndex      []int64
	TimeValue      []float64
	Flux           []float64
}

// Len returns the number of rows.
func (t Table) Len() int { return len(t.Flux) }

// IntegerTime reports whether the time_index column is integer typed.
func (t Table) IntegerTime() bool { return t.TimeValue == nil }

// Row returns row i.
func (t Table) Row(i int) Row {
	r := Row{
		PulseIteration: t.PulseIteration[i],
		PulseIndex:     t.PulseIndex[i],
		Flux:           t.Flux[i],
	}
	if t.IntegerTime() {
		r.TimeIndex = float64(t.TimeIndex[i])
	} else {
		r.TimeIndex = t.TimeValue[i]
	}
	return r
}

// Rows materializes every row, in table order.
func (t Table) Rows() []Row {
	out := make([]Row, t.Len())
	for i := range out {
		out[i] = t.Row(i)
	}
	return out
}

// Concat appends tables in order. If any input carries explicit time values
// the result does too and integer time indexes are widened to float.
func Concat(tables ...Table) Table {
	var n int
	floatTime := false
	for _, t := range tables {
		n += t.Len()
		if !t.IntegerTime() {
			floatTime = true
		}
	}

	out := Table{
		PulseIteration: make([]int64, 0, n),
		PulseIndex:     make([]int64, 0, n),
		Flux:           make([]float64, 0, n),
	}
	if floatTime {
		out.TimeValue = make([]float64, 0, n)
	} else {
		out.TimeIndex = make([]int64, 0, n)
	}

	for _, t := range tables {
		out.PulseIteration = append(out.PulseIteration, t.PulseIteration...)
		out.PulseIndex = append(out.PulseIndex, t.PulseIndex...)
		out.Flux = append(out.Flux, t.Flux...)
		switch {
		case !floatTime:
			out.TimeIndex = append(out.TimeIndex, t.TimeIndex...)
		case t.IntegerTime():
			for _, v := range t.TimeIndex {
				out.TimeValue = append(out.TimeValue, float64(v))
			}
		default:
			out.TimeValue = append(out.TimeValue, t.TimeValue...)
		}
	}
	return out
}
