package capture

import (
	"math"

	"github.com/bft-labs/tapgdc/internal/domain"
	"github.com/bft-labs/tapgdc/pkg/tdms"
)

// Column is one named column of a flat capture table.
type Column struct {
	// Name is the qualified channel path, e.g. /'1'/'Pulse 3'.
	Name   string
	Values []float64
}

// Frame is the flat table view of a capture file: one column per channel in
// file order, every column padded with NaN to the longest channel.
type Frame struct {
	Columns []Column
	Rows    int
}

// FrameFromFile flattens a decoded TDMS file.
func FrameFromFile(f *tdms.File) Frame {
	chans := f.Channels()
	var rows int
	for _, ch := range chans {
		rows = max(rows, len(ch.Data))
	}

	fr := Frame{Columns: make([]Column, len(chans)), Rows: rows}
	for i, ch := range chans {
		vals := make([]float64, rows)
		n := copy(vals, ch.Data)
		for j := n; j < rows; j++ {
			vals[j] = math.NaN()
		}
		fr.Columns[i] = Column{Name: ch.Path(), Values: vals}
	}
	return fr
}

// Select returns the matrix made of the columns at idx, in order.
func (f Frame) Select(idx []int) domain.Matrix {
	m := domain.NewMatrix(f.Rows, len(idx))
	for j, c := range idx {
		for i, v := range f.Columns[c].Values {
			m.Set(i, j, v)
		}
	}
	return m
}
