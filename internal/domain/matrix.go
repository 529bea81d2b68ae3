package domain

import (
	"fmt"
	"math"
)

// Matrix is a dense row-major matrix of signal samples.
// Rows are time samples and columns are pulses.
type Matrix struct {
	Rows, Cols int
	Data       []float64
}

// NewMatrix allocates a zero matrix.
func NewMatrix(rows, cols int) Matrix {
	return Matrix{Rows: rows, Cols: cols, Data: make([]float64, rows*cols)}
}

// MatrixFromRows copies a nested slice into a Matrix. All rows must have the
// same length.
func MatrixFromRows(rows [][]float64) (Matrix, error) {
	if len(rows) == 0 {
		return Matrix{}, nil
	}
	m := NewMatrix(len(rows), len(rows[0]))
	for i, r := range rows {
		if len(r) != m.Cols {
			return Matrix{}, fmt.Errorf("row %d has %d values, want %d", i, len(r), m.Cols)
		}
		copy(m.Data[i*m.Cols:], r)
	}
	return m, nil
}

// At returns element (i, j).
func (m Matrix) At(i, j int) float64 { return m.Data[i*m.Cols+j] }

// Set sets element (i, j).
func (m Matrix) Set(i, j int, v float64) { m.Data[i*m.Cols+j] = v }

// Row returns row i. The slice aliases the matrix data.
func (m Matrix) Row(i int) []float64 { return m.Data[i*m.Cols : (i+1)*m.Cols] }

// Slice returns a copy of the rows starting at row0 and the columns starting
// at col0. Offsets past the end yield an empty dimension.
func (m Matrix) Slice(row0, col0 int) Matrix {
	rows := max(m.Rows-row0, 0)
	cols := max(m.Cols-col0, 0)
	out := NewMatrix(rows, cols)
	if cols == 0 {
		return out
	}
	for i := 0; i < rows; i++ {
		copy(out.Row(i), m.Data[(row0+i)*m.Cols+col0:(row0+i+1)*m.Cols])
	}
	return out
}

// DropMissing returns a copy of m without the rows that contain a NaN.
func (m Matrix) DropMissing() Matrix {
	out := Matrix{Cols: m.Cols, Data: make([]float64, 0, len(m.Data))}
	for i := 0; i < m.Rows; i++ {
		row := m.Row(i)
		if hasNaN(row) {
			continue
		}
		out.Data = append(out.Data, row...)
		out.Rows++
	}
	return out
}

func hasNaN(vs []float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
