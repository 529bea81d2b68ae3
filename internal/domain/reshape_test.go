package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReshapePulseMajorOrder(t *testing.T) {
	x, err := MatrixFromRows([][]float64{{1.0, 2.0}, {3.0, 4.0}})
	require.NoError(t, err)

	got, err := Reshape(x, 5, DefaultReshapeOptions())
	require.NoError(t, err)

	want := []Row{
		{PulseIteration: 5, PulseIndex: 0, TimeIndex: 0, Flux: 1.0},
		{PulseIteration: 5, PulseIndex: 0, TimeIndex: 1, Flux: 3.0},
		{PulseIteration: 5, PulseIndex: 1, TimeIndex: 0, Flux: 2.0},
		{PulseIteration: 5, PulseIndex: 1, TimeIndex: 1, Flux: 4.0},
	}
	assert.Equal(t, want, got.Rows())
	assert.True(t, got.IntegerTime())
	assert.Equal(t, []int64{0, 1, 0, 1}, got.TimeIndex)
}

func TestReshapeCounts(t *testing.T) {
	const n, p = 7, 3
	x := NewMatrix(n, p)
	for i := range x.Data {
		x.Data[i] = float64(i) / 3
	}

	got, err := Reshape(x, 0, DefaultReshapeOptions())
	require.NoError(t, err)
	require.Equal(t, n*p, got.Len())

	pulses := map[int64]int{}
	times := map[int64]int{}
	for i := 0; i < got.Len(); i++ {
		pulses[got.PulseIndex[i]]++
		times[got.TimeIndex[i]]++
	}
	require.Len(t, pulses, p)
	require.Len(t, times, n)
	for c := int64(0); c < p; c++ {
		assert.Equal(t, n, pulses[c], "pulse %d", c)
	}
	for r := int64(0); r < n; r++ {
		assert.Equal(t, p, times[r], "time %d", r)
	}
}

func TestReshapeExplicitTime(t *testing.T) {
	x, err := MatrixFromRows([][]float64{{1, 2}, {3, 4}, {5, 6}})
	require.NoError(t, err)

	opts := DefaultReshapeOptions()
	opts.Time = []float64{0.0, 0.25, 1.5}
	got, err := Reshape(x, 1, opts)
	require.NoError(t, err)

	assert.False(t, got.IntegerTime())
	assert.Nil(t, got.TimeIndex)
	assert.Equal(t, []float64{0.0, 0.25, 1.5, 0.0, 0.25, 1.5}, got.TimeValue)
	assert.Equal(t, []float64{1, 3, 5, 2, 4, 6}, got.Flux)
}

func TestReshapeTimeLengthMismatch(t *testing.T) {
	x := NewMatrix(3, 2)
	opts := DefaultReshapeOptions()
	opts.Time = []float64{0, 1}
	_, err := Reshape(x, 0, opts)
	require.Error(t, err)
}

func TestReshapeEmpty(t *testing.T) {
	got, err := Reshape(NewMatrix(0, 4), 2, DefaultReshapeOptions())
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())

	got, err = Reshape(NewMatrix(5, 0), 2, DefaultReshapeOptions())
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())
}

func TestReshapeRoundsFlux(t *testing.T) {
	x, err := MatrixFromRows([][]float64{{0.123456}, {-2.718281828}})
	require.NoError(t, err)

	got, err := Reshape(x, 0, DefaultReshapeOptions())
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1235, -2.7183}, got.Flux)
}

func TestRound(t *testing.T) {
	tests := []struct {
		in     float64
		places int
		want   float64
	}{
		{in: 2.5, places: 0, want: 2},
		{in: 3.5, places: 0, want: 4},
		{in: -2.5, places: 0, want: -2},
		{in: 0.125, places: 2, want: 0.12},
		{in: 1234.5678, places: -2, want: 1200},
		{in: 1.00004, places: 4, want: 1.0},
		{in: 7, places: 4, want: 7},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Round(tt.in, tt.places), "Round(%v, %d)", tt.in, tt.places)
	}

	assert.True(t, math.IsNaN(Round(math.NaN(), 4)))
	assert.True(t, math.IsInf(Round(math.Inf(1), 4), 1))
	assert.Equal(t, math.MaxFloat64, Round(math.MaxFloat64, 4))
}

func TestRoundIdempotent(t *testing.T) {
	values := []float64{0.1, 1.23456789, -9.87654321, 1e-7, 12345.678901, 0.00005, 3.14159265}
	for _, places := range []int{0, 2, 4, 6} {
		for _, v := range values {
			once := Round(v, places)
			assert.Equal(t, once, Round(once, places), "Round(%v, %d)", v, places)
		}
	}
}
