package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindow(t *testing.T) {
	assert := assert.New(t)

	w := NewWindow(6)
	assert.Empty(w.Values())

	for v := 1.0; v <= 5; v++ {
		w.Add(v)
	}
	assert.False(w.Full())
	assert.Equal([]float64{1, 2, 3, 4, 5}, w.Values())

	older, newer := w.Halves()
	assert.Nil(older)
	assert.Nil(newer)
	_, _, ok := w.Summaries()
	assert.False(ok)

	w.Add(6)
	assert.True(w.Full())
	older, newer = w.Halves()
	assert.Equal([]float64{1, 2, 3}, older)
	assert.Equal([]float64{4, 5, 6}, newer)

	// 1 2 3 4 5 6 add 8 add 8 => 3 4 5 | 6 8 8
	w.Add(8)
	w.Add(8)
	assert.Len(w.Values(), 6)
	older, newer = w.Halves()
	assert.Equal([]float64{3, 4, 5}, older)
	assert.Equal([]float64{6, 8, 8}, newer)
}

func TestWindowHalvesAreCopies(t *testing.T) {
	assert := assert.New(t)

	w := NewWindow(4)
	for _, v := range []float64{1, 2, 3, 4} {
		w.Add(v)
	}
	older, newer := w.Halves()
	older = append(older, 99)
	newer[0] = 99

	assert.Equal([]float64{1, 2, 3, 4}, w.Values())
	assert.Equal([]float64{1, 2, 99}, older)
}

func TestWindowSummaries(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	w := NewWindow(6)
	for _, v := range []float64{0, 1, 2, 10, 10, 10} {
		w.Add(v)
	}

	older, newer, ok := w.Summaries()
	require.True(ok)
	assert.Equal(3, older.N)
	assert.InDelta(1.0, older.Mean, 1e-12)
	assert.InDelta(1.0, older.Variance, 1e-12)
	assert.Equal(3, newer.N)
	assert.InDelta(10.0, newer.Mean, 1e-12)
	assert.InDelta(0.0, newer.Variance, 1e-12)

	// The oldest draw leaves the older half and the newer half shifts down
	w.Add(4)
	older, newer, ok = w.Summaries()
	require.True(ok)
	assert.InDelta(13.0/3, older.Mean, 1e-12)
	assert.InDelta(8.0, newer.Mean, 1e-12)
}

func TestWindowSizes(t *testing.T) {
	assert := assert.New(t)

	capOf := func(size int) int {
		w := NewWindow(size)
		for !w.Full() {
			w.Add(1)
		}
		return len(w.Values())
	}
	assert.Equal(4, capOf(5))
	assert.Equal(2, capOf(0))
	assert.Equal(2, capOf(1))

	w := NewWindow(2)
	w.Add(0.5)
	w.Add(1.5)
	older, newer := w.Halves()
	assert.Equal([]float64{0.5}, older)
	assert.Equal([]float64{1.5}, newer)
}
