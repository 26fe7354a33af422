package matrix

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatrix_LayoutIndexing(t *testing.T) {
	cm := New(3, 2, ColumnMajor)
	rm := New(3, 2, RowMajor)

	for r := 0; r < 3; r++ {
		for c := 0; c < 2; c++ {
			v := float32(r*10 + c)
			cm.Set(r, c, v)
			rm.Set(r, c, v)
		}
	}

	// Same logical contents, different storage order.
	for r := 0; r < 3; r++ {
		for c := 0; c < 2; c++ {
			assert.Equal(t, cm.At(r, c), rm.At(r, c))
		}
	}
	assert.Equal(t, []float32{0, 10, 20, 1, 11, 21}, cm.Data())
	assert.Equal(t, []float32{0, 1, 10, 11, 20, 21}, rm.Data())
}

func TestMatrix_View_SharesStorage(t *testing.T) {
	backing := make([]float32, 6)
	v := View(backing, 2, 3, ColumnMajor)
	require.True(t, v.IsView())

	v.Set(1, 2, 42)
	assert.Equal(t, float32(42), backing[5])
}

func TestMatrix_View_SizeMismatchPanics(t *testing.T) {
	assert.Panics(t, func() {
		View(make([]float32, 5), 2, 3, ColumnMajor)
	})
}

func TestMatrix_Slice(t *testing.T) {
	m := New(2, 4, ColumnMajor)
	for c := 0; c < 4; c++ {
		m.Set(0, c, float32(c))
		m.Set(1, c, float32(c)+0.5)
	}

	s := m.Slice(1, 3)
	require.Equal(t, 2, s.Rows())
	require.Equal(t, 2, s.Cols())
	assert.Equal(t, float32(1), s.At(0, 0))
	assert.Equal(t, float32(2.5), s.At(1, 1))

	// Slice is a view: writes land in the parent.
	s.Set(0, 0, -1)
	assert.Equal(t, float32(-1), m.At(0, 1))
}

func TestMatrix_CopyFrom_ContractViolations(t *testing.T) {
	a := New(2, 2, ColumnMajor)
	assert.Panics(t, func() { a.CopyFrom(New(2, 3, ColumnMajor)) })
	assert.Panics(t, func() { a.CopyFrom(New(2, 2, RowMajor)) })
}

func TestMatrix_Col(t *testing.T) {
	m := New(3, 2, ColumnMajor)
	m.Set(0, 1, 7)
	m.Set(2, 1, 9)
	assert.Equal(t, []float32{7, 0, 9}, m.Col(1))

	rm := New(3, 2, RowMajor)
	assert.Panics(t, func() { rm.Col(0) })
}
