// Package matrix implements the batched matrix type passed between all
// pipeline stages.
//
// A Matrix is a fixed-size 2D float32 buffer of Rows (feature dimension) by
// Cols (batch size) with an explicit storage layout chosen at construction.
// Layout is never converted implicitly; producer and consumer of every
// pipeline stage must agree on it.
package matrix

import "fmt"

// Layout selects the element order of the backing buffer.
type Layout int

// Supported storage layouts.
const (
	// ColumnMajor stores each batch sample contiguously. This is the
	// default currency of the pipeline: column c is sample c.
	ColumnMajor Layout = iota
	// RowMajor stores each feature row contiguously.
	RowMajor
)

// String returns a human-readable layout name.
func (l Layout) String() string {
	switch l {
	case ColumnMajor:
		return "ColumnMajor"
	case RowMajor:
		return "RowMajor"
	default:
		return "Unknown"
	}
}

// Matrix is a batch of vectors: Rows features by Cols samples.
//
// A Matrix either owns its buffer (created by New) or is a non-owning view
// over externally owned storage (created by View or Slice). Dimensions and
// layout are fixed for the lifetime of the value.
type Matrix struct {
	data   []float32
	rows   int
	cols   int
	layout Layout
	view   bool
}

// New allocates an owning matrix of rows x cols in the given layout.
// Panics if either dimension is not positive; sizing is a construction-time
// contract, not a runtime condition.
func New(rows, cols int, layout Layout) *Matrix {
	if rows <= 0 || cols <= 0 {
		panic(fmt.Sprintf("matrix: invalid dimensions %dx%d", rows, cols))
	}
	return &Matrix{
		data:   make([]float32, rows*cols),
		rows:   rows,
		cols:   cols,
		layout: layout,
	}
}

// View wraps externally owned storage without copying.
// len(data) must be exactly rows*cols.
func View(data []float32, rows, cols int, layout Layout) *Matrix {
	if rows <= 0 || cols <= 0 {
		panic(fmt.Sprintf("matrix: invalid dimensions %dx%d", rows, cols))
	}
	if len(data) != rows*cols {
		panic(fmt.Sprintf("matrix: view over %d elements, need %d", len(data), rows*cols))
	}
	return &Matrix{
		data:   data,
		rows:   rows,
		cols:   cols,
		layout: layout,
		view:   true,
	}
}

// Rows returns the feature dimension.
func (m *Matrix) Rows() int { return m.rows }

// Cols returns the batch size.
func (m *Matrix) Cols() int { return m.cols }

// Layout returns the storage layout.
func (m *Matrix) Layout() Layout { return m.layout }

// IsView reports whether the matrix borrows externally owned storage.
func (m *Matrix) IsView() bool { return m.view }

// NumElements returns rows*cols.
func (m *Matrix) NumElements() int { return m.rows * m.cols }

// Data returns the backing buffer in storage order.
func (m *Matrix) Data() []float32 { return m.data }

// index maps (row, col) to a buffer offset respecting the layout.
// Out-of-range indices fault via the slice bounds check.
func (m *Matrix) index(row, col int) int {
	if m.layout == ColumnMajor {
		return col*m.rows + row
	}
	return row*m.cols + col
}

// At returns the element at (row, col).
func (m *Matrix) At(row, col int) float32 {
	return m.data[m.index(row, col)]
}

// Set stores v at (row, col).
func (m *Matrix) Set(row, col int, v float32) {
	m.data[m.index(row, col)] = v
}

// Col returns the contiguous storage of sample col.
// Only valid for ColumnMajor matrices.
func (m *Matrix) Col(col int) []float32 {
	if m.layout != ColumnMajor {
		panic("matrix: Col requires ColumnMajor layout")
	}
	return m.data[col*m.rows : (col+1)*m.rows]
}

// Slice returns a non-owning view over columns [from, to).
// Only valid for ColumnMajor matrices, where a column range is contiguous.
func (m *Matrix) Slice(from, to int) *Matrix {
	if m.layout != ColumnMajor {
		panic("matrix: Slice requires ColumnMajor layout")
	}
	if from < 0 || to > m.cols || from >= to {
		panic(fmt.Sprintf("matrix: invalid column range [%d, %d) of %d", from, to, m.cols))
	}
	return &Matrix{
		data:   m.data[from*m.rows : to*m.rows],
		rows:   m.rows,
		cols:   to - from,
		layout: ColumnMajor,
		view:   true,
	}
}

// Fill sets every element to v.
func (m *Matrix) Fill(v float32) {
	for i := range m.data {
		m.data[i] = v
	}
}

// CopyFrom copies src into m. Dimensions and layout must match exactly.
func (m *Matrix) CopyFrom(src *Matrix) {
	if m.rows != src.rows || m.cols != src.cols {
		panic(fmt.Sprintf("matrix: copy shape mismatch %dx%d vs %dx%d",
			m.rows, m.cols, src.rows, src.cols))
	}
	if m.layout != src.layout {
		panic(fmt.Sprintf("matrix: copy layout mismatch %s vs %s", m.layout, src.layout))
	}
	copy(m.data, src.data)
}

// SameShape reports whether two matrices agree on dimensions and layout.
func (m *Matrix) SameShape(other *Matrix) bool {
	return m.rows == other.rows && m.cols == other.cols && m.layout == other.layout
}
