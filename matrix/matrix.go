// Copyright 2025 Tinn ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package matrix provides the batched float32 matrix type shared by every
// pipeline stage.
//
// Batches are ColumnMajor with one sample per column, so a batch of 3D
// points over 128 samples is a 3 x 128 matrix:
//
//	in := matrix.New(3, 128, matrix.ColumnMajor)
//	copy(in.Col(0), []float32{x, y, z})
package matrix

import (
	"github.com/tinn-ml/tinn/internal/matrix"
)

// Matrix is a dense float32 matrix with an explicit storage layout.
type Matrix = matrix.Matrix

// Layout selects the element order of a matrix.
type Layout = matrix.Layout

// Storage layouts. ColumnMajor is the batch convention: one sample per
// column, contiguous.
const (
	ColumnMajor = matrix.ColumnMajor
	RowMajor    = matrix.RowMajor
)

// New allocates a zeroed matrix.
func New(rows, cols int, layout Layout) *Matrix {
	return matrix.New(rows, cols, layout)
}

// View wraps an existing buffer without copying. The buffer length must
// match the shape exactly.
func View(data []float32, rows, cols int, layout Layout) *Matrix {
	return matrix.View(data, rows, cols, layout)
}
