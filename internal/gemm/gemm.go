// Package gemm wraps the external float32 GEMM primitive used by the
// layer-by-layer network paths.
//
// All entry points express the three products a dense layer needs in terms of
// the pipeline's storage conventions: weights are RowMajor (outputs x inputs),
// activations and gradients are ColumnMajor (features x batch). A ColumnMajor
// matrix viewed through a row-major BLAS is its transpose, which the calls
// below account for.
package gemm

import (
	"fmt"

	"github.com/klauspost/cpuid/v2"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/tinn-ml/tinn/internal/matrix"
)

// batchBlock is the number of batch columns processed per GEMM call. Bounding
// it keeps the per-call working set near the L2 cache; derived once from the
// CPU cache geometry.
var batchBlock = func() int {
	l2 := cpuid.CPU.Cache.L2
	if l2 <= 0 {
		l2 = 512 * 1024
	}
	// Two 128-wide float32 activation panels per column.
	block := l2 / (2 * 128 * 4)
	if block < 128 {
		block = 128
	}
	return block
}()

// general adapts a ColumnMajor matrix to the row-major BLAS view (its
// transpose: batch x features).
func general(m *matrix.Matrix) blas32.General {
	if m.Layout() != matrix.ColumnMajor {
		panic(fmt.Sprintf("gemm: expected ColumnMajor operand, got %s", m.Layout()))
	}
	return blas32.General{
		Rows:   m.Cols(),
		Cols:   m.Rows(),
		Stride: m.Rows(),
		Data:   m.Data(),
	}
}

// weightGeneral views a RowMajor (out x in) weight buffer.
func weightGeneral(w []float32, out, in int) blas32.General {
	if len(w) < out*in {
		panic(fmt.Sprintf("gemm: weight buffer %d too small for %dx%d", len(w), out, in))
	}
	return blas32.General{Rows: out, Cols: in, Stride: in, Data: w[:out*in]}
}

// MulWeightsAct computes dst = W * act.
// W is RowMajor out x in; act is ColumnMajor in x batch; dst is ColumnMajor
// out x batch.
func MulWeightsAct(dst *matrix.Matrix, w []float32, out, in int, act *matrix.Matrix) {
	if act.Rows() != in || dst.Rows() != out || dst.Cols() != act.Cols() {
		panic(fmt.Sprintf("gemm: shape mismatch W[%dx%d] act[%dx%d] dst[%dx%d]",
			out, in, act.Rows(), act.Cols(), dst.Rows(), dst.Cols()))
	}
	wg := weightGeneral(w, out, in)
	for from := 0; from < act.Cols(); from += batchBlock {
		to := min(from+batchBlock, act.Cols())
		// dst_rm(b x out) = act_rm(b x in) * W^T(in x out)
		blas32.Gemm(blas.NoTrans, blas.Trans,
			1, general(act.Slice(from, to)), wg,
			0, general(dst.Slice(from, to)))
	}
}

// MulWeightsTAct computes dst = W^T * act, the adjoint product that carries an
// output gradient back to the layer input.
// W is RowMajor out x in; act is ColumnMajor out x batch; dst is ColumnMajor
// in x batch.
func MulWeightsTAct(dst *matrix.Matrix, w []float32, out, in int, act *matrix.Matrix) {
	if act.Rows() != out || dst.Rows() != in || dst.Cols() != act.Cols() {
		panic(fmt.Sprintf("gemm: shape mismatch W^T[%dx%d] act[%dx%d] dst[%dx%d]",
			in, out, act.Rows(), act.Cols(), dst.Rows(), dst.Cols()))
	}
	wg := weightGeneral(w, out, in)
	for from := 0; from < act.Cols(); from += batchBlock {
		to := min(from+batchBlock, act.Cols())
		// dst_rm(b x in) = act_rm(b x out) * W(out x in)
		blas32.Gemm(blas.NoTrans, blas.NoTrans,
			1, general(act.Slice(from, to)), wg,
			0, general(dst.Slice(from, to)))
	}
}

// AccumGradW accumulates gradW += dOut * act^T.
// dOut is ColumnMajor out x batch; act is ColumnMajor in x batch; gradW is
// RowMajor out x in and is accumulated into, never overwritten.
func AccumGradW(gradW []float32, out, in int, dOut, act *matrix.Matrix) {
	if dOut.Rows() != out || act.Rows() != in || dOut.Cols() != act.Cols() {
		panic(fmt.Sprintf("gemm: shape mismatch gradW[%dx%d] dOut[%dx%d] act[%dx%d]",
			out, in, dOut.Rows(), dOut.Cols(), act.Rows(), act.Cols()))
	}
	gg := weightGeneral(gradW, out, in)
	// gradW(out x in) += dOut_rm^T(out x b) * act_rm(b x in)
	blas32.Gemm(blas.Trans, blas.NoTrans,
		1, general(dOut), general(act),
		1, gg)
}
