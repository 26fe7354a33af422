package gemm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinn-ml/tinn/internal/matrix"
	"github.com/tinn-ml/tinn/internal/stream"
)

// naive reference: dst[o,c] = sum_i W[o,i] * act[i,c]
func refMul(w []float32, out, in int, act *matrix.Matrix) *matrix.Matrix {
	dst := matrix.New(out, act.Cols(), matrix.ColumnMajor)
	for c := 0; c < act.Cols(); c++ {
		for o := 0; o < out; o++ {
			var sum float32
			for i := 0; i < in; i++ {
				sum += w[o*in+i] * act.At(i, c)
			}
			dst.Set(o, c, sum)
		}
	}
	return dst
}

func seqMatrix(rows, cols int) *matrix.Matrix {
	m := matrix.New(rows, cols, matrix.ColumnMajor)
	d := m.Data()
	for i := range d {
		d[i] = float32(i%7) - 3
	}
	return m
}

func TestMulWeightsAct(t *testing.T) {
	out, in, batch := 3, 4, 5
	w := []float32{1, 2, 3, 4, -1, 0, 1, 0, 0.5, 0.5, -0.5, 2}
	act := seqMatrix(in, batch)

	dst := matrix.New(out, batch, matrix.ColumnMajor)
	MulWeightsAct(dst, w, out, in, act)

	want := refMul(w, out, in, act)
	for c := 0; c < batch; c++ {
		for o := 0; o < out; o++ {
			assert.InDelta(t, want.At(o, c), dst.At(o, c), 1e-5)
		}
	}
}

func TestMulWeightsTAct_IsAdjoint(t *testing.T) {
	out, in, batch := 3, 4, 2
	w := make([]float32, out*in)
	for i := range w {
		w[i] = float32(i)*0.25 - 1
	}
	dOut := seqMatrix(out, batch)

	dIn := matrix.New(in, batch, matrix.ColumnMajor)
	MulWeightsTAct(dIn, w, out, in, dOut)

	// Reference: dIn[i,c] = sum_o W[o,i] * dOut[o,c]
	for c := 0; c < batch; c++ {
		for i := 0; i < in; i++ {
			var sum float32
			for o := 0; o < out; o++ {
				sum += w[o*in+i] * dOut.At(o, c)
			}
			assert.InDelta(t, sum, dIn.At(i, c), 1e-5)
		}
	}
}

func TestAccumGradW_Accumulates(t *testing.T) {
	out, in, batch := 2, 3, 4
	dOut := seqMatrix(out, batch)
	act := seqMatrix(in, batch)

	gradW := make([]float32, out*in)
	AccumGradW(gradW, out, in, dOut, act)
	first := append([]float32(nil), gradW...)
	AccumGradW(gradW, out, in, dOut, act)

	for i := range gradW {
		assert.InDelta(t, 2*first[i], gradW[i], 1e-5, "second call must accumulate, not overwrite")
	}

	// Spot check one entry against the definition.
	var want float32
	for c := 0; c < batch; c++ {
		want += dOut.At(1, c) * act.At(2, c)
	}
	assert.InDelta(t, want, first[1*in+2], 1e-5)
}

func TestMulWeightsAct_ShapeMismatchPanics(t *testing.T) {
	act := seqMatrix(4, 2)
	dst := matrix.New(3, 2, matrix.ColumnMajor)
	assert.Panics(t, func() {
		MulWeightsAct(dst, make([]float32, 3*5), 3, 5, act)
	})
}

func TestWorkspace_LazyGrowAndFree(t *testing.T) {
	s := stream.New()
	defer s.Close()
	defer FreeWorkspace(s)

	buf := Acquire(s, 100)
	require.Len(t, buf, 100)
	size := WorkspaceSize(s)
	require.GreaterOrEqual(t, size, 100)

	// Smaller request reuses the same allocation.
	_ = Acquire(s, 10)
	assert.Equal(t, size, WorkspaceSize(s))

	// Larger request grows it.
	_ = Acquire(s, 1000)
	assert.GreaterOrEqual(t, WorkspaceSize(s), 1000)

	FreeWorkspace(s)
	assert.Equal(t, 0, WorkspaceSize(s))
}

func TestWorkspace_PerStream(t *testing.T) {
	s1, s2 := stream.New(), stream.New()
	defer s1.Close()
	defer s2.Close()
	defer FreeWorkspace(s1)
	defer FreeWorkspace(s2)

	_ = Acquire(s1, 64)
	assert.Equal(t, 0, WorkspaceSize(s2), "workspaces are per stream")
}
