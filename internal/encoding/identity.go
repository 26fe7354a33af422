package encoding

import (
	"github.com/tinn-ml/tinn/internal/matrix"
	"github.com/tinn-ml/tinn/internal/parallel"
	"github.com/tinn-ml/tinn/internal/stream"
)

// Identity passes coordinates through an affine map: y = x*scale + offset.
type Identity struct {
	dims   int
	scale  float32
	offset float32
	par    parallel.Config
}

// NewIdentity creates an identity encoding over nDims dimensions.
// A zero scale means 1.
func NewIdentity(nDims int, scale, offset float32) *Identity {
	if scale == 0 {
		scale = 1
	}
	return &Identity{
		dims:   nDims,
		scale:  scale,
		offset: offset,
		par:    parallel.DefaultConfig(),
	}
}

// InputDims returns the raw dimension count.
func (e *Identity) InputDims() int { return e.dims }

// OutputDims returns the encoded dimension count, equal to the input count.
func (e *Identity) OutputDims() int { return e.dims }

// Forward applies the affine map per element.
func (e *Identity) Forward(s *stream.Stream, input *matrix.Matrix) *matrix.Matrix {
	checkInput("identity", input, e.dims)
	out := matrix.New(e.dims, input.Cols(), matrix.ColumnMajor)
	s.Do(func() {
		parallel.For(input.Cols(), func(c int) {
			in := input.Col(c)
			dst := out.Col(c)
			for i, v := range in {
				dst[i] = v*e.scale + e.offset
			}
		}, e.par)
	})
	return out
}

// Backward scales the output gradient back through the affine map.
func (e *Identity) Backward(s *stream.Stream, input, _, dOutput *matrix.Matrix) *matrix.Matrix {
	checkInput("identity", input, e.dims)
	dInput := matrix.New(e.dims, input.Cols(), matrix.ColumnMajor)
	s.Do(func() {
		parallel.For(input.Cols(), func(c int) {
			dOut := dOutput.Col(c)
			dst := dInput.Col(c)
			for i, v := range dOut {
				dst[i] = v * e.scale
			}
		}, e.par)
	})
	return dInput
}
