// Package autodiff defines the differentiable-object capability that
// networks and encodings implement.
//
// Unlike tape-based systems, every object here carries its own exact adjoint:
// Backward is hand-derived from Forward and the pair is kept honest by the
// finite-difference checks in this package.
package autodiff

import (
	"math/rand"

	"github.com/tinn-ml/tinn/internal/matrix"
	"github.com/tinn-ml/tinn/internal/stream"
)

// Differentiable is the capability shared by every pipeline stage that maps
// one batch to another.
//
// Forward is a pure function of the input batch and the object's parameters;
// it must not mutate parameters and may allocate scratch scoped to the call.
// Backward computes the exact adjoint: given the forward pair and the
// gradient of some scalar with respect to the output, it returns the gradient
// with respect to the input, accumulating parameter gradients as a side
// effect for objects that have them.
//
// Both calls enqueue their work on the supplied stream; results are valid
// after the stream is synchronized.
type Differentiable interface {
	Forward(s *stream.Stream, input *matrix.Matrix) *matrix.Matrix
	Backward(s *stream.Stream, input, output, dOutput *matrix.Matrix) *matrix.Matrix

	// InputDims and OutputDims are fixed for the object's lifetime.
	InputDims() int
	OutputDims() int
}

// ParamObject is implemented by differentiable objects with trainable
// parameters. Parameters live in one flat buffer paired with a gradient
// buffer of identical shape; gradients accumulate across Backward calls until
// ZeroGrad.
type ParamObject interface {
	ParamCount() int
	Params() []float32
	Grads() []float32
	ZeroGrad()

	// Initialize draws fresh parameter values from rng.
	Initialize(rng *rand.Rand)
}

// ParamDifferentiable combines both capabilities.
type ParamDifferentiable interface {
	Differentiable
	ParamObject
}
