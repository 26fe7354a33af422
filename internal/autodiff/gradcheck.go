package autodiff

import (
	"github.com/tinn-ml/tinn/internal/matrix"
	"github.com/tinn-ml/tinn/internal/stream"
)

// Finite-difference adjoint verification. Every Backward in the tree is
// checked against these in package tests: for a scalar objective
// J = <dOutput, Forward(input)>, dJ/dinput and dJ/dparams from Backward must
// match central differences of J.

// objective evaluates <dOutput, Forward(input)> synchronously.
func objective(s *stream.Stream, obj Differentiable, input, dOutput *matrix.Matrix) float32 {
	out := obj.Forward(s, input)
	s.Synchronize()
	var sum float32
	od := out.Data()
	gd := dOutput.Data()
	for i := range od {
		sum += od[i] * gd[i]
	}
	return sum
}

// NumericalInputGradient computes dJ/dinput by central differences.
func NumericalInputGradient(s *stream.Stream, obj Differentiable, input, dOutput *matrix.Matrix, eps float32) *matrix.Matrix {
	grad := matrix.New(input.Rows(), input.Cols(), input.Layout())
	data := input.Data()
	gd := grad.Data()
	for i := range data {
		orig := data[i]
		data[i] = orig + eps
		plus := objective(s, obj, input, dOutput)
		data[i] = orig - eps
		minus := objective(s, obj, input, dOutput)
		data[i] = orig
		gd[i] = (plus - minus) / (2 * eps)
	}
	return grad
}

// NumericalParamGradient computes dJ/dparams by central differences.
func NumericalParamGradient(s *stream.Stream, obj ParamDifferentiable, input, dOutput *matrix.Matrix, eps float32) []float32 {
	params := obj.Params()
	grad := make([]float32, len(params))
	for i := range params {
		orig := params[i]
		params[i] = orig + eps
		plus := objective(s, obj, input, dOutput)
		params[i] = orig - eps
		minus := objective(s, obj, input, dOutput)
		params[i] = orig
		grad[i] = (plus - minus) / (2 * eps)
	}
	return grad
}
