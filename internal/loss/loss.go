// Package loss implements the per-sample training losses.
//
// A Loss writes, for every output element of every sample, the loss value
// and its gradient with respect to the prediction. The scale factor folds
// batch normalization into the element values so the trainer can hand the
// gradient matrix straight to the network's backward pass.
//
// None of the variants detect numerical instability; overflow and NaN flow
// through as values for the caller to inspect.
package loss

import (
	"fmt"

	"github.com/tinn-ml/tinn/config"
	"github.com/tinn-ml/tinn/internal/matrix"
	"github.com/tinn-ml/tinn/internal/stream"
)

// Loss evaluates per-element loss values and prediction gradients.
type Loss interface {
	// Evaluate writes scale-adjusted loss values and d(loss)/d(prediction)
	// into values and gradients. All four matrices must share the
	// prediction's shape and layout.
	Evaluate(s *stream.Stream, scale float32, prediction, target, values, gradients *matrix.Matrix)
}

// Create builds the loss selected by cfg. Unknown types fail.
func Create(cfg config.Loss) (Loss, error) {
	switch cfg.Type {
	case "l1":
		return L1{}, nil
	case "l2":
		return L2{}, nil
	case "relative_l2":
		return RelativeL2{}, nil
	case "relative_l2_luminance":
		return RelativeL2Luminance{}, nil
	case "cross_entropy":
		return CrossEntropy{}, nil
	case "variance":
		return Variance{}, nil
	default:
		return nil, fmt.Errorf("loss: unknown type %q", cfg.Type)
	}
}

// checkShapes enforces the shared-shape contract.
func checkShapes(name string, prediction, target, values, gradients *matrix.Matrix) {
	for _, m := range []*matrix.Matrix{target, values, gradients} {
		if !prediction.SameShape(m) {
			panic(fmt.Sprintf("%s: operand shape/layout mismatch with prediction %dx%d %s",
				name, prediction.Rows(), prediction.Cols(), prediction.Layout()))
		}
	}
}

// elementwise enqueues f over every element index.
func elementwise(s *stream.Stream, prediction *matrix.Matrix, f func(i int)) {
	n := prediction.NumElements()
	s.Do(func() {
		for i := 0; i < n; i++ {
			f(i)
		}
	})
}
