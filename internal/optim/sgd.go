package optim

import (
	"github.com/tinn-ml/tinn/config"
	"github.com/tinn-ml/tinn/internal/parallel"
	"github.com/tinn-ml/tinn/internal/stream"
)

// SGD is stochastic gradient descent with optional momentum and decoupled
// weight decay.
//
// Without momentum:
//
//	w -= lr * (g + wd*w)
//
// With momentum:
//
//	v = momentum*v + g + wd*w
//	w -= lr * v
type SGD struct {
	lr       float32
	momentum float32
	decay    float32

	n        int
	velocity []float32
	steps    int
	par      parallel.Config
}

// NewSGD constructs the optimizer from its configuration.
func NewSGD(cfg config.Optimizer) *SGD {
	return &SGD{
		lr:       defaultFloat(cfg.LearningRate, 1e-3),
		momentum: cfg.Momentum,
		decay:    cfg.WeightDecay,
		par:      parallel.DefaultConfig(),
	}
}

// Allocate sizes the momentum state.
func (o *SGD) Allocate(n int) {
	o.n = n
	if o.momentum != 0 {
		o.velocity = make([]float32, n)
	}
}

// LearningRate returns the current step size.
func (o *SGD) LearningRate() float32 { return o.lr }

// SetLearningRate replaces the step size for subsequent steps.
func (o *SGD) SetLearningRate(lr float32) { o.lr = lr }

// StepCount reports the number of applied steps.
func (o *SGD) StepCount() int { return o.steps }

// Step enqueues one descent update.
func (o *SGD) Step(s *stream.Stream, lossScale float32, weights, grads []float32) {
	s.Do(func() {
		checkBuffers("sgd", o.n, weights, grads)
		o.steps++
		invScale := 1 / lossScale
		parallel.For(o.n, func(i int) {
			g := grads[i]*invScale + o.decay*weights[i]
			if o.velocity != nil {
				o.velocity[i] = o.momentum*o.velocity[i] + g
				g = o.velocity[i]
			}
			weights[i] -= o.lr * g
		}, o.par)
	})
}
