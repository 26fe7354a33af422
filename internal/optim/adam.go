package optim

import (
	"github.com/chewxy/math32"

	"github.com/tinn-ml/tinn/config"
	"github.com/tinn-ml/tinn/internal/parallel"
	"github.com/tinn-ml/tinn/internal/stream"
)

// Adam maintains exponential moving averages of the gradient and its square
// with bias correction, plus decoupled weight decay.
//
// With a positive AdaBoundFinalLR the per-parameter effective rate
// lr / (sqrt(v̂)+eps) is clamped into a band that tightens toward the final
// rate as training progresses, so the optimizer transitions from Adam-like
// to SGD-like behavior.
type Adam struct {
	lr      float32
	beta1   float32
	beta2   float32
	epsilon float32
	decay   float32
	finalLR float32

	n     int
	m     []float32
	v     []float32
	steps int
	par   parallel.Config
}

// adaBoundGamma controls how fast the AdaBound band converges.
const adaBoundGamma = 1e-3

// NewAdam constructs the optimizer from its configuration.
func NewAdam(cfg config.Optimizer) *Adam {
	return &Adam{
		lr:      defaultFloat(cfg.LearningRate, 1e-3),
		beta1:   defaultFloat(cfg.Beta1, 0.9),
		beta2:   defaultFloat(cfg.Beta2, 0.999),
		epsilon: defaultFloat(cfg.Epsilon, 1e-8),
		decay:   cfg.WeightDecay,
		finalLR: cfg.AdaBoundFinalLR,
		par:     parallel.DefaultConfig(),
	}
}

// Allocate sizes the moment buffers.
func (o *Adam) Allocate(n int) {
	o.n = n
	o.m = make([]float32, n)
	o.v = make([]float32, n)
}

// LearningRate returns the current step size.
func (o *Adam) LearningRate() float32 { return o.lr }

// SetLearningRate replaces the step size for subsequent steps.
func (o *Adam) SetLearningRate(lr float32) { o.lr = lr }

// StepCount reports the number of applied steps.
func (o *Adam) StepCount() int { return o.steps }

// Step enqueues one moment update and weight step.
func (o *Adam) Step(s *stream.Stream, lossScale float32, weights, grads []float32) {
	s.Do(func() {
		checkBuffers("adam", o.n, weights, grads)
		o.steps++
		t := float32(o.steps)
		invScale := 1 / lossScale
		corr1 := 1 - math32.Pow(o.beta1, t)
		corr2 := 1 - math32.Pow(o.beta2, t)

		var lower, upper float32
		bounded := o.finalLR > 0
		if bounded {
			lower = o.finalLR * (1 - 1/(adaBoundGamma*t+1))
			upper = o.finalLR * (1 + 1/(adaBoundGamma*t))
		}

		parallel.For(o.n, func(i int) {
			g := grads[i] * invScale
			o.m[i] = o.beta1*o.m[i] + (1-o.beta1)*g
			o.v[i] = o.beta2*o.v[i] + (1-o.beta2)*g*g

			mHat := o.m[i] / corr1
			vHat := o.v[i] / corr2

			rate := o.lr / (math32.Sqrt(vHat) + o.epsilon)
			if bounded {
				if rate < lower {
					rate = lower
				} else if rate > upper {
					rate = upper
				}
			}
			weights[i] -= rate*mHat + o.lr*o.decay*weights[i]
		}, o.par)
	})
}
