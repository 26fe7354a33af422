package optim

import (
	"github.com/chewxy/math32"

	"github.com/tinn-ml/tinn/config"
	"github.com/tinn-ml/tinn/internal/parallel"
	"github.com/tinn-ml/tinn/internal/stream"
)

// Novograd normalizes the gradient by a per-group second moment before the
// momentum accumulation, which makes the step size insensitive to the
// gradient magnitude:
//
//	v_g = beta2*v_g + (1-beta2)*||g_g||^2
//	m   = beta1*m + g/(sqrt(v_g)+eps) + wd*w
//	w  -= lr * m
//
// Groups are fixed-size spans of the flat buffer; BlockSize sets the span
// length.
type Novograd struct {
	lr        float32
	beta1     float32
	beta2     float32
	epsilon   float32
	decay     float32
	groupSize int

	n      int
	m      []float32
	vGroup []float32
	steps  int
	par    parallel.Config
}

// NewNovograd constructs the optimizer from its configuration.
func NewNovograd(cfg config.Optimizer) *Novograd {
	return &Novograd{
		lr:        defaultFloat(cfg.LearningRate, 1e-2),
		beta1:     defaultFloat(cfg.Beta1, 0.9),
		beta2:     defaultFloat(cfg.Beta2, 0.999),
		epsilon:   defaultFloat(cfg.Epsilon, 1e-8),
		decay:     cfg.WeightDecay,
		groupSize: defaultInt(cfg.BlockSize, 128),
		par:       parallel.DefaultConfig(),
	}
}

// Allocate sizes the momentum and group-moment state.
func (o *Novograd) Allocate(n int) {
	o.n = n
	o.m = make([]float32, n)
	o.vGroup = make([]float32, (n+o.groupSize-1)/o.groupSize)
}

// LearningRate returns the current step size.
func (o *Novograd) LearningRate() float32 { return o.lr }

// SetLearningRate replaces the step size for subsequent steps.
func (o *Novograd) SetLearningRate(lr float32) { o.lr = lr }

// StepCount reports the number of applied steps.
func (o *Novograd) StepCount() int { return o.steps }

// Step enqueues one normalized-gradient update.
func (o *Novograd) Step(s *stream.Stream, lossScale float32, weights, grads []float32) {
	s.Do(func() {
		checkBuffers("novograd", o.n, weights, grads)
		o.steps++
		invScale := 1 / lossScale

		parallel.For(len(o.vGroup), func(g int) {
			from := g * o.groupSize
			to := from + o.groupSize
			if to > o.n {
				to = o.n
			}

			var norm2 float32
			for i := from; i < to; i++ {
				gv := grads[i] * invScale
				norm2 += gv * gv
			}
			if o.steps == 1 {
				o.vGroup[g] = norm2
			} else {
				o.vGroup[g] = o.beta2*o.vGroup[g] + (1-o.beta2)*norm2
			}

			denom := math32.Sqrt(o.vGroup[g]) + o.epsilon
			for i := from; i < to; i++ {
				gv := grads[i]*invScale/denom + o.decay*weights[i]
				o.m[i] = o.beta1*o.m[i] + gv
				weights[i] -= o.lr * o.m[i]
			}
		}, o.par)
	})
}
