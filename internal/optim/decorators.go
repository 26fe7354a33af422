package optim

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/tinn-ml/tinn/config"
	"github.com/tinn-ml/tinn/internal/stream"
)

// The decorators in this file wrap a nested optimizer. Their step counters
// advance on the caller side, which matches the trainer's single-goroutine
// use of an optimizer; the weight and state mutations themselves are
// enqueued on the stream like every other update.

// Average keeps an exponential moving average of the weights next to the
// live ones. The averaged copy typically evaluates better than the last
// iterate and is what inference should read after training settles.
type Average struct {
	inner Optimizer
	decay float32

	avg   []float32
	steps int
}

// NewAverage constructs the decorator from its configuration.
func NewAverage(cfg config.Optimizer, inner Optimizer) *Average {
	return &Average{
		inner: inner,
		decay: defaultFloat(cfg.EMADecay, 0.99),
	}
}

// Allocate sizes the averaged copy and the nested state.
func (o *Average) Allocate(n int) {
	o.inner.Allocate(n)
	o.avg = make([]float32, n)
}

// LearningRate returns the nested step size.
func (o *Average) LearningRate() float32 { return o.inner.LearningRate() }

// SetLearningRate replaces the nested step size.
func (o *Average) SetLearningRate(lr float32) { o.inner.SetLearningRate(lr) }

// StepCount reports the number of applied steps.
func (o *Average) StepCount() int { return o.steps }

// AveragedWeights returns the smoothed weight copy. Valid after the stream
// that ran the steps has been synchronized.
func (o *Average) AveragedWeights() []float32 { return o.avg }

// Step runs the nested update, then folds the new weights into the average.
// The first step seeds the average with a straight copy.
func (o *Average) Step(s *stream.Stream, lossScale float32, weights, grads []float32) {
	o.steps++
	first := o.steps == 1
	o.inner.Step(s, lossScale, weights, grads)
	s.Do(func() {
		if first {
			copy(o.avg, weights)
			return
		}
		for i, w := range weights {
			o.avg[i] = o.decay*o.avg[i] + (1-o.decay)*w
		}
	})
}

// Batched accumulates gradients over a fixed number of calls and applies the
// nested optimizer once per group with their mean, turning small physical
// batches into one larger logical batch.
type Batched struct {
	inner Optimizer
	group int

	accum []float32
	calls int
	steps int
}

// NewBatched constructs the decorator from its configuration.
func NewBatched(cfg config.Optimizer, inner Optimizer) (*Batched, error) {
	group := defaultInt(cfg.BatchSizeMultiplier, 16)
	if group < 1 {
		return nil, fmt.Errorf("optim: invalid batch size multiplier %d", cfg.BatchSizeMultiplier)
	}
	return &Batched{inner: inner, group: group}, nil
}

// Allocate sizes the gradient accumulator and the nested state.
func (o *Batched) Allocate(n int) {
	o.inner.Allocate(n)
	o.accum = make([]float32, n)
}

// LearningRate returns the nested step size.
func (o *Batched) LearningRate() float32 { return o.inner.LearningRate() }

// SetLearningRate replaces the nested step size.
func (o *Batched) SetLearningRate(lr float32) { o.inner.SetLearningRate(lr) }

// StepCount reports the number of calls, including accumulation-only ones.
func (o *Batched) StepCount() int { return o.steps }

// Step folds the gradient into the accumulator; every group-th call applies
// the nested optimizer with the mean gradient and resets the accumulator.
func (o *Batched) Step(s *stream.Stream, lossScale float32, weights, grads []float32) {
	o.steps++
	o.calls++
	scale := 1 / float32(o.group)
	s.Do(func() {
		for i, g := range grads {
			o.accum[i] += g * scale
		}
	})
	if o.calls < o.group {
		return
	}
	o.calls = 0
	o.inner.Step(s, lossScale, weights, o.accum)
	s.Do(func() {
		for i := range o.accum {
			o.accum[i] = 0
		}
	})
}

// ExponentialDecay multiplies the nested learning rate by a fixed base at a
// fixed step interval, after an optional warmup of undecayed steps.
type ExponentialDecay struct {
	inner    Optimizer
	baseLR   float32
	base     float32
	interval int
	start    int

	steps int
}

// NewExponentialDecay constructs the decorator from its configuration.
func NewExponentialDecay(cfg config.Optimizer, inner Optimizer) (*ExponentialDecay, error) {
	base := defaultFloat(cfg.DecayBase, 0.5)
	if base <= 0 || base > 1 {
		return nil, fmt.Errorf("optim: invalid decay base %v", cfg.DecayBase)
	}
	interval := defaultInt(cfg.DecayInterval, 1000)
	if interval < 1 {
		return nil, fmt.Errorf("optim: invalid decay interval %d", cfg.DecayInterval)
	}
	return &ExponentialDecay{
		inner:    inner,
		baseLR:   inner.LearningRate(),
		base:     base,
		interval: interval,
		start:    cfg.DecayStart,
	}, nil
}

// Allocate sizes the nested state.
func (o *ExponentialDecay) Allocate(n int) { o.inner.Allocate(n) }

// LearningRate returns the undecayed base rate.
func (o *ExponentialDecay) LearningRate() float32 { return o.baseLR }

// SetLearningRate replaces the undecayed base rate.
func (o *ExponentialDecay) SetLearningRate(lr float32) { o.baseLR = lr }

// StepCount reports the number of applied steps.
func (o *ExponentialDecay) StepCount() int { return o.steps }

// Step applies the schedule to the nested rate, then runs the nested update.
func (o *ExponentialDecay) Step(s *stream.Stream, lossScale float32, weights, grads []float32) {
	o.steps++
	lr := o.baseLR
	if o.steps > o.start {
		exponent := (o.steps - o.start) / o.interval
		if exponent > 0 {
			lr *= math32.Pow(o.base, float32(exponent))
		}
	}
	s.Do(func() {
		o.inner.SetLearningRate(lr)
	})
	o.inner.Step(s, lossScale, weights, grads)
}

// Lookahead keeps a slow copy of the weights. Every k nested steps the slow
// copy moves a fraction alpha toward the fast weights and the fast weights
// reset to it, which damps the oscillation of aggressive inner optimizers.
type Lookahead struct {
	inner Optimizer
	alpha float32
	k     int

	slow  []float32
	calls int
	steps int
}

// NewLookahead constructs the decorator from its configuration.
func NewLookahead(cfg config.Optimizer, inner Optimizer) (*Lookahead, error) {
	alpha := defaultFloat(cfg.LookaheadAlpha, 0.5)
	if alpha <= 0 || alpha > 1 {
		return nil, fmt.Errorf("optim: invalid lookahead alpha %v", cfg.LookaheadAlpha)
	}
	k := defaultInt(cfg.LookaheadK, 5)
	if k < 1 {
		return nil, fmt.Errorf("optim: invalid lookahead interval %d", cfg.LookaheadK)
	}
	return &Lookahead{inner: inner, alpha: alpha, k: k}, nil
}

// Allocate sizes the slow copy and the nested state.
func (o *Lookahead) Allocate(n int) {
	o.inner.Allocate(n)
	o.slow = nil
}

// LearningRate returns the nested step size.
func (o *Lookahead) LearningRate() float32 { return o.inner.LearningRate() }

// SetLearningRate replaces the nested step size.
func (o *Lookahead) SetLearningRate(lr float32) { o.inner.SetLearningRate(lr) }

// StepCount reports the number of applied steps.
func (o *Lookahead) StepCount() int { return o.steps }

// Step runs the nested update; every k-th call synchronizes the slow and
// fast weights. The slow copy seeds lazily from the weights of the first
// step.
func (o *Lookahead) Step(s *stream.Stream, lossScale float32, weights, grads []float32) {
	o.steps++
	seed := o.slow == nil
	if seed {
		o.slow = make([]float32, len(weights))
	}
	s.Do(func() {
		if seed {
			copy(o.slow, weights)
		}
	})

	o.inner.Step(s, lossScale, weights, grads)

	o.calls++
	if o.calls < o.k {
		return
	}
	o.calls = 0
	s.Do(func() {
		for i := range o.slow {
			o.slow[i] += o.alpha * (weights[i] - o.slow[i])
			weights[i] = o.slow[i]
		}
	})
}
