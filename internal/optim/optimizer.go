// Package optim implements the optimizers that consume the gradients
// accumulated by a network's backward pass.
//
// Base optimizers (SGD, Adam, Novograd, Shampoo) own per-parameter state
// sized by Allocate. Decorators (Average, Batched, ExponentialDecay,
// Lookahead) wrap a nested optimizer and compose through the configuration's
// Nested field.
//
// Gradients arrive pre-multiplied by the trainer's loss scale; every
// optimizer divides by the scale it is handed before consuming a gradient.
package optim

import (
	"fmt"

	"github.com/tinn-ml/tinn/config"
	"github.com/tinn-ml/tinn/internal/stream"
)

// Optimizer advances a flat weight buffer from a flat gradient buffer.
//
// Step enqueues the update on the stream; weights and grads must stay valid
// until the stream drains. Allocate must be called once with the parameter
// count before the first Step.
type Optimizer interface {
	Allocate(n int)
	Step(s *stream.Stream, lossScale float32, weights, grads []float32)

	LearningRate() float32
	SetLearningRate(lr float32)

	// StepCount reports how many Steps have been applied.
	StepCount() int
}

// WeightAverager is implemented by decorators that maintain a smoothed copy
// of the weights alongside the live ones.
type WeightAverager interface {
	AveragedWeights() []float32
}

// Create builds the optimizer selected by cfg, recursing through Nested for
// decorators.
func Create(cfg config.Optimizer) (Optimizer, error) {
	if cfg.LearningRate < 0 {
		return nil, fmt.Errorf("optim: negative learning rate %v", cfg.LearningRate)
	}

	nested := func() (Optimizer, error) {
		if cfg.Nested == nil {
			return nil, fmt.Errorf("optim: %q requires a nested optimizer", cfg.Type)
		}
		return Create(*cfg.Nested)
	}

	switch cfg.Type {
	case "sgd":
		return NewSGD(cfg), nil
	case "adam":
		return NewAdam(cfg), nil
	case "novograd":
		return NewNovograd(cfg), nil
	case "shampoo":
		return NewShampoo(cfg)
	case "average":
		inner, err := nested()
		if err != nil {
			return nil, err
		}
		return NewAverage(cfg, inner), nil
	case "batched":
		inner, err := nested()
		if err != nil {
			return nil, err
		}
		return NewBatched(cfg, inner)
	case "exponential_decay":
		inner, err := nested()
		if err != nil {
			return nil, err
		}
		return NewExponentialDecay(cfg, inner)
	case "lookahead":
		inner, err := nested()
		if err != nil {
			return nil, err
		}
		return NewLookahead(cfg, inner)
	default:
		return nil, fmt.Errorf("optim: unknown type %q", cfg.Type)
	}
}

// defaultFloat returns v, or def when v is zero.
func defaultFloat(v, def float32) float32 {
	if v == 0 {
		return def
	}
	return v
}

// defaultInt returns v, or def when v is zero.
func defaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

// checkBuffers enforces the shared Step contract.
func checkBuffers(name string, n int, weights, grads []float32) {
	if n == 0 {
		panic(name + ": Step before Allocate")
	}
	if len(weights) != n || len(grads) != n {
		panic(fmt.Sprintf("%s: buffer sizes %d/%d do not match allocated %d",
			name, len(weights), len(grads), n))
	}
}
