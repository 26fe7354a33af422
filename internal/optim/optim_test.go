package optim_test

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinn-ml/tinn/config"
	"github.com/tinn-ml/tinn/internal/optim"
	"github.com/tinn-ml/tinn/internal/stream"
)

// descend runs steps iterations of w -= opt(grad f(w)) on the quadratic
// f(w) = 0.5*||w||^2, whose gradient is w itself.
func descend(t *testing.T, opt optim.Optimizer, w []float32, steps int) {
	t.Helper()
	s := stream.New()
	defer s.Close()

	opt.Allocate(len(w))
	grads := make([]float32, len(w))
	for i := 0; i < steps; i++ {
		s.Do(func() { copy(grads, w) })
		opt.Step(s, 1, w, grads)
	}
	s.Synchronize()
}

func TestCreate_Errors(t *testing.T) {
	_, err := optim.Create(config.Optimizer{Type: "lbfgs"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lbfgs")

	_, err = optim.Create(config.Optimizer{Type: "lookahead"})
	require.Error(t, err, "decorator without a nested optimizer")

	_, err = optim.Create(config.Optimizer{Type: "sgd", LearningRate: -1})
	require.Error(t, err)
}

func TestCreate_NestedComposition(t *testing.T) {
	opt, err := optim.Create(config.Optimizer{
		Type:       "lookahead",
		LookaheadK: 3,
		Nested: &config.Optimizer{
			Type: "exponential_decay",
			Nested: &config.Optimizer{
				Type:         "adam",
				LearningRate: 0.01,
			},
		},
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.01, opt.LearningRate(), 1e-9)
}

func TestSGD_Quadratic(t *testing.T) {
	opt := optim.NewSGD(config.Optimizer{LearningRate: 0.1})
	w := []float32{5, -3, 0.5}
	descend(t, opt, w, 100)
	for i, v := range w {
		assert.Less(t, math32.Abs(v), float32(1e-3), "weight %d", i)
	}
	assert.Equal(t, 100, opt.StepCount())
}

func TestSGD_LossScaleInvariance(t *testing.T) {
	s := stream.New()
	defer s.Close()

	run := func(scale float32) float32 {
		opt := optim.NewSGD(config.Optimizer{LearningRate: 0.1, Momentum: 0.9})
		opt.Allocate(1)
		w := []float32{1}
		g := []float32{2 * scale}
		opt.Step(s, scale, w, g)
		opt.Step(s, scale, w, g)
		s.Synchronize()
		return w[0]
	}
	assert.InDelta(t, run(1), run(128), 1e-6)
}

func TestAdam_Quadratic(t *testing.T) {
	// Adam settles into a limit cycle of roughly the learning rate on a
	// quadratic, so the tolerance sits above it.
	opt := optim.NewAdam(config.Optimizer{LearningRate: 0.01})
	w := []float32{5, -2}
	descend(t, opt, w, 1000)
	for i, v := range w {
		assert.Less(t, math32.Abs(v), float32(0.05), "weight %d", i)
	}
}

func TestAdam_Deterministic(t *testing.T) {
	run := func() []float32 {
		opt := optim.NewAdam(config.Optimizer{LearningRate: 0.01})
		w := []float32{1.5, -0.25, 3}
		descend(t, opt, w, 50)
		return w
	}
	assert.Equal(t, run(), run(), "identical inputs must give identical trajectories")
}

func TestAdam_BoundedConverges(t *testing.T) {
	opt := optim.NewAdam(config.Optimizer{LearningRate: 0.1, AdaBoundFinalLR: 0.05})
	w := []float32{4}
	descend(t, opt, w, 500)
	assert.Less(t, math32.Abs(w[0]), float32(0.1))
}

func TestNovograd_Quadratic(t *testing.T) {
	opt := optim.NewNovograd(config.Optimizer{LearningRate: 0.05, Beta1: 0.5})
	w := []float32{3, -1}
	descend(t, opt, w, 400)
	for i, v := range w {
		assert.Less(t, math32.Abs(v), float32(0.3), "weight %d", i)
	}
}

func TestShampoo_Quadratic(t *testing.T) {
	opt, err := optim.NewShampoo(config.Optimizer{LearningRate: 0.05, Beta1: 0.01, BlockSize: 4})
	require.NoError(t, err)
	w := []float32{5, -4, 3, -2, 1}
	descend(t, opt, w, 300)
	for i, v := range w {
		assert.Less(t, math32.Abs(v), float32(0.3), "weight %d", i)
	}
}

func TestBatched_AppliesEveryGroup(t *testing.T) {
	s := stream.New()
	defer s.Close()

	opt, err := optim.NewBatched(
		config.Optimizer{BatchSizeMultiplier: 2},
		optim.NewSGD(config.Optimizer{LearningRate: 0.1}),
	)
	require.NoError(t, err)
	opt.Allocate(1)

	w := []float32{1}
	g := []float32{2}

	opt.Step(s, 1, w, g)
	s.Synchronize()
	assert.InDelta(t, 1.0, w[0], 1e-6, "first call only accumulates")

	opt.Step(s, 1, w, g)
	s.Synchronize()
	assert.InDelta(t, 0.8, w[0], 1e-6, "second call applies the mean gradient")
}

func TestAverage_TracksEMA(t *testing.T) {
	s := stream.New()
	defer s.Close()

	opt := optim.NewAverage(
		config.Optimizer{EMADecay: 0.5},
		optim.NewSGD(config.Optimizer{LearningRate: 0.1}),
	)
	opt.Allocate(1)

	w := []float32{1}
	g := []float32{1}

	opt.Step(s, 1, w, g)
	s.Synchronize()
	assert.InDelta(t, 0.9, opt.AveragedWeights()[0], 1e-6, "first step seeds the average")

	opt.Step(s, 1, w, g)
	s.Synchronize()
	assert.InDelta(t, 0.85, opt.AveragedWeights()[0], 1e-6)
}

func TestExponentialDecay_Schedule(t *testing.T) {
	s := stream.New()
	defer s.Close()

	inner := optim.NewSGD(config.Optimizer{LearningRate: 1})
	opt, err := optim.NewExponentialDecay(
		config.Optimizer{DecayBase: 0.5, DecayInterval: 2},
		inner,
	)
	require.NoError(t, err)
	opt.Allocate(1)

	w := []float32{1}
	g := []float32{0}

	opt.Step(s, 1, w, g)
	s.Synchronize()
	assert.InDelta(t, 1.0, inner.LearningRate(), 1e-9, "no decay before the first interval")

	opt.Step(s, 1, w, g)
	s.Synchronize()
	assert.InDelta(t, 0.5, inner.LearningRate(), 1e-9, "one interval elapsed")
}

func TestLookahead_SynchronizesSlowWeights(t *testing.T) {
	s := stream.New()
	defer s.Close()

	opt, err := optim.NewLookahead(
		config.Optimizer{LookaheadAlpha: 0.5, LookaheadK: 2},
		optim.NewSGD(config.Optimizer{LearningRate: 0.1}),
	)
	require.NoError(t, err)
	opt.Allocate(1)

	w := []float32{1}
	g := []float32{1}

	opt.Step(s, 1, w, g)
	s.Synchronize()
	assert.InDelta(t, 0.9, w[0], 1e-6, "fast weights move freely between syncs")

	// Second step: fast weights reach 0.8, then pull back halfway to the
	// slow copy at 1.0.
	opt.Step(s, 1, w, g)
	s.Synchronize()
	assert.InDelta(t, 0.9, w[0], 1e-6)
}
