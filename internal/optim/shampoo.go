package optim

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/tinn-ml/tinn/config"
	"github.com/tinn-ml/tinn/internal/parallel"
	"github.com/tinn-ml/tinn/internal/stream"
)

// Shampoo preconditions each gradient block by the inverse fourth root of
// its accumulated second-moment matrix:
//
//	L_b = beta2*L_b + (1-beta2) * g_b g_b^T
//	w_b -= lr * m_b,  m_b = beta1*m_b + L_b^(-1/4) g_b
//
// The flat buffer is partitioned into blocks of BlockSize parameters; each
// block owns a BlockSize x BlockSize statistic. The matrix root comes from a
// symmetric eigendecomposition, which is too expensive to run every step, so
// preconditioners refresh on an interval and steps in between reuse the
// cached root.
type Shampoo struct {
	lr      float32
	beta1   float32
	beta2   float32
	epsilon float32
	decay   float32
	block   int

	n        int
	momentum []float32
	blocks   []shampooBlock
	steps    int
	par      parallel.Config
}

// shampooBlock holds one block's statistic and cached preconditioner, both
// size x size row-major float64.
type shampooBlock struct {
	from, size int
	stat       []float64
	precond    []float64
}

// shampooRefreshInterval is the number of steps between preconditioner
// recomputations.
const shampooRefreshInterval = 20

// NewShampoo constructs the optimizer from its configuration.
func NewShampoo(cfg config.Optimizer) (*Shampoo, error) {
	block := defaultInt(cfg.BlockSize, 32)
	if block < 1 {
		return nil, fmt.Errorf("optim: invalid shampoo block size %d", cfg.BlockSize)
	}
	return &Shampoo{
		lr:      defaultFloat(cfg.LearningRate, 1e-3),
		beta1:   defaultFloat(cfg.Beta1, 0.9),
		beta2:   defaultFloat(cfg.Beta2, 0.99),
		epsilon: defaultFloat(cfg.Epsilon, 1e-6),
		decay:   cfg.WeightDecay,
		block:   block,
		par:     parallel.DefaultConfig(),
	}, nil
}

// Allocate sizes the momentum buffer and the per-block statistics.
func (o *Shampoo) Allocate(n int) {
	o.n = n
	o.momentum = make([]float32, n)
	o.blocks = o.blocks[:0]
	for from := 0; from < n; from += o.block {
		size := o.block
		if from+size > n {
			size = n - from
		}
		b := shampooBlock{
			from:    from,
			size:    size,
			stat:    make([]float64, size*size),
			precond: make([]float64, size*size),
		}
		// Identity preconditioner until the first refresh.
		for i := 0; i < size; i++ {
			b.precond[i*size+i] = 1
		}
		o.blocks = append(o.blocks, b)
	}
}

// LearningRate returns the current step size.
func (o *Shampoo) LearningRate() float32 { return o.lr }

// SetLearningRate replaces the step size for subsequent steps.
func (o *Shampoo) SetLearningRate(lr float32) { o.lr = lr }

// StepCount reports the number of applied steps.
func (o *Shampoo) StepCount() int { return o.steps }

// Step enqueues one preconditioned update.
func (o *Shampoo) Step(s *stream.Stream, lossScale float32, weights, grads []float32) {
	s.Do(func() {
		checkBuffers("shampoo", o.n, weights, grads)
		o.steps++
		refresh := o.steps == 1 || o.steps%shampooRefreshInterval == 0
		invScale := float64(1 / lossScale)

		parallel.For(len(o.blocks), func(bi int) {
			b := &o.blocks[bi]
			k := b.size

			g := make([]float64, k)
			for i := 0; i < k; i++ {
				g[i] = float64(grads[b.from+i]) * invScale
			}

			for i := 0; i < k; i++ {
				for j := 0; j < k; j++ {
					b.stat[i*k+j] = float64(o.beta2)*b.stat[i*k+j] + float64(1-o.beta2)*g[i]*g[j]
				}
			}
			if refresh {
				o.refreshBlock(b)
			}

			for i := 0; i < k; i++ {
				var pg float64
				row := b.precond[i*k : (i+1)*k]
				for j := 0; j < k; j++ {
					pg += row[j] * g[j]
				}
				idx := b.from + i
				o.momentum[idx] = o.beta1*o.momentum[idx] + float32(pg)
				weights[idx] -= o.lr*o.momentum[idx] + o.lr*o.decay*weights[idx]
			}
		}, o.par)
	})
}

// refreshBlock recomputes precond = (stat + eps I)^(-1/4) from a symmetric
// eigendecomposition.
func (o *Shampoo) refreshBlock(b *shampooBlock) {
	k := b.size
	sym := mat.NewSymDense(k, nil)
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			v := b.stat[i*k+j]
			if i == j {
				v += float64(o.epsilon)
			}
			sym.SetSym(i, j, v)
		}
	}

	var eig mat.EigenSym
	if !eig.Factorize(sym, true) {
		// Keep the previous preconditioner when the factorization does
		// not converge.
		return
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	// precond = V diag(vals^(-1/4)) V^T
	roots := make([]float64, k)
	for i, v := range vals {
		if v < float64(o.epsilon) {
			v = float64(o.epsilon)
		}
		roots[i] = math.Pow(v, -0.25)
	}
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			var sum float64
			for e := 0; e < k; e++ {
				sum += vecs.At(i, e) * roots[e] * vecs.At(j, e)
			}
			b.precond[i*k+j] = sum
		}
	}
}
