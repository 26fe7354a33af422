// Package network implements the dense network variants at the center of the
// training pipeline.
//
// Two engine families share one interface: the fully fused engine evaluates
// every layer of a batch tile against worker-resident scratch memory in a
// single pass, and the GEMM-backed engines run one matrix-multiply step per
// layer through the external GEMM primitive and its shared workspace.
package network

import (
	"fmt"
	"math/rand"

	"github.com/chewxy/math32"

	"github.com/tinn-ml/tinn/config"
	"github.com/tinn-ml/tinn/internal/autodiff"
	"github.com/tinn-ml/tinn/internal/matrix"
	"github.com/tinn-ml/tinn/internal/stream"
)

// WeightUsage selects which precision/layout view of the weights an engine
// pass reads.
type WeightUsage int

// Weight views. A single logical weight update must be visible through all
// three without caller synchronization beyond stream ordering; engines
// refresh the derived views on the stream whenever the master changes.
const (
	// WeightsInference is the reduced-precision view of the inference path.
	WeightsInference WeightUsage = iota
	// WeightsForward is the full-precision master read by training forward.
	WeightsForward
	// WeightsBackward is the transposed full-precision view read by the
	// backward pass.
	WeightsBackward
)

// Network is a differentiable object with trainable parameters and a
// reduced-precision inference path.
type Network interface {
	autodiff.ParamDifferentiable

	// Inference evaluates the network through the reduced-precision
	// weight view, writing into the caller's output matrix. It skips all
	// gradient bookkeeping.
	Inference(s *stream.Stream, input, output *matrix.Matrix)

	// RefreshViews enqueues reconstruction of the derived weight views
	// from the full-precision master. Callers that mutate Params()
	// directly (the optimizer step) must follow with RefreshViews on the
	// same stream.
	RefreshViews(s *stream.Stream)

	// SetParams enqueues replacement of the full-precision master and a
	// view refresh. Panics if the length does not match ParamCount.
	SetParams(s *stream.Stream, params []float32)
}

// Create builds the network selected by cfg, mapping nInputDims to
// nOutputDims. Unknown types, activations, or invalid dimension options fail
// construction; no partially constructed network is ever returned.
func Create(cfg config.Network, nInputDims, nOutputDims int) (Network, error) {
	if nInputDims <= 0 || nOutputDims <= 0 {
		return nil, fmt.Errorf("network: invalid dimensions %d -> %d", nInputDims, nOutputDims)
	}

	act, err := ActivationFromString(cfg.Activation)
	if err != nil {
		return nil, err
	}
	outAct, err := ActivationFromString(cfg.OutputActivation)
	if err != nil {
		return nil, err
	}

	switch cfg.Type {
	case "fully_fused_mlp":
		return NewFullyFusedMLP(nInputDims, nOutputDims, cfg.Neurons, cfg.HiddenLayers, act, outAct)
	case "mlp":
		return NewMLP(nInputDims, nOutputDims, cfg.Neurons, cfg.HiddenLayers, act, outAct)
	case "resnet":
		return NewResNet(nInputDims, nOutputDims, cfg.Neurons, cfg.HiddenLayers, cfg.Blocks, act, outAct)
	default:
		return nil, fmt.Errorf("network: unknown type %q", cfg.Type)
	}
}

// checkBatch enforces the shared input contract of every engine.
func checkBatch(name string, m *matrix.Matrix, rows int) {
	if m.Layout() != matrix.ColumnMajor {
		panic(fmt.Sprintf("%s: batch must be ColumnMajor, got %s", name, m.Layout()))
	}
	if m.Rows() != rows {
		panic(fmt.Sprintf("%s: batch has %d dims, network expects %d", name, m.Rows(), rows))
	}
}

// xavierInit fills a row-major out x in weight block with Xavier/Glorot
// uniform values: U(-sqrt(6/(fanIn+fanOut)), +sqrt(6/(fanIn+fanOut))).
func xavierInit(rng *rand.Rand, w []float32, out, in int) {
	bound := math32.Sqrt(6 / float32(in+out))
	for i := range w[:out*in] {
		w[i] = (rng.Float32()*2 - 1) * bound
	}
}
