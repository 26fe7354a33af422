//go:build windows

package webgpu

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinn-ml/tinn/internal/matrix"
	"github.com/tinn-ml/tinn/internal/network"
	"github.com/tinn-ml/tinn/internal/stream"
)

func TestFusedInference_MatchesCPUEngine(t *testing.T) {
	b, err := New()
	if err != nil {
		t.Skipf("no WebGPU device: %v", err)
	}
	defer b.Close()

	net, err := network.NewFullyFusedMLP(3, 2, 32, 2, network.ActivationSigmoid, network.ActivationNone)
	require.NoError(t, err)
	net.Initialize(rand.New(rand.NewSource(1)))

	rng := rand.New(rand.NewSource(2))
	in := matrix.New(3, 2*network.TileSize, matrix.ColumnMajor)
	d := in.Data()
	for i := range d {
		d[i] = rng.Float32()
	}

	s := stream.New()
	defer s.Close()
	want := net.Forward(s, in)
	s.Synchronize()

	got := matrix.New(2, in.Cols(), matrix.ColumnMajor)
	spec := FusedSpec{
		InputDims:        net.InputDims(),
		OutputDims:       net.OutputDims(),
		Width:            net.Width(),
		HiddenLayers:     net.HiddenLayerCount(),
		Activation:       uint32(net.Activation()),
		OutputActivation: uint32(net.OutputActivation()),
		Weights:          net.Params(),
	}
	require.NoError(t, b.FusedInference(spec, in, got))

	wd, gd := want.Data(), got.Data()
	for i := range wd {
		assert.InDelta(t, wd[i], gd[i], 1e-4, "element %d", i)
	}
}

func TestFusedInference_Validation(t *testing.T) {
	b, err := New()
	if err != nil {
		t.Skipf("no WebGPU device: %v", err)
	}
	defer b.Close()

	spec := FusedSpec{InputDims: 2, OutputDims: 1, Width: 16, HiddenLayers: 1}
	spec.Weights = make([]float32, spec.WeightCount())

	in := matrix.New(2, 100, matrix.ColumnMajor)
	out := matrix.New(1, 100, matrix.ColumnMajor)
	assert.Error(t, b.FusedInference(spec, in, out), "ragged batch must be rejected")

	spec.Weights = spec.Weights[:10]
	in = matrix.New(2, tileSize, matrix.ColumnMajor)
	out = matrix.New(1, tileSize, matrix.ColumnMajor)
	assert.Error(t, b.FusedInference(spec, in, out), "short weight buffer must be rejected")
}
