package encoding

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinn-ml/tinn/config"
	"github.com/tinn-ml/tinn/internal/autodiff"
	"github.com/tinn-ml/tinn/internal/matrix"
	"github.com/tinn-ml/tinn/internal/stream"
)

func randomBatch(rng *rand.Rand, dims, cols int) *matrix.Matrix {
	m := matrix.New(dims, cols, matrix.ColumnMajor)
	d := m.Data()
	for i := range d {
		d[i] = rng.Float32()
	}
	return m
}

// checkInputGradient compares analytic Backward against central differences.
func checkInputGradient(t *testing.T, enc Encoding, input *matrix.Matrix, tol float32) {
	t.Helper()
	s := stream.New()
	defer s.Close()

	rng := rand.New(rand.NewSource(7))
	output := enc.Forward(s, input)
	dOutput := matrix.New(enc.OutputDims(), input.Cols(), matrix.ColumnMajor)
	dd := dOutput.Data()
	for i := range dd {
		dd[i] = rng.Float32()*2 - 1
	}

	analytic := enc.Backward(s, input, output, dOutput)
	s.Synchronize()

	numeric := autodiff.NumericalInputGradient(s, enc, input, dOutput, 1e-3)
	ad, nd := analytic.Data(), numeric.Data()
	for i := range ad {
		assert.InDelta(t, nd[i], ad[i], float64(tol), "input gradient element %d", i)
	}
}

func TestCreate_UnknownType(t *testing.T) {
	_, err := Create(config.Encoding{Type: "fourier"}, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fourier")
}

func TestIdentity_ForwardBackward(t *testing.T) {
	s := stream.New()
	defer s.Close()

	enc := NewIdentity(2, 2, -1)
	in := matrix.New(2, 3, matrix.ColumnMajor)
	in.Set(0, 0, 0.5)
	in.Set(1, 2, 0.25)

	out := enc.Forward(s, in)
	s.Synchronize()
	assert.Equal(t, float32(0), out.At(0, 0))   // 0.5*2 - 1
	assert.Equal(t, float32(-0.5), out.At(1, 2)) // 0.25*2 - 1

	checkInputGradient(t, enc, in, 1e-3)
}

func TestOneBlob_PartitionOfUnity(t *testing.T) {
	s := stream.New()
	defer s.Close()

	enc, err := NewOneBlob(1, 8)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(1))
	in := randomBatch(rng, 1, 64)
	out := enc.Forward(s, in)
	s.Synchronize()

	for c := 0; c < 64; c++ {
		var sum float32
		for _, v := range out.Col(c) {
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-5, "bin activations of sample %d must sum to 1", c)
	}
}

func TestOneBlob_OutOfRangeClampsToBoundaryBins(t *testing.T) {
	s := stream.New()
	defer s.Close()

	enc, err := NewOneBlob(1, 4)
	require.NoError(t, err)

	in := matrix.New(1, 2, matrix.ColumnMajor)
	in.Set(0, 0, -3)
	in.Set(0, 1, 5)

	out := enc.Forward(s, in)
	s.Synchronize()

	assert.Equal(t, float32(1), out.At(0, 0), "far-left input collapses into the first bin")
	assert.Equal(t, float32(1), out.At(3, 1), "far-right input collapses into the last bin")
	assert.Equal(t, float32(0), out.At(1, 0))
	assert.Equal(t, float32(0), out.At(2, 1))
}

func TestOneBlob_InputGradient(t *testing.T) {
	enc, err := NewOneBlob(2, 6)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(2))
	in := randomBatch(rng, 2, 8)
	checkInputGradient(t, enc, in, 5e-3)
}

func TestFrequency_OutputDims(t *testing.T) {
	enc, err := NewFrequency(3, 5)
	require.NoError(t, err)
	assert.Equal(t, 2*5*3, enc.OutputDims())
}

func TestFrequency_DoublingKeepsLowestComponents(t *testing.T) {
	s := stream.New()
	defer s.Close()

	small, err := NewFrequency(2, 3)
	require.NoError(t, err)
	big, err := NewFrequency(2, 6)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(3))
	in := randomBatch(rng, 2, 4)

	outSmall := small.Forward(s, in)
	outBig := big.Forward(s, in)
	s.Synchronize()

	// Per input dim, the first 2*3 components must be identical.
	for c := 0; c < 4; c++ {
		for d := 0; d < 2; d++ {
			for k := 0; k < 6; k++ {
				assert.InDelta(t,
					outSmall.At(d*6+k, c),
					outBig.At(d*12+k, c),
					1e-6, "dim %d component %d sample %d", d, k, c)
			}
		}
	}
}

func TestFrequency_InputGradient(t *testing.T) {
	enc, err := NewFrequency(2, 4)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(4))
	in := randomBatch(rng, 2, 8)
	// Highest frequency is pi*2^3; scale tolerance accordingly.
	checkInputGradient(t, enc, in, 2e-2)
}

func TestComposite_SegmentsMustCoverInput(t *testing.T) {
	_, err := NewComposite(4, []config.Segment{
		{Dims: 3, Encoding: config.Encoding{Type: "identity"}},
	})
	require.Error(t, err)
}

func TestNRC_DimsAndGradient(t *testing.T) {
	enc, err := NewNRC(9)
	require.NoError(t, err)

	// 3 dims * 2*12 + 5 dims * 4 bins + 1 identity dim.
	assert.Equal(t, 3*24+5*4+1, enc.OutputDims())
	assert.Equal(t, 9, enc.InputDims())

	rng := rand.New(rand.NewSource(5))
	in := randomBatch(rng, 9, 4)
	checkInputGradient(t, enc, in, 5e-2)
}

func TestComposite_ForwardMatchesSegments(t *testing.T) {
	s := stream.New()
	defer s.Close()

	comp, err := NewComposite(2, []config.Segment{
		{Dims: 1, Encoding: config.Encoding{Type: "oneblob", Bins: 4}},
		{Dims: 1, Encoding: config.Encoding{Type: "identity"}},
	})
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(6))
	in := randomBatch(rng, 2, 3)
	out := comp.Forward(s, in)

	blob, err := NewOneBlob(1, 4)
	require.NoError(t, err)
	sub := matrix.New(1, 3, matrix.ColumnMajor)
	for c := 0; c < 3; c++ {
		sub.Set(0, c, in.At(0, c))
	}
	blobOut := blob.Forward(s, sub)
	s.Synchronize()

	for c := 0; c < 3; c++ {
		for i := 0; i < 4; i++ {
			assert.Equal(t, blobOut.At(i, c), out.At(i, c))
		}
		assert.Equal(t, in.At(1, c), out.At(4, c))
	}
}
