package loss

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinn-ml/tinn/config"
	"github.com/tinn-ml/tinn/internal/matrix"
	"github.com/tinn-ml/tinn/internal/stream"
)

func evalLoss(t *testing.T, l Loss, scale float32, pred, target *matrix.Matrix) (*matrix.Matrix, *matrix.Matrix) {
	t.Helper()
	s := stream.New()
	defer s.Close()

	values := matrix.New(pred.Rows(), pred.Cols(), pred.Layout())
	gradients := matrix.New(pred.Rows(), pred.Cols(), pred.Layout())
	l.Evaluate(s, scale, pred, target, values, gradients)
	s.Synchronize()
	return values, gradients
}

// checkGradient verifies d(value)/d(prediction) by central differences.
func checkGradient(t *testing.T, l Loss, pred, target *matrix.Matrix, tol float64) {
	t.Helper()
	s := stream.New()
	defer s.Close()

	values := matrix.New(pred.Rows(), pred.Cols(), pred.Layout())
	gradients := matrix.New(pred.Rows(), pred.Cols(), pred.Layout())
	l.Evaluate(s, 1, pred, target, values, gradients)
	s.Synchronize()

	sumValues := func() float32 {
		l.Evaluate(s, 1, pred, target, values, gradients)
		s.Synchronize()
		var sum float32
		for _, v := range values.Data() {
			sum += v
		}
		return sum
	}

	analytic := append([]float32(nil), gradients.Data()...)
	p := pred.Data()
	const eps = 1e-3
	for i := range p {
		orig := p[i]
		p[i] = orig + eps
		plus := sumValues()
		p[i] = orig - eps
		minus := sumValues()
		p[i] = orig
		numeric := (plus - minus) / (2 * eps)
		// Relative losses hold their denominator fixed in the analytic
		// gradient; losses under test here must not.
		assert.InDelta(t, numeric, analytic[i], tol, "gradient element %d", i)
	}
}

func randPair(rng *rand.Rand, rows, cols int) (*matrix.Matrix, *matrix.Matrix) {
	pred := matrix.New(rows, cols, matrix.ColumnMajor)
	target := matrix.New(rows, cols, matrix.ColumnMajor)
	for i := range pred.Data() {
		pred.Data()[i] = rng.Float32()*2 - 1
		target.Data()[i] = rng.Float32()*2 - 1
	}
	return pred, target
}

func TestCreate_Variants(t *testing.T) {
	for _, typ := range []string{"l1", "l2", "relative_l2", "relative_l2_luminance", "cross_entropy", "variance"} {
		_, err := Create(config.Loss{Type: typ})
		assert.NoError(t, err, typ)
	}
	_, err := Create(config.Loss{Type: "huber"})
	require.Error(t, err)
}

func TestL2_ValuesAndGradient(t *testing.T) {
	pred := matrix.New(2, 2, matrix.ColumnMajor)
	target := matrix.New(2, 2, matrix.ColumnMajor)
	pred.Set(0, 0, 3)
	target.Set(0, 0, 1)

	values, gradients := evalLoss(t, L2{}, 0.5, pred, target)
	assert.InDelta(t, 0.5*4, values.At(0, 0), 1e-6)
	assert.InDelta(t, 0.5*2*2, gradients.At(0, 0), 1e-6)
	assert.Equal(t, float32(0), values.At(1, 1))

	rng := rand.New(rand.NewSource(1))
	p, tgt := randPair(rng, 3, 4)
	checkGradient(t, L2{}, p, tgt, 1e-2)
}

func TestL1_SignGradient(t *testing.T) {
	pred := matrix.New(1, 3, matrix.ColumnMajor)
	target := matrix.New(1, 3, matrix.ColumnMajor)
	pred.Set(0, 0, 2)
	target.Set(0, 0, 1)
	pred.Set(0, 1, -2)
	target.Set(0, 1, 1)

	values, gradients := evalLoss(t, L1{}, 1, pred, target)
	assert.Equal(t, float32(1), values.At(0, 0))
	assert.Equal(t, float32(1), gradients.At(0, 0))
	assert.Equal(t, float32(3), values.At(0, 1))
	assert.Equal(t, float32(-1), gradients.At(0, 1))
	assert.Equal(t, float32(0), gradients.At(0, 2))
}

func TestRelativeL2_StabilizedDenominator(t *testing.T) {
	pred := matrix.New(1, 1, matrix.ColumnMajor)
	target := matrix.New(1, 1, matrix.ColumnMajor)
	pred.Set(0, 0, 0) // denominator must not vanish
	target.Set(0, 0, 1)

	values, gradients := evalLoss(t, RelativeL2{}, 1, pred, target)
	assert.InDelta(t, 1/0.01, values.At(0, 0), 1e-4)
	assert.InDelta(t, -2/0.01, gradients.At(0, 0), 1e-4)
}

func TestRelativeL2Luminance_RequiresRGB(t *testing.T) {
	s := stream.New()
	defer s.Close()

	pred := matrix.New(4, 1, matrix.ColumnMajor)
	target := matrix.New(4, 1, matrix.ColumnMajor)
	values := matrix.New(4, 1, matrix.ColumnMajor)
	gradients := matrix.New(4, 1, matrix.ColumnMajor)

	assert.Panics(t, func() {
		RelativeL2Luminance{}.Evaluate(s, 1, pred, target, values, gradients)
	})
}

func TestRelativeL2Luminance_NormalizesPerColumn(t *testing.T) {
	pred := matrix.New(3, 1, matrix.ColumnMajor)
	target := matrix.New(3, 1, matrix.ColumnMajor)
	pred.Set(0, 0, 1)
	pred.Set(1, 0, 1)
	pred.Set(2, 0, 1)
	// lum = 0.299+0.587+0.114 = 1, denominator = 1 + eps

	values, _ := evalLoss(t, RelativeL2Luminance{}, 1, pred, target)
	for j := 0; j < 3; j++ {
		assert.InDelta(t, 1/1.01, values.At(j, 0), 1e-4)
	}
}

func TestCrossEntropy_Gradient(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	pred := matrix.New(3, 4, matrix.ColumnMajor)
	target := matrix.New(3, 4, matrix.ColumnMajor)
	for i := range pred.Data() {
		pred.Data()[i] = rng.Float32()*0.8 + 0.1 // keep away from 0
		target.Data()[i] = rng.Float32()
	}
	checkGradient(t, CrossEntropy{}, pred, target, 2e-2)
}

func TestVariance_Gradient(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	pred := matrix.New(2, 4, matrix.ColumnMajor)
	target := matrix.New(2, 4, matrix.ColumnMajor)
	for i := range pred.Data() {
		pred.Data()[i] = rng.Float32()*0.8 + 0.2
		target.Data()[i] = rng.Float32()
	}
	checkGradient(t, Variance{}, pred, target, 5e-2)
}

func TestEvaluate_ShapeMismatchPanics(t *testing.T) {
	s := stream.New()
	defer s.Close()

	pred := matrix.New(2, 2, matrix.ColumnMajor)
	bad := matrix.New(2, 3, matrix.ColumnMajor)
	values := matrix.New(2, 2, matrix.ColumnMajor)
	gradients := matrix.New(2, 2, matrix.ColumnMajor)

	assert.Panics(t, func() {
		L2{}.Evaluate(s, 1, pred, bad, values, gradients)
	})
}
