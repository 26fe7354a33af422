package loss

import (
	"github.com/chewxy/math32"

	"github.com/tinn-ml/tinn/internal/matrix"
	"github.com/tinn-ml/tinn/internal/stream"
)

// L2 is plain squared error per element.
type L2 struct{}

// Evaluate writes scale*(p-t)^2 and scale*2(p-t).
func (L2) Evaluate(s *stream.Stream, scale float32, prediction, target, values, gradients *matrix.Matrix) {
	checkShapes("l2", prediction, target, values, gradients)
	p, t, v, g := prediction.Data(), target.Data(), values.Data(), gradients.Data()
	elementwise(s, prediction, func(i int) {
		d := p[i] - t[i]
		v[i] = scale * d * d
		g[i] = scale * 2 * d
	})
}

// L1 is absolute error per element.
type L1 struct{}

// Evaluate writes scale*|p-t| and scale*sign(p-t).
func (L1) Evaluate(s *stream.Stream, scale float32, prediction, target, values, gradients *matrix.Matrix) {
	checkShapes("l1", prediction, target, values, gradients)
	p, t, v, g := prediction.Data(), target.Data(), values.Data(), gradients.Data()
	elementwise(s, prediction, func(i int) {
		d := p[i] - t[i]
		v[i] = scale * math32.Abs(d)
		switch {
		case d > 0:
			g[i] = scale
		case d < 0:
			g[i] = -scale
		default:
			g[i] = 0
		}
	})
}

// relativeEpsilon stabilizes the denominators of the relative losses.
const relativeEpsilon = 0.01

// RelativeL2 divides squared error by a stabilized function of the
// prediction magnitude. The denominator is treated as constant in the
// gradient.
type RelativeL2 struct{}

// Evaluate writes scale*(p-t)^2/(p^2+eps) and scale*2(p-t)/(p^2+eps).
func (RelativeL2) Evaluate(s *stream.Stream, scale float32, prediction, target, values, gradients *matrix.Matrix) {
	checkShapes("relative_l2", prediction, target, values, gradients)
	p, t, v, g := prediction.Data(), target.Data(), values.Data(), gradients.Data()
	elementwise(s, prediction, func(i int) {
		d := p[i] - t[i]
		den := p[i]*p[i] + relativeEpsilon
		v[i] = scale * d * d / den
		g[i] = scale * 2 * d / den
	})
}

// RelativeL2Luminance normalizes squared error by the luminance of the
// predicted RGB triple. Only valid when the output dimension is exactly 3.
type RelativeL2Luminance struct{}

// Evaluate writes scale*(p-t)^2/(lum^2+eps) per channel, with
// lum = 0.299 R + 0.587 G + 0.114 B of the prediction column. The luminance
// is treated as constant in the gradient.
func (RelativeL2Luminance) Evaluate(s *stream.Stream, scale float32, prediction, target, values, gradients *matrix.Matrix) {
	checkShapes("relative_l2_luminance", prediction, target, values, gradients)
	if prediction.Rows() != 3 {
		panic("relative_l2_luminance: requires exactly 3 output dimensions")
	}
	cols := prediction.Cols()
	s.Do(func() {
		for c := 0; c < cols; c++ {
			p := prediction.Col(c)
			t := target.Col(c)
			v := values.Col(c)
			g := gradients.Col(c)
			lum := 0.299*p[0] + 0.587*p[1] + 0.114*p[2]
			den := lum*lum + relativeEpsilon
			for j := 0; j < 3; j++ {
				d := p[j] - t[j]
				v[j] = scale * d * d / den
				g[j] = scale * 2 * d / den
			}
		}
	})
}

// CrossEntropy assumes predictions are a valid probability distribution per
// sample; negative or zero predictions are a contract violation with
// undefined results.
type CrossEntropy struct{}

// Evaluate writes -scale*t*log(p) and -scale*t/p.
func (CrossEntropy) Evaluate(s *stream.Stream, scale float32, prediction, target, values, gradients *matrix.Matrix) {
	checkShapes("cross_entropy", prediction, target, values, gradients)
	p, t, v, g := prediction.Data(), target.Data(), values.Data(), gradients.Data()
	elementwise(s, prediction, func(i int) {
		v[i] = -scale * t[i] * math32.Log(p[i])
		g[i] = -scale * t[i] / p[i]
	})
}

// Variance is the importance-sampling variance loss: predictions are an
// unnormalized sampling density, targets the integrand magnitude. Same
// probability-distribution contract as CrossEntropy.
type Variance struct{}

// Evaluate writes scale*(t^2/p - t^2) and its gradient -scale*t^2/p^2.
func (Variance) Evaluate(s *stream.Stream, scale float32, prediction, target, values, gradients *matrix.Matrix) {
	checkShapes("variance", prediction, target, values, gradients)
	p, t, v, g := prediction.Data(), target.Data(), values.Data(), gradients.Data()
	elementwise(s, prediction, func(i int) {
		t2 := t[i] * t[i]
		v[i] = scale * (t2/p[i] - t2)
		g[i] = -scale * t2 / (p[i] * p[i])
	})
}
