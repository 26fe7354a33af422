package encoding

import (
	"fmt"

	"github.com/tinn-ml/tinn/internal/matrix"
	"github.com/tinn-ml/tinn/internal/parallel"
	"github.com/tinn-ml/tinn/internal/stream"
)

// OneBlob spreads each scalar input over Bins soft bins by integrating a
// quartic kernel centered at the input across each bin. The boundary bins
// absorb the tails, so the activations of one scalar always sum to exactly 1
// and out-of-range inputs land in the first or last bin.
type OneBlob struct {
	dims int
	bins int
	par  parallel.Config
}

// NewOneBlob creates a one-blob encoding with the given bin count per input
// dimension. Inputs are expected in [0, 1].
func NewOneBlob(nDims, bins int) (*OneBlob, error) {
	if bins < 2 {
		return nil, fmt.Errorf("oneblob: need at least 2 bins, got %d", bins)
	}
	return &OneBlob{dims: nDims, bins: bins, par: parallel.DefaultConfig()}, nil
}

// InputDims returns the raw dimension count.
func (e *OneBlob) InputDims() int { return e.dims }

// OutputDims returns dims * bins.
func (e *OneBlob) OutputDims() int { return e.dims * e.bins }

// quarticCDF integrates the quartic kernel k(u) = 15/16 (1-u^2)^2 over
// (-inf, u], with k supported on [-1, 1].
func quarticCDF(u float32) float32 {
	if u <= -1 {
		return 0
	}
	if u >= 1 {
		return 1
	}
	u3 := u * u * u
	u5 := u3 * u * u
	return 15.0/16.0*(u-2.0/3.0*u3+u5/5.0) + 0.5
}

// quarticPDF is the kernel itself, the derivative of quarticCDF.
func quarticPDF(u float32) float32 {
	if u <= -1 || u >= 1 {
		return 0
	}
	t := 1 - u*u
	return 15.0 / 16.0 * t * t
}

// binMass returns the kernel mass falling into bin i and its derivative with
// respect to x. The kernel radius equals one bin width. The first bin's left
// edge and the last bin's right edge extend to infinity, which makes the
// per-scalar masses telescope to exactly 1.
func (e *OneBlob) binMass(x float32, i int) (mass, ddx float32) {
	sigma := 1.0 / float32(e.bins)
	left := float32(i) * sigma
	right := float32(i+1) * sigma

	var cdfR, pdfR float32 = 1, 0
	if i < e.bins-1 {
		u := (right - x) / sigma
		cdfR = quarticCDF(u)
		pdfR = quarticPDF(u)
	}
	var cdfL, pdfL float32
	if i > 0 {
		u := (left - x) / sigma
		cdfL = quarticCDF(u)
		pdfL = quarticPDF(u)
	}
	// d/dx CDF((edge-x)/sigma) = -pdf/sigma
	return cdfR - cdfL, (pdfL - pdfR) / sigma
}

// Forward encodes every scalar into its bin activations.
func (e *OneBlob) Forward(s *stream.Stream, input *matrix.Matrix) *matrix.Matrix {
	checkInput("oneblob", input, e.dims)
	out := matrix.New(e.OutputDims(), input.Cols(), matrix.ColumnMajor)
	s.Do(func() {
		parallel.For(input.Cols(), func(c int) {
			in := input.Col(c)
			dst := out.Col(c)
			for d, x := range in {
				for i := 0; i < e.bins; i++ {
					mass, _ := e.binMass(x, i)
					dst[d*e.bins+i] = mass
				}
			}
		}, e.par)
	})
	return out
}

// Backward accumulates each bin's kernel slope back onto its source scalar.
func (e *OneBlob) Backward(s *stream.Stream, input, _, dOutput *matrix.Matrix) *matrix.Matrix {
	checkInput("oneblob", input, e.dims)
	dInput := matrix.New(e.dims, input.Cols(), matrix.ColumnMajor)
	s.Do(func() {
		parallel.For(input.Cols(), func(c int) {
			in := input.Col(c)
			dOut := dOutput.Col(c)
			dst := dInput.Col(c)
			for d, x := range in {
				var sum float32
				for i := 0; i < e.bins; i++ {
					_, ddx := e.binMass(x, i)
					sum += dOut[d*e.bins+i] * ddx
				}
				dst[d] = sum
			}
		}, e.par)
	})
	return dInput
}
