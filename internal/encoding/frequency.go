package encoding

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/tinn-ml/tinn/internal/matrix"
	"github.com/tinn-ml/tinn/internal/parallel"
	"github.com/tinn-ml/tinn/internal/stream"
)

// Frequency maps each scalar through a fixed bank of sinusoids at
// geometrically increasing frequencies: for frequency index f the pair
// (sin(pi 2^f x), cos(pi 2^f x)). The output is laid out per input
// dimension: dim d occupies rows [d*2F, (d+1)*2F), lowest frequency first,
// so growing the frequency count leaves existing components unchanged.
type Frequency struct {
	dims  int
	freqs int
	par   parallel.Config
}

// NewFrequency creates a frequency encoding with the given frequency count.
func NewFrequency(nDims, frequencies int) (*Frequency, error) {
	if frequencies < 1 {
		return nil, fmt.Errorf("frequency: need at least 1 frequency, got %d", frequencies)
	}
	return &Frequency{dims: nDims, freqs: frequencies, par: parallel.DefaultConfig()}, nil
}

// InputDims returns the raw dimension count.
func (e *Frequency) InputDims() int { return e.dims }

// OutputDims returns 2 * frequencies * dims.
func (e *Frequency) OutputDims() int { return 2 * e.freqs * e.dims }

// Forward fills the sinusoid bank.
func (e *Frequency) Forward(s *stream.Stream, input *matrix.Matrix) *matrix.Matrix {
	checkInput("frequency", input, e.dims)
	out := matrix.New(e.OutputDims(), input.Cols(), matrix.ColumnMajor)
	s.Do(func() {
		parallel.For(input.Cols(), func(c int) {
			in := input.Col(c)
			dst := out.Col(c)
			for d, x := range in {
				base := d * 2 * e.freqs
				scale := math32.Pi
				for f := 0; f < e.freqs; f++ {
					sin, cos := math32.Sincos(scale * x)
					dst[base+2*f] = sin
					dst[base+2*f+1] = cos
					scale *= 2
				}
			}
		}, e.par)
	})
	return out
}

// Backward applies the sinusoid derivatives: d sin(kx) = k cos(kx),
// d cos(kx) = -k sin(kx).
func (e *Frequency) Backward(s *stream.Stream, input, _, dOutput *matrix.Matrix) *matrix.Matrix {
	checkInput("frequency", input, e.dims)
	dInput := matrix.New(e.dims, input.Cols(), matrix.ColumnMajor)
	s.Do(func() {
		parallel.For(input.Cols(), func(c int) {
			in := input.Col(c)
			dOut := dOutput.Col(c)
			dst := dInput.Col(c)
			for d, x := range in {
				base := d * 2 * e.freqs
				scale := math32.Pi
				var sum float32
				for f := 0; f < e.freqs; f++ {
					sin, cos := math32.Sincos(scale * x)
					sum += dOut[base+2*f] * scale * cos
					sum -= dOut[base+2*f+1] * scale * sin
					scale *= 2
				}
				dst[d] = sum
			}
		}, e.par)
	})
	return dInput
}
