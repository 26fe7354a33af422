package encoding

import (
	"fmt"

	"github.com/tinn-ml/tinn/config"
	"github.com/tinn-ml/tinn/internal/matrix"
	"github.com/tinn-ml/tinn/internal/stream"
)

// Composite applies a different nested encoding to each consecutive range of
// input dimensions and concatenates the encoded features.
type Composite struct {
	dims     int
	segments []segment
	outDims  int
}

type segment struct {
	enc    Encoding
	inOff  int
	outOff int
}

// NewComposite builds a composite from the configured segments. The segment
// dimension counts must sum to exactly nDims.
func NewComposite(nDims int, segs []config.Segment) (*Composite, error) {
	if len(segs) == 0 {
		return nil, fmt.Errorf("composite: no segments configured")
	}

	c := &Composite{dims: nDims}
	inOff := 0
	for i, sc := range segs {
		if sc.Dims <= 0 {
			return nil, fmt.Errorf("composite: segment %d has invalid dimension count %d", i, sc.Dims)
		}
		enc, err := Create(sc.Encoding, sc.Dims)
		if err != nil {
			return nil, fmt.Errorf("composite: segment %d: %w", i, err)
		}
		c.segments = append(c.segments, segment{enc: enc, inOff: inOff, outOff: c.outDims})
		inOff += sc.Dims
		c.outDims += enc.OutputDims()
	}
	if inOff != nDims {
		return nil, fmt.Errorf("composite: segments cover %d dims, input has %d", inOff, nDims)
	}
	return c, nil
}

// NewNRC builds the radiance-cache composite: a frequency bank over the first
// 3 dims (position), one-blob bins over the next 5 (direction and surface
// parameters), identity over the remainder. nDims must be at least 8.
func NewNRC(nDims int) (*Composite, error) {
	if nDims < 8 {
		return nil, fmt.Errorf("nrc: need at least 8 input dims, got %d", nDims)
	}
	segs := []config.Segment{
		{Dims: 3, Encoding: config.Encoding{Type: "frequency", Frequencies: 12}},
		{Dims: 5, Encoding: config.Encoding{Type: "oneblob", Bins: 4}},
	}
	if rest := nDims - 8; rest > 0 {
		segs = append(segs, config.Segment{Dims: rest, Encoding: config.Encoding{Type: "identity"}})
	}
	return NewComposite(nDims, segs)
}

// InputDims returns the raw dimension count.
func (c *Composite) InputDims() int { return c.dims }

// OutputDims returns the concatenated encoded dimension count.
func (c *Composite) OutputDims() int { return c.outDims }

// gatherRows enqueues a copy of rows [off, off+n) of src into dst. Rows are
// not contiguous across columns of a ColumnMajor matrix, so sub-batching over
// rows copies. The copy runs on the stream, after whatever produced src.
func gatherRows(s *stream.Stream, dst, src *matrix.Matrix, off int) {
	s.Do(func() {
		n := dst.Rows()
		for col := 0; col < src.Cols(); col++ {
			copy(dst.Col(col), src.Col(col)[off:off+n])
		}
	})
}

// scatterRows enqueues the inverse copy: src into rows [off, off+src.Rows())
// of dst.
func scatterRows(s *stream.Stream, dst, src *matrix.Matrix, off int) {
	s.Do(func() {
		n := src.Rows()
		for col := 0; col < src.Cols(); col++ {
			copy(dst.Col(col)[off:off+n], src.Col(col))
		}
	})
}

// Forward runs every segment and concatenates the encoded rows.
func (c *Composite) Forward(s *stream.Stream, input *matrix.Matrix) *matrix.Matrix {
	checkInput("composite", input, c.dims)
	out := matrix.New(c.outDims, input.Cols(), matrix.ColumnMajor)
	for _, seg := range c.segments {
		subIn := matrix.New(seg.enc.InputDims(), input.Cols(), matrix.ColumnMajor)
		gatherRows(s, subIn, input, seg.inOff)
		subOut := seg.enc.Forward(s, subIn)
		scatterRows(s, out, subOut, seg.outOff)
	}
	return out
}

// Backward scatters each segment's input gradient back to its dimension range.
func (c *Composite) Backward(s *stream.Stream, input, output, dOutput *matrix.Matrix) *matrix.Matrix {
	checkInput("composite", input, c.dims)
	dInput := matrix.New(c.dims, input.Cols(), matrix.ColumnMajor)
	for _, seg := range c.segments {
		cols := input.Cols()
		subIn := matrix.New(seg.enc.InputDims(), cols, matrix.ColumnMajor)
		subOut := matrix.New(seg.enc.OutputDims(), cols, matrix.ColumnMajor)
		subDOut := matrix.New(seg.enc.OutputDims(), cols, matrix.ColumnMajor)
		gatherRows(s, subIn, input, seg.inOff)
		gatherRows(s, subOut, output, seg.outOff)
		gatherRows(s, subDOut, dOutput, seg.outOff)
		subDIn := seg.enc.Backward(s, subIn, subOut, subDOut)
		scatterRows(s, dInput, subDIn, seg.inOff)
	}
	return dInput
}
