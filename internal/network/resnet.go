package network

import (
	"fmt"
	"math/rand"

	"github.com/x448/float16"

	"github.com/tinn-ml/tinn/internal/gemm"
	"github.com/tinn-ml/tinn/internal/matrix"
	"github.com/tinn-ml/tinn/internal/parallel"
	"github.com/tinn-ml/tinn/internal/stream"
)

// ResNet is the GEMM-backed residual engine: an input projection to the
// hidden width, a chain of residual blocks of hiddenLayers dense layers
// each, and an output projection. Every block output is its input plus the
// branch value, which keeps gradients flowing through deep stacks that a
// plain MLP of the same depth could not train.
type ResNet struct {
	inDims  int
	outDims int
	width   int
	perBlk  int
	blocks  int
	act     Activation
	outAct  Activation

	params []float32
	grads  []float32

	// Layer order: input projection, then blocks*perBlk branch layers,
	// then the output projection.
	layers []denseLayer
	w16    [][]float16.Float16

	par parallel.Config
}

// NewResNet constructs the residual engine. hiddenLayers counts the dense
// layers inside each block.
func NewResNet(nInputDims, nOutputDims, width, hiddenLayers, blocks int, act, outAct Activation) (*ResNet, error) {
	if width <= 0 {
		return nil, fmt.Errorf("resnet: invalid hidden width %d", width)
	}
	if hiddenLayers < 1 {
		return nil, fmt.Errorf("resnet: need at least 1 layer per block, got %d", hiddenLayers)
	}
	if blocks < 1 {
		return nil, fmt.Errorf("resnet: need at least 1 block, got %d", blocks)
	}

	m := &ResNet{
		inDims:  nInputDims,
		outDims: nOutputDims,
		width:   width,
		perBlk:  hiddenLayers,
		blocks:  blocks,
		act:     act,
		outAct:  outAct,
		par:     parallel.DefaultConfig(),
	}

	off := 0
	addLayer := func(out, in int) {
		m.layers = append(m.layers, denseLayer{wOff: off, bOff: off + out*in, out: out, in: in})
		off += out*in + out
	}
	addLayer(width, nInputDims)
	for b := 0; b < blocks; b++ {
		for l := 0; l < hiddenLayers; l++ {
			addLayer(width, width)
		}
	}
	addLayer(nOutputDims, width)

	m.params = make([]float32, off)
	m.grads = make([]float32, off)
	m.w16 = make([][]float16.Float16, len(m.layers))
	for i, l := range m.layers {
		m.w16[i] = make([]float16.Float16, l.out*l.in)
	}
	return m, nil
}

// InputDims returns the raw input dimension count.
func (m *ResNet) InputDims() int { return m.inDims }

// OutputDims returns the prediction dimension count.
func (m *ResNet) OutputDims() int { return m.outDims }

// ParamCount returns the flat parameter count, biases included.
func (m *ResNet) ParamCount() int { return len(m.params) }

// Params returns the full-precision master weights and biases.
func (m *ResNet) Params() []float32 { return m.params }

// Grads returns the accumulated parameter gradients.
func (m *ResNet) Grads() []float32 { return m.grads }

// ZeroGrad clears the gradient buffer.
func (m *ResNet) ZeroGrad() {
	for i := range m.grads {
		m.grads[i] = 0
	}
}

// Initialize draws Xavier-uniform weights and zero biases, except the last
// layer of every block which starts at zero so each block begins as the
// identity. Must not race in-flight stream work on this network.
func (m *ResNet) Initialize(rng *rand.Rand) {
	for i, l := range m.layers {
		w := m.params[l.wOff : l.wOff+l.out*l.in]
		if m.isBlockTail(i) {
			for j := range w {
				w[j] = 0
			}
		} else {
			xavierInit(rng, w, l.out, l.in)
		}
		for j := 0; j < l.out; j++ {
			m.params[l.bOff+j] = 0
		}
	}
	m.rebuildViews()
}

// isBlockTail reports whether layer li is the final layer of a residual
// block.
func (m *ResNet) isBlockTail(li int) bool {
	if li == 0 || li == len(m.layers)-1 {
		return false
	}
	return (li-1)%m.perBlk == m.perBlk-1
}

// RefreshViews enqueues view reconstruction after a weight update.
func (m *ResNet) RefreshViews(s *stream.Stream) {
	s.Do(m.rebuildViews)
}

// SetParams enqueues replacement of the master weights and a view refresh.
func (m *ResNet) SetParams(s *stream.Stream, params []float32) {
	if len(params) != len(m.params) {
		panic(fmt.Sprintf("network: SetParams got %d values, want %d", len(params), len(m.params)))
	}
	s.Do(func() {
		copy(m.params, params)
		m.rebuildViews()
	})
}

func (m *ResNet) rebuildViews() {
	for i, l := range m.layers {
		w := m.params[l.wOff : l.wOff+l.out*l.in]
		w16 := m.w16[i]
		for j, v := range w {
			w16[j] = float16.Fromfloat32(v)
		}
	}
}

func (m *ResNet) bias(l denseLayer) []float32 {
	return m.params[l.bOff : l.bOff+l.out]
}

func (m *ResNet) weightsFor(li int, reduced bool) []float32 {
	l := m.layers[li]
	if !reduced {
		return m.params[l.wOff : l.wOff+l.out*l.in]
	}
	w16 := m.w16[li]
	w := make([]float32, len(w16))
	for i, h := range w16 {
		w[i] = h.Float32()
	}
	return w
}

// blockLayer returns the global layer index of layer l inside block b.
func (m *ResNet) blockLayer(b, l int) int {
	return 1 + b*m.perBlk + l
}

// addInto computes dst += src element-wise over equal-shaped panels.
func addInto(par parallel.Config, dst, src *matrix.Matrix) {
	d := dst.Data()
	s := src.Data()
	parallel.For(len(d), func(i int) {
		d[i] += s[i]
	}, par)
}

// Forward evaluates the network at full precision.
func (m *ResNet) Forward(s *stream.Stream, input *matrix.Matrix) *matrix.Matrix {
	checkBatch("resnet", input, m.inDims)
	out := matrix.New(m.outDims, input.Cols(), matrix.ColumnMajor)
	s.Do(func() {
		m.runForward(s, input, out, false)
	})
	return out
}

// Inference evaluates the network through the reduced-precision weight view
// into the caller's output matrix.
func (m *ResNet) Inference(s *stream.Stream, input, output *matrix.Matrix) {
	checkBatch("resnet", input, m.inDims)
	checkBatch("resnet", output, m.outDims)
	if output.Cols() != input.Cols() {
		panic(fmt.Sprintf("resnet: output batch %d != input batch %d", output.Cols(), input.Cols()))
	}
	s.Do(func() {
		m.runForward(s, input, output, true)
	})
}

func (m *ResNet) runForward(s *stream.Stream, input, output *matrix.Matrix, reduced bool) {
	batch := input.Cols()

	// Workspace: the running hidden state plus two branch ping-pong
	// panels.
	ws := gemm.Acquire(s, 3*m.width*batch)
	h := matrix.View(ws[:m.width*batch], m.width, batch, matrix.ColumnMajor)
	cur := matrix.View(ws[m.width*batch:2*m.width*batch], m.width, batch, matrix.ColumnMajor)
	next := matrix.View(ws[2*m.width*batch:], m.width, batch, matrix.ColumnMajor)

	lIn := m.layers[0]
	gemm.MulWeightsAct(h, m.weightsFor(0, reduced), lIn.out, lIn.in, input)
	biasActivate(m.par, m.bias(lIn), m.act, h, h)

	for b := 0; b < m.blocks; b++ {
		src := h
		for l := 0; l < m.perBlk; l++ {
			li := m.blockLayer(b, l)
			dl := m.layers[li]
			gemm.MulWeightsAct(cur, m.weightsFor(li, reduced), dl.out, dl.in, src)
			biasActivate(m.par, m.bias(dl), m.act, cur, cur)
			src = cur
			cur, next = next, cur
		}
		addInto(m.par, h, src)
	}

	last := len(m.layers) - 1
	lOut := m.layers[last]
	gemm.MulWeightsAct(output, m.weightsFor(last, reduced), lOut.out, lOut.in, h)
	biasActivate(m.par, m.bias(lOut), m.outAct, output, output)
}

// Backward recomputes every hidden pre-activation and walks the adjoint back
// through the residual chain. The identity path of each block carries the
// incoming gradient through unchanged; the branch path adds its
// contribution.
func (m *ResNet) Backward(s *stream.Stream, input, output, dOutput *matrix.Matrix) *matrix.Matrix {
	checkBatch("resnet", input, m.inDims)
	checkBatch("resnet", dOutput, m.outDims)
	dInput := matrix.New(m.inDims, input.Cols(), matrix.ColumnMajor)
	s.Do(func() {
		m.runBackward(s, input, dOutput, dInput)
	})
	return dInput
}

func (m *ResNet) runBackward(s *stream.Stream, input, dOutput, dInput *matrix.Matrix) {
	batch := input.Cols()
	nBranch := m.blocks * m.perBlk
	maxRows := m.width
	if m.outDims > maxRows {
		maxRows = m.outDims
	}

	// Workspace: pre and post panels for the input projection and every
	// branch layer, the hidden state after each block, the output pre
	// panel and two delta panels.
	need := batch * (2*(1+nBranch)*m.width + (m.blocks+1)*m.width + m.outDims + 2*maxRows)
	ws := gemm.Acquire(s, need)
	carve := func(rows int) *matrix.Matrix {
		v := matrix.View(ws[:rows*batch], rows, batch, matrix.ColumnMajor)
		ws = ws[rows*batch:]
		return v
	}

	pres := make([]*matrix.Matrix, 1+nBranch)
	acts := make([]*matrix.Matrix, 1+nBranch)
	for i := range pres {
		pres[i] = carve(m.width)
		acts[i] = carve(m.width)
	}
	hs := make([]*matrix.Matrix, m.blocks+1)
	for i := range hs {
		hs[i] = carve(m.width)
	}
	outPre := carve(m.outDims)
	delta := carve(maxRows)
	next := carve(maxRows)

	// Forward replay. hs[b] is the hidden state entering block b; hs[blocks]
	// feeds the output projection.
	lIn := m.layers[0]
	gemm.MulWeightsAct(pres[0], m.weightsFor(0, false), lIn.out, lIn.in, input)
	biasActivate(m.par, m.bias(lIn), m.act, pres[0], acts[0])
	hs[0].CopyFrom(acts[0])

	for b := 0; b < m.blocks; b++ {
		src := hs[b]
		for l := 0; l < m.perBlk; l++ {
			li := m.blockLayer(b, l)
			dl := m.layers[li]
			gemm.MulWeightsAct(pres[li], m.weightsFor(li, false), dl.out, dl.in, src)
			biasActivate(m.par, m.bias(dl), m.act, pres[li], acts[li])
			src = acts[li]
		}
		hs[b+1].CopyFrom(hs[b])
		addInto(m.par, hs[b+1], src)
	}

	last := len(m.layers) - 1
	lOut := m.layers[last]
	gemm.MulWeightsAct(outPre, m.weightsFor(last, false), lOut.out, lOut.in, hs[m.blocks])
	biasActivate(m.par, m.bias(lOut), ActivationNone, outPre, outPre)

	// Output projection adjoint.
	dCur := matrix.View(delta.Data()[:m.outDims*batch], m.outDims, batch, matrix.ColumnMajor)
	parallel.For(batch, func(c int) {
		dOut := dOutput.Col(c)
		p := outPre.Col(c)
		dc := dCur.Col(c)
		for o := 0; o < m.outDims; o++ {
			dc[o] = dOut[o] * m.outAct.Derivative(p[o], m.outAct.Apply(p[o]))
		}
	}, m.par)
	m.accumLayer(last, dCur, hs[m.blocks])

	// dH is the gradient of the running hidden state. It persists across
	// blocks; branch deltas ping-pong through the remaining panels.
	dH := matrix.New(m.width, batch, matrix.ColumnMajor)
	gemm.MulWeightsTAct(dH, m.weightsFor(last, false), lOut.out, lOut.in, dCur)

	dBranch := matrix.View(delta.Data()[:m.width*batch], m.width, batch, matrix.ColumnMajor)
	dTmp := matrix.View(next.Data()[:m.width*batch], m.width, batch, matrix.ColumnMajor)

	for b := m.blocks - 1; b >= 0; b-- {
		// Branch adjoint starts as a copy of dH (the skip addition
		// duplicates the gradient), modulated by the branch tail's
		// activation slope.
		tail := m.blockLayer(b, m.perBlk-1)
		m.modulate(dBranch, dH, pres[tail], acts[tail])

		for l := m.perBlk - 1; l >= 0; l-- {
			li := m.blockLayer(b, l)
			dl := m.layers[li]

			var layerIn *matrix.Matrix
			if l == 0 {
				layerIn = hs[b]
			} else {
				layerIn = acts[li-1]
			}
			m.accumLayer(li, dBranch, layerIn)

			gemm.MulWeightsTAct(dTmp, m.weightsFor(li, false), dl.out, dl.in, dBranch)
			if l > 0 {
				m.modulate(dBranch, dTmp, pres[li-1], acts[li-1])
			}
		}
		// dH picks up the branch contribution; the identity path keeps
		// the rest.
		addInto(m.par, dH, dTmp)
	}

	// Input projection adjoint.
	m.modulate(dBranch, dH, pres[0], acts[0])
	m.accumLayer(0, dBranch, input)
	gemm.MulWeightsTAct(dInput, m.weightsFor(0, false), lIn.out, lIn.in, dBranch)
}

// modulate computes dst = src element-wise times the activation slope at
// (pre, act).
func (m *ResNet) modulate(dst, src, pre, act *matrix.Matrix) {
	parallel.For(dst.Cols(), func(c int) {
		d := dst.Col(c)
		s := src.Col(c)
		p := pre.Col(c)
		a := act.Col(c)
		for j := range d {
			d[j] = s[j] * m.act.Derivative(p[j], a[j])
		}
	}, m.par)
}

// accumLayer accumulates layer li's weight and bias gradients from its delta
// and input panels.
func (m *ResNet) accumLayer(li int, delta, layerIn *matrix.Matrix) {
	l := m.layers[li]
	gemm.AccumGradW(m.grads[l.wOff:l.wOff+l.out*l.in], l.out, l.in, delta, layerIn)
	gradB := m.grads[l.bOff : l.bOff+l.out]
	for c := 0; c < delta.Cols(); c++ {
		dc := delta.Col(c)
		for o := 0; o < l.out; o++ {
			gradB[o] += dc[o]
		}
	}
}
