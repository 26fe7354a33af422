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

// MLP is the layer-by-layer engine: one GEMM per layer plus a bias, with
// intermediate activations staged through the stream's shared GEMM
// workspace. It accepts any hidden width and any batch size, which makes it
// the fallback when a network does not fit the fused engine's constraints,
// and the only engine family with bias terms.
//
// The backward pass does not need an explicit transposed weight view: the
// GEMM primitive transposes through its operand flags. Only the
// reduced-precision inference view is materialized.
type MLP struct {
	inDims  int
	outDims int
	width   int
	act     Activation
	outAct  Activation

	params []float32
	grads  []float32
	layers []denseLayer

	w16 [][]float16.Float16

	par parallel.Config
}

// denseLayer locates one layer's weight block and bias vector inside the
// flat parameter buffer.
type denseLayer struct {
	wOff int
	bOff int
	out  int
	in   int
}

// NewMLP constructs the GEMM-backed engine. hiddenLayers of zero collapses
// the network to a single affine layer.
func NewMLP(nInputDims, nOutputDims, width, hiddenLayers int, act, outAct Activation) (*MLP, error) {
	if hiddenLayers < 0 {
		return nil, fmt.Errorf("mlp: negative hidden layer count %d", hiddenLayers)
	}
	if hiddenLayers > 0 && width <= 0 {
		return nil, fmt.Errorf("mlp: invalid hidden width %d", width)
	}

	m := &MLP{
		inDims:  nInputDims,
		outDims: nOutputDims,
		width:   width,
		act:     act,
		outAct:  outAct,
		par:     parallel.DefaultConfig(),
	}

	off := 0
	addLayer := func(out, in int) {
		m.layers = append(m.layers, denseLayer{wOff: off, bOff: off + out*in, out: out, in: in})
		off += out*in + out
	}
	if hiddenLayers == 0 {
		addLayer(nOutputDims, nInputDims)
	} else {
		addLayer(width, nInputDims)
		for i := 1; i < hiddenLayers; i++ {
			addLayer(width, width)
		}
		addLayer(nOutputDims, width)
	}

	m.params = make([]float32, off)
	m.grads = make([]float32, off)
	m.w16 = make([][]float16.Float16, len(m.layers))
	for i, l := range m.layers {
		m.w16[i] = make([]float16.Float16, l.out*l.in)
	}
	return m, nil
}

// InputDims returns the raw input dimension count.
func (m *MLP) InputDims() int { return m.inDims }

// OutputDims returns the prediction dimension count.
func (m *MLP) OutputDims() int { return m.outDims }

// ParamCount returns the flat parameter count, biases included.
func (m *MLP) ParamCount() int { return len(m.params) }

// Params returns the full-precision master weights and biases.
func (m *MLP) Params() []float32 { return m.params }

// Grads returns the accumulated parameter gradients.
func (m *MLP) Grads() []float32 { return m.grads }

// ZeroGrad clears the gradient buffer.
func (m *MLP) ZeroGrad() {
	for i := range m.grads {
		m.grads[i] = 0
	}
}

// Initialize draws Xavier-uniform weights, zeroes the biases and rebuilds
// the derived views. Must not race in-flight stream work on this network.
func (m *MLP) Initialize(rng *rand.Rand) {
	for _, l := range m.layers {
		xavierInit(rng, m.params[l.wOff:], l.out, l.in)
		for i := 0; i < l.out; i++ {
			m.params[l.bOff+i] = 0
		}
	}
	m.rebuildViews()
}

// RefreshViews enqueues view reconstruction after a weight update.
func (m *MLP) RefreshViews(s *stream.Stream) {
	s.Do(m.rebuildViews)
}

// SetParams enqueues replacement of the master weights and a view refresh.
func (m *MLP) SetParams(s *stream.Stream, params []float32) {
	if len(params) != len(m.params) {
		panic(fmt.Sprintf("network: SetParams got %d values, want %d", len(params), len(m.params)))
	}
	s.Do(func() {
		copy(m.params, params)
		m.rebuildViews()
	})
}

func (m *MLP) rebuildViews() {
	for i, l := range m.layers {
		w := m.params[l.wOff : l.wOff+l.out*l.in]
		w16 := m.w16[i]
		for j, v := range w {
			w16[j] = float16.Fromfloat32(v)
		}
	}
}

// layerAct returns the activation applied after layer li.
func (m *MLP) layerAct(li int) Activation {
	if li == len(m.layers)-1 {
		return m.outAct
	}
	return m.act
}

// weightsFor returns layer li's weight block, through the reduced view when
// requested.
func (m *MLP) weightsFor(li int, reduced bool) []float32 {
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

// biasActivate adds the layer bias in place and applies a. pre is updated to
// the biased pre-activation, act receives the activated value. pre and act
// may be the same matrix.
func biasActivate(par parallel.Config, b []float32, a Activation, pre, act *matrix.Matrix) {
	parallel.For(pre.Cols(), func(c int) {
		p := pre.Col(c)
		y := act.Col(c)
		for o := range b {
			v := p[o] + b[o]
			p[o] = v
			y[o] = a.Apply(v)
		}
	}, par)
}

func (m *MLP) bias(l denseLayer) []float32 {
	return m.params[l.bOff : l.bOff+l.out]
}

// Forward evaluates the network at full precision. Hidden activations stage
// through the stream's GEMM workspace and do not survive the call.
func (m *MLP) Forward(s *stream.Stream, input *matrix.Matrix) *matrix.Matrix {
	checkBatch("mlp", input, m.inDims)
	out := matrix.New(m.outDims, input.Cols(), matrix.ColumnMajor)
	s.Do(func() {
		m.runForward(s, input, out, false)
	})
	return out
}

// Inference evaluates the network through the reduced-precision weight view
// into the caller's output matrix.
func (m *MLP) Inference(s *stream.Stream, input, output *matrix.Matrix) {
	checkBatch("mlp", input, m.inDims)
	checkBatch("mlp", output, m.outDims)
	if output.Cols() != input.Cols() {
		panic(fmt.Sprintf("mlp: output batch %d != input batch %d", output.Cols(), input.Cols()))
	}
	s.Do(func() {
		m.runForward(s, input, output, true)
	})
}

// runForward executes the layer loop inside a stream op. When reduced is set
// every weight block is read through the f16 view.
func (m *MLP) runForward(s *stream.Stream, input, output *matrix.Matrix, reduced bool) {
	last := len(m.layers) - 1
	if last == 0 {
		l := m.layers[0]
		gemm.MulWeightsAct(output, m.weightsFor(0, reduced), l.out, l.in, input)
		biasActivate(m.par, m.bias(l), m.layerAct(0), output, output)
		return
	}

	batch := input.Cols()
	ws := gemm.Acquire(s, 2*m.width*batch)
	cur := matrix.View(ws[:m.width*batch], m.width, batch, matrix.ColumnMajor)
	next := matrix.View(ws[m.width*batch:], m.width, batch, matrix.ColumnMajor)

	src := input
	for li := 0; li < last; li++ {
		l := m.layers[li]
		gemm.MulWeightsAct(cur, m.weightsFor(li, reduced), l.out, l.in, src)
		biasActivate(m.par, m.bias(l), m.layerAct(li), cur, cur)
		src = cur
		cur, next = next, cur
	}

	l := m.layers[last]
	gemm.MulWeightsAct(output, m.weightsFor(last, reduced), l.out, l.in, src)
	biasActivate(m.par, m.bias(l), m.layerAct(last), output, output)
}

// Backward recomputes the hidden activations and walks the exact adjoint
// back to the input. Parameter gradients accumulate into Grads; bias
// gradients are the row sums of each layer's delta.
func (m *MLP) Backward(s *stream.Stream, input, output, dOutput *matrix.Matrix) *matrix.Matrix {
	checkBatch("mlp", input, m.inDims)
	checkBatch("mlp", dOutput, m.outDims)
	dInput := matrix.New(m.inDims, input.Cols(), matrix.ColumnMajor)

	s.Do(func() {
		m.runBackward(s, input, dOutput, dInput)
	})
	return dInput
}

func (m *MLP) runBackward(s *stream.Stream, input, dOutput, dInput *matrix.Matrix) {
	batch := input.Cols()
	last := len(m.layers) - 1
	nHidden := last

	maxRows := m.outDims
	if nHidden > 0 && m.width > maxRows {
		maxRows = m.width
	}

	// Workspace: per-hidden-layer pre and post panels for the forward
	// replay, one output pre panel, and two delta panels.
	ws := gemm.Acquire(s, batch*(2*nHidden*m.width+m.outDims+2*maxRows))
	carve := func(rows int) *matrix.Matrix {
		v := matrix.View(ws[:rows*batch], rows, batch, matrix.ColumnMajor)
		ws = ws[rows*batch:]
		return v
	}
	pres := make([]*matrix.Matrix, nHidden)
	acts := make([]*matrix.Matrix, nHidden)
	for i := range pres {
		pres[i] = carve(m.width)
		acts[i] = carve(m.width)
	}
	outPre := carve(m.outDims)
	delta := carve(maxRows)
	next := carve(maxRows)

	// Replay the forward pass keeping every hidden pre-activation.
	src := input
	for li := 0; li < last; li++ {
		l := m.layers[li]
		gemm.MulWeightsAct(pres[li], m.weightsFor(li, false), l.out, l.in, src)
		biasActivate(m.par, m.bias(l), m.act, pres[li], acts[li])
		src = acts[li]
	}
	lOut := m.layers[last]
	gemm.MulWeightsAct(outPre, m.weightsFor(last, false), lOut.out, lOut.in, src)
	biasActivate(m.par, m.bias(lOut), ActivationNone, outPre, outPre)

	// Seed the adjoint with the output activation slope.
	dCur := matrix.View(delta.Data()[:m.outDims*batch], m.outDims, batch, matrix.ColumnMajor)
	parallel.For(batch, func(c int) {
		dOut := dOutput.Col(c)
		p := outPre.Col(c)
		dc := dCur.Col(c)
		for o := 0; o < m.outDims; o++ {
			dc[o] = dOut[o] * m.outAct.Derivative(p[o], m.outAct.Apply(p[o]))
		}
	}, m.par)

	for li := last; li >= 0; li-- {
		l := m.layers[li]

		var layerIn *matrix.Matrix
		if li == 0 {
			layerIn = input
		} else {
			layerIn = acts[li-1]
		}
		gemm.AccumGradW(m.grads[l.wOff:l.wOff+l.out*l.in], l.out, l.in, dCur, layerIn)

		gradB := m.grads[l.bOff : l.bOff+l.out]
		for c := 0; c < batch; c++ {
			dc := dCur.Col(c)
			for o := 0; o < l.out; o++ {
				gradB[o] += dc[o]
			}
		}

		if li == 0 {
			gemm.MulWeightsTAct(dInput, m.weightsFor(0, false), l.out, l.in, dCur)
			break
		}

		dPrev := matrix.View(next.Data()[:l.in*batch], l.in, batch, matrix.ColumnMajor)
		gemm.MulWeightsTAct(dPrev, m.weightsFor(li, false), l.out, l.in, dCur)
		parallel.For(batch, func(c int) {
			dp := dPrev.Col(c)
			p := pres[li-1].Col(c)
			a := acts[li-1].Col(c)
			for j := 0; j < l.in; j++ {
				dp[j] *= m.act.Derivative(p[j], a[j])
			}
		}, m.par)

		dCur = dPrev
		delta, next = next, delta
	}
}
