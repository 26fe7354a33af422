package network

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/x448/float16"

	"github.com/tinn-ml/tinn/internal/matrix"
	"github.com/tinn-ml/tinn/internal/parallel"
	"github.com/tinn-ml/tinn/internal/stream"
)

// TileSize is the batch granularity of the fused engine. Batches handed to a
// FullyFusedMLP must be a multiple of it.
const TileSize = 128

// FullyFusedMLP evaluates all layers of one batch tile in a single pass over
// worker-resident scratch memory. Activations never leave the tile scratch
// between layers, which is what makes small networks fast: the conventional
// per-layer pipeline is bound by streaming activation matrices through main
// memory, not by arithmetic.
//
// The hidden width is restricted to a small set so tile scratch stays
// cache-sized, and the batch must be a multiple of TileSize.
type FullyFusedMLP struct {
	inDims  int
	outDims int
	width   int
	hidden  int
	act     Activation
	outAct  Activation

	// Flat parameter and gradient buffers; layers index into them.
	params []float32
	grads  []float32
	layers []fusedLayer

	// Derived weight views: transposed for the backward pass, f16-rounded
	// for the inference path. Rebuilt from params by RefreshViews.
	wT  [][]float32
	w16 [][]float16.Float16

	scratch sync.Pool
	gradMu  sync.Mutex
	par     parallel.Config
}

// fusedLayer locates one weight matrix inside the flat parameter buffer.
type fusedLayer struct {
	off int
	out int
	in  int
}

// fusedWidths are the hidden widths the tile kernels support.
var fusedWidths = map[int]bool{16: true, 32: true, 64: true, 128: true}

// NewFullyFusedMLP constructs the fused engine. Width must be one of 16, 32,
// 64 or 128 and at least one hidden layer is required. Weights start zeroed;
// call Initialize before training.
func NewFullyFusedMLP(nInputDims, nOutputDims, width, hiddenLayers int, act, outAct Activation) (*FullyFusedMLP, error) {
	if !fusedWidths[width] {
		return nil, fmt.Errorf("fully_fused_mlp: unsupported width %d (want 16, 32, 64 or 128)", width)
	}
	if hiddenLayers < 1 {
		return nil, fmt.Errorf("fully_fused_mlp: need at least 1 hidden layer, got %d", hiddenLayers)
	}

	m := &FullyFusedMLP{
		inDims:  nInputDims,
		outDims: nOutputDims,
		width:   width,
		hidden:  hiddenLayers,
		act:     act,
		outAct:  outAct,
		par:     parallel.DefaultConfig(),
	}

	// Layer 0 lifts the input to the fused width; the output layer
	// projects down. Hidden-to-hidden layers are square.
	off := 0
	addLayer := func(out, in int) {
		m.layers = append(m.layers, fusedLayer{off: off, out: out, in: in})
		off += out * in
	}
	addLayer(width, nInputDims)
	for i := 1; i < hiddenLayers; i++ {
		addLayer(width, width)
	}
	addLayer(nOutputDims, width)

	m.params = make([]float32, off)
	m.grads = make([]float32, off)
	m.wT = make([][]float32, len(m.layers))
	m.w16 = make([][]float16.Float16, len(m.layers))
	for i, l := range m.layers {
		m.wT[i] = make([]float32, l.out*l.in)
		m.w16[i] = make([]float16.Float16, l.out*l.in)
	}
	m.scratch.New = func() any {
		return &tileScratch{
			pre: make([]float32, (hiddenLayers*width+nOutputDims)*TileSize),
			act: make([]float32, (hiddenLayers*width+nOutputDims)*TileSize),
		}
	}
	return m, nil
}

// tileScratch holds one tile's pre- and post-activation values for every
// layer. This is the "on-chip" residency of the fused pass: a worker owns it
// for the whole tile and nothing round-trips through shared matrices between
// layers.
type tileScratch struct {
	pre []float32
	act []float32
}

// InputDims returns the raw input dimension count.
func (m *FullyFusedMLP) InputDims() int { return m.inDims }

// Width returns the hidden layer width.
func (m *FullyFusedMLP) Width() int { return m.width }

// HiddenLayerCount returns the number of hidden layers.
func (m *FullyFusedMLP) HiddenLayerCount() int { return m.hidden }

// Activation returns the hidden activation.
func (m *FullyFusedMLP) Activation() Activation { return m.act }

// OutputActivation returns the output activation.
func (m *FullyFusedMLP) OutputActivation() Activation { return m.outAct }

// OutputDims returns the prediction dimension count.
func (m *FullyFusedMLP) OutputDims() int { return m.outDims }

// ParamCount returns the flat parameter count.
func (m *FullyFusedMLP) ParamCount() int { return len(m.params) }

// Params returns the full-precision master weights.
func (m *FullyFusedMLP) Params() []float32 { return m.params }

// Grads returns the accumulated parameter gradients.
func (m *FullyFusedMLP) Grads() []float32 { return m.grads }

// ZeroGrad clears the gradient buffer.
func (m *FullyFusedMLP) ZeroGrad() {
	for i := range m.grads {
		m.grads[i] = 0
	}
}

// Initialize draws Xavier-uniform weights and rebuilds the derived views.
// Must not race in-flight stream work on this network.
func (m *FullyFusedMLP) Initialize(rng *rand.Rand) {
	for _, l := range m.layers {
		xavierInit(rng, m.params[l.off:], l.out, l.in)
	}
	m.rebuildViews()
}

// RefreshViews enqueues view reconstruction after a weight update.
func (m *FullyFusedMLP) RefreshViews(s *stream.Stream) {
	s.Do(m.rebuildViews)
}

// SetParams enqueues replacement of the master weights and a view refresh.
func (m *FullyFusedMLP) SetParams(s *stream.Stream, params []float32) {
	if len(params) != len(m.params) {
		panic(fmt.Sprintf("network: SetParams got %d values, want %d", len(params), len(m.params)))
	}
	s.Do(func() {
		copy(m.params, params)
		m.rebuildViews()
	})
}

func (m *FullyFusedMLP) rebuildViews() {
	for i, l := range m.layers {
		w := m.params[l.off : l.off+l.out*l.in]
		wT := m.wT[i]
		w16 := m.w16[i]
		for o := 0; o < l.out; o++ {
			for j := 0; j < l.in; j++ {
				v := w[o*l.in+j]
				wT[j*l.out+o] = v
				w16[o*l.in+j] = float16.Fromfloat32(v)
			}
		}
	}
}

func (m *FullyFusedMLP) checkTiling(cols int) {
	if cols%TileSize != 0 {
		panic(fmt.Sprintf("fully_fused_mlp: batch size %d is not a multiple of the tile size %d", cols, TileSize))
	}
}

// layerSpan returns the scratch offset of layer l's tile values.
func (m *FullyFusedMLP) layerSpan(l int) (off, rows int) {
	if l < m.hidden {
		return l * m.width * TileSize, m.width
	}
	return m.hidden * m.width * TileSize, m.outDims
}

// forwardTile runs every layer for one tile, keeping values in ts. The full
// per-layer pre/post activations stay resident so the backward pass can reuse
// the same routine.
func (m *FullyFusedMLP) forwardTile(input *matrix.Matrix, tile int, ts *tileScratch, reduced bool) {
	in := input.Slice(tile*TileSize, (tile+1)*TileSize)

	for li, l := range m.layers {
		spanOff, _ := m.layerSpan(li)
		pre := ts.pre[spanOff : spanOff+l.out*TileSize]
		act := ts.act[spanOff : spanOff+l.out*TileSize]

		var w []float32
		if reduced {
			w = m.reducedWeights(li)
		} else {
			w = m.params[l.off : l.off+l.out*l.in]
		}

		a := m.act
		if li == len(m.layers)-1 {
			a = m.outAct
		}

		for c := 0; c < TileSize; c++ {
			var src []float32
			if li == 0 {
				src = in.Col(c)
			} else {
				prevOff, prevRows := m.layerSpan(li - 1)
				src = ts.act[prevOff+c*prevRows : prevOff+(c+1)*prevRows]
			}
			dst := pre[c*l.out : (c+1)*l.out]
			adst := act[c*l.out : (c+1)*l.out]
			for o := 0; o < l.out; o++ {
				row := w[o*l.in : (o+1)*l.in]
				var sum float32
				for j, x := range src {
					sum += row[j] * x
				}
				dst[o] = sum
				y := a.Apply(sum)
				if reduced && li < len(m.layers)-1 {
					// Round hidden activations through the
					// working precision, like the weights.
					y = float16.Fromfloat32(y).Float32()
				}
				adst[o] = y
			}
		}
	}
}

// reducedWeights materializes layer li's f16 view as float32 values.
func (m *FullyFusedMLP) reducedWeights(li int) []float32 {
	w16 := m.w16[li]
	w := make([]float32, len(w16))
	for i, h := range w16 {
		w[i] = h.Float32()
	}
	return w
}

// Forward evaluates the network at full precision.
func (m *FullyFusedMLP) Forward(s *stream.Stream, input *matrix.Matrix) *matrix.Matrix {
	checkBatch("fully_fused_mlp", input, m.inDims)
	m.checkTiling(input.Cols())
	out := matrix.New(m.outDims, input.Cols(), matrix.ColumnMajor)
	s.Do(func() {
		m.run(input, out, false)
	})
	return out
}

// Inference evaluates the network through the reduced-precision weight view
// into the caller's output matrix.
func (m *FullyFusedMLP) Inference(s *stream.Stream, input, output *matrix.Matrix) {
	checkBatch("fully_fused_mlp", input, m.inDims)
	checkBatch("fully_fused_mlp", output, m.outDims)
	m.checkTiling(input.Cols())
	if output.Cols() != input.Cols() {
		panic(fmt.Sprintf("fully_fused_mlp: output batch %d != input batch %d", output.Cols(), input.Cols()))
	}
	s.Do(func() {
		m.run(input, output, true)
	})
}

// run executes the tile loop for a whole batch.
func (m *FullyFusedMLP) run(input, output *matrix.Matrix, reduced bool) {
	tiles := input.Cols() / TileSize
	parallel.ForWorkers(tiles, func(_, tile int) {
		ts := m.scratch.Get().(*tileScratch)
		m.forwardTile(input, tile, ts, reduced)

		outOff, _ := m.layerSpan(m.hidden)
		for c := 0; c < TileSize; c++ {
			copy(output.Col(tile*TileSize+c), ts.act[outOff+c*m.outDims:outOff+(c+1)*m.outDims])
		}
		m.scratch.Put(ts)
	}, m.par)
}

// Backward recomputes the tile activations and walks the exact adjoint back
// to the input, accumulating parameter gradients. Per-worker gradient
// scratch keeps tiles lock-free; workers merge under one lock at the end.
func (m *FullyFusedMLP) Backward(s *stream.Stream, input, output, dOutput *matrix.Matrix) *matrix.Matrix {
	checkBatch("fully_fused_mlp", input, m.inDims)
	checkBatch("fully_fused_mlp", dOutput, m.outDims)
	m.checkTiling(input.Cols())
	dInput := matrix.New(m.inDims, input.Cols(), matrix.ColumnMajor)

	s.Do(func() {
		tiles := input.Cols() / TileSize
		workers := parallel.NumWorkers(tiles, m.par)
		gradScratch := make([][]float32, workers)
		for i := range gradScratch {
			gradScratch[i] = make([]float32, len(m.grads))
		}

		parallel.ForWorkers(tiles, func(worker, tile int) {
			ts := m.scratch.Get().(*tileScratch)
			m.forwardTile(input, tile, ts, false)
			m.backwardTile(input, dOutput, dInput, tile, ts, gradScratch[worker])
			m.scratch.Put(ts)
		}, m.par)

		m.gradMu.Lock()
		for _, gs := range gradScratch {
			for i, v := range gs {
				m.grads[i] += v
			}
		}
		m.gradMu.Unlock()
	})
	return dInput
}

// backwardTile backpropagates one tile. delta buffers live on the stack of
// the worker; ts supplies the recomputed forward values.
func (m *FullyFusedMLP) backwardTile(input, dOutput, dInput *matrix.Matrix, tile int, ts *tileScratch, grads []float32) {
	in := input.Slice(tile*TileSize, (tile+1)*TileSize)

	maxRows := m.width
	if m.outDims > maxRows {
		maxRows = m.outDims
	}
	delta := make([]float32, maxRows*TileSize)
	next := make([]float32, maxRows*TileSize)

	// Output layer: modulate the incoming gradient by the output
	// activation slope.
	last := len(m.layers) - 1
	outOff, _ := m.layerSpan(last)
	for c := 0; c < TileSize; c++ {
		dOut := dOutput.Col(tile*TileSize + c)
		pre := ts.pre[outOff+c*m.outDims : outOff+(c+1)*m.outDims]
		act := ts.act[outOff+c*m.outDims : outOff+(c+1)*m.outDims]
		d := delta[c*m.outDims : (c+1)*m.outDims]
		for o := 0; o < m.outDims; o++ {
			d[o] = dOut[o] * m.outAct.Derivative(pre[o], act[o])
		}
	}

	for li := last; li >= 0; li-- {
		l := m.layers[li]

		// Accumulate gradW += delta * src^T for this tile.
		for c := 0; c < TileSize; c++ {
			var src []float32
			if li == 0 {
				src = in.Col(c)
			} else {
				prevOff, prevRows := m.layerSpan(li - 1)
				src = ts.act[prevOff+c*prevRows : prevOff+(c+1)*prevRows]
			}
			d := delta[c*l.out : (c+1)*l.out]
			for o := 0; o < l.out; o++ {
				g := grads[l.off+o*l.in : l.off+(o+1)*l.in]
				dv := d[o]
				if dv == 0 {
					continue
				}
				for j, x := range src {
					g[j] += dv * x
				}
			}
		}

		// Carry the gradient to the previous layer through the
		// transposed view, then through its activation slope.
		wT := m.wT[li]
		if li == 0 {
			for c := 0; c < TileSize; c++ {
				d := delta[c*l.out : (c+1)*l.out]
				dst := dInput.Col(tile*TileSize + c)
				for j := 0; j < l.in; j++ {
					row := wT[j*l.out : (j+1)*l.out]
					var sum float32
					for o, dv := range d {
						sum += row[o] * dv
					}
					dst[j] = sum
				}
			}
			break
		}

		prevOff, prevRows := m.layerSpan(li - 1)
		for c := 0; c < TileSize; c++ {
			d := delta[c*l.out : (c+1)*l.out]
			pre := ts.pre[prevOff+c*prevRows : prevOff+(c+1)*prevRows]
			act := ts.act[prevOff+c*prevRows : prevOff+(c+1)*prevRows]
			dst := next[c*prevRows : (c+1)*prevRows]
			for j := 0; j < l.in; j++ {
				row := wT[j*l.out : (j+1)*l.out]
				var sum float32
				for o, dv := range d {
					sum += row[o] * dv
				}
				dst[j] = sum * m.act.Derivative(pre[j], act[j])
			}
		}
		delta, next = next, delta
	}
}
