// Package trainer wires an encoding, a network, a loss and an optimizer into
// a single training pipeline driven by one stream.
package trainer

import (
	"fmt"
	"math/rand"

	"github.com/tinn-ml/tinn/config"
	"github.com/tinn-ml/tinn/internal/encoding"
	"github.com/tinn-ml/tinn/internal/loss"
	"github.com/tinn-ml/tinn/internal/matrix"
	"github.com/tinn-ml/tinn/internal/network"
	"github.com/tinn-ml/tinn/internal/optim"
	"github.com/tinn-ml/tinn/internal/stream"
)

// defaultLossScale keeps reduced-precision gradients away from the
// denormal range. Optimizers divide it back out, so it never changes the
// effective step.
const defaultLossScale = 128

// NetworkWithEncoding feeds raw inputs through a parameterless encoding
// before the network proper. It satisfies the network interface, so callers
// can treat the pair as one model whose input dimension is the raw one.
type NetworkWithEncoding struct {
	enc encoding.Encoding
	net network.Network
}

// NewNetworkWithEncoding composes enc and net. The network's input width
// must equal the encoding's output width.
func NewNetworkWithEncoding(enc encoding.Encoding, net network.Network) (*NetworkWithEncoding, error) {
	if enc.OutputDims() != net.InputDims() {
		return nil, fmt.Errorf("trainer: encoding produces %d dims, network expects %d",
			enc.OutputDims(), net.InputDims())
	}
	return &NetworkWithEncoding{enc: enc, net: net}, nil
}

// InputDims returns the raw input dimension count, before encoding.
func (m *NetworkWithEncoding) InputDims() int { return m.enc.InputDims() }

// OutputDims returns the prediction dimension count.
func (m *NetworkWithEncoding) OutputDims() int { return m.net.OutputDims() }

// ParamCount returns the network parameter count.
func (m *NetworkWithEncoding) ParamCount() int { return m.net.ParamCount() }

// Params returns the network's master weights.
func (m *NetworkWithEncoding) Params() []float32 { return m.net.Params() }

// Grads returns the network's gradient buffer.
func (m *NetworkWithEncoding) Grads() []float32 { return m.net.Grads() }

// ZeroGrad clears the network's gradient buffer.
func (m *NetworkWithEncoding) ZeroGrad() { m.net.ZeroGrad() }

// Initialize initializes the network weights.
func (m *NetworkWithEncoding) Initialize(rng *rand.Rand) { m.net.Initialize(rng) }

// RefreshViews refreshes the network's derived weight views.
func (m *NetworkWithEncoding) RefreshViews(s *stream.Stream) { m.net.RefreshViews(s) }

// SetParams replaces the network's master weights. The encoding holds no
// parameters.
func (m *NetworkWithEncoding) SetParams(s *stream.Stream, params []float32) {
	m.net.SetParams(s, params)
}

// Forward encodes the raw batch and evaluates the network at full precision.
func (m *NetworkWithEncoding) Forward(s *stream.Stream, input *matrix.Matrix) *matrix.Matrix {
	return m.net.Forward(s, m.enc.Forward(s, input))
}

// Backward re-encodes the batch, backpropagates through the network, then
// through the encoding back to the raw input.
func (m *NetworkWithEncoding) Backward(s *stream.Stream, input, output, dOutput *matrix.Matrix) *matrix.Matrix {
	encoded := m.enc.Forward(s, input)
	dEncoded := m.net.Backward(s, encoded, output, dOutput)
	return m.enc.Backward(s, input, encoded, dEncoded)
}

// Inference encodes the raw batch and evaluates the network through its
// reduced-precision weight view.
func (m *NetworkWithEncoding) Inference(s *stream.Stream, input, output *matrix.Matrix) {
	m.net.Inference(s, m.enc.Forward(s, input), output)
}

// Trainer owns one model plus the loss and optimizer that drive it.
type Trainer struct {
	model     network.Network
	loss      loss.Loss
	optimizer optim.Optimizer
	lossScale float32
}

// New wires a trainer around an existing model. The optimizer is allocated
// for the model's parameter count.
func New(model network.Network, l loss.Loss, o optim.Optimizer) *Trainer {
	o.Allocate(model.ParamCount())
	return &Trainer{model: model, loss: l, optimizer: o, lossScale: defaultLossScale}
}

// Create builds the full pipeline from configuration: encoding (when one is
// configured), network, loss and optimizer. nInputDims counts raw input
// dimensions.
func Create(cfg config.Training, nInputDims, nOutputDims int) (*Trainer, error) {
	netInput := nInputDims
	var enc encoding.Encoding
	if cfg.Encoding.Type != "" {
		var err error
		enc, err = encoding.Create(cfg.Encoding, nInputDims)
		if err != nil {
			return nil, err
		}
		netInput = enc.OutputDims()
	}

	net, err := network.Create(cfg.Network, netInput, nOutputDims)
	if err != nil {
		return nil, err
	}

	model := network.Network(net)
	if enc != nil {
		model, err = NewNetworkWithEncoding(enc, net)
		if err != nil {
			return nil, err
		}
	}

	l, err := loss.Create(cfg.Loss)
	if err != nil {
		return nil, err
	}
	o, err := optim.Create(cfg.Optimizer)
	if err != nil {
		return nil, err
	}
	return New(model, l, o), nil
}

// Model returns the trained model.
func (t *Trainer) Model() network.Network { return t.model }

// Optimizer returns the optimizer driving the weights.
func (t *Trainer) Optimizer() optim.Optimizer { return t.optimizer }

// Loss returns the loss the trainer minimizes.
func (t *Trainer) Loss() loss.Loss { return t.loss }

// LossScale returns the gradient scale factor applied during training.
func (t *Trainer) LossScale() float32 { return t.lossScale }

// Initialize draws fresh model weights. Must not race in-flight stream work.
func (t *Trainer) Initialize(rng *rand.Rand) { t.model.Initialize(rng) }

// TrainingStep enqueues one full optimization step: forward, loss, backward,
// optimizer update and weight-view refresh. It returns the per-element loss
// values, scaled by LossScale over the element count; they are valid once
// the stream drains.
//
// A non-finite loss is not an error. The step still runs and the value
// passes through to the caller, who decides whether to stop or skip.
func (t *Trainer) TrainingStep(s *stream.Stream, inputs, targets *matrix.Matrix) *matrix.Matrix {
	if targets.Rows() != t.model.OutputDims() || targets.Cols() != inputs.Cols() {
		panic(fmt.Sprintf("trainer: target batch %dx%d does not match %d outputs over %d samples",
			targets.Rows(), targets.Cols(), t.model.OutputDims(), inputs.Cols()))
	}

	s.Do(t.model.ZeroGrad)
	output := t.model.Forward(s, inputs)

	values := matrix.New(targets.Rows(), targets.Cols(), matrix.ColumnMajor)
	gradients := matrix.New(targets.Rows(), targets.Cols(), matrix.ColumnMajor)
	scale := t.lossScale / float32(values.NumElements())
	t.loss.Evaluate(s, scale, output, targets, values, gradients)

	t.model.Backward(s, inputs, output, gradients)
	t.optimizer.Step(s, t.lossScale, t.model.Params(), t.model.Grads())
	t.model.RefreshViews(s)
	return values
}

// TrainingStepLoss runs TrainingStep, waits for the stream to drain, and
// reduces the values to the mean per-element loss with the scale divided
// back out.
func (t *Trainer) TrainingStepLoss(s *stream.Stream, inputs, targets *matrix.Matrix) float32 {
	values := t.TrainingStep(s, inputs, targets)
	s.Synchronize()

	var sum float32
	for _, v := range values.Data() {
		sum += v
	}
	return sum / t.lossScale
}
