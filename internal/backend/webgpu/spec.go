package webgpu

// FusedSpec describes a fused network to the GPU kernel: layer geometry,
// activation codes and the flat weight buffer in engine order (input layer,
// square hidden layers, output projection, all row-major, no biases).
//
// Activation codes follow the engine's activation enumeration.
type FusedSpec struct {
	InputDims    int
	OutputDims   int
	Width        int
	HiddenLayers int

	Activation       uint32
	OutputActivation uint32

	Weights []float32
}

// WeightCount returns the expected length of Weights.
func (s FusedSpec) WeightCount() int {
	return s.Width*s.InputDims + (s.HiddenLayers-1)*s.Width*s.Width + s.OutputDims*s.Width
}
