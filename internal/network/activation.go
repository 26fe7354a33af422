package network

import (
	"fmt"

	"github.com/chewxy/math32"
)

// Activation is one of the closed set of neuron transfer functions.
// Unknown names fail construction; there is no runtime fallback.
type Activation int

// Supported activations.
const (
	ActivationNone Activation = iota
	ActivationReLU
	ActivationExponential
	ActivationSine
	ActivationSigmoid
	ActivationSquareplus
	ActivationSoftplus
)

// ActivationFromString resolves an activation name from configuration.
func ActivationFromString(name string) (Activation, error) {
	switch name {
	case "", "none", "linear":
		return ActivationNone, nil
	case "relu":
		return ActivationReLU, nil
	case "exponential":
		return ActivationExponential, nil
	case "sine":
		return ActivationSine, nil
	case "sigmoid":
		return ActivationSigmoid, nil
	case "squareplus":
		return ActivationSquareplus, nil
	case "softplus":
		return ActivationSoftplus, nil
	default:
		return 0, fmt.Errorf("network: unknown activation %q", name)
	}
}

// String returns the configuration name of the activation.
func (a Activation) String() string {
	switch a {
	case ActivationNone:
		return "none"
	case ActivationReLU:
		return "relu"
	case ActivationExponential:
		return "exponential"
	case ActivationSine:
		return "sine"
	case ActivationSigmoid:
		return "sigmoid"
	case ActivationSquareplus:
		return "squareplus"
	case ActivationSoftplus:
		return "softplus"
	default:
		return "unknown"
	}
}

// Apply evaluates the activation at pre-activation x.
func (a Activation) Apply(x float32) float32 {
	switch a {
	case ActivationNone:
		return x
	case ActivationReLU:
		if x > 0 {
			return x
		}
		return 0
	case ActivationExponential:
		return math32.Exp(x)
	case ActivationSine:
		return math32.Sin(x)
	case ActivationSigmoid:
		return 1 / (1 + math32.Exp(-x))
	case ActivationSquareplus:
		return 0.5 * (x + math32.Sqrt(x*x+4))
	case ActivationSoftplus:
		return math32.Log1p(math32.Exp(x))
	default:
		panic("network: invalid activation")
	}
}

// Derivative evaluates d Apply/dx given the pre-activation x and the already
// computed value y = Apply(x).
func (a Activation) Derivative(x, y float32) float32 {
	switch a {
	case ActivationNone:
		return 1
	case ActivationReLU:
		if x > 0 {
			return 1
		}
		return 0
	case ActivationExponential:
		return y
	case ActivationSine:
		return math32.Cos(x)
	case ActivationSigmoid:
		return y * (1 - y)
	case ActivationSquareplus:
		return 0.5 * (1 + x/math32.Sqrt(x*x+4))
	case ActivationSoftplus:
		return 1 / (1 + math32.Exp(-x))
	default:
		panic("network: invalid activation")
	}
}
