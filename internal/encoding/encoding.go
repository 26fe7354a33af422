// Package encoding implements the input encodings that map raw coordinates
// to network-ready feature vectors.
//
// Encodings are parameter-free differentiable objects: Backward propagates
// gradients through the fixed encoding arithmetic exactly, so the whole
// training pipeline stays differentiable end to end.
package encoding

import (
	"fmt"

	"github.com/tinn-ml/tinn/config"
	"github.com/tinn-ml/tinn/internal/autodiff"
	"github.com/tinn-ml/tinn/internal/matrix"
)

// Encoding maps a batch of raw input coordinates to encoded features.
type Encoding interface {
	autodiff.Differentiable
}

// Create builds the encoding selected by cfg for nDims raw input dimensions.
// Unknown types or malformed options fail with a descriptive error.
func Create(cfg config.Encoding, nDims int) (Encoding, error) {
	if nDims <= 0 {
		return nil, fmt.Errorf("encoding: invalid input dimension count %d", nDims)
	}

	switch cfg.Type {
	case "identity":
		return NewIdentity(nDims, cfg.Scale, cfg.Offset), nil
	case "oneblob":
		return NewOneBlob(nDims, cfg.Bins)
	case "frequency":
		return NewFrequency(nDims, cfg.Frequencies)
	case "composite":
		return NewComposite(nDims, cfg.Segments)
	case "nrc":
		return NewNRC(nDims)
	default:
		return nil, fmt.Errorf("encoding: unknown type %q", cfg.Type)
	}
}

// checkInput enforces the batch contract every encoding shares.
func checkInput(name string, input *matrix.Matrix, dims int) {
	if input.Layout() != matrix.ColumnMajor {
		panic(fmt.Sprintf("%s: input must be ColumnMajor, got %s", name, input.Layout()))
	}
	if input.Rows() != dims {
		panic(fmt.Sprintf("%s: input has %d dims, encoding expects %d", name, input.Rows(), dims))
	}
}
