//go:build !windows

package webgpu

import (
	"errors"

	"github.com/tinn-ml/tinn/internal/matrix"
)

// ErrUnavailable reports that no WebGPU runtime is bundled for this
// platform.
var ErrUnavailable = errors.New("webgpu: native runtime not available on this platform")

// Backend is a stub on platforms without the native wgpu runtime.
type Backend struct{}

// New always fails; callers fall back to the CPU fused engine.
func New() (*Backend, error) { return nil, ErrUnavailable }

// Close is a no-op on the stub.
func (b *Backend) Close() {}

// FusedInference always fails on the stub.
func (b *Backend) FusedInference(spec FusedSpec, input, output *matrix.Matrix) error {
	return ErrUnavailable
}
