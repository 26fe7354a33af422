//go:build windows

package webgpu

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/tinn-ml/tinn/internal/matrix"
)

// f32Bytes views a float32 slice as bytes for buffer upload.
func f32Bytes(f []float32) []byte {
	if len(f) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&f[0])), len(f)*4)
}

// FusedInference runs the fused inference kernel for one batch. input and
// output are ColumnMajor with the batch in columns; the batch must be a
// multiple of the kernel tile size. The call blocks until the result is back
// in output's buffer.
func (b *Backend) FusedInference(spec FusedSpec, input, output *matrix.Matrix) error {
	if spec.Width < 1 || spec.Width > maxFusedWidth {
		return fmt.Errorf("webgpu: fused width %d outside [1, %d]", spec.Width, maxFusedWidth)
	}
	if spec.HiddenLayers < 1 {
		return fmt.Errorf("webgpu: fused network needs at least 1 hidden layer")
	}
	if len(spec.Weights) != spec.WeightCount() {
		return fmt.Errorf("webgpu: weight buffer has %d values, spec needs %d", len(spec.Weights), spec.WeightCount())
	}
	if input.Layout() != matrix.ColumnMajor || output.Layout() != matrix.ColumnMajor {
		return fmt.Errorf("webgpu: fused batches must be ColumnMajor")
	}
	if input.Rows() != spec.InputDims || output.Rows() != spec.OutputDims || output.Cols() != input.Cols() {
		return fmt.Errorf("webgpu: batch shapes %dx%d -> %dx%d do not match spec %d -> %d",
			input.Rows(), input.Cols(), output.Rows(), output.Cols(), spec.InputDims, spec.OutputDims)
	}
	batch := input.Cols()
	if batch%tileSize != 0 {
		return fmt.Errorf("webgpu: batch size %d is not a multiple of the tile size %d", batch, tileSize)
	}

	shader := b.compileShader("fused_inference", fusedInferenceShader)
	pipeline := b.getOrCreatePipeline("fused_inference", shader)

	bufferWeights := b.createBuffer(f32Bytes(spec.Weights), wgpu.BufferUsageStorage)
	defer bufferWeights.Release()

	bufferInput := b.createBuffer(f32Bytes(input.Data()), wgpu.BufferUsageStorage)
	defer bufferInput.Release()

	resultSize := uint64(output.NumElements() * 4)
	bufferOutput := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc,
		Size:  resultSize,
	})
	defer bufferOutput.Release()

	params := make([]byte, 24)
	binary.LittleEndian.PutUint32(params[0:4], uint32(spec.InputDims))
	binary.LittleEndian.PutUint32(params[4:8], uint32(spec.OutputDims))
	binary.LittleEndian.PutUint32(params[8:12], uint32(spec.Width))
	binary.LittleEndian.PutUint32(params[12:16], uint32(spec.HiddenLayers))
	binary.LittleEndian.PutUint32(params[16:20], spec.Activation)
	binary.LittleEndian.PutUint32(params[20:24], spec.OutputActivation)
	bufferParams := b.createUniformBuffer(params)
	defer bufferParams.Release()
	uniformSize := uint64((len(params) + 15) &^ 15)

	bindGroupLayout := pipeline.GetBindGroupLayout(0)
	bindGroup := b.device.CreateBindGroupSimple(bindGroupLayout, []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, bufferWeights, 0, uint64(len(spec.Weights)*4)),
		wgpu.BufferBindingEntry(1, bufferInput, 0, uint64(input.NumElements()*4)),
		wgpu.BufferBindingEntry(2, bufferOutput, 0, resultSize),
		wgpu.BufferBindingEntry(3, bufferParams, 0, uniformSize),
	})
	defer bindGroup.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	computePass := encoder.BeginComputePass(nil)
	computePass.SetPipeline(pipeline)
	computePass.SetBindGroup(0, bindGroup, nil)
	computePass.DispatchWorkgroups(uint32(batch/tileSize), 1, 1)
	computePass.End()

	cmdBuffer := encoder.Finish(nil)
	b.queue.Submit(cmdBuffer)

	resultData, err := b.readBuffer(bufferOutput, resultSize)
	if err != nil {
		return err
	}
	copy(f32Bytes(output.Data()), resultData)
	return nil
}
