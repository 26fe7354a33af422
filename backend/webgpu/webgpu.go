// Copyright 2025 Tinn ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the optional GPU backend for fused-network
// inference.
//
// The backend compiles on every platform; on platforms without the native
// wgpu runtime New returns an error and callers keep the CPU engine:
//
//	gpu, err := webgpu.New()
//	if err != nil {
//	    // CPU fused engine handles inference
//	}
package webgpu

import (
	internalwebgpu "github.com/tinn-ml/tinn/internal/backend/webgpu"
)

// Backend owns the WebGPU device and kernel caches.
type Backend = internalwebgpu.Backend

// FusedSpec describes a fused network to the inference kernel.
type FusedSpec = internalwebgpu.FusedSpec

// New initializes the WebGPU device, or fails when none is available.
func New() (*Backend, error) {
	return internalwebgpu.New()
}
