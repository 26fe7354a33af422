// Copyright 2025 Tinn ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package network exposes the dense network engines: the fully fused MLP for
// small networks at supported widths, the GEMM-backed MLP for arbitrary
// shapes, and the residual ResNet variant.
//
//	net, err := network.Create(config.Network{
//	    Type:         "fully_fused_mlp",
//	    Neurons:      64,
//	    HiddenLayers: 4,
//	    Activation:   "relu",
//	}, 3, 3)
package network

import (
	"github.com/tinn-ml/tinn/config"
	"github.com/tinn-ml/tinn/internal/network"
)

// Network is a trainable, differentiable model with a reduced-precision
// inference path.
type Network = network.Network

// FullyFusedMLP evaluates all layers of a batch tile in one pass over
// worker-resident scratch memory.
type FullyFusedMLP = network.FullyFusedMLP

// MLP is the layer-by-layer GEMM-backed engine.
type MLP = network.MLP

// ResNet is the GEMM-backed residual engine.
type ResNet = network.ResNet

// Activation is a neuron transfer function.
type Activation = network.Activation

// Supported activations.
const (
	ActivationNone        = network.ActivationNone
	ActivationReLU        = network.ActivationReLU
	ActivationExponential = network.ActivationExponential
	ActivationSine        = network.ActivationSine
	ActivationSigmoid     = network.ActivationSigmoid
	ActivationSquareplus  = network.ActivationSquareplus
	ActivationSoftplus    = network.ActivationSoftplus
)

// TileSize is the batch granularity of the fused engine.
const TileSize = network.TileSize

// Create builds the network selected by cfg.
func Create(cfg config.Network, nInputDims, nOutputDims int) (Network, error) {
	return network.Create(cfg, nInputDims, nOutputDims)
}

// NewFullyFusedMLP constructs the fused engine directly.
func NewFullyFusedMLP(nInputDims, nOutputDims, width, hiddenLayers int, act, outAct Activation) (*FullyFusedMLP, error) {
	return network.NewFullyFusedMLP(nInputDims, nOutputDims, width, hiddenLayers, act, outAct)
}

// NewMLP constructs the GEMM-backed engine directly.
func NewMLP(nInputDims, nOutputDims, width, hiddenLayers int, act, outAct Activation) (*MLP, error) {
	return network.NewMLP(nInputDims, nOutputDims, width, hiddenLayers, act, outAct)
}

// NewResNet constructs the residual engine directly.
func NewResNet(nInputDims, nOutputDims, width, hiddenLayers, blocks int, act, outAct Activation) (*ResNet, error) {
	return network.NewResNet(nInputDims, nOutputDims, width, hiddenLayers, blocks, act, outAct)
}

// ActivationFromString resolves an activation name from configuration.
func ActivationFromString(name string) (Activation, error) {
	return network.ActivationFromString(name)
}
