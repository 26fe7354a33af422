// Copyright 2025 Tinn ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package trainer exposes the full training pipeline: encoding, network,
// loss and optimizer wired together and driven step by step on a stream.
//
//	tr, err := trainer.Create(cfg, 3, 3)
//	if err != nil {
//	    return err
//	}
//	tr.Initialize(rng)
//
//	s := stream.New()
//	defer s.Close()
//	for i := 0; i < steps; i++ {
//	    loss := tr.TrainingStepLoss(s, inputs, targets)
//	    _ = loss
//	}
package trainer

import (
	"github.com/tinn-ml/tinn/config"
	"github.com/tinn-ml/tinn/internal/encoding"
	"github.com/tinn-ml/tinn/internal/loss"
	"github.com/tinn-ml/tinn/internal/network"
	"github.com/tinn-ml/tinn/internal/optim"
	"github.com/tinn-ml/tinn/internal/trainer"
)

// Trainer owns one model plus the loss and optimizer that drive it.
type Trainer = trainer.Trainer

// NetworkWithEncoding composes an encoding and a network into one model.
type NetworkWithEncoding = trainer.NetworkWithEncoding

// Create builds the full pipeline from configuration.
func Create(cfg config.Training, nInputDims, nOutputDims int) (*Trainer, error) {
	return trainer.Create(cfg, nInputDims, nOutputDims)
}

// New wires a trainer around an existing model.
func New(model network.Network, l loss.Loss, o optim.Optimizer) *Trainer {
	return trainer.New(model, l, o)
}

// NewNetworkWithEncoding composes enc and net.
func NewNetworkWithEncoding(enc encoding.Encoding, net network.Network) (*NetworkWithEncoding, error) {
	return trainer.NewNetworkWithEncoding(enc, net)
}
