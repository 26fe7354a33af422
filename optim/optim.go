// Copyright 2025 Tinn ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim exposes the optimizers and optimizer decorators.
//
// Decorators nest through configuration:
//
//	opt, err := optim.Create(config.Optimizer{
//	    Type:       "exponential_decay",
//	    DecayBase:  0.33,
//	    DecayInterval: 10000,
//	    Nested: &config.Optimizer{
//	        Type:         "adam",
//	        LearningRate: 1e-2,
//	    },
//	})
package optim

import (
	"github.com/tinn-ml/tinn/config"
	"github.com/tinn-ml/tinn/internal/optim"
)

// Optimizer advances a flat weight buffer from a flat gradient buffer.
type Optimizer = optim.Optimizer

// WeightAverager is implemented by decorators that keep a smoothed weight
// copy for inference.
type WeightAverager = optim.WeightAverager

// Create builds the optimizer selected by cfg, recursing through Nested.
func Create(cfg config.Optimizer) (Optimizer, error) {
	return optim.Create(cfg)
}
