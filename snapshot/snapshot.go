// Copyright 2025 Tinn ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package snapshot saves and restores trained model parameters together
// with the training configuration that produced them.
//
// Example:
//
//	err := snapshot.Save("model.tinn", cfg, trainer.Model().Params(), step)
//	...
//	header, params, err := snapshot.Load("model.tinn")
package snapshot

import (
	"github.com/tinn-ml/tinn/config"
	"github.com/tinn-ml/tinn/internal/snapshot"
)

// Header is the metadata block of a snapshot file.
type Header = snapshot.Header

// Save writes params and their training configuration to path.
func Save(path string, cfg config.Training, params []float32, step int) error {
	return snapshot.Save(path, cfg, params, step)
}

// Load reads a snapshot from path and returns its header and parameters.
func Load(path string) (Header, []float32, error) {
	return snapshot.Load(path)
}
