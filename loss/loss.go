// Copyright 2025 Tinn ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package loss exposes the training loss variants: L1, L2, relative L2,
// luminance-relative L2, cross entropy and variance.
//
//	l, err := loss.Create(config.Loss{Type: "relative_l2"})
package loss

import (
	"github.com/tinn-ml/tinn/config"
	"github.com/tinn-ml/tinn/internal/loss"
)

// Loss evaluates per-element loss values and prediction gradients for a
// batch.
type Loss = loss.Loss

// Create builds the loss selected by cfg.
func Create(cfg config.Loss) (Loss, error) {
	return loss.Create(cfg)
}
