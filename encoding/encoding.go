// Copyright 2025 Tinn ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package encoding exposes the input encodings that lift low-dimensional
// coordinates into representations small networks can fit: identity with
// affine rescale, one-blob, frequency, and per-dimension composites.
//
//	enc, err := encoding.Create(config.Encoding{
//	    Type: "oneblob",
//	    Bins: 16,
//	}, 2)
package encoding

import (
	"github.com/tinn-ml/tinn/config"
	"github.com/tinn-ml/tinn/internal/encoding"
)

// Encoding maps a raw input batch to its encoded representation.
type Encoding = encoding.Encoding

// Composite applies a different encoding to each input segment.
type Composite = encoding.Composite

// Create builds the encoding selected by cfg for nDims raw input dimensions.
func Create(cfg config.Encoding, nDims int) (Encoding, error) {
	return encoding.Create(cfg, nDims)
}

// NewIdentity passes inputs through with an affine rescale.
func NewIdentity(nDims int, scale, offset float32) Encoding {
	return encoding.NewIdentity(nDims, scale, offset)
}

// NewOneBlob spreads each input across bins with a smooth kernel.
func NewOneBlob(nDims, bins int) (Encoding, error) {
	return encoding.NewOneBlob(nDims, bins)
}

// NewFrequency expands each input into sine/cosine pairs over octaves.
func NewFrequency(nDims, frequencies int) (Encoding, error) {
	return encoding.NewFrequency(nDims, frequencies)
}

// NewNRC builds the composite used for radiance-cache style inputs.
func NewNRC(nDims int) (*Composite, error) {
	return encoding.NewNRC(nDims)
}
