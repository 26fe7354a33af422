// Copyright 2025 Tinn ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package stream provides the ordered asynchronous execution queue that
// sequences all pipeline work.
//
// Every Forward, Backward, optimizer step and view refresh is enqueued on a
// stream and runs in submission order. Results become valid once the stream
// is synchronized:
//
//	s := stream.New()
//	defer s.Close()
//
//	out := model.Forward(s, batch)
//	s.Synchronize()
//	// out is now fully written
package stream

import (
	"github.com/tinn-ml/tinn/internal/stream"
)

// Stream is an ordered asynchronous work queue.
type Stream = stream.Stream

// New starts a stream with its own worker.
func New() *Stream {
	return stream.New()
}
