// Package stream provides the ordered execution queue that all compute
// operations are issued onto.
//
// A Stream is the Go analogue of a device command queue: work submitted with
// Do runs asynchronously with respect to the caller, in submission order.
// There is no cancellation; once enqueued, an operation runs to completion.
package stream

import "sync"

// Stream is a single ordered queue of device work.
//
// Operations enqueued with Do execute in submission order on a dedicated
// worker goroutine. Do returns once the work is enqueued, not once it
// completes; use Synchronize to wait for completion. Ordering across
// different streams is not managed here.
type Stream struct {
	ops    chan func()
	closed bool
	mu     sync.Mutex
	wg     sync.WaitGroup
}

// queueDepth bounds how far the caller can run ahead of the worker.
const queueDepth = 256

// New creates a stream and starts its worker.
func New() *Stream {
	s := &Stream{
		ops: make(chan func(), queueDepth),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *Stream) run() {
	defer s.wg.Done()
	for op := range s.ops {
		op()
	}
}

// Do enqueues op onto the stream. It blocks only if the queue is full.
// Panics if the stream has been closed.
func (s *Stream) Do(op func()) {
	// The send happens under mu so a concurrent Close cannot close the
	// channel between the closed check and the send.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		panic("stream: Do on closed stream")
	}
	s.ops <- op
}

// Synchronize blocks until all work enqueued before the call has completed.
func (s *Stream) Synchronize() {
	done := make(chan struct{})
	s.Do(func() { close(done) })
	<-done
}

// Close drains the queue and stops the worker. Enqueuing after Close panics.
func (s *Stream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	close(s.ops)
	s.wg.Wait()
}
