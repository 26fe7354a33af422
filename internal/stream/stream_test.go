package stream

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStream_Ordering(t *testing.T) {
	s := New()
	defer s.Close()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		s.Do(func() { got = append(got, i) })
	}
	s.Synchronize()

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v, "ops must execute in submission order")
	}
}

func TestStream_SynchronizeWaits(t *testing.T) {
	s := New()
	defer s.Close()

	done := false
	s.Do(func() { done = true })
	s.Synchronize()
	assert.True(t, done)
}

func TestStream_CloseIdempotent(t *testing.T) {
	s := New()
	s.Do(func() {})
	s.Close()
	s.Close()

	assert.Panics(t, func() { s.Do(func() {}) })
}

// A Do racing Close must either enqueue or panic with the closed-stream
// message; it must never reach the channel after Close closes it.
func TestStream_DoCloseRace(t *testing.T) {
	for i := 0; i < 200; i++ {
		s := New()

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					assert.Equal(t, "stream: Do on closed stream", r)
				}
			}()
			for j := 0; j < 20; j++ {
				s.Do(func() {})
			}
		}()

		s.Close()
		wg.Wait()
	}
}
