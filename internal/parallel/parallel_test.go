package parallel

import (
	"sync/atomic"
	"testing"
)

func TestFor(t *testing.T) {
	cfg := DefaultConfig()

	var counter int64
	n := 1000

	For(n, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	if counter != int64(n) {
		t.Errorf("Expected %d, got %d", n, counter)
	}
}

func TestFor_Sequential(t *testing.T) {
	cfg := Config{Enabled: false}

	var counter int64
	For(100, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	if counter != 100 {
		t.Errorf("Expected 100, got %d", counter)
	}
}

func TestForWorkers_CoversAllItems(t *testing.T) {
	cfg := DefaultConfig()

	n := 257
	seen := make([]int32, n)
	ForWorkers(n, func(_, i int) {
		atomic.AddInt32(&seen[i], 1)
	}, cfg)

	for i, c := range seen {
		if c != 1 {
			t.Errorf("item %d visited %d times", i, c)
		}
	}
}

func TestForWorkers_WorkerIndexBounded(t *testing.T) {
	cfg := DefaultConfig()

	n := 64
	bound := NumWorkers(n, cfg)
	var bad int64
	ForWorkers(n, func(w, _ int) {
		if w < 0 || w >= bound {
			atomic.AddInt64(&bad, 1)
		}
	}, cfg)

	if bad != 0 {
		t.Errorf("%d items saw out-of-range worker index (bound %d)", bad, bound)
	}
}

func TestForWorkers_SequentialFallback(t *testing.T) {
	cfg := Config{Enabled: false}

	var maxWorker int
	ForWorkers(100, func(w, _ int) {
		if w > maxWorker {
			maxWorker = w
		}
	}, cfg)

	if maxWorker != 0 {
		t.Errorf("sequential fallback must use worker 0, saw %d", maxWorker)
	}
}
