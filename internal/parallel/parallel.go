// Package parallel provides the chunked loop helpers the compute engines are
// data-parallel over.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 1,
	}
}

// For executes f(i) for i in [0, n) with optional parallelism.
// Falls back to sequential execution if parallelism is disabled or n is too small.
func For(n int, f func(i int), cfg Config) {
	if !cfg.Enabled || n <= cfg.MinChunkSize {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	var wg sync.WaitGroup
	chunkSize := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize)

	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				f(i)
			}
		}(start, end)
	}
	wg.Wait()
}

// ForWorkers executes f(worker, i) for i in [0, n), partitioned across at
// most cfg.NumWorkers goroutines. The worker index is stable within a chunk,
// which lets callers accumulate into per-worker scratch buffers without
// locking. Worker indices are in [0, NumWorkers(n, cfg)).
func ForWorkers(n int, f func(worker, i int), cfg Config) {
	if !cfg.Enabled || n <= 1 {
		for i := 0; i < n; i++ {
			f(0, i)
		}
		return
	}

	workers := cfg.NumWorkers
	if workers > n {
		workers = n
	}
	chunkSize := (n + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * chunkSize
		if start >= n {
			break
		}
		end := min(start+chunkSize, n)
		wg.Add(1)
		go func(worker, s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				f(worker, i)
			}
		}(w, start, end)
	}
	wg.Wait()
}

// NumWorkers returns the worker-index bound ForWorkers will use for n items.
func NumWorkers(n int, cfg Config) int {
	if !cfg.Enabled || n <= 1 {
		return 1
	}
	if cfg.NumWorkers > n {
		return n
	}
	return cfg.NumWorkers
}
