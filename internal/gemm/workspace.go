package gemm

import (
	"sync"

	"github.com/tinn-ml/tinn/internal/stream"
)

// The GEMM paths share one scratch workspace per stream. The workspace is
// process-wide state: lazily grown, reused across calls, and non-reentrant.
// At most one in-flight operation per stream may hold the slice returned by
// Acquire. Callers running unrelated work on the same stream must release it
// with FreeWorkspace before memory usage matters.
var (
	workspaceMu sync.Mutex
	workspaces  = make(map[*stream.Stream][]float32)
)

// Acquire returns the workspace bound to s, grown to at least n floats.
// The slice stays valid until the next Acquire that grows it or a
// FreeWorkspace call; it must only be used by work enqueued on s.
func Acquire(s *stream.Stream, n int) []float32 {
	workspaceMu.Lock()
	defer workspaceMu.Unlock()

	buf := workspaces[s]
	if cap(buf) < n {
		buf = make([]float32, n)
		workspaces[s] = buf
	}
	return buf[:n]
}

// FreeWorkspace releases the scratch buffer bound to s. The next Acquire on
// the same stream reallocates.
func FreeWorkspace(s *stream.Stream) {
	workspaceMu.Lock()
	defer workspaceMu.Unlock()
	delete(workspaces, s)
}

// WorkspaceSize reports the current capacity bound to s, for tests and
// memory accounting.
func WorkspaceSize(s *stream.Stream) int {
	workspaceMu.Lock()
	defer workspaceMu.Unlock()
	return cap(workspaces[s])
}
