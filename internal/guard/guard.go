// Package guard keeps a process-wide registry of child PIDs so that no
// descendant outlives the supervisor. Tasks spawn shells; without
// process-group signaling, grandchildren would survive an unexpected
// supervisor exit.
package guard

import (
	"sync"
	"syscall"

	"github.com/matutter/foremon/internal/display"
)

var (
	mu   sync.Mutex
	pids = map[int]int{} // pid -> terminal signal
)

// Add registers a child PID with the signal to use at cleanup.
func Add(pid, termSignal int) {
	mu.Lock()
	defer mu.Unlock()
	pids[pid] = termSignal
}

// Remove unregisters a child PID. Unknown PIDs are ignored.
func Remove(pid int) {
	mu.Lock()
	defer mu.Unlock()
	delete(pids, pid)
}

// Pids returns the currently registered PIDs.
func Pids() []int {
	mu.Lock()
	defer mu.Unlock()
	out := make([]int, 0, len(pids))
	for pid := range pids {
		out = append(out, pid)
	}
	return out
}

// Kill signals a single PID and, when group is set, its process group.
// ESRCH is swallowed: the child may already be gone.
func Kill(pid, sig int, group bool) {
	display.Debug("sending", sig, "pid", pid)
	if group {
		if pgid, err := syscall.Getpgid(pid); err == nil {
			_ = syscall.Kill(-pgid, syscall.Signal(sig))
		}
	}
	_ = syscall.Kill(pid, syscall.Signal(sig))
}

// Cleanup signals every remaining registered child and its process
// group. It is idempotent and safe to call from any exit path.
func Cleanup() {
	mu.Lock()
	remaining := make(map[int]int, len(pids))
	for pid, sig := range pids {
		remaining[pid] = sig
	}
	pids = map[int]int{}
	mu.Unlock()

	for pid, sig := range remaining {
		Kill(pid, sig, true)
	}
}
