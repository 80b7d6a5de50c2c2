// Package task runs one config's script batch serially as child
// processes and classifies how each child exited.
package task

import (
	"fmt"
	"os"
	"sync"

	"github.com/matutter/foremon/internal/config"
	"github.com/matutter/foremon/internal/display"
	"github.com/matutter/foremon/internal/guard"
	"github.com/matutter/foremon/internal/watch"
)

// Hook observes a task run. Hooks may block; errors and panics are
// contained and never abort the run.
type Hook func(t *Task, trigger *watch.Event) error

// Task wraps one config and supervises at most one child at a time.
type Task struct {
	mu             sync.Mutex
	cfg            *config.Config
	spawner        Spawner
	process        SpawnedProcess
	pendingSignals []int
	running        bool
	runCount       int
	crashed        bool
	before         []Hook
	after          []Hook
}

// New creates a task for cfg using the real shell spawner.
func New(cfg *config.Config) *Task {
	return NewWithSpawner(cfg, &ShellSpawner{})
}

// NewWithSpawner creates a task with a caller-provided spawner.
func NewWithSpawner(cfg *config.Config, spawner Spawner) *Task {
	return &Task{cfg: cfg, spawner: spawner}
}

// Name returns the task alias, defaulting to "default".
func (t *Task) Name() string { return t.cfg.Name() }

// Config returns the task's configuration.
func (t *Task) Config() *config.Config { return t.cfg }

// Running reports whether a batch is currently executing.
func (t *Task) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Pid returns the current child's PID, or 0 when no child is alive.
func (t *Task) Pid() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.process == nil {
		return 0
	}
	return t.process.Pid()
}

// RunCount returns the number of completed runs.
func (t *Task) RunCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runCount
}

// Crashed reports whether the most recent run stopped on an
// unexpected exit. After-hooks observe the value of the run they
// follow.
func (t *Task) Crashed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.crashed
}

func (t *Task) setCrashed(v bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.crashed = v
}

// AddBeforeHook registers a hook invoked before each run.
func (t *Task) AddBeforeHook(h Hook) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.before = append(t.before, h)
}

// AddAfterHook registers a hook invoked after each run.
func (t *Task) AddAfterHook(h Hook) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.after = append(t.after, h)
}

// SendSignal records sig as pending and forwards it to the current
// child, if any. Missing children are not an error.
func (t *Task) SendSignal(sig int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.process == nil {
		return
	}
	t.pendingSignals = append(t.pendingSignals, sig)
	_ = t.process.Signal(sig)
}

// Terminate sends the config's terminal signal to the current child.
func (t *Task) Terminate() {
	t.SendSignal(t.cfg.TermSignal)
}

// classifyExit maps a child's exit code to (exitOK, shouldContinue).
// Signal deaths arrive as negative codes; a pending terminal signal is
// a deliberate stop, any other pending signal lets the batch continue.
func (t *Task) classifyExit(rc int) (bool, bool) {
	if rc == t.cfg.Returncode {
		return true, true
	}

	if rc < 0 {
		sig := -rc
		if t.signalPending(sig) {
			if sig == t.cfg.TermSignal {
				return true, false
			}
			return true, true
		}
	}

	return false, false
}

func (t *Task) signalPending(sig int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.pendingSignals {
		if s == sig {
			return true
		}
	}
	return false
}

// Run executes the script batch serially. If a batch is already
// running the call returns immediately; restart coalescing happens
// upstream in the monitor. The trigger is nil for initial or explicit
// runs.
func (t *Task) Run(trigger *watch.Event) {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.pendingSignals = nil
	t.crashed = false
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.running = false
		t.runCount++
		t.mu.Unlock()
	}()

	t.invokeHooks(true, trigger)
	defer t.invokeHooks(false, trigger)

	env := t.buildEnv()
	clean := true

	for _, script := range t.cfg.Scripts {
		display.Success(fmt.Sprintf("starting `%s`", script))

		proc, err := t.spawner.Spawn(script, t.cfg.Cwd, env)
		if err != nil {
			display.Error("exec error", err)
			t.setCrashed(true)
			clean = false
			break
		}

		pid := proc.Pid()
		guard.Add(pid, t.cfg.TermSignal)
		t.mu.Lock()
		t.process = proc
		t.mu.Unlock()

		rc, _ := proc.Wait()

		t.mu.Lock()
		t.process = nil
		t.mu.Unlock()
		guard.Remove(pid)

		exitOK, shouldContinue := t.classifyExit(rc)
		if exitOK && shouldContinue {
			continue
		}

		clean = false
		if !exitOK {
			t.setCrashed(true)
			display.Error(fmt.Sprintf(
				"app crashed %d - waiting for file changes before restart", rc))
		} else {
			display.Success(fmt.Sprintf("terminated %d - `%s`", pid, script))
		}
		break
	}

	if clean {
		display.Success("clean exit - waiting for changes before restart")
	}
}

func (t *Task) invokeHooks(before bool, trigger *watch.Event) {
	t.mu.Lock()
	hooks := t.after
	if before {
		hooks = t.before
	}
	snapshot := append([]Hook(nil), hooks...)
	t.mu.Unlock()

	for _, h := range snapshot {
		t.safeHook(h, trigger)
	}
}

func (t *Task) safeHook(h Hook, trigger *watch.Event) {
	defer func() {
		if r := recover(); r != nil {
			display.Error("task hook error", r)
		}
	}()
	if err := h(t, trigger); err != nil {
		display.Error("task hook error", err)
	}
}

// buildEnv merges the process environment with the config's
// environment map.
func (t *Task) buildEnv() []string {
	env := os.Environ()
	for k, v := range t.cfg.Environment {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}
