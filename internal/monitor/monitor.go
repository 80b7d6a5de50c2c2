// Package monitor owns the filesystem observer, the task set, and the
// run-queue cradle that serializes task executions.
package monitor

import (
	"io"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/matutter/foremon/internal/config"
	"github.com/matutter/foremon/internal/debounce"
	"github.com/matutter/foremon/internal/display"
	"github.com/matutter/foremon/internal/errdefs"
	"github.com/matutter/foremon/internal/metrics"
	"github.com/matutter/foremon/internal/watch"
)

// Task is the unit of work the monitor schedules. The script task is
// the usual implementation; the config auto-reload task is another.
type Task interface {
	Name() string
	Config() *config.Config
	Run(trigger *watch.Event)
	Terminate()
	SendSignal(sig int)
	Running() bool
}

// Monitor arbitrates between filesystem events, interactive commands,
// and task runs. All state is guarded by mu; the cradle goroutine is
// the only executor of task runs.
type Monitor struct {
	mu            sync.Mutex
	observer      *watch.Observer
	tasks         []Task
	active        map[string]bool
	queue         *runQueue
	debouncer     *debounce.Debouncer
	pipe          io.Reader
	collector     *metrics.Collector
	isTerminating bool
	pausedCount   int
	inputStarted  bool
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithPipe sets the interactive input source (default os.Stdin).
func WithPipe(pipe io.Reader) Option {
	return func(m *Monitor) { m.pipe = pipe }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(m *Monitor) { m.collector = c }
}

// New creates a monitor. Filesystem events are coalesced for dwell
// before a task restart is queued.
func New(dwell time.Duration, opts ...Option) (*Monitor, error) {
	obs, err := watch.NewObserver()
	if err != nil {
		return nil, err
	}

	m := &Monitor{
		observer: obs,
		active:   map[string]bool{},
		queue:    newRunQueue(),
		pipe:     os.Stdin,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.debouncer = debounce.New(dwell, func(e debounce.Entry) {
		pending := e.Arg.(pendingEvent)
		m.QueueTaskEvent(pending.task, pending.event)
	})
	if m.collector != nil {
		m.debouncer.OnSuppressed = m.collector.SuppressedTotal.Inc
	}

	return m, nil
}

// pendingEvent is the debouncer payload.
type pendingEvent struct {
	task  Task
	event *watch.Event
}

// SetPipe replaces the interactive input source.
func (m *Monitor) SetPipe(pipe io.Reader) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pipe = pipe
}

// AllTasks returns the registered tasks in registration order.
func (m *Monitor) AllTasks() []Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Task(nil), m.tasks...)
}

// GetTask returns the task with the given name, or nil.
func (m *Monitor) GetTask(name string) Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		if t.Name() == name {
			return t
		}
	}
	return nil
}

// AddTask registers a task and schedules its watch paths. Missing
// paths are warned and dropped; a task with no usable path is an
// error, as is a duplicate alias.
func (m *Monitor) AddTask(t Task) error {
	m.mu.Lock()
	for _, existing := range m.tasks {
		if existing.Name() == t.Name() {
			m.mu.Unlock()
			return errdefs.DuplicateAlias(t.Name())
		}
	}
	m.mu.Unlock()

	cfg := t.Config()

	var valid []string
	for _, path := range cfg.Paths {
		if _, err := os.Stat(path); err != nil {
			display.Warning("cannot watch", path)
			continue
		}
		valid = append(valid, path)
	}
	if len(valid) == 0 {
		return errdefs.NothingToDo("cannot find watch paths, nothing to do...")
	}

	ignore := append(append([]string(nil), cfg.Ignore...), cfg.IgnoreDefaults...)
	sub := watch.NewSubscription(watch.SubscriptionConfig{
		Patterns:      cfg.Patterns,
		Ignore:        ignore,
		Events:        cfg.Events,
		Recursive:     cfg.Recursive,
		IgnoreDirs:    cfg.IgnoreDirs,
		CaseSensitive: !cfg.IgnoreCase,
		Handler: func(ev watch.Event) {
			m.handleEvent(t, &ev)
		},
	})

	display.Debug("paths", valid)
	display.Debug("patterns", cfg.Patterns)
	display.Debug("ignore", ignore)

	for _, path := range valid {
		if err := m.observer.Schedule(sub, path, cfg.Recursive); err != nil {
			display.Warning("cannot watch", path, err)
		}
	}

	m.mu.Lock()
	m.tasks = append(m.tasks, t)
	count := len(m.tasks)
	m.mu.Unlock()

	if m.collector != nil {
		m.collector.Tasks.Set(float64(count))
	}
	return nil
}

// handleEvent feeds a matched filesystem event into the debouncer.
// It runs on the observer's notify goroutine; the debouncer is the
// hand-off point into the monitor's own scheduling.
func (m *Monitor) handleEvent(t Task, ev *watch.Event) {
	m.debouncer.Submit(t.Name(), t.Config().Order, pendingEvent{task: t, event: ev})
}

// QueueTaskEvent enqueues a run for the task unless the monitor is
// terminating or paused.
func (m *Monitor) QueueTaskEvent(t Task, ev *watch.Event) {
	m.mu.Lock()
	drop := m.isTerminating || m.pausedCount > 0
	m.mu.Unlock()
	if drop {
		return
	}

	if ev != nil {
		if m.collector != nil {
			m.collector.EventTotal.WithLabelValues(t.Name()).Inc()
		}
		display.Success("restarting due to changes...")
	}
	m.queue.push(queueItem{task: t, trigger: ev})
}

// QueueAllTasks enqueues a run for every registered task.
func (m *Monitor) QueueAllTasks() {
	for _, t := range m.AllTasks() {
		m.QueueTaskEvent(t, nil)
	}
}

// runTask executes one popped run. A task already active or running is
// skipped; an event arriving mid-run coalesces into nothing rather
// than queueing a backlog.
func (m *Monitor) runTask(t Task, trigger *watch.Event) {
	name := t.Name()

	m.mu.Lock()
	if m.active[name] || t.Running() {
		m.mu.Unlock()
		return
	}
	m.active[name] = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.active, name)
		m.mu.Unlock()

		if r := recover(); r != nil {
			display.Error("fatal error from task "+name, r)
		}
	}()

	if m.collector != nil {
		m.collector.TaskRunTotal.WithLabelValues(name).Inc()
	}
	t.Run(trigger)
}

// Paused makes QueueTaskEvent drop every new run request while held.
// The returned release function ends the pause; calls after the first
// do nothing.
func (m *Monitor) Paused() func() {
	m.mu.Lock()
	m.pausedCount++
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			m.pausedCount--
			m.mu.Unlock()
		})
	}
}

// Reset unschedules every observer handler and clears the task set.
// The observer keeps running so tasks can be re-added after a reload.
func (m *Monitor) Reset() {
	m.observer.UnscheduleAll()
	m.debouncer.Cancel()

	m.mu.Lock()
	m.tasks = nil
	m.mu.Unlock()

	if m.collector != nil {
		m.collector.Tasks.Set(0)
	}
}

// TerminateTasks sends each task's terminal signal to its current
// child. Tasks without a child are unaffected, so a second call with
// no intervening run is a no-op.
func (m *Monitor) TerminateTasks() {
	for _, t := range m.AllTasks() {
		t.Terminate()
	}
}

// RequestExit stops the cradle: a sentinel wakes the queue and the
// observer shuts down.
func (m *Monitor) RequestExit() {
	m.mu.Lock()
	if m.isTerminating {
		m.mu.Unlock()
		return
	}
	m.isTerminating = true
	m.mu.Unlock()

	m.queue.push(queueItem{sentinel: true})
}

// Terminating reports whether shutdown has begun.
func (m *Monitor) Terminating() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isTerminating
}

// Start launches the observer and optionally queues an initial run of
// every task. It reports false when there is nothing to watch.
func (m *Monitor) Start(runOnStart bool) bool {
	if len(m.AllTasks()) == 0 {
		return false
	}
	if m.observer.Alive() {
		return false
	}
	if runOnStart {
		m.QueueAllTasks()
	}
	m.observer.Start()
	return true
}

// StartInteractive runs the cradle until quit: pop a pending run,
// execute it, repeat. A sentinel item ends the loop. Interactive
// commands are read line-by-line from the configured pipe.
func (m *Monitor) StartInteractive(runOnStart bool) bool {
	if !m.Start(runOnStart) {
		return false
	}

	m.startInputReader()

	defer func() {
		if r := recover(); r != nil {
			display.Error("fatal error, shutting down", r)
		}
		m.stop()
	}()

	for {
		item := m.queue.pop()
		if item.sentinel {
			break
		}
		m.runTask(item.task, item.trigger)
	}
	return true
}

// stop terminates the observer and kills any still-running children.
func (m *Monitor) stop() {
	m.mu.Lock()
	m.isTerminating = true
	m.mu.Unlock()

	m.observer.Stop()

	for _, t := range m.AllTasks() {
		if t.Running() {
			display.Warning("terminating", t.Name())
			t.SendSignal(int(syscall.SIGKILL))
		}
	}
}
