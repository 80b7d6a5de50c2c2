// Package watch adapts fsnotify into the pattern-matching, recursive
// observer the monitor consumes. fsnotify watches are per-directory;
// this package walks subtrees, tracks directories created later, and
// filters raw notifications through per-subscription glob patterns.
package watch

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/matutter/foremon/internal/config"
	"github.com/matutter/foremon/internal/display"
)

// stopTimeout bounds the wait for the notify loop to drain on Stop.
// Exceeding it is not fatal.
const stopTimeout = 5 * time.Second

// Event is one filesystem notification after pattern filtering.
type Event struct {
	Path string
	Kind config.Event
}

// Handler consumes matched events. Handlers run on the observer's
// notify goroutine and must not block.
type Handler func(Event)

// Subscription filters raw notifications for one task.
type Subscription struct {
	mu            sync.Mutex
	roots         []string // absolute watch roots
	patterns      []string
	ignore        []string
	events        map[config.Event]bool
	recursive     bool
	ignoreDirs    bool
	caseSensitive bool
	handler       Handler
}

// SubscriptionConfig carries the watch-relevant slice of a task config.
type SubscriptionConfig struct {
	Patterns      []string
	Ignore        []string
	Events        []config.Event
	Recursive     bool
	IgnoreDirs    bool
	CaseSensitive bool
	Handler       Handler
}

// NewSubscription builds a subscription with no roots; roots are added
// by Observer.Schedule.
func NewSubscription(cfg SubscriptionConfig) *Subscription {
	events := make(map[config.Event]bool, len(cfg.Events))
	for _, e := range cfg.Events {
		events[e] = true
	}
	return &Subscription{
		patterns:      cfg.Patterns,
		ignore:        cfg.Ignore,
		events:        events,
		recursive:     cfg.Recursive,
		ignoreDirs:    cfg.IgnoreDirs,
		caseSensitive: cfg.CaseSensitive,
		handler:       cfg.Handler,
	}
}

// wants reports whether the subscription matches the given event.
func (s *Subscription) wants(path string, kind config.Event, isDir bool) bool {
	if !s.events[kind] {
		return false
	}
	if isDir && s.ignoreDirs {
		return false
	}
	if !s.covers(path) {
		return false
	}
	if matchAny(s.ignore, path, s.caseSensitive) {
		return false
	}
	return matchAny(s.patterns, path, s.caseSensitive)
}

// covers reports whether path falls under one of the watch roots,
// honoring the recursive flag.
func (s *Subscription) covers(path string) bool {
	s.mu.Lock()
	roots := append([]string(nil), s.roots...)
	s.mu.Unlock()

	dir := filepath.Dir(path)
	for _, root := range roots {
		if s.recursive {
			if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
				return true
			}
		} else if dir == root {
			return true
		}
	}
	return false
}

// Observer owns the fsnotify watcher and dispatches raw notifications
// to subscriptions. The notify loop is the only foreign-context
// producer in the system; everything it touches downstream must be
// internally synchronized.
type Observer struct {
	mu      sync.Mutex
	watcher *fsnotify.Watcher
	subs    []*Subscription
	watched map[string]bool
	alive   bool
	done    chan struct{}
}

// NewObserver creates an observer. The notify loop starts with Start.
func NewObserver() (*Observer, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Observer{
		watcher: w,
		watched: map[string]bool{},
		done:    make(chan struct{}),
	}, nil
}

// Schedule attaches a subscription to a path. Directories are watched
// directly; when recursive, the whole subtree is added. A path may be a
// plain file, in which case its directory is watched.
func (o *Observer) Schedule(sub *Subscription, path string, recursive bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	info, err := os.Stat(abs)
	if err != nil {
		return err
	}

	root := abs
	if !info.IsDir() {
		root = filepath.Dir(abs)
	}

	sub.mu.Lock()
	sub.roots = append(sub.roots, root)
	sub.mu.Unlock()
	if !containsSub(o.subs, sub) {
		o.subs = append(o.subs, sub)
	}

	if recursive && info.IsDir() {
		return o.addTreeLocked(root)
	}
	return o.addWatchLocked(root)
}

func containsSub(subs []*Subscription, sub *Subscription) bool {
	for _, s := range subs {
		if s == sub {
			return true
		}
	}
	return false
}

func (o *Observer) addWatchLocked(dir string) error {
	if o.watched[dir] {
		return nil
	}
	if err := o.watcher.Add(dir); err != nil {
		return err
	}
	o.watched[dir] = true
	return nil
}

func (o *Observer) addTreeLocked(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtrees are skipped, not fatal
		}
		if !d.IsDir() {
			return nil
		}
		if err := o.addWatchLocked(path); err != nil {
			display.Debug("cannot watch", path, err)
		}
		return nil
	})
}

// Start launches the notify loop.
func (o *Observer) Start() {
	o.mu.Lock()
	if o.alive {
		o.mu.Unlock()
		return
	}
	o.alive = true
	o.mu.Unlock()
	go o.loop()
}

// Alive reports whether the notify loop is running.
func (o *Observer) Alive() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.alive
}

func (o *Observer) loop() {
	defer close(o.done)
	for {
		select {
		case ev, ok := <-o.watcher.Events:
			if !ok {
				return
			}
			o.dispatch(ev)
		case err, ok := <-o.watcher.Errors:
			if !ok {
				return
			}
			display.Debug("observer error", err)
		}
	}
}

func (o *Observer) dispatch(ev fsnotify.Event) {
	kind, ok := mapOp(ev.Op)
	if !ok {
		return
	}

	path := filepath.Clean(ev.Name)
	isDir := false
	if info, err := os.Stat(path); err == nil {
		isDir = info.IsDir()
	}

	o.mu.Lock()
	// A deleted or renamed directory can no longer be stat'd; fall back
	// to the watch table.
	if !isDir && o.watched[path] {
		isDir = true
		_ = o.watcher.Remove(path)
		delete(o.watched, path)
	}
	subs := make([]*Subscription, len(o.subs))
	copy(subs, o.subs)
	o.mu.Unlock()

	// New directories under a recursive root need their own watch.
	if kind == config.Created && isDir {
		o.mu.Lock()
		for _, sub := range subs {
			if sub.recursive && sub.covers(path) {
				if err := o.addTreeLocked(path); err != nil {
					display.Debug("cannot watch", path, err)
				}
				break
			}
		}
		o.mu.Unlock()
	}

	for _, sub := range subs {
		if sub.wants(path, kind, isDir) {
			sub.handler(Event{Path: path, Kind: kind})
		}
	}
}

func mapOp(op fsnotify.Op) (config.Event, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return config.Created, true
	case op.Has(fsnotify.Write):
		return config.Modified, true
	case op.Has(fsnotify.Remove):
		return config.Deleted, true
	case op.Has(fsnotify.Rename):
		return config.Moved, true
	default:
		return "", false
	}
}

// UnscheduleAll drops every subscription and directory watch but keeps
// the notify loop running so the observer can be reused after a reload.
func (o *Observer) UnscheduleAll() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.subs = nil
	for dir := range o.watched {
		_ = o.watcher.Remove(dir)
	}
	o.watched = map[string]bool{}
}

// Stop closes the watcher and waits for the notify loop to drain.
// The wait is best-effort; on timeout the supervisor continues.
func (o *Observer) Stop() {
	o.mu.Lock()
	if !o.alive {
		o.mu.Unlock()
		return
	}
	o.alive = false
	o.mu.Unlock()

	_ = o.watcher.Close()

	select {
	case <-o.done:
	case <-time.After(stopTimeout):
		display.Debug("observer stop timed out, continuing")
	}
}
