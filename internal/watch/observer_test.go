package watch

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/matutter/foremon/internal/config"
)

type eventSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *eventSink) handler(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *eventSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func waitForEvents(t *testing.T, sink *eventSink, n int) []Event {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if events := sink.snapshot(); len(events) >= n {
			return events
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d events, got %v", n, sink.snapshot())
	return nil
}

func newTestObserver(t *testing.T) *Observer {
	t.Helper()
	obs, err := NewObserver()
	if err != nil {
		t.Fatalf("cannot create observer: %v", err)
	}
	t.Cleanup(obs.Stop)
	return obs
}

func subConfig(sink *eventSink, patterns []string) SubscriptionConfig {
	return SubscriptionConfig{
		Patterns:   patterns,
		Events:     []config.Event{config.Created, config.Modified, config.Deleted, config.Moved},
		Recursive:  true,
		IgnoreDirs: true,
		Handler:    sink.handler,
	}
}

func TestObserverDeliversMatchingEvents(t *testing.T) {
	dir := t.TempDir()
	obs := newTestObserver(t)
	sink := &eventSink{}

	sub := NewSubscription(subConfig(sink, []string{"*.txt"}))
	if err := obs.Schedule(sub, dir, true); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	obs.Start()

	path := filepath.Join(dir, "note.txt")
	if err := os.WriteFile(path, []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}

	events := waitForEvents(t, sink, 1)
	if events[0].Kind != config.Created {
		t.Errorf("kind = %q, want created", events[0].Kind)
	}
	if filepath.Base(events[0].Path) != "note.txt" {
		t.Errorf("path = %q", events[0].Path)
	}
}

func TestObserverFiltersNonMatching(t *testing.T) {
	dir := t.TempDir()
	obs := newTestObserver(t)
	sink := &eventSink{}

	sub := NewSubscription(subConfig(sink, []string{"*.go"}))
	if err := obs.Schedule(sub, dir, true); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	obs.Start()

	if err := os.WriteFile(filepath.Join(dir, "note.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "main.go"), []byte("package x"), 0o644); err != nil {
		t.Fatal(err)
	}

	events := waitForEvents(t, sink, 1)
	for _, ev := range events {
		if filepath.Base(ev.Path) != "main.go" {
			t.Errorf("unexpected event for %q", ev.Path)
		}
	}
}

func TestObserverIgnoreList(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}

	obs := newTestObserver(t)
	sink := &eventSink{}

	cfg := subConfig(sink, []string{"*"})
	cfg.Ignore = []string{".git/*"}
	sub := NewSubscription(cfg)
	if err := obs.Schedule(sub, dir, true); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	obs.Start()

	if err := os.WriteFile(filepath.Join(dir, ".git", "HEAD"), []byte("ref"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "kept.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}

	events := waitForEvents(t, sink, 1)
	for _, ev := range events {
		if filepath.Base(ev.Path) == "HEAD" {
			t.Errorf("ignored path delivered: %q", ev.Path)
		}
	}
}

func TestObserverRecursiveNewDirectory(t *testing.T) {
	dir := t.TempDir()
	obs := newTestObserver(t)
	sink := &eventSink{}

	sub := NewSubscription(subConfig(sink, []string{"*.txt"}))
	if err := obs.Schedule(sub, dir, true); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	obs.Start()

	nested := filepath.Join(dir, "sub")
	if err := os.Mkdir(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	// Give the observer a beat to pick up the new directory watch.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(nested, "deep.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}

	events := waitForEvents(t, sink, 1)
	found := false
	for _, ev := range events {
		if filepath.Base(ev.Path) == "deep.txt" {
			found = true
		}
	}
	if !found {
		t.Errorf("no event for file in new subdirectory: %v", events)
	}
}

func TestEventSubsetFilter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.txt")
	if err := os.WriteFile(path, []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}

	obs := newTestObserver(t)
	sink := &eventSink{}

	cfg := subConfig(sink, []string{"*.txt"})
	cfg.Events = []config.Event{config.Deleted}
	sub := NewSubscription(cfg)
	if err := obs.Schedule(sub, dir, true); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	obs.Start()

	if err := os.WriteFile(path, []byte("b"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	events := waitForEvents(t, sink, 1)
	for _, ev := range events {
		if ev.Kind != config.Deleted {
			t.Errorf("event %q delivered despite deleted-only subscription", ev.Kind)
		}
	}
}

func TestMapOp(t *testing.T) {
	tests := []struct {
		op   fsnotify.Op
		want config.Event
		ok   bool
	}{
		{fsnotify.Create, config.Created, true},
		{fsnotify.Write, config.Modified, true},
		{fsnotify.Remove, config.Deleted, true},
		{fsnotify.Rename, config.Moved, true},
		{fsnotify.Chmod, "", false},
	}
	for _, tt := range tests {
		got, ok := mapOp(tt.op)
		if ok != tt.ok || got != tt.want {
			t.Errorf("mapOp(%v) = (%q,%t), want (%q,%t)", tt.op, got, ok, tt.want, tt.ok)
		}
	}
}

func TestUnscheduleAllStopsDelivery(t *testing.T) {
	dir := t.TempDir()
	obs := newTestObserver(t)
	sink := &eventSink{}

	sub := NewSubscription(subConfig(sink, []string{"*"}))
	if err := obs.Schedule(sub, dir, true); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	obs.Start()
	obs.UnscheduleAll()

	if err := os.WriteFile(filepath.Join(dir, "late.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}

	time.Sleep(200 * time.Millisecond)
	if events := sink.snapshot(); len(events) != 0 {
		t.Errorf("events after unschedule = %v, want none", events)
	}
}
