package debounce

import (
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu      sync.Mutex
	entries []Entry
}

func (r *recorder) callback(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *recorder) snapshot() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestBurstCoalescesToLastSubmit(t *testing.T) {
	rec := &recorder{}
	d := New(30*time.Millisecond, rec.callback)

	for i := 0; i < 10; i++ {
		d.Submit("default", 0, i)
	}

	waitFor(t, func() bool { return len(rec.snapshot()) == 1 })

	entries := rec.snapshot()
	if entries[0].Arg.(int) != 9 {
		t.Errorf("arg = %v, want 9 (last submit wins)", entries[0].Arg)
	}
	if d.Pending() != 0 {
		t.Errorf("pending = %d, want 0 after drain", d.Pending())
	}
}

func TestZeroDwellFiresSynchronously(t *testing.T) {
	rec := &recorder{}
	d := New(0, rec.callback)

	for i := 0; i < 5; i++ {
		d.Submit("default", 0, i)
	}

	entries := rec.snapshot()
	if len(entries) != 5 {
		t.Fatalf("callbacks = %d, want 5", len(entries))
	}
	for i, e := range entries {
		if e.Arg.(int) != i {
			t.Errorf("entries[%d].Arg = %v, want %d", i, e.Arg, i)
		}
	}
}

func TestDrainOrdersByConfigOrder(t *testing.T) {
	rec := &recorder{}
	d := New(30*time.Millisecond, rec.callback)

	d.Submit("third", 3, nil)
	d.Submit("first", 1, nil)
	d.Submit("second", 2, nil)

	waitFor(t, func() bool { return len(rec.snapshot()) == 3 })

	entries := rec.snapshot()
	want := []string{"first", "second", "third"}
	for i, key := range want {
		if entries[i].Key != key {
			t.Errorf("entries[%d].Key = %q, want %q", i, entries[i].Key, key)
		}
	}
}

func TestRepeatSubmitAfterDrainFiresAgain(t *testing.T) {
	rec := &recorder{}
	d := New(20*time.Millisecond, rec.callback)

	d.Submit("default", 0, "a")
	waitFor(t, func() bool { return len(rec.snapshot()) == 1 })

	d.Submit("default", 0, "a")
	waitFor(t, func() bool { return len(rec.snapshot()) == 2 })

	entries := rec.snapshot()
	if entries[0].Arg != entries[1].Arg {
		t.Errorf("drain args differ: %v vs %v", entries[0].Arg, entries[1].Arg)
	}
}

func TestTimerCoalescesAcrossKeys(t *testing.T) {
	rec := &recorder{}
	d := New(40*time.Millisecond, rec.callback)

	d.Submit("a", 0, nil)
	d.Submit("b", 1, nil)

	waitFor(t, func() bool { return len(rec.snapshot()) == 2 })

	if d.Pending() != 0 {
		t.Errorf("pending = %d, want 0", d.Pending())
	}
}

func TestOnSuppressedCountsRepeats(t *testing.T) {
	rec := &recorder{}
	d := New(30*time.Millisecond, rec.callback)

	var mu sync.Mutex
	suppressed := 0
	d.OnSuppressed = func() {
		mu.Lock()
		suppressed++
		mu.Unlock()
	}

	for i := 0; i < 4; i++ {
		d.Submit("default", 0, i)
	}

	waitFor(t, func() bool { return len(rec.snapshot()) == 1 })

	mu.Lock()
	defer mu.Unlock()
	if suppressed != 3 {
		t.Errorf("suppressed = %d, want 3", suppressed)
	}
}

func TestCancelDiscardsPending(t *testing.T) {
	rec := &recorder{}
	d := New(30*time.Millisecond, rec.callback)

	d.Submit("default", 0, nil)
	d.Cancel()

	time.Sleep(80 * time.Millisecond)
	if got := len(rec.snapshot()); got != 0 {
		t.Errorf("callbacks = %d, want 0 after cancel", got)
	}
}
