// Package debounce coalesces bursts of filesystem events into a single
// delayed callback per task.
package debounce

import (
	"sort"
	"sync"
	"time"

	"github.com/matutter/foremon/internal/display"
)

// warnStep is how many suppressed events accrue between high-volume
// warnings.
const warnStep = 100

// Entry is the callback payload: the key it was submitted under, the
// ordering rank used at drain time, and the last submitted argument.
type Entry struct {
	Key   string
	Order int
	Arg   any
}

// Callback consumes drained entries, one call per key.
type Callback func(Entry)

// container accumulates repeat submits for one key between drains.
type container struct {
	entry      Entry
	setAt      time.Time
	resetCount int
	warnAfter  int
	seq        int
}

// Debouncer coalesces keyed submissions. Submit is safe to call from
// any goroutine; notifications arrive from the observer's context.
type Debouncer struct {
	mu       sync.Mutex
	dwell    time.Duration
	callback Callback
	pending  map[string]*container
	timer    *time.Timer
	seq      int

	// OnSuppressed, when set, is called once per submit that replaced a
	// still-pending entry. Set before first use.
	OnSuppressed func()
}

// New creates a debouncer. When dwell <= 0 every submit fires the
// callback synchronously with no batching.
func New(dwell time.Duration, callback Callback) *Debouncer {
	return &Debouncer{
		dwell:    dwell,
		callback: callback,
		pending:  map[string]*container{},
	}
}

// Submit records arg under key and (re)schedules the drain timer. A
// repeat submit before the drain replaces the recorded argument: the
// last event of a burst wins.
func (d *Debouncer) Submit(key string, order int, arg any) {
	if d.dwell <= 0 {
		d.callback(Entry{Key: key, Order: order, Arg: arg})
		return
	}

	d.mu.Lock()
	cont, ok := d.pending[key]
	if !ok {
		d.seq++
		cont = &container{warnAfter: warnStep, seq: d.seq}
		d.pending[key] = cont
	} else {
		cont.resetCount++
		if d.OnSuppressed != nil {
			d.OnSuppressed()
		}
	}
	cont.setAt = time.Now()
	cont.entry = Entry{Key: key, Order: order, Arg: arg}

	warn := 0
	if cont.resetCount >= cont.warnAfter {
		warn = cont.resetCount
		cont.warnAfter += warnStep
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.dwell, d.drain)
	d.mu.Unlock()

	if warn > 0 {
		display.Warning("detected high event volume - suppressed", warn, "events")
	}
}

// drain snapshots and clears the pending map, then invokes the callback
// once per entry in ascending order (ties broken by first submission).
func (d *Debouncer) drain() {
	d.mu.Lock()
	d.timer = nil
	containers := make([]*container, 0, len(d.pending))
	for _, cont := range d.pending {
		containers = append(containers, cont)
	}
	d.pending = map[string]*container{}
	d.mu.Unlock()

	sort.SliceStable(containers, func(i, j int) bool {
		if containers[i].entry.Order != containers[j].entry.Order {
			return containers[i].entry.Order < containers[j].entry.Order
		}
		return containers[i].seq < containers[j].seq
	})

	for _, cont := range containers {
		d.safeCall(cont.entry)
	}
}

func (d *Debouncer) safeCall(entry Entry) {
	defer func() {
		if r := recover(); r != nil {
			display.Error("drain callback error", r)
		}
	}()
	d.callback(entry)
}

// Cancel stops any scheduled drain and discards pending entries.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = map[string]*container{}
}

// Pending returns the number of keys awaiting a drain.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
