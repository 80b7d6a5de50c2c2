package monitor

import (
	"sync"

	"github.com/matutter/foremon/internal/watch"
)

// queueItem is one pending run. A sentinel item terminates the cradle.
type queueItem struct {
	task     Task
	trigger  *watch.Event
	sentinel bool
}

// runQueue is an unbounded FIFO. Producers never block; the cradle
// blocks in pop until an item arrives.
type runQueue struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items []queueItem
}

func newRunQueue() *runQueue {
	q := &runQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *runQueue) push(item queueItem) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.cond.Signal()
}

func (q *runQueue) pop() queueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 {
		q.cond.Wait()
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item
}

func (q *runQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
