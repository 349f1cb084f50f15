// Package workqueue holds deferred quality-audit completions until the
// scheduler picks them up. The queue is a plain FIFO with at-most-once
// delivery: the scheduler drains a snapshot, and items whose completion
// fails are dropped with a logged warning rather than retried.
package workqueue

import (
	"sync"
)

// Item is one deferred quality-audit completion request.
type Item struct {
	// ID is assigned by Push and identifies the item for Remove.
	ID int64 `json:"id"`

	// JobName and RunNumber locate the originating CI run.
	JobName   string `json:"job_name"`
	RunNumber int    `json:"run_number"`

	// ProjectKey is the analysis-server project to read measures from.
	ProjectKey string `json:"project_key"`

	// Application, Version and Component locate the ledger entry to
	// complete.
	Application string `json:"application"`
	Version     string `json:"version"`
	Component   string `json:"component"`
}

// Queue is a mutex-guarded FIFO. Duplicates are allowed; each Push gets a
// fresh id.
type Queue struct {
	mu     sync.Mutex
	items  []Item
	nextID int64
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{}
}

// Push appends the item and returns its assigned id.
func (q *Queue) Push(item Item) int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextID++
	item.ID = q.nextID
	q.items = append(q.items, item)
	return item.ID
}

// Snapshot returns the queued items in FIFO order. The caller owns the
// returned slice; items stay queued until removed.
func (q *Queue) Snapshot() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Item, len(q.items))
	copy(out, q.items)
	return out
}

// Remove deletes the item with the given id and reports whether it was
// still queued.
func (q *Queue) Remove(id int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, item := range q.items {
		if item.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
