package scanner

import (
	"sync"
	"sync/atomic"

	"hoardwatch-api/internal/roblox"
)

// ownerQueue is the unbounded FIFO hand-off between the page fetcher and
// the owner processor. The producer is rate-limited by the upstream API,
// so the queue never grows beyond roughly one page of entries in practice.
type ownerQueue struct {
	mu      sync.Mutex
	entries []roblox.OwnerEntry
	done    atomic.Bool
}

func newOwnerQueue() *ownerQueue {
	return &ownerQueue{}
}

// Push appends entries to the tail of the queue.
func (q *ownerQueue) Push(entries ...roblox.OwnerEntry) {
	if len(entries) == 0 {
		return
	}
	q.mu.Lock()
	q.entries = append(q.entries, entries...)
	q.mu.Unlock()
}

// Pop removes and returns the head entry. The second return value is
// false when the queue is empty.
func (q *ownerQueue) Pop() (roblox.OwnerEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return roblox.OwnerEntry{}, false
	}
	entry := q.entries[0]
	q.entries = q.entries[1:]
	return entry, true
}

// Len returns the number of queued entries.
func (q *ownerQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// MarkDone signals that the producer will push no further entries.
func (q *ownerQueue) MarkDone() {
	q.done.Store(true)
}

// Done reports whether the producer has finished.
func (q *ownerQueue) Done() bool {
	return q.done.Load()
}
