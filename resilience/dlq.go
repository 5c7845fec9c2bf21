package resilience

import (
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-shopsync/core"
	"github.com/google/uuid"
)

const DefaultDLQListLimit = 10

// DeadLetterQueue is a bounded FIFO of failed dispatches. When full the
// oldest entry is evicted. Contents do not survive a restart.
type DeadLetterQueue struct {
	mu       sync.RWMutex
	capacity int
	entries  []core.DeadLetterEntry
	now      core.Clock
}

func NewDeadLetterQueue(capacity int) *DeadLetterQueue {
	if capacity <= 0 {
		capacity = core.DefaultResilienceConfig().DLQCapacity
	}
	return &DeadLetterQueue{
		capacity: capacity,
		entries:  make([]core.DeadLetterEntry, 0, min(capacity, 64)),
		now:      time.Now,
	}
}

// Add stores entry, filling ID and FailedAt when unset, and returns the stored
// copy together with any entry evicted to make room.
func (q *DeadLetterQueue) Add(entry core.DeadLetterEntry) (stored core.DeadLetterEntry, evicted *core.DeadLetterEntry) {
	if q == nil {
		return entry, nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if strings.TrimSpace(entry.ID) == "" {
		entry.ID = uuid.NewString()
	}
	if entry.FailedAt.IsZero() {
		entry.FailedAt = q.clock().UTC()
	}
	entry.Payload = append([]byte(nil), entry.Payload...)
	if len(q.entries) >= q.capacity {
		oldest := q.entries[0]
		evicted = &oldest
		copy(q.entries, q.entries[1:])
		q.entries = q.entries[:len(q.entries)-1]
	}
	q.entries = append(q.entries, entry)
	return entry, evicted
}

// List returns the most recent limit entries, oldest first.
func (q *DeadLetterQueue) List(limit int) []core.DeadLetterEntry {
	if q == nil {
		return nil
	}
	if limit <= 0 {
		limit = DefaultDLQListLimit
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	start := 0
	if len(q.entries) > limit {
		start = len(q.entries) - limit
	}
	out := make([]core.DeadLetterEntry, len(q.entries)-start)
	copy(out, q.entries[start:])
	return out
}

func (q *DeadLetterQueue) Get(id string) (core.DeadLetterEntry, bool) {
	if q == nil {
		return core.DeadLetterEntry{}, false
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if idx := q.indexOf(id); idx >= 0 {
		return q.entries[idx], true
	}
	return core.DeadLetterEntry{}, false
}

func (q *DeadLetterQueue) Remove(id string) bool {
	if q == nil {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	idx := q.indexOf(id)
	if idx < 0 {
		return false
	}
	q.entries = append(q.entries[:idx], q.entries[idx+1:]...)
	return true
}

// RecordFailure bumps the retry count of an entry still in the queue and
// replaces its error message.
func (q *DeadLetterQueue) RecordFailure(id string, message string) (core.DeadLetterEntry, bool) {
	if q == nil {
		return core.DeadLetterEntry{}, false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	idx := q.indexOf(id)
	if idx < 0 {
		return core.DeadLetterEntry{}, false
	}
	q.entries[idx].RetryCount++
	if strings.TrimSpace(message) != "" {
		q.entries[idx].Error = message
	}
	return q.entries[idx], true
}

// Clear empties the queue and reports how many entries were dropped.
func (q *DeadLetterQueue) Clear() int {
	if q == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.entries)
	q.entries = q.entries[:0]
	return n
}

func (q *DeadLetterQueue) Len() int {
	if q == nil {
		return 0
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.entries)
}

func (q *DeadLetterQueue) Capacity() int {
	if q == nil {
		return 0
	}
	return q.capacity
}

func (q *DeadLetterQueue) indexOf(id string) int {
	id = strings.TrimSpace(id)
	if id == "" {
		return -1
	}
	for i := range q.entries {
		if q.entries[i].ID == id {
			return i
		}
	}
	return -1
}

func (q *DeadLetterQueue) clock() time.Time {
	if q.now == nil {
		return time.Now()
	}
	return q.now()
}
