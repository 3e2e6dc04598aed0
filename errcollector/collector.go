// Package errcollector implements the bounded per-row error queue
// surfaced by background flushes (spec.md §4.7).
package errcollector

import (
	"sync"

	"github.com/sabledb/client-go/schema"
)

// Collector is a bounded ring buffer of row errors. It is safe for
// concurrent use via its own internal lock, independent of the session
// monitor (spec.md §5 "Shared-resource policy").
type Collector struct {
	mu         sync.Mutex
	capacity   int
	errors     []*schema.RowError
	overflowed bool
}

// New returns a Collector with the given capacity (spec.md: equal to
// mutation_buffer_space at session construction).
func New(capacity int) *Collector {
	if capacity < 1 {
		capacity = 1
	}
	return &Collector{capacity: capacity}
}

// Add appends a row error, dropping the oldest and marking overflowed when
// already at capacity.
func (c *Collector) Add(err *schema.RowError) {
	if err == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.errors) >= c.capacity {
		c.errors = c.errors[1:]
		c.overflowed = true
	}
	c.errors = append(c.errors, err)
}

// Count returns the number of errors currently queued.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.errors)
}

// TakeAll drains the queue and clears the overflow flag, returning the
// drained errors and whether an overflow occurred since the last TakeAll.
func (c *Collector) TakeAll() ([]*schema.RowError, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.errors
	overflowed := c.overflowed
	c.errors = nil
	c.overflowed = false
	return out, overflowed
}
