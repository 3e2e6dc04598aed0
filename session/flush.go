package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sabledb/client-go/batch"
	"github.com/sabledb/client-go/buffer"
	"github.com/sabledb/client-go/schema"
	"github.com/sabledb/client-go/tablet"
)

// Flush detaches the active buffer (if any) and waits for every currently
// flushing buffer to finish its own generation, returning a composite
// future whose response list is the just-detached buffer's own flush
// result (spec.md §4.6).
func (c *Core) Flush() *FlushFuture {
	c.mu.Lock()
	activeBuf, activeIdx := c.detachActive()

	var pending []*buffer.Notification
	for i, b := range c.buffers {
		if i == activeIdx {
			continue
		}
		if !c.isInactiveLocked(i) {
			pending = append(pending, b.FlushNotification())
		}
	}
	c.mu.Unlock()

	var activeFuture *FlushFuture
	if activeBuf == nil {
		activeFuture = newFlushFuture()
		activeFuture.complete(nil)
	} else {
		activeFuture = c.doFlush(activeBuf, activeIdx)
	}

	composite := newFlushFuture()
	go func() {
		for _, n := range pending {
			n.Wait()
		}
		composite.complete(activeFuture.Wait())
	}()
	return composite
}

// Close is idempotent: the first call behaves exactly like Flush; later
// calls return an already-complete, empty future.
func (c *Core) Close() *FlushFuture {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		f := newFlushFuture()
		f.complete(nil)
		return f
	}
	c.closed = true
	c.mu.Unlock()
	return c.Flush()
}

// scheduleFlushTimerLocked arms a background flush timer for the buffer at
// idx, storing the returned token as that buffer's flush-task identity.
// Must be called under c.mu.
func (c *Core) scheduleFlushTimerLocked(idx int) {
	tok := c.buffers[idx].Token()
	interval := c.config.flushInterval()
	time.AfterFunc(interval, func() {
		c.mu.Lock()
		if c.active != idx || !c.buffers[idx].HasToken(tok) {
			c.mu.Unlock()
			return
		}
		buf, flushIdx := c.detachActive()
		c.mu.Unlock()
		c.doFlush(buf, flushIdx)
	})
}

// doFlush ships one buffer's operations to their tablets and returns a
// future resolving to the flattened, submission-ordered response list.
// Empty buffers resolve immediately. On completion the buffer's
// flush-notification fires exactly once and the buffer returns to the
// inactive queue (spec.md §4.5/§4.6).
func (c *Core) doFlush(b *buffer.Buffer, idx int) *FlushFuture {
	future := newFlushFuture()
	ops := b.Ops()

	if len(ops) == 0 {
		future.complete(nil)
		b.FlushNotification().Fire()
		c.mu.Lock()
		c.returnToInactive(idx)
		c.mu.Unlock()
		return future
	}

	go func() {
		responses := make([]schema.OperationResponse, len(ops))
		groups := map[string][]int{}
		var order []string

		for i, p := range ops {
			p.Wait()
			if t, ok := p.Resolved(); ok {
				if _, seen := groups[t.TabletID]; !seen {
					order = append(order, t.TabletID)
				}
				groups[t.TabletID] = append(groups[t.TabletID], i)
			} else {
				resp := schema.OperationResponse{
					Operation: p.Op,
					RowErr:    rowErrorForLookupFailure(p.LookupError()),
				}
				responses[i] = resp
				p.Op.Future().SetResult(resp)
				if c.config.FlushMode == AutoFlushBackground {
					c.collector.Add(resp.RowErr)
				}
			}
		}

		var wg sync.WaitGroup
		for _, tabletID := range order {
			idxs := groups[tabletID]
			wg.Add(1)
			go func(tabletID string, idxs []int) {
				defer wg.Done()
				c.dispatchGroup(b, idxs, responses)
			}(tabletID, idxs)
		}
		wg.Wait()

		future.complete(responses)
		b.FlushNotification().Fire()
		c.observeFlush()
		c.mu.Lock()
		c.returnToInactive(idx)
		c.mu.Unlock()
	}()

	return future
}

// dispatchGroup builds and sends one Batch for the tablet shared by idxs,
// writing each result back into responses at its original position.
func (c *Core) dispatchGroup(b *buffer.Buffer, idxs []int, responses []schema.OperationResponse) {
	ops := b.Ops()
	first := ops[idxs[0]]
	located, _ := first.Resolved()

	bat := batch.New(first.Op.Table, located, c.config.IgnoreDuplicateRows)
	for _, i := range idxs {
		bat.Add(ops[i].Op)
	}

	results := bat.Send(context.Background(), c.transport, c.sendOptions(), c.log)

	for pos, i := range idxs {
		var resp schema.OperationResponse
		if pos < len(results) {
			resp = results[pos]
		} else {
			resp = schema.OperationResponse{Operation: ops[i].Op}
		}
		responses[i] = resp
		ops[i].Op.Future().SetResult(resp)
		if resp.HasRowError() && c.config.FlushMode == AutoFlushBackground {
			c.collector.Add(resp.RowErr)
		}
	}
}

// rowErrorForLookupFailure maps a tablet lookup failure to the row-level
// error surfaced on the affected operation (spec.md §4.3/§4.6): a
// non-covered range is a NotFound-kind row error, anything else a generic
// runtime error, preserving the source's handling of unknown-kind failures
// (see DESIGN.md Open Question decisions).
func rowErrorForLookupFailure(err error) *schema.RowError {
	var lookupErr *tablet.LookupError
	if errors.As(err, &lookupErr) && lookupErr.Kind == tablet.ErrorNonCoveredRange {
		return &schema.RowError{Kind: schema.RowErrorNotFound, Message: lookupErr.Error()}
	}
	msg := "tablet lookup failed"
	if err != nil {
		msg = err.Error()
	}
	return &schema.RowError{Kind: schema.RowErrorRuntime, Message: msg}
}
