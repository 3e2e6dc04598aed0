package session

import (
	"context"

	"github.com/sabledb/client-go/batch"
	"github.com/sabledb/client-go/buffer"
	"github.com/sabledb/client-go/partition"
	"github.com/sabledb/client-go/schema"
)

// Apply admits a single operation per the session's configured flush mode
// (spec.md §4.6) and returns its completion future. A non-nil error means
// the operation was rejected outright (programmer error or throttle); the
// row is left unfrozen and unassigned to any buffer in that case.
func (c *Core) Apply(ctx context.Context, op *schema.Operation) (*schema.OperationFuture, error) {
	if op == nil {
		return nil, programmerError("Apply", "operation is nil")
	}
	if op.Row.IsFrozen() {
		return nil, programmerError("Apply", "operation was already submitted")
	}

	switch c.config.FlushMode {
	case AutoFlushSync:
		return c.applySync(ctx, op)
	case ManualFlush:
		return c.applyManual(ctx, op)
	case AutoFlushBackground:
		return c.applyBackground(ctx, op)
	default:
		return nil, programmerError("Apply", "unrecognized flush mode")
	}
}

// applySync freezes op and returns its future immediately, dispatching the
// tablet lookup and RPC in the background: apply itself must not block
// beyond the session monitor (spec.md §5), leaving the transport as the
// sole source of true I/O waits.
func (c *Core) applySync(ctx context.Context, op *schema.Operation) (*schema.OperationFuture, error) {
	key, err := partition.ComputeKey(op.Row)
	if err != nil {
		return nil, programmerError("Apply", err.Error())
	}

	op.IgnoreAllDuplicates = c.config.IgnoreDuplicateRows
	op.Submit()

	go func() {
		located, err := c.router.Locate(ctx, op.Table, key)
		if err != nil {
			op.Future().SetResult(syntheticLookupResponse(op, err))
			return
		}

		b := batch.New(op.Table, located, op.IgnoreAllDuplicates)
		b.Add(op)

		resps := b.Send(ctx, c.transport, c.sendOptions(), c.log)
		if len(resps) > 0 {
			op.Future().SetResult(resps[0])
		}
	}()

	return op.Future(), nil
}

// applyManual buffers op in MANUAL_FLUSH mode: no probabilistic admission,
// no scheduled flush timer.
func (c *Core) applyManual(ctx context.Context, op *schema.Operation) (*schema.OperationFuture, error) {
	c.mu.Lock()

	if !c.promoteActive() {
		notif := c.throttleNotificationLocked()
		c.mu.Unlock()
		c.observeThrottle()
		return nil, serviceUnavailable("Apply", "mutation buffer space exhausted", notif)
	}

	active := c.buffers[c.active]
	if active.Len() >= c.config.MutationBufferSpace {
		c.mu.Unlock()
		return nil, illegalState("Apply", "buffer too big")
	}

	key, err := partition.ComputeKey(op.Row)
	if err != nil {
		c.mu.Unlock()
		return nil, programmerError("Apply", err.Error())
	}

	op.IgnoreAllDuplicates = c.config.IgnoreDuplicateRows
	op.Submit()
	active.Append(buffer.NewPendingOp(ctx, op, key, c.router))
	c.observeActiveBufferLen(active.Len())
	c.mu.Unlock()

	return op.Future(), nil
}

// applyBackground implements the AUTO_FLUSH_BACKGROUND admission algorithm:
// ensure-active, detach-if-full, probabilistic early-flush, append,
// detach-if-filled-after-append, schedule-flush-timer-if-first.
func (c *Core) applyBackground(ctx context.Context, op *schema.Operation) (*schema.OperationFuture, error) {
	c.mu.Lock()

	// Step 1: ensure an active buffer.
	if !c.promoteActive() {
		notif := c.throttleNotificationLocked()
		c.mu.Unlock()
		c.observeThrottle()
		return nil, serviceUnavailable("Apply", "mutation buffer space exhausted", notif)
	}

	var preFlush *buffer.Buffer
	var preFlushIdx int = -1

	// Step 2: if the active buffer is already full, detach it and try to
	// promote another.
	if c.buffers[c.active].Len() >= c.config.MutationBufferSpace {
		preFlush, preFlushIdx = c.detachActive()
		if !c.promoteActive() {
			notif := preFlush.FlushNotification()
			c.mu.Unlock()
			c.observeThrottle()
			go c.doFlush(preFlush, preFlushIdx)
			return nil, serviceUnavailable("Apply", "mutation buffer space exhausted", notif)
		}
	}

	active := c.buffers[c.active]

	// Step 3: probabilistic early-flush admission.
	lowWatermark := c.config.LowWatermark()
	if lowWatermark < c.config.MutationBufferSpace &&
		active.Len() >= lowWatermark &&
		len(c.inactiveQueue) == 0 {
		spread := c.config.MutationBufferSpace - lowWatermark
		w := active.Len() + 1 + c.randIntn(spread)
		if w > c.config.MutationBufferSpace {
			notif := active.FlushNotification()
			c.mu.Unlock()
			c.observeThrottle()
			if preFlush != nil {
				go c.doFlush(preFlush, preFlushIdx)
			}
			return nil, serviceUnavailable("Apply", "mutation buffer at probabilistic capacity", notif)
		}
	}

	key, err := partition.ComputeKey(op.Row)
	if err != nil {
		c.mu.Unlock()
		if preFlush != nil {
			go c.doFlush(preFlush, preFlushIdx)
		}
		return nil, programmerError("Apply", err.Error())
	}

	op.IgnoreAllDuplicates = c.config.IgnoreDuplicateRows
	op.Submit()

	// Step 4: append.
	active.Append(buffer.NewPendingOp(ctx, op, key, c.router))
	wasFirst := active.Len() == 1
	c.observeActiveBufferLen(active.Len())

	var postFlush *buffer.Buffer
	var postFlushIdx = -1

	// Step 5: if the append filled the buffer and another is available,
	// detach it for flush now.
	if active.Len() >= c.config.MutationBufferSpace && len(c.inactiveQueue) > 0 {
		postFlush, postFlushIdx = c.detachActive()
	} else if wasFirst {
		// Step 6: this was the first op in the buffer; schedule the
		// background flush timer.
		c.scheduleFlushTimerLocked(c.active)
	}

	c.mu.Unlock()

	if preFlush != nil {
		go c.doFlush(preFlush, preFlushIdx)
	}
	if postFlush != nil {
		go c.doFlush(postFlush, postFlushIdx)
	}

	return op.Future(), nil
}

// throttleNotificationLocked returns a flush-notification the caller can
// await before retrying, picking any buffer not currently active or
// inactive (i.e. one that is flushing). Must be called under c.mu.
func (c *Core) throttleNotificationLocked() *buffer.Notification {
	for i, b := range c.buffers {
		if i == c.active {
			continue
		}
		if c.isInactiveLocked(i) {
			continue
		}
		return b.FlushNotification()
	}
	// Both buffers inactive/active is impossible when promoteActive just
	// failed; fall back defensively.
	return c.buffers[0].FlushNotification()
}

func (c *Core) isInactiveLocked(idx int) bool {
	for _, q := range c.inactiveQueue {
		if q == idx {
			return true
		}
	}
	return false
}

// syntheticLookupResponse builds the per-op RowError surfaced when a
// tablet lookup fails outright (used by AUTO_FLUSH_SYNC, which has no
// buffer to route the failure through).
func syntheticLookupResponse(op *schema.Operation, err error) schema.OperationResponse {
	return schema.OperationResponse{
		Operation: op,
		RowErr:    rowErrorForLookupFailure(err),
	}
}
