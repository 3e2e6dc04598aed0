// Package buffer holds one generation of a session's pending operations:
// the ordered list of buffered operations awaiting flush, their pending
// tablet lookups, and a flush-notification signal that fires exactly once
// per generation.
package buffer

import (
	"context"

	"github.com/sabledb/client-go/schema"
	"github.com/sabledb/client-go/tablet"
)

// PendingOp pairs a submitted Operation with its (possibly still
// in-flight) tablet lookup and whatever that lookup eventually resolves
// to: a tablet, or a lookup error.
type PendingOp struct {
	Op *schema.Operation

	lookupDone chan struct{}
	tablet     tablet.LocatedTablet
	lookupErr  error
}

// NewPendingOp starts (asynchronously awaiting) the tablet lookup for op's
// partition key and returns immediately; the caller observes completion via
// Wait or the lookupDone channel.
func NewPendingOp(ctx context.Context, op *schema.Operation, key []byte, router tablet.Router) *PendingOp {
	p := &PendingOp{Op: op, lookupDone: make(chan struct{})}
	go func() {
		t, err := router.Locate(ctx, op.Table, key)
		p.tablet = t
		p.lookupErr = err
		close(p.lookupDone)
	}()
	return p
}

// Wait blocks until the tablet lookup completes.
func (p *PendingOp) Wait() {
	<-p.lookupDone
}

// Done returns a channel closed when the tablet lookup completes, for use
// in select statements.
func (p *PendingOp) Done() <-chan struct{} {
	return p.lookupDone
}

// Resolved reports whether the tablet lookup succeeded, and if so, the
// located tablet.
func (p *PendingOp) Resolved() (tablet.LocatedTablet, bool) {
	if p.lookupErr != nil {
		return tablet.LocatedTablet{}, false
	}
	return p.tablet, true
}

// LookupError returns the tablet lookup's failure, or nil on success.
func (p *PendingOp) LookupError() error {
	return p.lookupErr
}

// Notification is a one-shot, fire-exactly-once signal: a buffer's
// flush-notification. Modeled as a channel per spec.md §9.
type Notification struct {
	ch chan struct{}
}

// NewNotification returns a Notification that has not yet fired.
func NewNotification() *Notification {
	return &Notification{ch: make(chan struct{})}
}

// Fire closes the notification channel. Must be called at most once; the
// Buffer's generation lifecycle guarantees this (reset() installs a fresh
// Notification before the buffer can be flushed again).
func (n *Notification) Fire() {
	close(n.ch)
}

// C returns the channel that closes when Fire is called.
func (n *Notification) C() <-chan struct{} {
	return n.ch
}

// Wait blocks until the notification fires.
func (n *Notification) Wait() {
	<-n.ch
}

// State is the lifecycle stage of a Buffer.
type State int

const (
	Inactive State = iota
	Active
	Flushing
)

// Buffer accumulates operations bound for flush as one generation: it is
// append-only while Active, stops accepting new operations once detached
// for Flushing, and returns to Inactive once its batches have all
// completed.
type Buffer struct {
	ops               []*PendingOp
	flushNotification *Notification

	// flushTask is an opaque identity token for the scheduled background
	// flush timer armed on this buffer. The timer's first action is an
	// identity comparison against this field under the session lock,
	// per spec.md §4.6/§9.
	flushTask *FlushTaskToken
}

// FlushTaskToken is a unique token identifying one scheduled flush-timer
// invocation. Comparison is by pointer identity.
type FlushTaskToken struct{}

// New returns a fresh, empty, Inactive buffer.
func New() *Buffer {
	return &Buffer{flushNotification: NewNotification()}
}

// Len returns the number of operations currently buffered.
func (b *Buffer) Len() int {
	return len(b.ops)
}

// Empty reports whether the buffer holds no operations.
func (b *Buffer) Empty() bool {
	return len(b.ops) == 0
}

// Append adds a pending operation. The caller (session) is responsible for
// enforcing capacity and state transitions; Buffer itself never rejects an
// append.
func (b *Buffer) Append(p *PendingOp) {
	b.ops = append(b.ops, p)
}

// Ops returns the buffered operations in submission order. The returned
// slice must not be retained past the next Reset.
func (b *Buffer) Ops() []*PendingOp {
	return b.ops
}

// FlushNotification returns the signal that fires exactly once when this
// buffer's current generation finishes flushing.
func (b *Buffer) FlushNotification() *Notification {
	return b.flushNotification
}

// Token returns the buffer's current flush-task token, arming one via new
// if none is set yet. Must be called under the session lock.
func (b *Buffer) Token() *FlushTaskToken {
	if b.flushTask == nil {
		b.flushTask = &FlushTaskToken{}
	}
	return b.flushTask
}

// HasToken reports whether tok is still this buffer's current flush-task
// identity. Used by the timer callback to detect a stale invocation.
func (b *Buffer) HasToken(tok *FlushTaskToken) bool {
	return b.flushTask == tok
}

// Reset clears operations, installs a fresh flush-notification, and clears
// the flush-task token. Called when a buffer is promoted from inactive to
// active.
func (b *Buffer) Reset() {
	b.ops = nil
	b.flushNotification = NewNotification()
	b.flushTask = nil
}
