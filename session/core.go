// Package session implements the write-session core: double-buffered
// operation admission, tablet grouping, batch dispatch, and backpressure.
// See AsyncKuduSession-style apply/flush semantics re-expressed in Go.
package session

import (
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sabledb/client-go/buffer"
	"github.com/sabledb/client-go/errcollector"
	"github.com/sabledb/client-go/rpc"
	"github.com/sabledb/client-go/schema"
	"github.com/sabledb/client-go/tablet"
)

// Core is the session's state machine: two buffers, an active pointer, and
// an inactive queue, guarded by a single monitor mutex per spec.md §5.
// Core is not safe for concurrent Apply calls; the timer and RPC-completion
// paths touch it concurrently with Apply under the same mutex.
type Core struct {
	mu sync.Mutex

	config Config

	buffers       [2]*buffer.Buffer
	active        int   // index into buffers, or -1
	inactiveQueue []int // buffer indices currently inactive, len <= 2

	router    tablet.Router
	transport rpc.Transport
	collector *errcollector.Collector

	log *zap.SugaredLogger

	rngMu sync.Mutex
	rng   *rand.Rand

	closed bool

	metrics *metricsSet
}

// New constructs a Core with a fresh pair of buffers, both inactive.
func New(cfg Config, router tablet.Router, transport rpc.Transport, log *zap.SugaredLogger) *Core {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	c := &Core{
		config:        cfg,
		buffers:       [2]*buffer.Buffer{buffer.New(), buffer.New()},
		active:        -1,
		inactiveQueue: []int{0, 1},
		router:        router,
		transport:     transport,
		collector:     errcollector.New(cfg.MutationBufferSpace),
		log:           log,
		rng:           rand.New(rand.NewSource(1)),
	}
	return c
}

// SetRandomSeed reseeds the probabilistic early-flush draw, matching
// AsyncKuduSession.setRandomSeed; intended for tests only.
func (c *Core) SetRandomSeed(seed int64) {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	c.rng = rand.New(rand.NewSource(seed))
}

func (c *Core) randIntn(n int) int {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	if n <= 0 {
		return 0
	}
	return c.rng.Intn(n)
}

// SetConfig replaces the session configuration. Fails with an
// ErrCodeProgrammerError session error if any operations are currently
// pending, matching spec.md §4.6.
func (c *Core) SetConfig(cfg Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hasPendingOperationsLocked() {
		return programmerError("SetConfig", "cannot change configuration while operations are pending")
	}
	c.config = cfg
	c.collector = errcollector.New(cfg.MutationBufferSpace)
	return nil
}

func (c *Core) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

// HasPendingOperations reports whether any buffer currently holds
// unflushed operations.
func (c *Core) HasPendingOperations() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasPendingOperationsLocked()
}

func (c *Core) hasPendingOperationsLocked() bool {
	for i, b := range c.buffers {
		// An inactive buffer keeps its last generation's ops until it is
		// promoted and Reset; those ops have already been flushed.
		if c.isInactiveLocked(i) {
			continue
		}
		if !b.Empty() {
			return true
		}
	}
	return false
}

// CountPendingErrors returns the number of row errors currently queued by
// the Error Collector.
func (c *Core) CountPendingErrors() int {
	return c.collector.Count()
}

// GetPendingErrors drains the Error Collector, returning the collected row
// errors and whether the queue overflowed since the last drain.
func (c *Core) GetPendingErrors() ([]*schema.RowError, bool) {
	return c.collector.TakeAll()
}

// promoteActive ensures an active buffer exists, pulling one from the
// inactive queue if necessary. Must be called under c.mu. Returns false if
// no active buffer exists and none is available to promote.
func (c *Core) promoteActive() bool {
	if c.active != -1 {
		return true
	}
	if len(c.inactiveQueue) == 0 {
		return false
	}
	idx := c.inactiveQueue[0]
	c.inactiveQueue = c.inactiveQueue[1:]
	c.buffers[idx].Reset()
	c.active = idx
	c.log.Debugw("session: promoted buffer", "buffer", idx)
	return true
}

// detachActive removes the active buffer from play (it is now flushing)
// and returns it. Must be called under c.mu.
func (c *Core) detachActive() (*buffer.Buffer, int) {
	idx := c.active
	if idx == -1 {
		return nil, -1
	}
	c.active = -1
	return c.buffers[idx], idx
}

// returnToInactive pushes a finished buffer back onto the inactive queue.
// Must be called under c.mu.
func (c *Core) returnToInactive(idx int) {
	c.inactiveQueue = append(c.inactiveQueue, idx)
}

// sendOptions builds the per-RPC options threaded into a Batch.Send call:
// the deadline derived from the session's configured timeout (falling back
// to the transport's own default), and, under CLIENT_PROPAGATED, the last
// write timestamp observed on this transport (spec.md §4.6/§5/§6).
func (c *Core) sendOptions() rpc.SendOptions {
	timeoutMs := c.config.TimeoutMs
	if timeoutMs == 0 {
		timeoutMs = c.transport.GetDefaultOperationTimeoutMs()
	}

	opts := rpc.SendOptions{ExternalConsistencyMode: c.config.ExternalConsistencyMode}
	if timeoutMs > 0 {
		opts.Deadline = time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	}
	if c.config.ExternalConsistencyMode == rpc.ClientPropagated {
		opts.PropagatedTimestamp = c.transport.LastPropagatedTimestamp()
	}
	return opts
}
