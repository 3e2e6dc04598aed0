// Package sabledb is the public façade over this module's write-session
// core: a high-level Session/SessionBuilder pair wrapping session.Core,
// mirroring the teacher's DbConnection/DbConnectionBuilder split between a
// thin public surface and an internal state machine.
package sabledb

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/sabledb/client-go/rpc"
	"github.com/sabledb/client-go/schema"
	"github.com/sabledb/client-go/session"
	"github.com/sabledb/client-go/tablet"
)

// Session is the public write-session handle. It is not safe for
// concurrent Apply calls (spec.md §5/§9); Flush/Close may be called
// concurrently with Apply.
type Session struct {
	core *session.Core
}

// Apply submits op per the session's configured flush mode and returns its
// completion future.
func (s *Session) Apply(ctx context.Context, op *schema.Operation) (*schema.OperationFuture, error) {
	return s.core.Apply(ctx, op)
}

// Flush detaches the active buffer and returns a future completing once it
// (and any buffer already flushing) finish.
func (s *Session) Flush() *session.FlushFuture {
	return s.core.Flush()
}

// Close is idempotent and behaves like Flush on first call.
func (s *Session) Close() *session.FlushFuture {
	return s.core.Close()
}

// HasPendingOperations reports whether any buffer currently holds
// unflushed operations.
func (s *Session) HasPendingOperations() bool {
	return s.core.HasPendingOperations()
}

// CountPendingErrors returns the number of row errors queued by the Error
// Collector.
func (s *Session) CountPendingErrors() int {
	return s.core.CountPendingErrors()
}

// GetPendingErrors drains the Error Collector.
func (s *Session) GetPendingErrors() ([]*schema.RowError, bool) {
	return s.core.GetPendingErrors()
}

// SetFlushMode, SetTimeoutMs, etc. below mutate the session's
// configuration; each fails with a programmer error if operations are
// currently pending (spec.md §4.6).

func (s *Session) SetFlushMode(mode session.FlushMode) error {
	cfg := s.core.Config()
	cfg.FlushMode = mode
	return s.core.SetConfig(cfg)
}

func (s *Session) SetExternalConsistencyMode(mode rpc.ExternalConsistencyMode) error {
	cfg := s.core.Config()
	cfg.ExternalConsistencyMode = mode
	return s.core.SetConfig(cfg)
}

func (s *Session) SetMutationBufferSpace(n int) error {
	cfg := s.core.Config()
	cfg.MutationBufferSpace = n
	return s.core.SetConfig(cfg)
}

func (s *Session) SetMutationBufferLowWatermarkPercentage(pct float64) error {
	cfg := s.core.Config()
	cfg.MutationBufferLowWaterPct = pct
	return s.core.SetConfig(cfg)
}

func (s *Session) SetFlushIntervalMs(ms int) error {
	cfg := s.core.Config()
	cfg.FlushIntervalMs = ms
	return s.core.SetConfig(cfg)
}

func (s *Session) SetTimeoutMs(ms int64) error {
	cfg := s.core.Config()
	cfg.TimeoutMs = ms
	return s.core.SetConfig(cfg)
}

func (s *Session) SetIgnoreDuplicateRows(ignore bool) error {
	cfg := s.core.Config()
	cfg.IgnoreDuplicateRows = ignore
	return s.core.SetConfig(cfg)
}

// SetRandomSeed reseeds the probabilistic early-flush draw; test hook only.
func (s *Session) SetRandomSeed(seed int64) {
	s.core.SetRandomSeed(seed)
}

// SessionBuilder constructs a Session from a router, transport, and
// configuration, mirroring DbConnectionBuilder's chained With* setters.
type SessionBuilder struct {
	config        session.Config
	router        tablet.Router
	transport     rpc.Transport
	log           *zap.SugaredLogger
	metricsReg    prometheus.Registerer
	metricsLabels prometheus.Labels
}

// NewSessionBuilder starts a builder with spec.md's documented defaults.
func NewSessionBuilder(router tablet.Router, transport rpc.Transport) *SessionBuilder {
	return &SessionBuilder{
		config:    session.DefaultConfig(),
		router:    router,
		transport: transport,
	}
}

func (b *SessionBuilder) WithFlushMode(mode session.FlushMode) *SessionBuilder {
	b.config.FlushMode = mode
	return b
}

func (b *SessionBuilder) WithExternalConsistencyMode(mode rpc.ExternalConsistencyMode) *SessionBuilder {
	b.config.ExternalConsistencyMode = mode
	return b
}

func (b *SessionBuilder) WithMutationBufferSpace(n int) *SessionBuilder {
	b.config.MutationBufferSpace = n
	return b
}

func (b *SessionBuilder) WithMutationBufferLowWatermarkPercentage(pct float64) *SessionBuilder {
	b.config.MutationBufferLowWaterPct = pct
	return b
}

func (b *SessionBuilder) WithFlushIntervalMs(ms int) *SessionBuilder {
	b.config.FlushIntervalMs = ms
	return b
}

func (b *SessionBuilder) WithTimeoutMs(ms int64) *SessionBuilder {
	b.config.TimeoutMs = ms
	return b
}

func (b *SessionBuilder) WithIgnoreDuplicateRows(ignore bool) *SessionBuilder {
	b.config.IgnoreDuplicateRows = ignore
	return b
}

func (b *SessionBuilder) WithLogger(log *zap.SugaredLogger) *SessionBuilder {
	b.log = log
	return b
}

// WithMetricsRegisterer enables Prometheus metrics on the built Session. A
// nil registerer (the default) disables metrics entirely.
func (b *SessionBuilder) WithMetricsRegisterer(reg prometheus.Registerer, labels prometheus.Labels) *SessionBuilder {
	b.metricsReg = reg
	b.metricsLabels = labels
	return b
}

// Build validates the configuration and returns a ready Session.
func (b *SessionBuilder) Build() (*Session, error) {
	if b.router == nil {
		return nil, session.ErrNilRouter
	}
	if b.transport == nil {
		return nil, session.ErrNilTransport
	}
	if b.config.MutationBufferSpace <= 0 {
		return nil, session.ErrInvalidBufferSpace
	}
	if b.config.MutationBufferLowWaterPct < 0 || b.config.MutationBufferLowWaterPct > 1 {
		return nil, session.ErrInvalidLowWatermark
	}

	core := session.New(b.config, b.router, b.transport, b.log)
	if b.metricsReg != nil {
		if err := core.EnableMetrics(b.metricsReg, b.metricsLabels); err != nil {
			return nil, err
		}
	}
	return &Session{core: core}, nil
}
