// Package tablet resolves a partition key to the tablet that owns it. The
// cluster-metadata lookup itself (the LocationService) is an external
// collaborator out of scope for this module (spec.md §1); CachingRouter
// only adds caching and retry of transient failures around it.
package tablet

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/sabledb/client-go/schema"
)

// LocatedTablet identifies the tablet (and, implicitly, its current
// replica set) that owns a partition key range.
type LocatedTablet struct {
	TabletID  string
	TableID   string
	RangeLow  []byte
	RangeHigh []byte // exclusive upper bound; nil means unbounded
}

// ErrorKind classifies a tablet lookup failure.
type ErrorKind int

const (
	ErrorUnknown ErrorKind = iota
	ErrorNonCoveredRange
	ErrorTimeout
	ErrorTransport
	ErrorMasterUnavailable
)

// LookupError is returned by LocationService/Router on lookup failure.
type LookupError struct {
	Kind ErrorKind
	Err  error
}

func (e *LookupError) Error() string {
	return e.Err.Error()
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

func (e *LookupError) Retryable() bool {
	switch e.Kind {
	case ErrorTimeout, ErrorMasterUnavailable, ErrorTransport:
		return true
	default:
		return false
	}
}

// LocationService is the external cluster-metadata collaborator: the
// tablet-location cache and leader-election tracking live behind this
// interface, out of scope per spec.md §1.
type LocationService interface {
	LocateTablet(ctx context.Context, table *schema.TableSchema, partitionKey []byte) (LocatedTablet, error)
}

// Router asynchronously resolves a partition key to the LocatedTablet that
// owns it.
type Router interface {
	Locate(ctx context.Context, table *schema.TableSchema, partitionKey []byte) (LocatedTablet, error)
}

// CachingRouter wraps a LocationService with an in-memory range cache and
// retries transient lookup failures with exponential backoff.
type CachingRouter struct {
	service LocationService
	cache   atomic.Pointer[rangeCache]

	// newBackOff, if set, overrides the default backoff policy; used by
	// tests to avoid real sleeps.
	newBackOff func() backoff.BackOff
}

// NewCachingRouter wraps service with a fresh, empty cache.
func NewCachingRouter(service LocationService) *CachingRouter {
	r := &CachingRouter{service: service}
	r.cache.Store(newRangeCache())
	return r
}

// Locate implements Router. NonCoveredRange failures are never retried;
// Timeout/Transport/MasterUnavailable failures are retried with bounded
// exponential backoff until ctx's deadline.
func (r *CachingRouter) Locate(ctx context.Context, table *schema.TableSchema, partitionKey []byte) (LocatedTablet, error) {
	if t, ok := r.cache.Load().lookup(table.TableID, partitionKey); ok {
		return t, nil
	}

	var result LocatedTablet
	op := func() error {
		t, err := r.service.LocateTablet(ctx, table, partitionKey)
		if err != nil {
			var lookupErr *LookupError
			if errors.As(err, &lookupErr) && !lookupErr.Retryable() {
				return backoff.Permanent(err)
			}
			return err
		}
		result = t
		return nil
	}

	bo := r.backOff(ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return LocatedTablet{}, err
	}

	r.cacheInsert(table.TableID, result)
	return result, nil
}

func (r *CachingRouter) backOff(ctx context.Context) backoff.BackOff {
	var base backoff.BackOff
	if r.newBackOff != nil {
		base = r.newBackOff()
	} else {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = 10 * time.Millisecond
		eb.MaxInterval = 500 * time.Millisecond
		eb.MaxElapsedTime = 0 // bounded by ctx instead
		base = eb
	}
	return backoff.WithContext(base, ctx)
}

func (r *CachingRouter) cacheInsert(tableID string, t LocatedTablet) {
	for {
		old := r.cache.Load()
		next := old.withInsert(tableID, t)
		if r.cache.CompareAndSwap(old, next) {
			return
		}
	}
}

// InvalidateTablet drops any cached range covering tabletID, e.g. after a
// batch RPC reports the tablet moved.
func (r *CachingRouter) InvalidateTablet(tableID, tabletID string) {
	for {
		old := r.cache.Load()
		next := old.withoutTablet(tableID, tabletID)
		if r.cache.CompareAndSwap(old, next) {
			return
		}
	}
}
