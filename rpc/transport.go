// Package rpc defines the write-RPC transport contract this session core
// depends on but does not implement: framing, multiplexing, reconnection,
// and authentication are a named external collaborator (spec.md §1/§6).
//
// Sidecar note: a production Transport's response decode path typically
// addresses auxiliary payload blobs ("sidecars") by an offset list in the
// response header. The historical bounds check for that lookup used
// `sidecar > sidecarList.size()`, which permits `index == size` and is an
// off-by-one; implementations in this ecosystem should use `>=` unless
// strict wire compatibility with that historical behavior is required
// (spec.md §9 Open Questions).
package rpc

import (
	"context"
	"time"

	"github.com/sabledb/client-go/schema"
)

// ExternalConsistencyMode is the contract between client writes and
// subsequent reads.
type ExternalConsistencyMode int

const (
	ClientPropagated ExternalConsistencyMode = iota
	CommitWait
)

// RowStatusCode classifies one row's outcome in a WriteResponse.
type RowStatusCode int

const (
	RowStatusOK RowStatusCode = iota
	RowStatusAlreadyPresent
	RowStatusNotFound
	RowStatusRuntimeError
)

// RowStatus is one row's (row_index, status, code) reply, per spec.md §6.
type RowStatus struct {
	RowIndex         int
	Code             RowStatusCode
	Message          string
	TabletServerUUID string
}

// WriteRPC carries one Batch's payload to the RPC transport: service name
// "Write" for tablet servers is implicit in the transport's routing.
type WriteRPC struct {
	TableID                 string
	TabletID                string
	Operations              []*schema.Operation
	ExternalConsistencyMode ExternalConsistencyMode
	PropagatedTimestamp     uint64
	Deadline                time.Time
}

// WriteResponse is a tablet server's reply to a WriteRPC.
type WriteResponse struct {
	WriteTimestamp uint64
	RowStatuses    []RowStatus
}

// SendOptions carries per-call settings threaded from the session's
// configuration into the Batch's constructed WriteRPC.
type SendOptions struct {
	ExternalConsistencyMode ExternalConsistencyMode
	PropagatedTimestamp     uint64
	Deadline                time.Time
}

// Transport is the RPC transport contract this module consumes (spec.md
// §6): framing, multiplexing, reconnection, and authentication are its
// responsibility, not this module's.
type Transport interface {
	Send(ctx context.Context, rpc *WriteRPC) (*WriteResponse, error)

	// UpdateLastPropagatedTimestamp forwards a successful write's
	// server timestamp so that subsequent CLIENT_PROPAGATED-mode reads
	// observe this write.
	UpdateLastPropagatedTimestamp(ts uint64)

	// LastPropagatedTimestamp returns the most recent timestamp recorded
	// by UpdateLastPropagatedTimestamp, or zero if none yet. Consulted to
	// populate SendOptions.PropagatedTimestamp under CLIENT_PROPAGATED.
	LastPropagatedTimestamp() uint64

	// GetDefaultOperationTimeoutMs returns the transport's default
	// per-operation timeout, used when a session has not set one
	// explicitly.
	GetDefaultOperationTimeoutMs() int64
}
