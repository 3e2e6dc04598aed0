// Package batch groups operations bound for one tablet into a single
// write RPC and classifies the per-row responses that come back.
package batch

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sabledb/client-go/rpc"
	"github.com/sabledb/client-go/schema"
	"github.com/sabledb/client-go/tablet"
)

// Batch accumulates the operations bound for one tablet, produces a single
// write RPC, and classifies the per-row responses (spec.md §4.4).
type Batch struct {
	Table               *schema.TableSchema
	Tablet              tablet.LocatedTablet
	Operations          []*schema.Operation
	IgnoreDuplicateRows bool
}

// New starts an empty batch for tablet, capturing ignoreDuplicateRows at
// creation time as spec.md requires.
func New(table *schema.TableSchema, t tablet.LocatedTablet, ignoreDuplicateRows bool) *Batch {
	return &Batch{Table: table, Tablet: t, IgnoreDuplicateRows: ignoreDuplicateRows}
}

// Add appends op to the batch in submission order.
func (b *Batch) Add(op *schema.Operation) {
	b.Operations = append(b.Operations, op)
}

// Send dispatches the batch over transport and classifies the result into
// one OperationResponse per operation, in submission order. It never
// returns an error itself: RPC failures are converted into a synthesized
// per-row RowError for every operation in the batch, matching
// AsyncKuduSession's BatchErrCallback.
func (b *Batch) Send(ctx context.Context, transport rpc.Transport, opts rpc.SendOptions, log *zap.SugaredLogger) []schema.OperationResponse {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	rpcReq, err := b.buildRPC(opts)
	if err != nil {
		log.Warnw("batch: failed to build rpc", "tablet", b.Tablet.TabletID, "error", err)
		return b.syntheticFailure(err)
	}

	resp, err := transport.Send(ctx, rpcReq)
	if err != nil {
		log.Warnw("batch rpc failed", "tablet", b.Tablet.TabletID, "rows", len(b.Operations), "error", err)
		return b.syntheticFailure(err)
	}

	if resp.WriteTimestamp > 0 {
		transport.UpdateLastPropagatedTimestamp(resp.WriteTimestamp)
	}

	log.Debugw("batch rpc completed", "tablet", b.Tablet.TabletID, "rows", len(b.Operations))
	return b.classify(resp)
}

func (b *Batch) buildRPC(opts rpc.SendOptions) (*rpc.WriteRPC, error) {
	ops := make([]*schema.Operation, len(b.Operations))
	copy(ops, b.Operations)

	return &rpc.WriteRPC{
		TableID:                b.Table.TableID,
		TabletID:                b.Tablet.TabletID,
		Operations:              ops,
		ExternalConsistencyMode: opts.ExternalConsistencyMode,
		PropagatedTimestamp:     opts.PropagatedTimestamp,
		Deadline:                opts.Deadline,
	}, nil
}

// classify turns a successful batch RPC's per-row replies into
// OperationResponses, suppressing AlreadyPresent errors when
// IgnoreDuplicateRows is set.
func (b *Batch) classify(resp *rpc.WriteResponse) []schema.OperationResponse {
	out := make([]schema.OperationResponse, len(b.Operations))

	for i, op := range b.Operations {
		var rowErr *schema.RowError
		var serverUUID string
		if i < len(resp.RowStatuses) {
			rs := resp.RowStatuses[i]
			serverUUID = rs.TabletServerUUID
			if rs.Code != rpc.RowStatusOK {
				if b.IgnoreDuplicateRows && rs.Code == rpc.RowStatusAlreadyPresent {
					// Dropped: treated as success per spec.md §4.4.
				} else {
					rowErr = &schema.RowError{Kind: rowErrorKindFor(rs.Code), Message: rs.Message}
				}
			}
		}

		out[i] = schema.OperationResponse{
			Operation:        op,
			ServerTimestamp:  resp.WriteTimestamp,
			TabletServerUUID: serverUUID,
			RowErr:           rowErr,
		}
	}

	return out
}

func rowErrorKindFor(code rpc.RowStatusCode) schema.RowErrorKind {
	switch code {
	case rpc.RowStatusAlreadyPresent:
		return schema.RowErrorAlreadyPresent
	case rpc.RowStatusNotFound:
		return schema.RowErrorNotFound
	default:
		return schema.RowErrorRuntime
	}
}

// syntheticFailure builds one OperationResponse per operation carrying the
// shared batch-level failure, matching AsyncKuduSession's BatchErrCallback.
func (b *Batch) syntheticFailure(err error) []schema.OperationResponse {
	out := make([]schema.OperationResponse, len(b.Operations))
	for i, op := range b.Operations {
		out[i] = schema.OperationResponse{
			Operation: op,
			RowErr:    &schema.RowError{Kind: schema.RowErrorRuntime, Message: err.Error()},
		}
	}
	return out
}

// ParseServerUUID is a small helper for transport implementations that
// receive a tablet-server identity as a string and want the typed form
// used elsewhere in this package's tests/examples.
func ParseServerUUID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("batch: invalid tablet server uuid %q: %w", s, err)
	}
	return id, nil
}
