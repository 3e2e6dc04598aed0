package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sabledb/client-go/internal/wire"
	"github.com/sabledb/client-go/rpc"
	"github.com/sabledb/client-go/schema"
	"github.com/sabledb/client-go/tablet"
)

func testTableNoPartition() *schema.TableSchema {
	return &schema.TableSchema{
		TableID:   "tbl1",
		TableName: "widgets",
		Columns: []schema.ColumnSchema{
			{Name: "key", Type: wire.Int32, IsKey: true},
			{Name: "v", Type: wire.String, IsNullable: true},
		},
	}
}

func insertOp(t *testing.T, tbl *schema.TableSchema, key int32) *schema.Operation {
	t.Helper()
	row := schema.NewPartialRow(tbl)
	if err := row.SetInt32("key", key); err != nil {
		t.Fatal(err)
	}
	return schema.NewOperation(tbl, row, schema.Insert)
}

// fakeRouter is a directly-implemented tablet.Router (no caching or retry)
// so session tests can control lookup outcomes precisely.
type fakeRouter struct {
	locate func(ctx context.Context, table *schema.TableSchema, key []byte) (tablet.LocatedTablet, error)
}

func (r *fakeRouter) Locate(ctx context.Context, table *schema.TableSchema, key []byte) (tablet.LocatedTablet, error) {
	return r.locate(ctx, table, key)
}

func singleTabletRouter(id string) *fakeRouter {
	return &fakeRouter{locate: func(ctx context.Context, table *schema.TableSchema, key []byte) (tablet.LocatedTablet, error) {
		return tablet.LocatedTablet{TabletID: id, TableID: table.TableID}, nil
	}}
}

// S1 — simple insert, sync mode.
func TestApplySyncSimpleInsert(t *testing.T) {
	tbl := testTableNoPartition()
	router := singleTabletRouter("tablet-1")
	transport := rpc.NewFakeTransport(func(req *rpc.WriteRPC) (*rpc.WriteResponse, error) {
		return &rpc.WriteResponse{
			WriteTimestamp: 100,
			RowStatuses:    []rpc.RowStatus{{RowIndex: 0, Code: rpc.RowStatusOK, TabletServerUUID: "ts1"}},
		}, nil
	})

	cfg := DefaultConfig()
	core := New(cfg, router, transport, nil)

	op := insertOp(t, tbl, 1)
	future, err := core.Apply(context.Background(), op)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := future.Wait()
	if err != nil {
		t.Fatal(err)
	}
	if resp.HasRowError() {
		t.Fatalf("unexpected row error: %v", resp.RowErr)
	}
	if transport.SentCount() != 1 {
		t.Fatalf("sent count = %d, want 1", transport.SentCount())
	}
}

// S2 — duplicate suppression.
func TestApplySyncDuplicateSuppression(t *testing.T) {
	tbl := testTableNoPartition()
	router := singleTabletRouter("tablet-1")

	var calls atomic.Int32
	transport := rpc.NewFakeTransport(func(req *rpc.WriteRPC) (*rpc.WriteResponse, error) {
		n := calls.Add(1)
		code := rpc.RowStatusOK
		if n == 2 {
			code = rpc.RowStatusAlreadyPresent
		}
		return &rpc.WriteResponse{RowStatuses: []rpc.RowStatus{{RowIndex: 0, Code: code}}}, nil
	})

	cfg := DefaultConfig()
	cfg.IgnoreDuplicateRows = true
	core := New(cfg, router, transport, nil)

	op1 := insertOp(t, tbl, 7)
	f1, err := core.Apply(context.Background(), op1)
	if err != nil {
		t.Fatal(err)
	}
	resp1, _ := f1.Wait()
	if resp1.HasRowError() {
		t.Fatalf("first insert: unexpected row error %v", resp1.RowErr)
	}

	op2 := insertOp(t, tbl, 7)
	f2, err := core.Apply(context.Background(), op2)
	if err != nil {
		t.Fatal(err)
	}
	resp2, _ := f2.Wait()
	if resp2.HasRowError() {
		t.Fatalf("duplicate insert should be suppressed, got %v", resp2.RowErr)
	}
}

// S3 — non-covered range, manual flush.
func TestManualFlushNonCoveredRange(t *testing.T) {
	tbl := testTableNoPartition()
	router := &fakeRouter{locate: func(ctx context.Context, table *schema.TableSchema, key []byte) (tablet.LocatedTablet, error) {
		return tablet.LocatedTablet{}, &tablet.LookupError{Kind: tablet.ErrorNonCoveredRange, Err: errNonCovered}
	}}
	transport := rpc.NewFakeTransport(func(req *rpc.WriteRPC) (*rpc.WriteResponse, error) {
		t.Fatal("no RPC should be sent for a non-covered-range row")
		return nil, nil
	})

	cfg := DefaultConfig()
	cfg.FlushMode = ManualFlush
	core := New(cfg, router, transport, nil)

	op := insertOp(t, tbl, 9999)
	future, err := core.Apply(context.Background(), op)
	if err != nil {
		t.Fatal(err)
	}

	flush := core.Flush()
	flush.Wait()

	resp, _ := future.Wait()
	if !resp.HasRowError() {
		t.Fatal("expected a row error for a non-covered-range key")
	}
	if resp.RowErr.Kind != schema.RowErrorNotFound {
		t.Fatalf("kind = %v, want NotFound", resp.RowErr.Kind)
	}
}

var errNonCovered = &testError{"partition key outside any tablet's range"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }

// Flushing a session with nothing buffered completes immediately with an
// empty response list.
func TestFlushEmptySessionIsImmediate(t *testing.T) {
	tbl := testTableNoPartition()
	_ = tbl
	router := singleTabletRouter("tablet-1")
	transport := rpc.NewFakeTransport(func(req *rpc.WriteRPC) (*rpc.WriteResponse, error) {
		t.Fatal("no RPC expected")
		return nil, nil
	})
	core := New(DefaultConfig(), router, transport, nil)

	done := make(chan []schema.OperationResponse, 1)
	go func() { done <- core.Flush().Wait() }()

	select {
	case resp := <-done:
		if len(resp) != 0 {
			t.Fatalf("expected empty response list, got %d", len(resp))
		}
	case <-time.After(time.Second):
		t.Fatal("flush of empty session did not complete promptly")
	}
}

// close() after close() is a no-op returning an already-complete future.
func TestCloseIsIdempotent(t *testing.T) {
	router := singleTabletRouter("tablet-1")
	transport := rpc.NewFakeTransport(func(req *rpc.WriteRPC) (*rpc.WriteResponse, error) {
		return &rpc.WriteResponse{RowStatuses: []rpc.RowStatus{{Code: rpc.RowStatusOK}}}, nil
	})
	core := New(DefaultConfig(), router, transport, nil)

	core.Close().Wait()
	second := core.Close()
	select {
	case <-second.Done():
	default:
		t.Fatal("second Close should already be complete")
	}
	if resp := second.Wait(); len(resp) != 0 {
		t.Fatalf("expected empty response on repeated close, got %d", len(resp))
	}
}

// S4 — buffer-full throttle under AUTO_FLUSH_BACKGROUND.
func TestBackgroundApplyThrottlesWhenBothBuffersFlushing(t *testing.T) {
	tbl := testTableNoPartition()
	router := singleTabletRouter("tablet-1")

	release := make(chan struct{})
	transport := rpc.NewFakeTransport(func(req *rpc.WriteRPC) (*rpc.WriteResponse, error) {
		<-release
		statuses := make([]rpc.RowStatus, len(req.Operations))
		for i := range statuses {
			statuses[i] = rpc.RowStatus{RowIndex: i, Code: rpc.RowStatusOK}
		}
		return &rpc.WriteResponse{RowStatuses: statuses}, nil
	})

	cfg := DefaultConfig()
	cfg.FlushMode = AutoFlushBackground
	cfg.MutationBufferSpace = 2
	cfg.MutationBufferLowWaterPct = 1.0 // disable the probabilistic path
	cfg.FlushIntervalMs = 60000
	core := New(cfg, router, transport, nil)
	ctx := context.Background()

	mustApply := func(key int32) *schema.OperationFuture {
		f, err := core.Apply(ctx, insertOp(t, tbl, key))
		if err != nil {
			t.Fatalf("apply(%d): unexpected error: %v", key, err)
		}
		return f
	}

	mustApply(1) // buffer A: [1]
	mustApply(2) // buffer A: [1,2] full -> detached+flushing, B promoted

	f3 := mustApply(3) // buffer B: [3]
	f4 := mustApply(4) // buffer B: [3,4] full, no spare inactive buffer -> stays active at capacity

	_, err := core.Apply(ctx, insertOp(t, tbl, 5))
	if err == nil {
		t.Fatal("expected ServiceUnavailable once both buffers are flushing")
	}
	if !IsCode(err, ErrCodeServiceUnavailable) {
		t.Fatalf("error = %v, want ErrCodeServiceUnavailable", err)
	}

	close(release)

	if _, err := f3.Wait(); err != nil {
		t.Fatal(err)
	}
	if _, err := f4.Wait(); err != nil {
		t.Fatal(err)
	}
}

// S6 — ordering across tablets: the composite flush response list
// preserves submission order even though the two ops land on different
// tablets and their RPCs may complete in either order.
func TestFlushPreservesSubmissionOrderAcrossTablets(t *testing.T) {
	tbl := testTableNoPartition()
	tbl.Partition = schema.PartitionSchema{
		HashSchemas: []schema.HashPartitionSchema{{ColumnIndexes: []int{0}, NumBuckets: 1000000, Seed: 0}},
	}
	router := &fakeRouter{locate: func(ctx context.Context, table *schema.TableSchema, key []byte) (tablet.LocatedTablet, error) {
		// Route by the partition key (the row's hash bucket), so the
		// two ops land on distinct tablets deterministically.
		return tablet.LocatedTablet{TabletID: string(key) + "-t", TableID: table.TableID}, nil
	}}

	transport := rpc.NewFakeTransport(func(req *rpc.WriteRPC) (*rpc.WriteResponse, error) {
		statuses := make([]rpc.RowStatus, len(req.Operations))
		for i := range statuses {
			statuses[i] = rpc.RowStatus{RowIndex: i, Code: rpc.RowStatusOK, TabletServerUUID: req.TabletID}
		}
		return &rpc.WriteResponse{RowStatuses: statuses}, nil
	})

	cfg := DefaultConfig()
	cfg.FlushMode = ManualFlush
	core := New(cfg, router, transport, nil)
	ctx := context.Background()

	op1, err1 := core.Apply(ctx, insertOp(t, tbl, 1))
	if err1 != nil {
		t.Fatal(err1)
	}
	op2, err2 := core.Apply(ctx, insertOp(t, tbl, 2))
	if err2 != nil {
		t.Fatal(err2)
	}

	resp := core.Flush().Wait()
	if len(resp) != 2 {
		t.Fatalf("got %d responses, want 2", len(resp))
	}

	r1, _ := op1.Wait()
	r2, _ := op2.Wait()
	if resp[0].Operation != r1.Operation || resp[1].Operation != r2.Operation {
		t.Fatal("flush response order does not match submission order")
	}
}
