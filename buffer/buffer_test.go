package buffer

import (
	"context"
	"testing"
	"time"

	"github.com/sabledb/client-go/schema"
	"github.com/sabledb/client-go/tablet"
)

func TestNotificationFiresExactlyOnce(t *testing.T) {
	n := NewNotification()
	select {
	case <-n.C():
		t.Fatal("notification fired before Fire was called")
	default:
	}

	done := make(chan struct{})
	go func() {
		n.Wait()
		close(done)
	}()

	n.Fire()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not observe Fire")
	}
}

func TestBufferResetClearsOpsAndToken(t *testing.T) {
	b := New()
	if !b.Empty() {
		t.Fatal("new buffer should be empty")
	}

	router := &staticRouter{tablet: tablet.LocatedTablet{TabletID: "t1"}}
	op := schema.NewOperation(nil, nil, schema.Insert)
	b.Append(NewPendingOp(context.Background(), op, nil, router))
	if b.Len() != 1 {
		t.Fatalf("len = %d, want 1", b.Len())
	}

	tok := b.Token()
	firstNotif := b.FlushNotification()

	b.Reset()

	if !b.Empty() {
		t.Fatal("buffer should be empty after Reset")
	}
	if b.HasToken(tok) {
		t.Fatal("Reset should clear the flush-task token")
	}
	if b.FlushNotification() == firstNotif {
		t.Fatal("Reset should install a fresh notification")
	}
}

func TestPendingOpResolvedReflectsLookupOutcome(t *testing.T) {
	located := tablet.LocatedTablet{TabletID: "t1", TableID: "tbl"}
	router := &staticRouter{tablet: located}
	op := schema.NewOperation(nil, nil, schema.Insert)

	p := NewPendingOp(context.Background(), op, nil, router)
	p.Wait()

	got, ok := p.Resolved()
	if !ok {
		t.Fatal("expected lookup success")
	}
	if got.TabletID != located.TabletID || got.TableID != located.TableID {
		t.Fatalf("resolved tablet = %+v, want %+v", got, located)
	}
	if p.LookupError() != nil {
		t.Fatalf("unexpected lookup error: %v", p.LookupError())
	}
}

func TestPendingOpResolvedReflectsLookupFailure(t *testing.T) {
	failErr := &testErr{"lookup failed"}
	router := &staticRouter{err: failErr}
	op := schema.NewOperation(nil, nil, schema.Insert)

	p := NewPendingOp(context.Background(), op, nil, router)
	p.Wait()

	if _, ok := p.Resolved(); ok {
		t.Fatal("expected lookup failure")
	}
	if p.LookupError() != failErr {
		t.Fatalf("lookup error = %v, want %v", p.LookupError(), failErr)
	}
}

type staticRouter struct {
	tablet tablet.LocatedTablet
	err    error
}

func (r *staticRouter) Locate(ctx context.Context, table *schema.TableSchema, key []byte) (tablet.LocatedTablet, error) {
	return r.tablet, r.err
}

type testErr struct{ msg string }

func (e *testErr) Error() string { return e.msg }
