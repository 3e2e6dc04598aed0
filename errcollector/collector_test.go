package errcollector

import (
	"testing"

	"github.com/sabledb/client-go/schema"
)

func TestCollectorDropsOldestOnOverflow(t *testing.T) {
	c := New(2)
	c.Add(&schema.RowError{Message: "a"})
	c.Add(&schema.RowError{Message: "b"})
	c.Add(&schema.RowError{Message: "c"})

	if c.Count() != 2 {
		t.Fatalf("count = %d, want 2", c.Count())
	}

	errs, overflowed := c.TakeAll()
	if !overflowed {
		t.Fatal("expected overflowed = true")
	}
	if len(errs) != 2 || errs[0].Message != "b" || errs[1].Message != "c" {
		t.Fatalf("unexpected errors: %+v", errs)
	}
}

func TestCollectorTakeAllClearsOverflowFlag(t *testing.T) {
	c := New(1)
	c.Add(&schema.RowError{Message: "a"})
	c.Add(&schema.RowError{Message: "b"})

	_, overflowed := c.TakeAll()
	if !overflowed {
		t.Fatal("expected overflowed = true on first drain")
	}

	c.Add(&schema.RowError{Message: "c"})
	_, overflowed = c.TakeAll()
	if overflowed {
		t.Fatal("expected overflowed = false on second drain")
	}
}

func TestCollectorTakeAllOnEmptyCollector(t *testing.T) {
	c := New(5)
	errs, overflowed := c.TakeAll()
	if errs != nil || overflowed {
		t.Fatalf("expected empty drain, got errs=%v overflowed=%v", errs, overflowed)
	}
}
