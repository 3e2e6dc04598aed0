package schema

import (
	"fmt"
	"sync/atomic"

	"github.com/bits-and-blooms/bitset"
)

// PartialRow is the set of column values explicitly assigned for one row
// mutation: a "set" bit per column, a "null" bit per nullable column, and a
// side buffer of variable-length cell bytes for STRING/BINARY columns.
//
// A PartialRow is mutable until it is frozen (see Operation), after which
// every setter returns a programmer-error.
type PartialRow struct {
	Schema *TableSchema

	setBits  *bitset.BitSet
	nullBits *bitset.BitSet
	cells    [][]byte // fixed-width payload, or variable-length cell bytes

	frozen atomic.Bool
}

// NewPartialRow allocates an empty row for the given schema.
func NewPartialRow(s *TableSchema) *PartialRow {
	n := uint(len(s.Columns))
	return &PartialRow{
		Schema:   s,
		setBits:  bitset.New(n),
		nullBits: bitset.New(n),
		cells:    make([][]byte, n),
	}
}

// IsFrozen reports whether the row has been frozen by Operation submission.
func (r *PartialRow) IsFrozen() bool {
	return r.frozen.Load()
}

// Freeze marks the row read-only. Called exactly once, when its owning
// Operation is submitted to a session.
func (r *PartialRow) Freeze() {
	r.frozen.Store(true)
}

func (r *PartialRow) checkMutable() error {
	if r.frozen.Load() {
		return fmt.Errorf("partial row is frozen: row was already submitted")
	}
	return nil
}

// IsSet reports whether the column at idx has been assigned a value.
func (r *PartialRow) IsSet(idx int) bool {
	return r.setBits.Test(uint(idx))
}

// IsNull reports whether the column at idx has been explicitly set to null.
func (r *PartialRow) IsNull(idx int) bool {
	return r.nullBits.Test(uint(idx))
}

// Cell returns the raw payload bytes for a set, non-null column: the
// fixed-width value for fixed types, or the cell bytes for variable-length
// types (encoded separately into the indirect buffer by the row encoder).
func (r *PartialRow) Cell(idx int) []byte {
	return r.cells[idx]
}

func (r *PartialRow) setColumn(name string, raw []byte) error {
	if err := r.checkMutable(); err != nil {
		return err
	}
	idx := r.Schema.ColumnIndex(name)
	if idx < 0 {
		return fmt.Errorf("partial row: unknown column %q", name)
	}
	r.cells[idx] = raw
	r.setBits.Set(uint(idx))
	r.nullBits.Clear(uint(idx))
	return nil
}

// SetNull marks a nullable column as explicitly null. Fails if the column
// is not nullable.
func (r *PartialRow) SetNull(name string) error {
	if err := r.checkMutable(); err != nil {
		return err
	}
	idx := r.Schema.ColumnIndex(name)
	if idx < 0 {
		return fmt.Errorf("partial row: unknown column %q", name)
	}
	if !r.Schema.Columns[idx].IsNullable {
		return fmt.Errorf("partial row: column %q is not nullable", name)
	}
	r.cells[idx] = nil
	r.setBits.Set(uint(idx))
	r.nullBits.Set(uint(idx))
	return nil
}

// Validate checks the PartialRow invariants from spec.md §3: every
// primary-key column must be set and non-null.
func (r *PartialRow) Validate() error {
	for _, idx := range r.Schema.KeyColumnIndexes() {
		if !r.IsSet(idx) {
			return fmt.Errorf("partial row: primary key column %q is not set", r.Schema.Columns[idx].Name)
		}
		if r.IsNull(idx) {
			return fmt.Errorf("partial row: primary key column %q is null", r.Schema.Columns[idx].Name)
		}
	}
	return nil
}
