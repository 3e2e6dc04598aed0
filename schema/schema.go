// Package schema holds the table descriptor, row, and operation types
// shared across the write-session core: ColumnSchema/TableSchema describe
// a table's columns and partitioning, PartialRow is a single mutable row
// buffer, and Operation pairs a PartialRow with a change type and a
// one-shot completion future.
package schema

import "github.com/sabledb/client-go/internal/wire"

// ColumnSchema describes one column of a table.
type ColumnSchema struct {
	Name       string
	Type       wire.ColumnType
	IsKey      bool
	IsNullable bool
}

// HashPartitionSchema describes one hash-partition component: the columns
// hashed together and the number of buckets they are split into.
type HashPartitionSchema struct {
	ColumnIndexes []int
	NumBuckets    int
	Seed          uint32
}

// PartitionSchema describes how rows of a table are routed to tablets.
type PartitionSchema struct {
	HashSchemas        []HashPartitionSchema
	RangeColumnIndexes []int
}

// TableSchema is the immutable descriptor for a table: its columns in
// declaration order and its partitioning scheme.
type TableSchema struct {
	TableID   string
	TableName string
	Columns   []ColumnSchema
	Partition PartitionSchema
}

// ColumnIndex returns the index of the named column, or -1 if absent.
func (s *TableSchema) ColumnIndex(name string) int {
	for i := range s.Columns {
		if s.Columns[i].Name == name {
			return i
		}
	}
	return -1
}

// HasNullableColumn reports whether the schema has at least one nullable
// column, which determines whether a nulls bitset is emitted per row.
func (s *TableSchema) HasNullableColumn() bool {
	for _, c := range s.Columns {
		if c.IsNullable {
			return true
		}
	}
	return false
}

// KeyColumnIndexes returns the indexes of the primary-key columns, in
// schema order.
func (s *TableSchema) KeyColumnIndexes() []int {
	var out []int
	for i, c := range s.Columns {
		if c.IsKey {
			out = append(out, i)
		}
	}
	return out
}
