// Package wire defines the byte-level layout shared by the row encoder and
// the partition key computer: fixed-width type sizes and the little-endian
// indirect-pointer format.
package wire

import "encoding/binary"

// ColumnType enumerates the fixed-width wire types a schema column can have.
type ColumnType int

const (
	Bool ColumnType = iota
	Int8
	Int16
	Int32
	Int64
	Float
	Double
	UnixtimeMicros
	String
	Binary
)

// IndirectPointerSize is the size, in bytes, of the (offset, length) pair
// written into the fixed row area for variable-length columns.
const IndirectPointerSize = 16

// FixedSize returns the number of bytes a column of this type occupies in
// the fixed row area. Variable-length types occupy IndirectPointerSize.
func FixedSize(t ColumnType) int {
	switch t {
	case Bool, Int8:
		return 1
	case Int16:
		return 2
	case Int32, Float:
		return 4
	case Int64, Double, UnixtimeMicros:
		return 8
	case String, Binary:
		return IndirectPointerSize
	default:
		panic("wire: unknown column type")
	}
}

// IsVariableLength reports whether t is stored indirectly.
func IsVariableLength(t ColumnType) bool {
	return t == String || t == Binary
}

// PutIndirectPointer writes a little-endian (offset, length) pair at dst[0:16].
func PutIndirectPointer(dst []byte, offset, length uint64) {
	binary.LittleEndian.PutUint64(dst[0:8], offset)
	binary.LittleEndian.PutUint64(dst[8:16], length)
}

// IndirectPointer reads a little-endian (offset, length) pair from src[0:16].
func IndirectPointer(src []byte) (offset, length uint64) {
	offset = binary.LittleEndian.Uint64(src[0:8])
	length = binary.LittleEndian.Uint64(src[8:16])
	return
}

// BitsetBytes returns the number of bytes needed to hold n bits, one bit per
// column with column 0 in the LSB of byte 0.
func BitsetBytes(n int) int {
	return (n + 7) / 8
}
