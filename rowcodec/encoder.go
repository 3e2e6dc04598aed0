// Package rowcodec packs a set of operations sharing one schema into the
// binary row-operations wire format: a dense row buffer plus an indirect
// buffer for variable-length cells.
package rowcodec

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"

	"github.com/sabledb/client-go/internal/wire"
	"github.com/sabledb/client-go/schema"
)

// RowOperations is the encoded output: two contiguous byte blobs, matching
// the wire contract in spec.md §3/§6.
type RowOperations struct {
	Rows         []byte
	IndirectData []byte
}

// EncodeOperations packs ops into a RowOperations blob pair. All ops must
// share one schema (the first element's). Returns (nil, nil) for an empty
// input. Encoding is deterministic: rows are emitted in input order and
// columns within a row are emitted in schema order, independent of any map.
func EncodeOperations(ops []*schema.Operation) (*RowOperations, error) {
	if len(ops) == 0 {
		return nil, nil
	}

	tbl := ops[0].Table
	numCols := len(tbl.Columns)
	hasNulls := tbl.HasNullableColumn()
	bitsetBytes := wire.BitsetBytes(numCols)

	fixedRowWidth := 0
	for _, c := range tbl.Columns {
		fixedRowWidth += wire.FixedSize(c.Type)
	}

	headerWidth := 1 + bitsetBytes
	if hasNulls {
		headerWidth += bitsetBytes
	}
	rowStride := headerWidth + fixedRowWidth

	rows := make([]byte, 0, len(ops)*rowStride)
	var indirect []byte
	var indirectOffset uint64

	for _, op := range ops {
		if op.Table != tbl {
			return nil, fmt.Errorf("rowcodec: all operations must share one schema")
		}
		row := op.Row

		if isRealChangeType(op.ChangeType) {
			if err := row.Validate(); err != nil {
				return nil, fmt.Errorf("rowcodec: %w", err)
			}
		}

		rows = append(rows, byte(op.ChangeType))
		rows = appendBitsetBytes(rows, setBitsOf(row, numCols), bitsetBytes)
		if hasNulls {
			rows = appendBitsetBytes(rows, nullBitsOf(row, numCols), bitsetBytes)
		}

		for i, col := range tbl.Columns {
			if !row.IsSet(i) || row.IsNull(i) {
				continue
			}
			cell := row.Cell(i)
			if wire.IsVariableLength(col.Type) {
				ptr := make([]byte, wire.IndirectPointerSize)
				wire.PutIndirectPointer(ptr, indirectOffset, uint64(len(cell)))
				rows = append(rows, ptr...)
				indirect = append(indirect, cell...)
				indirectOffset += uint64(len(cell))
			} else {
				rows = append(rows, cell...)
			}
		}
	}

	return &RowOperations{Rows: rows, IndirectData: indirect}, nil
}

func isRealChangeType(t schema.ChangeType) bool {
	switch t {
	case schema.Insert, schema.Update, schema.Upsert, schema.Delete:
		return true
	default:
		return false
	}
}

// setBitsOf and nullBitsOf materialize a bitset.BitSet snapshot of the
// row's set/null bits for emission; PartialRow keeps its own bitsets
// internal, so the codec goes through the public IsSet/IsNull accessors.
func setBitsOf(row *schema.PartialRow, n int) *bitset.BitSet {
	bs := bitset.New(uint(n))
	for i := 0; i < n; i++ {
		if row.IsSet(i) {
			bs.Set(uint(i))
		}
	}
	return bs
}

func nullBitsOf(row *schema.PartialRow, n int) *bitset.BitSet {
	bs := bitset.New(uint(n))
	for i := 0; i < n; i++ {
		if row.IsNull(i) {
			bs.Set(uint(i))
		}
	}
	return bs
}

// appendBitsetBytes appends nBytes of bs in LSB-first-per-byte layout,
// column 0 in bit 0 of byte 0.
func appendBitsetBytes(dst []byte, bs *bitset.BitSet, nBytes int) []byte {
	start := len(dst)
	dst = append(dst, make([]byte, nBytes)...)
	buf := dst[start:]
	for i, e := bs.NextSet(0); e; i, e = bs.NextSet(i + 1) {
		buf[i/8] |= 1 << (i % 8)
	}
	return dst
}
