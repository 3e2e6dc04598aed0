package rowcodec

import (
	"fmt"

	"github.com/sabledb/client-go/internal/wire"
	"github.com/sabledb/client-go/schema"
)

// DecodedRow is a read-only, schema-aware view of one encoded row. Cells
// are non-owning slices into the original RowOperations buffers (the
// "indirect" ones reference IndirectData; the backing array's lifetime is
// the caller's responsibility), matching the zero-copy decode contract in
// spec.md §9.
type DecodedRow struct {
	ChangeType schema.ChangeType
	SetBits    []bool
	NullBits   []bool
	Cells      [][]byte
}

// DecodeOperations reverses EncodeOperations for a known schema. It exists
// to make the encoder's round-trip invariant (spec.md §8) directly
// testable; production response decoding lives in the out-of-scope RPC
// transport.
func DecodeOperations(tbl *schema.TableSchema, ro *RowOperations) ([]DecodedRow, error) {
	if ro == nil || len(ro.Rows) == 0 {
		return nil, nil
	}

	numCols := len(tbl.Columns)
	hasNulls := tbl.HasNullableColumn()
	bitsetBytes := wire.BitsetBytes(numCols)

	buf := ro.Rows
	var out []DecodedRow

	for len(buf) > 0 {
		if len(buf) < 1+bitsetBytes {
			return nil, fmt.Errorf("rowcodec: truncated row header")
		}
		changeType := schema.ChangeType(buf[0])
		buf = buf[1:]

		setBytes := buf[:bitsetBytes]
		buf = buf[bitsetBytes:]
		setBits := unpackBits(setBytes, numCols)

		var nullBits []bool
		if hasNulls {
			if len(buf) < bitsetBytes {
				return nil, fmt.Errorf("rowcodec: truncated nulls bitset")
			}
			nullBytes := buf[:bitsetBytes]
			buf = buf[bitsetBytes:]
			nullBits = unpackBits(nullBytes, numCols)
		} else {
			nullBits = make([]bool, numCols)
		}

		cells := make([][]byte, numCols)
		for i, col := range tbl.Columns {
			if !setBits[i] || nullBits[i] {
				continue
			}
			if wire.IsVariableLength(col.Type) {
				if len(buf) < wire.IndirectPointerSize {
					return nil, fmt.Errorf("rowcodec: truncated indirect pointer for column %q", col.Name)
				}
				offset, length := wire.IndirectPointer(buf[:wire.IndirectPointerSize])
				buf = buf[wire.IndirectPointerSize:]
				if offset+length > uint64(len(ro.IndirectData)) {
					return nil, fmt.Errorf("rowcodec: indirect pointer out of range for column %q", col.Name)
				}
				cells[i] = ro.IndirectData[offset : offset+length]
			} else {
				size := wire.FixedSize(col.Type)
				if len(buf) < size {
					return nil, fmt.Errorf("rowcodec: truncated fixed cell for column %q", col.Name)
				}
				cells[i] = buf[:size]
				buf = buf[size:]
			}
		}

		out = append(out, DecodedRow{
			ChangeType: changeType,
			SetBits:    setBits,
			NullBits:   nullBits,
			Cells:      cells,
		})
	}

	return out, nil
}

func unpackBits(src []byte, n int) []bool {
	out := make([]bool, n)
	for i := 0; i < n; i++ {
		out[i] = src[i/8]&(1<<(i%8)) != 0
	}
	return out
}
