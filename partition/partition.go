// Package partition derives a tablet-routing key from a row and its
// table's partition schema: concatenated big-endian hash-partition bucket
// ids followed by the encoded prefix of the range-partition columns.
package partition

import (
	"encoding/binary"
	"fmt"

	"github.com/twmb/murmur3"

	"github.com/sabledb/client-go/internal/wire"
	"github.com/sabledb/client-go/schema"
)

// ComputeKey builds the partition key for row, which must already satisfy
// row.Validate(). The output is stable and order-preserving over the range
// portion, per spec.md §4.2.
func ComputeKey(row *schema.PartialRow) ([]byte, error) {
	tbl := row.Schema
	key := make([]byte, 0, 4*len(tbl.Partition.HashSchemas)+16)

	for _, hs := range tbl.Partition.HashSchemas {
		bucket, err := hashBucket(row, hs)
		if err != nil {
			return nil, err
		}
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], bucket)
		key = append(key, buf[:]...)
	}

	rangePrefix, err := encodeRangePrefix(row, tbl.Partition.RangeColumnIndexes)
	if err != nil {
		return nil, err
	}
	key = append(key, rangePrefix...)

	return key, nil
}

// hashBucket hashes the concatenated column cells of a hash-partition
// component with the 64-bit MurmurHash3 variant from twmb/murmur3 (seeded
// with hs.Seed) and reduces the hash modulo the bucket count.
func hashBucket(row *schema.PartialRow, hs schema.HashPartitionSchema) (uint32, error) {
	var buf []byte
	for _, idx := range hs.ColumnIndexes {
		if !row.IsSet(idx) || row.IsNull(idx) {
			return 0, fmt.Errorf("partition: hash column %q is not set", row.Schema.Columns[idx].Name)
		}
		buf = append(buf, row.Cell(idx)...)
	}

	hasher := murmur3.SeedNew64(uint64(hs.Seed))
	_, _ = hasher.Write(buf)
	h := hasher.Sum64()

	if hs.NumBuckets <= 0 {
		return 0, fmt.Errorf("partition: hash schema has non-positive bucket count")
	}
	return uint32(h % uint64(hs.NumBuckets)), nil
}

// encodeRangePrefix concatenates a memcomparable encoding of the
// range-partition columns, in partition-schema order. Column cells are
// stored little-endian in the fixed row area (§3/§4.1), which does not
// sort correctly; this re-encodes each range column big-endian with a
// sign-bit flip for signed integers, so that byte-wise comparison of two
// keys preserves the original value ordering.
func encodeRangePrefix(row *schema.PartialRow, rangeColumnIndexes []int) ([]byte, error) {
	var out []byte
	for _, idx := range rangeColumnIndexes {
		if !row.IsSet(idx) || row.IsNull(idx) {
			return nil, fmt.Errorf("partition: range column %q is not set", row.Schema.Columns[idx].Name)
		}
		col := row.Schema.Columns[idx]
		cell := row.Cell(idx)

		encoded, err := memcomparable(col.Type, cell)
		if err != nil {
			return nil, fmt.Errorf("partition: range column %q: %w", col.Name, err)
		}
		out = append(out, encoded...)
	}
	return out, nil
}

// memcomparable converts a little-endian fixed-width cell (or a raw
// variable-length cell) into bytes whose unsigned lexicographic order
// matches the column's value order.
func memcomparable(t wire.ColumnType, cell []byte) ([]byte, error) {
	switch t {
	case wire.Bool, wire.Int8:
		if len(cell) != 1 {
			return nil, fmt.Errorf("expected 1-byte cell, got %d", len(cell))
		}
		return []byte{cell[0] ^ 0x80}, nil
	case wire.Int16:
		v := binary.LittleEndian.Uint16(cell)
		out := make([]byte, 2)
		binary.BigEndian.PutUint16(out, v^0x8000)
		return out, nil
	case wire.Int32:
		v := binary.LittleEndian.Uint32(cell)
		out := make([]byte, 4)
		binary.BigEndian.PutUint32(out, v^0x80000000)
		return out, nil
	case wire.Int64, wire.UnixtimeMicros:
		v := binary.LittleEndian.Uint64(cell)
		out := make([]byte, 8)
		binary.BigEndian.PutUint64(out, v^0x8000000000000000)
		return out, nil
	case wire.String, wire.Binary:
		// Escape each 0x00 as 0x00 0x01 and terminate with 0x00 0x00, so
		// a shorter value sorts before any value it is a prefix of.
		out := make([]byte, 0, len(cell)+2)
		for _, b := range cell {
			if b == 0x00 {
				out = append(out, 0x00, 0x01)
			} else {
				out = append(out, b)
			}
		}
		return append(out, 0x00, 0x00), nil
	default:
		return nil, fmt.Errorf("unsupported range-partition column type %v", t)
	}
}
