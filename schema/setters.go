package schema

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/sabledb/client-go/internal/wire"
)

func (r *PartialRow) typedSet(name string, t wire.ColumnType, raw []byte) error {
	idx := r.Schema.ColumnIndex(name)
	if idx < 0 {
		return fmt.Errorf("partial row: unknown column %q", name)
	}
	if r.Schema.Columns[idx].Type != t {
		return fmt.Errorf("partial row: column %q is type %v, not %v", name, r.Schema.Columns[idx].Type, t)
	}
	return r.setColumn(name, raw)
}

func (r *PartialRow) SetBool(name string, v bool) error {
	b := byte(0)
	if v {
		b = 1
	}
	return r.typedSet(name, wire.Bool, []byte{b})
}

func (r *PartialRow) SetInt8(name string, v int8) error {
	return r.typedSet(name, wire.Int8, []byte{byte(v)})
}

func (r *PartialRow) SetInt16(name string, v int16) error {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, uint16(v))
	return r.typedSet(name, wire.Int16, buf)
}

func (r *PartialRow) SetInt32(name string, v int32) error {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(v))
	return r.typedSet(name, wire.Int32, buf)
}

func (r *PartialRow) SetInt64(name string, v int64) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(v))
	return r.typedSet(name, wire.Int64, buf)
}

func (r *PartialRow) SetUnixtimeMicros(name string, micros int64) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(micros))
	return r.typedSet(name, wire.UnixtimeMicros, buf)
}

func (r *PartialRow) SetFloat(name string, v float32) error {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
	return r.typedSet(name, wire.Float, buf)
}

func (r *PartialRow) SetDouble(name string, v float64) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
	return r.typedSet(name, wire.Double, buf)
}

func (r *PartialRow) SetString(name string, v string) error {
	return r.typedSet(name, wire.String, []byte(v))
}

func (r *PartialRow) SetBinary(name string, v []byte) error {
	cp := make([]byte, len(v))
	copy(cp, v)
	return r.typedSet(name, wire.Binary, cp)
}
