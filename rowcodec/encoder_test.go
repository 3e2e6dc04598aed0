package rowcodec

import (
	"bytes"
	"testing"

	"github.com/sabledb/client-go/internal/wire"
	"github.com/sabledb/client-go/schema"
)

func testSchema() *schema.TableSchema {
	return &schema.TableSchema{
		TableName: "widgets",
		Columns: []schema.ColumnSchema{
			{Name: "key", Type: wire.Int32, IsKey: true},
			{Name: "v", Type: wire.String, IsNullable: true},
		},
	}
}

func mustInsert(t *testing.T, tbl *schema.TableSchema, key int32, v string, null bool) *schema.Operation {
	t.Helper()
	row := schema.NewPartialRow(tbl)
	if err := row.SetInt32("key", key); err != nil {
		t.Fatal(err)
	}
	if null {
		if err := row.SetNull("v"); err != nil {
			t.Fatal(err)
		}
	} else {
		if err := row.SetString("v", v); err != nil {
			t.Fatal(err)
		}
	}
	return schema.NewOperation(tbl, row, schema.Insert)
}

func TestEncodeEmptyReturnsNil(t *testing.T) {
	out, err := EncodeOperations(nil)
	if err != nil {
		t.Fatal(err)
	}
	if out != nil {
		t.Fatalf("expected nil, got %+v", out)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tbl := testSchema()
	ops := []*schema.Operation{
		mustInsert(t, tbl, 1, "abc", false),
		mustInsert(t, tbl, 2, "", true),
		mustInsert(t, tbl, 3, "hello world", false),
	}

	out, err := EncodeOperations(ops)
	if err != nil {
		t.Fatal(err)
	}

	decoded, err := DecodeOperations(tbl, out)
	if err != nil {
		t.Fatal(err)
	}
	if len(decoded) != len(ops) {
		t.Fatalf("got %d rows, want %d", len(decoded), len(ops))
	}

	for i, op := range ops {
		d := decoded[i]
		if d.ChangeType != op.ChangeType {
			t.Errorf("row %d: change type = %v, want %v", i, d.ChangeType, op.ChangeType)
		}
		for col := 0; col < len(tbl.Columns); col++ {
			if d.SetBits[col] != op.Row.IsSet(col) {
				t.Errorf("row %d col %d: set bit = %v, want %v", i, col, d.SetBits[col], op.Row.IsSet(col))
			}
			if d.NullBits[col] != op.Row.IsNull(col) {
				t.Errorf("row %d col %d: null bit = %v, want %v", i, col, d.NullBits[col], op.Row.IsNull(col))
			}
			if op.Row.IsSet(col) && !op.Row.IsNull(col) {
				if !bytes.Equal(d.Cells[col], op.Row.Cell(col)) {
					t.Errorf("row %d col %d: cell = %q, want %q", i, col, d.Cells[col], op.Row.Cell(col))
				}
			}
		}
	}
}

func TestEncodeIdenticalOpsYieldIdenticalRows(t *testing.T) {
	tbl := testSchema()
	ops := []*schema.Operation{
		mustInsert(t, tbl, 7, "same", false),
		mustInsert(t, tbl, 7, "same", false),
		mustInsert(t, tbl, 7, "same", false),
	}

	out, err := EncodeOperations(ops)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := DecodeOperations(tbl, out)
	if err != nil {
		t.Fatal(err)
	}
	if len(decoded) != 3 {
		t.Fatalf("got %d rows, want 3", len(decoded))
	}
	for i := 1; i < len(decoded); i++ {
		if decoded[i].ChangeType != decoded[0].ChangeType {
			t.Errorf("row %d change type differs", i)
		}
		if !bytes.Equal(decoded[i].Cells[0], decoded[0].Cells[0]) {
			t.Errorf("row %d key cell differs", i)
		}
		if !bytes.Equal(decoded[i].Cells[1], decoded[0].Cells[1]) {
			t.Errorf("row %d v cell differs", i)
		}
	}
}

func TestEncodeRejectsMixedSchemas(t *testing.T) {
	tbl1 := testSchema()
	tbl2 := testSchema()
	tbl2.TableName = "other"

	ops := []*schema.Operation{
		mustInsert(t, tbl1, 1, "a", false),
		mustInsert(t, tbl2, 2, "b", false),
	}

	if _, err := EncodeOperations(ops); err == nil {
		t.Fatal("expected error for mixed schemas")
	}
}

func TestEncodeRangePartitionPseudoRows(t *testing.T) {
	tbl := testSchema()
	row := schema.NewPartialRow(tbl)
	if err := row.SetInt32("key", 100); err != nil {
		t.Fatal(err)
	}
	op := schema.NewOperation(tbl, row, schema.SplitRow)

	out, err := EncodeOperations([]*schema.Operation{op})
	if err != nil {
		t.Fatal(err)
	}
	if out == nil || len(out.Rows) == 0 {
		t.Fatal("expected encoded output for pseudo-row")
	}
	if out.Rows[0] != byte(schema.SplitRow) {
		t.Fatalf("change type byte = %d, want %d", out.Rows[0], byte(schema.SplitRow))
	}
}
