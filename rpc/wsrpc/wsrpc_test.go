package wsrpc

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/sabledb/client-go/internal/wire"
	"github.com/sabledb/client-go/rpc"
	"github.com/sabledb/client-go/schema"
)

func testTable() *schema.TableSchema {
	return &schema.TableSchema{
		TableID:   "tbl1",
		TableName: "widgets",
		Columns: []schema.ColumnSchema{
			{Name: "key", Type: wire.Int32, IsKey: true},
		},
	}
}

func TestEncodeRequestFramePrefixesCompressionScheme(t *testing.T) {
	tbl := testTable()
	row := schema.NewPartialRow(tbl)
	if err := row.SetInt32("key", 5); err != nil {
		t.Fatal(err)
	}
	op := schema.NewOperation(tbl, row, schema.Insert)
	op.Submit()

	frame, err := encodeRequestFrame(1, &rpc.WriteRPC{
		TableID:    "tbl1",
		TabletID:   "tab1",
		Operations: []*schema.Operation{op},
	})
	if err != nil {
		t.Fatal(err)
	}
	if frame[0] != 0 {
		t.Fatalf("expected uncompressed scheme byte 0, got %d", frame[0])
	}
	if got := binary.BigEndian.Uint32(frame[1:5]); got != 1 {
		t.Fatalf("request id = %d, want 1", got)
	}
}

// encodeResponseFrameForTest builds a response body matching
// decodeResponseFrame's expected layout, exercising the round trip without
// a real server.
func encodeResponseFrameForTest(requestID uint32, writeTS uint64, statuses []rpc.RowStatus) []byte {
	var buf bytes.Buffer
	var hdr [12]byte
	binary.BigEndian.PutUint32(hdr[0:4], requestID)
	binary.BigEndian.PutUint64(hdr[4:12], writeTS)
	buf.Write(hdr[:])

	var count [4]byte
	binary.BigEndian.PutUint32(count[:], uint32(len(statuses)))
	buf.Write(count[:])

	for _, s := range statuses {
		buf.WriteByte(byte(s.Code))
		writeLenPrefixed(&buf, []byte(s.Message))
		writeLenPrefixed(&buf, []byte(s.TabletServerUUID))
	}
	return buf.Bytes()
}

func TestDecodeResponseFrameRoundTrip(t *testing.T) {
	body := encodeResponseFrameForTest(7, 42, []rpc.RowStatus{
		{Code: rpc.RowStatusOK, TabletServerUUID: "ts1"},
		{Code: rpc.RowStatusAlreadyPresent, Message: "dup"},
	})

	requestID, resp, respErr, err := decodeResponseFrame(body)
	if err != nil {
		t.Fatal(err)
	}
	if respErr != nil {
		t.Fatalf("unexpected response-level error: %v", respErr)
	}
	if requestID != 7 {
		t.Fatalf("request id = %d, want 7", requestID)
	}
	if resp.WriteTimestamp != 42 {
		t.Fatalf("write timestamp = %d, want 42", resp.WriteTimestamp)
	}
	if len(resp.RowStatuses) != 2 {
		t.Fatalf("got %d row statuses, want 2", len(resp.RowStatuses))
	}
	if resp.RowStatuses[1].Message != "dup" {
		t.Fatalf("message = %q, want dup", resp.RowStatuses[1].Message)
	}
}

func TestDecompressFrameRoundTripUncompressed(t *testing.T) {
	payload := append([]byte{0}, []byte("hello")...)
	out, err := decompressFrame(payload)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "hello" {
		t.Fatalf("got %q, want hello", out)
	}
}
