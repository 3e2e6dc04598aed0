// Package wsrpc is a reference implementation of rpc.Transport over a
// websocket connection: one reader goroutine decodes frames and routes
// them back to the pending call that sent the matching request id. It
// exists so the session can be exercised end-to-end without a real
// tablet-server stack; production embedders supply their own rpc.Transport.
package wsrpc

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sabledb/client-go/rowcodec"
	"github.com/sabledb/client-go/rpc"
)

type pendingCall struct {
	resultCh chan pendingResult
}

type pendingResult struct {
	resp *rpc.WriteResponse
	err  error
}

// Transport is a websocket-framed rpc.Transport. Every call to Send is
// multiplexed over the same connection via a monotonic request id; a
// single background goroutine reads frames and completes the matching
// pending call.
type Transport struct {
	conn *websocket.Conn

	requestIDCounter atomic.Uint32
	pending          sync.Map // map[uint32]*pendingCall

	writeMu sync.Mutex
	closed  atomic.Bool

	lastPropagatedTS atomic.Uint64
	defaultTimeoutMs int64

	onDisconnect func(error)
}

// Dial opens a websocket connection to endpoint and starts the transport's
// read loop.
func Dial(ctx context.Context, endpoint string) (*Transport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("wsrpc: dial %s: %w", endpoint, err)
	}
	t := &Transport{conn: conn, defaultTimeoutMs: 30000}
	t.startReadLoop()
	return t, nil
}

// OnDisconnect registers a callback invoked once, from the read loop, when
// the underlying connection drops.
func (t *Transport) OnDisconnect(f func(error)) {
	t.onDisconnect = f
}

func (t *Transport) startReadLoop() {
	go func() {
		defer t.Close()
		for {
			msgType, payload, err := t.conn.ReadMessage()
			if err != nil {
				t.failPending(err)
				return
			}
			if msgType != websocket.BinaryMessage {
				continue
			}

			decompressed, err := decompressFrame(payload)
			if err != nil {
				t.failPending(err)
				return
			}

			requestID, resp, respErr, err := decodeResponseFrame(decompressed)
			if err != nil {
				t.failPending(err)
				return
			}
			t.complete(requestID, resp, respErr)
		}
	}()
}

func (t *Transport) complete(requestID uint32, resp *rpc.WriteResponse, respErr error) {
	v, ok := t.pending.LoadAndDelete(requestID)
	if !ok {
		return
	}
	call := v.(*pendingCall)
	call.resultCh <- pendingResult{resp: resp, err: respErr}
}

func (t *Transport) failPending(err error) {
	t.pending.Range(func(key, value any) bool {
		requestID := key.(uint32)
		t.pending.Delete(requestID)
		value.(*pendingCall).resultCh <- pendingResult{err: err}
		return true
	})
	if t.onDisconnect != nil {
		t.onDisconnect(err)
	}
}

// Send implements rpc.Transport.
func (t *Transport) Send(ctx context.Context, req *rpc.WriteRPC) (*rpc.WriteResponse, error) {
	if t.closed.Load() {
		return nil, errors.New("wsrpc: transport is closed")
	}

	requestID := t.requestIDCounter.Add(1) - 1
	frame, err := encodeRequestFrame(requestID, req)
	if err != nil {
		return nil, fmt.Errorf("wsrpc: encode request: %w", err)
	}

	call := &pendingCall{resultCh: make(chan pendingResult, 1)}
	t.pending.Store(requestID, call)
	defer t.pending.Delete(requestID)

	t.writeMu.Lock()
	err = t.conn.WriteMessage(websocket.BinaryMessage, frame)
	t.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("wsrpc: write request: %w", err)
	}

	select {
	case res := <-call.resultCh:
		return res.resp, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *Transport) UpdateLastPropagatedTimestamp(ts uint64) {
	for {
		cur := t.lastPropagatedTS.Load()
		if ts <= cur || t.lastPropagatedTS.CompareAndSwap(cur, ts) {
			return
		}
	}
}

func (t *Transport) LastPropagatedTimestamp() uint64 {
	return t.lastPropagatedTS.Load()
}

func (t *Transport) GetDefaultOperationTimeoutMs() int64 {
	return t.defaultTimeoutMs
}

// Close closes the underlying connection. Safe to call more than once.
func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	deadline := time.Now().Add(5 * time.Second)
	_ = t.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return t.conn.Close()
}

// --- wire framing ---
//
// Frame layout: 1 compression-scheme byte (0 = raw, 2 = gzip; scheme 1,
// brotli, is reserved and unsupported, matching the teacher's
// decompressServerMessage) followed by the body. A request body is
// requestID(u32 BE) | tableID(len-prefixed) | tabletID(len-prefixed) |
// externalConsistencyMode(u8) | propagatedTimestamp(u64 BE) |
// rowOperations(rows, indirect, each len-prefixed u32 BE).

func encodeRequestFrame(requestID uint32, req *rpc.WriteRPC) ([]byte, error) {
	ops, err := rowcodec.EncodeOperations(req.Operations)
	if err != nil {
		return nil, err
	}
	var rows, indirect []byte
	if ops != nil {
		rows, indirect = ops.Rows, ops.IndirectData
	}

	var buf bytes.Buffer
	buf.WriteByte(0) // uncompressed

	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], requestID)
	buf.Write(hdr[:])

	writeLenPrefixed(&buf, []byte(req.TableID))
	writeLenPrefixed(&buf, []byte(req.TabletID))
	buf.WriteByte(byte(req.ExternalConsistencyMode))

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], req.PropagatedTimestamp)
	buf.Write(ts[:])

	writeLenPrefixed(&buf, rows)
	writeLenPrefixed(&buf, indirect)

	return buf.Bytes(), nil
}

// decodeResponseFrame is the client-side counterpart a wsrpc server
// implementation encodes with: requestID(u32 BE) | writeTimestamp(u64 BE) |
// rowCount(u32 BE) | rowCount * (code(u8) | messageLen-prefixed |
// serverUUIDLen-prefixed).
func decodeResponseFrame(body []byte) (uint32, *rpc.WriteResponse, error, error) {
	if len(body) < 12 {
		return 0, nil, nil, errors.New("wsrpc: response frame too short")
	}
	requestID := binary.BigEndian.Uint32(body[0:4])
	writeTS := binary.BigEndian.Uint64(body[4:12])
	rest := body[12:]

	if len(rest) < 4 {
		return 0, nil, nil, errors.New("wsrpc: response frame missing row count")
	}
	rowCount := binary.BigEndian.Uint32(rest[0:4])
	rest = rest[4:]

	statuses := make([]rpc.RowStatus, 0, rowCount)
	for i := uint32(0); i < rowCount; i++ {
		if len(rest) < 1 {
			return 0, nil, nil, errors.New("wsrpc: truncated row status")
		}
		code := rpc.RowStatusCode(rest[0])
		rest = rest[1:]

		msg, tail, err := readLenPrefixed(rest)
		if err != nil {
			return 0, nil, nil, err
		}
		rest = tail

		uuidStr, tail, err := readLenPrefixed(rest)
		if err != nil {
			return 0, nil, nil, err
		}
		rest = tail

		statuses = append(statuses, rpc.RowStatus{
			RowIndex:         int(i),
			Code:             code,
			Message:          string(msg),
			TabletServerUUID: string(uuidStr),
		})
	}

	return requestID, &rpc.WriteResponse{WriteTimestamp: writeTS, RowStatuses: statuses}, nil, nil
}

func writeLenPrefixed(buf *bytes.Buffer, data []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	buf.Write(lenBuf[:])
	buf.Write(data)
}

func readLenPrefixed(data []byte) ([]byte, []byte, error) {
	if len(data) < 4 {
		return nil, nil, errors.New("wsrpc: truncated length prefix")
	}
	n := binary.BigEndian.Uint32(data[0:4])
	data = data[4:]
	if uint32(len(data)) < n {
		return nil, nil, errors.New("wsrpc: truncated length-prefixed field")
	}
	return data[:n], data[n:], nil
}

func decompressFrame(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, errors.New("wsrpc: empty websocket message")
	}
	scheme := payload[0]
	body := payload[1:]

	switch scheme {
	case 0:
		out := make([]byte, len(body))
		copy(out, body)
		return out, nil
	case 1:
		return nil, errors.New("wsrpc: brotli compression is not supported")
	case 2:
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("wsrpc: gzip reader: %w", err)
		}
		defer zr.Close()
		data, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("wsrpc: gzip decompress: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("wsrpc: unknown compression scheme %d", scheme)
	}
}
