package rpc

import (
	"context"
	"sync"
)

// FakeTransport is an in-memory Transport for tests and examples. It never
// talks to a real tablet server; Responder decides how each WriteRPC is
// answered.
type FakeTransport struct {
	mu               sync.Mutex
	Responder        func(*WriteRPC) (*WriteResponse, error)
	lastPropagatedTS uint64
	defaultTimeoutMs int64
	Sent             []*WriteRPC
}

// NewFakeTransport returns a FakeTransport that answers every WriteRPC with
// respond.
func NewFakeTransport(respond func(*WriteRPC) (*WriteResponse, error)) *FakeTransport {
	return &FakeTransport{Responder: respond, defaultTimeoutMs: 30000}
}

func (f *FakeTransport) Send(ctx context.Context, rpc *WriteRPC) (*WriteResponse, error) {
	f.mu.Lock()
	f.Sent = append(f.Sent, rpc)
	f.mu.Unlock()
	return f.Responder(rpc)
}

func (f *FakeTransport) UpdateLastPropagatedTimestamp(ts uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ts > f.lastPropagatedTS {
		f.lastPropagatedTS = ts
	}
}

func (f *FakeTransport) LastPropagatedTimestamp() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastPropagatedTS
}

func (f *FakeTransport) GetDefaultOperationTimeoutMs() int64 {
	return f.defaultTimeoutMs
}

// SentCount returns the number of WriteRPCs dispatched so far.
func (f *FakeTransport) SentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Sent)
}
