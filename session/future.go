package session

import "github.com/sabledb/client-go/schema"

// FlushFuture is the one-shot completion slot for a Flush/Close call: a
// flattened, submission-ordered list of OperationResponses, modeled as a
// channel per spec.md §9.
type FlushFuture struct {
	done      chan struct{}
	responses []schema.OperationResponse
}

func newFlushFuture() *FlushFuture {
	return &FlushFuture{done: make(chan struct{})}
}

func (f *FlushFuture) complete(responses []schema.OperationResponse) {
	f.responses = responses
	close(f.done)
}

// Wait blocks until the flush completes and returns its flattened response
// list (nil for a no-op flush).
func (f *FlushFuture) Wait() []schema.OperationResponse {
	<-f.done
	return f.responses
}

// Done returns a channel closed when the flush completes.
func (f *FlushFuture) Done() <-chan struct{} {
	return f.done
}
