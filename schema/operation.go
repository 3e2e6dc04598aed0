package schema

// ChangeType tags the kind of mutation (or, for the encoder-only values,
// the kind of range-partition pseudo-row) an Operation represents.
type ChangeType int

const (
	Insert ChangeType = iota
	Update
	Upsert
	Delete

	// Encoder-only change types used to serialize range-partition
	// descriptors during table creation; never appear in a Batch.
	SplitRow
	RangeLowerBound
	RangeUpperBound
	ExclusiveRangeLowerBound
	InclusiveRangeUpperBound
)

func (c ChangeType) String() string {
	switch c {
	case Insert:
		return "INSERT"
	case Update:
		return "UPDATE"
	case Upsert:
		return "UPSERT"
	case Delete:
		return "DELETE"
	case SplitRow:
		return "SPLIT_ROW"
	case RangeLowerBound:
		return "RANGE_LOWER_BOUND"
	case RangeUpperBound:
		return "RANGE_UPPER_BOUND"
	case ExclusiveRangeLowerBound:
		return "EXCLUSIVE_RANGE_LOWER_BOUND"
	case InclusiveRangeUpperBound:
		return "INCLUSIVE_RANGE_UPPER_BOUND"
	default:
		return "UNKNOWN"
	}
}

// RowErrorKind classifies a row-level failure.
type RowErrorKind int

const (
	RowErrorUnknown RowErrorKind = iota
	RowErrorNotFound
	RowErrorAlreadyPresent
	RowErrorRuntime
)

// RowError is a per-row failure surfaced on an OperationResponse.
type RowError struct {
	Kind    RowErrorKind
	Message string
}

func (e *RowError) Error() string {
	return e.Message
}

// OperationResponse is the per-row result of a submitted Operation.
type OperationResponse struct {
	Operation        *Operation
	ServerTimestamp  uint64
	TabletServerUUID string
	RowErr           *RowError
}

// HasRowError reports whether this response carries a row-level error.
func (r *OperationResponse) HasRowError() bool {
	return r.RowErr != nil
}

// OperationFuture is the one-shot completion slot for a submitted
// Operation's result, modeled as a channel per spec.md §9.
type OperationFuture struct {
	done chan struct{}
	resp OperationResponse
	err  error
}

func newOperationFuture() *OperationFuture {
	return &OperationFuture{done: make(chan struct{})}
}

// SetResult delivers a successful (possibly row-erroring) response. Safe to
// call exactly once.
func (f *OperationFuture) SetResult(resp OperationResponse) {
	f.resp = resp
	close(f.done)
}

// SetError delivers a hard failure that never produced a row-level
// response (programmer error, throttle).
func (f *OperationFuture) SetError(err error) {
	f.err = err
	close(f.done)
}

// Wait blocks until the future is resolved.
func (f *OperationFuture) Wait() (OperationResponse, error) {
	<-f.done
	return f.resp, f.err
}

// Done returns a channel that is closed when the future resolves, for use
// in select statements alongside a context deadline.
func (f *OperationFuture) Done() <-chan struct{} {
	return f.done
}

// Operation is a single row mutation: a reference to a table schema, a
// PartialRow, a change type, and a completion future. Once submitted to a
// session the row is frozen.
type Operation struct {
	Table               *TableSchema
	Row                 *PartialRow
	ChangeType          ChangeType
	IgnoreAllDuplicates bool

	future *OperationFuture

	// TabletID is not assigned by the session; the resolved tablet is
	// carried by the session's pending lookup and the Batch instead.
	TabletID string
}

// NewOperation constructs an Operation bound to row, which must already
// satisfy row.Validate().
func NewOperation(table *TableSchema, row *PartialRow, changeType ChangeType) *Operation {
	return &Operation{
		Table:      table,
		Row:        row,
		ChangeType: changeType,
		future:     newOperationFuture(),
	}
}

// Future returns the operation's completion slot.
func (op *Operation) Future() *OperationFuture {
	return op.future
}

// Submit freezes the row. Must be called exactly once, by the session,
// when the operation is accepted for processing.
func (op *Operation) Submit() {
	op.Row.Freeze()
}
