package session

import (
	"time"

	"github.com/sabledb/client-go/rpc"
)

// FlushMode selects how apply() buffers and dispatches operations.
type FlushMode int

const (
	AutoFlushSync FlushMode = iota
	AutoFlushBackground
	ManualFlush
)

// Config is the session's configuration surface (spec.md §4.6). Setters on
// the façade builder produce one of these; Core treats it as read-only
// once construction completes, and only allows SetFlushMode/SetTimeoutMs-
// style changes while no operations are pending (see Core.SetConfig).
type Config struct {
	FlushMode                 FlushMode
	ExternalConsistencyMode   rpc.ExternalConsistencyMode
	MutationBufferSpace       int
	MutationBufferLowWaterPct float64
	FlushIntervalMs           int
	TimeoutMs                 int64
	IgnoreDuplicateRows       bool
}

// DefaultConfig matches spec.md's documented defaults.
func DefaultConfig() Config {
	return Config{
		FlushMode:                 AutoFlushSync,
		ExternalConsistencyMode:   rpc.ClientPropagated,
		MutationBufferSpace:       1000,
		MutationBufferLowWaterPct: 0.5,
		FlushIntervalMs:           1000,
		TimeoutMs:                 0,
		IgnoreDuplicateRows:       false,
	}
}

// LowWatermark returns the absolute low-watermark operation count derived
// from MutationBufferLowWaterPct, per spec.md §4.6.
func (c Config) LowWatermark() int {
	return int(float64(c.MutationBufferSpace) * c.MutationBufferLowWaterPct)
}

func (c Config) flushInterval() time.Duration {
	return time.Duration(c.FlushIntervalMs) * time.Millisecond
}
