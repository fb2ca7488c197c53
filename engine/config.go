package engine

import "time"

// Config defines tuning parameters for a run of the loop.
//
// The zero value is usable but unbounded; most callers start from
// DefaultConfig and override selectively through Options.
type Config struct {
	// MaxTurns caps how many model turns one run may take. Exceeding it
	// fails the run with ErrLoopExceeded and the partial transcript.
	// 0 means unlimited.
	MaxTurns int

	// MaxParallelTools bounds how many tool calls of one turn execute
	// concurrently. 0 or less means one goroutine per call.
	MaxParallelTools int

	// ToolTimeout is the per-call execution ceiling. 0 disables the
	// ceiling; tools then run until they return or the run is cancelled.
	ToolTimeout time.Duration

	// EventBufferSize sets the stream channel buffer. Larger buffers keep
	// slow consumers from stalling the provider read loop.
	EventBufferSize int
}

// DefaultConfig holds the defaults applied by NewLoop when no config is
// given.
var DefaultConfig = Config{
	MaxTurns:         10,
	MaxParallelTools: 4,
	ToolTimeout:      30 * time.Second,
	EventBufferSize:  64,
}
