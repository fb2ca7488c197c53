package engine

import (
	"context"
	"sync"
	"time"

	"github.com/pulsr-ai/lingua/core"
	"github.com/pulsr-ai/lingua/logging"
	"github.com/pulsr-ai/lingua/tool"
)

// Executor runs one turn's tool calls against a registry snapshot with
// bounded parallelism. Results come back indexed by call position regardless
// of completion order, so context assembly stays deterministic. Every call
// gets exactly one result; Snapshot.Execute already converts lookup misses,
// bad arguments, execution errors and panics into error results.
type Executor struct {
	maxParallel int
	timeout     time.Duration
	callbacks   Callbacks
	logger      logging.Logger
}

// NewExecutor creates an executor with the loop's tuning.
func NewExecutor(cfg Config, callbacks Callbacks, logger logging.Logger) *Executor {
	return &Executor{
		maxParallel: cfg.MaxParallelTools,
		timeout:     cfg.ToolTimeout,
		callbacks:   callbacks,
		logger:      logging.OrNoOp(logger),
	}
}

// Execute runs the batch and returns one result per call, in call order.
// Calls not yet started when ctx is cancelled are not dispatched; they still
// produce an error result so the one-result-per-call invariant holds.
func (e *Executor) Execute(ctx context.Context, snap *tool.Snapshot, calls []core.ToolCall) []core.ToolResult {
	n := len(calls)
	if n == 0 {
		return nil
	}

	results := make([]core.ToolResult, n)
	if n == 1 {
		results[0] = e.executeOne(ctx, snap, calls[0])
		return results
	}

	maxPar := e.maxParallel
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxPar)
	started := make([]bool, n)

	start := time.Now()
	for i := range calls {
		if ctx.Err() != nil {
			break
		}
		started[i] = true
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, call core.ToolCall) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = e.executeOne(ctx, snap, call)
		}(i, calls[i])
	}
	wg.Wait()

	for i, call := range calls {
		if !started[i] {
			results[i] = core.NewToolErrorResult(call.ID, call.Name, ctx.Err())
		}
	}

	e.logger.Debug("tool.batch.done",
		"count", n, "parallelism", maxPar,
		"duration_ms", time.Since(start).Milliseconds())
	return results
}

func (e *Executor) executeOne(ctx context.Context, snap *tool.Snapshot, call core.ToolCall) core.ToolResult {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	e.callbacks.beforeTool(ctx, call)
	e.logger.Debug("tool.call.start", "tool", call.Name, "call_id", call.ID)

	start := time.Now()
	res := snap.Execute(ctx, call)

	e.logger.Info("tool.call.done",
		"tool", call.Name, "call_id", call.ID,
		"duration_ms", time.Since(start).Milliseconds(), "error", res.IsError)
	e.callbacks.afterTool(ctx, res)
	return res
}
