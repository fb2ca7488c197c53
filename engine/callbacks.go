package engine

import (
	"context"

	"github.com/pulsr-ai/lingua/core"
	"github.com/pulsr-ai/lingua/provider"
)

// Callbacks are optional hooks observed by the loop and the multiplexer at
// fixed lifecycle points. Hooks run synchronously on the run's goroutines
// (BeforeTool/AfterTool on the executor workers), so they must be fast and
// must not panic. Nil fields are skipped.
//
// Unlike tool execution, hooks cannot veto or alter the run; they exist for
// instrumentation, auditing and metrics in the embedding service.
type Callbacks struct {
	// BeforeModel fires before each provider invocation with the turn
	// number and the exact request being sent.
	BeforeModel func(ctx context.Context, turn int, req provider.Request)

	// AfterModel fires after each provider invocation. In streaming mode
	// it fires when the provider's terminal frame arrives, which may be
	// before concurrently dispatched tools have finished.
	AfterModel func(ctx context.Context, turn int, msg core.Message, err error)

	// BeforeTool fires before each tool call executes.
	BeforeTool func(ctx context.Context, call core.ToolCall)

	// AfterTool fires after each tool call with its result, error results
	// included.
	AfterTool func(ctx context.Context, result core.ToolResult)

	// OnError fires once when a run fails (provider error, turn budget,
	// cancellation). Per-tool failures are results, not errors, and do not
	// reach this hook.
	OnError func(ctx context.Context, err error)
}

func (c Callbacks) beforeModel(ctx context.Context, turn int, req provider.Request) {
	if c.BeforeModel != nil {
		c.BeforeModel(ctx, turn, req)
	}
}

func (c Callbacks) afterModel(ctx context.Context, turn int, msg core.Message, err error) {
	if c.AfterModel != nil {
		c.AfterModel(ctx, turn, msg, err)
	}
}

func (c Callbacks) beforeTool(ctx context.Context, call core.ToolCall) {
	if c.BeforeTool != nil {
		c.BeforeTool(ctx, call)
	}
}

func (c Callbacks) afterTool(ctx context.Context, result core.ToolResult) {
	if c.AfterTool != nil {
		c.AfterTool(ctx, result)
	}
}

func (c Callbacks) onError(ctx context.Context, err error) {
	if c.OnError != nil {
		c.OnError(ctx, err)
	}
}
