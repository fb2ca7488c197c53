package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/pulsr-ai/lingua/core"
	"github.com/pulsr-ai/lingua/logging"
	"github.com/pulsr-ai/lingua/provider"
	"github.com/pulsr-ai/lingua/tool"
)

// State identifies where a run is in its lifecycle. It appears in LoopError
// diagnostics and in log lines.
type State string

const (
	// StateAwaitingModel means a provider invocation is in flight or about
	// to be issued.
	StateAwaitingModel State = "awaiting_model"
	// StateExecutingTools means the turn's tool calls are being resolved.
	StateExecutingTools State = "executing_tools"
	// StateDone is the terminal success state.
	StateDone State = "done"
	// StateFailed is the terminal failure state.
	StateFailed State = "failed"
)

// Options configure a Loop.
type Options struct {
	// Config holds the run tuning. Defaults to DefaultConfig.
	Config Config

	// Callbacks are the lifecycle hooks observed during runs.
	Callbacks Callbacks

	// Logger receives run, turn and tool events.
	Logger logging.Logger
}

// Run is the prepared input for one orchestration run: the bounded message
// context and merged specs from the builder, the generation parameters, and
// the registry snapshot tool calls resolve against. The snapshot is captured
// at assembly time, so registry mutations during the run cannot change which
// tools calls already issued resolve to.
type Run struct {
	Messages core.Conversation
	Tools    []core.ToolSpec
	Params   provider.Params
	Snapshot *tool.Snapshot
}

// Result is a completed run. Messages holds the new trailing messages the
// run produced (assistant turns, tool results, final answer) in order, for
// the caller to append to its conversation; the input context is never
// mutated. Final repeats the last assistant message.
type Result struct {
	Final    core.Message
	Messages core.Conversation
	Turns    int
}

// Loop drives the orchestration state machine: model turns alternate with
// bounded tool execution until a turn produces no tool calls (Done), the
// turn budget trips, or the provider fails (Failed). A Loop holds no per-run
// state and is safe for concurrent runs.
type Loop struct {
	provider  provider.Provider
	config    Config
	callbacks Callbacks
	executor  *Executor
	logger    logging.Logger
}

// NewLoop creates a loop driving the given provider.
func NewLoop(p provider.Provider, optFns ...func(o *Options)) *Loop {
	opts := Options{Config: DefaultConfig}
	for _, fn := range optFns {
		fn(&opts)
	}
	logger := logging.OrNoOp(opts.Logger)
	return &Loop{
		provider:  p,
		config:    opts.Config,
		callbacks: opts.Callbacks,
		executor:  NewExecutor(opts.Config, opts.Callbacks, logger),
		logger:    logger,
	}
}

// Complete runs the loop to completion and returns the final result. On
// failure the returned error is a *core.LoopError carrying the partial
// transcript produced before the failure.
func (l *Loop) Complete(ctx context.Context, run Run) (*Result, error) {
	runID := uuid.NewString()
	limiter := core.NewTurnLimiter(l.config.MaxTurns)
	snap := run.Snapshot
	if snap == nil {
		snap = tool.NewRegistry().Snapshot()
	}

	msgs := run.Messages.Clone()
	var produced core.Conversation

	l.logger.Debug("engine.run.start",
		"run_id", runID, "provider", l.provider.Info().Name,
		"messages", len(msgs), "tools", len(run.Tools))

	fail := func(state State, turn int, cause error) (*Result, error) {
		l.callbacks.onError(ctx, cause)
		l.logger.Error("engine.run.failed",
			"run_id", runID, "state", string(state), "turn", turn, "error", cause.Error())
		return nil, &core.LoopError{
			State:      string(state),
			Turn:       turn,
			Transcript: produced,
			Cause:      cause,
		}
	}

	for {
		if err := limiter.Increment(); err != nil {
			return fail(StateAwaitingModel, limiter.Count(), err)
		}
		turn := limiter.Count()

		req := provider.Request{Messages: msgs, Tools: run.Tools, Params: run.Params}
		l.callbacks.beforeModel(ctx, turn, req)
		l.logger.Debug("engine.turn.start", "run_id", runID, "turn", turn, "messages", len(msgs))

		reply, err := l.provider.Complete(ctx, req)
		l.callbacks.afterModel(ctx, turn, reply, err)
		if err != nil {
			return fail(StateAwaitingModel, turn, err)
		}

		msgs = append(msgs, reply)
		produced = append(produced, reply)

		if !reply.HasToolCalls() {
			l.logger.Info("engine.run.done", "run_id", runID, "turns", turn)
			return &Result{Final: reply, Messages: produced, Turns: turn}, nil
		}

		l.logger.Debug("engine.tools.start",
			"run_id", runID, "turn", turn, "calls", len(reply.ToolCalls))
		results := l.executor.Execute(ctx, snap, reply.ToolCalls)
		for _, res := range results {
			m := core.NewToolMessage(res)
			msgs = append(msgs, m)
			produced = append(produced, m)
		}
		if err := ctx.Err(); err != nil {
			return fail(StateExecutingTools, turn, err)
		}
	}
}

// Stream runs the loop in streaming mode: one continuous normalized event
// stream spanning every internal turn. See Multiplexer for the protocol.
func (l *Loop) Stream(ctx context.Context, run Run) <-chan core.StreamEvent {
	return NewMultiplexer(l).Stream(ctx, run)
}
