package engine

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pulsr-ai/lingua/core"
	"github.com/pulsr-ai/lingua/provider"
	"github.com/pulsr-ai/lingua/tool"
)

// Multiplexer drives a streaming run: provider frames are forwarded to the
// consumer as they arrive, tool-call deltas are assembled and each completed
// call is dispatched immediately rather than at end of stream, and the next
// turn's provider stream starts once the turn's calls have all resolved. The
// consumer sees one continuous event stream across every internal turn, with
// a single terminal done frame when the loop reaches Done.
//
// Cancelling the context stops the provider stream promptly and prevents
// dispatch of calls not yet started; calls already running are left to
// finish but their results are discarded.
type Multiplexer struct {
	loop *Loop
}

// NewMultiplexer creates a multiplexer over the loop's provider, executor
// and configuration.
func NewMultiplexer(l *Loop) *Multiplexer { return &Multiplexer{loop: l} }

// Stream starts the run and returns the event stream. The channel is always
// closed after the terminal frame.
func (m *Multiplexer) Stream(ctx context.Context, run Run) <-chan core.StreamEvent {
	buf := m.loop.config.EventBufferSize
	if buf <= 0 {
		buf = 1
	}
	out := make(chan core.StreamEvent, buf)
	go func() {
		defer close(out)
		m.run(ctx, run, out)
	}()
	return out
}

func (m *Multiplexer) run(ctx context.Context, run Run, out chan<- core.StreamEvent) {
	l := m.loop
	runID := uuid.NewString()
	limiter := core.NewTurnLimiter(l.config.MaxTurns)
	snap := run.Snapshot
	if snap == nil {
		snap = tool.NewRegistry().Snapshot()
	}
	msgs := run.Messages.Clone()

	l.logger.Debug("engine.stream.start",
		"run_id", runID, "provider", l.provider.Info().Name,
		"messages", len(msgs), "tools", len(run.Tools))

	fail := func(state State, turn int, cause error) {
		l.callbacks.onError(ctx, cause)
		l.logger.Error("engine.stream.failed",
			"run_id", runID, "state", string(state), "turn", turn, "error", cause.Error())
		m.emitTerminal(ctx, out, core.ErrorEventFrom(cause))
	}

	for {
		if err := limiter.Increment(); err != nil {
			fail(StateAwaitingModel, limiter.Count(), err)
			return
		}
		turn := limiter.Count()

		req := provider.Request{Messages: msgs, Tools: run.Tools, Params: run.Params}
		l.callbacks.beforeModel(ctx, turn, req)
		l.logger.Debug("engine.turn.start", "run_id", runID, "turn", turn, "messages", len(msgs))

		final, results, err := m.streamTurn(ctx, req, snap, turn, out)
		if err != nil {
			fail(StateAwaitingModel, turn, err)
			return
		}

		if !final.HasToolCalls() {
			l.logger.Info("engine.stream.done", "run_id", runID, "turns", turn)
			m.emitTerminal(ctx, out, core.DoneEvent(final))
			return
		}

		msgs = append(msgs, final)
		for _, res := range results {
			msgs = append(msgs, core.NewToolMessage(res))
		}
		if err := ctx.Err(); err != nil {
			fail(StateExecutingTools, turn, err)
			return
		}
	}
}

// pendingCall accumulates the delta fragments of one tool call. Fragments of
// one call are contiguous in the normalized protocol, so a fragment for a
// different index means the open call is fully assembled.
type pendingCall struct {
	index int
	id    string
	name  string
	args  strings.Builder
}

func (p *pendingCall) call() core.ToolCall {
	c := core.ToolCall{ID: p.id, Name: p.name}
	if args := p.args.String(); args != "" {
		c.Arguments = json.RawMessage(args)
	}
	return c
}

// streamTurn reads one provider stream, forwarding frames as they arrive and
// dispatching each tool call the moment its last fragment is in. It returns
// the turn's assistant message and one result per dispatched call, in
// call-index order, once every dispatched call has resolved.
func (m *Multiplexer) streamTurn(
	ctx context.Context,
	req provider.Request,
	snap *tool.Snapshot,
	turn int,
	out chan<- core.StreamEvent,
) (core.Message, []core.ToolResult, error) {
	l := m.loop

	g := new(errgroup.Group)
	if l.config.MaxParallelTools > 0 {
		g.SetLimit(l.config.MaxParallelTools)
	}

	// Each dispatched call writes through its own slot, so the slice of
	// pointers can keep growing on the reader side without racing workers.
	var slots []*core.ToolResult
	dispatch := func(call core.ToolCall) {
		if ctx.Err() != nil {
			return
		}
		slot := new(core.ToolResult)
		slots = append(slots, slot)
		g.Go(func() error {
			*slot = l.executor.executeOne(ctx, snap, call)
			return nil
		})
	}

	var (
		open    *pendingCall
		final   core.Message
		sawDone bool
		turnErr error
	)

	events := l.provider.StreamComplete(ctx, req)
read:
	for ev := range events {
		switch ev.Type {
		case core.StreamEventToken, core.StreamEventToolCall:
			if !m.emit(ctx, out, ev) {
				turnErr = ctx.Err()
				break read
			}
			if ev.Type != core.StreamEventToolCall {
				continue
			}
			d := *ev.ToolCall
			if open != nil && d.Index != open.index {
				dispatch(open.call())
				open = nil
			}
			if open == nil {
				open = &pendingCall{index: d.Index, id: d.ID, name: d.Name}
			} else {
				if d.ID != "" {
					open.id = d.ID
				}
				if d.Name != "" {
					open.name = d.Name
				}
			}
			open.args.WriteString(d.Arguments)
		case core.StreamEventDone:
			final = *ev.Message
			sawDone = true
		case core.StreamEventError:
			turnErr = &core.ProviderError{
				Kind:     ev.Err.Kind,
				Provider: l.provider.Info().Name,
				Model:    req.Params.Model,
				Message:  ev.Err.Message,
			}
			break read
		}
	}

	if turnErr != nil {
		// Tools already dispatched keep running detached; nothing reads
		// their slots again.
		l.callbacks.afterModel(ctx, turn, core.Message{}, turnErr)
		return core.Message{}, nil, turnErr
	}
	if !sawDone {
		err := &core.ProviderError{
			Kind:     core.KindTransport,
			Provider: l.provider.Info().Name,
			Model:    req.Params.Model,
			Message:  "stream closed without terminal frame",
		}
		l.callbacks.afterModel(ctx, turn, core.Message{}, err)
		return core.Message{}, nil, err
	}

	l.callbacks.afterModel(ctx, turn, final, nil)

	if open != nil {
		dispatch(open.call())
		open = nil
	}
	// Backends that report calls only on the assembled message still get
	// them executed.
	if len(slots) < len(final.ToolCalls) {
		for _, call := range final.ToolCalls[len(slots):] {
			dispatch(call)
		}
	}
	_ = g.Wait()

	results := make([]core.ToolResult, 0, len(slots))
	for _, slot := range slots {
		results = append(results, *slot)
	}
	return final, results, nil
}

func (m *Multiplexer) emit(ctx context.Context, out chan<- core.StreamEvent, ev core.StreamEvent) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// emitTerminal delivers the run's terminal frame. While the consumer is live
// it blocks like any other send; after cancellation it degrades to a
// best-effort buffered send so an abandoned stream cannot hang the run
// goroutine.
func (m *Multiplexer) emitTerminal(ctx context.Context, out chan<- core.StreamEvent, ev core.StreamEvent) {
	select {
	case out <- ev:
	case <-ctx.Done():
		select {
		case out <- ev:
		default:
			m.loop.logger.Warn("engine.stream.terminal.dropped", "type", string(ev.Type))
		}
	}
}
