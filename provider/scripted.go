package provider

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/pulsr-ai/lingua/core"
)

// Turn scripts one assistant reply for the ScriptedProvider. Either Content
// or ToolCalls is set for a successful turn; Err makes the turn fail. Tool
// calls without an ID get one assigned at construction.
type Turn struct {
	Content   string
	ToolCalls []core.ToolCall
	Err       error
}

// ScriptedProvider is a lightweight in-memory Provider useful for tests and
// examples. Each call consumes the next scripted turn; streaming replays the
// turn as per-rune token frames and fragmented tool-call deltas so consumers
// exercise the same assembly paths real backends trigger.
type ScriptedProvider struct {
	mu    sync.Mutex
	info  Info
	turns []Turn
	next  int
	seen  []Request
}

// NewScripted constructs a ScriptedProvider with tool support enabled.
func NewScripted(name, model string, turns ...Turn) *ScriptedProvider {
	s := &ScriptedProvider{
		info: Info{
			Name:          name,
			Model:         model,
			SupportsTools: true,
		},
	}
	for _, t := range turns {
		s.AddTurn(t)
	}
	return s
}

// AddTurn appends a scripted turn, assigning IDs to tool calls that lack one.
func (s *ScriptedProvider) AddTurn(t Turn) {
	for i := range t.ToolCalls {
		if t.ToolCalls[i].ID == "" {
			t.ToolCalls[i].ID = "call_" + uuid.NewString()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, t)
}

// Requests returns a copy of every request received, in call order.
func (s *ScriptedProvider) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.seen))
	copy(out, s.seen)
	return out
}

func (s *ScriptedProvider) take(req Request) (Turn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, req)
	if s.next >= len(s.turns) {
		return Turn{}, false
	}
	t := s.turns[s.next]
	s.next++
	return t, true
}

func (t Turn) message() core.Message {
	if len(t.ToolCalls) > 0 {
		msg := core.NewAssistantMessage(t.Content)
		msg.ToolCalls = append(msg.ToolCalls, t.ToolCalls...)
		return msg
	}
	return core.NewAssistantMessage(t.Content)
}

// Complete implements Provider.
func (s *ScriptedProvider) Complete(ctx context.Context, req Request) (core.Message, error) {
	turn, ok := s.take(req)
	if !ok {
		return core.Message{}, &core.ProviderError{
			Kind:     core.KindInvalidRequest,
			Provider: s.info.Name,
			Model:    req.Params.Model,
			Message:  "script exhausted",
		}
	}
	if turn.Err != nil {
		return core.Message{}, turn.Err
	}
	return turn.message(), nil
}

// StreamComplete implements Provider. Text is replayed rune by rune; each
// tool call arrives as two fragments, id and name first, arguments second,
// matching how real backends split deltas.
func (s *ScriptedProvider) StreamComplete(ctx context.Context, req Request) <-chan core.StreamEvent {
	events := make(chan core.StreamEvent, 16)
	turn, ok := s.take(req)

	go func() {
		defer close(events)
		if !ok {
			events <- core.ErrorEvent(core.KindInvalidRequest, "script exhausted")
			return
		}
		if turn.Err != nil {
			events <- core.ErrorEventFrom(turn.Err)
			return
		}
		emit := func(ev core.StreamEvent) bool {
			select {
			case <-ctx.Done():
				return false
			case events <- ev:
				return true
			}
		}
		for _, r := range turn.Content {
			if !emit(core.TokenEvent(string(r))) {
				events <- core.ErrorEventFrom(core.ErrStreamInterrupted)
				return
			}
		}
		for i, tc := range turn.ToolCalls {
			if !emit(core.ToolCallEvent(core.ToolCallDelta{Index: i, ID: tc.ID, Name: tc.Name})) {
				events <- core.ErrorEventFrom(core.ErrStreamInterrupted)
				return
			}
			if !emit(core.ToolCallEvent(core.ToolCallDelta{Index: i, Arguments: string(tc.Arguments)})) {
				events <- core.ErrorEventFrom(core.ErrStreamInterrupted)
				return
			}
		}
		events <- core.DoneEvent(turn.message())
	}()
	return events
}

// Info implements Provider.
func (s *ScriptedProvider) Info() Info { return s.info }
