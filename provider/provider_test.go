package provider

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsr-ai/lingua/core"
)

func collect(ch <-chan core.StreamEvent) []core.StreamEvent {
	var out []core.StreamEvent
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestParamsWithDefaults(t *testing.T) {
	p := Params{}.WithDefaults("gpt-4o")
	assert.Equal(t, "gpt-4o", p.Model)
	assert.Equal(t, DefaultTemperature, p.Temperature)
	assert.Equal(t, DefaultMaxTokens, p.MaxTokens)

	p = Params{Model: "o3", Temperature: 0.2, MaxTokens: 128}.WithDefaults("gpt-4o")
	assert.Equal(t, "o3", p.Model)
	assert.Equal(t, 0.2, p.Temperature)
	assert.Equal(t, 128, p.MaxTokens)
}

func TestScriptedStreamMatchesComplete(t *testing.T) {
	text := "The answer is 42."
	req := Request{Messages: core.Conversation{core.NewUserMessage("question")}}

	sync := NewScripted("scripted", "test-model", Turn{Content: text})
	msg, err := sync.Complete(context.Background(), req)
	require.NoError(t, err)

	stream := NewScripted("scripted", "test-model", Turn{Content: text})
	events := collect(stream.StreamComplete(context.Background(), req))
	require.NotEmpty(t, events)

	var tokens strings.Builder
	for _, ev := range events[:len(events)-1] {
		require.Equal(t, core.StreamEventToken, ev.Type)
		tokens.WriteString(ev.Token)
	}
	final := events[len(events)-1]
	require.Equal(t, core.StreamEventDone, final.Type)
	assert.Equal(t, msg.Content, tokens.String())
	assert.Equal(t, msg.Content, final.Message.Content)
}

func TestScriptedToolCallTurn(t *testing.T) {
	call := core.ToolCall{
		ID:        "call_1",
		Name:      "get_weather",
		Arguments: json.RawMessage(`{"location":"Berlin"}`),
	}
	s := NewScripted("scripted", "test-model", Turn{ToolCalls: []core.ToolCall{call}})

	events := collect(s.StreamComplete(context.Background(), Request{}))
	require.Len(t, events, 3)

	first := events[0]
	require.Equal(t, core.StreamEventToolCall, first.Type)
	assert.Equal(t, "call_1", first.ToolCall.ID)
	assert.Equal(t, "get_weather", first.ToolCall.Name)
	assert.Empty(t, first.ToolCall.Arguments)

	second := events[1]
	require.Equal(t, core.StreamEventToolCall, second.Type)
	assert.Equal(t, 0, second.ToolCall.Index)
	assert.JSONEq(t, string(call.Arguments), second.ToolCall.Arguments)

	final := events[2]
	require.Equal(t, core.StreamEventDone, final.Type)
	require.True(t, final.Message.HasToolCalls())
	assert.Equal(t, call, final.Message.ToolCalls[0])
}

func TestScriptedTurnError(t *testing.T) {
	boom := &core.ProviderError{Kind: core.KindRateLimited, Provider: "scripted", Status: 429}
	s := NewScripted("scripted", "test-model", Turn{Err: boom})

	events := collect(s.StreamComplete(context.Background(), Request{}))
	require.Len(t, events, 1)
	require.Equal(t, core.StreamEventError, events[0].Type)
	assert.Equal(t, core.KindRateLimited, events[0].Err.Kind)
}

func TestScriptedExhausted(t *testing.T) {
	s := NewScripted("scripted", "test-model")
	_, err := s.Complete(context.Background(), Request{})
	require.Error(t, err)

	var pe *core.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, core.KindInvalidRequest, pe.Kind)
}

func TestScriptedRecordsRequests(t *testing.T) {
	s := NewScripted("scripted", "test-model", Turn{Content: "a"}, Turn{Content: "b"})
	req := Request{Params: Params{Model: "m1"}}
	_, err := s.Complete(context.Background(), req)
	require.NoError(t, err)
	collect(s.StreamComplete(context.Background(), Request{Params: Params{Model: "m2"}}))

	seen := s.Requests()
	require.Len(t, seen, 2)
	assert.Equal(t, "m1", seen[0].Params.Model)
	assert.Equal(t, "m2", seen[1].Params.Model)
}
