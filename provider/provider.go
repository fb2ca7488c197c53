// Package provider defines the neutral contract between the orchestration
// engine and LLM backends. Adapters translate the canonical message and tool
// shapes into vendor payloads and translate vendor responses, streaming or
// not, back into the one normalized event protocol.
package provider

import (
	"context"

	"github.com/pulsr-ai/lingua/core"
)

// Params carries per-request generation settings. Zero values defer to the
// adapter's defaults (model from Info, temperature 0.7, max tokens 4096).
type Params struct {
	Model       string  `json:"model,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

const (
	// DefaultTemperature is applied when a request carries no temperature.
	DefaultTemperature = 0.7
	// DefaultMaxTokens is applied when a request carries no token ceiling.
	DefaultMaxTokens = 4096
)

// WithDefaults resolves zero fields against the adapter defaults.
func (p Params) WithDefaults(model string) Params {
	if p.Model == "" {
		p.Model = model
	}
	if p.Temperature == 0 {
		p.Temperature = DefaultTemperature
	}
	if p.MaxTokens <= 0 {
		p.MaxTokens = DefaultMaxTokens
	}
	return p
}

// Request is the normalized model input assembled by the context builder.
// Messages is the full transcript in order; Tools is the merged spec set the
// model may call.
type Request struct {
	Messages core.Conversation `json:"messages"`
	Tools    []core.ToolSpec   `json:"tools,omitempty"`
	Params   Params            `json:"params"`
}

// Info contains metadata about a provider adapter.
type Info struct {
	Name          string `json:"name"`  // "openai", "anthropic", "local", etc.
	Model         string `json:"model"` // default model when the request names none
	SupportsTools bool   `json:"supports_tools"`
}

// Provider is the minimal interface the engine needs to drive generation.
//
// Complete blocks until the model finishes and returns the assembled
// assistant message. StreamComplete returns a channel of normalized frames:
// zero or more token/tool_call frames followed by exactly one done frame
// carrying the assembled message, or one error frame. The channel is always
// closed after the terminal frame, including on context cancellation.
type Provider interface {
	Complete(ctx context.Context, req Request) (core.Message, error)
	StreamComplete(ctx context.Context, req Request) <-chan core.StreamEvent

	// Info returns information about the adapter and its default model.
	Info() Info
}
