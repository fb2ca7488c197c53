// Package openai adapts the OpenAI Chat Completions API (including streaming
// and function/tool calling) to the provider.Provider interface. It converts
// the canonical message and tool shapes into the SDK's format and translates
// chunk deltas back into normalized stream frames.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/pulsr-ai/lingua/core"
	"github.com/pulsr-ai/lingua/provider"
)

// aggCall aggregates partial tool call streaming deltas (id, name, arguments)
// allowing reconstruction of complete calls when the finish reason is
// emitted. Internal helper (unexported).
type aggCall struct{ id, name, args string }

// Options configure the OpenAI provider adapter. Name is the provider name
// reported in Info and errors; BaseURL points the client at an
// OpenAI-compatible gateway for self-hosted deployments.
type Options struct {
	Name        string
	Model       string
	Temperature float64
	MaxTokens   int
	APIKey      string
	BaseURL     string
}

// Provider wraps the OpenAI Chat Completions API behind provider.Provider.
type Provider struct {
	client *openai.Client
	opts   Options
}

// New creates a new OpenAI provider using the official client.
func New(optFns ...func(o *Options)) *Provider {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	client := openai.NewClient(clientOpts...)
	return NewFromClient(&client, optFns...)
}

// NewFromClient creates a new OpenAI provider from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Provider {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Name:        "openai",
		Model:       openai.ChatModelGPT4oMini,
		Temperature: provider.DefaultTemperature,
		MaxTokens:   provider.DefaultMaxTokens,
	}
}

func (p *Provider) resolve(params provider.Params) provider.Params {
	if params.Model == "" {
		params.Model = p.opts.Model
	}
	if params.Temperature == 0 {
		params.Temperature = p.opts.Temperature
	}
	if params.MaxTokens <= 0 {
		params.MaxTokens = p.opts.MaxTokens
	}
	return params
}

// Complete implements provider.Provider.
func (p *Provider) Complete(ctx context.Context, req provider.Request) (core.Message, error) {
	params := p.buildParams(req)
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return core.Message{}, p.wrapError(err, params.Model)
	}
	if len(resp.Choices) == 0 {
		return core.Message{}, &core.ProviderError{
			Kind:     core.KindUnknown,
			Provider: p.opts.Name,
			Model:    params.Model,
			Message:  "no choices returned",
		}
	}

	choice := resp.Choices[0]
	msg := core.NewAssistantMessage(choice.Message.Content)
	for _, tc := range choice.Message.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, core.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return msg, nil
}

// StreamComplete implements provider.Provider. Chunk deltas are forwarded as
// they arrive; the assembled message travels on the terminal done frame.
func (p *Provider) StreamComplete(ctx context.Context, req provider.Request) <-chan core.StreamEvent {
	events := make(chan core.StreamEvent, 32)
	params := p.buildParams(req)

	go func() {
		defer close(events)

		stream := p.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		var text strings.Builder
		agg := map[int64]*aggCall{}
		for stream.Next() {
			chunk := stream.Current()
			for _, choice := range chunk.Choices {
				if choice.Delta.Content != "" {
					text.WriteString(choice.Delta.Content)
					events <- core.TokenEvent(choice.Delta.Content)
				}
				for _, tc := range choice.Delta.ToolCalls {
					ac, ok := agg[tc.Index]
					if !ok {
						ac = &aggCall{}
						agg[tc.Index] = ac
					}
					if tc.ID != "" {
						ac.id = tc.ID
					}
					if tc.Function.Name != "" {
						ac.name = tc.Function.Name
					}
					if tc.Function.Arguments != "" {
						ac.args += tc.Function.Arguments
					}
					events <- core.ToolCallEvent(core.ToolCallDelta{
						Index:     int(tc.Index),
						ID:        tc.ID,
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					})
				}
			}
		}
		if err := stream.Err(); err != nil {
			events <- core.ErrorEventFrom(p.wrapError(err, params.Model))
			return
		}
		events <- core.DoneEvent(assemble(text.String(), agg))
	}()
	return events
}

// assemble builds the final assistant message from accumulated stream state.
// Tool calls are ordered by their stream index.
func assemble(text string, agg map[int64]*aggCall) core.Message {
	msg := core.NewAssistantMessage(text)
	if len(agg) == 0 {
		return msg
	}
	indexes := make([]int64, 0, len(agg))
	for i := range agg {
		indexes = append(indexes, i)
	}
	sort.Slice(indexes, func(a, b int) bool { return indexes[a] < indexes[b] })
	for _, i := range indexes {
		ac := agg[i]
		msg.ToolCalls = append(msg.ToolCalls, core.ToolCall{
			ID:        ac.id,
			Name:      ac.name,
			Arguments: json.RawMessage(ac.args),
		})
	}
	return msg
}

// buildParams assembles the request parameters including tool definitions.
func (p *Provider) buildParams(req provider.Request) openai.ChatCompletionNewParams {
	resolved := p.resolve(req.Params)
	params := openai.ChatCompletionNewParams{
		Messages:            buildMessages(req.Messages),
		Model:               resolved.Model,
		Temperature:         openai.Float(resolved.Temperature),
		MaxCompletionTokens: openai.Int(int64(resolved.MaxTokens)),
	}
	if len(req.Tools) == 0 {
		return params
	}
	tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
	for i, spec := range req.Tools {
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        spec.Name,
				Description: openai.String(spec.Description),
				Parameters:  spec.Schema(),
			},
		}
	}
	params.Tools = tools
	return params
}

// buildMessages converts the canonical transcript into OpenAI chat messages.
// The transcript already interleaves tool results after their assistant tool
// calls, so the mapping is positional.
func buildMessages(conv core.Conversation) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(conv))
	for _, m := range conv {
		switch m.Role {
		case core.RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		case core.RoleUser:
			messages = append(messages, openai.UserMessage(m.Content))
		case core.RoleAssistant:
			if !m.HasToolCalls() {
				messages = append(messages, openai.AssistantMessage(m.Content))
				continue
			}
			toolCalls := make([]openai.ChatCompletionMessageToolCallParam, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				toolCalls[i] = openai.ChatCompletionMessageToolCallParam{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				}
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role:      "assistant",
					ToolCalls: toolCalls,
				},
			})
		case core.RoleTool:
			messages = append(messages, openai.ToolMessage(m.Content, m.ToolCallID))
		default:
			if m.Content != "" {
				messages = append(messages, openai.UserMessage(m.Content))
			}
		}
	}
	return messages
}

type errorPayload struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// wrapError normalizes SDK and transport failures into the error taxonomy.
func (p *Provider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	var existing *core.ProviderError
	if errors.As(err, &existing) {
		return err
	}

	perr := &core.ProviderError{
		Kind:     core.KindTransport,
		Provider: p.opts.Name,
		Model:    model,
		Cause:    err,
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		perr.Status = apiErr.StatusCode
		perr.Kind = core.ClassifyStatus(apiErr.StatusCode)
		if raw := apiErr.RawJSON(); raw != "" {
			var payload errorPayload
			if json.Unmarshal([]byte(raw), &payload) == nil && payload.Error.Message != "" {
				perr.Message = payload.Error.Message
			}
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		perr.Kind = core.KindTimeout
	case errors.Is(err, context.Canceled):
		perr.Kind = core.KindStreamInterrupted
	}

	if perr.Message == "" {
		perr.Message = err.Error()
	}
	return perr
}

// Info returns metadata describing this adapter.
func (p *Provider) Info() provider.Info {
	return provider.Info{
		Name:          p.opts.Name,
		Model:         p.opts.Model,
		SupportsTools: true,
	}
}
