// Package anthropic adapts the Anthropic Messages API to the
// provider.Provider interface, including streaming with incremental tool
// input assembly.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/pulsr-ai/lingua/core"
	"github.com/pulsr-ai/lingua/provider"
)

// Options configure the Anthropic provider adapter.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int
	APIKey      string
}

// Provider wraps the Anthropic Messages API behind provider.Provider.
type Provider struct {
	client *anthropic.Client
	opts   Options
}

// New creates a new Anthropic provider using the official client.
func New(optFns ...func(o *Options)) *Provider {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)
	return NewFromClient(&client, optFns...)
}

// NewFromClient creates a new Anthropic provider from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Provider {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: provider.DefaultTemperature,
		MaxTokens:   provider.DefaultMaxTokens,
	}
}

func (p *Provider) resolve(params provider.Params) provider.Params {
	if params.Model == "" {
		params.Model = string(p.opts.Model)
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
	params, err := p.buildParams(req)
	if err != nil {
		return core.Message{}, err
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return core.Message{}, p.wrapError(err, string(params.Model))
	}

	var text strings.Builder
	var calls []core.ToolCall
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.AsText().Text)
		case "tool_use":
			toolUse := block.AsToolUse()
			var args json.RawMessage
			if toolUse.Input != nil {
				if b, err := json.Marshal(toolUse.Input); err == nil {
					args = b
				}
			}
			calls = append(calls, core.ToolCall{
				ID:        toolUse.ID,
				Name:      toolUse.Name,
				Arguments: args,
			})
		}
	}

	msg := core.NewAssistantMessage(text.String())
	msg.ToolCalls = calls
	return msg, nil
}

// StreamComplete implements provider.Provider. The Messages API streams one
// content block at a time: tool calls open with an id and name on
// content_block_start, accumulate arguments through input_json_delta
// fragments and close on content_block_stop.
func (p *Provider) StreamComplete(ctx context.Context, req provider.Request) <-chan core.StreamEvent {
	events := make(chan core.StreamEvent, 32)

	go func() {
		defer close(events)

		params, err := p.buildParams(req)
		if err != nil {
			events <- core.ErrorEventFrom(err)
			return
		}

		stream := p.client.Messages.NewStreaming(ctx, params)
		defer stream.Close()

		var text strings.Builder
		var calls []core.ToolCall
		var current *core.ToolCall
		var currentInput strings.Builder
		ordinal := -1

		for stream.Next() {
			event := stream.Current()
			switch event.Type {
			case "content_block_start":
				block := event.AsContentBlockStart().ContentBlock
				if block.Type != "tool_use" {
					continue
				}
				toolUse := block.AsToolUse()
				current = &core.ToolCall{ID: toolUse.ID, Name: toolUse.Name}
				currentInput.Reset()
				ordinal++
				events <- core.ToolCallEvent(core.ToolCallDelta{
					Index: ordinal,
					ID:    toolUse.ID,
					Name:  toolUse.Name,
				})
			case "content_block_delta":
				delta := event.AsContentBlockDelta().Delta
				switch delta.Type {
				case "text_delta":
					if delta.Text != "" {
						text.WriteString(delta.Text)
						events <- core.TokenEvent(delta.Text)
					}
				case "input_json_delta":
					if delta.PartialJSON != "" {
						currentInput.WriteString(delta.PartialJSON)
						events <- core.ToolCallEvent(core.ToolCallDelta{
							Index:     ordinal,
							Arguments: delta.PartialJSON,
						})
					}
				}
			case "content_block_stop":
				if current != nil {
					current.Arguments = json.RawMessage(currentInput.String())
					calls = append(calls, *current)
					current = nil
				}
			case "message_stop":
				// Terminal event; the done frame is emitted after the loop.
			}
		}
		if err := stream.Err(); err != nil {
			events <- core.ErrorEventFrom(p.wrapError(err, string(params.Model)))
			return
		}

		msg := core.NewAssistantMessage(text.String())
		msg.ToolCalls = calls
		events <- core.DoneEvent(msg)
	}()
	return events
}

// buildParams assembles the Messages API request. System messages travel in
// params.System, never in the message list.
func (p *Provider) buildParams(req provider.Request) (anthropic.MessageNewParams, error) {
	resolved := p.resolve(req.Params)

	messages, err := buildMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, &core.ProviderError{
			Kind:     core.KindInvalidRequest,
			Provider: "anthropic",
			Model:    resolved.Model,
			Message:  err.Error(),
			Cause:    err,
		}
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(resolved.Model),
		Messages:    messages,
		MaxTokens:   int64(resolved.MaxTokens),
		Temperature: anthropic.Float(resolved.Temperature),
	}
	if system := extractSystem(req.Messages); len(system) > 0 {
		params.System = system
	}
	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}
	return params, nil
}

// buildMessages converts the canonical transcript into Anthropic messages.
// Tool results become tool_result blocks inside a user message; consecutive
// results collapse into one user message so parallel calls stay within a
// single turn.
func buildMessages(conv core.Conversation) ([]anthropic.MessageParam, error) {
	var messages []anthropic.MessageParam
	for i := 0; i < len(conv); i++ {
		m := conv[i]
		switch m.Role {
		case core.RoleSystem:
			continue
		case core.RoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case core.RoleAssistant:
			var content []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				content = append(content, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input map[string]any
				if len(tc.Arguments) > 0 {
					if err := json.Unmarshal(tc.Arguments, &input); err != nil {
						return nil, err
					}
				}
				content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(content) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(content...))
			}
		case core.RoleTool:
			var results []anthropic.ContentBlockParamUnion
			for ; i < len(conv) && conv[i].Role == core.RoleTool; i++ {
				results = append(results, anthropic.NewToolResultBlock(conv[i].ToolCallID, conv[i].Content, false))
			}
			i--
			messages = append(messages, anthropic.NewUserMessage(results...))
		default:
			if m.Content != "" {
				messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
			}
		}
	}
	return messages, nil
}

// extractSystem collects system message contents as system prompt blocks.
func extractSystem(conv core.Conversation) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam
	for _, m := range conv {
		if m.Role == core.RoleSystem && m.Content != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: m.Content})
		}
	}
	return blocks
}

// buildTools converts the canonical tool specs to the Anthropic tool format.
func buildTools(specs []core.ToolSpec) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, len(specs))
	for i, spec := range specs {
		schema := spec.Schema()
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}
		if properties, ok := schema["properties"]; ok {
			inputSchema.Properties = properties
		}
		if required, ok := schema["required"].([]string); ok {
			inputSchema.Required = required
		}
		tools[i] = anthropic.ToolUnionParamOfTool(inputSchema, spec.Name)
		if spec.Description != "" && tools[i].OfTool != nil {
			tools[i].OfTool.Description = anthropic.String(spec.Description)
		}
	}
	return tools
}

type errorPayload struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
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
		Provider: "anthropic",
		Model:    model,
		Cause:    err,
	}

	var apiErr *anthropic.Error
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
		Name:          "anthropic",
		Model:         string(p.opts.Model),
		SupportsTools: true,
	}
}
