// Package local adapts Ollama-style local inference servers (Ollama,
// llama.cpp server) to the provider.Provider interface via the /api/chat
// endpoint. Local servers expose no tool calling, so Info reports
// SupportsTools false and tool specs in requests are ignored.
package local

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pulsr-ai/lingua/core"
	"github.com/pulsr-ai/lingua/provider"
)

// DefaultModel is used when neither the adapter nor the request names one.
const DefaultModel = "llama2"

// Options configure the local provider adapter.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
	HTTPClient  *http.Client
}

// Provider speaks the Ollama chat protocol behind provider.Provider.
type Provider struct {
	endpoint string
	client   *http.Client
	opts     Options
}

// New creates a local provider for the given endpoint, for example
// "http://localhost:11434".
func New(endpoint string, optFns ...func(o *Options)) *Provider {
	opts := Options{
		Model:       DefaultModel,
		Temperature: provider.DefaultTemperature,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Provider{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   client,
		opts:     opts,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	NumPredict int `json:"num_predict,omitempty"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
	Options     *chatOptions  `json:"options,omitempty"`
}

type chatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

func (p *Provider) buildRequest(req provider.Request, stream bool) chatRequest {
	params := req.Params
	if params.Model == "" {
		params.Model = p.opts.Model
	}
	if params.Temperature == 0 {
		params.Temperature = p.opts.Temperature
	}
	if params.MaxTokens <= 0 {
		params.MaxTokens = p.opts.MaxTokens
	}

	messages := make([]chatMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}

	out := chatRequest{
		Model:       params.Model,
		Messages:    messages,
		Temperature: params.Temperature,
		Stream:      stream,
	}
	if params.MaxTokens > 0 {
		out.Options = &chatOptions{NumPredict: params.MaxTokens}
	}
	return out
}

func (p *Provider) post(ctx context.Context, body chatRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, p.wrapError(err, body.Model, 0)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, p.wrapError(err, body.Model, 0)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, p.wrapError(err, body.Model, 0)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, p.wrapError(fmt.Errorf("%s", strings.TrimSpace(string(detail))), body.Model, resp.StatusCode)
	}
	return resp, nil
}

// Complete implements provider.Provider.
func (p *Provider) Complete(ctx context.Context, req provider.Request) (core.Message, error) {
	body := p.buildRequest(req, false)
	resp, err := p.post(ctx, body)
	if err != nil {
		return core.Message{}, err
	}
	defer resp.Body.Close()

	var data chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return core.Message{}, p.wrapError(fmt.Errorf("decode response: %w", err), body.Model, 0)
	}
	return core.NewAssistantMessage(data.Message.Content), nil
}

// StreamComplete implements provider.Provider. The server answers with one
// JSON object per line; each carries a content fragment until done is set.
func (p *Provider) StreamComplete(ctx context.Context, req provider.Request) <-chan core.StreamEvent {
	events := make(chan core.StreamEvent, 32)
	body := p.buildRequest(req, true)

	go func() {
		defer close(events)

		resp, err := p.post(ctx, body)
		if err != nil {
			events <- core.ErrorEventFrom(err)
			return
		}
		defer resp.Body.Close()

		var text strings.Builder
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var chunk chatResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				events <- core.ErrorEventFrom(p.wrapError(fmt.Errorf("decode stream line: %w", err), body.Model, 0))
				return
			}
			if chunk.Message.Content != "" {
				text.WriteString(chunk.Message.Content)
				events <- core.TokenEvent(chunk.Message.Content)
			}
			if chunk.Done {
				break
			}
		}
		if err := scanner.Err(); err != nil {
			events <- core.ErrorEventFrom(p.wrapError(err, body.Model, 0))
			return
		}
		events <- core.DoneEvent(core.NewAssistantMessage(text.String()))
	}()
	return events
}

// wrapError normalizes transport failures into the error taxonomy.
func (p *Provider) wrapError(err error, model string, status int) error {
	perr := &core.ProviderError{
		Kind:     core.KindTransport,
		Provider: "local",
		Model:    model,
		Status:   status,
		Cause:    err,
		Message:  err.Error(),
	}
	if status != 0 {
		perr.Kind = core.ClassifyStatus(status)
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		perr.Kind = core.KindTimeout
	case errors.Is(err, context.Canceled):
		perr.Kind = core.KindStreamInterrupted
	}
	return perr
}

// Info returns metadata describing this adapter.
func (p *Provider) Info() provider.Info {
	return provider.Info{
		Name:          "local",
		Model:         p.opts.Model,
		SupportsTools: false,
	}
}
