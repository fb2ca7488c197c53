package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// httpTransport reaches a tool server over plain HTTP: GET {url}/tools for
// discovery and POST {url}/tools/call for invocation. It holds no persistent
// state, so it never reports itself dead; each request carries its own fate.
type httpTransport struct {
	server ServerDescriptor
	client *http.Client
	done   chan struct{}
}

func newHTTPTransport(server ServerDescriptor, tuning Tuning) *httpTransport {
	return &httpTransport{
		server: server,
		client: &http.Client{Timeout: tuning.CallTimeout},
		done:   make(chan struct{}),
	}
}

// Done never closes for the stateless transport.
func (t *httpTransport) Done() <-chan struct{} { return t.done }

func (t *httpTransport) Close() error { return nil }

func (t *httpTransport) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint("/tools"), nil)
	if err != nil {
		return nil, err
	}
	t.authorize(req)

	body, err := t.do(req)
	if err != nil {
		return nil, err
	}
	var out ListToolsResult
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("parse tools response: %w", err)
	}
	return out.Tools, nil
}

func (t *httpTransport) CallTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	payload, err := json.Marshal(CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("marshal tool call: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint("/tools/call"), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	t.authorize(req)

	return t.do(req)
}

func (t *httpTransport) endpoint(path string) string {
	return strings.TrimSuffix(t.server.URL, "/") + path
}

func (t *httpTransport) authorize(req *http.Request) {
	if t.server.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.server.APIKey)
	}
}

func (t *httpTransport) do(req *http.Request) (json.RawMessage, error) {
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMessageBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
