package remote

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pulsr-ai/lingua/core"
)

// Transport selects the wire protocol used to reach a tool server.
type Transport string

const (
	// TransportWebSocket keeps one persistent JSON-RPC channel per server.
	TransportWebSocket Transport = "websocket"
	// TransportHTTP issues one plain HTTP request per operation.
	TransportHTTP Transport = "http"
)

// ServerDescriptor identifies one remote tool server. Name must be unique
// among connected servers; the manager uses it as the tool name prefix and
// as the key for reconnect and disconnect operations.
type ServerDescriptor struct {
	Name      string    `json:"name" yaml:"name"`
	URL       string    `json:"url" yaml:"url"`
	Transport Transport `json:"transport,omitempty" yaml:"transport,omitempty"`
	APIKey    string    `json:"api_key,omitempty" yaml:"api_key,omitempty"`
}

func (d ServerDescriptor) withDefaults() ServerDescriptor {
	if d.Transport == "" {
		d.Transport = TransportWebSocket
	}
	return d
}

// Validate checks the descriptor before any connection attempt.
func (d ServerDescriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("server name is required")
	}
	if d.URL == "" {
		return fmt.Errorf("server %q: url is required", d.Name)
	}
	switch d.Transport {
	case TransportWebSocket:
		if !strings.HasPrefix(d.URL, "ws://") && !strings.HasPrefix(d.URL, "wss://") {
			return fmt.Errorf("server %q: websocket url must start with ws:// or wss://", d.Name)
		}
	case TransportHTTP:
		if !strings.HasPrefix(d.URL, "http://") && !strings.HasPrefix(d.URL, "https://") {
			return fmt.Errorf("server %q: http url must start with http:// or https://", d.Name)
		}
	default:
		return fmt.Errorf("server %q: unknown transport %q", d.Name, d.Transport)
	}
	return nil
}

// JSON-RPC 2.0 wire types.

const jsonrpcVersion = "2.0"

const (
	methodListTools = "tools/list"
	methodCallTool  = "tools/call"
)

// JSONRPCRequest is a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse is a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError is a JSON-RPC 2.0 error object. It doubles as the Go error
// returned when a server answers a call with the error member set, so the
// rendered tool payload keeps the server's code and message.
type JSONRPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *JSONRPCError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// Standard JSON-RPC error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// ErrCodeToolNotFound is the server-side code for a call naming an unknown
// tool.
const ErrCodeToolNotFound = -32002

// ToolDescriptor is one tool as advertised by a server's tools/list.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// Spec converts the advertised descriptor into the canonical tool spec,
// flattening the top level of the input schema into parameters.
func (d ToolDescriptor) Spec() (core.ToolSpec, error) {
	spec := core.ToolSpec{Name: d.Name, Description: d.Description}
	if len(d.InputSchema) > 0 {
		var schema map[string]any
		if err := json.Unmarshal(d.InputSchema, &schema); err != nil {
			return core.ToolSpec{}, fmt.Errorf("tool %q: input schema: %w", d.Name, err)
		}
		params, err := core.ParametersFromSchema(schema)
		if err != nil {
			return core.ToolSpec{}, fmt.Errorf("tool %q: input schema: %w", d.Name, err)
		}
		spec.Parameters = params
	}
	return spec, nil
}

// ListToolsResult is the result payload of tools/list.
type ListToolsResult struct {
	Tools []ToolDescriptor `json:"tools"`
}

// CallToolParams is the params payload of tools/call. The server key, when
// the descriptor carries one, rides inside params rather than as transport
// metadata.
type CallToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	APIKey    string         `json:"api_key,omitempty"`
}
