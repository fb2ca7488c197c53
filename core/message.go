package core

import (
	"encoding/json"
	"fmt"
)

// Role identifies the author of a Message.
type Role string

// Message roles. RoleTool marks a message carrying a tool's output back to
// the model; it must reference the ToolCall it answers via ToolCallID.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a single tool invocation requested by the model. Arguments is
// the raw JSON object produced by the model; it is passed through verbatim to
// the executor, which owns validation.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Message is one entry of a Conversation in the provider-neutral shape
// `{role, content?, tool_calls?, tool_call_id?}`. Messages are treated as
// immutable once appended to a Conversation: builders and the engine copy
// rather than mutate.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// HasToolCalls reports whether the message requests any tool invocations.
func (m Message) HasToolCalls() bool { return len(m.ToolCalls) > 0 }

// NewSystemMessage returns a system-role message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage returns a user-role message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage returns an assistant-role message with plain text
// content and no tool calls.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// NewToolMessage returns the tool-role message answering a ToolResult.
func NewToolMessage(r ToolResult) Message {
	return Message{Role: RoleTool, Content: r.Content, ToolCallID: r.CallID}
}

// Conversation is an ordered, append-only message transcript.
type Conversation []Message

// Clone returns a shallow copy of the conversation. Messages themselves are
// immutable, so a top-level copy suffices for snapshot semantics.
func (c Conversation) Clone() Conversation {
	out := make(Conversation, len(c))
	copy(out, c)
	return out
}

// LastUserIndex returns the index of the most recent user message, or -1.
func (c Conversation) LastUserIndex() int {
	for i := len(c) - 1; i >= 0; i-- {
		if c[i].Role == RoleUser {
			return i
		}
	}
	return -1
}

// ToolResult is the outcome of exactly one ToolCall. Content carries the
// payload handed back to the model; when IsError is set it is the rendered
// `{"error": ...}` object so the model can adapt instead of the run aborting.
type ToolResult struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// NewToolResult returns a successful result for the given call.
func NewToolResult(callID, name, content string) ToolResult {
	return ToolResult{CallID: callID, Name: name, Content: content}
}

// NewToolErrorResult captures a tool failure as a result value. The error is
// rendered as a JSON object, matching what tool-role messages carry on the
// wire.
func NewToolErrorResult(callID, name string, err error) ToolResult {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	payload, jerr := json.Marshal(map[string]string{"error": msg})
	if jerr != nil {
		payload = []byte(fmt.Sprintf(`{"error":%q}`, msg))
	}
	return ToolResult{CallID: callID, Name: name, Content: string(payload), IsError: true}
}

// MemoryEntry is one persisted memory selected for injection into a run's
// context. Entries render into the leading system message as "- key: value"
// lines.
type MemoryEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}
