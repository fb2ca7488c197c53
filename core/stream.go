package core

// StreamEventType discriminates the normalized streaming frames. Every
// provider's native stream is translated into this one protocol; consumers
// never see vendor event shapes.
type StreamEventType string

const (
	// StreamEventToken carries an incremental text delta.
	StreamEventToken StreamEventType = "token"
	// StreamEventToolCall carries an incremental tool-call delta.
	StreamEventToolCall StreamEventType = "tool_call"
	// StreamEventDone is the single terminal success frame of a run.
	StreamEventDone StreamEventType = "done"
	// StreamEventError is the terminal failure frame of a run.
	StreamEventError StreamEventType = "error"
)

// ToolCallDelta is an incremental fragment of an assistant tool call. Index
// correlates fragments of the same call within one turn; ID and Name arrive
// on the first fragment, Arguments accumulates across fragments as raw JSON
// text.
type ToolCallDelta struct {
	Index     int    `json:"index"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// ErrorFrame is the payload of a terminal error frame.
type ErrorFrame struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// StreamEvent is one frame of the normalized stream protocol. Exactly one
// payload field is set, matching Type. A well-formed stream is zero or more
// token/tool_call frames followed by exactly one done or error frame.
type StreamEvent struct {
	Type     StreamEventType `json:"type"`
	Token    string          `json:"token,omitempty"`
	ToolCall *ToolCallDelta  `json:"tool_call,omitempty"`
	Message  *Message        `json:"message,omitempty"`
	Err      *ErrorFrame     `json:"error,omitempty"`
}

// Terminal reports whether the frame ends the stream.
func (e StreamEvent) Terminal() bool {
	return e.Type == StreamEventDone || e.Type == StreamEventError
}

// TokenEvent returns a token frame.
func TokenEvent(text string) StreamEvent {
	return StreamEvent{Type: StreamEventToken, Token: text}
}

// ToolCallEvent returns a tool_call frame for one delta fragment.
func ToolCallEvent(delta ToolCallDelta) StreamEvent {
	return StreamEvent{Type: StreamEventToolCall, ToolCall: &delta}
}

// DoneEvent returns the terminal done frame carrying the final message.
func DoneEvent(final Message) StreamEvent {
	return StreamEvent{Type: StreamEventDone, Message: &final}
}

// ErrorEvent returns a terminal error frame.
func ErrorEvent(kind ErrorKind, message string) StreamEvent {
	return StreamEvent{Type: StreamEventError, Err: &ErrorFrame{Kind: kind, Message: message}}
}

// ErrorEventFrom classifies err through the taxonomy and wraps it in a
// terminal error frame.
func ErrorEventFrom(err error) StreamEvent {
	return ErrorEvent(KindOf(err), errMessage(err))
}

func errMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
