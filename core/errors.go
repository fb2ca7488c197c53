package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the stable classification shared by every failure surfaced to
// callers, regardless of which backend or layer produced it.
type ErrorKind string

const (
	KindAuth           ErrorKind = "auth"
	KindRateLimited    ErrorKind = "rate_limited"
	KindTimeout        ErrorKind = "timeout"
	KindInvalidRequest ErrorKind = "invalid_request"
	KindTransport      ErrorKind = "transport"
	KindUnknown        ErrorKind = "unknown"

	KindLoopExceeded      ErrorKind = "loop_exceeded"
	KindStreamInterrupted ErrorKind = "stream_interrupted"
	KindRemoteConnection  ErrorKind = "remote_connection"
	KindToolNameCollision ErrorKind = "tool_name_collision"
)

// Sentinels for failure modes that carry no structured payload of their own.
var (
	// ErrLoopExceeded marks a run that hit its turn budget.
	ErrLoopExceeded = errors.New("turn budget exhausted")
	// ErrStreamInterrupted marks a run cut short by consumer cancellation.
	ErrStreamInterrupted = errors.New("stream interrupted")
	// ErrToolNotFound marks a call against a name absent from the registry
	// snapshot. It surfaces as a ToolResult error, never as a run failure.
	ErrToolNotFound = errors.New("tool not found")
)

// ProviderError is a backend failure normalized into the taxonomy. Callers
// switch on Kind; Provider, Model and Status are diagnostics.
type ProviderError struct {
	Kind     ErrorKind
	Provider string
	Model    string
	Status   int
	Message  string
	Cause    error
}

// Error renders the normalized form, never the backend's native shape.
func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString("provider ")
	b.WriteString(e.Provider)
	if e.Model != "" {
		fmt.Fprintf(&b, " (%s)", e.Model)
	}
	fmt.Fprintf(&b, ": %s", e.Kind)
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

// Unwrap exposes the backend error for errors.Is/As chains.
func (e *ProviderError) Unwrap() error { return e.Cause }

// ClassifyStatus maps an HTTP status code onto the taxonomy.
func ClassifyStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return KindAuth
	case status == 429:
		return KindRateLimited
	case status == 408 || status == 504:
		return KindTimeout
	case status >= 400 && status < 500:
		return KindInvalidRequest
	case status >= 500:
		return KindTransport
	default:
		return KindUnknown
	}
}

// LoopError is a failed run: the taxonomy cause plus the partial transcript
// accumulated before the failure, so callers can still surface a truncated
// answer. State names the loop state the run failed in.
type LoopError struct {
	State      string
	Turn       int
	Transcript Conversation
	Cause      error
}

func (e *LoopError) Error() string {
	if e.State != "" {
		return fmt.Sprintf("run failed in %s at turn %d: %v", e.State, e.Turn, e.Cause)
	}
	return fmt.Sprintf("run failed at turn %d: %v", e.Turn, e.Cause)
}

// Unwrap exposes the underlying cause (for example ErrLoopExceeded or a
// ProviderError).
func (e *LoopError) Unwrap() error { return e.Cause }

// ToolNameCollisionError reports two sources defining the same tool name
// with different specs during context assembly. It is a build-time failure
// for that invocation; no precedence rule resolves it.
type ToolNameCollisionError struct {
	Name    string
	Sources []string
}

func (e *ToolNameCollisionError) Error() string {
	return fmt.Sprintf("tool name collision: %q defined by %s", e.Name, strings.Join(e.Sources, " and "))
}

// RemoteConnectionError reports a remote tool server transport or heartbeat
// failure. As a ToolResult error it degrades only that server's tools; as a
// connect error it surfaces to the manager's caller.
type RemoteConnectionError struct {
	Server string
	Cause  error
}

func (e *RemoteConnectionError) Error() string {
	return fmt.Sprintf("remote tool server %q: %v", e.Server, e.Cause)
}

func (e *RemoteConnectionError) Unwrap() error { return e.Cause }

// KindOf classifies any error from this module into the taxonomy. Unknown
// shapes map to KindUnknown rather than leaking through unclassified.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	var ce *ToolNameCollisionError
	if errors.As(err, &ce) {
		return KindToolNameCollision
	}
	var re *RemoteConnectionError
	if errors.As(err, &re) {
		return KindRemoteConnection
	}
	switch {
	case errors.Is(err, ErrLoopExceeded):
		return KindLoopExceeded
	case errors.Is(err, ErrStreamInterrupted), errors.Is(err, context.Canceled):
		return KindStreamInterrupted
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}
	return KindUnknown
}
