// Package tool implements the function calling subsystem: the Tool contract,
// an explicit registry with immutable snapshots, schema validated function
// tools and the built-in functions every orchestrator starts with.
package tool

import (
	"context"
	"fmt"

	"github.com/pulsr-ai/lingua/core"
)

// Tool is a callable capability exposed to models.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions (snake_case names)
//   - Define proper parameter specs for validation and LLM guidance
//   - Handle errors gracefully
//   - Be thread-safe; calls may run concurrently
type Tool interface {
	// Spec returns the provider-neutral descriptor advertised to models.
	Spec() core.ToolSpec

	// Call executes the tool with already-decoded arguments. Arguments are
	// validated against the spec before invocation where the implementation
	// supports it.
	Call(ctx context.Context, args map[string]any) (any, error)
}

// Error codes carried by ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
)

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
