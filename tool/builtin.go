package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/pulsr-ai/lingua/core"
	"github.com/pulsr-ai/lingua/expr"
)

// DefaultTimeLayout renders get_current_time results when no format is
// requested.
const DefaultTimeLayout = "2006-01-02 15:04:05"

// NewCurrentTimeTool returns the get_current_time built-in.
func NewCurrentTimeTool() *FunctionTool {
	return newCurrentTimeTool(time.Now)
}

func newCurrentTimeTool(now func() time.Time) *FunctionTool {
	t, err := NewFunctionTool(core.ToolSpec{
		Name:        "get_current_time",
		Description: "Get the current date and time",
		Parameters: []core.Parameter{
			{
				Name:        "format",
				Type:        "string",
				Description: "Go reference layout for the result (default: 2006-01-02 15:04:05)",
			},
		},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		layout := DefaultTimeLayout
		if f, ok := args["format"].(string); ok && f != "" {
			layout = f
		}
		return now().Format(layout), nil
	})
	if err != nil {
		panic(fmt.Sprintf("get_current_time spec: %v", err))
	}
	return t
}

// NewCalculatorTool returns the calculator built-in. Expressions are
// evaluated by expr.Eval; there is no code execution behind it.
func NewCalculatorTool() *FunctionTool {
	t, err := NewFunctionTool(core.ToolSpec{
		Name:        "calculator",
		Description: "Perform basic mathematical calculations",
		Parameters: []core.Parameter{
			{
				Name:        "expression",
				Type:        "string",
				Description: "The mathematical expression to evaluate (e.g., '2 + 2 * 3')",
				Required:    true,
			},
		},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		expression, _ := args["expression"].(string)
		return expr.Eval(expression)
	})
	if err != nil {
		panic(fmt.Sprintf("calculator spec: %v", err))
	}
	return t
}

// RegisterBuiltins registers the built-in tools on r.
func RegisterBuiltins(r *Registry) error {
	for _, t := range []Tool{NewCurrentTimeTool(), NewCalculatorTool()} {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}
