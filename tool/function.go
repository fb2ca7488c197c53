package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	invopop "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/pulsr-ai/lingua/core"
)

// Handler is the implementation signature wrapped by FunctionTool. Arguments
// arrive already decoded from the model's JSON payload and validated against
// the tool's schema.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// FunctionTool is a generic adapter that exposes a plain Go function as a
// Tool.
//
// Responsibilities:
//   - Holds the provider-neutral spec advertised to models
//   - Validates supplied arguments against the compiled JSON schema before
//     execution
//   - Normalizes error handling so callers receive *ToolError with
//     consistent codes:
//     VALIDATION_ERROR -> schema / argument mismatch
//     EXECUTION_ERROR  -> underlying function returned an error
//     (custom codes preserved if the function returns *ToolError directly)
//
// A FunctionTool has no internal mutable state after construction and is
// safe for concurrent use by multiple goroutines.
type FunctionTool struct {
	spec   core.ToolSpec
	schema *jsonschema.Schema
	fn     Handler
}

// NewFunctionTool constructs a FunctionTool from an explicit spec and
// implementation. The spec's schema is compiled once here, so malformed
// specs fail at construction rather than at first call.
func NewFunctionTool(spec core.ToolSpec, fn Handler) (*FunctionTool, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	schema, err := compileSchema(spec.Name, spec.Schema())
	if err != nil {
		return nil, fmt.Errorf("tool %q: compile schema: %w", spec.Name, err)
	}
	return &FunctionTool{spec: spec, schema: schema, fn: fn}, nil
}

// NewFunctionToolFromStruct derives the parameter spec from a struct via
// reflection. Struct tags drive the schema: `json` names the parameter,
// `jsonschema` carries description, required and enum markers.
//
// Example:
//
//	type SumArgs struct {
//	  A float64 `json:"a" jsonschema:"description=First addend"`
//	  B float64 `json:"b" jsonschema:"description=Second addend"`
//	}
//
//	sumTool, err := NewFunctionToolFromStruct(
//	  "calculate_sum",
//	  "Calculate the sum of two numbers",
//	  SumArgs{},
//	  func(ctx context.Context, args map[string]any) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	  },
//	)
func NewFunctionToolFromStruct(name, description string, argsType any, fn Handler) (*FunctionTool, error) {
	reflector := &invopop.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
	}
	reflected := reflector.Reflect(argsType)

	data, err := json.Marshal(reflected)
	if err != nil {
		return nil, fmt.Errorf("tool %q: reflect schema: %w", name, err)
	}
	var schemaMap map[string]any
	if err := json.Unmarshal(data, &schemaMap); err != nil {
		return nil, fmt.Errorf("tool %q: reflect schema: %w", name, err)
	}

	params, err := core.ParametersFromSchema(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("tool %q: %w", name, err)
	}
	return NewFunctionTool(core.ToolSpec{
		Name:        name,
		Description: description,
		Parameters:  params,
	}, fn)
}

// Spec implements Tool.
func (t *FunctionTool) Spec() core.ToolSpec { return t.spec }

// Call validates the provided args against the compiled schema then invokes
// the underlying function.
//
// Error semantics:
//
//	*ToolError (returned directly) -> forwarded unchanged
//	validation failure             -> *ToolError{Code: "VALIDATION_ERROR"}
//	other error                    -> *ToolError{Code: "EXECUTION_ERROR"}
func (t *FunctionTool) Call(ctx context.Context, args map[string]any) (any, error) {
	if err := t.schema.Validate(normalize(args)); err != nil {
		return nil, &ToolError{
			Tool:    t.spec.Name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err.Error(),
		}
	}

	result, err := t.fn(ctx, args)
	if err != nil {
		if toolErr, ok := err.(*ToolError); ok {
			return nil, toolErr
		}
		return nil, &ToolError{
			Tool:    t.spec.Name,
			Message: err.Error(),
			Code:    CodeExecution,
		}
	}
	return result, nil
}

// normalize converts args into the plain decoded-JSON shape the validator
// expects. Arguments that already came off the wire pass through unchanged.
func normalize(args map[string]any) any {
	if args == nil {
		return map[string]any{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return args
	}
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return args
	}
	return decoded
}

var schemaCache sync.Map

// compileSchema compiles and caches a JSON schema. The cache is keyed by the
// serialized schema so identical specs across tools share one compilation.
func compileSchema(name string, schema map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	key := string(raw)
	if cached, ok := schemaCache.Load(key); ok {
		if compiled, ok := cached.(*jsonschema.Schema); ok {
			return compiled, nil
		}
	}

	compiled, err := jsonschema.CompileString(name+".schema.json", key)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}
