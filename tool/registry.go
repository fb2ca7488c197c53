package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/pulsr-ai/lingua/core"
)

// Registry holds the tools available to an orchestrator. Registration order
// is preserved so advertised specs are stable across calls. All methods are
// safe for concurrent use.
//
// A Registry is never read during a run; runs operate on a Snapshot taken at
// context assembly, so mid-run mutations apply to subsequent runs only.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. It fails on an invalid spec or a duplicate name;
// silent replacement would mask cross-source collisions, use Replace when
// replacement is intended.
func (r *Registry) Register(t Tool) error {
	spec := t.Spec()
	if err := spec.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[spec.Name]; exists {
		return fmt.Errorf("tool %q already registered", spec.Name)
	}
	r.tools[spec.Name] = t
	r.order = append(r.order, spec.Name)
	return nil
}

// Replace adds a tool, replacing any previous registration under the same
// name while keeping its position.
func (r *Registry) Replace(t Tool) error {
	spec := t.Spec()
	if err := spec.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[spec.Name]; !exists {
		r.order = append(r.order, spec.Name)
	}
	r.tools[spec.Name] = t
	return nil
}

// Unregister removes a tool by name. Unknown names are ignored.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; !exists {
		return
	}
	delete(r.tools, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Specs returns the advertised specs in registration order.
func (r *Registry) Specs() []core.ToolSpec {
	return r.Snapshot().Specs()
}

// Snapshot captures the current registrations as an immutable view. The
// snapshot keeps serving a run even when the registry changes underneath it.
func (r *Registry) Snapshot() *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make(map[string]Tool, len(r.tools))
	specs := make([]core.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		tools[name] = t
		specs = append(specs, t.Spec())
	}
	return &Snapshot{tools: tools, specs: specs}
}

// Snapshot is an immutable view of a registry at one point in time.
type Snapshot struct {
	tools map[string]Tool
	specs []core.ToolSpec
}

// Specs returns the advertised specs in registration order. The returned
// slice is shared; callers must not mutate it.
func (s *Snapshot) Specs() []core.ToolSpec { return s.specs }

// Get returns the tool captured under name.
func (s *Snapshot) Get(name string) (Tool, bool) {
	t, ok := s.tools[name]
	return t, ok
}

// Len returns the number of captured tools.
func (s *Snapshot) Len() int { return len(s.tools) }

// Execute runs one tool call against the snapshot and always produces a
// ToolResult: unknown names, invalid argument payloads, execution errors and
// panics all come back as error results carrying an `{"error": ...}` body,
// never as a run failure.
func (s *Snapshot) Execute(ctx context.Context, call core.ToolCall) (result core.ToolResult) {
	defer func() {
		if r := recover(); r != nil {
			result = core.NewToolErrorResult(call.ID, call.Name, fmt.Errorf("tool panicked: %v", r))
		}
	}()

	t, ok := s.tools[call.Name]
	if !ok {
		return core.NewToolErrorResult(call.ID, call.Name, fmt.Errorf("Function '%s' not found", call.Name))
	}

	args, err := decodeArguments(call.Arguments)
	if err != nil {
		return core.NewToolErrorResult(call.ID, call.Name, fmt.Errorf("invalid arguments: %v", err))
	}

	out, err := t.Call(ctx, args)
	if err != nil {
		var toolErr *ToolError
		if errors.As(err, &toolErr) {
			// The payload carries the bare message; code and tool name are
			// diagnostics for logs, not for the model.
			return core.NewToolErrorResult(call.ID, call.Name, errors.New(toolErr.Message))
		}
		return core.NewToolErrorResult(call.ID, call.Name, err)
	}
	return core.NewToolResult(call.ID, call.Name, FormatResult(out))
}

// decodeArguments parses the raw JSON argument payload. Absent or null
// payloads mean no arguments.
func decodeArguments(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// FormatResult renders a tool return value as message content: strings pass
// through unchanged, everything else is JSON encoded.
func FormatResult(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
