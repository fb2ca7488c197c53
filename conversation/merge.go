package conversation

import (
	"fmt"

	"github.com/pulsr-ai/lingua/core"
)

// SpecSource is one named origin of tool specs: the registry snapshot, the
// request's typed tools, the request's legacy functions. The name appears in
// collision errors so callers can tell which sources disagree.
type SpecSource struct {
	Name  string
	Specs []core.ToolSpec
}

// MergeSpecs combines tool specs from several sources into one set, keeping
// first-seen order. Identical definitions of the same name collapse into one
// entry; definitions that differ in any field fail with a
// core.ToolNameCollisionError naming both sources. No precedence rule ever
// picks a winner silently.
func MergeSpecs(sources ...SpecSource) ([]core.ToolSpec, error) {
	type seenSpec struct {
		spec   core.ToolSpec
		source string
	}
	seen := make(map[string]seenSpec)
	var merged []core.ToolSpec

	for _, src := range sources {
		for _, spec := range src.Specs {
			if err := spec.Validate(); err != nil {
				return nil, fmt.Errorf("source %q: %w", src.Name, err)
			}
			prev, ok := seen[spec.Name]
			if !ok {
				seen[spec.Name] = seenSpec{spec: spec, source: src.Name}
				merged = append(merged, spec)
				continue
			}
			if prev.spec.Equal(spec) {
				continue
			}
			return nil, &core.ToolNameCollisionError{
				Name:    spec.Name,
				Sources: []string{prev.source, src.Name},
			}
		}
	}
	return merged, nil
}

// NormalizeRequestTools converts the wire-level request fields into canonical
// specs: `tools` carries typed `{type:"function",function:{...}}` envelopes,
// `functions` the deprecated flat declarations. Both shapes normalize to the
// same internal form before merging, and a name defined differently by the
// two fields is a collision, not a precedence call.
func NormalizeRequestTools(tools []core.ToolDecl, functions []core.FunctionDecl) ([]core.ToolSpec, error) {
	typed := make([]core.ToolSpec, 0, len(tools))
	for _, td := range tools {
		spec, err := core.SpecFromToolDecl(td)
		if err != nil {
			return nil, err
		}
		typed = append(typed, spec)
	}
	legacy := make([]core.ToolSpec, 0, len(functions))
	for _, fd := range functions {
		spec, err := core.SpecFromFunctionDecl(fd)
		if err != nil {
			return nil, err
		}
		legacy = append(legacy, spec)
	}
	return MergeSpecs(
		SpecSource{Name: "tools", Specs: typed},
		SpecSource{Name: "functions", Specs: legacy},
	)
}
