// Package core provides the foundational domain types used across lingua. It
// defines the shared vocabulary for:
//
//   - Messages and Conversations (the provider-neutral chat transcript)
//   - ToolCalls, ToolResults and ToolSpecs (the tool-calling data model)
//   - StreamEvents (the normalized streaming frame protocol)
//   - The error taxonomy surfaced to callers (ProviderError, LoopError, ...)
//
// The package holds no behavior beyond construction, conversion and
// validation of these values. Providers, the tool registry and the engine all
// depend on core; core depends on nothing above the standard library so the
// data model stays free of transport and vendor concerns.
package core
