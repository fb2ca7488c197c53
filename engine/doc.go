// Package engine implements the tool-call resolution loop and its streaming
// form.
//
// A Loop drives one orchestration run as a state machine: AwaitingModel
// invokes the provider with the current context; a reply without tool calls
// is the final answer (Done); a reply with tool calls moves to
// ExecutingTools, where an Executor resolves every call against the run's
// registry snapshot with bounded parallelism and exactly one ToolResult per
// call, results are appended to the context in call-index order, and the
// loop returns to AwaitingModel. A configured turn budget, a provider
// failure or cancellation moves the run to Failed; the error carries the
// partial transcript produced so far.
//
// The Multiplexer runs the same state machine in streaming mode. Provider
// frames are forwarded to the consumer the moment they arrive, completed
// tool calls are dispatched while the stream is still producing, and the
// consumer sees a single continuous stream across every internal turn,
// terminated by exactly one done frame (or one error frame on failure).
//
// Per-tool failures never fail a run: they come back to the model as error
// results so it can adapt. Only provider errors, the turn budget, and
// cancellation are fatal.
package engine
