// Package conversation assembles the model input for one orchestration run:
// the injected-memory preamble, the bounded message window and the merged
// tool spec set. The caller owns persistence; this package only shapes
// already-materialized history and memories into something a provider call
// can carry.
package conversation

import (
	"fmt"

	"github.com/pulsr-ai/lingua/core"
	"github.com/pulsr-ai/lingua/internal/util"
	"github.com/pulsr-ai/lingua/logging"
)

// DefaultMaxContextTokens bounds the assembled context when no budget is
// configured.
const DefaultMaxContextTokens = 8192

// DefaultPreambleTemplate renders the selected memories into the leading
// system message.
const DefaultPreambleTemplate = "User context:\n{{range .Memories}}- {{.Key}}: {{.Value}}\n{{end}}"

// Options configure a ContextBuilder.
type Options struct {
	// MaxContextTokens is the context size budget, as an estimate. Values
	// <= 0 fall back to DefaultMaxContextTokens.
	MaxContextTokens int

	// PreambleTemplate is the text/template rendering the memory preamble.
	// It receives {"Memories": []core.MemoryEntry}.
	PreambleTemplate string

	// Logger receives assembly and truncation events.
	Logger logging.Logger
}

// ContextBuilder turns persisted history, selected memories and tool spec
// sources into one bounded provider input. It holds no per-run state and is
// safe for concurrent use.
type ContextBuilder struct {
	maxTokens int
	preamble  string
	logger    logging.Logger
}

// NewContextBuilder creates a builder with the given options.
func NewContextBuilder(optFns ...func(o *Options)) *ContextBuilder {
	opts := Options{
		MaxContextTokens: DefaultMaxContextTokens,
		PreambleTemplate: DefaultPreambleTemplate,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxContextTokens <= 0 {
		opts.MaxContextTokens = DefaultMaxContextTokens
	}
	if opts.PreambleTemplate == "" {
		opts.PreambleTemplate = DefaultPreambleTemplate
	}
	return &ContextBuilder{
		maxTokens: opts.MaxContextTokens,
		preamble:  opts.PreambleTemplate,
		logger:    logging.OrNoOp(opts.Logger),
	}
}

// Input is the caller-materialized state for one invocation. Memories is the
// subset already selected for injection; Tools lists every spec source that
// participates in this run's merged set.
type Input struct {
	History  core.Conversation
	Memories []core.MemoryEntry
	Tools    []SpecSource
}

// Build assembles the bounded message sequence and the merged tool specs for
// one provider call. The history is never mutated; the returned conversation
// is a fresh slice. A tool name collision across sources fails the build.
func (b *ContextBuilder) Build(in Input) (core.Conversation, []core.ToolSpec, error) {
	specs, err := MergeSpecs(in.Tools...)
	if err != nil {
		return nil, nil, err
	}

	msgs := make(core.Conversation, 0, len(in.History)+1)
	hasPreamble := len(in.Memories) > 0
	if hasPreamble {
		content, err := b.renderPreamble(in.Memories)
		if err != nil {
			return nil, nil, fmt.Errorf("render memory preamble: %w", err)
		}
		msgs = append(msgs, core.NewSystemMessage(content))
	}
	msgs = append(msgs, in.History...)

	out := b.truncate(msgs, hasPreamble)
	b.logger.Debug("context.build",
		"messages", len(out), "dropped", len(msgs)-len(out),
		"tools", len(specs), "tokens", EstimateConversationTokens(out))
	return out, specs, nil
}

func (b *ContextBuilder) renderPreamble(memories []core.MemoryEntry) (string, error) {
	return util.RenderTemplate(b.preamble, map[string]any{"Memories": memories})
}

// truncate enforces the token budget. Oldest non-system messages go first,
// then oldest unprotected system messages; the memory preamble and the most
// recent user message are never dropped, even when keeping them alone busts
// the budget.
func (b *ContextBuilder) truncate(msgs core.Conversation, hasPreamble bool) core.Conversation {
	total := EstimateConversationTokens(msgs)
	if total <= b.maxTokens {
		return msgs
	}

	protected := make([]bool, len(msgs))
	if hasPreamble {
		protected[0] = true
	}
	if i := msgs.LastUserIndex(); i >= 0 {
		protected[i] = true
	}

	drop := make([]bool, len(msgs))
	dropped := 0
	for i := 0; i < len(msgs) && total > b.maxTokens; i++ {
		if protected[i] || msgs[i].Role == core.RoleSystem {
			continue
		}
		drop[i] = true
		total -= EstimateMessageTokens(msgs[i])
		dropped++
	}
	for i := 0; i < len(msgs) && total > b.maxTokens; i++ {
		if protected[i] || drop[i] {
			continue
		}
		drop[i] = true
		total -= EstimateMessageTokens(msgs[i])
		dropped++
	}

	out := make(core.Conversation, 0, len(msgs)-dropped)
	for i, m := range msgs {
		if !drop[i] {
			out = append(out, m)
		}
	}
	out = stripOrphanedToolMessages(out)

	if total > b.maxTokens {
		b.logger.Warn("context.budget.exceeded",
			"budget", b.maxTokens, "tokens", total, "messages", len(out))
	} else {
		b.logger.Debug("context.truncate",
			"dropped", dropped, "budget", b.maxTokens, "tokens", total)
	}
	return out
}

// stripOrphanedToolMessages removes tool-role messages whose originating
// assistant tool call was truncated away. Tool results always follow their
// call in the transcript, so oldest-first dropping can orphan a result but
// never a call.
func stripOrphanedToolMessages(msgs core.Conversation) core.Conversation {
	known := make(map[string]bool)
	out := make(core.Conversation, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == core.RoleAssistant {
			for _, tc := range m.ToolCalls {
				known[tc.ID] = true
			}
		}
		if m.Role == core.RoleTool && !known[m.ToolCallID] {
			continue
		}
		out = append(out, m)
	}
	return out
}
