// Package lingua provides a high-level façade over the orchestration engine:
// provider adapters, the tool registry, conversation-context assembly and the
// streaming multiplexer. Most embedders interact with this package by:
//  1. Creating an Orchestrator via New (or NewFromConfig for YAML-driven setup)
//  2. Registering tools on its Registry (built-ins come pre-registered)
//  3. Calling Complete for a final message or StreamComplete for the
//     normalized event stream
//
// The façade owns no conversation state: callers pass a history snapshot and
// the memories to inject per call, and persist the trailing messages the run
// returns. All defaults are safe for local development; production embedders
// supply their provider credentials and a structured logger.
package lingua

import (
	"context"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/pulsr-ai/lingua/config"
	"github.com/pulsr-ai/lingua/conversation"
	"github.com/pulsr-ai/lingua/core"
	"github.com/pulsr-ai/lingua/engine"
	"github.com/pulsr-ai/lingua/logging"
	"github.com/pulsr-ai/lingua/provider"
	"github.com/pulsr-ai/lingua/provider/anthropic"
	"github.com/pulsr-ai/lingua/provider/local"
	"github.com/pulsr-ai/lingua/provider/openai"
	"github.com/pulsr-ai/lingua/remote"
	"github.com/pulsr-ai/lingua/tool"
)

// DefaultLocalEndpoint is where the local provider looks for an Ollama-style
// server when the configuration names none.
const DefaultLocalEndpoint = "http://localhost:11434"

// Options configure an Orchestrator.
type Options struct {
	// Registry is the tool registry runs snapshot. When nil a fresh
	// registry with the built-in tools is created.
	Registry *tool.Registry

	// Engine holds the loop tuning (turn budget, tool parallelism and
	// timeout, stream buffer). Defaults to engine.DefaultConfig.
	Engine engine.Config

	// Callbacks are the lifecycle hooks observed during runs.
	Callbacks engine.Callbacks

	// Builder assembles the model context. When nil a builder with the
	// default token budget and memory preamble is created.
	Builder *conversation.ContextBuilder

	// Logger receives structured events from every layer. Defaults to the
	// no-op logger.
	Logger logging.Logger
}

// Request is one orchestration call: the caller-owned conversation snapshot,
// the memory entries selected for injection, any request-scoped tool specs
// (already normalized from the wire), and generation parameters.
type Request struct {
	Messages core.Conversation
	Memories []core.MemoryEntry
	Tools    []core.ToolSpec
	Params   provider.Params
}

// Orchestrator is the façade aggregating one provider adapter, a tool
// registry, the context builder and the run loop. It is safe for concurrent
// calls; each call snapshots the registry and assembles its own context.
type Orchestrator struct {
	provider provider.Provider
	registry *tool.Registry
	builder  *conversation.ContextBuilder
	loop     *engine.Loop
	remote   *remote.Manager
	logger   logging.Logger
}

// New creates an Orchestrator driving the given provider.
func New(p provider.Provider, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		Engine: engine.DefaultConfig,
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Registry == nil {
		opts.Registry = tool.NewRegistry()
		// A fresh registry has no names to collide with.
		_ = tool.RegisterBuiltins(opts.Registry)
	}
	if opts.Builder == nil {
		opts.Builder = conversation.NewContextBuilder(func(o *conversation.Options) {
			o.Logger = opts.Logger
		})
	}

	loop := engine.NewLoop(p, func(o *engine.Options) {
		o.Config = opts.Engine
		o.Callbacks = opts.Callbacks
		o.Logger = opts.Logger
	})

	return &Orchestrator{
		provider: p,
		registry: opts.Registry,
		builder:  opts.Builder,
		loop:     loop,
		logger:   logging.OrNoOp(opts.Logger),
	}
}

// NewFromConfig builds a fully wired Orchestrator from a configuration
// document: the provider adapter named by it, loop and context tuning, and a
// connection to every configured remote tool server. A remote server that
// cannot be reached aborts construction, so the embedder decides whether to
// retry or ship without it.
func NewFromConfig(ctx context.Context, cfg config.Config, optFns ...func(o *Options)) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p, err := NewProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}

	fns := make([]func(o *Options), 0, len(optFns)+2)
	fns = append(fns, func(o *Options) {
		o.Engine = engine.Config{
			MaxTurns:         cfg.Loop.MaxTurns,
			MaxParallelTools: cfg.Loop.MaxParallelTools,
			ToolTimeout:      cfg.Loop.ToolTimeout.Std(),
			EventBufferSize:  engine.DefaultConfig.EventBufferSize,
		}
	})
	fns = append(fns, optFns...)
	// Last so the builder sees the logger the caller settled on.
	fns = append(fns, func(o *Options) {
		if o.Builder != nil {
			return
		}
		logger := o.Logger
		o.Builder = conversation.NewContextBuilder(func(b *conversation.Options) {
			b.MaxContextTokens = cfg.Context.MaxTokens
			if cfg.Context.PreambleTemplate != "" {
				b.PreambleTemplate = cfg.Context.PreambleTemplate
			}
			b.Logger = logger
		})
	})

	orch := New(p, fns...)

	if len(cfg.Remote.Servers) > 0 {
		mgr, err := remote.NewManager(orch.registry, func(o *remote.Options) {
			o.Logger = orch.logger
			o.Tuning = remote.Tuning{
				PingInterval: cfg.Remote.PingInterval.Std(),
				PongWait:     cfg.Remote.PongWait.Std(),
				CallTimeout:  cfg.Remote.CallTimeout.Std(),
			}
			o.Backoff = remote.BackoffConfig{
				InitialInterval: cfg.Remote.Backoff.InitialInterval.Std(),
				MaxInterval:     cfg.Remote.Backoff.MaxInterval.Std(),
				MaxRetries:      cfg.Remote.Backoff.MaxRetries,
			}
			o.SweepSchedule = cfg.Remote.SweepSchedule
		})
		if err != nil {
			return nil, err
		}
		for _, desc := range cfg.Remote.Servers {
			if err := mgr.Connect(ctx, desc); err != nil {
				mgr.Close()
				return nil, err
			}
		}
		orch.remote = mgr
	}

	return orch, nil
}

// NewProvider constructs the backend adapter cfg names: openai, anthropic,
// local, or private. Private is the OpenAI adapter pointed at an
// OpenAI-compatible gateway through base_url.
func NewProvider(cfg config.Provider) (provider.Provider, error) {
	switch cfg.Name {
	case "openai", "private":
		if cfg.Name == "private" && cfg.BaseURL == "" {
			return nil, fmt.Errorf("provider %q requires a base_url", cfg.Name)
		}
		return openai.New(func(o *openai.Options) {
			o.Name = cfg.Name
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
			if cfg.Temperature != 0 {
				o.Temperature = cfg.Temperature
			}
			if cfg.MaxTokens != 0 {
				o.MaxTokens = cfg.MaxTokens
			}
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		}), nil
	case "anthropic":
		return anthropic.New(func(o *anthropic.Options) {
			if cfg.Model != "" {
				o.Model = anthropicsdk.Model(cfg.Model)
			}
			if cfg.Temperature != 0 {
				o.Temperature = cfg.Temperature
			}
			if cfg.MaxTokens != 0 {
				o.MaxTokens = cfg.MaxTokens
			}
			o.APIKey = cfg.APIKey
		}), nil
	case "local":
		endpoint := cfg.BaseURL
		if endpoint == "" {
			endpoint = DefaultLocalEndpoint
		}
		return local.New(endpoint, func(o *local.Options) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
			if cfg.Temperature != 0 {
				o.Temperature = cfg.Temperature
			}
			if cfg.MaxTokens != 0 {
				o.MaxTokens = cfg.MaxTokens
			}
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (want openai, anthropic, local or private)", cfg.Name)
	}
}

// Complete runs the loop to completion and returns the final result: the
// last assistant message plus every trailing message the run produced, for
// the caller to persist. On failure the error is a *core.LoopError carrying
// the partial transcript.
func (o *Orchestrator) Complete(ctx context.Context, req Request) (*engine.Result, error) {
	run, err := o.prepare(req)
	if err != nil {
		return nil, err
	}
	return o.loop.Complete(ctx, run)
}

// StreamComplete runs the loop in streaming mode. The returned channel
// carries the normalized frames across every internal turn and is always
// closed after a single terminal done or error frame. Context-assembly
// failures (for example a tool name collision) surface as the terminal
// error frame.
func (o *Orchestrator) StreamComplete(ctx context.Context, req Request) <-chan core.StreamEvent {
	run, err := o.prepare(req)
	if err != nil {
		out := make(chan core.StreamEvent, 1)
		out <- core.ErrorEventFrom(err)
		close(out)
		return out
	}
	return o.loop.Stream(ctx, run)
}

// prepare snapshots the registry and assembles the bounded context. The
// snapshot rides along in the run so mid-run registry mutations cannot
// affect calls already resolved.
func (o *Orchestrator) prepare(req Request) (engine.Run, error) {
	snap := o.registry.Snapshot()
	msgs, specs, err := o.builder.Build(conversation.Input{
		History:  req.Messages,
		Memories: req.Memories,
		Tools: []conversation.SpecSource{
			{Name: "registry", Specs: snap.Specs()},
			{Name: "request", Specs: req.Tools},
		},
	})
	if err != nil {
		return engine.Run{}, err
	}
	if len(specs) > 0 {
		if info := o.provider.Info(); !info.SupportsTools {
			o.logger.Warn("provider.tools.unsupported", "provider", info.Name, "tools", len(specs))
		}
	}
	return engine.Run{Messages: msgs, Tools: specs, Params: req.Params, Snapshot: snap}, nil
}

// Registry returns the tool registry. Tools registered here are visible to
// runs started afterwards; in-flight runs keep their snapshot.
func (o *Orchestrator) Registry() *tool.Registry { return o.registry }

// Remote returns the remote tool server manager, or nil when the
// orchestrator was built without remote servers.
func (o *Orchestrator) Remote() *remote.Manager { return o.remote }

// Close releases owned resources: remote connections and their reconnect
// schedule.
func (o *Orchestrator) Close() error {
	if o.remote != nil {
		return o.remote.Close()
	}
	return nil
}
