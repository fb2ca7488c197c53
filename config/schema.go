// Package config defines the YAML configuration schema for an embedding
// service. The config is plain data: credential sourcing (env indirection,
// vaults) is the embedder's job, and absent keys fall back to the package
// defaults rather than zero values.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pulsr-ai/lingua/remote"
)

// Duration accepts Go duration strings ("30s", "1m30s") in YAML.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Provider selects and tunes the model backend: openai, anthropic, local, or
// private (an OpenAI-compatible endpoint reached through base_url).
type Provider struct {
	Name        string  `yaml:"name"`
	Model       string  `yaml:"model,omitempty"`
	APIKey      string  `yaml:"api_key,omitempty"`
	BaseURL     string  `yaml:"base_url,omitempty"`
	Temperature float64 `yaml:"temperature,omitempty"`
	MaxTokens   int     `yaml:"max_tokens,omitempty"`
}

// Loop bounds a run. A max_turns of 0 lifts the turn budget; tool_timeout of
// 0 disables the per-call deadline.
type Loop struct {
	MaxTurns         int      `yaml:"max_turns"`
	MaxParallelTools int      `yaml:"max_parallel_tools"`
	ToolTimeout      Duration `yaml:"tool_timeout"`
}

// Context tunes assembly: the token budget that truncation enforces and an
// optional override for the memory preamble template.
type Context struct {
	MaxTokens        int    `yaml:"max_tokens"`
	PreambleTemplate string `yaml:"preamble_template,omitempty"`
}

// Backoff shapes the reconnect retry policy for dropped remote connections.
type Backoff struct {
	InitialInterval Duration `yaml:"initial_interval"`
	MaxInterval     Duration `yaml:"max_interval"`
	MaxRetries      uint64   `yaml:"max_retries"`
}

// Remote lists the tool servers to connect at startup plus the connection
// tuning shared by all of them.
type Remote struct {
	Servers       []remote.ServerDescriptor `yaml:"servers,omitempty"`
	PingInterval  Duration                  `yaml:"ping_interval"`
	PongWait      Duration                  `yaml:"pong_wait"`
	CallTimeout   Duration                  `yaml:"call_timeout"`
	Backoff       Backoff                   `yaml:"backoff"`
	SweepSchedule string                    `yaml:"sweep_schedule,omitempty"`
}

// Config is the root document.
type Config struct {
	Provider Provider `yaml:"provider"`
	Loop     Loop     `yaml:"loop"`
	Context  Context  `yaml:"context"`
	Remote   Remote   `yaml:"remote"`
}

// Default returns the configuration used when no file or key overrides it.
func Default() Config {
	return Config{
		Provider: Provider{
			Name:        "openai",
			Temperature: 0.7,
			MaxTokens:   4096,
		},
		Loop: Loop{
			MaxTurns:         10,
			MaxParallelTools: 4,
			ToolTimeout:      Duration(30 * time.Second),
		},
		Context: Context{
			MaxTokens: 8192,
		},
		Remote: Remote{
			PingInterval: Duration(remote.DefaultPingInterval),
			PongWait:     Duration(remote.DefaultPongWait),
			CallTimeout:  Duration(remote.DefaultCallTimeout),
			Backoff: Backoff{
				InitialInterval: Duration(time.Second),
				MaxInterval:     Duration(30 * time.Second),
				MaxRetries:      5,
			},
		},
	}
}

// Validate checks the document for contradictions a loader cannot default
// away. It leaves reachability and credentials to connection time.
func (c *Config) Validate() error {
	switch c.Provider.Name {
	case "openai", "anthropic", "local", "private":
	case "":
		return fmt.Errorf("provider.name is required")
	default:
		return fmt.Errorf("provider.name %q is not one of openai, anthropic, local, private", c.Provider.Name)
	}
	if c.Provider.Name == "private" && c.Provider.BaseURL == "" {
		return fmt.Errorf("provider.base_url is required for the private provider")
	}
	for _, s := range c.Remote.Servers {
		desc := s
		if desc.Transport == "" {
			desc.Transport = remote.TransportWebSocket
		}
		if err := desc.Validate(); err != nil {
			return fmt.Errorf("remote.servers: %w", err)
		}
	}
	return nil
}
