package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsr-ai/lingua/remote"
)

// -------------------- Parse Tests --------------------

func TestParseEmptyReturnsDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
}

func TestParseOverrides(t *testing.T) {
	doc := `
provider:
  name: anthropic
  model: claude-sonnet-4-0
  api_key: sk-ant-test
  temperature: 0.2
  max_tokens: 1024
loop:
  max_turns: 6
  max_parallel_tools: 2
  tool_timeout: 45s
context:
  max_tokens: 2048
  preamble_template: "Facts:\n"
remote:
  sweep_schedule: "*/5 * * * *"
  ping_interval: 10s
  pong_wait: 25s
  call_timeout: 5s
  backoff:
    initial_interval: 500ms
    max_interval: 10s
    max_retries: 3
  servers:
    - name: search
      url: wss://tools.example.com/ws
      api_key: tok
    - name: billing
      url: https://billing.example.com/rpc
      transport: http
`
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.Provider.Name)
	assert.Equal(t, "claude-sonnet-4-0", cfg.Provider.Model)
	assert.Equal(t, "sk-ant-test", cfg.Provider.APIKey)
	assert.Equal(t, 0.2, cfg.Provider.Temperature)
	assert.Equal(t, 1024, cfg.Provider.MaxTokens)

	assert.Equal(t, 6, cfg.Loop.MaxTurns)
	assert.Equal(t, 2, cfg.Loop.MaxParallelTools)
	assert.Equal(t, 45*time.Second, cfg.Loop.ToolTimeout.Std())

	assert.Equal(t, 2048, cfg.Context.MaxTokens)
	assert.Equal(t, "Facts:\n", cfg.Context.PreambleTemplate)

	assert.Equal(t, "*/5 * * * *", cfg.Remote.SweepSchedule)
	assert.Equal(t, 10*time.Second, cfg.Remote.PingInterval.Std())
	assert.Equal(t, 25*time.Second, cfg.Remote.PongWait.Std())
	assert.Equal(t, 5*time.Second, cfg.Remote.CallTimeout.Std())
	assert.Equal(t, 500*time.Millisecond, cfg.Remote.Backoff.InitialInterval.Std())
	assert.Equal(t, 10*time.Second, cfg.Remote.Backoff.MaxInterval.Std())
	assert.Equal(t, uint64(3), cfg.Remote.Backoff.MaxRetries)

	require.Len(t, cfg.Remote.Servers, 2)
	assert.Equal(t, remote.ServerDescriptor{
		Name: "search", URL: "wss://tools.example.com/ws", APIKey: "tok",
	}, cfg.Remote.Servers[0])
	assert.Equal(t, remote.TransportHTTP, cfg.Remote.Servers[1].Transport)
}

func TestParsePartialKeepsDefaults(t *testing.T) {
	cfg, err := Parse([]byte("provider:\n  model: gpt-4o\n"))
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Provider.Name)
	assert.Equal(t, "gpt-4o", cfg.Provider.Model)
	assert.Equal(t, 10, cfg.Loop.MaxTurns)
	assert.Equal(t, 30*time.Second, cfg.Loop.ToolTimeout.Std())
	assert.Equal(t, 8192, cfg.Context.MaxTokens)
}

func TestParseExplicitZeroWins(t *testing.T) {
	// max_turns: 0 means unlimited and must not be swallowed by the default.
	cfg, err := Parse([]byte("loop:\n  max_turns: 0\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Loop.MaxTurns)
	assert.Equal(t, 4, cfg.Loop.MaxParallelTools)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("provider:\n  flavor: spicy\n"))
	require.Error(t, err)
}

func TestParseRejectsInvalidDuration(t *testing.T) {
	_, err := Parse([]byte("loop:\n  tool_timeout: soon\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestParseRejectsMultipleDocuments(t *testing.T) {
	_, err := Parse([]byte("provider:\n  name: openai\n---\nprovider:\n  name: local\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "single document")
}

// -------------------- Load Tests --------------------

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lingua.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider:\n  name: local\n  model: llama3.2\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Provider.Name)
	assert.Equal(t, "llama3.2", cfg.Provider.Model)
}

// -------------------- Validate Tests --------------------

func TestValidateProviderName(t *testing.T) {
	cfg := Default()
	cfg.Provider.Name = "watson"
	assert.Error(t, cfg.Validate())

	cfg.Provider.Name = ""
	assert.Error(t, cfg.Validate())

	cfg.Provider.Name = "private"
	assert.Error(t, cfg.Validate(), "private requires a base_url")

	cfg.Provider.BaseURL = "https://llm.internal.example.com/v1"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRemoteServers(t *testing.T) {
	cfg := Default()
	cfg.Remote.Servers = []remote.ServerDescriptor{{Name: "search", URL: "wss://tools.example.com/ws"}}
	assert.NoError(t, cfg.Validate(), "transport defaults to websocket")

	cfg.Remote.Servers = []remote.ServerDescriptor{{Name: "search", URL: "ftp://tools.example.com"}}
	assert.Error(t, cfg.Validate())

	cfg.Remote.Servers = []remote.ServerDescriptor{{URL: "wss://tools.example.com/ws"}}
	assert.Error(t, cfg.Validate(), "name is required")
}
