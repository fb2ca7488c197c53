package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsr-ai/lingua/core"
	"github.com/pulsr-ai/lingua/provider"
)

func wireMessages(t *testing.T, conv core.Conversation) []map[string]any {
	t.Helper()
	messages, err := buildMessages(conv)
	require.NoError(t, err)
	data, err := json.Marshal(messages)
	require.NoError(t, err)
	var out []map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestBuildMessagesEmbedsToolUse(t *testing.T) {
	conv := core.Conversation{
		core.NewSystemMessage("You are helpful."),
		core.NewUserMessage("What is the weather in Berlin and Paris?"),
		{
			Role: core.RoleAssistant,
			ToolCalls: []core.ToolCall{
				{ID: "toolu_1", Name: "get_weather", Arguments: json.RawMessage(`{"location":"Berlin"}`)},
				{ID: "toolu_2", Name: "get_weather", Arguments: json.RawMessage(`{"location":"Paris"}`)},
			},
		},
		core.NewToolMessage(core.NewToolResult("toolu_1", "get_weather", "sunny")),
		core.NewToolMessage(core.NewToolResult("toolu_2", "get_weather", "rainy")),
	}

	wire := wireMessages(t, conv)
	// System message is excluded; both tool results share one user message.
	require.Len(t, wire, 3)

	assert.Equal(t, "user", wire[0]["role"])

	assert.Equal(t, "assistant", wire[1]["role"])
	blocks := wire[1]["content"].([]any)
	require.Len(t, blocks, 2)
	first := blocks[0].(map[string]any)
	assert.Equal(t, "tool_use", first["type"])
	assert.Equal(t, "toolu_1", first["id"])
	assert.Equal(t, "get_weather", first["name"])

	assert.Equal(t, "user", wire[2]["role"])
	results := wire[2]["content"].([]any)
	require.Len(t, results, 2)
	r0 := results[0].(map[string]any)
	assert.Equal(t, "tool_result", r0["type"])
	assert.Equal(t, "toolu_1", r0["tool_use_id"])
	r1 := results[1].(map[string]any)
	assert.Equal(t, "toolu_2", r1["tool_use_id"])
}

func TestBuildMessagesRejectsBadArguments(t *testing.T) {
	conv := core.Conversation{
		{
			Role:      core.RoleAssistant,
			ToolCalls: []core.ToolCall{{ID: "x", Name: "y", Arguments: json.RawMessage(`{not json`)}},
		},
	}
	_, err := buildMessages(conv)
	assert.Error(t, err)
}

func TestExtractSystemCollectsBlocks(t *testing.T) {
	conv := core.Conversation{
		core.NewSystemMessage("User context:\n- city: Berlin"),
		core.NewSystemMessage("You are helpful."),
		core.NewUserMessage("hi"),
	}
	blocks := extractSystem(conv)
	require.Len(t, blocks, 2)
	assert.Contains(t, blocks[0].Text, "city: Berlin")
	assert.Equal(t, "You are helpful.", blocks[1].Text)
}

func TestBuildToolsSchema(t *testing.T) {
	tools := buildTools([]core.ToolSpec{{
		Name:        "calculator",
		Description: "Evaluate an arithmetic expression",
		Parameters: []core.Parameter{
			{Name: "expression", Type: "string", Description: "Expression to evaluate", Required: true},
		},
	}})
	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].OfTool)
	assert.Equal(t, "calculator", tools[0].OfTool.Name)
	assert.Equal(t, []string{"expression"}, tools[0].OfTool.InputSchema.Required)
}

func TestBuildParamsAppliesDefaults(t *testing.T) {
	p := New(func(o *Options) { o.APIKey = "test-key" })
	params, err := p.buildParams(provider.Request{
		Messages: core.Conversation{core.NewUserMessage("hi")},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(provider.DefaultMaxTokens), params.MaxTokens)
	assert.NotEmpty(t, params.Model)
}

func TestWrapErrorClassification(t *testing.T) {
	p := New(func(o *Options) { o.APIKey = "test-key" })

	var pe *core.ProviderError
	err := p.wrapError(context.DeadlineExceeded, "claude")
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, core.KindTimeout, pe.Kind)

	err = p.wrapError(errors.New("dial tcp: connection refused"), "claude")
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, core.KindTransport, pe.Kind)
	assert.Equal(t, "anthropic", pe.Provider)
}
