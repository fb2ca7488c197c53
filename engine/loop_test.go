package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/pulsr-ai/lingua/core"
	"github.com/pulsr-ai/lingua/provider"
	"github.com/pulsr-ai/lingua/tool"
)

// -------------------- helpers --------------------

func staticTool(t *testing.T, name, out string) *tool.FunctionTool {
	t.Helper()
	ft, err := tool.NewFunctionTool(
		core.ToolSpec{Name: name, Description: "returns a fixed value"},
		func(ctx context.Context, args map[string]any) (any, error) { return out, nil },
	)
	if err != nil {
		t.Fatalf("build tool %s: %v", name, err)
	}
	return ft
}

func failingTool(t *testing.T, name, msg string) *tool.FunctionTool {
	t.Helper()
	ft, err := tool.NewFunctionTool(
		core.ToolSpec{Name: name, Description: "always fails"},
		func(ctx context.Context, args map[string]any) (any, error) { return nil, errors.New(msg) },
	)
	if err != nil {
		t.Fatalf("build tool %s: %v", name, err)
	}
	return ft
}

// scenarioRegistry carries the real calculator builtin plus a deterministic
// clock so assertions stay exact.
func scenarioRegistry(t *testing.T) *tool.Registry {
	t.Helper()
	r := tool.NewRegistry()
	if err := tool.RegisterBuiltins(r); err != nil {
		t.Fatalf("register builtins: %v", err)
	}
	if err := r.Replace(staticTool(t, "get_current_time", "2025-03-14 09:26:53")); err != nil {
		t.Fatalf("replace time tool: %v", err)
	}
	return r
}

func userRun(reg *tool.Registry, text string) Run {
	run := Run{Messages: core.Conversation{core.NewUserMessage(text)}}
	if reg != nil {
		snap := reg.Snapshot()
		run.Snapshot = snap
		run.Tools = snap.Specs()
	}
	return run
}

func toolTurn(calls ...core.ToolCall) provider.Turn {
	return provider.Turn{ToolCalls: calls}
}

// -------------------- Loop Tests --------------------

func TestLoopDoneInOneTurn(t *testing.T) {
	p := provider.NewScripted("scripted", "test-model", provider.Turn{Content: "Hello there"})
	l := NewLoop(p)

	res, err := l.Complete(context.Background(), userRun(nil, "hi"))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if res.Turns != 1 {
		t.Errorf("Turns = %d, want 1", res.Turns)
	}
	if res.Final.Role != core.RoleAssistant || res.Final.Content != "Hello there" {
		t.Errorf("unexpected final message: %+v", res.Final)
	}
	if len(res.Messages) != 1 {
		t.Errorf("produced %d messages, want 1", len(res.Messages))
	}
}

func TestLoopExceededWithinLimit(t *testing.T) {
	reg := tool.NewRegistry()
	if err := reg.Register(staticTool(t, "echo", "ok")); err != nil {
		t.Fatal(err)
	}

	call := core.ToolCall{Name: "echo", Arguments: json.RawMessage(`{}`)}
	p := provider.NewScripted("scripted", "test-model",
		toolTurn(call), toolTurn(call), toolTurn(call))

	l := NewLoop(p, func(o *Options) { o.Config.MaxTurns = 3 })
	res, err := l.Complete(context.Background(), userRun(reg, "loop forever"))
	if err == nil {
		t.Fatalf("expected failure, got result %+v", res)
	}
	if !errors.Is(err, core.ErrLoopExceeded) {
		t.Errorf("error does not unwrap to ErrLoopExceeded: %v", err)
	}

	var le *core.LoopError
	if !errors.As(err, &le) {
		t.Fatalf("expected *core.LoopError, got %T", err)
	}
	if le.State != string(StateAwaitingModel) {
		t.Errorf("State = %q, want %q", le.State, StateAwaitingModel)
	}
	if le.Turn != 4 {
		t.Errorf("Turn = %d, want 4", le.Turn)
	}
	// Three completed turns, each an assistant message plus one tool result.
	if len(le.Transcript) != 6 {
		t.Errorf("partial transcript has %d messages, want 6", len(le.Transcript))
	}
}

func TestLoopEveryCallGetsOneResult(t *testing.T) {
	reg := tool.NewRegistry()
	if err := reg.Register(staticTool(t, "ok_tool", "fine")); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(failingTool(t, "fail_tool", "boom")); err != nil {
		t.Fatal(err)
	}

	p := provider.NewScripted("scripted", "test-model",
		toolTurn(
			core.ToolCall{ID: "c1", Name: "ok_tool", Arguments: json.RawMessage(`{}`)},
			core.ToolCall{ID: "c2", Name: "fail_tool", Arguments: json.RawMessage(`{}`)},
			core.ToolCall{ID: "c3", Name: "missing_tool", Arguments: json.RawMessage(`{}`)},
		),
		provider.Turn{Content: "all resolved"},
	)

	l := NewLoop(p)
	res, err := l.Complete(context.Background(), userRun(reg, "run them"))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	// assistant(turn 1) + three tool results + final assistant.
	if len(res.Messages) != 5 {
		t.Fatalf("produced %d messages, want 5: %+v", len(res.Messages), res.Messages)
	}
	wantIDs := []string{"c1", "c2", "c3"}
	for i, id := range wantIDs {
		m := res.Messages[1+i]
		if m.Role != core.RoleTool || m.ToolCallID != id {
			t.Errorf("message %d = %+v, want tool result for %s", 1+i, m, id)
		}
	}
	if res.Messages[1].Content != "fine" {
		t.Errorf("c1 content = %q", res.Messages[1].Content)
	}
	if !strings.Contains(res.Messages[2].Content, `"error"`) || !strings.Contains(res.Messages[2].Content, "boom") {
		t.Errorf("c2 should carry the error payload, got %q", res.Messages[2].Content)
	}
	if !strings.Contains(res.Messages[3].Content, "not found") {
		t.Errorf("c3 should be a not-found result, got %q", res.Messages[3].Content)
	}

	// All three results reached the model before its second invocation.
	reqs := p.Requests()
	if len(reqs) != 2 {
		t.Fatalf("provider saw %d requests, want 2", len(reqs))
	}
	second := reqs[1].Messages
	if len(second) != 5 { // user + assistant + three tool results
		t.Errorf("second request carries %d messages, want 5", len(second))
	}
}

func TestLoopScenarioTimeAndCalculator(t *testing.T) {
	reg := scenarioRegistry(t)
	p := provider.NewScripted("scripted", "test-model",
		toolTurn(
			core.ToolCall{ID: "call_time", Name: "get_current_time", Arguments: json.RawMessage(`{}`)},
			core.ToolCall{ID: "call_calc", Name: "calculator", Arguments: json.RawMessage(`{"expression":"15 * 23"}`)},
		),
		provider.Turn{Content: "It is 2025-03-14 09:26:53 and 15 * 23 = 345."},
	)

	l := NewLoop(p)
	res, err := l.Complete(context.Background(), userRun(reg, "What time is it and what's 15 * 23?"))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if res.Turns != 2 {
		t.Errorf("Turns = %d, want 2", res.Turns)
	}

	reqs := p.Requests()
	second := reqs[1].Messages
	if len(second) != 4 {
		t.Fatalf("second request carries %d messages, want 4", len(second))
	}
	timeMsg, calcMsg := second[2], second[3]
	if timeMsg.ToolCallID != "call_time" || timeMsg.Content != "2025-03-14 09:26:53" {
		t.Errorf("time result = %+v", timeMsg)
	}
	if calcMsg.ToolCallID != "call_calc" || calcMsg.Content != "345" {
		t.Errorf("calculator result = %+v", calcMsg)
	}

	if !strings.Contains(res.Final.Content, "345") || !strings.Contains(res.Final.Content, "09:26:53") {
		t.Errorf("final answer should reference both values: %q", res.Final.Content)
	}
}

func TestLoopSnapshotSemantics(t *testing.T) {
	reg := tool.NewRegistry()
	if err := reg.Register(staticTool(t, "lookup", "cached value")); err != nil {
		t.Fatal(err)
	}

	call := core.ToolCall{ID: "c1", Name: "lookup", Arguments: json.RawMessage(`{}`)}

	// Snapshot taken while the tool is registered: unregistering afterwards
	// does not affect the run.
	run := userRun(reg, "look it up")
	reg.Unregister("lookup")

	p := provider.NewScripted("scripted", "test-model",
		toolTurn(call), provider.Turn{Content: "done"})
	res, err := NewLoop(p).Complete(context.Background(), run)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if res.Messages[1].Content != "cached value" {
		t.Errorf("snapshot should still serve the tool, got %q", res.Messages[1].Content)
	}

	// Snapshot taken after removal: the call resolves to a not-found result
	// and the loop still reaches Done.
	p2 := provider.NewScripted("scripted", "test-model",
		toolTurn(call), provider.Turn{Content: "answered anyway"})
	res2, err := NewLoop(p2).Complete(context.Background(), userRun(reg, "look it up"))
	if err != nil {
		t.Fatalf("Complete after unregister: %v", err)
	}
	toolMsg := res2.Messages[1]
	if !strings.Contains(toolMsg.Content, "Function 'lookup' not found") {
		t.Errorf("expected not-found result, got %q", toolMsg.Content)
	}
	if res2.Final.Content != "answered anyway" {
		t.Errorf("loop should still finish, got %+v", res2.Final)
	}
}

func TestLoopNilSnapshot(t *testing.T) {
	p := provider.NewScripted("scripted", "test-model",
		toolTurn(core.ToolCall{ID: "c1", Name: "anything", Arguments: json.RawMessage(`{}`)}),
		provider.Turn{Content: "done"},
	)
	res, err := NewLoop(p).Complete(context.Background(), userRun(nil, "hi"))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !strings.Contains(res.Messages[1].Content, "not found") {
		t.Errorf("expected not-found result, got %q", res.Messages[1].Content)
	}
}

func TestLoopProviderErrorAbortsWithTranscript(t *testing.T) {
	reg := tool.NewRegistry()
	if err := reg.Register(staticTool(t, "echo", "ok")); err != nil {
		t.Fatal(err)
	}

	provErr := &core.ProviderError{Kind: core.KindRateLimited, Provider: "scripted", Status: 429}
	p := provider.NewScripted("scripted", "test-model",
		toolTurn(core.ToolCall{ID: "c1", Name: "echo", Arguments: json.RawMessage(`{}`)}),
		provider.Turn{Err: provErr},
	)

	_, err := NewLoop(p).Complete(context.Background(), userRun(reg, "hi"))
	if err == nil {
		t.Fatal("expected provider failure")
	}
	var le *core.LoopError
	if !errors.As(err, &le) {
		t.Fatalf("expected *core.LoopError, got %T", err)
	}
	if le.Turn != 2 || le.State != string(StateAwaitingModel) {
		t.Errorf("failed at %s turn %d, want awaiting_model turn 2", le.State, le.Turn)
	}
	if len(le.Transcript) != 2 {
		t.Errorf("partial transcript has %d messages, want 2", len(le.Transcript))
	}
	if core.KindOf(err) != core.KindRateLimited {
		t.Errorf("KindOf = %s, want rate_limited", core.KindOf(err))
	}
}

func TestLoopDoesNotMutateInput(t *testing.T) {
	reg := tool.NewRegistry()
	if err := reg.Register(staticTool(t, "echo", "ok")); err != nil {
		t.Fatal(err)
	}
	input := core.Conversation{core.NewSystemMessage("be brief"), core.NewUserMessage("hi")}
	run := Run{Messages: input, Snapshot: reg.Snapshot()}

	p := provider.NewScripted("scripted", "test-model",
		toolTurn(core.ToolCall{Name: "echo", Arguments: json.RawMessage(`{}`)}),
		provider.Turn{Content: "done"})
	if _, err := NewLoop(p).Complete(context.Background(), run); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if len(input) != 2 {
		t.Fatalf("input conversation grew to %d messages", len(input))
	}
	if input[0].Content != "be brief" || input[1].Content != "hi" {
		t.Errorf("input conversation changed: %+v", input)
	}
}

func TestLoopCallbackOrder(t *testing.T) {
	reg := tool.NewRegistry()
	if err := reg.Register(staticTool(t, "echo", "ok")); err != nil {
		t.Fatal(err)
	}

	var order []string
	cb := Callbacks{
		BeforeModel: func(ctx context.Context, turn int, req provider.Request) {
			order = append(order, fmt.Sprintf("before_model:%d", turn))
		},
		AfterModel: func(ctx context.Context, turn int, msg core.Message, err error) {
			order = append(order, fmt.Sprintf("after_model:%d", turn))
		},
		BeforeTool: func(ctx context.Context, call core.ToolCall) {
			order = append(order, "before_tool:"+call.Name)
		},
		AfterTool: func(ctx context.Context, result core.ToolResult) {
			order = append(order, "after_tool:"+result.Name)
		},
		OnError: func(ctx context.Context, err error) {
			order = append(order, "on_error")
		},
	}

	p := provider.NewScripted("scripted", "test-model",
		toolTurn(core.ToolCall{Name: "echo", Arguments: json.RawMessage(`{}`)}),
		provider.Turn{Content: "done"})
	l := NewLoop(p, func(o *Options) { o.Callbacks = cb })
	if _, err := l.Complete(context.Background(), userRun(reg, "hi")); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	want := []string{
		"before_model:1", "after_model:1",
		"before_tool:echo", "after_tool:echo",
		"before_model:2", "after_model:2",
	}
	if len(order) != len(want) {
		t.Fatalf("callback order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("callback order = %v, want %v", order, want)
		}
	}
}

func TestLoopOnErrorCallback(t *testing.T) {
	var got error
	cb := Callbacks{OnError: func(ctx context.Context, err error) { got = err }}

	p := provider.NewScripted("scripted", "test-model",
		provider.Turn{Err: &core.ProviderError{Kind: core.KindAuth, Provider: "scripted"}})
	l := NewLoop(p, func(o *Options) { o.Callbacks = cb })
	_, err := l.Complete(context.Background(), userRun(nil, "hi"))
	if err == nil {
		t.Fatal("expected failure")
	}
	if got == nil || core.KindOf(got) != core.KindAuth {
		t.Errorf("OnError saw %v, want the auth provider error", got)
	}
}
