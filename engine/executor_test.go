package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pulsr-ai/lingua/core"
	"github.com/pulsr-ai/lingua/tool"
)

// -------------------- helpers --------------------

// delayTool sleeps for args["ms"] milliseconds (honoring ctx) and echoes
// args["out"].
func delayTool(t *testing.T) *tool.FunctionTool {
	t.Helper()
	ft, err := tool.NewFunctionTool(core.ToolSpec{
		Name:        "delay",
		Description: "sleeps then echoes",
		Parameters: []core.Parameter{
			{Name: "ms", Type: "number", Required: true},
			{Name: "out", Type: "string", Required: true},
		},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		d := time.Duration(args["ms"].(float64)) * time.Millisecond
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d):
		}
		return args["out"].(string), nil
	})
	if err != nil {
		t.Fatalf("build delay tool: %v", err)
	}
	return ft
}

func delayCall(id string, ms int, out string) core.ToolCall {
	return core.ToolCall{
		ID:        id,
		Name:      "delay",
		Arguments: json.RawMessage(fmt.Sprintf(`{"ms":%d,"out":%q}`, ms, out)),
	}
}

func snapshotWith(t *testing.T, tools ...tool.Tool) *tool.Snapshot {
	t.Helper()
	r := tool.NewRegistry()
	for _, tl := range tools {
		if err := r.Register(tl); err != nil {
			t.Fatalf("register %s: %v", tl.Spec().Name, err)
		}
	}
	return r.Snapshot()
}

// -------------------- Executor Tests --------------------

func TestExecutorPreservesCallOrder(t *testing.T) {
	snap := snapshotWith(t, delayTool(t))
	ex := NewExecutor(Config{MaxParallelTools: 4}, Callbacks{}, nil)

	// Earliest call finishes last; results must still come back by call
	// index, not completion order.
	calls := []core.ToolCall{
		delayCall("c0", 60, "a"),
		delayCall("c1", 1, "b"),
		delayCall("c2", 30, "c"),
		delayCall("c3", 5, "d"),
	}
	results := ex.Execute(context.Background(), snap, calls)
	if len(results) != 4 {
		t.Fatalf("got %d results, want 4", len(results))
	}
	want := []string{"a", "b", "c", "d"}
	for i, res := range results {
		if res.CallID != calls[i].ID {
			t.Errorf("result %d CallID = %s, want %s", i, res.CallID, calls[i].ID)
		}
		if res.IsError || res.Content != want[i] {
			t.Errorf("result %d = %+v, want content %q", i, res, want[i])
		}
	}
}

func TestExecutorBoundedParallelism(t *testing.T) {
	var cur, peak atomic.Int32
	track, err := tool.NewFunctionTool(
		core.ToolSpec{Name: "track", Description: "records concurrency"},
		func(ctx context.Context, args map[string]any) (any, error) {
			n := cur.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			cur.Add(-1)
			return "done", nil
		})
	if err != nil {
		t.Fatal(err)
	}
	snap := snapshotWith(t, track)

	ex := NewExecutor(Config{MaxParallelTools: 2}, Callbacks{}, nil)
	calls := make([]core.ToolCall, 6)
	for i := range calls {
		calls[i] = core.ToolCall{ID: fmt.Sprintf("c%d", i), Name: "track", Arguments: json.RawMessage(`{}`)}
	}
	results := ex.Execute(context.Background(), snap, calls)
	for i, res := range results {
		if res.IsError {
			t.Errorf("call %d failed: %s", i, res.Content)
		}
	}
	if p := peak.Load(); p > 2 {
		t.Errorf("observed %d concurrent executions, limit is 2", p)
	}
}

func TestExecutorCancelledBatchFillsResults(t *testing.T) {
	snap := snapshotWith(t, delayTool(t))
	ex := NewExecutor(Config{MaxParallelTools: 2}, Callbacks{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := []core.ToolCall{
		delayCall("c0", 1, "a"),
		delayCall("c1", 1, "b"),
		delayCall("c2", 1, "c"),
	}
	results := ex.Execute(ctx, snap, calls)
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for i, res := range results {
		if res.CallID != calls[i].ID {
			t.Errorf("result %d CallID = %s, want %s", i, res.CallID, calls[i].ID)
		}
		if !res.IsError || !strings.Contains(res.Content, "context canceled") {
			t.Errorf("result %d should report cancellation, got %+v", i, res)
		}
	}
}

func TestExecutorToolTimeout(t *testing.T) {
	snap := snapshotWith(t, delayTool(t))
	ex := NewExecutor(Config{MaxParallelTools: 2, ToolTimeout: 20 * time.Millisecond}, Callbacks{}, nil)

	results := ex.Execute(context.Background(), snap, []core.ToolCall{
		delayCall("c0", 500, "late"),
		delayCall("c1", 1, "quick"),
	})
	if !results[0].IsError || !strings.Contains(results[0].Content, "context deadline exceeded") {
		t.Errorf("slow call should time out, got %+v", results[0])
	}
	if results[1].IsError || results[1].Content != "quick" {
		t.Errorf("fast call should succeed, got %+v", results[1])
	}
}

func TestExecutorIsolatesPanics(t *testing.T) {
	boom, err := tool.NewFunctionTool(
		core.ToolSpec{Name: "boom", Description: "panics"},
		func(ctx context.Context, args map[string]any) (any, error) { panic("kaboom") })
	if err != nil {
		t.Fatal(err)
	}
	snap := snapshotWith(t, boom, delayTool(t))

	ex := NewExecutor(Config{MaxParallelTools: 2}, Callbacks{}, nil)
	results := ex.Execute(context.Background(), snap, []core.ToolCall{
		{ID: "c0", Name: "boom", Arguments: json.RawMessage(`{}`)},
		delayCall("c1", 1, "fine"),
	})
	if !results[0].IsError || !strings.Contains(results[0].Content, "panicked") {
		t.Errorf("panic should become an error result, got %+v", results[0])
	}
	if results[1].IsError || results[1].Content != "fine" {
		t.Errorf("sibling call should be unaffected, got %+v", results[1])
	}
}
