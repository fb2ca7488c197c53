package testutil

import (
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/pulsr-ai/lingua/core"
)

// Events is a drained stream, with accessors for the assertions tests make
// over and over.
type Events []core.StreamEvent

// Collect drains a stream until it closes and returns every frame in order.
func Collect(ch <-chan core.StreamEvent) Events {
	var out Events
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

// CollectTimeout drains a stream like Collect but fails the test if the
// channel does not close within d, so a stuck run cannot hang the suite.
func CollectTimeout(tb testing.TB, ch <-chan core.StreamEvent, d time.Duration) Events {
	tb.Helper()
	var out Events
	deadline := time.NewTimer(d)
	defer deadline.Stop()
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline.C:
			tb.Fatalf("stream did not close within %v (%d frames so far)", d, len(out))
			return out
		}
	}
}

// Types returns the frame types in order.
func (e Events) Types() []core.StreamEventType {
	out := make([]core.StreamEventType, len(e))
	for i, ev := range e {
		out[i] = ev.Type
	}
	return out
}

// Tokens concatenates every token frame payload in order.
func (e Events) Tokens() string {
	var b strings.Builder
	for _, ev := range e {
		if ev.Type == core.StreamEventToken {
			b.WriteString(ev.Token)
		}
	}
	return b.String()
}

// Terminal returns the last frame and whether it is a proper terminal.
func (e Events) Terminal() (core.StreamEvent, bool) {
	if len(e) == 0 {
		return core.StreamEvent{}, false
	}
	last := e[len(e)-1]
	return last, last.Terminal()
}

// Done returns the message carried by the terminal done frame.
func (e Events) Done() (core.Message, bool) {
	last, ok := e.Terminal()
	if !ok || last.Type != core.StreamEventDone || last.Message == nil {
		return core.Message{}, false
	}
	return *last.Message, true
}

// Err returns the payload of the terminal error frame.
func (e Events) Err() (core.ErrorFrame, bool) {
	last, ok := e.Terminal()
	if !ok || last.Type != core.StreamEventError || last.Err == nil {
		return core.ErrorFrame{}, false
	}
	return *last.Err, true
}

// CountTerminal returns how many done/error frames the stream carried.
// Well-formed streams carry exactly one, and only as the last frame.
func (e Events) CountTerminal() int {
	n := 0
	for _, ev := range e {
		if ev.Terminal() {
			n++
		}
	}
	return n
}

// AssembleToolCalls reassembles tool_call delta frames into complete calls,
// the way a stream consumer is expected to: fragments grouped by index, ID
// and name from the first fragment carrying them, arguments concatenated.
func (e Events) AssembleToolCalls() []core.ToolCall {
	type acc struct {
		call core.ToolCall
		args strings.Builder
	}
	byIndex := make(map[int]*acc)
	var order []int
	for _, ev := range e {
		if ev.Type != core.StreamEventToolCall || ev.ToolCall == nil {
			continue
		}
		d := ev.ToolCall
		a, ok := byIndex[d.Index]
		if !ok {
			a = &acc{}
			byIndex[d.Index] = a
			order = append(order, d.Index)
		}
		if d.ID != "" {
			a.call.ID = d.ID
		}
		if d.Name != "" {
			a.call.Name = d.Name
		}
		a.args.WriteString(d.Arguments)
	}
	sort.Ints(order)
	out := make([]core.ToolCall, 0, len(order))
	for _, idx := range order {
		a := byIndex[idx]
		if s := a.args.String(); s != "" {
			a.call.Arguments = []byte(s)
		}
		out = append(out, a.call)
	}
	return out
}
