package core

import (
	"errors"
	"testing"
)

func TestTurnLimiter(t *testing.T) {
	tl := NewTurnLimiter(2)

	if err := tl.Increment(); err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if err := tl.Increment(); err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	err := tl.Increment()
	if err == nil {
		t.Fatal("expected budget error on turn 3")
	}
	if !errors.Is(err, ErrLoopExceeded) {
		t.Errorf("expected ErrLoopExceeded, got %v", err)
	}
	if tl.Count() != 3 {
		t.Errorf("Count = %d, want 3", tl.Count())
	}
}

func TestTurnLimiterUnlimited(t *testing.T) {
	tl := NewTurnLimiter(0)
	for i := 0; i < 100; i++ {
		if err := tl.Increment(); err != nil {
			t.Fatalf("unlimited limiter errored at %d: %v", i, err)
		}
	}
	if tl.Remaining() != -1 {
		t.Errorf("Remaining = %d, want -1 for unlimited", tl.Remaining())
	}
}
