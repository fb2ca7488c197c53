package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		status int
		want   ErrorKind
	}{
		{401, KindAuth},
		{403, KindAuth},
		{429, KindRateLimited},
		{408, KindTimeout},
		{504, KindTimeout},
		{400, KindInvalidRequest},
		{404, KindInvalidRequest},
		{422, KindInvalidRequest},
		{500, KindTransport},
		{503, KindTransport},
		{0, KindUnknown},
	}
	for _, tc := range cases {
		if got := ClassifyStatus(tc.status); got != tc.want {
			t.Errorf("ClassifyStatus(%d) = %s, want %s", tc.status, got, tc.want)
		}
	}
}

func TestProviderErrorRendering(t *testing.T) {
	cause := errors.New("429 too many requests")
	err := &ProviderError{
		Kind:     KindRateLimited,
		Provider: "openai",
		Model:    "gpt-4o",
		Status:   429,
		Message:  "rate limit reached",
		Cause:    cause,
	}

	msg := err.Error()
	for _, want := range []string{"openai", "gpt-4o", "rate_limited", "429", "rate limit reached"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error string %q missing %q", msg, want)
		}
	}
	if !errors.Is(err, cause) {
		t.Error("Unwrap chain lost the backend cause")
	}
}

func TestLoopErrorCarriesTranscript(t *testing.T) {
	transcript := Conversation{NewUserMessage("hi"), NewAssistantMessage("calling tool")}
	err := &LoopError{Turn: 3, Transcript: transcript, Cause: fmt.Errorf("run: %w", ErrLoopExceeded)}

	if !errors.Is(err, ErrLoopExceeded) {
		t.Error("LoopError did not unwrap to ErrLoopExceeded")
	}
	var le *LoopError
	if !errors.As(error(err), &le) || len(le.Transcript) != 2 {
		t.Errorf("partial transcript lost: %#v", le)
	}
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"provider", &ProviderError{Kind: KindAuth}, KindAuth},
		{"wrapped provider", fmt.Errorf("call: %w", &ProviderError{Kind: KindTimeout}), KindTimeout},
		{"loop exceeded", fmt.Errorf("x: %w", ErrLoopExceeded), KindLoopExceeded},
		{"interrupted", ErrStreamInterrupted, KindStreamInterrupted},
		{"canceled", context.Canceled, KindStreamInterrupted},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"collision", &ToolNameCollisionError{Name: "t"}, KindToolNameCollision},
		{"remote", &RemoteConnectionError{Server: "s", Cause: errors.New("eof")}, KindRemoteConnection},
		{"opaque", errors.New("boom"), KindUnknown},
		{"nil", nil, KindUnknown},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Errorf("%s: KindOf = %s, want %s", tc.name, got, tc.want)
		}
	}
}
