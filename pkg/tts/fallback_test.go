package tts

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFallbackSticksToWorkingProvider(t *testing.T) {
	ctx := context.Background()
	murf := WithError(&APIError{StatusCode: 503, Message: "unavailable", Provider: "murf"})
	openai := NewMock()

	now := time.Date(2025, 11, 24, 9, 30, 0, 0, time.UTC)
	f, err := NewFallback(nil, Named{"murf", murf}, Named{"openai", openai})
	if err != nil {
		t.Fatalf("NewFallback: %v", err)
	}
	f.now = func() time.Time { return now }

	for _, sentence := range []string{"Hi there!", "What can I get you today?", "We have oat milk."} {
		if _, err := f.Synthesize(ctx, sentence); err != nil {
			t.Fatalf("Synthesize(%q): %v", sentence, err)
		}
	}
	if got := murf.CallCount("Synthesize"); got != 1 {
		t.Errorf("murf called %d times, want 1", got)
	}
	if got := openai.CallCount("Synthesize"); got != 3 {
		t.Errorf("openai called %d times, want 3", got)
	}
	if f.Current() != "openai" {
		t.Errorf("Current = %q, want openai", f.Current())
	}

	now = now.Add(DefaultCooldown)
	if f.Current() != "murf" {
		t.Errorf("after cooldown Current = %q, want murf", f.Current())
	}
}

func TestFallbackAllFail(t *testing.T) {
	f, _ := NewFallback(nil,
		Named{"murf", WithError(errors.New("murf down"))},
		Named{"openai", WithError(errors.New("openai down"))},
	)

	_, err := f.Stream(context.Background(), "Hello")
	var fe *FallbackError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FallbackError, got %v", err)
	}
	if len(fe.Errors) != 2 {
		t.Errorf("got %d errors, want 2", len(fe.Errors))
	}
	if want := "tts: every provider failed: murf: murf down; openai: openai down"; err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestFallbackSetVoiceReachesEveryProvider(t *testing.T) {
	m1, m2 := NewMock(), NewMock()
	f, _ := NewFallback(nil, Named{"murf", m1}, Named{"openai", m2})

	if err := f.SetVoice(MurfVoices["ken"]); err != nil {
		t.Fatalf("SetVoice: %v", err)
	}
	if m1.Voice().ID != "en-US-ken" || m2.Voice().ID != "en-US-ken" {
		t.Errorf("voices = %q, %q", m1.Voice().ID, m2.Voice().ID)
	}
	if f.Voice().ID != "en-US-ken" {
		t.Errorf("Voice = %q", f.Voice().ID)
	}
}

func TestFallbackHealth(t *testing.T) {
	ctx := context.Background()
	f, _ := NewFallback(nil, Named{"murf", WithError(errors.New("down"))}, Named{"openai", NewMock()})
	if err := f.Health(ctx); err != nil {
		t.Errorf("Health: %v", err)
	}

	f, _ = NewFallback(nil, Named{"murf", WithError(errors.New("down"))})
	if err := f.Health(ctx); err == nil {
		t.Error("expected error when no provider is healthy")
	}

	if _, err := NewFallback(nil); !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("NewFallback() err = %v", err)
	}
}

func TestAPIError(t *testing.T) {
	tests := []struct {
		status       int
		retryable    bool
		unauthorized bool
	}{
		{401, false, true},
		{429, true, false},
		{500, true, false},
		{503, true, false},
		{400, false, false},
	}
	for _, tt := range tests {
		e := &APIError{StatusCode: tt.status, Provider: "murf"}
		if e.IsRetryable() != tt.retryable || e.IsUnauthorized() != tt.unauthorized {
			t.Errorf("%d: retryable=%v unauthorized=%v", tt.status, e.IsRetryable(), e.IsUnauthorized())
		}
	}

	e := &APIError{StatusCode: 400, Message: "bad request", Code: "invalid_input", Provider: "murf"}
	if e.Error() != "tts [murf]: API error 400 (invalid_input): bad request" {
		t.Errorf("Error() = %s", e.Error())
	}

	var pe *ProviderError
	if err := WrapError("murf", errors.New("connection failed")); !errors.As(err, &pe) || pe.Provider != "murf" {
		t.Errorf("WrapError = %v", err)
	}
}
