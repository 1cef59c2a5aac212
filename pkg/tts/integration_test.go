//go:build integration

package tts_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/teslashibe/go-voiceagents/pkg/tts"
)

// TestMurfIntegration tests the real Murf API.
// Run with: go test -tags=integration -v ./pkg/tts/...
func TestMurfIntegration(t *testing.T) {
	apiKey := os.Getenv("MURF_API_KEY")
	if apiKey == "" {
		t.Skip("MURF_API_KEY not set")
	}

	provider, err := tts.NewMurf(
		tts.WithAPIKey(apiKey),
		tts.WithVoice("matthew"),
	)
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	defer provider.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	t.Run("Health", func(t *testing.T) {
		if err := provider.Health(ctx); err != nil {
			t.Errorf("health check failed: %v", err)
		}
	})

	t.Run("Synthesize", func(t *testing.T) {
		result, err := provider.Synthesize(ctx, "Hi! Welcome to Piku Coffee.")
		if err != nil {
			t.Fatalf("synthesize failed: %v", err)
		}
		if len(result.Audio) == 0 {
			t.Error("expected audio")
		}
		t.Logf("synthesized %d bytes (%v) in %dms", len(result.Audio), result.Duration, result.LatencyMs)
	})

	t.Run("Stream with another voice", func(t *testing.T) {
		if err := provider.SetVoice(tts.Voice{ID: "alicia"}); err != nil {
			t.Fatal(err)
		}
		stream, err := provider.Stream(ctx, "Quiz time! Ready for your first question?")
		if err != nil {
			t.Fatalf("stream failed: %v", err)
		}
		defer stream.Close()

		var total, chunks int
		for {
			chunk, err := stream.Read()
			if err != nil {
				t.Fatalf("read failed: %v", err)
			}
			if chunk == nil {
				break
			}
			chunks++
			total += len(chunk)
		}
		t.Logf("streamed %d bytes in %d chunks", total, chunks)
	})
}

func TestOpenAIIntegration(t *testing.T) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("OPENAI_API_KEY not set")
	}

	provider, err := tts.NewOpenAI(tts.WithAPIKey(apiKey))
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	defer provider.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := provider.Synthesize(ctx, "Fallback voice check.")
	if err != nil {
		t.Fatalf("synthesize failed: %v", err)
	}
	t.Logf("synthesized %d bytes in %dms", len(result.Audio), result.LatencyMs)
}
