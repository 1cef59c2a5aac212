package voice

import (
	"fmt"
	"sync"
	"time"
)

// Usage is the consumption reported by the pipeline stages.
type Usage struct {
	LLMPromptTokens     int
	LLMCompletionTokens int
	TTSCharacters       int
	STTAudioDuration    time.Duration
}

// Add returns the sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		LLMPromptTokens:     u.LLMPromptTokens + o.LLMPromptTokens,
		LLMCompletionTokens: u.LLMCompletionTokens + o.LLMCompletionTokens,
		TTSCharacters:       u.TTSCharacters + o.TTSCharacters,
		STTAudioDuration:    u.STTAudioDuration + o.STTAudioDuration,
	}
}

// IsZero reports whether nothing was consumed.
func (u Usage) IsZero() bool {
	return u == Usage{}
}

// String renders the summary logged when a session shuts down.
func (u Usage) String() string {
	return fmt.Sprintf("llm_prompt_tokens=%d llm_completion_tokens=%d tts_characters=%d stt_audio_duration=%.1fs",
		u.LLMPromptTokens, u.LLMCompletionTokens, u.TTSCharacters, u.STTAudioDuration.Seconds())
}

// UsageCollector aggregates usage over a session. Safe for concurrent use.
type UsageCollector struct {
	mu    sync.Mutex
	total Usage
}

// NewUsageCollector creates an empty collector.
func NewUsageCollector() *UsageCollector {
	return &UsageCollector{}
}

// Collect adds u to the running total.
func (c *UsageCollector) Collect(u Usage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total = c.total.Add(u)
}

// Summary returns the running total.
func (c *UsageCollector) Summary() Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}
