package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-voiceagents/pkg/agent"
)

func TestObserveTools(t *testing.T) {
	c := NewCollector("barista")

	c.Observe(agent.Event{Type: agent.EventTool, Tool: "save_order", Elapsed: time.Millisecond})
	c.Observe(agent.Event{Type: agent.EventTool, Tool: "save_order", Elapsed: time.Millisecond})
	c.Observe(agent.Event{Type: agent.EventTool, Tool: "save_order", Failed: true})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.toolCalls.WithLabelValues("save_order", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.toolCalls.WithLabelValues("save_order", "error")))
}

func TestObserveSessionsAndUsage(t *testing.T) {
	c := NewCollector("tutor")

	c.Observe(agent.Event{Type: agent.EventStarted})
	c.Observe(agent.Event{Type: agent.EventStarted})
	c.Observe(agent.Event{Type: agent.EventEnded})
	assert.Equal(t, 1.0, testutil.ToFloat64(c.activeSessions))

	c.Observe(agent.Event{Type: agent.EventHandoff, From: "greeter", To: "quiz"})
	assert.Equal(t, 1.0, testutil.ToFloat64(c.handoffs.WithLabelValues("greeter", "quiz")))

	c.Observe(agent.Event{Type: agent.EventUsage, LLMPromptTokens: 100, LLMCompletionTokens: 20, TTSCharacters: 42})
	assert.Equal(t, 100.0, testutil.ToFloat64(c.llmTokens.WithLabelValues("prompt")))
	assert.Equal(t, 20.0, testutil.ToFloat64(c.llmTokens.WithLabelValues("completion")))
	assert.Equal(t, 42.0, testutil.ToFloat64(c.ttsCharacters))

	c.Observe(agent.Event{Type: agent.EventError, Text: "x"})
	assert.Equal(t, 1.0, testutil.ToFloat64(c.pipelineErrors))
}

func TestHandler(t *testing.T) {
	c := NewCollector("wellness")
	c.CheckInSaved()
	c.OrderSaved()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, _ := io.ReadAll(rec.Body)
	text := string(body)
	assert.True(t, strings.Contains(text, `voiceagents_check_ins_saved_total{demo="wellness"} 1`))
	assert.Contains(t, text, "go_goroutines")
}
