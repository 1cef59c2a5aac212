package agent

import "time"

// EventType identifies a session event.
type EventType string

const (
	EventStarted    EventType = "started"
	EventTranscript EventType = "transcript"
	EventResponse   EventType = "response"
	EventTool       EventType = "tool"
	EventHandoff    EventType = "handoff"
	EventUsage      EventType = "usage"
	EventError      EventType = "error"
	EventEnded      EventType = "ended"
)

// Event is something that happened in a session. Fields not relevant to the
// type are left empty.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	Room      string    `json:"room"`
	Agent     string    `json:"agent,omitempty"`
	Time      time.Time `json:"time"`

	// Text is the transcript, response or error message.
	Text string `json:"text,omitempty"`

	// Tool events
	Tool    string         `json:"tool,omitempty"`
	Args    map[string]any `json:"args,omitempty"`
	Result  string         `json:"result,omitempty"`
	Failed  bool           `json:"failed,omitempty"`
	Elapsed time.Duration  `json:"elapsed_ns,omitempty"`

	// Handoff events
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`

	// Usage events carry the increment, not the running total.
	LLMPromptTokens     int `json:"llm_prompt_tokens,omitempty"`
	LLMCompletionTokens int `json:"llm_completion_tokens,omitempty"`
	TTSCharacters       int `json:"tts_characters,omitempty"`
}
