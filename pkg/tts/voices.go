package tts

import "strings"

// Voice selects a speaker and speaking style.
type Voice struct {
	ID    string
	Style string
}

// Default Murf voice and style.
const (
	DefaultMurfVoice = "en-US-matthew"
	DefaultMurfStyle = "Conversation"
)

// MurfVoices maps friendly preset names to Murf voices.
var MurfVoices = map[string]Voice{
	"matthew": {ID: "en-US-matthew", Style: "Conversation"}, // American male, warm
	"alicia":  {ID: "en-US-alicia", Style: "Conversation"},  // American female, bright
	"ken":     {ID: "en-US-ken", Style: "Conversation"},     // American male, calm
	"natalie": {ID: "en-US-natalie", Style: "Promo"},        // American female, upbeat
}

// openAIFallback picks an OpenAI voice of similar character for each preset.
var openAIFallback = map[string]string{
	"en-US-matthew": VoiceOnyx,
	"en-US-alicia":  VoiceNova,
	"en-US-ken":     VoiceEcho,
	"en-US-natalie": VoiceShimmer,
}

// ResolveVoice returns the voice for a preset name, or a voice with the input
// as its ID if it is not a preset.
func ResolveVoice(name string) Voice {
	if v, ok := MurfVoices[strings.ToLower(name)]; ok {
		return v
	}
	return Voice{ID: name, Style: DefaultMurfStyle}
}

// IsPreset returns true if the name is a known preset.
func IsPreset(name string) bool {
	_, ok := MurfVoices[strings.ToLower(name)]
	return ok
}

// realtimeFallback maps presets to OpenAI Realtime voices, which differ from
// the speech endpoint's set.
var realtimeFallback = map[string]string{
	"en-US-matthew": "ash",
	"en-US-alicia":  "coral",
	"en-US-ken":     "echo",
	"en-US-natalie": "shimmer",
}

// RealtimeVoice maps a preset name or Murf voice ID to a Realtime API voice.
// Other IDs are returned unchanged; unknown Murf IDs map to def.
func RealtimeVoice(id, def string) string {
	if p, ok := MurfVoices[strings.ToLower(id)]; ok {
		id = p.ID
	}
	if v, ok := realtimeFallback[id]; ok {
		return v
	}
	if id == "" || strings.HasPrefix(id, "en-") {
		return def
	}
	return id
}
