package voice

import (
	"errors"
	"time"
)

// Provider identifies the voice pipeline implementation.
type Provider string

const (
	// ProviderCascade chains separate STT, LLM and TTS services (Deepgram, Gemini, Murf by default).
	ProviderCascade Provider = "cascade"

	// ProviderOpenAI uses OpenAI's Realtime API (speech-to-speech over one WebSocket).
	ProviderOpenAI Provider = "openai"
)

// TurnDetection selects who decides that the user has finished speaking.
type TurnDetection string

const (
	// TurnDetectionSTT relies on the speech-to-text service's endpointing.
	TurnDetectionSTT TurnDetection = "stt"

	// TurnDetectionServerVAD relies on the realtime server's voice activity detection.
	TurnDetectionServerVAD TurnDetection = "server_vad"
)

// Default stage choices.
const (
	DefaultSTTModel      = "nova-3"
	DefaultLLMModel      = "gemini-2.5-flash"
	DefaultTTSVoice      = "en-US-matthew"
	DefaultTTSStyle      = "Conversation"
	DefaultRealtimeVoice = "marin"
)

// Config holds all tunable parameters for voice pipelines.
// Parameters are organized by stage.
type Config struct {
	// Provider selection
	Provider Provider

	// API keys (provider-specific)
	OpenAIKey    string
	DeepgramKey  string
	GoogleAPIKey string
	MurfKey      string

	// Audio settings
	InputSampleRate  int // PCM16 mono input rate (default: 16000 cascade, 24000 realtime)
	OutputSampleRate int // PCM16 mono output rate (default: 24000)

	// VAD and turn detection
	VADThreshold       float64       // Activation threshold 0.0-1.0 (default: 0.5)
	VADPrefixPadding   time.Duration // Audio to include before speech start (default: 300ms)
	VADSilenceDuration time.Duration // Silence that ends a turn (default: 500ms)
	TurnDetection      TurnDetection

	// STT settings
	STTModel    string
	STTLanguage string
	TextOnly    bool // No audio stages; turns arrive through SendText

	// LLM settings
	LLMModel       string
	LLMBaseURL     string  // OpenAI-compatible endpoint; empty selects Gemini's
	LLMTemperature float64 // 0.0-2.0 (default: 0.8)
	LLMMaxTokens   int
	Instructions   string // System instructions of the active agent

	// TTS settings
	TTSVoice          string // Voice ID (Murf voice for cascade, realtime voice name for openai)
	TTSStyle          string // Speaking style (Murf)
	TTSMinSentenceLen int    // Minimum characters per synthesized sentence

	// Debug settings
	Debug          bool
	ProfileLatency bool
}

// DefaultConfig returns a Config for the cascade pipeline with the stock stage choices.
func DefaultConfig() Config {
	return Config{
		Provider: ProviderCascade,

		InputSampleRate:  16000,
		OutputSampleRate: 24000,

		VADThreshold:       0.5,
		VADPrefixPadding:   300 * time.Millisecond,
		VADSilenceDuration: 500 * time.Millisecond,
		TurnDetection:      TurnDetectionSTT,

		STTModel:    DefaultSTTModel,
		STTLanguage: "en",

		LLMModel:       DefaultLLMModel,
		LLMTemperature: 0.8,
		LLMMaxTokens:   1024,

		TTSVoice:          DefaultTTSVoice,
		TTSStyle:          DefaultTTSStyle,
		TTSMinSentenceLen: 2,
	}
}

// DefaultRealtimeConfig returns a Config for the OpenAI realtime pipeline.
func DefaultRealtimeConfig() Config {
	cfg := DefaultConfig()
	cfg.Provider = ProviderOpenAI
	cfg.InputSampleRate = 24000
	cfg.TurnDetection = TurnDetectionServerVAD
	cfg.LLMModel = ""
	cfg.TTSVoice = DefaultRealtimeVoice
	cfg.TTSStyle = ""
	return cfg
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderCascade:
		if c.GoogleAPIKey == "" && c.OpenAIKey == "" {
			return errors.New("voice: LLM API key required (Google or OpenAI)")
		}
		if !c.TextOnly {
			if c.DeepgramKey == "" {
				return errors.New("voice: Deepgram API key required")
			}
			if c.MurfKey == "" && c.OpenAIKey == "" {
				return errors.New("voice: TTS API key required (Murf or OpenAI)")
			}
		}
	case ProviderOpenAI:
		if c.OpenAIKey == "" {
			return errors.New("voice: OpenAI API key required")
		}
	default:
		return errors.New("voice: unknown provider: " + string(c.Provider))
	}

	if c.VADThreshold < 0 || c.VADThreshold > 1 {
		return errors.New("voice: VAD threshold must be between 0 and 1")
	}

	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		return errors.New("voice: LLM temperature must be between 0 and 2")
	}

	return nil
}

// WithProvider returns a copy with the provider set.
func (c Config) WithProvider(p Provider) Config {
	c.Provider = p
	return c
}

// WithInstructions returns a copy with the agent instructions set.
func (c Config) WithInstructions(instructions string) Config {
	c.Instructions = instructions
	return c
}

// WithVoice returns a copy with the TTS voice and style set.
// Empty values keep the current setting.
func (c Config) WithVoice(voiceID, style string) Config {
	if voiceID != "" {
		c.TTSVoice = voiceID
	}
	if style != "" {
		c.TTSStyle = style
	}
	return c
}

// WithVAD returns a copy with the VAD settings applied.
func (c Config) WithVAD(v *VAD) Config {
	if v == nil {
		return c
	}
	c.VADThreshold = v.Threshold
	c.VADPrefixPadding = v.PrefixPadding
	c.VADSilenceDuration = v.MinSilence
	return c
}

// WithTextOnly returns a copy with audio stages disabled.
func (c Config) WithTextOnly(textOnly bool) Config {
	c.TextOnly = textOnly
	return c
}

// WithDebug returns a copy with debug enabled.
func (c Config) WithDebug(debug bool) Config {
	c.Debug = debug
	return c
}
