package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Common errors returned by pipelines.
var (
	ErrNotConnected    = errors.New("voice: pipeline not connected")
	ErrAlreadyStarted  = errors.New("voice: pipeline already started")
	ErrMissingAPIKey   = errors.New("voice: missing API key")
	ErrNoAudioStages   = errors.New("voice: pipeline has no audio stages")
	ErrUnknownProvider = errors.New("voice: no pipeline implementation registered")
)

// Pipeline is one live conversation with the speech services.
// Implementations must be safe for callbacks to fire on their own goroutines.
type Pipeline interface {
	// Lifecycle

	// Start establishes connections and begins processing.
	// Call this after setting tools and callbacks.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the pipeline.
	Stop() error

	// IsConnected returns true if the pipeline is connected and ready.
	IsConnected() bool

	// Input

	// SendAudio sends PCM16 mono audio at Config().InputSampleRate.
	SendAudio(pcm16 []byte) error

	// SendText injects a user turn as text (console mode, dashboard).
	SendText(text string) error

	// GenerateReply asks the model to speak without user input, guided by
	// the extra instructions (e.g. a greeting when the session starts).
	GenerateReply(instructions string) error

	// Events

	OnAudioOut(fn func(pcm16 []byte))
	OnSpeechStart(fn func())
	OnSpeechEnd(fn func())

	// OnTranscript is called with the user's transcribed speech.
	OnTranscript(fn func(text string, isFinal bool))

	// OnResponse is called with the agent's text response.
	OnResponse(fn func(text string, isFinal bool))

	// OnUsage is called whenever a stage reports consumption.
	OnUsage(fn func(u Usage))

	OnError(fn func(err error))

	// Tools

	// SetTools replaces the tools the model may invoke.
	// Safe to call while connected; takes effect on the next turn.
	SetTools(tools []Tool)

	// OnToolCall overrides internal tool execution. When set, the caller must
	// answer every call with SubmitToolResult.
	OnToolCall(fn func(call ToolCall))

	// SubmitToolResult returns a tool call result to the model.
	SubmitToolResult(callID string, result string) error

	// Control

	// Interrupt stops the current response (barge-in).
	Interrupt() error

	// Metrics & Config

	Metrics() Metrics
	Config() Config

	// UpdateConfig applies new settings (instructions, voice, VAD).
	UpdateConfig(cfg Config) error
}

// PipelineFactory creates a Pipeline from a configuration.
type PipelineFactory func(cfg Config) (Pipeline, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[Provider]PipelineFactory)
)

// Register installs the factory for a provider.
// Bundled implementations call this from init().
func Register(p Provider, f PipelineFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[p] = f
}

// New creates a Pipeline for cfg.Provider.
// Returns an error if the config is invalid or no factory is registered.
func New(cfg Config) (Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	factoriesMu.RLock()
	f, ok := factories[cfg.Provider]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}

	return f(cfg)
}

// Callbacks groups all pipeline callbacks for convenience.
type Callbacks struct {
	OnAudioOut    func(pcm16 []byte)
	OnSpeechStart func()
	OnSpeechEnd   func()
	OnTranscript  func(text string, isFinal bool)
	OnResponse    func(text string, isFinal bool)
	OnUsage       func(u Usage)
	OnToolCall    func(call ToolCall)
	OnError       func(err error)
}

// Apply sets all non-nil callbacks on a pipeline.
func (c *Callbacks) Apply(p Pipeline) {
	if c.OnAudioOut != nil {
		p.OnAudioOut(c.OnAudioOut)
	}
	if c.OnSpeechStart != nil {
		p.OnSpeechStart(c.OnSpeechStart)
	}
	if c.OnSpeechEnd != nil {
		p.OnSpeechEnd(c.OnSpeechEnd)
	}
	if c.OnTranscript != nil {
		p.OnTranscript(c.OnTranscript)
	}
	if c.OnResponse != nil {
		p.OnResponse(c.OnResponse)
	}
	if c.OnUsage != nil {
		p.OnUsage(c.OnUsage)
	}
	if c.OnToolCall != nil {
		p.OnToolCall(c.OnToolCall)
	}
	if c.OnError != nil {
		p.OnError(c.OnError)
	}
}
