// Package bundled provides the voice pipeline implementations.
//
// Importing the package registers both providers with voice.Register:
//
//	import _ "github.com/teslashibe/go-voiceagents/pkg/voice/bundled"
//
//	p, err := voice.New(cfg) // cascade or openai, by cfg.Provider
package bundled

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teslashibe/go-voiceagents/internal/log"
	"github.com/teslashibe/go-voiceagents/pkg/tts"
	"github.com/teslashibe/go-voiceagents/pkg/voice"
)

const (
	openAIRealtimeURL = "wss://api.openai.com/v1/realtime"
	openAIModel       = "gpt-realtime"
)

// openAIPendingToolCall represents a tool call waiting to be executed.
type openAIPendingToolCall struct {
	Name   string
	CallID string
	Args   map[string]any
}

// OpenAIOption configures the realtime pipeline.
type OpenAIOption func(*OpenAI)

// WithRealtimeURL overrides the realtime WebSocket endpoint.
func WithRealtimeURL(u string) OpenAIOption {
	return func(o *OpenAI) { o.baseURL = u }
}

// OpenAI implements voice.Pipeline using OpenAI's Realtime API.
// Speech recognition, the model and speech synthesis share a single WebSocket.
type OpenAI struct {
	config  voice.Config
	baseURL string
	logger  *slog.Logger

	ws   *websocket.Conn
	wsMu sync.Mutex

	mu           sync.RWMutex
	tools        []voice.Tool
	connected    bool
	sessionReady bool
	closed       bool
	ctx          context.Context
	cancel       context.CancelFunc

	// Parallel tool execution
	pendingTools   []openAIPendingToolCall
	pendingToolsMu sync.Mutex
	toolBatchTimer *time.Timer

	metrics *voice.MetricsCollector

	onAudioOut    func(pcm16 []byte)
	onSpeechStart func()
	onSpeechEnd   func()
	onTranscript  func(text string, isFinal bool)
	onResponse    func(text string, isFinal bool)
	onUsage       func(u voice.Usage)
	onToolCall    func(call voice.ToolCall)
	onError       func(err error)
}

// NewOpenAI creates a new OpenAI Realtime pipeline.
func NewOpenAI(cfg voice.Config, opts ...OpenAIOption) (*OpenAI, error) {
	if cfg.OpenAIKey == "" {
		return nil, voice.ErrMissingAPIKey
	}

	o := &OpenAI{
		config:  cfg,
		baseURL: openAIRealtimeURL,
		logger:  log.Component("voice.openai"),
		metrics: voice.NewMetricsCollector(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

func (o *OpenAI) model() string {
	if o.config.LLMModel != "" {
		return o.config.LLMModel
	}
	return openAIModel
}

// Start establishes the WebSocket connection and configures the session.
func (o *OpenAI) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.connected {
		o.mu.Unlock()
		return voice.ErrAlreadyStarted
	}
	o.mu.Unlock()

	o.ctx, o.cancel = context.WithCancel(ctx)

	endpoint := o.baseURL + "?model=" + url.QueryEscape(o.model())

	header := http.Header{}
	header.Set("Authorization", "Bearer "+o.config.OpenAIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	ws, resp, err := dialer.DialContext(o.ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("voice/openai: failed to connect: %w (status %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("voice/openai: failed to connect: %w", err)
	}
	if resp != nil && o.config.Debug {
		o.logger.Debug("connected", "request_id", resp.Header.Get("X-Request-Id"))
	}

	o.wsMu.Lock()
	o.ws = ws
	o.wsMu.Unlock()

	o.mu.Lock()
	o.connected = true
	o.closed = false
	o.mu.Unlock()

	if err := o.configureSession(); err != nil {
		o.Stop()
		return fmt.Errorf("voice/openai: failed to configure session: %w", err)
	}

	go o.handleMessages()

	return nil
}

// Stop gracefully shuts down the pipeline.
func (o *OpenAI) Stop() error {
	o.mu.Lock()
	o.closed = true
	o.connected = false
	o.mu.Unlock()

	if o.cancel != nil {
		o.cancel()
	}

	o.pendingToolsMu.Lock()
	if o.toolBatchTimer != nil {
		o.toolBatchTimer.Stop()
		o.toolBatchTimer = nil
	}
	o.pendingTools = nil
	o.pendingToolsMu.Unlock()

	o.wsMu.Lock()
	defer o.wsMu.Unlock()
	if o.ws != nil {
		return o.ws.Close()
	}
	return nil
}

// IsConnected returns true once the server has created the session.
func (o *OpenAI) IsConnected() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.connected && o.sessionReady && !o.closed
}

func (o *OpenAI) live() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.connected && !o.closed
}

// SendAudio appends PCM16 audio to the server's input buffer.
func (o *OpenAI) SendAudio(pcm16 []byte) error {
	if !o.live() {
		return voice.ErrNotConnected
	}
	o.metrics.IncrementAudioIn()

	return o.sendJSON(map[string]any{
		"type":  "input_audio_buffer.append",
		"audio": base64.StdEncoding.EncodeToString(pcm16),
	})
}

// SendText adds a user message and requests a response.
func (o *OpenAI) SendText(text string) error {
	if !o.live() {
		return voice.ErrNotConnected
	}
	o.metrics.MarkSpeechEnd()
	o.metrics.MarkTranscript()

	msg := map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type": "message",
			"role": "user",
			"content": []map[string]any{
				{"type": "input_text", "text": text},
			},
		},
	}
	if err := o.sendJSON(msg); err != nil {
		return err
	}
	return o.sendJSON(map[string]string{"type": "response.create"})
}

// GenerateReply requests a response guided by extra instructions.
func (o *OpenAI) GenerateReply(instructions string) error {
	if !o.live() {
		return voice.ErrNotConnected
	}
	o.metrics.MarkSpeechEnd()

	msg := map[string]any{"type": "response.create"}
	if instructions != "" {
		o.mu.RLock()
		base := o.config.Instructions
		o.mu.RUnlock()
		msg["response"] = map[string]any{
			"instructions": base + "\n\n" + instructions,
		}
	}
	return o.sendJSON(msg)
}

func (o *OpenAI) OnAudioOut(fn func(pcm16 []byte)) {
	o.onAudioOut = fn
}

func (o *OpenAI) OnSpeechStart(fn func()) {
	o.onSpeechStart = fn
}

func (o *OpenAI) OnSpeechEnd(fn func()) {
	o.onSpeechEnd = fn
}

func (o *OpenAI) OnTranscript(fn func(text string, isFinal bool)) {
	o.onTranscript = fn
}

func (o *OpenAI) OnResponse(fn func(text string, isFinal bool)) {
	o.onResponse = fn
}

func (o *OpenAI) OnUsage(fn func(u voice.Usage)) {
	o.onUsage = fn
}

func (o *OpenAI) OnError(fn func(err error)) {
	o.onError = fn
}

// SetTools replaces the tools and, when connected, pushes them to the session.
func (o *OpenAI) SetTools(tools []voice.Tool) {
	o.mu.Lock()
	o.tools = append([]voice.Tool(nil), tools...)
	o.mu.Unlock()

	if o.live() {
		if err := o.configureSession(); err != nil {
			o.reportError(fmt.Errorf("voice/openai: update tools: %w", err))
		}
	}
}

// OnToolCall sets the callback for tool invocations.
func (o *OpenAI) OnToolCall(fn func(call voice.ToolCall)) {
	o.onToolCall = fn
}

// SubmitToolResult returns a tool result and requests the follow-up response.
func (o *OpenAI) SubmitToolResult(callID string, result string) error {
	if err := o.sendToolOutput(callID, result); err != nil {
		return err
	}
	return o.sendJSON(map[string]string{"type": "response.create"})
}

func (o *OpenAI) sendToolOutput(callID, result string) error {
	return o.sendJSON(map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type":    "function_call_output",
			"call_id": callID,
			"output":  result,
		},
	})
}

// Interrupt cancels the response in progress.
func (o *OpenAI) Interrupt() error {
	return o.sendJSON(map[string]string{"type": "response.cancel"})
}

// Metrics returns current latency metrics.
func (o *OpenAI) Metrics() voice.Metrics {
	return o.metrics.Current()
}

// Config returns the current configuration.
func (o *OpenAI) Config() voice.Config {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.config
}

// UpdateConfig applies new instructions, voice and VAD settings.
// The realtime model itself only changes on reconnect.
func (o *OpenAI) UpdateConfig(cfg voice.Config) error {
	o.mu.Lock()
	o.config = cfg
	o.mu.Unlock()

	if o.live() {
		return o.configureSession()
	}
	return nil
}

// sessionPayload builds the session.update body from the current config and tools.
func (o *OpenAI) sessionPayload() map[string]any {
	o.mu.RLock()
	cfg := o.config
	tools := o.tools
	o.mu.RUnlock()

	voiceName := tts.RealtimeVoice(cfg.TTSVoice, voice.DefaultRealtimeVoice)

	apiTools := make([]map[string]any, len(tools))
	for i, tool := range tools {
		params := tool.Parameters
		if params == nil {
			params = voice.ObjectSchema(nil)
		}
		apiTools[i] = map[string]any{
			"type":        "function",
			"name":        tool.Name,
			"description": tool.Description,
			"parameters":  params,
		}
	}

	prefixPaddingMs := int(cfg.VADPrefixPadding.Milliseconds())
	if prefixPaddingMs == 0 {
		prefixPaddingMs = 300
	}
	silenceDurationMs := int(cfg.VADSilenceDuration.Milliseconds())
	if silenceDurationMs == 0 {
		silenceDurationMs = 500
	}
	threshold := cfg.VADThreshold
	if threshold == 0 {
		threshold = 0.5
	}

	modalities := []string{"text", "audio"}
	if cfg.TextOnly {
		modalities = []string{"text"}
	}

	return map[string]any{
		"modalities":          modalities,
		"instructions":        cfg.Instructions,
		"voice":               voiceName,
		"input_audio_format":  "pcm16",
		"output_audio_format": "pcm16",
		"input_audio_transcription": map[string]any{
			"model": "whisper-1",
		},
		"turn_detection": map[string]any{
			"type":                "server_vad",
			"threshold":           threshold,
			"prefix_padding_ms":   prefixPaddingMs,
			"silence_duration_ms": silenceDurationMs,
		},
		"tools":       apiTools,
		"tool_choice": "auto",
	}
}

func (o *OpenAI) configureSession() error {
	return o.sendJSON(map[string]any{
		"type":    "session.update",
		"session": o.sessionPayload(),
	})
}

func (o *OpenAI) reportError(err error) {
	o.logger.Warn("pipeline error", "error", err)
	if o.onError != nil {
		o.onError(err)
	}
}

// handleMessages processes incoming WebSocket messages until the socket closes.
func (o *OpenAI) handleMessages() {
	for {
		if !o.live() {
			return
		}

		_, message, err := o.ws.ReadMessage()
		if err != nil {
			if o.live() {
				o.reportError(err)
			}
			return
		}

		var msg map[string]any
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		msgType, _ := msg["type"].(string)

		switch msgType {
		case "session.created":
			o.mu.Lock()
			o.sessionReady = true
			o.mu.Unlock()
			o.logger.Debug("session created")

		case "session.updated":
			o.logger.Debug("session configured")

		case "input_audio_buffer.speech_started":
			if o.onSpeechStart != nil {
				o.onSpeechStart()
			}

		case "input_audio_buffer.speech_stopped":
			o.metrics.MarkSpeechEnd()
			if o.onSpeechEnd != nil {
				o.onSpeechEnd()
			}

		case "conversation.item.input_audio_transcription.completed":
			o.metrics.MarkTranscript()
			if transcript, ok := msg["transcript"].(string); ok && o.onTranscript != nil {
				o.onTranscript(transcript, true)
			}

		case "response.audio.delta":
			o.metrics.MarkFirstAudio()
			o.metrics.IncrementAudioOut()
			if delta, ok := msg["delta"].(string); ok && o.onAudioOut != nil {
				if audio, err := base64.StdEncoding.DecodeString(delta); err == nil {
					o.onAudioOut(audio)
				}
			}

		case "response.audio_transcript.delta", "response.text.delta":
			o.metrics.MarkFirstToken()
			if delta, ok := msg["delta"].(string); ok && o.onResponse != nil {
				o.onResponse(delta, false)
			}

		case "response.audio_transcript.done":
			if transcript, ok := msg["transcript"].(string); ok && o.onResponse != nil {
				o.onResponse(transcript, true)
			}

		case "response.text.done":
			if text, ok := msg["text"].(string); ok && o.onResponse != nil {
				o.onResponse(text, true)
			}

		case "response.done":
			o.metrics.MarkResponseDone()
			if o.config.ProfileLatency {
				m := o.metrics.Current()
				o.logger.Info("latency", "turn", m.FormatLatency())
			}
			o.handleResponseDone(msg)

		case "response.function_call_arguments.done":
			o.handleFunctionCall(msg)

		case "error":
			if errData, ok := msg["error"].(map[string]any); ok {
				errMsg, _ := errData["message"].(string)
				o.reportError(fmt.Errorf("voice/openai: API error: %s", errMsg))
			}

		default:
			if o.config.Debug && msgType != "" {
				o.logger.Debug("message", "type", msgType)
			}
		}
	}
}

// handleResponseDone reports token usage of a finished response.
func (o *OpenAI) handleResponseDone(msg map[string]any) {
	if o.onUsage == nil {
		return
	}
	resp, _ := msg["response"].(map[string]any)
	usage, _ := resp["usage"].(map[string]any)
	if usage == nil {
		return
	}
	in, _ := usage["input_tokens"].(float64)
	out, _ := usage["output_tokens"].(float64)
	o.onUsage(voice.Usage{
		LLMPromptTokens:     int(in),
		LLMCompletionTokens: int(out),
	})
}

// Tool batch execution window
const openAIToolBatchWindow = 50 * time.Millisecond

// handleFunctionCall queues a tool call for parallel execution.
func (o *OpenAI) handleFunctionCall(msg map[string]any) {
	name, _ := msg["name"].(string)
	callID, _ := msg["call_id"].(string)
	argsStr, _ := msg["arguments"].(string)

	o.logger.Debug("tool queued", "tool", name)
	o.metrics.MarkToolCall()

	var args map[string]any
	if err := json.Unmarshal([]byte(argsStr), &args); err != nil {
		args = make(map[string]any)
	}

	if o.onToolCall != nil {
		o.onToolCall(voice.ToolCall{ID: callID, Name: name, Arguments: args})
		return
	}

	o.pendingToolsMu.Lock()
	o.pendingTools = append(o.pendingTools, openAIPendingToolCall{
		Name:   name,
		CallID: callID,
		Args:   args,
	})
	if o.toolBatchTimer != nil {
		o.toolBatchTimer.Stop()
	}
	o.toolBatchTimer = time.AfterFunc(openAIToolBatchWindow, o.executeToolBatch)
	o.pendingToolsMu.Unlock()
}

// executeToolBatch executes all pending tools in parallel.
func (o *OpenAI) executeToolBatch() {
	o.pendingToolsMu.Lock()
	pending := o.pendingTools
	o.pendingTools = nil
	o.pendingToolsMu.Unlock()

	if len(pending) == 0 {
		return
	}

	calls := make([]voice.ToolCall, len(pending))
	for i, p := range pending {
		calls[i] = voice.ToolCall{ID: p.CallID, Name: p.Name, Arguments: p.Args}
	}

	o.mu.RLock()
	tools := o.tools
	o.mu.RUnlock()

	start := time.Now()
	results := runTools(tools, calls)
	o.logger.Debug("tools completed", "count", len(calls), "elapsed_ms", time.Since(start).Milliseconds())

	if !o.live() {
		return
	}

	for _, r := range results {
		if err := o.sendToolOutput(r.CallID, r.Result); err != nil {
			o.reportError(fmt.Errorf("voice/openai: send tool result: %w", err))
			return
		}
	}

	if err := o.sendJSON(map[string]string{"type": "response.create"}); err != nil {
		o.reportError(fmt.Errorf("voice/openai: request response: %w", err))
	}
}

// sendJSON sends a JSON message over the WebSocket.
func (o *OpenAI) sendJSON(v any) error {
	o.wsMu.Lock()
	defer o.wsMu.Unlock()

	if o.ws == nil {
		return voice.ErrNotConnected
	}
	return o.ws.WriteJSON(v)
}

var _ voice.Pipeline = (*OpenAI)(nil)

func init() {
	voice.Register(voice.ProviderOpenAI, func(cfg voice.Config) (voice.Pipeline, error) {
		return NewOpenAI(cfg)
	})
}
