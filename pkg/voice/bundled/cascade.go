package bundled

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-voiceagents/internal/log"
	"github.com/teslashibe/go-voiceagents/pkg/inference"
	"github.com/teslashibe/go-voiceagents/pkg/stt"
	"github.com/teslashibe/go-voiceagents/pkg/tts"
	"github.com/teslashibe/go-voiceagents/pkg/voice"
)

// maxToolRounds bounds model/tool exchanges within one turn.
const maxToolRounds = 5

// ErrToolRoundsExhausted is reported when the model keeps calling tools and
// never produces a reply for the turn.
var ErrToolRoundsExhausted = errors.New("voice/cascade: model did not reply after tool calls")

// finalRoundInstructions go with the request that follows the last allowed
// tool round; it carries no tools.
const finalRoundInstructions = "Reply to the user now in plain speech. No tools are available for this reply."

// ErrUnknownToolCall is returned by SubmitToolResult for a call ID that is not pending.
var ErrUnknownToolCall = errors.New("voice/cascade: unknown tool call")

// Stages are the services a Cascade chains together.
// STT and TTS may be nil for a text-only pipeline.
type Stages struct {
	STT stt.Provider
	LLM inference.Provider
	TTS tts.Provider
}

// turn is one unit of work for the responder goroutine.
type turn struct {
	user         string
	instructions string
}

// Cascade implements voice.Pipeline by chaining streaming STT, a chat model
// and sentence-by-sentence TTS.
type Cascade struct {
	stages    Stages
	tokenizer *tts.SentenceTokenizer
	logger    *slog.Logger
	metrics   *voice.MetricsCollector

	mu        sync.RWMutex
	config    voice.Config
	tools     []voice.Tool
	history   []inference.Message
	connected bool
	ctx       context.Context
	cancel    context.CancelFunc
	stream    stt.Stream
	turns     chan turn

	// turnCancel interrupts the turn in progress.
	turnMu     sync.Mutex
	turnCancel context.CancelFunc
	speaking   bool

	// pending holds external tool calls awaiting SubmitToolResult.
	pendingMu sync.Mutex
	pending   map[string]chan string

	// utterance accumulates final STT segments until end of speech.
	utterance strings.Builder

	onAudioOut    func(pcm16 []byte)
	onSpeechStart func()
	onSpeechEnd   func()
	onTranscript  func(text string, isFinal bool)
	onResponse    func(text string, isFinal bool)
	onUsage       func(u voice.Usage)
	onToolCall    func(call voice.ToolCall)
	onError       func(err error)
}

// NewCascade builds the stages from the config: Deepgram for speech
// recognition, an OpenAI-compatible chat endpoint (Gemini by default) and
// Murf speech with OpenAI TTS as fallback.
func NewCascade(cfg voice.Config) (*Cascade, error) {
	logger := log.Component("voice.cascade")
	var stages Stages

	llm, err := newLLM(cfg, logger)
	if err != nil {
		return nil, err
	}
	stages.LLM = llm

	if !cfg.TextOnly {
		stages.STT, err = stt.NewDeepgram(
			stt.WithAPIKey(cfg.DeepgramKey),
			stt.WithModel(cfg.STTModel),
			stt.WithLanguage(cfg.STTLanguage),
			stt.WithSampleRate(cfg.InputSampleRate),
			stt.WithEndpointing(cfg.VADSilenceDuration),
			stt.WithLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("voice/cascade: stt: %w", err)
		}

		stages.TTS, err = newTTS(cfg, logger)
		if err != nil {
			return nil, err
		}
	}

	return NewCascadeWith(cfg, stages)
}

// fallbackLLMModel answers when Gemini is unavailable and an OpenAI key is set.
const fallbackLLMModel = "gpt-4o-mini"

func newLLM(cfg voice.Config, logger *slog.Logger) (inference.Provider, error) {
	client := func(baseURL, key, model string) (inference.Provider, error) {
		c, err := inference.NewClient(
			inference.WithBaseURL(baseURL),
			inference.WithAPIKey(key),
			inference.WithModel(model),
			inference.WithMaxTokens(cfg.LLMMaxTokens),
			inference.WithTemperature(cfg.LLMTemperature),
			inference.WithLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("voice/cascade: llm: %w", err)
		}
		return c, nil
	}

	switch {
	case cfg.LLMBaseURL != "":
		key := cfg.GoogleAPIKey
		if key == "" {
			key = cfg.OpenAIKey
		}
		return client(cfg.LLMBaseURL, key, cfg.LLMModel)
	case cfg.GoogleAPIKey == "":
		model := cfg.LLMModel
		if strings.HasPrefix(model, "gemini") {
			model = fallbackLLMModel
		}
		return client(inference.OpenAIBaseURL, cfg.OpenAIKey, model)
	}

	gemini, err := client(inference.GeminiBaseURL, cfg.GoogleAPIKey, cfg.LLMModel)
	if err != nil || cfg.OpenAIKey == "" {
		return gemini, err
	}
	openai, err := client(inference.OpenAIBaseURL, cfg.OpenAIKey, fallbackLLMModel)
	if err != nil {
		return nil, err
	}
	return inference.NewFallback(logger,
		inference.Backend{Name: "gemini", Provider: gemini},
		inference.Backend{Name: "openai", Provider: openai},
	)
}

func newTTS(cfg voice.Config, logger *slog.Logger) (tts.Provider, error) {
	opts := []tts.Option{
		tts.WithVoice(cfg.TTSVoice),
		tts.WithStyle(cfg.TTSStyle),
		tts.WithOutputFormat(tts.EncodingPCM24),
		tts.WithLogger(logger),
	}

	var providers []tts.Named
	if cfg.MurfKey != "" {
		murf, err := tts.NewMurf(append(opts, tts.WithAPIKey(cfg.MurfKey))...)
		if err != nil {
			return nil, fmt.Errorf("voice/cascade: tts: %w", err)
		}
		providers = append(providers, tts.Named{Name: "murf", Provider: murf})
	}
	if cfg.OpenAIKey != "" {
		fallback, err := tts.NewOpenAI(append(opts, tts.WithAPIKey(cfg.OpenAIKey))...)
		if err != nil {
			return nil, fmt.Errorf("voice/cascade: tts fallback: %w", err)
		}
		providers = append(providers, tts.Named{Name: "openai", Provider: fallback})
	}

	if len(providers) == 1 {
		return providers[0].Provider, nil
	}
	return tts.NewFallback(logger, providers...)
}

// NewCascadeWith creates a cascade over explicit stages.
func NewCascadeWith(cfg voice.Config, stages Stages) (*Cascade, error) {
	if stages.LLM == nil {
		return nil, errors.New("voice/cascade: LLM stage required")
	}
	if !cfg.TextOnly && (stages.STT == nil || stages.TTS == nil) {
		return nil, voice.ErrNoAudioStages
	}

	minLen := cfg.TTSMinSentenceLen
	if minLen <= 0 {
		minLen = 2
	}

	return &Cascade{
		stages:    stages,
		tokenizer: tts.NewSentenceTokenizer(minLen),
		logger:    log.Component("voice.cascade"),
		metrics:   voice.NewMetricsCollector(),
		config:    cfg,
		pending:   make(map[string]chan string),
	}, nil
}

// Start opens the STT stream (unless text-only) and the responder loop.
func (c *Cascade) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return voice.ErrAlreadyStarted
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.turns = make(chan turn, 8)

	if c.stages.STT != nil && !c.config.TextOnly {
		stream, err := c.stages.STT.Stream(c.ctx)
		if err != nil {
			c.cancel()
			return fmt.Errorf("voice/cascade: open stt stream: %w", err)
		}
		c.stream = stream
		go c.listen(stream)
	}

	c.connected = true
	go c.respondLoop(c.ctx, c.turns)

	c.logger.Debug("started", "text_only", c.config.TextOnly)
	return nil
}

// Stop ends the session and releases the stages.
func (c *Cascade) Stop() error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil
	}
	c.connected = false
	stream := c.stream
	c.stream = nil
	c.cancel()
	c.mu.Unlock()

	c.Interrupt()

	var errs []error
	if stream != nil {
		errs = append(errs, stream.Close())
	}
	if c.stages.STT != nil {
		errs = append(errs, c.stages.STT.Close())
	}
	errs = append(errs, c.stages.LLM.Close())
	if c.stages.TTS != nil {
		errs = append(errs, c.stages.TTS.Close())
	}
	return errors.Join(errs...)
}

func (c *Cascade) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// SendAudio forwards PCM16 audio to speech recognition.
func (c *Cascade) SendAudio(pcm16 []byte) error {
	c.mu.RLock()
	stream, connected := c.stream, c.connected
	c.mu.RUnlock()

	if !connected {
		return voice.ErrNotConnected
	}
	if stream == nil {
		return voice.ErrNoAudioStages
	}

	c.metrics.IncrementAudioIn()
	return stream.Write(pcm16)
}

// SendText queues a user turn.
func (c *Cascade) SendText(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	c.metrics.MarkSpeechEnd()
	c.metrics.MarkTranscript()
	return c.enqueue(turn{user: text})
}

// GenerateReply queues a model turn without user input.
func (c *Cascade) GenerateReply(instructions string) error {
	c.metrics.MarkSpeechEnd()
	return c.enqueue(turn{instructions: instructions})
}

func (c *Cascade) enqueue(t turn) error {
	c.mu.RLock()
	connected, turns, ctx := c.connected, c.turns, c.ctx
	c.mu.RUnlock()
	if !connected {
		return voice.ErrNotConnected
	}
	select {
	case turns <- t:
		return nil
	case <-ctx.Done():
		return voice.ErrNotConnected
	}
}

func (c *Cascade) OnAudioOut(fn func(pcm16 []byte)) {
	c.onAudioOut = fn
}

func (c *Cascade) OnSpeechStart(fn func()) {
	c.onSpeechStart = fn
}

func (c *Cascade) OnSpeechEnd(fn func()) {
	c.onSpeechEnd = fn
}

func (c *Cascade) OnTranscript(fn func(text string, isFinal bool)) {
	c.onTranscript = fn
}

func (c *Cascade) OnResponse(fn func(text string, isFinal bool)) {
	c.onResponse = fn
}

func (c *Cascade) OnUsage(fn func(u voice.Usage)) {
	c.onUsage = fn
}

func (c *Cascade) OnError(fn func(err error)) {
	c.onError = fn
}

// SetTools replaces the tools offered to the model from the next request on.
func (c *Cascade) SetTools(tools []voice.Tool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tools = append([]voice.Tool(nil), tools...)
}

func (c *Cascade) OnToolCall(fn func(call voice.ToolCall)) {
	c.onToolCall = fn
}

// SubmitToolResult answers a call delivered through OnToolCall.
func (c *Cascade) SubmitToolResult(callID string, result string) error {
	c.pendingMu.Lock()
	ch, ok := c.pending[callID]
	delete(c.pending, callID)
	c.pendingMu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToolCall, callID)
	}
	ch <- result
	return nil
}

// Interrupt cancels the turn in progress, stopping speech.
func (c *Cascade) Interrupt() error {
	c.turnMu.Lock()
	defer c.turnMu.Unlock()
	if c.turnCancel != nil {
		c.turnCancel()
	}
	return nil
}

func (c *Cascade) Metrics() voice.Metrics {
	return c.metrics.Current()
}

func (c *Cascade) Config() voice.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config
}

// UpdateConfig applies new instructions and voice. A voice change reaches the
// TTS stage when it supports switching.
func (c *Cascade) UpdateConfig(cfg voice.Config) error {
	c.mu.Lock()
	prev := c.config
	c.config = cfg
	c.mu.Unlock()

	if c.stages.TTS == nil {
		return nil
	}
	if prev.TTSVoice == cfg.TTSVoice && prev.TTSStyle == cfg.TTSStyle {
		return nil
	}
	if vs, ok := c.stages.TTS.(tts.VoiceSwitcher); ok {
		if err := vs.SetVoice(tts.Voice{ID: cfg.TTSVoice, Style: cfg.TTSStyle}); err != nil {
			return fmt.Errorf("voice/cascade: switch voice: %w", err)
		}
		c.logger.Debug("voice switched", "voice", cfg.TTSVoice, "style", cfg.TTSStyle)
	}
	return nil
}

// History returns a copy of the conversation so far.
func (c *Cascade) History() []inference.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]inference.Message(nil), c.history...)
}

func (c *Cascade) reportError(err error) {
	c.logger.Warn("pipeline error", "error", err)
	if c.onError != nil {
		c.onError(err)
	}
}

func (c *Cascade) reportUsage(u voice.Usage) {
	if c.onUsage != nil && !u.IsZero() {
		c.onUsage(u)
	}
}

// listen turns STT results into user turns. Final segments accumulate until
// the recognizer marks the end of speech.
func (c *Cascade) listen(stream stt.Stream) {
	for r := range stream.Results() {
		switch r.Event {
		case stt.EventSpeechStarted:
			if c.onSpeechStart != nil {
				c.onSpeechStart()
			}
			c.bargeIn()

		case stt.EventUtteranceEnd:
			c.endOfSpeech()

		case stt.EventTranscript:
			if r.Duration > 0 && r.IsFinal {
				c.reportUsage(voice.Usage{STTAudioDuration: r.Duration})
			}
			if !r.IsFinal {
				if r.Text != "" && c.onTranscript != nil {
					c.onTranscript(r.Text, false)
				}
				continue
			}
			if r.Text != "" {
				if c.utterance.Len() > 0 {
					c.utterance.WriteByte(' ')
				}
				c.utterance.WriteString(r.Text)
			}
			if r.SpeechFinal {
				c.endOfSpeech()
			}
		}
	}
}

func (c *Cascade) endOfSpeech() {
	text := strings.TrimSpace(c.utterance.String())
	c.utterance.Reset()
	if text == "" {
		return
	}

	c.metrics.MarkSpeechEnd()
	if c.onSpeechEnd != nil {
		c.onSpeechEnd()
	}
	c.metrics.MarkTranscript()
	if c.onTranscript != nil {
		c.onTranscript(text, true)
	}

	if err := c.enqueue(turn{user: text}); err != nil {
		c.logger.Debug("dropped turn", "error", err)
	}
}

// bargeIn stops the agent when the user starts talking over it.
func (c *Cascade) bargeIn() {
	c.turnMu.Lock()
	speaking := c.speaking
	c.turnMu.Unlock()
	if speaking {
		c.logger.Debug("barge-in")
		c.Interrupt()
	}
}

func (c *Cascade) respondLoop(ctx context.Context, turns <-chan turn) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-turns:
			turnCtx, cancel := context.WithCancel(ctx)
			c.turnMu.Lock()
			c.turnCancel = cancel
			c.turnMu.Unlock()

			c.respond(turnCtx, t)

			c.turnMu.Lock()
			c.turnCancel = nil
			c.speaking = false
			c.turnMu.Unlock()
			cancel()
		}
	}
}

// messages assembles the request: current instructions, the history and any
// per-turn instructions.
func (c *Cascade) messages(extra string) ([]inference.Message, []voice.Tool, voice.Config) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	msgs := make([]inference.Message, 0, len(c.history)+2)
	if c.config.Instructions != "" {
		msgs = append(msgs, inference.NewSystemMessage(c.config.Instructions))
	}
	msgs = append(msgs, c.history...)
	if extra != "" {
		msgs = append(msgs, inference.NewSystemMessage(extra))
	}
	return msgs, c.tools, c.config
}

func (c *Cascade) appendHistory(msgs ...inference.Message) {
	c.mu.Lock()
	c.history = append(c.history, msgs...)
	c.mu.Unlock()
}

// respond runs one turn: chat, execute any tool calls, repeat, then speak.
func (c *Cascade) respond(ctx context.Context, t turn) {
	if t.user != "" {
		c.appendHistory(inference.NewUserMessage(t.user))
	}

	for round := 0; round <= maxToolRounds; round++ {
		final := round == maxToolRounds
		extra := t.instructions
		if final {
			c.logger.Warn("tool rounds exhausted, asking for a reply without tools", "max", maxToolRounds)
			extra = strings.TrimSpace(extra + "\n" + finalRoundInstructions)
		}
		msgs, tools, cfg := c.messages(extra)

		req := &inference.ChatRequest{
			Messages:    msgs,
			MaxTokens:   cfg.LLMMaxTokens,
			Temperature: cfg.LLMTemperature,
		}
		if !final {
			req.Tools = inferenceTools(tools)
		}

		resp, err := c.stages.LLM.Chat(ctx, req)
		if err != nil {
			if ctx.Err() == nil {
				c.reportError(fmt.Errorf("voice/cascade: llm: %w", err))
			}
			return
		}
		c.metrics.MarkFirstToken()
		c.reportUsage(voice.Usage{
			LLMPromptTokens:     resp.Usage.PromptTokens,
			LLMCompletionTokens: resp.Usage.CompletionTokens,
		})

		if !resp.HasToolCalls() {
			text := strings.TrimSpace(resp.Message.Content)
			if text == "" {
				if final {
					c.reportError(ErrToolRoundsExhausted)
				}
				return
			}
			c.appendHistory(inference.NewAssistantMessage(text))
			c.speak(ctx, text)
			if c.onResponse != nil {
				c.onResponse(text, true)
			}
			c.metrics.MarkResponseDone()
			if cfg.ProfileLatency {
				m := c.metrics.Current()
				c.logger.Info("latency", "turn", m.FormatLatency())
			}
			return
		}

		if final {
			break
		}

		c.appendHistory(resp.Message)
		results := c.callTools(ctx, tools, resp.Message.ToolCalls)
		if ctx.Err() != nil {
			return
		}
		for i, call := range resp.Message.ToolCalls {
			c.appendHistory(inference.NewToolMessage(call.ID, call.Name, results[i].Result))
		}
	}

	c.reportError(ErrToolRoundsExhausted)
}

// callTools executes the model's calls, either internally or through the
// OnToolCall override, and returns results in call order.
func (c *Cascade) callTools(ctx context.Context, tools []voice.Tool, calls []inference.ToolCall) []voice.ToolResult {
	voiceCalls := make([]voice.ToolCall, len(calls))
	for i, call := range calls {
		args := map[string]any{}
		if call.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
				c.logger.Warn("invalid tool arguments", "tool", call.Name, "error", err)
			}
		}
		voiceCalls[i] = voice.ToolCall{ID: call.ID, Name: call.Name, Arguments: args}
		c.metrics.MarkToolCall()
		c.logger.Debug("tool call", "tool", call.Name)
	}

	if c.onToolCall == nil {
		return runTools(tools, voiceCalls)
	}

	results := make([]voice.ToolResult, len(voiceCalls))
	waits := make([]chan string, len(voiceCalls))
	for i, call := range voiceCalls {
		waits[i] = make(chan string, 1)
		c.pendingMu.Lock()
		c.pending[call.ID] = waits[i]
		c.pendingMu.Unlock()
		c.onToolCall(call)
	}
	for i, call := range voiceCalls {
		select {
		case r := <-waits[i]:
			results[i] = voice.ToolResult{CallID: call.ID, Result: r}
		case <-ctx.Done():
			c.pendingMu.Lock()
			for _, pc := range voiceCalls {
				delete(c.pending, pc.ID)
			}
			c.pendingMu.Unlock()
			return results
		}
	}
	return results
}

// speak synthesizes text sentence by sentence. Cancelling ctx stops playback
// between chunks.
func (c *Cascade) speak(ctx context.Context, text string) {
	if c.stages.TTS == nil || c.Config().TextOnly {
		return
	}

	c.turnMu.Lock()
	c.speaking = true
	c.turnMu.Unlock()

	var chars int
	defer func() {
		c.reportUsage(voice.Usage{TTSCharacters: chars})
	}()

	for _, sentence := range c.tokenizer.Split(text) {
		if ctx.Err() != nil {
			return
		}

		start := time.Now()
		stream, err := c.stages.TTS.Stream(ctx, sentence)
		if err != nil {
			if ctx.Err() == nil {
				c.reportError(fmt.Errorf("voice/cascade: tts: %w", err))
			}
			return
		}
		chars += len([]rune(sentence))

		for {
			chunk, err := stream.Read()
			if err != nil {
				if ctx.Err() == nil {
					c.reportError(fmt.Errorf("voice/cascade: tts read: %w", err))
				}
				stream.Close()
				return
			}
			if chunk == nil {
				break
			}
			c.metrics.MarkFirstAudio()
			c.metrics.IncrementAudioOut()
			if c.onAudioOut != nil {
				c.onAudioOut(chunk)
			}
			if ctx.Err() != nil {
				stream.Close()
				return
			}
		}
		stream.Close()
		c.logger.Debug("sentence spoken", "chars", len(sentence), "elapsed_ms", time.Since(start).Milliseconds())
	}
}

func inferenceTools(tools []voice.Tool) []inference.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]inference.Tool, len(tools))
	for i, t := range tools {
		params := t.Parameters
		if params == nil {
			params = voice.ObjectSchema(nil)
		}
		out[i] = inference.NewTool(t.Name, t.Description, params)
	}
	return out
}

var _ voice.Pipeline = (*Cascade)(nil)

func init() {
	voice.Register(voice.ProviderCascade, func(cfg voice.Config) (voice.Pipeline, error) {
		return NewCascade(cfg)
	})
}
