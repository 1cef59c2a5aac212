package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-voiceagents/pkg/voice"
)

// Session errors.
var (
	ErrSessionClosed = errors.New("agent: session closed")
	ErrUnknownTool   = errors.New("agent: unknown tool")
)

// Session drives one conversation: it owns the pipeline, the active agent and
// the usage totals, and fans events out to subscribers.
type Session struct {
	id       string
	room     string
	pipeline voice.Pipeline
	logger   *slog.Logger
	usage    *voice.UsageCollector

	mu      sync.RWMutex
	agent   Agent
	started bool
	closed  bool

	subsMu    sync.RWMutex
	nextSub   int
	subs      map[int]func(Event)
	audioSubs map[int]func([]byte)
}

// NewSession wraps a pipeline. Call Start to begin the conversation.
func NewSession(id, room string, p voice.Pipeline, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		id:        id,
		room:      room,
		pipeline:  p,
		logger:    logger,
		usage:     voice.NewUsageCollector(),
		subs:      make(map[int]func(Event)),
		audioSubs: make(map[int]func([]byte)),
	}
}

func (s *Session) ID() string   { return s.id }
func (s *Session) Room() string { return s.room }

// Pipeline returns the underlying pipeline.
func (s *Session) Pipeline() voice.Pipeline { return s.pipeline }

// Subscribe registers fn for every session event. The returned func removes it.
func (s *Session) Subscribe(fn func(Event)) (cancel func()) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
	}
}

// SubscribeAudio registers fn for synthesized PCM16 audio.
func (s *Session) SubscribeAudio(fn func(pcm16 []byte)) (cancel func()) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.audioSubs[id] = fn
	return func() {
		s.subsMu.Lock()
		delete(s.audioSubs, id)
		s.subsMu.Unlock()
	}
}

func (s *Session) emit(e Event) {
	e.SessionID = s.id
	e.Room = s.room
	if e.Agent == "" {
		e.Agent = s.Agent().Name
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	s.subsMu.RLock()
	subs := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subsMu.RUnlock()

	for _, fn := range subs {
		fn(e)
	}
}

func (s *Session) emitAudio(pcm16 []byte) {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	for _, fn := range s.audioSubs {
		fn(pcm16)
	}
}

// Start activates the agent and starts the pipeline.
func (s *Session) Start(ctx context.Context, a Agent) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.started {
		s.mu.Unlock()
		return voice.ErrAlreadyStarted
	}
	s.started = true
	s.agent = a
	s.mu.Unlock()

	if err := s.pipeline.UpdateConfig(a.apply(s.pipeline.Config())); err != nil {
		return fmt.Errorf("agent: configure %s: %w", a.Name, err)
	}
	s.pipeline.SetTools(s.wrapTools(a.Tools))

	cb := voice.Callbacks{
		OnAudioOut: s.emitAudio,
		OnTranscript: func(text string, isFinal bool) {
			if isFinal && text != "" {
				s.logger.Info("user", "text", text)
				s.emit(Event{Type: EventTranscript, Text: text})
			}
		},
		OnResponse: func(text string, isFinal bool) {
			if isFinal && text != "" {
				s.logger.Info("agent", "agent", s.Agent().Name, "text", text)
				s.emit(Event{Type: EventResponse, Text: text})
			}
		},
		OnUsage: func(u voice.Usage) {
			s.usage.Collect(u)
			s.emit(Event{
				Type:                EventUsage,
				LLMPromptTokens:     u.LLMPromptTokens,
				LLMCompletionTokens: u.LLMCompletionTokens,
				TTSCharacters:       u.TTSCharacters,
			})
		},
		OnError: func(err error) {
			s.logger.Error("pipeline error", "error", err)
			s.emit(Event{Type: EventError, Text: err.Error()})
		},
	}
	cb.Apply(s.pipeline)

	if err := s.pipeline.Start(ctx); err != nil {
		return fmt.Errorf("agent: start pipeline: %w", err)
	}
	s.logger.Info("session started", "agent", a.Name, "tools", a.ToolNames())
	s.emit(Event{Type: EventStarted})

	if a.Greeting != "" {
		if err := s.pipeline.GenerateReply(a.Greeting); err != nil {
			return fmt.Errorf("agent: greeting: %w", err)
		}
	}
	return nil
}

// Agent returns the active agent.
func (s *Session) Agent() Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.agent
}

// UpdateAgent hands the conversation to another agent. The history is kept;
// instructions, tools and voice are replaced from the next model request on.
// Safe to call from inside a tool handler.
func (s *Session) UpdateAgent(a Agent) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	prev := s.agent
	s.agent = a
	s.mu.Unlock()

	if err := s.pipeline.UpdateConfig(a.apply(s.pipeline.Config())); err != nil {
		return fmt.Errorf("agent: handoff to %s: %w", a.Name, err)
	}
	s.pipeline.SetTools(s.wrapTools(a.Tools))

	s.logger.Info("handoff", "from", prev.Name, "to", a.Name)
	s.emit(Event{Type: EventHandoff, Agent: a.Name, From: prev.Name, To: a.Name})
	return nil
}

// wrapTools reports every invocation as an EventTool.
func (s *Session) wrapTools(tools []voice.Tool) []voice.Tool {
	wrapped := make([]voice.Tool, len(tools))
	for i, t := range tools {
		t := t
		handler := t.Handler
		if handler == nil {
			wrapped[i] = t
			continue
		}
		t.Handler = func(args map[string]any) (string, error) {
			agentName := s.Agent().Name
			start := time.Now()
			result, err := handler(args)

			e := Event{
				Type:    EventTool,
				Agent:   agentName,
				Tool:    t.Name,
				Args:    args,
				Result:  result,
				Elapsed: time.Since(start),
			}
			if err != nil {
				e.Failed = true
				e.Result = err.Error()
				s.logger.Warn("tool failed", "tool", t.Name, "error", err)
			} else {
				s.logger.Debug("tool", "tool", t.Name, "elapsed", e.Elapsed)
			}
			s.emit(e)
			return result, err
		}
		wrapped[i] = t
	}
	return wrapped
}

// SendText injects a user turn.
func (s *Session) SendText(text string) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	return s.pipeline.SendText(text)
}

// SendAudio forwards user audio.
func (s *Session) SendAudio(pcm16 []byte) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	return s.pipeline.SendAudio(pcm16)
}

// GenerateReply asks the model to speak, guided by instructions.
func (s *Session) GenerateReply(instructions string) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	return s.pipeline.GenerateReply(instructions)
}

// Interrupt stops the agent mid-response.
func (s *Session) Interrupt() error {
	return s.pipeline.Interrupt()
}

// CallTool runs one of the active agent's tools directly, outside the model.
// The dashboard uses it to trigger tools by hand.
func (s *Session) CallTool(name string, args map[string]any) (string, error) {
	if s.isClosed() {
		return "", ErrSessionClosed
	}
	t, ok := voice.FindTool(s.wrapTools(s.Agent().Tools), name)
	if !ok || t.Handler == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if args == nil {
		args = map[string]any{}
	}
	return t.Handler(args)
}

// Usage returns the totals reported by the pipeline so far.
func (s *Session) Usage() voice.Usage {
	return s.usage.Summary()
}

// Metrics returns the pipeline's latency metrics for the latest turn.
func (s *Session) Metrics() voice.Metrics {
	return s.pipeline.Metrics()
}

func (s *Session) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Close stops the pipeline. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.pipeline.Stop()
	s.emit(Event{Type: EventEnded})
	return err
}
