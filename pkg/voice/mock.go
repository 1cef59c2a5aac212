package voice

import (
	"context"
	"sync"
)

// MockPipeline is an in-memory Pipeline for tests. It records every input
// and lets tests fire the callbacks a real pipeline would.
type MockPipeline struct {
	mu sync.Mutex

	cfg       Config
	tools     []Tool
	connected bool

	Texts        []string
	Replies      []string
	Audio        [][]byte
	Results      map[string]string
	Interrupts   int
	ConfigUpdate int

	// StartErr, when set, is returned by Start.
	StartErr error

	onAudioOut    func([]byte)
	onSpeechStart func()
	onSpeechEnd   func()
	onTranscript  func(string, bool)
	onResponse    func(string, bool)
	onUsage       func(Usage)
	onToolCall    func(ToolCall)
	onError       func(error)

	metrics *MetricsCollector
}

// NewMockPipeline creates a mock with the given config.
func NewMockPipeline(cfg Config) *MockPipeline {
	return &MockPipeline{
		cfg:     cfg,
		Results: make(map[string]string),
		metrics: NewMetricsCollector(),
	}
}

func (m *MockPipeline) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StartErr != nil {
		return m.StartErr
	}
	if m.connected {
		return ErrAlreadyStarted
	}
	m.connected = true
	return nil
}

func (m *MockPipeline) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

func (m *MockPipeline) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockPipeline) SendAudio(pcm16 []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	m.Audio = append(m.Audio, pcm16)
	return nil
}

func (m *MockPipeline) SendText(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	m.Texts = append(m.Texts, text)
	return nil
}

func (m *MockPipeline) GenerateReply(instructions string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	m.Replies = append(m.Replies, instructions)
	return nil
}

func (m *MockPipeline) OnAudioOut(fn func(pcm16 []byte)) { m.set(func() { m.onAudioOut = fn }) }
func (m *MockPipeline) OnSpeechStart(fn func()) { m.set(func() { m.onSpeechStart = fn }) }
func (m *MockPipeline) OnSpeechEnd(fn func()) { m.set(func() { m.onSpeechEnd = fn }) }
func (m *MockPipeline) OnTranscript(fn func(text string, isFinal bool)) { m.set(func() { m.onTranscript = fn }) }
func (m *MockPipeline) OnResponse(fn func(text string, isFinal bool)) { m.set(func() { m.onResponse = fn }) }
func (m *MockPipeline) OnUsage(fn func(u Usage)) { m.set(func() { m.onUsage = fn }) }
func (m *MockPipeline) OnToolCall(fn func(call ToolCall)) { m.set(func() { m.onToolCall = fn }) }
func (m *MockPipeline) OnError(fn func(err error)) { m.set(func() { m.onError = fn }) }

func (m *MockPipeline) set(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn()
}

func (m *MockPipeline) SetTools(tools []Tool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tools = append([]Tool(nil), tools...)
}

// Tools returns the tools currently set.
func (m *MockPipeline) Tools() []Tool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Tool(nil), m.tools...)
}

func (m *MockPipeline) SubmitToolResult(callID string, result string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Results[callID] = result
	return nil
}

func (m *MockPipeline) Interrupt() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Interrupts++
	return nil
}

func (m *MockPipeline) Metrics() Metrics {
	return m.metrics.Current()
}

func (m *MockPipeline) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

func (m *MockPipeline) UpdateConfig(cfg Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
	m.ConfigUpdate++
	return nil
}

// CallTool simulates the model invoking a tool. With an OnToolCall override
// the call is handed to it; otherwise the tool runs in place.
func (m *MockPipeline) CallTool(id, name string, args map[string]any) ToolResult {
	m.mu.Lock()
	override := m.onToolCall
	tools := m.tools
	m.mu.Unlock()

	call := ToolCall{ID: id, Name: name, Arguments: args}
	if override != nil {
		override(call)
		m.mu.Lock()
		defer m.mu.Unlock()
		return ToolResult{CallID: id, Result: m.Results[id]}
	}
	return Invoke(tools, call)
}

// EmitTranscript fires OnTranscript.
func (m *MockPipeline) EmitTranscript(text string, isFinal bool) {
	m.mu.Lock()
	fn := m.onTranscript
	m.mu.Unlock()
	if fn != nil {
		fn(text, isFinal)
	}
}

// EmitResponse fires OnResponse.
func (m *MockPipeline) EmitResponse(text string, isFinal bool) {
	m.mu.Lock()
	fn := m.onResponse
	m.mu.Unlock()
	if fn != nil {
		fn(text, isFinal)
	}
}

// EmitAudio fires OnAudioOut.
func (m *MockPipeline) EmitAudio(pcm16 []byte) {
	m.mu.Lock()
	fn := m.onAudioOut
	m.mu.Unlock()
	if fn != nil {
		fn(pcm16)
	}
}

// EmitUsage fires OnUsage.
func (m *MockPipeline) EmitUsage(u Usage) {
	m.mu.Lock()
	fn := m.onUsage
	m.mu.Unlock()
	if fn != nil {
		fn(u)
	}
}

// EmitError fires OnError.
func (m *MockPipeline) EmitError(err error) {
	m.mu.Lock()
	fn := m.onError
	m.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

var _ Pipeline = (*MockPipeline)(nil)
