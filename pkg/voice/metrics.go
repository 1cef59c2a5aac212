package voice

import (
	"sync"
	"time"
)

// Metrics tracks latency at each stage of the voice pipeline.
// All durations are measured from the moment speech ends (user stops talking).
type Metrics struct {
	// Timestamps for key events
	SpeechEndTime    time.Time // When end of speech was detected
	TranscriptTime   time.Time // When the final transcript arrived
	FirstTokenTime   time.Time // When the LLM produced its first token
	FirstAudioTime   time.Time // When TTS produced the first audio chunk
	ResponseDoneTime time.Time // When the response was fully delivered

	// Computed latencies (from speech end)
	ASRLatency    time.Duration
	LLMFirstToken time.Duration
	TTSFirstAudio time.Duration
	TotalLatency  time.Duration

	// Counts for this conversation turn
	AudioChunksIn  int
	AudioChunksOut int
	ToolCalls      int
}

// MetricsCollector collects latency metrics during a conversation turn.
// It is goroutine-safe and can be used from multiple callbacks.
type MetricsCollector struct {
	mu      sync.Mutex
	current Metrics
	history []Metrics // Recent turns for averaging

	onUpdate func(Metrics)
}

const metricsHistory = 100

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		history: make([]Metrics, 0, metricsHistory),
	}
}

// OnUpdate sets a callback that fires whenever metrics are updated.
func (m *MetricsCollector) OnUpdate(fn func(Metrics)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdate = fn
}

// MarkSpeechEnd starts a new turn. It is the reference point for all latencies.
func (m *MetricsCollector) MarkSpeechEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = Metrics{SpeechEndTime: time.Now()}
}

// MarkTranscript records when transcription completed.
func (m *MetricsCollector) MarkTranscript() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.TranscriptTime = time.Now()
	m.current.ASRLatency = m.since(m.current.TranscriptTime)
	m.notify()
}

// MarkFirstToken records the first LLM token of the turn.
func (m *MetricsCollector) MarkFirstToken() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.FirstTokenTime.IsZero() {
		m.current.FirstTokenTime = time.Now()
		m.current.LLMFirstToken = m.since(m.current.FirstTokenTime)
		m.notify()
	}
}

// MarkFirstAudio records the first audio chunk of the turn.
func (m *MetricsCollector) MarkFirstAudio() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.FirstAudioTime.IsZero() {
		m.current.FirstAudioTime = time.Now()
		m.current.TTSFirstAudio = m.since(m.current.FirstAudioTime)
		m.notify()
	}
}

// MarkToolCall counts a tool invocation in the current turn.
func (m *MetricsCollector) MarkToolCall() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.ToolCalls++
}

// MarkResponseDone closes the turn and archives it.
func (m *MetricsCollector) MarkResponseDone() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.ResponseDoneTime = time.Now()
	m.current.TotalLatency = m.since(m.current.ResponseDoneTime)

	m.history = append(m.history, m.current)
	if len(m.history) > metricsHistory {
		m.history = m.history[1:]
	}
	m.notify()
}

// IncrementAudioIn increments the count of audio chunks received.
func (m *MetricsCollector) IncrementAudioIn() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.AudioChunksIn++
}

// IncrementAudioOut increments the count of audio chunks sent.
func (m *MetricsCollector) IncrementAudioOut() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.AudioChunksOut++
}

// Current returns the current metrics snapshot.
func (m *MetricsCollector) Current() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Average returns average latencies over recent turns.
func (m *MetricsCollector) Average() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.history) == 0 {
		return Metrics{}
	}

	var avg Metrics
	for _, h := range m.history {
		avg.ASRLatency += h.ASRLatency
		avg.LLMFirstToken += h.LLMFirstToken
		avg.TTSFirstAudio += h.TTSFirstAudio
		avg.TotalLatency += h.TotalLatency
	}

	n := time.Duration(len(m.history))
	avg.ASRLatency /= n
	avg.LLMFirstToken /= n
	avg.TTSFirstAudio /= n
	avg.TotalLatency /= n

	return avg
}

// since returns the time from speech end to t. Must be called with mutex held.
func (m *MetricsCollector) since(t time.Time) time.Duration {
	if m.current.SpeechEndTime.IsZero() {
		return 0
	}
	return t.Sub(m.current.SpeechEndTime)
}

// notify calls the update callback if set. Must be called with mutex held.
func (m *MetricsCollector) notify() {
	if m.onUpdate != nil {
		metrics := m.current
		go m.onUpdate(metrics)
	}
}

// FormatLatency returns a formatted string of current latencies.
func (m *Metrics) FormatLatency() string {
	return formatDuration(m.ASRLatency) + " ASR | " +
		formatDuration(m.LLMFirstToken) + " LLM | " +
		formatDuration(m.TTSFirstAudio) + " TTS | " +
		formatDuration(m.TotalLatency) + " TOTAL"
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "---ms"
	}
	return d.Round(time.Millisecond).String()
}
