package stt

import (
	"context"
	"sync"
)

// Mock implements Provider for testing. Each Stream call creates a MockStream
// that records written audio and emits whatever the test sends with Emit.
type Mock struct {
	// StreamErr is returned by Stream when set.
	StreamErr error

	mu      sync.Mutex
	streams []*MockStream
}

// NewMock creates a mock provider.
func NewMock() *Mock {
	return &Mock{}
}

// Stream opens a MockStream.
func (m *Mock) Stream(ctx context.Context) (Stream, error) {
	if m.StreamErr != nil {
		return nil, m.StreamErr
	}
	s := &MockStream{results: make(chan Transcript, 64)}

	m.mu.Lock()
	m.streams = append(m.streams, s)
	m.mu.Unlock()
	return s, nil
}

// Close is a no-op.
func (m *Mock) Close() error { return nil }

// Streams returns every stream opened so far.
func (m *Mock) Streams() []*MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockStream(nil), m.streams...)
}

// Last returns the most recent stream, or nil.
func (m *Mock) Last() *MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.streams) == 0 {
		return nil
	}
	return m.streams[len(m.streams)-1]
}

// MockStream is the Stream returned by Mock.
type MockStream struct {
	mu      sync.Mutex
	written int
	chunks  int
	closed  bool
	results chan Transcript
}

func (s *MockStream) Write(pcm16 []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	s.written += len(pcm16)
	s.chunks++
	return nil
}

func (s *MockStream) Results() <-chan Transcript { return s.results }

func (s *MockStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.results)
	}
	return nil
}

// Emit delivers a result to the reader. It is dropped after Close.
func (s *MockStream) Emit(t Transcript) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if t.Event == "" {
		t.Event = EventTranscript
	}
	s.results <- t
}

// EmitFinal delivers a final, end-of-turn transcript.
func (s *MockStream) EmitFinal(text string) {
	s.Emit(Transcript{Event: EventTranscript, Text: text, IsFinal: true, SpeechFinal: true})
}

// BytesWritten returns the total audio bytes written.
func (s *MockStream) BytesWritten() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

// Closed reports whether Close was called.
func (s *MockStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var (
	_ Provider = (*Mock)(nil)
	_ Stream   = (*MockStream)(nil)
)
