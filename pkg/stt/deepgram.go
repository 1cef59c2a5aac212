package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	deepgramURL      = "wss://api.deepgram.com/v1/listen"
	providerDeepgram = "deepgram"
)

// DeepgramConfig configures the Deepgram client.
type DeepgramConfig struct {
	APIKey  string
	BaseURL string

	Model          string
	Language       string
	SampleRate     int
	InterimResults bool
	SmartFormat    bool

	// Endpointing is the silence that marks speech_final.
	Endpointing time.Duration

	// UtteranceEnd emits an utterance end event after this much silence
	// following the last final word. Zero disables it.
	UtteranceEnd time.Duration

	// KeepAlive is sent when no audio was written for this long.
	KeepAlive time.Duration

	Logger *slog.Logger
}

// Option configures the Deepgram client.
type Option func(*DeepgramConfig)

func WithAPIKey(key string) Option {
	return func(c *DeepgramConfig) { c.APIKey = key }
}

func WithBaseURL(u string) Option {
	return func(c *DeepgramConfig) { c.BaseURL = u }
}

func WithModel(model string) Option {
	return func(c *DeepgramConfig) { c.Model = model }
}

func WithLanguage(lang string) Option {
	return func(c *DeepgramConfig) { c.Language = lang }
}

func WithSampleRate(rate int) Option {
	return func(c *DeepgramConfig) { c.SampleRate = rate }
}

func WithEndpointing(d time.Duration) Option {
	return func(c *DeepgramConfig) { c.Endpointing = d }
}

func WithKeepAlive(d time.Duration) Option {
	return func(c *DeepgramConfig) { c.KeepAlive = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *DeepgramConfig) { c.Logger = l }
}

// DefaultDeepgramConfig returns nova-3 English at 16kHz.
func DefaultDeepgramConfig() *DeepgramConfig {
	return &DeepgramConfig{
		BaseURL:        deepgramURL,
		Model:          "nova-3",
		Language:       "en",
		SampleRate:     16000,
		InterimResults: true,
		SmartFormat:    true,
		Endpointing:    500 * time.Millisecond,
		UtteranceEnd:   time.Second,
		KeepAlive:      5 * time.Second,
		Logger:         slog.Default(),
	}
}

// Deepgram implements Provider over Deepgram's live streaming WebSocket API.
type Deepgram struct {
	config *DeepgramConfig
	dialer *websocket.Dialer
	logger *slog.Logger
}

// NewDeepgram creates a Deepgram client.
func NewDeepgram(opts ...Option) (*Deepgram, error) {
	cfg := DefaultDeepgramConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	return &Deepgram{
		config: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		logger: cfg.Logger.With("component", "stt.deepgram"),
	}, nil
}

// URL returns the listen URL with all query parameters.
func (d *Deepgram) URL() string {
	q := url.Values{}
	q.Set("model", d.config.Model)
	q.Set("language", d.config.Language)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(d.config.SampleRate))
	q.Set("channels", "1")
	q.Set("interim_results", strconv.FormatBool(d.config.InterimResults))
	q.Set("smart_format", strconv.FormatBool(d.config.SmartFormat))
	q.Set("vad_events", "true")
	if d.config.Endpointing > 0 {
		q.Set("endpointing", strconv.Itoa(int(d.config.Endpointing.Milliseconds())))
	}
	if d.config.UtteranceEnd > 0 && d.config.InterimResults {
		q.Set("utterance_end_ms", strconv.Itoa(int(d.config.UtteranceEnd.Milliseconds())))
	}
	return d.config.BaseURL + "?" + q.Encode()
}

// Stream dials a new live transcription session.
func (d *Deepgram) Stream(ctx context.Context) (Stream, error) {
	header := http.Header{}
	header.Set("Authorization", "Token "+d.config.APIKey)

	conn, resp, err := d.dialer.DialContext(ctx, d.URL(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("stt [%s]: connect: %w (status %d)", providerDeepgram, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("stt [%s]: connect: %w", providerDeepgram, err)
	}

	s := &deepgramStream{
		conn:      conn,
		results:   make(chan Transcript, 64),
		done:      make(chan struct{}),
		readDone:  make(chan struct{}),
		keepAlive: d.config.KeepAlive,
		logger:    d.logger,
		lastWrite: time.Now(),
	}

	go s.readLoop()
	go s.keepAliveLoop()
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()

	d.logger.Debug("stream opened", "model", d.config.Model)
	return s, nil
}

// Close releases resources.
func (d *Deepgram) Close() error {
	return nil
}

type deepgramStream struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	results  chan Transcript
	done     chan struct{}
	readDone chan struct{}
	once     sync.Once

	keepAlive time.Duration
	lastWrite time.Time
	logger    *slog.Logger
}

func (s *deepgramStream) Results() <-chan Transcript {
	return s.results
}

func (s *deepgramStream) Write(pcm16 []byte) error {
	select {
	case <-s.done:
		return ErrStreamClosed
	default:
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.lastWrite = time.Now()
	return s.conn.WriteMessage(websocket.BinaryMessage, pcm16)
}

// Close asks Deepgram to flush final results, waits briefly for them, then
// closes the connection.
func (s *deepgramStream) Close() error {
	var err error
	s.once.Do(func() {
		s.writeMu.Lock()
		s.conn.WriteJSON(map[string]string{"type": "CloseStream"})
		s.writeMu.Unlock()

		select {
		case <-s.readDone:
		case <-time.After(2 * time.Second):
		}

		close(s.done)
		err = s.conn.Close()
	})
	return err
}

func (s *deepgramStream) keepAliveLoop() {
	if s.keepAlive <= 0 {
		return
	}
	ticker := time.NewTicker(s.keepAlive / 2)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			if time.Since(s.lastWrite) >= s.keepAlive {
				if err := s.conn.WriteJSON(map[string]string{"type": "KeepAlive"}); err != nil {
					s.logger.Debug("keepalive failed", "error", err)
				}
				s.lastWrite = time.Now()
			}
			s.writeMu.Unlock()
		}
	}
}

// deepgramMessage covers the message types read from the socket.
type deepgramMessage struct {
	Type        string  `json:"type"`
	IsFinal     bool    `json:"is_final"`
	SpeechFinal bool    `json:"speech_final"`
	Duration    float64 `json:"duration"`
	Channel     struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (s *deepgramStream) readLoop() {
	defer close(s.readDone)
	defer close(s.results)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				select {
				case <-s.done:
				default:
					s.logger.Debug("read loop ended", "error", err)
				}
			}
			return
		}

		var msg deepgramMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("invalid message", "error", err)
			continue
		}

		var t Transcript
		switch msg.Type {
		case "Results":
			t = Transcript{
				Event:       EventTranscript,
				IsFinal:     msg.IsFinal,
				SpeechFinal: msg.SpeechFinal,
				Duration:    time.Duration(msg.Duration * float64(time.Second)),
			}
			if len(msg.Channel.Alternatives) > 0 {
				t.Text = msg.Channel.Alternatives[0].Transcript
				t.Confidence = msg.Channel.Alternatives[0].Confidence
			}
		case "SpeechStarted":
			t = Transcript{Event: EventSpeechStarted}
		case "UtteranceEnd":
			t = Transcript{Event: EventUtteranceEnd}
		default:
			continue
		}

		select {
		case s.results <- t:
		case <-s.done:
			return
		}
	}
}

var _ Provider = (*Deepgram)(nil)
