package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-voiceagents/internal/httpc"
)

const (
	murfBaseURL  = "https://api.murf.ai/v1"
	providerMurf = "murf"
)

// Murf implements Provider for Murf's streaming speech API.
// The voice can be switched between utterances (VoiceSwitcher).
type Murf struct {
	config  *Config
	client  *http.Client
	stream  *http.Client
	logger  *slog.Logger
	baseURL string

	mu    sync.RWMutex
	voice Voice
}

// NewMurf creates a new Murf TTS provider.
func NewMurf(opts ...Option) (*Murf, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.ValidateWithVoice(); err != nil {
		return nil, err
	}

	voice := ResolveVoice(cfg.VoiceID)
	if cfg.Style != "" {
		voice.Style = cfg.Style
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = murfBaseURL
	}

	return &Murf{
		config:  cfg,
		client:  httpc.NewClient(cfg.Timeout),
		stream:  httpc.NewClient(cfg.StreamTimeout),
		logger:  cfg.Logger.With("component", "tts.murf"),
		baseURL: baseURL,
		voice:   voice,
	}, nil
}

// Synthesize converts text to audio, returning the complete audio buffer.
func (m *Murf) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	start := time.Now()

	resp, err := m.post(ctx, m.client, text, true)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	latency := time.Since(start).Milliseconds()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(providerMurf, fmt.Errorf("read response: %w", err))
	}

	format := m.outputFormat()
	m.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", latency,
		"voice", m.Voice().ID,
	)

	return &AudioResult{
		Audio:     audio,
		Format:    format,
		CharCount: len(text),
		LatencyMs: latency,
		Duration:  PCMDuration(len(audio), format.SampleRate),
	}, nil
}

// Stream converts text to audio, returning chunks as Murf produces them.
func (m *Murf) Stream(ctx context.Context, text string) (AudioStream, error) {
	resp, err := m.post(ctx, m.stream, text, false)
	if err != nil {
		return nil, err
	}
	return &httpStream{
		body:   resp.Body,
		format: m.outputFormat(),
	}, nil
}

// Health checks API key validity by listing voices.
func (m *Murf) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/speech/voices", nil)
	if err != nil {
		return WrapError(providerMurf, err)
	}
	req.Header.Set("api-key", m.config.APIKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return WrapError(providerMurf, fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return m.parseError(resp)
	}
	return nil
}

// Close releases resources held by the provider.
func (m *Murf) Close() error {
	m.client.CloseIdleConnections()
	m.stream.CloseIdleConnections()
	return nil
}

// SetVoice switches the voice used for subsequent utterances.
// An empty style takes the preset's style, or keeps the current one.
func (m *Murf) SetVoice(v Voice) error {
	if v.ID == "" {
		return ErrNoVoiceID
	}
	resolved := v
	if p, ok := MurfVoices[strings.ToLower(v.ID)]; ok {
		resolved.ID = p.ID
		if resolved.Style == "" {
			resolved.Style = p.Style
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if resolved.Style == "" {
		resolved.Style = m.voice.Style
	}
	m.voice = resolved
	return nil
}

// Voice returns the current voice.
func (m *Murf) Voice() Voice {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.voice
}

// post sends a speech request. With retry set, rate limits and server errors
// are retried before any audio has been consumed.
func (m *Murf) post(ctx context.Context, client *http.Client, text string, retry bool) (*http.Response, error) {
	if strings.TrimSpace(text) == "" {
		return nil, WrapError(providerMurf, ErrEmptyText)
	}

	body, err := json.Marshal(m.buildPayload(text))
	if err != nil {
		return nil, WrapError(providerMurf, fmt.Errorf("marshal payload: %w", err))
	}

	headers := map[string]string{"api-key": m.config.APIKey}
	url := m.baseURL + "/speech/stream"

	attempts := 1
	if retry {
		attempts += m.config.MaxRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(m.config.RetryDelay * time.Duration(attempt)):
			}
		}

		resp, err := httpc.PostJSON(ctx, client, url, body, headers)
		if err != nil {
			lastErr = WrapError(providerMurf, err)
			continue
		}
		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		apiErr := m.parseError(resp)
		resp.Body.Close()
		lastErr = apiErr
		if !apiErr.IsRetryable() {
			break
		}
		m.logger.Warn("retrying request",
			"attempt", attempt+1,
			"status", apiErr.StatusCode,
		)
	}

	return nil, lastErr
}

func (m *Murf) buildPayload(text string) map[string]any {
	v := m.Voice()
	payload := map[string]any{
		"voiceId":     v.ID,
		"text":        text,
		"format":      "PCM",
		"sampleRate":  SampleRateFromEncoding(m.config.OutputFormat),
		"channelType": "MONO",
	}
	if v.Style != "" {
		payload["style"] = v.Style
	}
	if m.config.ModelID != "" {
		payload["modelVersion"] = m.config.ModelID
	}
	return payload
}

// parseError reads and parses an error response.
func (m *Murf) parseError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		ErrorMessage string `json:"errorMessage"`
		ErrorCode    int    `json:"errorCode"`
	}

	message := string(body)
	code := ""
	if json.Unmarshal(body, &errResp) == nil && errResp.ErrorMessage != "" {
		message = errResp.ErrorMessage
		if errResp.ErrorCode != 0 {
			code = fmt.Sprint(errResp.ErrorCode)
		}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Code:       code,
		Provider:   providerMurf,
	}
}

func (m *Murf) outputFormat() AudioFormat {
	return PCMFormat(m.config.OutputFormat)
}

// httpStream wraps an HTTP response body as AudioStream.
type httpStream struct {
	body   io.ReadCloser
	format AudioFormat
	buf    [4096]byte
	done   bool
}

// Read returns the next audio chunk.
func (s *httpStream) Read() ([]byte, error) {
	if s.done {
		return nil, nil
	}
	n, err := s.body.Read(s.buf[:])
	if err == io.EOF {
		s.done = true
	} else if err != nil {
		return nil, err
	}
	if n == 0 {
		if s.done {
			return nil, nil
		}
		return []byte{}, nil
	}
	chunk := make([]byte, n)
	copy(chunk, s.buf[:n])
	return chunk, nil
}

// Close stops the stream.
func (s *httpStream) Close() error {
	return s.body.Close()
}

// Format returns the audio format.
func (s *httpStream) Format() AudioFormat {
	return s.format
}

var (
	_ Provider      = (*Murf)(nil)
	_ VoiceSwitcher = (*Murf)(nil)
)
