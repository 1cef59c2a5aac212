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
	openAIBaseURL  = "https://api.openai.com/v1"
	providerOpenAI = "openai"
)

// OpenAI voice options
const (
	VoiceAlloy   = "alloy"
	VoiceEcho    = "echo"
	VoiceFable   = "fable"
	VoiceOnyx    = "onyx"
	VoiceNova    = "nova"
	VoiceShimmer = "shimmer"
)

// OpenAI model options
const (
	ModelTTS1     = "tts-1"
	ModelTTS1HD   = "tts-1-hd"
	ModelMiniTTS  = "gpt-4o-mini-tts"
	openAIPCMRate = 24000
)

// OpenAI implements Provider for OpenAI TTS. It is the fallback when Murf is
// unavailable and always returns 24kHz PCM16.
type OpenAI struct {
	config  *Config
	client  *http.Client
	logger  *slog.Logger
	baseURL string

	mu    sync.RWMutex
	voice string
}

// NewOpenAI creates a new OpenAI TTS provider.
// A Murf voice ID is mapped to an OpenAI voice of similar character.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.ModelID = ModelTTS1
	cfg.VoiceID = VoiceOnyx
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = openAIBaseURL
	}

	return &OpenAI{
		config:  cfg,
		client:  httpc.NewClient(cfg.Timeout),
		logger:  cfg.Logger.With("component", "tts.openai"),
		baseURL: baseURL,
		voice:   openAIVoice(cfg.VoiceID),
	}, nil
}

// Synthesize converts text to audio, returning the complete audio buffer.
func (o *OpenAI) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, WrapError(providerOpenAI, ErrEmptyText)
	}
	start := time.Now()

	body, err := json.Marshal(map[string]any{
		"model":           o.config.ModelID,
		"voice":           o.currentVoice(),
		"input":           text,
		"response_format": "pcm",
	})
	if err != nil {
		return nil, WrapError(providerOpenAI, fmt.Errorf("marshal payload: %w", err))
	}

	resp, err := o.doWithRetry(ctx, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	latency := time.Since(start).Milliseconds()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(providerOpenAI, fmt.Errorf("read response: %w", err))
	}

	o.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", latency,
		"voice", o.currentVoice(),
	)

	return &AudioResult{
		Audio:     audio,
		Format:    PCMFormat(EncodingPCM24),
		CharCount: len(text),
		LatencyMs: latency,
		Duration:  PCMDuration(len(audio), openAIPCMRate),
	}, nil
}

// Stream converts text to audio.
// OpenAI TTS is consumed whole here, so this wraps Synthesize.
func (o *OpenAI) Stream(ctx context.Context, text string) (AudioStream, error) {
	result, err := o.Synthesize(ctx, text)
	if err != nil {
		return nil, err
	}
	return &bufferStream{data: result.Audio, format: result.Format}, nil
}

// Health checks API connectivity.
func (o *OpenAI) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/models", nil)
	if err != nil {
		return WrapError(providerOpenAI, err)
	}
	req.Header.Set("Authorization", "Bearer "+o.config.APIKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return WrapError(providerOpenAI, fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return o.parseError(resp)
	}
	return nil
}

// Close releases resources.
func (o *OpenAI) Close() error {
	o.client.CloseIdleConnections()
	return nil
}

// SetVoice switches voice. Murf IDs are mapped; style is ignored.
func (o *OpenAI) SetVoice(v Voice) error {
	if v.ID == "" {
		return ErrNoVoiceID
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.voice = openAIVoice(v.ID)
	return nil
}

// Voice returns the current voice.
func (o *OpenAI) Voice() Voice {
	return Voice{ID: o.currentVoice()}
}

func (o *OpenAI) currentVoice() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.voice
}

// openAIVoice maps Murf voice IDs and presets to OpenAI voices.
func openAIVoice(id string) string {
	if p, ok := MurfVoices[strings.ToLower(id)]; ok {
		id = p.ID
	}
	if v, ok := openAIFallback[id]; ok {
		return v
	}
	if strings.HasPrefix(id, "en-") || id == "" {
		return VoiceOnyx
	}
	return id
}

// doWithRetry performs the request with retry logic.
func (o *OpenAI) doWithRetry(ctx context.Context, body []byte) (*http.Response, error) {
	headers := map[string]string{"Authorization": "Bearer " + o.config.APIKey}
	var lastErr error

	for attempt := 0; attempt <= o.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(o.config.RetryDelay * time.Duration(attempt)):
			}
		}

		resp, err := httpc.PostJSON(ctx, o.client, o.baseURL+"/audio/speech", body, headers)
		if err != nil {
			lastErr = WrapError(providerOpenAI, err)
			continue
		}
		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		apiErr := o.parseError(resp)
		resp.Body.Close()
		lastErr = apiErr
		if !apiErr.IsRetryable() {
			break
		}
		o.logger.Warn("retrying request",
			"attempt", attempt+1,
			"status", resp.StatusCode,
		)
	}

	return nil, lastErr
}

// parseError reads and parses an error response.
func (o *OpenAI) parseError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}

	message := string(body)
	code := ""
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
		code = errResp.Error.Code
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Code:       code,
		Provider:   providerOpenAI,
	}
}

// bufferStream wraps a byte slice as AudioStream.
type bufferStream struct {
	data   []byte
	offset int
	format AudioFormat
}

// Read returns the buffered audio in one chunk.
func (s *bufferStream) Read() ([]byte, error) {
	if s.offset >= len(s.data) {
		return nil, nil
	}
	chunk := s.data[s.offset:]
	s.offset = len(s.data)
	return chunk, nil
}

func (s *bufferStream) Close() error {
	return nil
}

func (s *bufferStream) Format() AudioFormat {
	return s.format
}

var (
	_ Provider      = (*OpenAI)(nil)
	_ VoiceSwitcher = (*OpenAI)(nil)
)
