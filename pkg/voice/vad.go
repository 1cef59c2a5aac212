package voice

import (
	"fmt"
	"time"
)

// VAD holds voice activity detection settings shared by every session of a
// process. Load it once in the worker's prewarm hook.
type VAD struct {
	Threshold     float64
	PrefixPadding time.Duration
	MinSilence    time.Duration
	SampleRate    int
}

// VADOption configures LoadVAD.
type VADOption func(*VAD)

// WithThreshold sets the activation threshold.
func WithThreshold(t float64) VADOption {
	return func(v *VAD) { v.Threshold = t }
}

// WithMinSilence sets the silence that ends a turn.
func WithMinSilence(d time.Duration) VADOption {
	return func(v *VAD) { v.MinSilence = d }
}

// WithPrefixPadding sets the audio kept before speech start.
func WithPrefixPadding(d time.Duration) VADOption {
	return func(v *VAD) { v.PrefixPadding = d }
}

// LoadVAD builds the process-wide VAD settings and checks them.
func LoadVAD(opts ...VADOption) (*VAD, error) {
	v := &VAD{
		Threshold:     0.5,
		PrefixPadding: 300 * time.Millisecond,
		MinSilence:    500 * time.Millisecond,
		SampleRate:    16000,
	}
	for _, opt := range opts {
		opt(v)
	}

	if v.Threshold < 0 || v.Threshold > 1 {
		return nil, fmt.Errorf("voice: VAD threshold %.2f out of range", v.Threshold)
	}
	if v.MinSilence <= 0 {
		return nil, fmt.Errorf("voice: VAD min silence must be positive")
	}
	if v.SampleRate != 8000 && v.SampleRate != 16000 {
		return nil, fmt.Errorf("voice: VAD sample rate %d unsupported", v.SampleRate)
	}
	return v, nil
}

// EndpointingMS returns the silence duration in milliseconds, as STT services expect it.
func (v *VAD) EndpointingMS() int {
	return int(v.MinSilence / time.Millisecond)
}
