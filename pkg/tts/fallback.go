package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultCooldown is how long synthesis stays on a fallback provider after
// the preferred one fails.
const DefaultCooldown = time.Minute

// Named pairs a provider with the name used in logs and errors.
type Named struct {
	Name     string
	Provider Provider
}

// Fallback synthesizes with the first provider that works. After a failure
// it stays on the provider that answered for a cooldown, so consecutive
// sentences of one reply keep the same voice instead of alternating.
type Fallback struct {
	providers []Named
	cooldown  time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	current int
	since   time.Time
}

// NewFallback creates a fallback that prefers providers in the given order.
func NewFallback(logger *slog.Logger, providers ...Named) (*Fallback, error) {
	if len(providers) == 0 {
		return nil, ErrProviderUnavailable
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{
		providers: providers,
		cooldown:  DefaultCooldown,
		logger:    logger.With("component", "tts.fallback"),
		now:       time.Now,
	}, nil
}

// Current returns the name of the provider synthesis starts from.
func (f *Fallback) Current() string {
	return f.providers[f.start()].Name
}

// start returns the index to try first, returning to the preferred provider
// once the cooldown has passed.
func (f *Fallback) start() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current != 0 && f.now().Sub(f.since) >= f.cooldown {
		f.logger.Info("retrying preferred tts provider", "provider", f.providers[0].Name)
		f.current = 0
	}
	return f.current
}

func (f *Fallback) settle(i int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i != f.current {
		f.logger.Warn("tts provider switched", "from", f.providers[f.current].Name, "to", f.providers[i].Name)
		f.current = i
		f.since = f.now()
	}
}

// try runs op against providers from the current one on, wrapping around.
func (f *Fallback) try(ctx context.Context, op func(Provider) error) error {
	first := f.start()
	var errs []error
	for n := 0; n < len(f.providers); n++ {
		i := (first + n) % len(f.providers)
		p := f.providers[i]
		err := op(p.Provider)
		if err == nil {
			f.settle(i)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Name, err))
	}
	return &FallbackError{Errors: errs}
}

// Synthesize returns the audio of the first provider that succeeds.
func (f *Fallback) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	var result *AudioResult
	err := f.try(ctx, func(p Provider) (err error) {
		result, err = p.Synthesize(ctx, text)
		return err
	})
	return result, err
}

// Stream opens a stream on the first provider that accepts the request.
func (f *Fallback) Stream(ctx context.Context, text string) (AudioStream, error) {
	var stream AudioStream
	err := f.try(ctx, func(p Provider) (err error) {
		stream, err = p.Stream(ctx, text)
		return err
	})
	return stream, err
}

// Health succeeds when any provider is healthy.
func (f *Fallback) Health(ctx context.Context) error {
	var errs []error
	for _, p := range f.providers {
		err := p.Provider.Health(ctx)
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Name, err))
	}
	return errors.Join(errs...)
}

// Close closes every provider.
func (f *Fallback) Close() error {
	var errs []error
	for _, p := range f.providers {
		errs = append(errs, p.Provider.Close())
	}
	return errors.Join(errs...)
}

// SetVoice switches every provider that supports it, so a persona handoff
// keeps its voice whichever provider is speaking.
func (f *Fallback) SetVoice(v Voice) error {
	var errs []error
	for _, p := range f.providers {
		if vs, ok := p.Provider.(VoiceSwitcher); ok {
			errs = append(errs, vs.SetVoice(v))
		}
	}
	return errors.Join(errs...)
}

// Voice returns the voice of the preferred provider.
func (f *Fallback) Voice() Voice {
	for _, p := range f.providers {
		if vs, ok := p.Provider.(VoiceSwitcher); ok {
			return vs.Voice()
		}
	}
	return Voice{}
}

var (
	_ Provider      = (*Fallback)(nil)
	_ VoiceSwitcher = (*Fallback)(nil)
)
