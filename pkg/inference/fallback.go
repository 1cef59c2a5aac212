package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultCooldown is how long a failed backend is skipped before it is tried
// again.
const DefaultCooldown = 30 * time.Second

// Backend is a named provider inside a Fallback.
type Backend struct {
	Name     string
	Provider Provider
}

// Fallback answers from the first backend that succeeds. A backend that
// fails is skipped for a cooldown, so a voice turn does not pay for a dead
// primary on every model round. When every backend is cooling down, all are
// tried anyway.
type Fallback struct {
	backends []Backend
	cooldown time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	downAt map[string]time.Time
	active string
}

// NewFallback creates a fallback over backends, tried in order.
func NewFallback(logger *slog.Logger, backends ...Backend) (*Fallback, error) {
	if len(backends) == 0 {
		return nil, ErrProviderUnavailable
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{
		backends: backends,
		cooldown: DefaultCooldown,
		logger:   logger.With("component", "inference.fallback"),
		now:      time.Now,
		downAt:   make(map[string]time.Time),
		active:   backends[0].Name,
	}, nil
}

// SetCooldown changes how long a failed backend is skipped.
func (f *Fallback) SetCooldown(d time.Duration) {
	f.mu.Lock()
	f.cooldown = d
	f.mu.Unlock()
}

// Active returns the name of the backend that answered last.
func (f *Fallback) Active() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// order returns the backends to try: healthy ones first, cooling ones after.
func (f *Fallback) order() []Backend {
	f.mu.Lock()
	defer f.mu.Unlock()

	ready := make([]Backend, 0, len(f.backends))
	var cooling []Backend
	for _, b := range f.backends {
		if at, ok := f.downAt[b.Name]; ok && f.now().Sub(at) < f.cooldown {
			cooling = append(cooling, b)
			continue
		}
		ready = append(ready, b)
	}
	if len(ready) == 0 {
		return cooling
	}
	return ready
}

func (f *Fallback) mark(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.downAt[name] = f.now()
		return
	}
	delete(f.downAt, name)
	if f.active != name {
		f.logger.Info("llm backend switched", "from", f.active, "to", name)
		f.active = name
	}
}

// Chat tries each usable backend in order.
func (f *Fallback) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	var errs []error
	for _, b := range f.order() {
		resp, err := b.Provider.Chat(ctx, req)
		f.mark(b.Name, err)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		f.logger.Warn("llm backend failed", "backend", b.Name, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", b.Name, err))
	}
	return nil, &FallbackError{Errors: errs}
}

// Health succeeds when at least one backend is healthy.
func (f *Fallback) Health(ctx context.Context) error {
	var errs []error
	for _, b := range f.backends {
		err := b.Provider.Health(ctx)
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", b.Name, err))
	}
	return WrapError("fallback", errors.Join(errs...))
}

// Close closes every backend.
func (f *Fallback) Close() error {
	var errs []error
	for _, b := range f.backends {
		errs = append(errs, b.Provider.Close())
	}
	return errors.Join(errs...)
}

var _ Provider = (*Fallback)(nil)
