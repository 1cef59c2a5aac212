// Package host runs one demo: it builds the worker from configuration,
// prewarms the process, wires metrics and the dashboard to every session,
// and serves either the web dashboard or a text console.
package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/teslashibe/go-voiceagents/internal/config"
	"github.com/teslashibe/go-voiceagents/internal/log"
	"github.com/teslashibe/go-voiceagents/pkg/agent"
	"github.com/teslashibe/go-voiceagents/pkg/metrics"
	"github.com/teslashibe/go-voiceagents/pkg/voice"
	_ "github.com/teslashibe/go-voiceagents/pkg/voice/bundled" // Register voice providers
	"github.com/teslashibe/go-voiceagents/pkg/web"
)

// Demo is what a binary hands to the host.
type Demo interface {
	Name() string
	Entrypoint(jc *agent.JobContext) error
}

// Option configures an App.
type Option func(*App)

// WithMetrics uses c instead of a fresh collector, so demo hooks and the
// host count into the same registry.
func WithMetrics(c *metrics.Collector) Option {
	return func(a *App) { a.metrics = c }
}

// WithPipelineFactory replaces voice.New. Tests use it to plug in mocks.
func WithPipelineFactory(f voice.PipelineFactory) Option {
	return func(a *App) { a.newPipeline = f }
}

// WithConsoleIO sets the console's input and output. Defaults to stdin and stdout.
func WithConsoleIO(in io.Reader, out io.Writer) Option {
	return func(a *App) { a.in, a.out = in, out }
}

// App is one running demo.
type App struct {
	cfg  *config.Config
	demo Demo

	worker      *agent.Worker
	metrics     *metrics.Collector
	web         *web.Server
	newPipeline voice.PipelineFactory
	logger      *slog.Logger

	in  io.Reader
	out io.Writer
}

// New checks the configuration and creates the app. Call Init before Run.
func New(cfg *config.Config, demo Demo, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("host: config required")
	}
	if demo == nil {
		return nil, errors.New("host: demo required")
	}

	a := &App{cfg: cfg, demo: demo, in: os.Stdin, out: os.Stdout}
	for _, opt := range opts {
		opt(a)
	}

	// Mocked pipelines need no provider keys.
	if a.newPipeline == nil {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Init sets up the worker and, outside console mode, the dashboard.
func (a *App) Init() error {
	a.logger = log.Component("host").With("demo", a.demo.Name())
	for _, w := range a.cfg.Warnings() {
		a.logger.Warn(w)
	}

	if !a.cfg.Console {
		fmt.Printf("☕ Voice agent: %s (%s pipeline)\n", a.demo.Name(), a.cfg.Pipeline)
		fmt.Println("==============================================")
		if a.cfg.Debug {
			fmt.Println("🐛 Debug mode enabled")
		}
	}

	if a.metrics == nil {
		a.metrics = metrics.NewCollector(a.demo.Name())
	}

	w, err := agent.NewWorker(agent.WorkerOptions{
		Name:        a.demo.Name(),
		Entrypoint:  a.demo.Entrypoint,
		Prewarm:     a.prewarm,
		Pipeline:    PipelineConfig(a.cfg),
		NewPipeline: a.newPipeline,
		Logger:      log.Component("agent"),
	})
	if err != nil {
		return fmt.Errorf("host: worker: %w", err)
	}
	w.AddSessionHook(a.observe)
	a.worker = w

	if a.cfg.Console {
		return nil
	}

	srv, err := web.NewServer(web.Config{
		Port:    a.cfg.WebPort,
		Demo:    a.demo.Name(),
		Worker:  w,
		Metrics: a.metrics,
		LiveKit: web.LiveKit{
			URL:       a.cfg.LiveKit.URL,
			APIKey:    a.cfg.LiveKit.APIKey,
			APISecret: a.cfg.LiveKit.APISecret,
		},
	})
	if err != nil {
		return fmt.Errorf("host: dashboard: %w", err)
	}
	if r, ok := a.demo.(web.RouteRegistrar); ok {
		srv.Mount(r)
	}
	w.AddSessionHook(srv.Observe)
	a.web = srv
	return nil
}

// InitLogging configures the global logger for cfg. In console mode logs go
// to stderr since stdout carries the conversation.
func InitLogging(cfg *config.Config) {
	level := cfg.LogLevel
	if cfg.Debug {
		level = "debug"
	}
	if cfg.Console {
		log.SetOutput(os.Stderr, level)
		return
	}
	log.Init(level)
}

// prewarm loads the process-wide VAD once, before the first job.
func (a *App) prewarm(p *agent.Process) error {
	base := PipelineConfig(a.cfg)
	vad, err := voice.LoadVAD(
		voice.WithThreshold(base.VADThreshold),
		voice.WithPrefixPadding(base.VADPrefixPadding),
		voice.WithMinSilence(base.VADSilenceDuration),
	)
	if err != nil {
		return err
	}
	p.Set(agent.VADKey, vad)
	return nil
}

// observe counts the session's events and logs its usage when the job ends.
func (a *App) observe(jc *agent.JobContext, s *agent.Session) {
	s.Subscribe(a.metrics.Observe)
	jc.AddShutdownCallback(func() {
		jc.Logger.Info("Usage: " + s.Usage().String())
	})
}

// Run serves until ctx is cancelled. In console mode it returns when the
// console conversation ends.
func (a *App) Run(ctx context.Context) error {
	if a.worker == nil {
		return errors.New("host: Init not called")
	}
	if a.cfg.Console {
		return agent.RunConsole(ctx, a.worker, a.in, a.out)
	}

	if err := a.worker.Start(ctx); err != nil {
		return err
	}
	a.web.StartAsync(ctx)
	fmt.Println("✅ Ready. Open the dashboard to start a session.")
	return a.worker.Run(ctx)
}

// Shutdown is called once Run has returned.
func (a *App) Shutdown() {
	if a.logger != nil {
		a.logger.Info("shutdown complete")
	}
}

// Worker returns the job worker. Nil before Init.
func (a *App) Worker() *agent.Worker { return a.worker }

// Metrics returns the collector. Nil before Init unless set with WithMetrics.
func (a *App) Metrics() *metrics.Collector { return a.metrics }

// Web returns the dashboard server. Nil before Init and in console mode.
func (a *App) Web() *web.Server { return a.web }
