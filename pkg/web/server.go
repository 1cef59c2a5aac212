// Package web serves the demo dashboard: session control, live events and
// the browser audio bridge.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/teslashibe/go-voiceagents/internal/log"
	"github.com/teslashibe/go-voiceagents/pkg/agent"
	"github.com/teslashibe/go-voiceagents/pkg/hub"
	"github.com/teslashibe/go-voiceagents/pkg/metrics"
)

const maxLogs = 500

// RouteRegistrar is implemented by demos that expose their own API routes.
type RouteRegistrar interface {
	Routes(api fiber.Router)
}

// LiveKit holds the credentials used to mint room tokens.
type LiveKit struct {
	URL       string
	APIKey    string
	APISecret string
}

// Config configures a Server.
type Config struct {
	Port    string
	Demo    string
	Worker  *agent.Worker
	Metrics *metrics.Collector
	LiveKit LiveKit

	// StaticDir, when set, is served at /.
	StaticDir string
}

// LogEntry is one dashboard log line.
type LogEntry struct {
	Time    string `json:"time"`
	Type    string `json:"type"` // info, user, agent, tool, handoff, error
	Session string `json:"session,omitempty"`
	Message string `json:"message"`
}

// Server is the dashboard server.
type Server struct {
	app     *fiber.App
	cfg     Config
	logger  *slog.Logger
	started time.Time

	logs   []LogEntry
	logsMu sync.RWMutex

	// Hubs for websocket broadcast, topic = session ID.
	eventHub *hub.Hub
	audioHub *hub.Hub
}

// NewServer creates the dashboard server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Worker == nil {
		return nil, errors.New("web: worker required")
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}

	s := &Server{
		cfg:      cfg,
		logger:   log.Component("web"),
		started:  time.Now(),
		logs:     make([]LogEntry, 0, maxLogs),
		eventHub: hub.New("events"),
		audioHub: hub.New("audio"),
	}

	app := fiber.New(fiber.Config{
		AppName:               fmt.Sprintf("Voice Agents (%s)", cfg.Demo),
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/logs", s.handleGetLogs)
	api.Post("/sessions", s.handleCreateSession)
	api.Get("/sessions", s.handleListSessions)
	api.Get("/sessions/:id", s.handleGetSession)
	api.Delete("/sessions/:id", s.handleEndSession)
	api.Post("/sessions/:id/say", s.handleSay)
	api.Get("/sessions/:id/tools", s.handleListTools)
	api.Post("/sessions/:id/tools/:name", s.handleTriggerTool)

	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", websocket.New(s.handleEventsWS))
	app.Get("/ws/sessions/:id/audio", s.authorizeAudio, websocket.New(s.handleAudioWS))

	s.app = app
	return s, nil
}

// App returns the fiber app, for tests and extra routes.
func (s *Server) App() *fiber.App { return s.app }

// Mount adds a demo's routes under /api.
func (s *Server) Mount(r RouteRegistrar) {
	r.Routes(s.app.Group("/api"))
}

// Start runs the hubs and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go s.eventHub.Run(ctx)
	go s.audioHub.Run(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
			s.logger.Warn("dashboard shutdown", "error", err)
		}
	}()

	fmt.Printf("🌐 Web dashboard: http://localhost:%s\n", s.cfg.Port)
	return s.app.Listen(":" + s.cfg.Port)
}

// StartAsync serves in a goroutine.
func (s *Server) StartAsync(ctx context.Context) {
	go func() {
		if err := s.Start(ctx); err != nil {
			fmt.Printf("⚠️  Web server error: %v\n", err)
		}
	}()
}

// Observe forwards a session's events and audio to the dashboard. Register
// it as a worker session hook.
func (s *Server) Observe(_ *agent.JobContext, sess *agent.Session) {
	id := sess.ID()
	sess.Subscribe(func(e agent.Event) {
		if entry, ok := logEntry(e); ok {
			s.AddLog(entry)
		}
		if err := s.eventHub.BroadcastJSON(id, e); err != nil {
			s.logger.Warn("encode event", "error", err)
		}
	})
	sess.SubscribeAudio(func(pcm16 []byte) {
		s.audioHub.BroadcastBinary(id, pcm16)
	})
}

// AddLog appends to the log buffer.
func (s *Server) AddLog(entry LogEntry) {
	if entry.Time == "" {
		entry.Time = time.Now().Format("15:04:05")
	}
	s.logsMu.Lock()
	s.logs = append(s.logs, entry)
	if len(s.logs) > maxLogs {
		s.logs = s.logs[1:]
	}
	s.logsMu.Unlock()
}

// Logs returns a copy of the log buffer.
func (s *Server) Logs() []LogEntry {
	s.logsMu.RLock()
	defer s.logsMu.RUnlock()
	return append([]LogEntry(nil), s.logs...)
}

func logEntry(e agent.Event) (LogEntry, bool) {
	entry := LogEntry{Time: e.Time.Format("15:04:05"), Session: e.SessionID}
	switch e.Type {
	case agent.EventTranscript:
		entry.Type, entry.Message = "user", e.Text
	case agent.EventResponse:
		entry.Type, entry.Message = "agent", e.Agent+": "+e.Text
	case agent.EventTool:
		entry.Type, entry.Message = "tool", e.Tool+" → "+e.Result
		if e.Failed {
			entry.Type = "error"
		}
	case agent.EventHandoff:
		entry.Type, entry.Message = "handoff", e.From+" → "+e.To
	case agent.EventError:
		entry.Type, entry.Message = "error", e.Text
	case agent.EventStarted:
		entry.Type, entry.Message = "info", "session started in "+e.Room
	case agent.EventEnded:
		entry.Type, entry.Message = "info", "session ended"
	default:
		return LogEntry{}, false
	}
	return entry, true
}
