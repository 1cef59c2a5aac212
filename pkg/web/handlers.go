package web

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-voiceagents/pkg/agent"
	"github.com/teslashibe/go-voiceagents/pkg/livekit"
	"github.com/teslashibe/go-voiceagents/pkg/voice"
)

// Status is the dashboard summary.
type Status struct {
	Demo         string  `json:"demo"`
	Uptime       float64 `json:"uptime_seconds"`
	Sessions     int     `json:"sessions"`
	EventClients int     `json:"event_clients"`
	AudioClients int     `json:"audio_clients"`
	LiveKitURL   string  `json:"livekit_url,omitempty"`
}

// SessionInfo describes a running job.
type SessionInfo struct {
	ID        string      `json:"id"`
	Room      string      `json:"room"`
	Identity  string      `json:"identity,omitempty"`
	TextOnly  bool        `json:"text_only"`
	CreatedAt time.Time   `json:"created_at"`
	Agent     string      `json:"agent,omitempty"`
	Usage     voice.Usage `json:"usage"`
}

// CreateSessionRequest is the body of POST /api/sessions.
type CreateSessionRequest struct {
	Identity string            `json:"identity"`
	Name     string            `json:"name"`
	TextOnly bool              `json:"text_only"`
	Metadata map[string]string `json:"metadata"`
}

// CreateSessionResponse carries the room token for the caller.
type CreateSessionResponse struct {
	SessionInfo
	Token string `json:"token"`
	URL   string `json:"url,omitempty"`
}

// ToolInfo describes a tool of the active agent.
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// TriggerToolRequest is the request body for triggering a tool.
type TriggerToolRequest struct {
	Args map[string]any `json:"args"`
}

// SayRequest is the body of POST /api/sessions/:id/say.
type SayRequest struct {
	Text string `json:"text"`
}

func jsonError(c *fiber.Ctx, status int, err error) error {
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(Status{
		Demo:         s.cfg.Demo,
		Uptime:       time.Since(s.started).Seconds(),
		Sessions:     len(s.cfg.Worker.Jobs()),
		EventClients: s.eventHub.ClientCount(),
		AudioClients: s.audioHub.ClientCount(),
		LiveKitURL:   s.cfg.LiveKit.URL,
	})
}

func (s *Server) handleGetLogs(c *fiber.Ctx) error {
	return c.JSON(s.Logs())
}

func sessionInfo(jc *agent.JobContext) SessionInfo {
	info := SessionInfo{
		ID:        jc.Job.ID,
		Room:      jc.Job.Room,
		Identity:  jc.Job.Identity,
		TextOnly:  jc.Job.TextOnly,
		CreatedAt: jc.Job.CreatedAt,
	}
	if sess := jc.Session(); sess != nil {
		info.Agent = sess.Agent().Name
		info.Usage = sess.Usage()
	}
	return info
}

func (s *Server) handleCreateSession(c *fiber.Ctx) error {
	var req CreateSessionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return jsonError(c, fiber.StatusBadRequest, err)
		}
	}
	if req.Identity == "" {
		req.Identity = "user"
	}

	jc, err := s.cfg.Worker.Dispatch(agent.Job{
		Identity: req.Identity,
		Metadata: req.Metadata,
		TextOnly: req.TextOnly,
	})
	if err != nil {
		return fail(c, err)
	}

	token, err := livekit.AccessToken(s.cfg.LiveKit.APIKey, s.cfg.LiveKit.APISecret, livekit.Grant{
		Room:     jc.Job.Room,
		Identity: req.Identity,
		Name:     req.Name,
	})
	if err != nil {
		jc.End()
		return jsonError(c, fiber.StatusInternalServerError, err)
	}

	s.AddLog(LogEntry{Type: "info", Session: jc.Job.ID, Message: "session dispatched to " + jc.Job.Room})
	return c.Status(fiber.StatusCreated).JSON(CreateSessionResponse{
		SessionInfo: sessionInfo(jc),
		Token:       token,
		URL:         s.cfg.LiveKit.URL,
	})
}

func (s *Server) handleListSessions(c *fiber.Ctx) error {
	jobs := s.cfg.Worker.Jobs()
	out := make([]SessionInfo, 0, len(jobs))
	for _, jc := range jobs {
		out = append(out, sessionInfo(jc))
	}
	return c.JSON(out)
}

var errNotStarted = errors.New("web: session not started yet")

// fail maps err to a response status.
func fail(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, agent.ErrJobNotFound), errors.Is(err, agent.ErrUnknownTool):
		status = fiber.StatusNotFound
	case errors.Is(err, errNotStarted), errors.Is(err, agent.ErrSessionClosed), errors.Is(err, voice.ErrNotConnected):
		status = fiber.StatusConflict
	case errors.Is(err, agent.ErrNotRunning):
		status = fiber.StatusServiceUnavailable
	}
	return jsonError(c, status, err)
}

// job resolves :id to a running job.
func (s *Server) job(c *fiber.Ctx) (*agent.JobContext, error) {
	jc, ok := s.cfg.Worker.Job(c.Params("id"))
	if !ok {
		return nil, agent.ErrJobNotFound
	}
	return jc, nil
}

// session resolves :id to a started session.
func (s *Server) session(c *fiber.Ctx) (*agent.Session, error) {
	jc, err := s.job(c)
	if err != nil {
		return nil, err
	}
	sess := jc.Session()
	if sess == nil {
		return nil, errNotStarted
	}
	return sess, nil
}

func (s *Server) handleGetSession(c *fiber.Ctx) error {
	jc, err := s.job(c)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(sessionInfo(jc))
}

func (s *Server) handleEndSession(c *fiber.Ctx) error {
	jc, err := s.job(c)
	if err != nil {
		return fail(c, err)
	}
	jc.End()
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleSay(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return fail(c, err)
	}

	var req SayRequest
	if err := c.BodyParser(&req); err != nil || req.Text == "" {
		return jsonError(c, fiber.StatusBadRequest, errors.New("text required"))
	}
	if err := sess.SendText(req.Text); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusAccepted)
}

func (s *Server) handleListTools(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return fail(c, err)
	}
	a := sess.Agent()
	out := make([]ToolInfo, 0, len(a.Tools))
	for _, t := range a.Tools {
		out = append(out, ToolInfo{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
	}
	return c.JSON(fiber.Map{"agent": a.Name, "tools": out})
}

// handleTriggerTool runs one of the active agent's tools by hand.
func (s *Server) handleTriggerTool(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return fail(c, err)
	}
	name := c.Params("name")

	var req TriggerToolRequest
	if err := c.BodyParser(&req); err != nil {
		req.Args = make(map[string]any)
	}

	result, err := sess.CallTool(name, req.Args)
	if err != nil {
		return fail(c, err)
	}

	s.AddLog(LogEntry{Type: "tool", Session: sess.ID(), Message: "Manual: " + name + " → " + result})
	return c.JSON(fiber.Map{
		"tool":   name,
		"result": result,
	})
}
