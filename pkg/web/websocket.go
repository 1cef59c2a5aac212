package web

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-voiceagents/pkg/hub"
	"github.com/teslashibe/go-voiceagents/pkg/livekit"
)

// handleEventsWS streams session events. ?session=<id> narrows the stream
// to one session.
func (s *Server) handleEventsWS(c *websocket.Conn) {
	client := hub.NewClient(s.eventHub, c, c.Query("session"))
	client.Run()
}

// authorizeAudio requires a room token for the session's room before the
// websocket upgrade.
func (s *Server) authorizeAudio(c *fiber.Ctx) error {
	jc, ok := s.cfg.Worker.Job(c.Params("id"))
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "session not found")
	}
	if _, err := livekit.VerifyRoom(s.cfg.LiveKit.APISecret, c.Query("token"), jc.Job.Room); err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, err.Error())
	}
	return c.Next()
}

// handleAudioWS bridges browser audio: binary frames in are user PCM16,
// binary frames out are the agent's synthesized PCM16.
func (s *Server) handleAudioWS(c *websocket.Conn) {
	id := c.Params("id")
	jc, ok := s.cfg.Worker.Job(id)
	if !ok {
		c.Close()
		return
	}
	sess := jc.Session()
	if sess == nil {
		s.logger.Warn("audio bridge before session start", "session", id)
		c.Close()
		return
	}

	client := hub.NewClient(s.audioHub, c, id)
	client.OnMessage = func(mt int, data []byte) {
		if mt != websocket.BinaryMessage {
			return
		}
		if err := sess.SendAudio(data); err != nil {
			s.logger.Debug("audio in dropped", "session", id, "error", err)
		}
	}
	client.Run()
}
