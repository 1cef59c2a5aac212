package wellness

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// Routes mounts the check-in and journal endpoints on the dashboard API.
func (d *Demo) Routes(api fiber.Router) {
	api.Get("/check-ins", d.handleListCheckIns)
	api.Get("/check-ins/last", d.handleLastCheckIn)

	journal := api.Group("/journal")
	journal.Get("/status", d.handleJournalStatus)
	journal.Get("/auth", d.handleJournalAuth)
	journal.Get("/callback", d.handleJournalCallback)
	journal.Post("/disconnect", d.handleJournalDisconnect)
}

func (d *Demo) handleListCheckIns(c *fiber.Ctx) error {
	all, err := d.store.List()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(all)
}

func (d *Demo) handleLastCheckIn(c *fiber.Ctx) error {
	last, err := d.store.Last()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if last == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no check-ins yet"})
	}
	return c.JSON(last)
}

func (d *Demo) handleJournalStatus(c *fiber.Ctx) error {
	if d.journal == nil {
		return c.JSON(fiber.Map{"enabled": false})
	}
	return c.JSON(fiber.Map{"enabled": true, "status": d.journal.Status()})
}

func (d *Demo) handleJournalAuth(c *fiber.Ctx) error {
	if d.journal == nil {
		return fiber.NewError(fiber.StatusNotFound, "journal not configured")
	}
	return c.Redirect(d.journal.AuthURL(), fiber.StatusTemporaryRedirect)
}

func (d *Demo) handleJournalCallback(c *fiber.Ctx) error {
	if d.journal == nil {
		return fiber.NewError(fiber.StatusNotFound, "journal not configured")
	}
	code := c.Query("code")
	if code == "" {
		return fiber.NewError(fiber.StatusBadRequest, "missing authorization code")
	}
	err := d.journal.Exchange(c.UserContext(), c.Query("state"), code)
	if errors.Is(err, ErrInvalidState) {
		d.logger.Warn("journal callback rejected", "error", err)
		return fiber.NewError(fiber.StatusBadRequest, "invalid or expired state")
	}
	if err != nil {
		d.logger.Error("journal auth failed", "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "authentication failed")
	}

	c.Type("html")
	return c.SendString(`<!DOCTYPE html>
<html>
<head><title>Wellness Journal connected</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 20vh;">
  <h1>Journal connected</h1>
  <p>Check-ins will now be copied to Google Docs. You can close this window.</p>
  <script>setTimeout(function() { window.close(); }, 3000);</script>
</body>
</html>`)
}

func (d *Demo) handleJournalDisconnect(c *fiber.Ctx) error {
	if d.journal == nil {
		return fiber.NewError(fiber.StatusNotFound, "journal not configured")
	}
	if err := d.journal.Disconnect(); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"success": true})
}
