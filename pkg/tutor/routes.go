package tutor

import (
	"github.com/gofiber/fiber/v2"
)

// ModeInfo describes a mode on the dashboard.
type ModeInfo struct {
	Mode    Mode     `json:"mode"`
	Persona string   `json:"persona"`
	Voice   string   `json:"voice"`
	Next    []string `json:"next"`
}

// Routes mounts the concept and mode endpoints on the dashboard API.
func (d *Demo) Routes(api fiber.Router) {
	api.Get("/concepts", d.handleListConcepts)
	api.Get("/concepts/:id", d.handleGetConcept)
	api.Get("/modes", d.handleListModes)
}

func (d *Demo) handleListConcepts(c *fiber.Ctx) error {
	return c.JSON(d.content.All())
}

func (d *Demo) handleGetConcept(c *fiber.Ctx) error {
	concept, ok := d.content.Lookup(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": d.content.NotFound()})
	}
	return c.JSON(concept)
}

func (d *Demo) handleListModes(c *fiber.Ctx) error {
	modes := make([]ModeInfo, 0, len(Modes))
	for _, m := range Modes {
		p := d.personas[m]
		next := make([]string, 0, len(d.table[m]))
		for _, to := range d.table[m] {
			next = append(next, string(to))
		}
		modes = append(modes, ModeInfo{Mode: m, Persona: p.Name, Voice: p.Voice.ID, Next: next})
	}
	return c.JSON(modes)
}
