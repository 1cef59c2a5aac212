package barista

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// Routes mounts the order endpoints on the dashboard API.
func (d *Demo) Routes(api fiber.Router) {
	api.Get("/orders", d.handleListOrders)
	api.Get("/orders/:id", d.handleGetOrder)
}

func (d *Demo) handleListOrders(c *fiber.Ctx) error {
	orders, err := d.store.List()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(orders)
}

func (d *Demo) handleGetOrder(c *fiber.Ctx) error {
	o, err := d.store.Get(c.Params("id"))
	if errors.Is(err, ErrOrderNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(o)
}
