package barista

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/teslashibe/go-voiceagents/pkg/voice"
)

// Tool result texts.
const (
	savedFormat   = "Perfect! Your order has been saved. Order ID: %s. Your %s %s with %s milk will be ready shortly, %s!"
	saveFailedMsg = "I apologize, there was an issue saving your order. Please let a staff member know."
)

func orderParameters() map[string]any {
	return voice.ObjectSchema(map[string]any{
		"drink_type":    voice.StringParam("Type of coffee drink, e.g. Latte, Cappuccino, Americano"),
		"size":          voice.StringParam("Size of the drink: Small, Medium or Large"),
		"milk":          voice.StringParam("Milk preference: Whole, Skim, Oat, Almond, Soy or None"),
		"extras":        voice.StringParam(`Comma-separated extras, or "None"`),
		"customer_name": voice.StringParam("Customer's name for the order"),
	}, "drink_type", "size", "milk", "extras", "customer_name")
}

// Tools returns the barista tools bound to conv.
func (d *Demo) Tools(conv *Conversation, logger *slog.Logger) []voice.Tool {
	if logger == nil {
		logger = d.logger
	}

	update := voice.ObjectSchema(map[string]any{
		"drink_type":    voice.StringParam("Type of coffee drink, if mentioned"),
		"size":          voice.StringParam("Small, Medium or Large, if mentioned"),
		"milk":          voice.StringParam("Milk preference, if mentioned"),
		"extras":        voice.StringParam(`Comma-separated extras, or "None", if mentioned`),
		"customer_name": voice.StringParam("Customer's name, if mentioned"),
	})

	return []voice.Tool{
		{
			Name:        "update_order",
			Description: "Record order details the customer has given so far. Returns what is still missing.",
			Parameters:  update,
			Handler: func(args map[string]any) (string, error) {
				var req OrderRequest
				if err := voice.DecodeArgs(args, &req); err != nil {
					return "", err
				}
				state := conv.Update(req)
				if missing := state.Missing(); len(missing) > 0 {
					return "Noted. Still needed: " + strings.Join(missing, ", ") + ".", nil
				}
				return "All details collected: " + state.Summary() + ". Read the order back and ask the customer to confirm before saving.", nil
			},
		},
		{
			Name: "save_order",
			Description: "Save the completed coffee order. Use it ONLY when every detail is collected " +
				"and the customer has confirmed the order.",
			Parameters: orderParameters(),
			Handler: func(args map[string]any) (string, error) {
				var req OrderRequest
				if err := voice.DecodeArgs(args, &req); err != nil {
					return "", err
				}
				return d.SaveOrder(conv, req, logger), nil
			},
		},
	}
}

// SaveOrder validates and persists req. It always returns text for the
// model: a confirmation, a request for the missing fields, or an apology.
func (d *Demo) SaveOrder(conv *Conversation, req OrderRequest, logger *slog.Logger) string {
	if logger == nil {
		logger = d.logger
	}

	if err := req.Validate(); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			conv.Update(req)
			return fmt.Sprintf("I can't save the order yet. Still needed: %s. Please ask the customer.",
				strings.Join(verr.Fields, ", "))
		}
		return saveFailedMsg
	}

	logger.Info("saving order", "customer", strings.TrimSpace(req.CustomerName))

	order := req.Order(d.now())
	id, err := d.store.Save(order)
	if err != nil {
		logger.Error("failed to save order", "error", err)
		return saveFailedMsg
	}
	conv.saved(id, order)
	logger.Info("order saved", "order_id", id, "dir", d.store.Dir())

	for _, fn := range d.onSaved {
		fn(StoredOrder{ID: id, Order: order})
	}

	return fmt.Sprintf(savedFormat, id, order.Size, order.DrinkType, order.Milk, order.Name)
}
