package barista

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-voiceagents/pkg/voice"
)

// StatusPending is the status of every newly saved order.
const StatusPending = "pending"

// Order is the persisted order record.
type Order struct {
	DrinkType string    `json:"drinkType"`
	Size      string    `json:"size"`
	Milk      string    `json:"milk"`
	Extras    []string  `json:"extras"`
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
}

// OrderState mirrors the fields collected so far in one conversation.
type OrderState struct {
	DrinkType string   `json:"drinkType"`
	Size      string   `json:"size"`
	Milk      string   `json:"milk"`
	Extras    []string `json:"extras"`
	Name      string   `json:"name"`
}

// Missing lists the required fields not yet collected, in asking order.
func (s OrderState) Missing() []string {
	var missing []string
	if s.DrinkType == "" {
		missing = append(missing, "drink type")
	}
	if s.Size == "" {
		missing = append(missing, "size")
	}
	if s.Milk == "" {
		missing = append(missing, "milk preference")
	}
	if s.Name == "" {
		missing = append(missing, "customer name")
	}
	return missing
}

// Complete reports whether every required field is present.
func (s OrderState) Complete() bool {
	return len(s.Missing()) == 0
}

// Summary describes the order in one spoken phrase.
func (s OrderState) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s with %s milk", s.Size, s.DrinkType, s.Milk)
	if len(s.Extras) > 0 {
		b.WriteString(" plus " + strings.Join(s.Extras, " and "))
	}
	if s.Name != "" {
		b.WriteString(" for " + s.Name)
	}
	return b.String()
}

// OrderRequest is the argument schema of save_order and update_order.
type OrderRequest struct {
	DrinkType    string     `json:"drink_type"`
	Size         string     `json:"size"`
	Milk         string     `json:"milk"`
	Extras       voice.List `json:"extras"`
	CustomerName string     `json:"customer_name"`
}

func (r *OrderRequest) normalize() {
	r.DrinkType = strings.TrimSpace(r.DrinkType)
	r.Size = strings.TrimSpace(r.Size)
	r.Milk = strings.TrimSpace(r.Milk)
	r.CustomerName = strings.TrimSpace(r.CustomerName)
}

// ValidationError names the required fields a request lacks.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "barista: missing " + strings.Join(e.Fields, ", ")
}

// Validate requires drink type, size, milk and customer name.
func (r OrderRequest) Validate() error {
	r.normalize()
	state := OrderState{DrinkType: r.DrinkType, Size: r.Size, Milk: r.Milk, Name: r.CustomerName}
	if missing := state.Missing(); len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}

// Order builds the record to persist.
func (r OrderRequest) Order(now time.Time) Order {
	r.normalize()
	return Order{
		DrinkType: r.DrinkType,
		Size:      r.Size,
		Milk:      r.Milk,
		Extras:    r.Extras.Items(),
		Name:      r.CustomerName,
		Timestamp: now,
		Status:    StatusPending,
	}
}

// Conversation is the per-session order context. Tool closures of one
// session share it; it is discarded when the session ends.
type Conversation struct {
	mu      sync.Mutex
	state   OrderState
	orderID string
}

// NewConversation returns an empty order context.
func NewConversation() *Conversation {
	return &Conversation{state: OrderState{Extras: []string{}}}
}

// State returns a copy of the collected fields.
func (c *Conversation) State() OrderState {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	s.Extras = append([]string{}, c.state.Extras...)
	return s
}

// OrderID returns the ID of the saved order, if any.
func (c *Conversation) OrderID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.orderID
}

// Update merges the non-empty fields of r into the state.
func (c *Conversation) Update(r OrderRequest) OrderState {
	r.normalize()
	c.mu.Lock()
	defer c.mu.Unlock()

	if r.DrinkType != "" {
		c.state.DrinkType = r.DrinkType
	}
	if r.Size != "" {
		c.state.Size = r.Size
	}
	if r.Milk != "" {
		c.state.Milk = r.Milk
	}
	if strings.TrimSpace(string(r.Extras)) != "" {
		c.state.Extras = r.Extras.Items()
	}
	if r.CustomerName != "" {
		c.state.Name = r.CustomerName
	}
	return c.state
}

// saved makes the state equal to the saved order.
func (c *Conversation) saved(id string, o Order) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orderID = id
	c.state = OrderState{
		DrinkType: o.DrinkType,
		Size:      o.Size,
		Milk:      o.Milk,
		Extras:    append([]string{}, o.Extras...),
		Name:      o.Name,
	}
}
