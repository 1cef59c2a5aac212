// Package barista is the coffee-ordering demo: a Piku Coffee barista that
// collects a drink order by voice and saves it as a JSON file.
package barista

import (
	"log/slog"
	"time"

	"github.com/teslashibe/go-voiceagents/pkg/agent"
	"github.com/teslashibe/go-voiceagents/pkg/tts"
)

// Name is the demo and persona name.
const Name = "barista"

// Instructions is the barista persona prompt.
const Instructions = `You are a friendly and enthusiastic barista at Piku Coffee, a premium coffee shop known for great service and delicious drinks.

You take coffee orders by voice. You should:

1. Greet the customer warmly and introduce yourself as a Piku Coffee barista
2. Ask about their drink one detail at a time
3. Collect everything the order needs:
   - Drink type (Latte, Cappuccino, Americano, Espresso, Mocha, Cold Brew and so on)
   - Size (Small, Medium or Large)
   - Milk (Whole, Skim, Oat, Almond, Soy, or None for black coffee)
   - Extras, if any (Extra Shot, Whipped Cream, Vanilla Syrup, Caramel Drizzle and so on)
   - The customer's name for the order
4. Call update_order whenever the customer gives you new details; it tells you what is still missing
5. If anything is missing, ask a short clarifying question
6. When you have everything, read the whole order back and ask the customer to confirm
7. Only after they confirm, call save_order, then thank them and tell them it will be ready soon

Keep replies short and conversational since this is a voice call.
Use plain sentences without emojis, asterisks, lists or other formatting.`

// Greeting is the instruction for the first reply of every session.
const Greeting = "Greet the customer warmly as a Piku Coffee barista and ask what they would like to drink."

// Demo wires the barista persona to an order store.
type Demo struct {
	store   *OrderStore
	logger  *slog.Logger
	voice   tts.Voice
	now     func() time.Time
	onSaved []func(StoredOrder)
}

// Option configures a Demo.
type Option func(*Demo)

// WithLogger sets the demo logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Demo) { d.logger = l }
}

// WithVoice overrides the persona voice.
func WithVoice(v tts.Voice) Option {
	return func(d *Demo) { d.voice = v }
}

// WithClock sets the time source used for order timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Demo) { d.now = now }
}

// OnOrderSaved registers fn to run after every saved order.
func OnOrderSaved(fn func(StoredOrder)) Option {
	return func(d *Demo) { d.onSaved = append(d.onSaved, fn) }
}

// New creates the demo around store.
func New(store *OrderStore, opts ...Option) *Demo {
	d := &Demo{
		store:  store,
		logger: slog.Default(),
		voice:  tts.MurfVoices["matthew"],
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name returns the demo name.
func (d *Demo) Name() string { return Name }

// Store returns the order store.
func (d *Demo) Store() *OrderStore { return d.store }

// Agent builds the barista persona bound to one conversation.
func (d *Demo) Agent(conv *Conversation, logger *slog.Logger) agent.Agent {
	return agent.Agent{
		Name:         Name,
		Instructions: Instructions,
		Tools:        d.Tools(conv, logger),
		Voice:        d.voice,
		Greeting:     Greeting,
	}
}

// Entrypoint starts one ordering conversation.
func (d *Demo) Entrypoint(jc *agent.JobContext) error {
	conv := NewConversation()
	jc.AddShutdownCallback(func() {
		if id := conv.OrderID(); id != "" {
			jc.Logger.Info("conversation ended", "order_id", id)
			return
		}
		jc.Logger.Info("conversation ended without an order", "missing", conv.State().Missing())
	})

	_, err := jc.StartSession(d.Agent(conv, jc.Logger))
	return err
}
