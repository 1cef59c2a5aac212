// Package tutor is the multi-mode tutor demo: a greeter persona routes the
// user to learn, quiz or teach back personas, each with its own voice, all
// backed by one read-only concept file.
package tutor

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-voiceagents/pkg/agent"
)

// Name is the demo name.
const Name = "tutor"

// Conversation carries the current mode across handoffs.
type Conversation struct {
	mu   sync.Mutex
	mode Mode
}

// NewConversation starts at the greeter.
func NewConversation() *Conversation {
	return &Conversation{mode: ModeGreeter}
}

// Mode returns the active mode.
func (c *Conversation) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

func (c *Conversation) setMode(m Mode) {
	c.mu.Lock()
	c.mode = m
	c.mu.Unlock()
}

// HandoffFunc activates another agent in the running session.
type HandoffFunc func(a agent.Agent) error

// Demo holds the concept set and the persona router.
type Demo struct {
	content  *Content
	table    Table
	personas map[Mode]Persona
	logger   *slog.Logger
}

// Option configures a Demo.
type Option func(*Demo)

// WithLogger sets the demo logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Demo) { d.logger = l }
}

// WithTable replaces the mode transition table.
func WithTable(t Table) Option {
	return func(d *Demo) { d.table = t }
}

// WithPersonas replaces the persona definitions.
func WithPersonas(p map[Mode]Persona) Option {
	return func(d *Demo) { d.personas = p }
}

// New creates the demo. The transition table is validated here so a broken
// router fails at startup rather than mid-conversation.
func New(content *Content, opts ...Option) (*Demo, error) {
	if content == nil {
		content = NewContent()
	}
	d := &Demo{
		content:  content,
		table:    DefaultTable,
		personas: Personas(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if err := d.table.Validate(d.personas); err != nil {
		return nil, err
	}
	return d, nil
}

// Name returns the demo name.
func (d *Demo) Name() string { return Name }

// Content returns the concept set.
func (d *Demo) Content() *Content { return d.content }

// Table returns the transition table.
func (d *Demo) Table() Table { return d.table }

// Agent builds the persona of mode m bound to one conversation.
func (d *Demo) Agent(m Mode, conv *Conversation, handoff HandoffFunc, logger *slog.Logger) agent.Agent {
	p := d.personas[m]
	a := agent.Agent{
		Name:         string(m),
		Instructions: p.Instructions,
		Tools:        d.Tools(m, conv, handoff, logger),
		Voice:        p.Voice,
	}
	if m == ModeGreeter {
		a.Greeting = Greeting
	}
	return a
}

// Entrypoint starts one tutoring conversation at the greeter.
func (d *Demo) Entrypoint(jc *agent.JobContext) error {
	conv := NewConversation()
	handoff := func(a agent.Agent) error {
		s := jc.Session()
		if s == nil {
			return fmt.Errorf("tutor: handoff to %s: %w", a.Name, agent.ErrSessionClosed)
		}
		return s.UpdateAgent(a)
	}
	jc.AddShutdownCallback(func() {
		jc.Logger.Info("conversation ended", "mode", conv.Mode())
	})

	_, err := jc.StartSession(d.Agent(ModeGreeter, conv, handoff, jc.Logger))
	return err
}
