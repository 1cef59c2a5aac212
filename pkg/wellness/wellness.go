// Package wellness is the daily check-in demo: a supportive companion that
// asks about mood, energy and goals and appends each check-in to a JSON log,
// optionally mirrored to a Google Doc.
package wellness

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/teslashibe/go-voiceagents/pkg/agent"
	"github.com/teslashibe/go-voiceagents/pkg/tts"
)

// Name is the demo and persona name.
const Name = "wellness"

const baseInstructions = `You are a warm, supportive wellness companion doing a short daily check-in by voice.

During the check-in:
1. Ask the user's name if you do not know it
2. Ask how they are feeling today (their mood)
3. Ask about their energy level
4. Ask for one to three things they want to get done today
5. Ask gently whether anything is stressing them out; this is optional and "none" is a fine answer
6. Recap what you heard in a sentence or two and ask if it sounds right
7. After they agree, call save_check_in, then close with a short encouraging note

You are not a therapist or a doctor. Never diagnose, never give medical advice, and if the user mentions a crisis
encourage them to reach out to a trusted person or a professional.
You can call get_previous_check_in if the user asks about earlier days.

Keep replies short and kind since this is a voice call.
Use plain sentences without emojis, asterisks, lists or other formatting.`

// Instructions returns the persona prompt, mentioning the previous check-in
// when there is one.
func Instructions(previous *CheckIn) string {
	if previous == nil {
		return baseInstructions
	}

	var b strings.Builder
	b.WriteString(baseInstructions)
	fmt.Fprintf(&b, "\n\nThe last check-in was on %s. %s", previous.Timestamp.Format("Monday, January 2"), previous.Summary)
	b.WriteString("\nEarly in the conversation, briefly ask how things went since then, referring to one detail from it.")
	return b.String()
}

// Greeting returns the instruction for the first reply.
func Greeting(previous *CheckIn) string {
	if previous == nil {
		return "Greet the user warmly, introduce yourself as their daily wellness companion and ask for their name."
	}
	return fmt.Sprintf("Welcome %s back warmly by name and ask how they are feeling today.", previous.UserName)
}

// Demo wires the wellness persona to the check-in log.
type Demo struct {
	store   *LogStore
	journal *Journal
	logger  *slog.Logger
	voice   tts.Voice
	now     func() time.Time
	onSaved []func(CheckIn)
}

// Option configures a Demo.
type Option func(*Demo)

// WithLogger sets the demo logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Demo) { d.logger = l }
}

// WithJournal mirrors saved check-ins to j.
func WithJournal(j *Journal) Option {
	return func(d *Demo) { d.journal = j }
}

// WithVoice overrides the persona voice.
func WithVoice(v tts.Voice) Option {
	return func(d *Demo) { d.voice = v }
}

// WithClock sets the time source used for check-in timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Demo) { d.now = now }
}

// OnCheckInSaved registers fn to run after every saved check-in.
func OnCheckInSaved(fn func(CheckIn)) Option {
	return func(d *Demo) { d.onSaved = append(d.onSaved, fn) }
}

// New creates the demo around store.
func New(store *LogStore, opts ...Option) *Demo {
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

// Store returns the check-in log.
func (d *Demo) Store() *LogStore { return d.store }

// Journal returns the Google Docs journal, or nil.
func (d *Demo) Journal() *Journal { return d.journal }

// Agent builds the companion persona bound to one conversation.
func (d *Demo) Agent(conv *Conversation, logger *slog.Logger) agent.Agent {
	prev := conv.Previous()
	return agent.Agent{
		Name:         Name,
		Instructions: Instructions(prev),
		Tools:        d.Tools(conv, logger),
		Voice:        d.voice,
		Greeting:     Greeting(prev),
	}
}

// Entrypoint starts one check-in conversation.
func (d *Demo) Entrypoint(jc *agent.JobContext) error {
	prev, err := d.store.Last()
	if err != nil {
		jc.Logger.Error("failed to read previous check-in", "error", err)
	}

	conv := NewConversation(prev)
	jc.AddShutdownCallback(func() {
		jc.Logger.Info("conversation ended", "check_in_id", conv.SavedID(), "missing", conv.State().Missing())
	})

	_, err = jc.StartSession(d.Agent(conv, jc.Logger))
	return err
}

// syncJournal mirrors c to the journal. Failures are only logged.
func (d *Demo) syncJournal(c CheckIn, logger *slog.Logger) {
	if d.journal == nil || !d.journal.Connected() {
		return
	}
	if err := d.journal.Record(context.Background(), c); err != nil {
		logger.Warn("journal sync failed", "check_in_id", c.ID, "error", err)
		return
	}
	logger.Info("journal updated", "check_in_id", c.ID, "doc_id", d.journal.DocID())
}
