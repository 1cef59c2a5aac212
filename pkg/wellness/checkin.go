package wellness

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-voiceagents/pkg/voice"
)

// CheckIn is one saved daily check-in.
type CheckIn struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	UserName   string    `json:"user_name"`
	Mood       string    `json:"mood"`
	Energy     string    `json:"energy"`
	Objectives []string  `json:"objectives"`
	Stressors  *string   `json:"stressors"`
	Summary    string    `json:"summary"`
}

// timestampLayouts are tried in order when reading a check-in. Logs
// written by other tools may carry local times without an offset.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// UnmarshalJSON accepts timestamps with or without a UTC offset. Offset-less
// times are read as local time.
func (c *CheckIn) UnmarshalJSON(data []byte) error {
	type plain CheckIn
	aux := struct {
		*plain
		Timestamp *string `json:"timestamp"`
	}{plain: (*plain)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Timestamp == nil || *aux.Timestamp == "" {
		c.Timestamp = time.Time{}
		return nil
	}
	ts, err := parseTimestamp(*aux.Timestamp)
	if err != nil {
		return err
	}
	c.Timestamp = ts
	return nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("wellness: unrecognized timestamp %q", s)
}

// Summarize renders the one-line recap stored with a check-in.
func Summarize(c CheckIn) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s felt %s with %s energy", c.UserName, c.Mood, c.Energy)
	if len(c.Objectives) > 0 {
		b.WriteString(", focusing on " + strings.Join(c.Objectives, ", "))
	}
	if c.Stressors != nil {
		b.WriteString("; stressors: " + *c.Stressors)
	}
	b.WriteString(".")
	return b.String()
}

// CheckInRequest is the argument schema of save_check_in.
type CheckInRequest struct {
	UserName   string     `json:"user_name"`
	Mood       string     `json:"mood"`
	Energy     string     `json:"energy"`
	Objectives voice.List `json:"objectives"`
	Stressors  string     `json:"stressors,omitempty"`
}

// ValidationError names the required fields a request lacks.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "wellness: missing " + strings.Join(e.Fields, ", ")
}

// Validate requires user name, mood and energy.
func (r CheckInRequest) Validate() error {
	state := CheckInState{
		UserName: strings.TrimSpace(r.UserName),
		Mood:     strings.TrimSpace(r.Mood),
		Energy:   strings.TrimSpace(r.Energy),
	}
	if missing := state.Missing(); len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}

// CheckIn builds the record to persist.
func (r CheckInRequest) CheckIn(now time.Time) CheckIn {
	c := CheckIn{
		ID:         uuid.NewString(),
		Timestamp:  now,
		UserName:   strings.TrimSpace(r.UserName),
		Mood:       strings.TrimSpace(r.Mood),
		Energy:     strings.TrimSpace(r.Energy),
		Objectives: r.Objectives.Items(),
		Stressors:  stressors(r.Stressors),
	}
	c.Summary = Summarize(c)
	return c
}

// stressors maps "" and "none" to null.
func stressors(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "none") {
		return nil
	}
	return &s
}

// CheckInState mirrors the answers collected so far in one conversation.
type CheckInState struct {
	UserName   string   `json:"user_name"`
	Mood       string   `json:"mood"`
	Energy     string   `json:"energy"`
	Objectives []string `json:"objectives"`
	Stressors  *string  `json:"stressors"`
}

// Missing lists the required answers not yet collected, in asking order.
func (s CheckInState) Missing() []string {
	var missing []string
	if s.UserName == "" {
		missing = append(missing, "name")
	}
	if s.Mood == "" {
		missing = append(missing, "mood")
	}
	if s.Energy == "" {
		missing = append(missing, "energy level")
	}
	return missing
}

// Complete reports whether every required answer is present.
func (s CheckInState) Complete() bool { return len(s.Missing()) == 0 }

// Conversation is the per-session check-in context.
type Conversation struct {
	mu       sync.Mutex
	state    CheckInState
	previous *CheckIn
	savedID  string
}

// NewConversation starts a conversation; previous may be nil.
func NewConversation(previous *CheckIn) *Conversation {
	return &Conversation{previous: previous, state: CheckInState{Objectives: []string{}}}
}

// State returns a copy of the collected answers.
func (c *Conversation) State() CheckInState {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	s.Objectives = append([]string{}, c.state.Objectives...)
	return s
}

// Previous returns the check-in loaded when the conversation began.
func (c *Conversation) Previous() *CheckIn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.previous
}

// SavedID returns the ID of the check-in saved in this conversation.
func (c *Conversation) SavedID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.savedID
}

func (c *Conversation) saved(ci CheckIn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.savedID = ci.ID
	c.state = CheckInState{
		UserName:   ci.UserName,
		Mood:       ci.Mood,
		Energy:     ci.Energy,
		Objectives: append([]string{}, ci.Objectives...),
		Stressors:  ci.Stressors,
	}
}
