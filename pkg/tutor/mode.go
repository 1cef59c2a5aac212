package tutor

import (
	"errors"
	"fmt"
	"strings"
)

// Mode is one tutor persona.
type Mode string

const (
	ModeGreeter   Mode = "greeter"
	ModeLearn     Mode = "learn"
	ModeQuiz      Mode = "quiz"
	ModeTeachBack Mode = "teach_back"
)

// Modes lists every mode in presentation order.
var Modes = []Mode{ModeGreeter, ModeLearn, ModeQuiz, ModeTeachBack}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	for _, known := range Modes {
		if m == known {
			return true
		}
	}
	return false
}

// Label is the spoken form of the mode.
func (m Mode) Label() string {
	return strings.ReplaceAll(string(m), "_", " ")
}

// ParseMode normalizes case, spaces and hyphens: "Teach-Back" and
// "teach back" both parse as ModeTeachBack.
func ParseMode(s string) (Mode, bool) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.Join(strings.FieldsFunc(norm, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_'
	}), "_")
	m := Mode(norm)
	return m, m.Valid()
}

// Table lists, for each mode, the modes it may hand off to.
type Table map[Mode][]Mode

// DefaultTable lets the greeter route to any study mode and every study mode
// move to another one or back to the greeter.
var DefaultTable = Table{
	ModeGreeter:   {ModeLearn, ModeQuiz, ModeTeachBack},
	ModeLearn:     {ModeQuiz, ModeTeachBack, ModeGreeter},
	ModeQuiz:      {ModeLearn, ModeTeachBack, ModeGreeter},
	ModeTeachBack: {ModeLearn, ModeQuiz, ModeGreeter},
}

// Next resolves a requested mode name from the current mode. It fails for
// unknown names and for modes not reachable from the current one.
func (t Table) Next(from Mode, requested string) (Mode, bool) {
	to, ok := ParseMode(requested)
	if !ok {
		return "", false
	}
	for _, m := range t[from] {
		if m == to {
			return to, true
		}
	}
	return "", false
}

// Choices returns the spoken labels of the modes reachable from m.
func (t Table) Choices(from Mode) []string {
	labels := make([]string, len(t[from]))
	for i, m := range t[from] {
		labels[i] = m.Label()
	}
	return labels
}

// Clarification is the reply for a switch request outside the vocabulary.
func (t Table) Clarification(from Mode) string {
	return fmt.Sprintf("I can switch to: %s. Which would you like?", strings.Join(t.Choices(from), ", "))
}

// ErrInvalidTable is wrapped by every Validate failure.
var ErrInvalidTable = errors.New("tutor: invalid mode table")

// Validate checks the table against the mode enumeration and the persona
// definitions: every edge endpoint is a known mode, every mode has a persona
// and at least one outgoing edge, and every mode is reachable from the greeter.
func (t Table) Validate(personas map[Mode]Persona) error {
	var errs []error
	for from, targets := range t {
		if !from.Valid() {
			errs = append(errs, fmt.Errorf("unknown mode %q", from))
		}
		for _, to := range targets {
			if !to.Valid() {
				errs = append(errs, fmt.Errorf("%s: unknown target %q", from, to))
			}
			if to == from {
				errs = append(errs, fmt.Errorf("%s: edge to itself", from))
			}
		}
	}

	for _, m := range Modes {
		if _, ok := personas[m]; !ok {
			errs = append(errs, fmt.Errorf("%s: no persona", m))
		}
		if len(t[m]) == 0 {
			errs = append(errs, fmt.Errorf("%s: no outgoing transition", m))
		}
	}

	seen := map[Mode]bool{ModeGreeter: true}
	queue := []Mode{ModeGreeter}
	for len(queue) > 0 {
		m := queue[0]
		queue = queue[1:]
		for _, next := range t[m] {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	for _, m := range Modes {
		if !seen[m] {
			errs = append(errs, fmt.Errorf("%s: unreachable from %s", m, ModeGreeter))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidTable, errors.Join(errs...))
	}
	return nil
}
