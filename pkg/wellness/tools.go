package wellness

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/teslashibe/go-voiceagents/pkg/voice"
)

const (
	savedFormat   = "Thank you, %s. Your check-in is saved. %s"
	saveFailedMsg = "I'm sorry, I had trouble saving your check-in. Please try again in a moment."
	noPreviousMsg = "There are no previous check-ins yet. This is the first one."
	readFailedMsg = "I couldn't look up earlier check-ins right now."
)

// Tools returns the wellness tools bound to conv.
func (d *Demo) Tools(conv *Conversation, logger *slog.Logger) []voice.Tool {
	if logger == nil {
		logger = d.logger
	}

	return []voice.Tool{
		{
			Name: "save_check_in",
			Description: "Save today's wellness check-in. Use it only after recapping the answers and " +
				"the user agreeing the recap is right.",
			Parameters: voice.ObjectSchema(map[string]any{
				"user_name":  voice.StringParam("The user's name"),
				"mood":       voice.StringParam("How the user feels today, in their words"),
				"energy":     voice.StringParam("The user's energy level, e.g. low, medium, high"),
				"objectives": voice.StringParam(`Comma-separated goals for today, or "None"`),
				"stressors":  voice.StringParam(`What is stressing the user, or "None"`),
			}, "user_name", "mood", "energy", "objectives"),
			Handler: func(args map[string]any) (string, error) {
				var req CheckInRequest
				if err := voice.DecodeArgs(args, &req); err != nil {
					return "", err
				}
				return d.SaveCheckIn(conv, req, logger), nil
			},
		},
		{
			Name:        "get_previous_check_in",
			Description: "Look up the user's most recent saved check-in.",
			Parameters:  voice.ObjectSchema(nil),
			Handler: func(map[string]any) (string, error) {
				return d.PreviousCheckIn(logger), nil
			},
		},
	}
}

// SaveCheckIn validates and appends req to the log. It always returns text
// for the model.
func (d *Demo) SaveCheckIn(conv *Conversation, req CheckInRequest, logger *slog.Logger) string {
	if logger == nil {
		logger = d.logger
	}

	if err := req.Validate(); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return fmt.Sprintf("Before I save, I still need your %s.", strings.Join(verr.Fields, ", "))
		}
		return saveFailedMsg
	}

	c := req.CheckIn(d.now())
	if err := d.store.Append(c); err != nil {
		logger.Error("failed to save check-in", "error", err)
		return saveFailedMsg
	}
	conv.saved(c)
	logger.Info("check-in saved", "check_in_id", c.ID, "path", d.store.Path())

	d.syncJournal(c, logger)
	for _, fn := range d.onSaved {
		fn(c)
	}

	return fmt.Sprintf(savedFormat, c.UserName, c.Summary)
}

// PreviousCheckIn describes the latest saved check-in.
func (d *Demo) PreviousCheckIn(logger *slog.Logger) string {
	if logger == nil {
		logger = d.logger
	}

	last, err := d.store.Last()
	if err != nil {
		logger.Error("failed to read check-ins", "error", err)
		return readFailedMsg
	}
	if last == nil {
		return noPreviousMsg
	}
	return fmt.Sprintf("The last check-in was on %s. %s", last.Timestamp.Format("Monday, January 2"), last.Summary)
}
