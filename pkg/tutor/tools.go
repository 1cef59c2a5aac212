package tutor

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/teslashibe/go-voiceagents/pkg/voice"
)

const switchFailedMsg = "I couldn't switch modes just now. Let's keep going here for the moment."

type conceptRequest struct {
	Concept string `json:"concept"`
}

type switchRequest struct {
	Mode string `json:"mode"`
}

func conceptParameters() map[string]any {
	return voice.ObjectSchema(map[string]any{
		"concept": voice.StringParam("Concept id or title, e.g. variables"),
	}, "concept")
}

// Tools returns the tools of mode m: list_concepts and switch_mode for every
// persona plus the content tool of the mode.
func (d *Demo) Tools(m Mode, conv *Conversation, handoff HandoffFunc, logger *slog.Logger) []voice.Tool {
	if logger == nil {
		logger = d.logger
	}

	tools := []voice.Tool{d.listConceptsTool()}
	switch m {
	case ModeLearn:
		tools = append(tools, d.conceptTool("explain_concept",
			"Look up a concept to explain to the user.",
			func(c Concept) string { return fmt.Sprintf("%s: %s", c.Title, c.Summary) }))
	case ModeQuiz:
		tools = append(tools, d.conceptTool("get_quiz_question",
			"Get a quiz question about a concept.",
			func(c Concept) string { return fmt.Sprintf("Quiz question about %s: %s", c.Title, c.SampleQuestion) }))
	case ModeTeachBack:
		tools = append(tools, d.conceptTool("get_teach_back_prompt",
			"Get the teach back prompt for a concept, with a reference summary to compare against.",
			func(c Concept) string {
				return fmt.Sprintf("Ask the user to explain %s in their own words. Reference summary: %s", c.Title, c.Summary)
			}))
	}
	return append(tools, d.switchTool(m, conv, handoff, logger))
}

func (d *Demo) listConceptsTool() voice.Tool {
	return voice.Tool{
		Name:        "list_concepts",
		Description: "List the concepts available to study.",
		Parameters:  voice.ObjectSchema(nil),
		Handler: func(map[string]any) (string, error) {
			if d.content.Len() == 0 {
				return "No concepts are available right now.", nil
			}
			return "Available concepts are: " + strings.Join(d.content.Titles(), ", ") + ".", nil
		},
	}
}

func (d *Demo) conceptTool(name, description string, render func(Concept) string) voice.Tool {
	return voice.Tool{
		Name:        name,
		Description: description,
		Parameters:  conceptParameters(),
		Handler: func(args map[string]any) (string, error) {
			var req conceptRequest
			if err := voice.DecodeArgs(args, &req); err != nil {
				return "", err
			}
			c, ok := d.content.Lookup(req.Concept)
			if !ok {
				return d.content.NotFound(), nil
			}
			return render(c), nil
		},
	}
}

func (d *Demo) switchTool(from Mode, conv *Conversation, handoff HandoffFunc, logger *slog.Logger) voice.Tool {
	choices := d.table.Choices(from)
	return voice.Tool{
		Name:        "switch_mode",
		Description: "Switch the study mode. Available from here: " + strings.Join(choices, ", ") + ".",
		Parameters: voice.ObjectSchema(map[string]any{
			"mode": voice.StringParam("Mode to switch to: " + strings.Join(choices, ", ")),
		}, "mode"),
		Handler: func(args map[string]any) (string, error) {
			var req switchRequest
			if err := voice.DecodeArgs(args, &req); err != nil {
				return "", err
			}
			return d.SwitchMode(conv, req.Mode, handoff, logger), nil
		},
	}
}

// SwitchMode hands the conversation to the persona of the requested mode.
// Names outside the current mode's vocabulary get the clarification and no
// transfer happens.
func (d *Demo) SwitchMode(conv *Conversation, requested string, handoff HandoffFunc, logger *slog.Logger) string {
	if logger == nil {
		logger = d.logger
	}

	from := conv.Mode()
	to, ok := d.table.Next(from, requested)
	if !ok {
		logger.Info("mode switch rejected", "from", from, "requested", requested)
		return d.table.Clarification(from)
	}

	if err := handoff(d.Agent(to, conv, handoff, logger)); err != nil {
		logger.Error("mode switch failed", "from", from, "to", to, "error", err)
		return switchFailedMsg
	}
	conv.setMode(to)
	logger.Info("mode switched", "from", from, "to", to)

	return fmt.Sprintf("Switched to %s mode. %s", to.Label(), d.personas[to].Arrival)
}
