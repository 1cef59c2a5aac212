package voice

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Tool represents a function that the model can invoke during conversation.
// Tools let the agent record orders, save check-ins, look up concepts and
// switch personas.
type Tool struct {
	// Name is the unique identifier for the tool (e.g., "save_order").
	Name string `json:"name"`

	// Description explains what the tool does, helping the model decide when to use it.
	Description string `json:"description"`

	// Parameters is the full JSON schema for the tool's arguments.
	// Build it with ObjectSchema:
	//
	//	voice.ObjectSchema(map[string]any{
	//	    "mode": voice.EnumParam("Mode to switch to", "learn", "quiz"),
	//	}, "mode")
	Parameters map[string]any `json:"parameters"`

	// Handler is called when the model invokes this tool.
	// The returned string is spoken context for the model, so failures that the
	// user should hear about are returned as text with a nil error.
	Handler func(args map[string]any) (string, error) `json:"-"`
}

// ToolCall represents an invocation of a tool by the model.
type ToolCall struct {
	// ID matches results back to the correct call.
	ID string

	Name string

	// Arguments contains the parsed arguments from the model.
	Arguments map[string]any
}

// ToolResult represents the result of a tool invocation.
type ToolResult struct {
	// CallID matches the ToolCall.ID this result corresponds to.
	CallID string

	// Result is the string result to send back to the model.
	Result string

	// Error is set if the tool execution failed.
	Error error
}

// FindTool returns the tool with the given name.
func FindTool(tools []Tool, name string) (Tool, bool) {
	for _, t := range tools {
		if t.Name == name {
			return t, true
		}
	}
	return Tool{}, false
}

// Invoke runs the named tool and converts a handler error into result text,
// so the model always receives an answer.
func Invoke(tools []Tool, call ToolCall) ToolResult {
	t, ok := FindTool(tools, call.Name)
	if !ok || t.Handler == nil {
		err := fmt.Errorf("unknown tool: %s", call.Name)
		return ToolResult{CallID: call.ID, Result: "Error: " + err.Error(), Error: err}
	}

	args := call.Arguments
	if args == nil {
		args = map[string]any{}
	}

	result, err := t.Handler(args)
	if err != nil {
		return ToolResult{CallID: call.ID, Result: "Error: " + err.Error(), Error: err}
	}
	return ToolResult{CallID: call.ID, Result: result}
}

// ObjectSchema builds an object JSON schema with the given properties.
func ObjectSchema(properties map[string]any, required ...string) map[string]any {
	if properties == nil {
		properties = map[string]any{}
	}
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// StringParam describes a string argument.
func StringParam(description string) map[string]any {
	return map[string]any{
		"type":        "string",
		"description": description,
	}
}

// EnumParam describes a string argument restricted to values.
func EnumParam(description string, values ...string) map[string]any {
	return map[string]any{
		"type":        "string",
		"description": description,
		"enum":        values,
	}
}

// DecodeArgs copies tool arguments into a typed request struct using its json tags.
func DecodeArgs(args map[string]any, dst any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode arguments: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	return nil
}

// List is a list-valued tool argument. Models send it either as one
// comma-separated string or as an array of strings; both decode to the
// comma-separated form, which SplitList turns into items.
type List string

// UnmarshalJSON accepts a string, an array of strings, or null.
func (l *List) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*l = List(s)
		return nil
	}
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("list argument must be a string or an array of strings")
	}
	*l = List(strings.Join(items, ", "))
	return nil
}

// Items splits the list like SplitList.
func (l List) Items() []string { return SplitList(string(l)) }

// SplitList splits a comma-separated answer into trimmed, non-empty items.
// "none" in any letter case means an empty list.
func SplitList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "none") {
		return []string{}
	}

	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
