package bundled

import (
	"fmt"
	"sync"

	"github.com/teslashibe/go-voiceagents/pkg/voice"
)

// runTools executes calls in parallel and returns results in call order.
// A panicking handler yields an error result instead of crashing the session.
func runTools(tools []voice.Tool, calls []voice.ToolCall) []voice.ToolResult {
	results := make([]voice.ToolResult, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(idx int, c voice.ToolCall) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					err := fmt.Errorf("tool %s panicked: %v", c.Name, r)
					results[idx] = voice.ToolResult{CallID: c.ID, Result: "Error: " + err.Error(), Error: err}
				}
			}()
			results[idx] = voice.Invoke(tools, c)
		}(i, call)
	}
	wg.Wait()

	return results
}
