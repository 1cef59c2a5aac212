// Package agent hosts voice agents: personas, the session that drives one
// conversation through a voice.Pipeline, and the worker that runs jobs.
//
// A demo supplies an entrypoint. The worker calls it once per job; the
// entrypoint builds its per-conversation state and starts a session:
//
//	w, _ := agent.NewWorker(agent.WorkerOptions{
//	    Name: "barista",
//	    Prewarm: func(p *agent.Process) error {
//	        vad, err := voice.LoadVAD()
//	        p.Set(agent.VADKey, vad)
//	        return err
//	    },
//	    Entrypoint: func(jc *agent.JobContext) error {
//	        _, err := jc.StartSession(myAgent)
//	        return err
//	    },
//	})
//	w.Run(ctx)
package agent

import (
	"github.com/teslashibe/go-voiceagents/pkg/tts"
	"github.com/teslashibe/go-voiceagents/pkg/voice"
)

// Agent is a persona: the instructions, tools and voice the model uses while
// it is active.
type Agent struct {
	Name         string
	Instructions string
	Tools        []voice.Tool

	// Voice selects the TTS voice. Empty fields keep the pipeline's current voice.
	Voice tts.Voice

	// Greeting, when set, is passed to GenerateReply as soon as the session starts.
	Greeting string
}

// ToolNames lists the agent's tool names in order.
func (a Agent) ToolNames() []string {
	names := make([]string, len(a.Tools))
	for i, t := range a.Tools {
		names[i] = t.Name
	}
	return names
}

// apply returns cfg with the agent's instructions and voice.
func (a Agent) apply(cfg voice.Config) voice.Config {
	return cfg.WithInstructions(a.Instructions).WithVoice(a.Voice.ID, a.Voice.Style)
}
