// Package voice provides a unified interface for voice conversation pipelines.
//
// A Pipeline wraps the external speech services (speech-to-text, the LLM,
// text-to-speech, voice activity detection and turn detection) behind one
// interface so the agents above it never see a provider directly.
//
// # Supported Providers
//
//   - Cascade: Deepgram STT, an OpenAI-compatible LLM (Gemini 2.5 Flash by
//     default) and Murf TTS, chained per turn
//   - OpenAI Realtime: speech-to-speech over a single WebSocket
//
// Implementations live in the bundled subpackage and register themselves:
//
//	import _ "github.com/teslashibe/go-voiceagents/pkg/voice/bundled"
//
//	cfg := voice.DefaultConfig()
//	cfg.GoogleAPIKey = os.Getenv("GOOGLE_API_KEY")
//	pipeline, err := voice.New(cfg)
//
// # Tools
//
// Tools are plain functions with a JSON schema. Handlers return text for the
// model; decode arguments into a typed request with DecodeArgs:
//
//	pipeline.SetTools([]voice.Tool{{
//	    Name:        "save_order",
//	    Description: "Save the confirmed order",
//	    Parameters:  voice.ObjectSchema(props, "drink_type", "size"),
//	    Handler: func(args map[string]any) (string, error) {
//	        var req OrderRequest
//	        if err := voice.DecodeArgs(args, &req); err != nil {
//	            return "", err
//	        }
//	        return "Saved.", nil
//	    },
//	}})
//
// # Metrics
//
// Every pipeline tracks per-turn latency and reports consumption through
// OnUsage; UsageCollector sums it for the end-of-session summary.
package voice
