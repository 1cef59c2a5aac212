package host

import (
	"github.com/teslashibe/go-voiceagents/internal/config"
	"github.com/teslashibe/go-voiceagents/pkg/voice"
)

// PipelineConfig maps the demo configuration onto the base voice.Config every
// session starts from. Agents then set instructions and voice per persona.
func PipelineConfig(cfg *config.Config) voice.Config {
	var vc voice.Config
	if cfg.Pipeline == config.PipelineRealtime {
		vc = voice.DefaultRealtimeConfig()
		if cfg.Speech.RealtimeVoice != "" {
			vc.TTSVoice = cfg.Speech.RealtimeVoice
		}
	} else {
		vc = voice.DefaultConfig()
		set(&vc.STTModel, cfg.Speech.STTModel)
		set(&vc.STTLanguage, cfg.Speech.STTLanguage)
		set(&vc.LLMModel, cfg.Speech.LLMModel)
		set(&vc.TTSVoice, cfg.Speech.TTSVoice)
		set(&vc.TTSStyle, cfg.Speech.TTSStyle)
		vc.LLMBaseURL = cfg.Speech.LLMBaseURL
	}

	vc.DeepgramKey = cfg.Keys.Deepgram
	vc.GoogleAPIKey = cfg.Keys.Google
	vc.MurfKey = cfg.Keys.Murf
	vc.OpenAIKey = cfg.Keys.OpenAI

	return vc.WithTextOnly(cfg.Console).WithDebug(cfg.Debug)
}

func set(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
