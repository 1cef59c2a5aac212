// Package config loads runtime configuration for the voice agent binaries.
//
// Precedence, lowest to highest: Default(), an optional YAML file, .env.local /
// .env, process environment, then command-line flags applied by cmd/*.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Pipeline modes.
const (
	PipelineCascade  = "cascade"
	PipelineRealtime = "realtime"
)

// DotEnvFiles are loaded, in order, before the environment is parsed.
// Variables already set in the environment win.
var DotEnvFiles = []string{".env.local", ".env"}

// LiveKit holds room credentials for the host framework.
type LiveKit struct {
	URL       string `yaml:"url" env:"URL"`
	APIKey    string `yaml:"api_key" env:"API_KEY"`
	APISecret string `yaml:"api_secret" env:"API_SECRET"`
}

// Keys holds provider credentials. They are only read from the environment.
type Keys struct {
	Deepgram string `yaml:"-" env:"DEEPGRAM_API_KEY"`
	Google   string `yaml:"-" env:"GOOGLE_API_KEY"`
	Murf     string `yaml:"-" env:"MURF_API_KEY"`
	OpenAI   string `yaml:"-" env:"OPENAI_API_KEY"`
}

// Speech holds per-stage model and voice choices.
type Speech struct {
	STTModel      string `yaml:"stt_model" env:"STT_MODEL"`
	STTLanguage   string `yaml:"stt_language" env:"STT_LANGUAGE"`
	LLMModel      string `yaml:"llm_model" env:"LLM_MODEL"`
	LLMBaseURL    string `yaml:"llm_base_url" env:"LLM_BASE_URL"`
	TTSVoice      string `yaml:"tts_voice" env:"TTS_VOICE"`
	TTSStyle      string `yaml:"tts_style" env:"TTS_STYLE"`
	RealtimeVoice string `yaml:"realtime_voice" env:"REALTIME_VOICE"`
}

// Journal configures the optional Google Docs wellness journal.
type Journal struct {
	ClientID     string `yaml:"client_id" env:"GOOGLE_CLIENT_ID"`
	ClientSecret string `yaml:"-" env:"GOOGLE_CLIENT_SECRET"`
	RedirectURL  string `yaml:"redirect_url" env:"GOOGLE_REDIRECT_URL"`
	TokenPath    string `yaml:"token_path" env:"GOOGLE_TOKEN_PATH"`
	DocID        string `yaml:"doc_id" env:"WELLNESS_JOURNAL_DOC_ID"`
}

// Enabled reports whether OAuth client credentials are present.
func (j Journal) Enabled() bool {
	return j.ClientID != "" && j.ClientSecret != ""
}

// Config holds all configuration for a demo binary.
// Flag parsing is done in cmd/*; this struct is data only.
type Config struct {
	Demo     string `yaml:"-"`
	Console  bool   `yaml:"-"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`
	Debug    bool   `yaml:"debug" env:"DEBUG"`
	Pipeline string `yaml:"pipeline" env:"VOICE_PIPELINE"`
	WebPort  string `yaml:"web_port" env:"WEB_PORT"`

	DataDir      string `yaml:"data_dir" env:"DATA_DIR"`
	OrdersDir    string `yaml:"orders_dir" env:"ORDERS_DIR"`
	WellnessLog  string `yaml:"wellness_log" env:"WELLNESS_LOG"`
	TutorContent string `yaml:"tutor_content" env:"TUTOR_CONTENT"`

	LiveKit LiveKit `yaml:"livekit" envPrefix:"LIVEKIT_"`
	Keys    Keys    `yaml:"-"`
	Speech  Speech  `yaml:"speech"`
	Journal Journal `yaml:"journal"`
}

// DevAPISecret is the LiveKit dev-server secret used when none is configured.
const DevAPISecret = "secret"

// Default returns sensible defaults matching the original pipeline choices.
func Default() Config {
	return Config{
		LogLevel: "info",
		Pipeline: PipelineCascade,
		WebPort:  "8080",
		DataDir:  ".",
		LiveKit: LiveKit{
			URL:       "ws://localhost:7880",
			APIKey:    "devkey",
			APISecret: DevAPISecret,
		},
		Speech: Speech{
			STTModel:      "nova-3",
			STTLanguage:   "en",
			LLMModel:      "gemini-2.5-flash",
			TTSVoice:      "en-US-matthew",
			TTSStyle:      "Conversation",
			RealtimeVoice: "marin",
		},
	}
}

// Load builds a Config for the named demo. yamlPath may be empty.
func Load(demo, yamlPath string) (*Config, error) {
	cfg := Default()
	cfg.Demo = demo

	if yamlPath != "" {
		if err := cfg.loadYAML(yamlPath); err != nil {
			return nil, err
		}
	}

	for _, f := range DotEnvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}

	cfg.fillPaths()
	return &cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// fillPaths derives unset data paths from DataDir.
func (c *Config) fillPaths() {
	if c.OrdersDir == "" {
		c.OrdersDir = filepath.Join(c.DataDir, "orders")
	}
	if c.WellnessLog == "" {
		c.WellnessLog = filepath.Join(c.DataDir, "wellness_log.json")
	}
	if c.TutorContent == "" {
		c.TutorContent = filepath.Join(c.DataDir, "day4_tutor_content.json")
	}
	if c.Journal.TokenPath == "" {
		c.Journal.TokenPath = filepath.Join(c.DataDir, ".google_token.json")
	}
	if c.Journal.RedirectURL == "" {
		c.Journal.RedirectURL = fmt.Sprintf("http://localhost:%s/api/journal/callback", c.WebPort)
	}
}

// Validate checks that the credentials required by the selected pipeline are present.
func (c *Config) Validate() error {
	switch c.Pipeline {
	case PipelineCascade:
		if c.Keys.Google == "" && c.Keys.OpenAI == "" {
			return &ConfigError{Field: "Keys.Google", Message: "GOOGLE_API_KEY (or OPENAI_API_KEY) environment variable is required for the LLM stage"}
		}
		if c.Console {
			// Text console: no audio in or out.
			return nil
		}
		if c.Keys.Deepgram == "" {
			return &ConfigError{Field: "Keys.Deepgram", Message: "DEEPGRAM_API_KEY environment variable is required for speech-to-text"}
		}
		if c.Keys.Murf == "" && c.Keys.OpenAI == "" {
			return &ConfigError{Field: "Keys.Murf", Message: "MURF_API_KEY environment variable is required for text-to-speech"}
		}
	case PipelineRealtime:
		if c.Keys.OpenAI == "" {
			return &ConfigError{Field: "Keys.OpenAI", Message: "OPENAI_API_KEY environment variable is required for the realtime pipeline"}
		}
	default:
		return &ConfigError{Field: "Pipeline", Message: fmt.Sprintf("unknown pipeline %q (want %s or %s)", c.Pipeline, PipelineCascade, PipelineRealtime)}
	}
	if c.LiveKit.APISecret == "" {
		return &ConfigError{Field: "LiveKit.APISecret", Message: "LIVEKIT_API_SECRET must not be empty"}
	}
	return nil
}

// Warnings lists settings that work but should not reach a shared
// deployment.
func (c *Config) Warnings() []string {
	var out []string
	if !c.Console && c.LiveKit.APISecret == DevAPISecret {
		out = append(out, "LIVEKIT_API_SECRET is the dev default; room tokens issued by the dashboard can be forged")
	}
	return out
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}
