package host

import (
	"flag"
	"os"

	"github.com/teslashibe/go-voiceagents/internal/config"
)

// LoadConfig parses the flags shared by every demo binary, loads the
// configuration and initializes logging. Flags override the file and
// environment.
func LoadConfig(demo string, args []string) (*config.Config, error) {
	fs := flag.NewFlagSet(demo, flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to a YAML config file")
	console := fs.Bool("console", false, "Talk to the agent in the terminal (text only)")
	port := fs.String("port", "", "Dashboard port (overrides WEB_PORT)")
	pipeline := fs.String("pipeline", "", "Voice pipeline: cascade or realtime (overrides VOICE_PIPELINE)")
	dataDir := fs.String("data-dir", "", "Directory for orders, logs and tokens (overrides DATA_DIR)")
	debug := fs.Bool("debug", false, "Enable verbose debug logging")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Set flags as environment so the paths derived from them (orders dir,
	// OAuth redirect URL) follow too.
	for name, v := range map[string]string{
		"WEB_PORT":       *port,
		"VOICE_PIPELINE": *pipeline,
		"DATA_DIR":       *dataDir,
	} {
		if v == "" {
			continue
		}
		if err := os.Setenv(name, v); err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load(demo, *configPath)
	if err != nil {
		return nil, err
	}
	cfg.Console = *console
	cfg.Debug = cfg.Debug || *debug
	InitLogging(cfg)
	return cfg, nil
}
