// Tutor - active recall coach with learn, quiz and teach-back modes.
// A greeter routes the learner; each mode is its own persona and voice.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	ilog "github.com/teslashibe/go-voiceagents/internal/log"
	"github.com/teslashibe/go-voiceagents/pkg/host"
	"github.com/teslashibe/go-voiceagents/pkg/tutor"
)

func main() {
	cfg, err := host.LoadConfig(tutor.Name, os.Args[1:])
	if err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}

	logger := ilog.Component("tutor")
	content := tutor.LoadContent(cfg.TutorContent, logger)

	demo, err := tutor.New(content, tutor.WithLogger(logger))
	if err != nil {
		log.Fatalf("❌ Tutor: %v", err)
	}

	app, err := host.New(cfg, demo)
	if err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}
	if err := app.Init(); err != nil {
		log.Fatalf("❌ Initialization failed: %v", err)
	}
	defer app.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx); err != nil {
		log.Fatalf("❌ Runtime error: %v", err)
	}
}
