// Wellness - daily check-in companion.
// Appends each check-in to a JSON log and, once a Google account is
// connected from the dashboard, to a Google Docs journal.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	ilog "github.com/teslashibe/go-voiceagents/internal/log"
	"github.com/teslashibe/go-voiceagents/pkg/host"
	"github.com/teslashibe/go-voiceagents/pkg/metrics"
	"github.com/teslashibe/go-voiceagents/pkg/wellness"
)

func main() {
	cfg, err := host.LoadConfig(wellness.Name, os.Args[1:])
	if err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}

	store, err := wellness.NewLogStore(cfg.WellnessLog)
	if err != nil {
		log.Fatalf("❌ Wellness log: %v", err)
	}

	collector := metrics.NewCollector(wellness.Name)
	opts := []wellness.Option{
		wellness.WithLogger(ilog.Component("wellness")),
		wellness.OnCheckInSaved(func(wellness.CheckIn) { collector.CheckInSaved() }),
	}

	if cfg.Journal.Enabled() {
		journal, err := wellness.NewJournal(wellness.JournalConfig{
			ClientID:     cfg.Journal.ClientID,
			ClientSecret: cfg.Journal.ClientSecret,
			RedirectURL:  cfg.Journal.RedirectURL,
			TokenPath:    cfg.Journal.TokenPath,
			DocID:        cfg.Journal.DocID,
		}, ilog.Component("wellness.journal"))
		if err != nil {
			log.Fatalf("❌ Journal: %v", err)
		}
		opts = append(opts, wellness.WithJournal(journal))
		if !journal.Connected() && !cfg.Console {
			fmt.Printf("📓 Journal: connect Google at http://localhost:%s/api/journal/auth\n", cfg.WebPort)
		}
	}

	demo := wellness.New(store, opts...)

	app, err := host.New(cfg, demo, host.WithMetrics(collector))
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
