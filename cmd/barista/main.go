// Barista - Piku Coffee voice ordering agent.
// Collects a drink order by voice and saves it under the orders directory.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	ilog "github.com/teslashibe/go-voiceagents/internal/log"
	"github.com/teslashibe/go-voiceagents/pkg/barista"
	"github.com/teslashibe/go-voiceagents/pkg/host"
	"github.com/teslashibe/go-voiceagents/pkg/metrics"
)

func main() {
	cfg, err := host.LoadConfig(barista.Name, os.Args[1:])
	if err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}

	store, err := barista.NewOrderStore(cfg.OrdersDir)
	if err != nil {
		log.Fatalf("❌ Order store: %v", err)
	}

	collector := metrics.NewCollector(barista.Name)
	demo := barista.New(store,
		barista.WithLogger(ilog.Component("barista")),
		barista.OnOrderSaved(func(barista.StoredOrder) { collector.OrderSaved() }),
	)

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
