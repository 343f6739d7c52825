// Package main runs the in-memory travel-buddy backend for local development.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/narvanalabs/travel-buddy/internal/devserver"
	"github.com/narvanalabs/travel-buddy/internal/shutdown"
	"github.com/narvanalabs/travel-buddy/pkg/config"
	"github.com/narvanalabs/travel-buddy/pkg/logger"
)

func main() {
	addr := flag.String("addr", "", "Listen address (default from DEVSERVER_ADDR)")
	seed := flag.Bool("seed", true, "Load the demo users, destinations and trips")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Default().Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.DevServer.Addr = *addr
	}

	log := logger.New(logger.ParseLevel(cfg.LogLevel), cfg.LogJSON)

	srv := devserver.NewServer(cfg.DevServer, devserver.WithLogger(log.Logger))
	if *seed {
		if err := srv.Seed(); err != nil {
			log.Error("failed to seed data", "error", err)
			os.Exit(1)
		}
		log.Info("seeded demo data", "password", devserver.SeedPassword,
			"users", []string{"alice", "bob", "carol", "dave"})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	coord := shutdown.NewCoordinator(
		shutdown.WithTimeout(cfg.ShutdownTimeout),
		shutdown.WithLogger(log.Logger),
	)
	coord.Register(srv)

	go func() {
		if err := srv.Start(ctx); err != nil {
			log.Error("server error", "error", err)
		}
		cancel()
	}()

	coord.WaitForSignal(ctx)
	log.Info("server stopped")
	os.Exit(coord.ExitCode())
}
