package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"querypanel/api"
	"querypanel/cli"
	"querypanel/config"
	"querypanel/core/store"
	"querypanel/core/utils"
)

func main() {
	if len(os.Args) > 1 {
		os.Exit(cli.Run(os.Args[1:], os.Stdout))
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	logger := utils.NewLoggerWithLevel(cfg.LogLevel)
	engines, err := store.OpenEngines(cfg.Engines, logger)
	if err != nil {
		logger.Fatalf("engines: %v", err)
	}
	defer engines.Close()

	for _, ec := range cfg.Engines {
		if !ec.Migrate {
			continue
		}
		e, _ := engines.Get(ec.Name)
		if err := store.ApplyMigrations(context.Background(), e, logger); err != nil {
			logger.Fatalf("migrations %s: %v", ec.Name, err)
		}
	}

	srv, err := api.NewServer(cfg, logger, api.ServerDeps{Engines: engines})
	if err != nil {
		logger.Fatalf("server: %v", err)
	}
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatalf("server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		logger.Errorf("graceful shutdown: %v", err)
	}
}
