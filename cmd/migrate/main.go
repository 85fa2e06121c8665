package main

import (
	"context"
	"flag"
	"log"
	"time"

	"querypanel/config"
	"querypanel/core/store"
	"querypanel/core/utils"
)

func main() {
	statusOnly := flag.Bool("status", false, "report migration status without applying")
	only := flag.String("engine", "", "limit to one configured engine")
	flag.Parse()

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

	ctx := context.Background()
	for _, e := range engines.All() {
		if *only != "" && e.Name() != *only {
			continue
		}
		if !*statusOnly {
			if err := store.ApplyMigrations(ctx, e, logger); err != nil {
				logger.Fatalf("migrations %s: %v", e.Name(), err)
			}
		}
		checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		st, err := store.GetMigrationStatus(checkCtx, e)
		cancel()
		if err != nil {
			logger.Fatalf("status %s: %v", e.Name(), err)
		}
		logger.Printf("engine=%s version=%d latest=%d pending=%v", st.Engine, st.CurrentVersion, st.LatestVersion, st.HasPending)
	}
}
