package main

import (
	"os"

	"github.com/oggyb/anon-relay/internal/config"
	"github.com/oggyb/anon-relay/internal/db"
	"github.com/oggyb/anon-relay/internal/logger"
)

// Seeds the demo users into the MySQL store.
func main() {
	cfg := config.New()
	logger.InitFromConfig(cfg)

	if cfg.DB.DSN == "" {
		logger.Error("MYSQL_DSN or DB_HOST is required")
		os.Exit(1)
	}

	database, err := db.NewDB(cfg)
	if err != nil {
		logger.Error("failed to init db", "err", err)
		os.Exit(1)
	}

	if err := db.SeedTestData(database); err != nil {
		logger.Error("failed to seed", "err", err)
		os.Exit(1)
	}

	logger.Info("seeding completed")
}
