package main

import (
	"context"
	"errors"
	"flag"
	"os"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/gradeinsight/internal/admin"
	"github.com/shrimpsizemoose/gradeinsight/internal/app"
)

func main() {
	var configPath = flag.String("config", "config.toml", "Path to config file")
	flag.Parse()

	os.Exit(run(*configPath, flag.Args()))
}

// run returns the process exit code; the store is closed before it returns.
func run(configPath string, args []string) int {
	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		logger.Error.Printf("Failed to load config: %v", err)
		return 1
	}

	store, err := app.NewStore(cfg.Database.DSN, cfg.Database.MigrationsDir)
	if err != nil {
		logger.Error.Printf("Failed to create store: %v", err)
		return 1
	}
	defer store.Close()

	if err := admin.New(store, os.Stdout).Run(context.Background(), args); err != nil {
		if errors.Is(err, admin.ErrUsage) {
			logger.Error.Println(err)
			return 2
		}
		logger.Error.Printf("Command failed: %v", err)
		return 1
	}
	return 0
}
