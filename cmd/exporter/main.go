package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/gradeinsight/internal/app"
	"github.com/shrimpsizemoose/gradeinsight/internal/export"
)

func main() {
	var configPath = flag.String("config", "config.toml", "Path to config file")
	flag.Parse()

	service, err := app.NewService(*configPath)
	if err != nil {
		logger.Error.Fatalf("Failed to load config: %v", err)
	}
	defer service.Close()

	cfg := service.Config.Export
	if !cfg.Enabled {
		logger.Info.Println("Export is disabled in config, nothing to do")
		return
	}

	exporter := export.NewCSVExporter(service.Store, cfg.Dir, cfg.Tenants)
	if err := exporter.Start(cfg.Schedule); err != nil {
		logger.Error.Fatalf("Failed to start exporter: %v", err)
	}
	logger.Info.Printf("Exporting grades to %s on schedule %q", cfg.Dir, cfg.Schedule)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	exporter.Stop()
	logger.Info.Println("Exporter stopped")
}
