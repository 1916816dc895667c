package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/VanDung-dev/HieraChain-RouterNet/routernet/config"
	"github.com/VanDung-dev/HieraChain-RouterNet/routernet/engine"
)

func main() {
	configPath := flag.String("config", os.Getenv(config.EnvPrefix+"CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger, err := config.NewLogger(cfg.Log, os.Stderr)
	if err != nil {
		slog.Error("failed to create logger", slog.String("error", err.Error()))
		os.Exit(1)
	}

	eng, err := engine.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create engine", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if _, err := eng.Deploy(); err != nil {
		logger.Error("failed to deploy network", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := eng.Start(); err != nil {
		logger.Error("failed to start engine", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	eng.Stop()
}
