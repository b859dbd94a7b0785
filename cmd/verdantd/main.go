// Command verdantd runs a Verdant node as a long-lived daemon.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	verdant "github.com/verdantfs/verdant"
	"github.com/verdantfs/verdant/internal/config"
	"github.com/verdantfs/verdant/pkg/exchange"
)

func main() {
	configPath := flag.String("config", "verdant.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("loading config failed", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if cfg.Debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	logger.Info("starting verdant daemon",
		"dataPath", cfg.DataPath,
		"listenAddr", cfg.ListenAddr,
		"bootstrap", cfg.Bootstrap)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	}()

	node, err := verdant.New(verdant.Config{
		Paths:           []string{cfg.DataPath},
		Identity:        cfg.Identity,
		MinimumFreeGB:   cfg.MinimumFreeGB,
		ChunkSize:       cfg.ChunkSize,
		MaxLinksPerNode: cfg.MaxLinksPerNode,
		ListenAddr:      cfg.ListenAddr,
		Bootstrap:       cfg.Bootstrap,
		Transport:       exchange.NewTCPTransport(),
		Logger:          logger,
	})
	if err != nil {
		logger.Error("creating node failed", "error", err)
		os.Exit(1)
	}

	if err := node.Run(ctx); err != nil {
		logger.Error("daemon error", "error", err)
		os.Exit(1)
	}
}
