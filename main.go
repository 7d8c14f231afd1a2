package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cmartinez0925/mychardev/config"
	"github.com/cmartinez0925/mychardev/node"
)

func main() {
	configPath := flag.String("config", os.Getenv("MYCHARDEV_CONFIG"), "path to TOML config (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := cfg.Log.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("mychardev starting", "device", cfg.Device.Name, "capacity", cfg.Device.Capacity)

	n, err := node.Register(cfg, logger)
	if err != nil {
		log.Fatalf("register: %v", err)
	}
	defer n.Close()

	if err := n.Serve(ctx); err != nil {
		logger.Error("serve", "error", err)
	}
	logger.Info("mychardev stopped")
}
