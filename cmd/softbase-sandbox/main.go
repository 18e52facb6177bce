package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samvad-hq/softbase-go/internal/app"
	"github.com/samvad-hq/softbase-go/internal/config"
	"github.com/samvad-hq/softbase-go/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "softbase-sandbox failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Init(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	log.InfoObj("sandbox starting", "config", map[string]any{
		"app_name":     cfg.AppName,
		"env":          cfg.Env,
		"addr":         cfg.SandboxAddr,
		"storage_type": cfg.StorageType,
		"publishers":   cfg.PublishersFile,
		"cors_origins": cfg.CORSAllowedOrigins,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sandbox, err := app.NewSandbox(ctx, cfg, log)
	if err != nil {
		log.ErrorObj("failed to initialize sandbox", "error", err.Error())
		return err
	}

	if err := sandbox.Run(ctx); err != nil {
		return fmt.Errorf("sandbox run: %w", err)
	}

	return nil
}
