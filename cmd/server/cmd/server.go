package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/Wideyedwonderer/buscuit-maker/internal/system"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func runServer(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	logger, err := newLogger(level)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("Config loaded successfully", zap.String("path", configPath))

	lifecycle, err := system.NewLifecycleManager(cfg, logger)
	if err != nil {
		return err
	}

	startErr := lifecycle.Start(ctx)
	if startErr == nil {
		logger.Info("Biscuit machine started successfully")
		<-ctx.Done()
		logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := lifecycle.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
		return err
	}
	if startErr != nil {
		return startErr
	}

	logger.Info("Biscuit machine stopped successfully")
	return nil
}
