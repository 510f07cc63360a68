package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/solcron/keeper/internal/config"
	"github.com/solcron/keeper/internal/metrics"
	"github.com/solcron/keeper/internal/observability"
	"github.com/solcron/keeper/internal/supervisor"
)

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the keeper pipeline until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd.Context())
		},
	}
}

func runStart(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	level := parseLogLevel(cfg.Logging.Level)
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	otelCfg := observability.Config{
		Enabled:     cfg.Metrics.Enabled,
		ServiceName: observability.DefaultServiceName,
		Level:       level,
	}

	lp, logger, err := observability.InitLogger(ctx, otelCfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	slog.SetDefault(logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = lp.Shutdown(shutdownCtx)
	}()

	tp, err := observability.InitTracerProvider(ctx, otelCfg)
	if err != nil {
		return fmt.Errorf("init tracer provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}()

	mp, err := observability.InitMeterProvider(ctx, otelCfg)
	if err != nil {
		return fmt.Errorf("init meter provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mp.Shutdown(shutdownCtx)
	}()

	sup, err := supervisor.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build supervisor: %w", err)
	}

	var metricsSrv *metrics.Server
	if cfg.Metrics.Enabled {
		metricsSrv = metrics.NewServer(cfg.MetricsPort(), sup)
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil {
				slog.ErrorContext(ctx, "metrics server error", slog.String("error", err.Error()))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	if err := sup.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func parseLogLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}
