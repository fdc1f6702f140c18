package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/pricewatch/internal/config"
	"github.com/rickgao/pricewatch/internal/connection"
	"github.com/rickgao/pricewatch/internal/database"
	"github.com/rickgao/pricewatch/internal/recorder"
	"github.com/rickgao/pricewatch/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/pricewatch.local.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "config", *configPath)
		os.Exit(1)
	}

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)

	logger.Info("starting pricewatch",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"url", cfg.Client.URL,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("pricewatch failed", "error", err)
		os.Exit(1)
	}
	logger.Info("pricewatch stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	client, err := connection.New(cfg.Client.ConnectionConfig(), connection.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	// Recorder is optional; without it no database is contacted.
	var rec *recorder.Recorder
	var recStats recorderStats
	if cfg.Recorder.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)

		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()

		if err := recorder.EnsureSchema(ctx, pool); err != nil {
			return err
		}

		rec = recorder.New(recorder.Config{
			BatchSize:     cfg.Recorder.BatchSize,
			FlushInterval: cfg.Recorder.FlushInterval,
			BufferSize:    cfg.Recorder.BufferSize,
		}, pool, logger)
		if err := rec.Start(ctx); err != nil {
			return fmt.Errorf("start recorder: %w", err)
		}
		recStats = rec

		logger.Info("database connected, recording enabled")
	}

	client.OnOpen(func() {
		logger.Info("feed open", "url", cfg.Client.URL)
	})
	client.OnMessage(func(msg connection.Message) {
		if rec != nil {
			rec.Record(msg)
			return
		}
		logger.Debug("message",
			"adapter_id", msg.AdapterID,
			"seq", msg.Seq,
			"decoded", msg.Decoded,
			"size", len(msg.Raw.Data),
		)
	})

	var exhausted error
	client.OnReconnectExhausted(func(err error) {
		exhausted = err
		cancel()
	})

	healthServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Health.Port),
		Handler:           createHealthHandler(client, recStats),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting health server", "port", cfg.Health.Port)
		if err := healthServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		client.Connect()
		<-gctx.Done()

		logger.Info("shutting down...")
		client.Close()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if rec != nil {
			rec.Stop(shutdownCtx)
		}
		return healthServer.Shutdown(shutdownCtx)
	})

	logger.Info("pricewatch running",
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Health.Port),
	)

	if err := g.Wait(); err != nil {
		return err
	}
	return exhausted
}
