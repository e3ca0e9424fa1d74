package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hilo/internal/api"
	"hilo/internal/config"
	"hilo/internal/logging"
	"hilo/internal/room"
	"hilo/internal/store"

	"go.uber.org/zap"
)

// backend is what the server needs from either store driver.
type backend interface {
	room.Store
	Ping(ctx context.Context) error
	Close() error
}

func main() {
	configPath := flag.String("config", "hilo.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func openStore(cfg *config.Config, logger *zap.Logger) (backend, error) {
	switch cfg.Store.Driver {
	case config.DriverRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		st, err := store.DialRedis(ctx, cfg.Store.Redis.Addr, cfg.Store.Redis.Password, cfg.Store.Redis.DB)
		if err != nil {
			return nil, err
		}
		logger.Info("using redis store", zap.String("addr", cfg.Store.Redis.Addr))
		return st, nil
	default:
		st, err := store.NewSQLite(cfg.Store.SQLite.Path)
		if err != nil {
			return nil, err
		}
		logger.Info("using sqlite store", zap.String("path", cfg.Store.SQLite.Path))
		return st, nil
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	st, err := openStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("store close error", zap.Error(err))
		}
	}()

	hub := api.NewHub(logger.Named("hub"))
	svc := room.NewService(st, room.Config{
		DefaultMaxPlayers: cfg.Game.DefaultMaxPlayers,
		MaxPlayersCap:     cfg.Game.MaxPlayersCap,
		RoundDuration:     cfg.RoundDuration(),
		IdleTTL:           cfg.IdleTTL(),
	},
		room.WithPublisher(hub),
		room.WithLogger(logger.Named("room")),
	)

	sweeper, err := room.NewSweeper(svc, room.SweeperConfig{
		ExpireSpec: cfg.Game.ExpireSchedule,
		PruneSpec:  cfg.Game.PruneSchedule,
		Timeout:    30 * time.Second,
	}, logger.Named("sweeper"))
	if err != nil {
		return fmt.Errorf("sweeper: %w", err)
	}
	sweeper.Start()

	server := api.NewServer(svc, hub, logger.Named("http"), api.Options{
		CORSOrigins: cfg.Server.CORSOrigins,
		RateLimit:   cfg.Server.RateLimit,
		RateWindow:  cfg.RateWindow(),
		Health:      st.Ping,
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting hilo server",
			zap.String("addr", httpServer.Addr),
			zap.String("store", cfg.Store.Driver),
			zap.Duration("round_duration", cfg.RoundDuration()))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		sweeper.Stop()
		server.Shutdown()
		return fmt.Errorf("http server: %w", err)
	}

	sweeper.Stop()
	server.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	logger.Info("server shutdown complete")
	return nil
}
