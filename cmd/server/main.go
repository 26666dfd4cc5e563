package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/jgirmay/livemesh/internal/app"
	"github.com/jgirmay/livemesh/pkg/config"
	"github.com/jgirmay/livemesh/pkg/database"
	"github.com/jgirmay/livemesh/pkg/logger"
)

// loadSettings reads the configuration and starts the logger. Until the
// logger exists, failures can only be reported on stderr.
func loadSettings(stderr io.Writer) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "livemesh: failed to load configuration: %v\n", err)
		return nil, err
	}
	if err := logger.Init(cfg.Server.Env); err != nil {
		fmt.Fprintf(stderr, "livemesh: failed to initialize logger: %v\n", err)
		return nil, err
	}
	return cfg, nil
}

func main() {
	cfg, err := loadSettings(os.Stderr)
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.L()

	log.Info("[INIT] Opening database", zap.String("type", cfg.Database.Type))
	db, err := database.Open(cfg.Database, cfg.Server.Env == "development")
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("failed to migrate database", zap.Error(err))
	}
	log.Info("[INIT] ✓ Database ready")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.NewWithDB(ctx, cfg, db, log)
	if err != nil {
		log.Fatal("failed to build services", zap.Error(err))
	}
	if err := a.Start(ctx); err != nil {
		log.Fatal("failed to start background workers", zap.Error(err))
	}
	log.Info("[INIT] ✓ Hub, expiry sweeper started",
		zap.Duration("sweep_interval", cfg.Sweep.Interval),
		zap.Duration("presence_stale_after", cfg.Presence.StaleAfter),
		zap.Bool("redis", cfg.Redis.URL != ""),
		zap.Bool("rewards_async", a.RewardsAsync()))

	router, err := a.Router()
	if err != nil {
		log.Fatal("failed to build router", zap.Error(err))
	}

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan

		log.Info("[SHUTDOWN] Received signal, shutting down", zap.String("signal", sig.String()))

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancelShutdown()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("[SHUTDOWN] Server shutdown error", zap.Error(err))
		}

		log.Info("[SHUTDOWN] Stopping sweeper, hub and closing connections...")
		a.Shutdown()
		cancel()
		log.Info("[SHUTDOWN] ✓ Graceful shutdown complete")
	}()

	log.Info("[INFO] Starting HTTP server", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server startup error", zap.Error(err))
	}
	<-done
}
