package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/chav-jf/speedy-green-flash/internal/config"
	"github.com/chav-jf/speedy-green-flash/internal/database"
	"github.com/chav-jf/speedy-green-flash/internal/handlers"
	logging "github.com/chav-jf/speedy-green-flash/internal/logging"
	"github.com/chav-jf/speedy-green-flash/internal/relay"
	"github.com/chav-jf/speedy-green-flash/internal/repository"
	"github.com/chav-jf/speedy-green-flash/internal/router"
	"github.com/chav-jf/speedy-green-flash/internal/services"
	"github.com/chav-jf/speedy-green-flash/internal/tracing"
)

const shutdownTimeout = 10 * time.Second

// telemetryStore is what the relay writes to and the results pages read from.
type telemetryStore interface {
	relay.Recorder
	handlers.ResultsStore
	services.Retainer
}

func runServe(ctx context.Context, configDir string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	boot, _, err := config.Load(configDir)
	if err != nil {
		return err
	}

	// Initialize Logger
	log, err := logging.Init(boot.Logging, true)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	if err := config.Init(configDir, log); err != nil {
		return err
	}
	cfg := config.Conf

	tp, err := tracing.Init(ctx, tracing.Config{
		ServiceName: cfg.Tracing.ServiceName,
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Warn("Tracing disabled", zap.Error(err))
	} else {
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := tp.Shutdown(sctx); err != nil {
				log.Warn("Tracer shutdown failed", zap.Error(err))
			}
		}()
	}

	// Initialize Database
	var store telemetryStore = repository.NewMemoryStore()
	if cfg.Database.Enabled {
		if err := database.Init(cfg.Database, log); err != nil {
			return err
		}
		defer database.Close()
		store = repository.Store{}
	} else {
		log.Info("Database disabled, keeping telemetry in memory")
	}

	hub := relay.NewHub(relay.DefaultConfig(), store, log)
	defer hub.Close()

	services.NewScheduler(log, services.SchedulerConfig{
		Interval:        cfg.Database.SweepInterval,
		Retention:       cfg.Database.Retention,
		RoomIdleTimeout: cfg.Server.RoomIdleTimeout,
	}, store, hub).Start(ctx)

	// Setup router, passing the logger to it
	r := router.Setup(log, router.Options{
		Ctx:          ctx,
		Hub:          hub,
		Results:      store,
		RateLimit:    cfg.Server.RateLimit,
		AllowedHosts: cfg.Server.AllowedHosts,
		Production:   cfg.Server.Production,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Server listening on http://localhost:" + cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error("Failed to run server", zap.Error(err))
			return err
		}
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(sctx)
}
