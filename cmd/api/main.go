package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stopboard.transitdisplay.org/internal/app"
	"stopboard.transitdisplay.org/internal/appconf"
	"stopboard.transitdisplay.org/internal/logging"
	"stopboard.transitdisplay.org/internal/metrics"
	"stopboard.transitdisplay.org/internal/realtime"
	"stopboard.transitdisplay.org/internal/restapi"
	"stopboard.transitdisplay.org/internal/schedule"
)

func main() {
	logger := logging.NewStructuredLogger(os.Stdout, slog.LevelInfo)

	if err := run(logger); err != nil {
		logging.LogError(logger, "server exited", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := appconf.Load(os.Args[1:])
	if err != nil {
		return err
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("loading timezone %q: %w", cfg.Timezone, err)
	}

	collector := metrics.NewCollector()

	// A server with no schedule has nothing to display, so a failed
	// initial load is fatal. Later refresh failures only log.
	scheduleCache, err := schedule.NewCache(schedule.Config{
		StaticURL:       cfg.StaticGTFSURL,
		Location:        loc,
		RefreshInterval: cfg.StaticRefresh,
		FetchTimeout:    cfg.FetchTimeout,
		Logger:          logger,
		Metrics:         collector,
	})
	if err != nil {
		return fmt.Errorf("loading static GTFS: %w", err)
	}

	realtimeCache := realtime.NewCache(realtime.Config{
		TripUpdatesURL:  cfg.TripUpdatesURL,
		AlertsURL:       cfg.AlertsURL,
		RefreshInterval: cfg.RealtimeRefresh,
		FetchTimeout:    cfg.FetchTimeout,
		Logger:          logger,
		Metrics:         collector,
	})

	application := &app.Application{
		Config:   cfg,
		Logger:   logger,
		Metrics:  collector,
		Schedule: scheduleCache,
		Realtime: realtimeCache,
	}
	defer application.Shutdown()

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = collector.Serve(cfg.MetricsAddr, logger)
	}

	api := restapi.NewRestAPI(application)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      api.Routes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	shutdownErr := make(chan error, 1)
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit

		logger.Info("shutting down server", "signal", s.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := metrics.ShutdownServer(ctx, metricsSrv); err != nil {
			logging.LogError(logger, "metrics server shutdown", err)
		}
		shutdownErr <- srv.Shutdown(ctx)
	}()

	logger.Info("starting server", "addr", srv.Addr, "env", cfg.Env.String())

	err = srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}

	if err := <-shutdownErr; err != nil {
		return err
	}

	logger.Info("stopped server", "addr", srv.Addr)
	return nil
}
