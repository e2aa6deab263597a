package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/route-weather-service/internal/app"
	"github.com/kjstillabower/route-weather-service/internal/config"
	httphandler "github.com/kjstillabower/route-weather-service/internal/http"
	"github.com/kjstillabower/route-weather-service/internal/lifecycle"
	"github.com/kjstillabower/route-weather-service/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal("wiring", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.StartWarming(ctx); err != nil {
		logger.Error("cache warming not scheduled", zap.Error(err))
	}

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      a.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("graceful shutdown triggered", zap.Int64("in_flight", httphandler.InFlightCount()))

	err = lifecycle.Shutdown(context.Background(), logger, cfg.ShutdownTimeout,
		lifecycle.Step{Name: "http server", Run: srv.Shutdown},
		lifecycle.Step{Name: "in-flight requests", Run: func(ctx context.Context) error {
			waitCtx, cancel := context.WithTimeout(ctx, cfg.ShutdownInFlightTimeout)
			defer cancel()
			return httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval)
		}},
		lifecycle.Step{Name: "cache warming", Run: func(context.Context) error {
			a.StopWarming()
			return nil
		}},
		lifecycle.Step{Name: "telemetry", Run: func(ctx context.Context) error {
			return observability.FlushTelemetry(ctx, logger)
		}},
		lifecycle.Step{Name: "cache", Run: func(context.Context) error {
			return a.Close()
		}},
	)
	if err != nil {
		logger.Warn("shutdown finished with errors", zap.Error(err))
		return
	}
	logger.Info("shutdown complete")
}
