// Command weatherctl runs route-weather operations from the terminal: cache
// maintenance, geocoding and forecast lookups, and route evaluation.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/kjstillabower/route-weather-service/internal/app"
	"github.com/kjstillabower/route-weather-service/internal/config"
	"github.com/kjstillabower/route-weather-service/internal/observability"
	"github.com/kjstillabower/route-weather-service/internal/route"
)

func main() {
	if err := newRootCmd(loadServices).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadServices wires the same services the web server uses.
func loadServices(logLevel string) (*services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if logLevel == "" {
		logLevel = cfg.LogLevel
	}
	logger, err := observability.NewLogger(logLevel)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	a, err := app.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &services{
		cache:      a.Cache,
		resolver:   a.Geocoding,
		forecaster: a.Weather,
		planner:    a.Planner.WithFrontend(route.FrontendCLI),
		logger:     logger,
		close: func() error {
			_ = observability.FlushTelemetry(context.Background(), logger)
			return a.Close()
		},
	}, nil
}
