package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/kjstillabower/route-weather-service/internal/app"
	"github.com/kjstillabower/route-weather-service/internal/bot"
	"github.com/kjstillabower/route-weather-service/internal/config"
	"github.com/kjstillabower/route-weather-service/internal/dialogue"
	"github.com/kjstillabower/route-weather-service/internal/lifecycle"
	"github.com/kjstillabower/route-weather-service/internal/observability"
	"github.com/kjstillabower/route-weather-service/internal/route"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.ValidateBot(); err != nil {
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

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		logger.Fatal("telegram", zap.Error(err))
	}
	logger.Info("authorized", zap.String("bot", api.Self.UserName))

	delay := cfg.BotUpdateDelay
	if delay == 0 {
		delay = -1
	}
	b := bot.New(api,
		a.Planner.WithFrontend(route.FrontendBot),
		dialogue.NewCacheStore(a.Cache, cfg.BotSessionTTL),
		logger.Named("bot"),
		bot.Options{Delay: delay, PollTimeout: cfg.BotPollTimeout, Language: cfg.BotLanguage},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := b.Run(ctx); err != nil {
		logger.Error("bot stopped", zap.Error(err))
	}

	err = lifecycle.Shutdown(context.Background(), logger, cfg.ShutdownTimeout,
		lifecycle.Step{Name: "telemetry", Run: func(ctx context.Context) error {
			return observability.FlushTelemetry(ctx, logger)
		}},
		lifecycle.Step{Name: "cache", Run: func(context.Context) error {
			return a.Close()
		}},
	)
	if err != nil {
		logger.Warn("shutdown finished with errors", zap.Error(err))
	}
}
