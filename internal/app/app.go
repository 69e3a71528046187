// Package app assembles the document pipeline from configuration and runs
// the long-lived server mode.
package app

import (
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/ai"
	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/api"
	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/capture"
	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/channels/telegram"
	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/config"
	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/cron"
	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/forms"
	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/store"
)

// App holds the wired application components.
type App struct {
	Config      *config.Config
	Store       *store.Store
	Logger      *zap.Logger
	Service     *ai.Service
	Forms       *forms.Registry
	Capturer    *capture.Capturer
	TelegramBot *telegram.Bot
	CronRunner  *cron.Runner
	Version     string

	// current carries the latest config so credential lookups pick up
	// hot-reloaded API keys without rebuilding the provider ladder.
	current atomic.Pointer[config.Config]
}

// New builds the store, provider ladder and pipeline service from config.
func New(cfg *config.Config, logger *zap.Logger, version string) (*App, error) {
	st, err := store.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("store init: %w", err)
	}

	app := &App{
		Config:  cfg,
		Store:   st,
		Logger:  logger,
		Forms:   forms.NewRegistry(),
		Version: version,
	}
	app.current.Store(cfg)

	creds := ai.CredentialFunc(func(providerID string) string {
		if p, ok := app.current.Load().Providers[providerID]; ok {
			return p.APIKey
		}
		return ""
	})

	providers := BuildProviders(cfg, creds, logger)
	app.Service = ai.NewService(ServiceConfigFrom(cfg), providers, st.Cache(), logger)

	app.Capturer = capture.New(capture.Config{
		Headless: cfg.Capture.Headless,
		Timeout:  time.Duration(cfg.Capture.Timeout) * time.Second,
	}, logger)

	return app, nil
}

// RunServer starts the intake channels, maintenance jobs and HTTP server,
// then blocks until an interrupt arrives and shuts everything down in order.
func (app *App) RunServer() {
	cfg := app.Config

	// Bot startup talks to the Telegram API; run it async so a slow or
	// unreachable network cannot delay the HTTP server.
	if cfg.Channels.Telegram.Enabled {
		telegramCfg := telegram.Config{
			Token:     cfg.Channels.Telegram.BotToken,
			Enabled:   true,
			AllowList: cfg.Channels.Telegram.AllowList,
		}

		go func() {
			bot, err := telegram.NewBot(telegramCfg, app.Service, app.Store, app.Forms, app.Logger)
			if err != nil {
				app.Logger.Error("Failed to create Telegram bot", zap.Error(err))
				return
			}
			if err := bot.Start(); err != nil {
				app.Logger.Error("Failed to start Telegram bot", zap.Error(err))
				return
			}
			app.TelegramBot = bot
			app.Logger.Info("Telegram bot started")
		}()
	}

	app.CronRunner = cron.NewRunner(cfg.Maintenance, cfg.Storage.RetentionDays, app.Service, app.Store, app.Logger)
	if err := app.CronRunner.Start(); err != nil {
		app.Logger.Error("Failed to start maintenance runner", zap.Error(err))
	}

	server := api.New(cfg, app.Service, app.Store, app.Forms, app.Capturer, app.Logger, app.Version)

	go func() {
		if err := server.Start(); err != nil {
			app.Logger.Fatal("Server error", zap.Error(err))
		}
	}()

	app.Logger.Info("Server started",
		zap.String("address", cfg.Server.Address),
		zap.Int("port", cfg.Server.Port),
		zap.String("url", fmt.Sprintf("http://localhost:%d", cfg.Server.Port)),
	)
	app.Logger.Info("Provider ladder", zap.Strings("order", cfg.SortedProviderIDs()))

	cfg.Watch(app.Logger, func(next *config.Config) {
		app.current.Store(next)
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info("Shutting down...")

	if app.TelegramBot != nil {
		app.TelegramBot.Stop()
	}

	if app.CronRunner != nil {
		app.CronRunner.Stop()
	}

	if err := server.Shutdown(); err != nil {
		app.Logger.Error("Server shutdown error", zap.Error(err))
	}

	if err := app.Store.Close(); err != nil {
		app.Logger.Error("Store close error", zap.Error(err))
	}
}

// Close releases the store. Server mode closes during shutdown; one-shot
// CLI paths call this instead.
func (app *App) Close() {
	if err := app.Store.Close(); err != nil {
		app.Logger.Warn("Store close error", zap.Error(err))
	}
}
