package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/pegazus-alpha/cent-bot/internal/bot"
	"github.com/pegazus-alpha/cent-bot/internal/config"
	"github.com/pegazus-alpha/cent-bot/internal/moderation"
	"github.com/pegazus-alpha/cent-bot/internal/platform"
	"github.com/pegazus-alpha/cent-bot/internal/session"
	"github.com/pegazus-alpha/cent-bot/internal/settings"
	"github.com/pegazus-alpha/cent-bot/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	settingsStore, err := settings.New(ctx, store, log)
	if err != nil {
		log.Error("load group settings", "error", err)
		os.Exit(1)
	}

	engine := moderation.New(cfg.Moderation, log)
	sessions := session.NewManager(log)

	messenger, err := connectTelegram(ctx, cfg.TelegramBotToken, log)
	if err != nil {
		log.Error("connect to telegram", "error", err)
		os.Exit(1)
	}

	b := bot.New(messenger, store, settingsStore, sessions, engine, cfg, log)

	log.Info("starting bot")

	go sessions.Run(ctx)
	go messenger.Run(ctx)

	b.Run(ctx, messenger.Events())

	log.Info("bot stopped")
}

// connectTelegram retries the initial connection with doubling backoff until
// it succeeds or ctx is cancelled.
func connectTelegram(ctx context.Context, token string, log *slog.Logger) (*platform.Telegram, error) {
	delay := time.Second
	for {
		messenger, err := platform.NewTelegram(token, log)
		if err == nil {
			return messenger, nil
		}
		log.Warn("connect to telegram", "error", err, "retry_in", delay)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		if delay < 30*time.Second {
			delay *= 2
		}
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
