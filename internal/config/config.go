// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pegazus-alpha/cent-bot/internal/moderation"
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	DatabasePath     string
	LogLevel         string
	SuperAdmins      []string
	Moderation       moderation.Config
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "./data/bot.db"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	mod := moderation.DefaultConfig()
	mod.BannedWords = splitList(os.Getenv("BANNED_WORDS"))

	if raw := os.Getenv("FLOOD_LIMIT"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("FLOOD_LIMIT must be a positive integer, got %q", raw)
		}
		mod.AntiFlood.MessageLimit = n
	}
	if raw := os.Getenv("FLOOD_WINDOW_SECONDS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("FLOOD_WINDOW_SECONDS must be a positive integer, got %q", raw)
		}
		mod.AntiFlood.TimeFrame = time.Duration(n) * time.Second
	}
	switch raw := strings.ToLower(os.Getenv("FLOOD_ACTION")); raw {
	case "":
	case "warn":
		mod.AntiFlood.Action = moderation.FloodWarn
	case "kick":
		mod.AntiFlood.Action = moderation.FloodKick
	default:
		return nil, fmt.Errorf("FLOOD_ACTION must be warn or kick, got %q", raw)
	}
	if raw := os.Getenv("FLOOD_ENABLED"); raw != "" {
		on, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid FLOOD_ENABLED %q: %w", raw, err)
		}
		mod.AntiFlood.Enabled = on
	}

	return &Config{
		TelegramBotToken: token,
		DatabasePath:     dbPath,
		LogLevel:         logLevel,
		SuperAdmins:      splitList(os.Getenv("SUPER_ADMINS")),
		Moderation:       mod,
	}, nil
}

// IsSuperAdmin checks whether a user ID is in the super-admin list.
// Super admins pass every authorization check in every group.
func (c *Config) IsSuperAdmin(userID string) bool {
	for _, id := range c.SuperAdmins {
		if id == userID {
			return true
		}
	}
	return false
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
