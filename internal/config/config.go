package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	AutoMigrate           bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	TierCacheTTL          time.Duration
	AuthSecret            string
	AccessTokenTTLMinutes int
	LogLevel              slog.Level
	ReceiptMaxAttempts    int
	BootstrapAdminEmail   string
	BootstrapAdminPass    string
	MaintenanceInterval   time.Duration
}

// Load reads configuration from the environment. AUTH_SECRET has no default;
// the server refuses to start without one.
func Load() Config {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ALLOWED_ORIGIN", "http://127.0.0.1:3000")
	v.SetDefault("AUTO_MIGRATE", false)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("TIER_CACHE_TTL_SECONDS", 300)
	v.SetDefault("ACCESS_TOKEN_TTL_MINUTES", 480)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("RECEIPT_MAX_ATTEMPTS", 3)
	v.SetDefault("MAINTENANCE_INTERVAL_MINUTES", 60)

	tierTTL := v.GetInt("TIER_CACHE_TTL_SECONDS")
	if tierTTL < 1 {
		tierTTL = 300
	}
	tokenTTL := v.GetInt("ACCESS_TOKEN_TTL_MINUTES")
	if tokenTTL < 1 {
		tokenTTL = 480
	}
	attempts := v.GetInt("RECEIPT_MAX_ATTEMPTS")
	if attempts < 1 {
		attempts = 3
	}
	// 0 turns the audit jobs off.
	maintenance := v.GetInt("MAINTENANCE_INTERVAL_MINUTES")
	if maintenance < 0 {
		maintenance = 60
	}

	return Config{
		Port:                  v.GetString("PORT"),
		AllowedOrigin:         v.GetString("ALLOWED_ORIGIN"),
		DatabaseURL:           v.GetString("DATABASE_URL"),
		AutoMigrate:           v.GetBool("AUTO_MIGRATE"),
		RedisAddr:             v.GetString("REDIS_ADDR"),
		RedisPassword:         v.GetString("REDIS_PASSWORD"),
		RedisDB:               v.GetInt("REDIS_DB"),
		TierCacheTTL:          time.Duration(tierTTL) * time.Second,
		AuthSecret:            strings.TrimSpace(v.GetString("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		LogLevel:              parseLevel(v.GetString("LOG_LEVEL")),
		ReceiptMaxAttempts:    attempts,
		BootstrapAdminEmail:   strings.TrimSpace(v.GetString("BOOTSTRAP_ADMIN_EMAIL")),
		BootstrapAdminPass:    v.GetString("BOOTSTRAP_ADMIN_PASSWORD"),
		MaintenanceInterval:   time.Duration(maintenance) * time.Minute,
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func parseLevel(raw string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo
	}
	return level
}
