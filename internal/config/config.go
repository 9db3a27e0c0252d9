/**
 * @description
 * This package handles the configuration management for the rewards service. It uses
 * Viper to read configuration from environment variables and an optional .env file.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

const (
	defaultMinWithdrawalCents   = 2000
	defaultSubmissionRateLimit  = 10
	defaultWithdrawalRateLimit  = 5
	defaultReconcileSchedule    = "@every 1h"
	defaultIdentityEventQueue   = "rewards_service.identity_events"
	defaultRedisRateLimitPrefix = "dincash:rate_limit"
)

// Config holds all the configuration variables for the rewards service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                   string `mapstructure:"SERVER_PORT"`
	DatabaseURL                  string `mapstructure:"DATABASE_URL"`
	AutoMigrate                  bool   `mapstructure:"AUTO_MIGRATE"`
	RedisURL                     string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix         string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL                  string `mapstructure:"RABBITMQ_URL"`
	IdentityEventQueue           string `mapstructure:"IDENTITY_EVENT_QUEUE"`
	AuthJWTSecret                string `mapstructure:"AUTH_JWT_SECRET"`
	AuthJWKSURL                  string `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience                 string `mapstructure:"AUTH_AUDIENCE"`
	AuthIssuer                   string `mapstructure:"AUTH_ISSUER"`
	InternalAPIKey               string `mapstructure:"INTERNAL_API_KEY"`
	AdminContactsRaw             string `mapstructure:"ADMIN_CONTACTS"`
	MinWithdrawalCents           int64  `mapstructure:"MIN_WITHDRAWAL_CENTS"`
	SubmissionRateLimitPerMinute int    `mapstructure:"SUBMISSION_RATE_LIMIT_PER_MINUTE"`
	WithdrawalRateLimitPerMinute int    `mapstructure:"WITHDRAWAL_RATE_LIMIT_PER_MINUTE"`
	ReconcileSchedule            string `mapstructure:"RECONCILE_SCHEDULE"`
	SeedDefaultMissions          bool   `mapstructure:"SEED_DEFAULT_MISSIONS"`
	CORSAllowedOriginsRaw        string `mapstructure:"CORS_ALLOWED_ORIGINS"`
}

// AdminContacts returns the e-mail addresses or phone numbers granted admin rights.
func (c Config) AdminContacts() []string {
	return splitList(c.AdminContactsRaw)
}

// CORSAllowedOrigins returns the browser origins allowed to call the API.
func (c Config) CORSAllowedOrigins() []string {
	origins := splitList(c.CORSAllowedOriginsRaw)
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// LoadConfig reads configuration from environment variables and the optional .env file
// in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("AUTO_MIGRATE", false)
	viper.SetDefault("IDENTITY_EVENT_QUEUE", defaultIdentityEventQueue)
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", defaultRedisRateLimitPrefix)
	viper.SetDefault("MIN_WITHDRAWAL_CENTS", defaultMinWithdrawalCents)
	viper.SetDefault("SUBMISSION_RATE_LIMIT_PER_MINUTE", defaultSubmissionRateLimit)
	viper.SetDefault("WITHDRAWAL_RATE_LIMIT_PER_MINUTE", defaultWithdrawalRateLimit)
	viper.SetDefault("RECONCILE_SCHEDULE", defaultReconcileSchedule)
	viper.SetDefault("SEED_DEFAULT_MISSIONS", false)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("AUTO_MIGRATE")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("IDENTITY_EVENT_QUEUE")
	_ = viper.BindEnv("AUTH_JWT_SECRET", "AUTH_JWT_SECRET", "SUPABASE_JWT_SECRET")
	_ = viper.BindEnv("AUTH_JWKS_URL")
	_ = viper.BindEnv("AUTH_AUDIENCE")
	_ = viper.BindEnv("AUTH_ISSUER")
	_ = viper.BindEnv("INTERNAL_API_KEY")
	_ = viper.BindEnv("ADMIN_CONTACTS")
	_ = viper.BindEnv("MIN_WITHDRAWAL_CENTS")
	_ = viper.BindEnv("MIN_WITHDRAWAL")
	_ = viper.BindEnv("SUBMISSION_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("WITHDRAWAL_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("RECONCILE_SCHEDULE")
	_ = viper.BindEnv("SEED_DEFAULT_MISSIONS")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")

	// The .env file is optional.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("failed to read config file; using environment values", "component", "config", "error", err)
		}
	}

	coerceInt("MIN_WITHDRAWAL_CENTS", defaultMinWithdrawalCents)
	coerceInt("SUBMISSION_RATE_LIMIT_PER_MINUTE", defaultSubmissionRateLimit)
	coerceInt("WITHDRAWAL_RATE_LIMIT_PER_MINUTE", defaultWithdrawalRateLimit)
	coerceBool("AUTO_MIGRATE", false)
	coerceBool("SEED_DEFAULT_MISSIONS", false)

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.DatabaseURL = strings.TrimSpace(config.DatabaseURL)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RabbitMQURL = strings.TrimSpace(config.RabbitMQURL)
	config.AuthJWTSecret = strings.TrimSpace(config.AuthJWTSecret)
	config.AuthJWKSURL = strings.TrimSpace(config.AuthJWKSURL)
	config.InternalAPIKey = strings.TrimSpace(config.InternalAPIKey)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = defaultRedisRateLimitPrefix
	}
	config.IdentityEventQueue = strings.TrimSpace(config.IdentityEventQueue)
	if config.IdentityEventQueue == "" {
		config.IdentityEventQueue = defaultIdentityEventQueue
	}
	config.ReconcileSchedule = strings.TrimSpace(config.ReconcileSchedule)

	// MIN_WITHDRAWAL is given in whole reais and wins over the cents value.
	if viper.IsSet("MIN_WITHDRAWAL") {
		raw := strings.TrimSpace(viper.GetString("MIN_WITHDRAWAL"))
		if raw != "" {
			value, parseErr := strconv.ParseFloat(raw, 64)
			if parseErr != nil {
				slog.Warn("invalid MIN_WITHDRAWAL", "component", "config", "value", raw, "error", parseErr)
			} else {
				config.MinWithdrawalCents = int64(math.Round(value * 100))
			}
		}
	}
	if config.MinWithdrawalCents <= 0 {
		slog.Warn("non-positive minimum withdrawal configured; using default", "component", "config", "min_withdrawal_cents", config.MinWithdrawalCents)
		config.MinWithdrawalCents = defaultMinWithdrawalCents
	}

	if config.SubmissionRateLimitPerMinute < 0 {
		slog.Warn("negative submission rate limit configured; using default", "component", "config", "limit", config.SubmissionRateLimitPerMinute)
		config.SubmissionRateLimitPerMinute = defaultSubmissionRateLimit
	}
	if config.WithdrawalRateLimitPerMinute < 0 {
		slog.Warn("negative withdrawal rate limit configured; using default", "component", "config", "limit", config.WithdrawalRateLimitPerMinute)
		config.WithdrawalRateLimitPerMinute = defaultWithdrawalRateLimit
	}

	return
}

// coerceInt replaces a value that does not parse as an integer with its default.
func coerceInt(key string, fallback int) {
	raw := strings.TrimSpace(viper.GetString(key))
	if raw == "" {
		return
	}
	if _, err := strconv.ParseInt(raw, 10, 64); err != nil {
		slog.Warn("invalid integer setting; using default", "component", "config", "key", key, "value", raw, "default", fallback)
		viper.Set(key, fallback)
	}
}

func coerceBool(key string, fallback bool) {
	raw := strings.TrimSpace(viper.GetString(key))
	if raw == "" {
		return
	}
	if _, err := strconv.ParseBool(raw); err != nil {
		slog.Warn("invalid boolean setting; using default", "component", "config", "key", key, "value", raw, "default", fallback)
		viper.Set(key, fallback)
	}
}
