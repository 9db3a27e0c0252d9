package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	for _, key := range []string{"PORT", "SERVER_PORT", "MIN_WITHDRAWAL", "MIN_WITHDRAWAL_CENTS", "RECONCILE_SCHEDULE", "DATABASE_URL", "CORS_ALLOWED_ORIGINS"} {
		unsetEnvWithCleanup(t, key)
	}

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.ServerPort)
	}
	if cfg.MinWithdrawalCents != 2000 {
		t.Fatalf("expected default minimum withdrawal 2000, got %d", cfg.MinWithdrawalCents)
	}
	if cfg.ReconcileSchedule != "@every 1h" {
		t.Fatalf("expected default reconcile schedule, got %q", cfg.ReconcileSchedule)
	}
	if cfg.IdentityEventQueue != "rewards_service.identity_events" {
		t.Fatalf("unexpected identity queue %q", cfg.IdentityEventQueue)
	}
	if cfg.DatabaseURL != "" {
		t.Fatalf("expected empty database url, got %q", cfg.DatabaseURL)
	}
	if origins := cfg.CORSAllowedOrigins(); len(origins) != 1 || origins[0] != "*" {
		t.Fatalf("expected wildcard CORS by default, got %v", origins)
	}
}

func TestLoadConfig_PortOverridesServerPort(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SERVER_PORT", "9000")
	setEnvWithCleanup(t, "PORT", "10000")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "10000" {
		t.Fatalf("expected PORT to win, got %q", cfg.ServerPort)
	}
}

func TestLoadConfig_MinWithdrawalInWholeUnits(t *testing.T) {
	tests := []struct {
		name  string
		whole string
		cents string
		want  int64
	}{
		{name: "whole units converted to cents", whole: "25.5", want: 2550},
		{name: "cents only", cents: "3000", want: 3000},
		{name: "whole units win over cents", whole: "30", cents: "1000", want: 3000},
		{name: "invalid whole units keep cents", whole: "abc", cents: "1500", want: 1500},
		{name: "negative coerced to default", cents: "-5", want: 2000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			t.Cleanup(viper.Reset)

			unsetEnvWithCleanup(t, "MIN_WITHDRAWAL")
			unsetEnvWithCleanup(t, "MIN_WITHDRAWAL_CENTS")
			if tt.whole != "" {
				setEnvWithCleanup(t, "MIN_WITHDRAWAL", tt.whole)
			}
			if tt.cents != "" {
				setEnvWithCleanup(t, "MIN_WITHDRAWAL_CENTS", tt.cents)
			}

			cfg, err := LoadConfig(t.TempDir())
			if err != nil {
				t.Fatalf("LoadConfig returned error: %v", err)
			}
			if cfg.MinWithdrawalCents != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, cfg.MinWithdrawalCents)
			}
		})
	}
}

func TestLoadConfig_ListsAndAliases(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "AUTH_JWT_SECRET")
	setEnvWithCleanup(t, "SUPABASE_JWT_SECRET", "alias-secret")
	setEnvWithCleanup(t, "ADMIN_CONTACTS", " admin@dincash.app, ,+5511999990000 ")
	setEnvWithCleanup(t, "WITHDRAWAL_RATE_LIMIT_PER_MINUTE", "-3")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.AuthJWTSecret != "alias-secret" {
		t.Fatalf("expected JWT secret from alias env var, got %q", cfg.AuthJWTSecret)
	}
	admins := cfg.AdminContacts()
	if len(admins) != 2 || admins[0] != "admin@dincash.app" || admins[1] != "+5511999990000" {
		t.Fatalf("unexpected admin contacts %v", admins)
	}
	if cfg.WithdrawalRateLimitPerMinute != 5 {
		t.Fatalf("expected negative rate limit coerced to default, got %d", cfg.WithdrawalRateLimitPerMinute)
	}
}

func TestLoadConfig_ReadsDotEnvFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "INTERNAL_API_KEY")
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("INTERNAL_API_KEY=from-file\n"), 0o600); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.InternalAPIKey != "from-file" {
		t.Fatalf("expected key from .env file, got %q", cfg.InternalAPIKey)
	}
}

func TestLoadConfig_InvalidNumbersFallBackToDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "MIN_WITHDRAWAL")
	setEnvWithCleanup(t, "SUBMISSION_RATE_LIMIT_PER_MINUTE", "ten")
	setEnvWithCleanup(t, "WITHDRAWAL_RATE_LIMIT_PER_MINUTE", "3")
	setEnvWithCleanup(t, "MIN_WITHDRAWAL_CENTS", "20,00")
	setEnvWithCleanup(t, "AUTO_MIGRATE", "sometimes")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.SubmissionRateLimitPerMinute != 10 {
		t.Fatalf("expected default submission limit 10, got %d", cfg.SubmissionRateLimitPerMinute)
	}
	if cfg.WithdrawalRateLimitPerMinute != 3 {
		t.Fatalf("expected valid withdrawal limit 3 to be kept, got %d", cfg.WithdrawalRateLimitPerMinute)
	}
	if cfg.MinWithdrawalCents != 2000 {
		t.Fatalf("expected default minimum withdrawal 2000, got %d", cfg.MinWithdrawalCents)
	}
	if cfg.AutoMigrate {
		t.Fatal("expected invalid AUTO_MIGRATE to fall back to false")
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
		}
	})
}
