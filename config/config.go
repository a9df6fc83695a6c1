// Package config loads the sentrygate runtime configuration from the
// environment. A .env file in the working directory is merged in first so
// local development doesn't need exported variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every environment-provided setting. Secrets are read once at
// startup and treated as read-only for the lifetime of the process.
type Config struct {
	Port    string
	DBPath  string
	DataDir string

	// AdminSecret is the shared admin password. A value starting with a
	// bcrypt prefix ($2a$/$2b$/$2y$) is treated as a hash; anything else is
	// compared in constant time after trimming whitespace.
	AdminSecret string

	// TOTPSeed is the base32 one-time-password seed. Empty disables the
	// code check.
	TOTPSeed string

	// WebhookURL is the alert sink. Empty disables alert delivery.
	WebhookURL string

	// CaptchaSecret enables bot-challenge verification on login when set.
	CaptchaSecret string
	CaptchaURL    string

	// DeadManSwitch gates admin login on a fresh online heartbeat.
	DeadManSwitch     bool
	HeartbeatFreshFor time.Duration

	// FailDelay is the fixed artificial delay imposed on failed login
	// attempts (anti-brute-force).
	FailDelay time.Duration

	ThreatAPIKey string
	ThreatAPIURL string
	LLMAPIKey    string
	LLMAPIURL    string

	// DashboardAllowList restricts /api/dashboard to these IPs. Empty
	// disables the route.
	DashboardAllowList []string

	// FlagCatalogPath optionally overrides the built-in flag→level mapping
	// with a YAML file.
	FlagCatalogPath string

	// AuditRetentionDays bounds the audit table; 0 disables cleanup.
	AuditRetentionDays int

	LogLevel slog.Level
}

// Load reads .env (if present) and the environment into a Config.
// The admin secret is required; everything else has a workable default.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file, using environment only")
	}

	secret := os.Getenv("ADMIN_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("config: ADMIN_SECRET is required")
	}

	cfg := &Config{
		Port:               env("PORT", "8090"),
		DBPath:             env("DB_PATH", "data/sentrygate.db"),
		DataDir:            env("DATA_DIR", "data"),
		AdminSecret:        secret,
		TOTPSeed:           os.Getenv("TOTP_SEED"),
		WebhookURL:         os.Getenv("ALERT_WEBHOOK_URL"),
		CaptchaSecret:      os.Getenv("CAPTCHA_SECRET"),
		CaptchaURL:         env("CAPTCHA_VERIFY_URL", "https://challenges.cloudflare.com/turnstile/v0/siteverify"),
		DeadManSwitch:      envBool("DEAD_MAN_SWITCH", false),
		HeartbeatFreshFor:  envDuration("HEARTBEAT_FRESH_FOR", 10*time.Minute),
		FailDelay:          envDuration("LOGIN_FAIL_DELAY", 2*time.Second),
		ThreatAPIKey:       os.Getenv("THREAT_API_KEY"),
		ThreatAPIURL:       env("THREAT_API_URL", "https://api.abuseipdb.com/api/v2/check"),
		LLMAPIKey:          os.Getenv("LLM_API_KEY"),
		LLMAPIURL:          env("LLM_API_URL", "https://api.openai.com/v1/chat/completions"),
		FlagCatalogPath:    os.Getenv("FLAG_CATALOG"),
		AuditRetentionDays: envInt("AUDIT_RETENTION_DAYS", 90),
		LogLevel:           parseLevel(env("LOG_LEVEL", "info")),
	}

	if v := os.Getenv("DASHBOARD_ALLOW_IPS"); v != "" {
		for _, ip := range strings.Split(v, ",") {
			if ip = strings.TrimSpace(ip); ip != "" {
				cfg.DashboardAllowList = append(cfg.DashboardAllowList, ip)
			}
		}
	}

	return cfg, nil
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("config: invalid bool, using default", "key", key, "value", v)
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config: invalid int, using default", "key", key, "value", v)
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config: invalid duration, using default", "key", key, "value", v)
		return def
	}
	return d
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
