package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	CORSAllowedOrigins []string
	RedisURL           string
	BodyLimitBytes     int64

	BackendBaseURL             string
	BackendAPIToken            string
	BackendTimeout             time.Duration
	BackendReadAttempts        int
	BackendBreakerMinRequests  int
	BackendBreakerFailureRatio float64
	BackendBreakerOpenFor      time.Duration

	SessionTTL           time.Duration
	SessionSweepInterval time.Duration
	PrintResetDelay      time.Duration
	SaveGuardTTL         time.Duration
	IdempotencyTTL       time.Duration

	SettingsRefreshInterval time.Duration
	SettingsCacheTTL        time.Duration

	SearchDebounce  time.Duration
	SearchRateLimit string

	ActionRateWindow time.Duration
	ActionRateMax    int

	MessageCountryCode     string
	MessageDefaultLanguage string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		BodyLimitBytes:     int64(parseInt(k.String("BODY_LIMIT_BYTES"), 1<<20)),

		BackendBaseURL:             strings.TrimRight(strings.TrimSpace(k.String("BACKEND_BASE_URL")), "/"),
		BackendAPIToken:            strings.TrimSpace(k.String("BACKEND_API_TOKEN")),
		BackendTimeout:             parseDuration(k.String("BACKEND_TIMEOUT"), "5s"),
		BackendReadAttempts:        parseInt(k.String("BACKEND_READ_ATTEMPTS"), 2),
		BackendBreakerMinRequests:  parseInt(k.String("BACKEND_BREAKER_MIN_REQUESTS"), 5),
		BackendBreakerFailureRatio: parseFloat(k.String("BACKEND_BREAKER_FAILURE_RATIO"), 0.5),
		BackendBreakerOpenFor:      parseDuration(k.String("BACKEND_BREAKER_OPEN_FOR"), "30s"),

		SessionTTL:           parseDuration(k.String("SESSION_TTL"), "12h"),
		SessionSweepInterval: parseDuration(k.String("SESSION_SWEEP_INTERVAL"), "5m"),
		PrintResetDelay:      parseDuration(k.String("PRINT_RESET_DELAY"), "1500ms"),
		SaveGuardTTL:         parseDuration(k.String("SAVE_GUARD_TTL"), "30s"),
		IdempotencyTTL:       parseDuration(k.String("IDEMPOTENCY_TTL"), "10m"),

		SettingsRefreshInterval: parseDuration(k.String("SETTINGS_REFRESH_INTERVAL"), "0s"),
		SettingsCacheTTL:        parseDuration(k.String("SETTINGS_CACHE_TTL"), "10m"),

		SearchDebounce:  parseDuration(k.String("SEARCH_DEBOUNCE"), "300ms"),
		SearchRateLimit: valueOrDefault(k.String("SEARCH_RATE_LIMIT"), "120-M"),

		ActionRateWindow: parseDuration(k.String("ACTION_RATE_WINDOW"), "1m"),
		ActionRateMax:    parseInt(k.String("ACTION_RATE_MAX"), 30),

		MessageCountryCode:     valueOrDefault(k.String("MESSAGE_COUNTRY_CODE"), "971"),
		MessageDefaultLanguage: strings.ToLower(valueOrDefault(k.String("MESSAGE_DEFAULT_LANGUAGE"), "en")),
	}

	if cfg.BackendBaseURL == "" {
		return nil, errors.New("BACKEND_BASE_URL is required")
	}
	if u, err := url.Parse(cfg.BackendBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("BACKEND_BASE_URL must be an absolute url: %q", cfg.BackendBaseURL)
	}
	if cfg.BackendReadAttempts < 1 {
		cfg.BackendReadAttempts = 1
	}
	if cfg.PrintResetDelay < 0 {
		cfg.PrintResetDelay = 0
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
