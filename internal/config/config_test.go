package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.LoadForTests(map[string]string{
		"BACKEND_BASE_URL":  "https://shop.example.com/",
		"PORT":              "",
		"SEARCH_DEBOUNCE":   "",
		"PRINT_RESET_DELAY": "",
		"REDIS_URL":         "",
	})
	require.NoError(t, err)
	require.Equal(t, "https://shop.example.com", cfg.BackendBaseURL)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Equal(t, 300*time.Millisecond, cfg.SearchDebounce)
	require.Equal(t, 1500*time.Millisecond, cfg.PrintResetDelay)
	require.Equal(t, 2, cfg.BackendReadAttempts)
	require.Equal(t, "971", cfg.MessageCountryCode)
	require.Empty(t, cfg.RedisURL)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := config.LoadForTests(map[string]string{
		"BACKEND_BASE_URL":      "http://localhost:9000",
		"PORT":                  ":9090",
		"BACKEND_READ_ATTEMPTS": "0",
		"SESSION_TTL":           "2h",
		"CORS_ALLOWED_ORIGINS":  "https://a.example, https://b.example",
		"SEARCH_RATE_LIMIT":     "30-S",
	})
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTPAddr())
	require.Equal(t, 1, cfg.BackendReadAttempts)
	require.Equal(t, 2*time.Hour, cfg.SessionTTL)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	require.Equal(t, "30-S", cfg.SearchRateLimit)
}

func TestLoadRequiresBackend(t *testing.T) {
	_, err := config.LoadForTests(map[string]string{"BACKEND_BASE_URL": ""})
	require.Error(t, err)

	_, err = config.LoadForTests(map[string]string{"BACKEND_BASE_URL": "not a url"})
	require.Error(t, err)
}
