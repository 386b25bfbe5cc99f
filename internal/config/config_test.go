package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/superapp-core/internal/money"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"CURRENCY_CODE":  "",
		"MONEY_ROUNDING": "",
		"CART_TTL":       "",
		"REDIS_URL":      "",
		"PORT":           "",
		"SPLIT_TTL":      "",
	})
	require.NoError(t, err)
	require.Equal(t, "BDT", cfg.CurrencyCode)
	require.Equal(t, money.HalfUp, cfg.Rounding)
	require.Equal(t, 7*24*time.Hour, cfg.CartTTL)
	require.Equal(t, 30*24*time.Hour, cfg.SplitTTL)
	require.Empty(t, cfg.RedisURL)
	require.Equal(t, ":8080", cfg.HTTPAddr())
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"CURRENCY_CODE":          "usd",
		"MONEY_ROUNDING":         "half_even",
		"PAYMENT_MAX_ATTEMPTS":   "5",
		"CORS_ALLOWED_ORIGINS":   "https://a.example, https://b.example",
		"OBS_ENABLE_TRACING":     "true",
		"OBS_METRICS_NAMESPACE":  "wallet",
		"OBS_METRICS_BUCKETS_MS": "10, 50,200",
		"SPLIT_TTL":              "48h",
		"PORT":                   ":9090",
	})
	require.NoError(t, err)
	require.Equal(t, "USD", cfg.CurrencyCode)
	require.Equal(t, money.HalfEven, cfg.Rounding)
	require.Equal(t, 5, cfg.PaymentMaxAttempts)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	require.True(t, cfg.Obs.EnableTracing)
	require.Equal(t, "wallet", cfg.Obs.MetricsNamespace)
	require.Equal(t, "10, 50,200", cfg.Obs.MetricsBuckets)
	require.Equal(t, 48*time.Hour, cfg.SplitTTL)
	require.Equal(t, ":9090", cfg.HTTPAddr())
}

func TestLoadRejectsInvalid(t *testing.T) {
	_, err := LoadForTests(map[string]string{"MONEY_ROUNDING": "ceiling"})
	require.Error(t, err)
	_, err = LoadForTests(map[string]string{"CURRENCY_CODE": "TAKA"})
	require.ErrorIs(t, err, money.ErrInvalidCurrency)
	_, err = LoadForTests(map[string]string{"PAYMENT_MAX_ATTEMPTS": "0"})
	require.Error(t, err)
}
