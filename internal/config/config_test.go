package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestLoadMemoryDefaults(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"APP_STORE":          "memory",
		"DATABASE_URL":       "",
		"TAX_RATE_PERCENT":   "",
		"TAX_RATE_OVERRIDES": "",
		"PORT":               "",
		"RETURN_LOCK_TTL":    "",
	})
	require.NoError(t, err)
	require.Equal(t, StoreMemory, cfg.Store)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.True(t, cfg.TaxRatePercent.IsZero())
	require.Empty(t, cfg.TaxRateOverrides)
	require.Equal(t, 30*time.Second, cfg.ReturnLockTTL)
}

func TestLoadTaxRates(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"APP_STORE":          "memory",
		"TAX_RATE_PERCENT":   "11",
		"TAX_RATE_OVERRIDES": "rice=0, cigarettes=20.5",
	})
	require.NoError(t, err)
	require.True(t, cfg.TaxRatePercent.Equal(decimal.NewFromInt(11)))
	require.True(t, cfg.TaxRateOverrides["rice"].IsZero())
	require.True(t, cfg.TaxRateOverrides["cigarettes"].Equal(decimal.RequireFromString("20.5")))
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []map[string]string{
		{"APP_STORE": "postgres", "DATABASE_URL": ""},
		{"APP_STORE": "sqlite"},
		{"APP_STORE": "memory", "TAX_RATE_PERCENT": "120"},
		{"APP_STORE": "memory", "TAX_RATE_OVERRIDES": "rice"},
		{"APP_STORE": "memory", "TAX_RATE_OVERRIDES": "rice=abc"},
	}
	for _, env := range cases {
		_, err := LoadForTests(env)
		require.Error(t, err, "%v", env)
	}
}
