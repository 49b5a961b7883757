//go:build !integration

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_DefaultsAndNormalization(t *testing.T) {
	p := writeConfig(t, `
payment:
  gateways:
    ZarinPal:
      merchant_id: "00000000-0000-0000-0000-000000000000"
      sandbox: true
      http:
        retries: 2
`)
	cfg, err := Load(p, true)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.Runtime.Dev)
	assert.Equal(t, "zarinpal", cfg.Payment.Default)

	name, g, ok := cfg.Gateway("")
	require.True(t, ok)
	assert.Equal(t, "zarinpal", name)
	assert.True(t, g.Sandbox)
	assert.Equal(t, 2, g.HTTP.Retries)
	assert.Equal(t, 10*time.Second, g.HTTP.Timeout)
	assert.Equal(t, 500, g.HTTP.MaxBodyLog)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PAYMAN_ZIBAL_MERCHANT_ID", "from-env")
	t.Setenv("PAYMAN_ZIBAL_SANDBOX", "true")
	t.Setenv("PAYMAN_LOG_LEVEL", "debug")

	p := writeConfig(t, `
payment:
  default: zibal
  gateways:
    zibal:
      merchant_id: "from-file"
      http:
        timeout: 3s
`)
	cfg, err := Load(p, false)
	require.NoError(t, err)

	_, g, ok := cfg.Gateway("ZIBAL")
	require.True(t, ok)
	assert.Equal(t, "from-env", g.MerchantID)
	assert.True(t, g.Sandbox)
	assert.Equal(t, 3*time.Second, g.HTTP.Timeout)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_Validation(t *testing.T) {
	t.Run("no gateways", func(t *testing.T) {
		_, err := Load(writeConfig(t, "log:\n  level: info\n"), false)
		assert.Error(t, err)
	})

	t.Run("default not configured", func(t *testing.T) {
		p := writeConfig(t, `
payment:
  default: zibal
  gateways:
    zarinpal:
      merchant_id: "x"
`)
		_, err := Load(p, false)
		assert.ErrorContains(t, err, "payment.default")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), false)
		assert.ErrorContains(t, err, "read config")
	})
}

func TestHTTPConfig_WithDefaults(t *testing.T) {
	h := HTTPConfig{Retries: -3, RateLimit: 5}.WithDefaults()
	assert.Equal(t, 0, h.Retries)
	assert.Equal(t, 1, h.RateBurst)
	assert.Equal(t, time.Second, h.RetryDelay)
	assert.Equal(t, 3*time.Second, h.SlowThreshold)
}

func TestLoad_ServerAndEventsDefaults(t *testing.T) {
	t.Setenv("PAYMAN_KAFKA_BROKERS", "k1:9092,k2:9092")
	p := writeConfig(t, `
server:
  callback_rate_limit: 30
payment:
  gateways:
    noop: {}
`)
	cfg, err := Load(p, false)
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.Server.CallbackRateLimit)
	assert.Equal(t, time.Minute, cfg.Server.RateWindow)
	assert.Equal(t, 24*time.Hour, cfg.Server.ResultCacheTTL)
	assert.Equal(t, time.Hour, cfg.Server.TokenTTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Events.Brokers)
	assert.Equal(t, "payman.payments", cfg.Events.Topic)
}
