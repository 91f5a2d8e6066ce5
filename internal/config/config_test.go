package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 0.2, cfg.Detection.ConfidenceThreshold)
	assert.Equal(t, 120*time.Second, cfg.Alert.Cooldown())
	assert.Equal(t, 20, cfg.Ledger.Recent)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "file", cfg.Mode.Backend)
	assert.Equal(t, []string{"jpg", "jpeg", "png"}, cfg.Upload.Extensions)
	assert.Equal(t, int64(10*1024*1024), cfg.Upload.MaxSize)
}

func TestLoadLegacyEnvironment(t *testing.T) {
	t.Setenv("CONFIDENCE_THRESHOLD", "0.45")
	t.Setenv("ALERT_COOLDOWN", "30")
	t.Setenv("PORT", "9100")
	t.Setenv("EMAIL_USER", "shop@example.com")
	t.Setenv("ALERT_PHONE", "+15550001111")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 0.45, cfg.Detection.ConfidenceThreshold)
	assert.Equal(t, 30*time.Second, cfg.Alert.Cooldown())
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "shop@example.com", cfg.Email.User)
	assert.Equal(t, "+15550001111", cfg.WhatsApp.To)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shopwatch.yaml")
	yaml := []byte(`
detection:
  backend: grpc
  endpoint: localhost:50051
alert:
  cooldown_seconds: 60
mode:
  backend: sqlite
`)
	require.NoError(t, os.WriteFile(path, yaml, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "grpc", cfg.Detection.Backend)
	assert.Equal(t, "localhost:50051", cfg.Detection.Endpoint)
	assert.Equal(t, 60*time.Second, cfg.Alert.Cooldown())
	assert.Equal(t, "sqlite", cfg.Mode.Backend)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("CONFIDENCE_THRESHOLD", "1.5")
	_, err := Load("")
	assert.Error(t, err)

	t.Setenv("CONFIDENCE_THRESHOLD", "0.2")
	t.Setenv("ALERT_COOLDOWN", "-1")
	_, err = Load("")
	assert.Error(t, err)
}

func TestValidateLedgerRetention(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	for _, retain := range []int{0, MaxHistoryLimit, 1000} {
		cfg.Ledger.Retain = retain
		assert.NoError(t, cfg.Validate(), "retain=%d", retain)
	}
	for _, retain := range []int{-1, 1, MaxHistoryLimit - 1} {
		cfg.Ledger.Retain = retain
		assert.Error(t, cfg.Validate(), "retain=%d", retain)
	}
}

func TestAddr(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Server.Host, cfg.Server.Port = "0.0.0.0", 9000
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr())

	cfg.Server.Host = "::1"
	assert.Equal(t, "[::1]:9000", cfg.Addr())
}
