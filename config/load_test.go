package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "desk.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeTempConfig(t, `
env: prod
server:
  addr: ":8080"
gateway:
  baseURL: https://algo.test/api/v1
  apiKey: foo
  timeoutMs: 2500
ledger:
  path: /tmp/orders.json
  timezone: Asia/Kolkata
  maxPendingAgeSec: 600
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Env != "prod" || cfg.Gateway.APIKey != "foo" {
		t.Fatalf("unexpected cfg values: %+v", cfg)
	}
	// 未配置的字段保持默认
	assert.Equal(t, "trading_app", cfg.Gateway.Strategy)
	assert.Equal(t, "NFO", cfg.Gateway.Exchange)
	assert.Equal(t, "data/settings.json", cfg.Settings.Path)
	assert.Equal(t, int64(2500), cfg.Gateway.Timeout().Milliseconds())
	loc, err := cfg.Ledger.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Kolkata", loc.String())
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := writeTempConfig(t, `
env: prod
gateway:
  baseURL: https://algo.test/api/v1
  apiKey: foo
`)
	t.Setenv("OPENALGO_API_KEY", "env-key")
	t.Setenv("OPENALGO_URL", "http://broker.local:5000/api/v1/")
	t.Setenv("PORT", "6000")
	cfg, err := LoadWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assert.Equal(t, "env-key", cfg.Gateway.APIKey)
	assert.Equal(t, "http://broker.local:5000/api/v1", cfg.Gateway.BaseURL)
	assert.Equal(t, ":6000", cfg.Server.Addr)
}

func TestLoadWithEnvOverridesReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("DESK_LEDGER_PATH="+filepath.Join(dir, "o.json")+"\n# comment\n"), 0o644))
	t.Setenv("DESK_LEDGER_PATH", "")
	os.Unsetenv("DESK_LEDGER_PATH")

	cfg, err := LoadWithEnvOverrides("", filepath.Join(dir, "missing.env"), envPath)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "o.json"), cfg.Ledger.Path)
}

func TestValidate(t *testing.T) {
	err := Validate(AppConfig{})
	if err == nil {
		t.Fatalf("expected error for empty config")
	}
	require.NoError(t, Validate(Default()))

	bad := Default()
	bad.Gateway.BaseURL = "localhost:5000"
	assert.Error(t, Validate(bad))

	bad = Default()
	bad.Ledger.Timezone = "Mars/Olympus"
	assert.Error(t, Validate(bad))

	bad = Default()
	bad.Ledger.ReconcileIntervalMs = 100
	assert.Error(t, Validate(bad))

	bad = Default()
	bad.Alert.WebhookURL = "hooks/desk"
	assert.Error(t, Validate(bad))

	assert.Equal(t, time.Minute, AlertConfig{}.Throttle())
}

func TestSaveToFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Default()
	cfg.Gateway.APIKey = "k"
	require.NoError(t, SaveToFile(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Gateway, loaded.Gateway)
	assert.Equal(t, cfg.Ledger, loaded.Ledger)
}
