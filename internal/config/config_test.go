package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "tax-intake.db", cfg.Store.Path)
	assert.Equal(t, time.Hour, cfg.Session.CustomersTTL())
	assert.Equal(t, 10*time.Minute, cfg.Session.BasicInfoTTL())
	assert.Equal(t, "₪", cfg.Editor.CurrencySymbol)
	assert.False(t, cfg.Editor.ShowAllFields)
	assert.Equal(t, int64(20<<20), cfg.Upload.MaxFileBytes())
	assert.Contains(t, cfg.Upload.AllowedExtensions, ".pdf")
	assert.Equal(t, time.Duration(0), cfg.API.Timeout())
	assert.InDelta(t, 5.0, cfg.API.RateLimit, 0.001)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
api:
  api_base_url: https://api.local
log:
  level: debug
  format: console
server:
  port: 9090
editor:
  show_all_fields: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.local", cfg.API.APIBaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Editor.ShowAllFields)
	// Defaults still apply for unset values
	assert.Equal(t, 2000, cfg.Upload.MaxImageDimension)
}

func TestLoadFile_ExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intake.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  path: /tmp/elsewhere.db\n"), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/elsewhere.db", cfg.Store.Path)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadFile_MissingExplicitPath(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  path: from-file.db
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("TAXINTAKE_STORE_PATH", "from-env.db")
	t.Setenv("TAXINTAKE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "from-env.db", cfg.Store.Path)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("TAXINTAKE_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.API.AuthBaseURL = "https://auth.local"
	cfg.API.APIBaseURL = "https://api.local"
	cfg.Store.Path = "test.db"
	cfg.Upload.MaxFileMB = 20
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateClient_AllPresent(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("client"))
}

func TestValidateClient_MissingFields(t *testing.T) {
	cfg := &Config{}

	err := cfg.Validate("client")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api.auth_base_url is required")
	assert.Contains(t, err.Error(), "api.api_base_url is required")
	assert.Contains(t, err.Error(), "store.path is required")
	assert.Contains(t, err.Error(), "upload.max_file_mb")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")

	// Port is irrelevant outside serve mode.
	assert.NoError(t, cfg.Validate("client"))
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown validation mode")
}
