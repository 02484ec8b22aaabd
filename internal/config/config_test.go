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
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaultsWithFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
backend:
  url: http://lvs-backend:6200
  timeout: 15s
logging:
  level: debug
  format: console
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "http://lvs-backend:6200", cfg.Backend.URL)
	assert.Equal(t, 15*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, DefaultRules, cfg.Rules)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, "/ws", cfg.WebSocket.Path)
}

func TestLoadEnvironmentOverride(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")
	t.Setenv("LVSCONSOLE_BACKEND_URL", "https://lvs.example.com")
	t.Setenv("LVSCONSOLE_LOGGING_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://lvs.example.com", cfg.Backend.URL)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"port":      "server:\n  port: 70000\n",
		"backend":   "backend:\n  url: ftp://nowhere\n",
		"log level": "logging:\n  level: verbose\n",
		"format":    "logging:\n  format: xml\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestValidateRules(t *testing.T) {
	cfg := GetDefaults()
	require.NoError(t, validateConfig(cfg))

	cfg.Rules = append(cfg.Rules, "Antenna")
	assert.Error(t, validateConfig(cfg), "more rules than check slots")

	cfg.Rules = []string{"Port Check", "Port Check"}
	assert.Error(t, validateConfig(cfg))

	cfg.Rules = nil
	assert.Error(t, validateConfig(cfg))
}

func TestWatchRequiresLoadedFile(t *testing.T) {
	_, err := Load(writeConfig(t, "server:\n  port: 9091\n"))
	require.NoError(t, err)
	assert.NoError(t, Watch(func(*Config) {}, nil))
}
