package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"PORT", "JWT_SECRET", "JWT_EXPIRES_IN", "CORS_ORIGIN", "DEBUG"} {
		t.Setenv(k, "")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultHTTPAddr, cfg.Server.Addr)
	assert.Equal(t, "gemini-2.5-flash", cfg.Models.Text.Default)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.SessionTTL())
	assert.Equal(t, time.Minute, cfg.Auth.TicketTTL())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
addr = ":9000"
cors_origins = ["https://app.example.com"]

[auth]
jwt_secret = "from-file"
jwt_expires_in = "2d"

[models.text]
default = "gemini-2.0-flash"
fallbacks = []
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "from-file", cfg.Auth.JWTSecret)
	assert.Equal(t, 48*time.Hour, cfg.Auth.SessionTTL())
	assert.Equal(t, "gemini-2.0-flash", cfg.Models.Text.Default)
	assert.Empty(t, cfg.Models.Text.Fallbacks)
	// Untouched sections keep their defaults.
	assert.Equal(t, "imagen-3.0-generate-002", cfg.Models.Image.Default)
}

func TestLoad_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server\naddr="), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"GEMINI_API_KEY": "key-1",
		"JWT_SECRET":     "env-secret",
		"DATABASE_URL":   "postgres://u:p@db:5432/app",
		"PORT":           "8081",
		"CORS_ORIGIN":    "https://a.example.com, https://b.example.com",
		"DEBUG":          "true",
	}
	cfg := defaults()
	require.NoError(t, cfg.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}))

	assert.Equal(t, "key-1", cfg.Gemini.APIKey)
	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, "postgres://u:p@db:5432/app", cfg.Postgres.DSN)
	assert.Equal(t, ":8081", cfg.Server.Addr)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.CORSOrigins)
	assert.True(t, cfg.Log.Debug)
	assert.NoError(t, cfg.Validate())
}

func TestApplyEnv_BadPort(t *testing.T) {
	cfg := defaults()
	err := cfg.applyEnv(func(k string) (string, bool) {
		if k == "PORT" {
			return "http", true
		}
		return "", false
	})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := defaults()
	cfg.Auth.JWTExpiresIn = "soon"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
	assert.Contains(t, err.Error(), "auth.jwt_expires_in")
}

func TestParseDuration(t *testing.T) {
	for raw, want := range map[string]time.Duration{
		"":    0,
		"7d":  7 * 24 * time.Hour,
		"90s": 90 * time.Second,
		"1h":  time.Hour,
	} {
		got, err := parseDuration(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
	_, err := parseDuration("xd")
	assert.Error(t, err)
}
