package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath        = "config.toml"
	DefaultHTTPAddr          = ":3001"
	DefaultFrontendURL       = "http://localhost:3000"
	DefaultJWTExpiresIn      = "168h"
	DefaultRealtimeTicketTTL = "60s"
	DefaultBodyLimit         = "12M"
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Auth     AuthConfig     `toml:"auth"`
	Google   GoogleConfig   `toml:"google"`
	Postgres PostgresConfig `toml:"postgres"`
	Gemini   GeminiConfig   `toml:"gemini"`
	Cloud    CloudConfig    `toml:"cloud"`
	Models   ModelsConfig   `toml:"models"`
	History  HistoryConfig  `toml:"history"`
}

type LogConfig struct {
	Level string `toml:"level"`
	Debug bool   `toml:"debug"`
}

type ServerConfig struct {
	Addr          string   `toml:"addr"`
	CORSOrigins   []string `toml:"cors_origins"`
	FrontendURL   string   `toml:"frontend_url"`
	BodyLimit     string   `toml:"body_limit"`
	RateLimit     float64  `toml:"rate_limit"`
	SecureCookies bool     `toml:"secure_cookies"`
	// MaxRealtimeSessions caps concurrent realtime sessions per user.
	MaxRealtimeSessions  int `toml:"max_realtime_sessions"`
	MaxConcurrentStreams int `toml:"max_concurrent_streams"`
}

type AuthConfig struct {
	JWTSecret         string `toml:"jwt_secret"`
	JWTExpiresIn      string `toml:"jwt_expires_in"`
	RealtimeTicketTTL string `toml:"realtime_ticket_ttl"`
	BcryptCost        int    `toml:"bcrypt_cost"`
}

type GoogleConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURL  string `toml:"redirect_url"`
}

// PostgresConfig is optional; with no DSN the server keeps state in memory.
type PostgresConfig struct {
	DSN             string `toml:"dsn"`
	MaxConns        int32  `toml:"max_conns"`
	ConnMaxLifetime string `toml:"conn_max_lifetime"`
	AutoMigrate     bool   `toml:"auto_migrate"`
}

type GeminiConfig struct {
	APIKey    string `toml:"api_key"`
	BaseURL   string `toml:"base_url"`
	LiveModel string `toml:"live_model"`
	LiveURL   string `toml:"live_url"`
}

// CloudConfig authenticates the Cloud Text-to-Speech and Speech-to-Text clients.
type CloudConfig struct {
	CredentialsFile string `toml:"credentials_file"`
	APIKey          string `toml:"api_key"`
	LanguageCode    string `toml:"language_code"`
}

type ChainConfig struct {
	Default   string   `toml:"default"`
	Fallbacks []string `toml:"fallbacks"`
}

type ModelsConfig struct {
	Text          ChainConfig `toml:"text"`
	Vision        ChainConfig `toml:"vision"`
	Image         ChainConfig `toml:"image"`
	Speech        string      `toml:"speech"`
	Transcription string      `toml:"transcription"`
}

type HistoryConfig struct {
	Buffer int `toml:"buffer"`
}

func defaults() Config {
	return Config{
		Log: LogConfig{Level: "info"},
		Server: ServerConfig{
			Addr:                 DefaultHTTPAddr,
			CORSOrigins:          []string{DefaultFrontendURL},
			FrontendURL:          DefaultFrontendURL,
			BodyLimit:            DefaultBodyLimit,
			RateLimit:            20,
			MaxRealtimeSessions:  2,
			MaxConcurrentStreams: 10,
		},
		Auth: AuthConfig{
			JWTExpiresIn:      DefaultJWTExpiresIn,
			RealtimeTicketTTL: DefaultRealtimeTicketTTL,
			BcryptCost:        10,
		},
		Postgres: PostgresConfig{MaxConns: 10, ConnMaxLifetime: "30m", AutoMigrate: true},
		Gemini:   GeminiConfig{LiveModel: "gemini-2.0-flash-live-001"},
		Cloud:    CloudConfig{LanguageCode: "en-US"},
		Models: ModelsConfig{
			Text:          ChainConfig{Default: "gemini-2.5-flash", Fallbacks: []string{"gemini-2.0-flash"}},
			Vision:        ChainConfig{Default: "gemini-2.5-flash", Fallbacks: []string{"gemini-2.0-flash", "gemini-2.0-flash-lite"}},
			Image:         ChainConfig{Default: "imagen-3.0-generate-002", Fallbacks: []string{"gemini-2.0-flash-preview-image-generation"}},
			Speech:        "en-US-Neural2",
			Transcription: "latest_long",
		},
		History: HistoryConfig{Buffer: 256},
	}
}

// Load reads the TOML file at path over the defaults, then applies environment
// overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path == "" {
		path = DefaultConfigPath
	}
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("decoding %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, err
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("GEMINI_API_KEY", &c.Gemini.APIKey)
	str("JWT_SECRET", &c.Auth.JWTSecret)
	str("JWT_EXPIRES_IN", &c.Auth.JWTExpiresIn)
	str("DATABASE_URL", &c.Postgres.DSN)
	str("GOOGLE_OAUTH_CLIENT_ID", &c.Google.ClientID)
	str("GOOGLE_OAUTH_CLIENT_SECRET", &c.Google.ClientSecret)
	str("GOOGLE_OAUTH_REDIRECT_URI", &c.Google.RedirectURL)
	str("GOOGLE_APPLICATION_CREDENTIALS", &c.Cloud.CredentialsFile)
	str("FRONTEND_URL", &c.Server.FrontendURL)
	str("LOG_LEVEL", &c.Log.Level)

	if v, ok := lookup("PORT"); ok && v != "" {
		if _, err := strconv.Atoi(v); err != nil {
			return fmt.Errorf("invalid PORT %q", v)
		}
		c.Server.Addr = ":" + v
	}
	if v, ok := lookup("CORS_ORIGIN"); ok && v != "" {
		c.Server.CORSOrigins = splitList(v)
	}
	if v, ok := lookup("DEBUG"); ok && v != "" {
		c.Log.Debug = v == "true"
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks what the server cannot start without.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		errs = append(errs, errors.New("auth.jwt_secret (JWT_SECRET) is required"))
	}
	if strings.TrimSpace(c.Gemini.APIKey) == "" {
		errs = append(errs, errors.New("gemini.api_key (GEMINI_API_KEY) is required"))
	}
	for name, raw := range map[string]string{
		"auth.jwt_expires_in":        c.Auth.JWTExpiresIn,
		"auth.realtime_ticket_ttl":   c.Auth.RealtimeTicketTTL,
		"postgres.conn_max_lifetime": c.Postgres.ConnMaxLifetime,
	} {
		if _, err := parseDuration(raw); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (c AuthConfig) SessionTTL() time.Duration {
	d, _ := parseDuration(c.JWTExpiresIn)
	return d
}

func (c AuthConfig) TicketTTL() time.Duration {
	d, _ := parseDuration(c.RealtimeTicketTTL)
	return d
}

func (c PostgresConfig) Lifetime() time.Duration {
	d, _ := parseDuration(c.ConnMaxLifetime)
	return d
}

// parseDuration accepts Go durations plus a day suffix ("7d"). Empty is zero.
func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if days, ok := strings.CutSuffix(raw, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid duration %q", raw)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	return d, nil
}
