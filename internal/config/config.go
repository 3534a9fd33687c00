// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 listkeep Contributors

// Package config loads listkeep settings. Sources are applied in order of
// increasing precedence: built-in defaults, a YAML file, LISTKEEP_*
// environment variables, then command-line flags the user actually set.
package config

import (
	"errors"
	"io/fs"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/listkeep/listkeep/internal/logging"
)

// EnvPrefix is stripped from environment variables before they are mapped
// to keys; LISTKEEP_SESSION_TTL becomes session.ttl.
const EnvPrefix = "LISTKEEP_"

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// CodeInvalid is attached to every load or validation failure.
const CodeInvalid = "CONFIG_INVALID"

// Config is the complete runtime configuration.
type Config struct {
	HTTP     HTTPConfig     `koanf:"http"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Storage  string         `koanf:"storage"`
	Database DatabaseConfig `koanf:"database"`
	Session  SessionConfig  `koanf:"session"`
	Hash     HashConfig     `koanf:"hash"`
	Log      LogConfig      `koanf:"log"`
}

// HTTPConfig configures the application listener.
type HTTPConfig struct {
	Addr            string        `koanf:"addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown"`
}

// MetricsConfig configures the observability listener. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// DatabaseConfig holds the Postgres connection string. AutoMigrate applies
// pending migrations when serve starts.
type DatabaseConfig struct {
	URL         string `koanf:"url"`
	AutoMigrate bool   `koanf:"migrate"`
}

// SessionConfig controls session lifetime and the cookie carrying it.
type SessionConfig struct {
	TTL    time.Duration `koanf:"ttl"`
	Sweep  time.Duration `koanf:"sweep"`
	Cookie string        `koanf:"cookie"`
	Secure bool          `koanf:"secure"`
}

// HashConfig bounds concurrent password hashing.
type HashConfig struct {
	Concurrency int `koanf:"concurrency"`
}

// LogConfig selects the log handler and minimum level.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// Defaults returns the built-in configuration as a flat key map.
func Defaults() map[string]any {
	return map[string]any{
		"http.addr":        ":3000",
		"http.shutdown":    10 * time.Second,
		"metrics.addr":     "127.0.0.1:9100",
		"storage":          StoragePostgres,
		"database.url":     "",
		"database.migrate": true,
		"session.ttl":      24 * time.Hour,
		"session.sweep":    10 * time.Minute,
		"session.cookie":   "listkeep_session",
		"session.secure":   false,
		"hash.concurrency": runtime.NumCPU(),
		"log.format":       logging.FormatJSON,
		"log.level":        "info",
	}
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"http-addr":        "http.addr",
	"metrics-addr":     "metrics.addr",
	"storage":          "storage",
	"database-url":     "database.url",
	"auto-migrate":     "database.migrate",
	"session-ttl":      "session.ttl",
	"session-sweep":    "session.sweep",
	"cookie-name":      "session.cookie",
	"cookie-secure":    "session.secure",
	"hash-concurrency": "hash.concurrency",
	"log-format":       "log.format",
	"log-level":        "log.level",
}

// RegisterFlags adds the serve flags to fs with the built-in defaults.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Defaults()
	fs.String("http-addr", d["http.addr"].(string), "application HTTP listen address")
	fs.String("metrics-addr", d["metrics.addr"].(string), "metrics/health HTTP address (empty = disabled)")
	fs.String("storage", d["storage"].(string), "storage backend (postgres or memory)")
	fs.String("database-url", "", "Postgres connection URL (default: $DATABASE_URL)")
	fs.Bool("auto-migrate", true, "apply pending migrations on startup")
	fs.Duration("session-ttl", d["session.ttl"].(time.Duration), "absolute session lifetime")
	fs.Duration("session-sweep", d["session.sweep"].(time.Duration), "expired session sweep interval (0 = disabled)")
	fs.String("cookie-name", d["session.cookie"].(string), "session cookie name")
	fs.Bool("cookie-secure", false, "mark the session cookie Secure")
	fs.Int("hash-concurrency", d["hash.concurrency"].(int), "maximum concurrent password hash operations")
	fs.String("log-format", d["log.format"].(string), "log format (json or text)")
	fs.String("log-level", d["log.level"].(string), "log level (debug, info, warn, error)")
}

// LoadDotenv loads each existing file into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotenv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return oops.Code(CodeInvalid).With("path", p).Wrap(err)
		}
		if err := godotenv.Load(p); err != nil {
			return oops.Code(CodeInvalid).With("path", p).Wrap(err)
		}
	}
	return nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".")
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// empty), the environment and flags (skipped when nil). DATABASE_URL is used
// when no source sets database.url. The result is not validated.
func Load(flags *pflag.FlagSet, path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, oops.Code(CodeInvalid).Wrap(err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code(CodeInvalid).With("path", path).Wrap(err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code(CodeInvalid).Wrap(err)
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code(CodeInvalid).Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code(CodeInvalid).Wrap(err)
	}

	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv("DATABASE_URL")
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	invalid := func(key string, value any, msg string) error {
		return oops.Code(CodeInvalid).With("key", key).With("value", value).Errorf("%s", msg)
	}

	if c.HTTP.Addr == "" {
		return invalid("http.addr", c.HTTP.Addr, "http address is required")
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		return invalid("http.shutdown", c.HTTP.ShutdownTimeout, "shutdown timeout must be positive")
	}
	switch c.Storage {
	case StorageMemory:
	case StoragePostgres:
		if c.Database.URL == "" {
			return invalid("database.url", "", "database url is required for postgres storage")
		}
	default:
		return invalid("storage", c.Storage, "storage must be postgres or memory")
	}
	if c.Session.TTL <= 0 {
		return invalid("session.ttl", c.Session.TTL, "session ttl must be positive")
	}
	if c.Session.Sweep < 0 {
		return invalid("session.sweep", c.Session.Sweep, "session sweep interval must not be negative")
	}
	if c.Session.Cookie == "" {
		return invalid("session.cookie", c.Session.Cookie, "session cookie name is required")
	}
	if c.Hash.Concurrency < 1 {
		return invalid("hash.concurrency", c.Hash.Concurrency, "hash concurrency must be at least 1")
	}
	if logging.ValidateFormat(c.Log.Format) != nil {
		return invalid("log.format", c.Log.Format, "log format must be json or text")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", c.Log.Level, "log level must be debug, info, warn or error")
	}
	return nil
}
