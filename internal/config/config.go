// Package config loads process configuration with koanf: defaults, then an
// optional YAML file, then FORMWIZARD_* environment variables, then explicitly
// set command-line flags.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/goliatone/go-formwizard/internal/logging"
)

// EnvPrefix prefixes every environment override. FORMWIZARD_SERVER_ADDR maps
// to server.addr.
const EnvPrefix = "FORMWIZARD_"

// DefaultFile is looked up in the working directory when no file is given.
const DefaultFile = "formwizard.yaml"

// Config is the process configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Wizard   WizardConfig   `koanf:"wizard"`
	Log      logging.Config `koanf:"log"`
}

// ServerConfig configures the HTTP surface and the session registry.
type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	SessionSecret   string        `koanf:"session_secret"`
	CookieName      string        `koanf:"cookie_name"`
	SecureCookie    bool          `koanf:"secure_cookie"`
	SessionTTL      time.Duration `koanf:"session_ttl"`
	SweepInterval   time.Duration `koanf:"sweep_interval"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig selects the SQL collaborator.
type DatabaseConfig struct {
	Dialect string `koanf:"dialect"`
	DSN     string `koanf:"dsn"`
	Migrate bool   `koanf:"migrate"`
}

// WizardConfig locates the schema and UI documents. An empty ConfigDir uses
// the bundled sample.
type WizardConfig struct {
	ConfigDir string `koanf:"config_dir"`
	Watch     bool   `koanf:"watch"`
	Sanitize  bool   `koanf:"sanitize"`
}

// Defaults returns the built-in values.
func Defaults() map[string]any {
	return map[string]any{
		"server.addr":             ":8080",
		"server.session_secret":   "",
		"server.cookie_name":      "formwizard",
		"server.secure_cookie":    false,
		"server.session_ttl":      "30m",
		"server.sweep_interval":   "1m",
		"server.shutdown_timeout": "10s",
		"database.dialect":        "sqlite",
		"database.dsn":            "formwizard.db",
		"database.migrate":        true,
		"wizard.config_dir":       "",
		"wizard.watch":            false,
		"wizard.sanitize":         true,
		"log.level":               "info",
		"log.format":              "text",
	}
}

// flagKeys maps command-line flag names onto config keys.
var flagKeys = map[string]string{
	"addr":       "server.addr",
	"dialect":    "database.dialect",
	"dsn":        "database.dsn",
	"migrate":    "database.migrate",
	"config-dir": "wizard.config_dir",
	"watch":      "wizard.watch",
	"log-level":  "log.level",
	"log-format": "log.format",
}

// Loader wraps one koanf instance so tests can load in isolation.
type Loader struct {
	k        *koanf.Koanf
	fileUsed string
}

// NewLoader returns an empty loader.
func NewLoader() *Loader {
	return &Loader{k: koanf.New(".")}
}

// Load is NewLoader().Load.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	return NewLoader().Load(path, flags)
}

// FileUsed reports the config file read by the last Load, if any.
func (l *Loader) FileUsed() string {
	return l.fileUsed
}

// Load reads every layer and validates the result. Precedence from lowest to
// highest: defaults, file, environment, flags.
func (l *Loader) Load(path string, flags *pflag.FlagSet) (*Config, error) {
	l.k = koanf.New(".")
	l.fileUsed = ""

	if err := l.k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		if err := l.k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		l.fileUsed = path
	}

	if err := l.k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	if flags != nil {
		if err := l.k.Load(posflag.ProviderWithFlag(flags, ".", l.k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("config: load flags: %w", err)
		}
	}

	var cfg Config
	if err := l.k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey turns FORMWIZARD_SERVER_SESSION_TTL into server.session_ttl: the
// first underscore separates the section.
func envKey(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	section, rest, ok := strings.Cut(key, "_")
	if !ok || rest == "" {
		return ""
	}
	return section + "." + rest
}

// Validate checks the values the server cannot start without.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Server.Addr) == "" {
		problems = append(problems, "server.addr is empty")
	}
	if c.Server.SessionTTL <= 0 {
		problems = append(problems, "server.session_ttl must be positive")
	}
	if c.Server.SweepInterval <= 0 {
		problems = append(problems, "server.sweep_interval must be positive")
	}
	if s := c.Server.SessionSecret; s != "" && len(s) < 32 {
		problems = append(problems, "server.session_secret must be at least 32 bytes")
	}
	switch strings.ToLower(c.Database.Dialect) {
	case "sqlite", "sqlite3", "postgres", "postgresql", "pgx":
	default:
		problems = append(problems, fmt.Sprintf("database.dialect %q is not supported", c.Database.Dialect))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return fmt.Errorf("config: invalid: %s", strings.Join(problems, "; "))
	}
	return nil
}
