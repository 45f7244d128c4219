package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	platformerrors "receipt-server-go/internal/platform/errors"
)

const defaultConfigPath = ".config.yaml"

// Loader merges defaults, an optional yaml file and environment variables.
type Loader struct {
	useDotEnv bool
	path      string
	lookupEnv func(string) (string, bool)
}

// NewLoader creates a loader reading .env, .config.yaml and the process env.
func NewLoader() *Loader {
	return &Loader{
		useDotEnv: true,
		lookupEnv: os.LookupEnv,
	}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath pins the yaml file location.
func (l *Loader) WithPath(path string) *Loader {
	l.path = path
	return l
}

// WithEnv overrides the environment lookup (useful for tests).
func (l *Loader) WithEnv(lookup func(string) (string, bool)) *Loader {
	if lookup != nil {
		l.lookupEnv = lookup
	}
	return l
}

// Load returns the effective configuration.
func (l *Loader) Load() (*Config, error) {
	if l.useDotEnv {
		// A missing .env is normal outside local development.
		_ = godotenv.Load()
	}

	cfg := DefaultConfig()

	path := l.path
	if path == "" {
		if p, ok := l.lookupEnv("CONFIG_PATH"); ok && p != "" {
			path = p
		} else {
			path = defaultConfigPath
		}
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, platformerrors.Wrap(platformerrors.KindConfig, "config.load", "invalid yaml in "+path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && l.path == "":
	default:
		return nil, platformerrors.Wrap(platformerrors.KindConfig, "config.load", "cannot read "+path, err)
	}

	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := l.validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := l.lookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) error {
		v, ok := l.lookupEnv(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return platformerrors.Wrap(platformerrors.KindConfig, "config.env", key+" must be an integer", err)
		}
		*dst = n
		return nil
	}

	str("TOKEN_SECRET_KEY", &cfg.Auth.SecretKey)
	str("ALGORITHM", &cfg.Auth.Algorithm)
	str("ISSUER", &cfg.Auth.Issuer)
	str("ENV", &cfg.Server.Env)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("SESSION_STORE", &cfg.Auth.Store.Type)
	str("REDIS_ADDR", &cfg.Auth.Store.Redis.Addr)
	str("REDIS_PASSWORD", &cfg.Auth.Store.Redis.Password)
	str("DB_DRIVER", &cfg.Database.Driver)
	str("DB_DSN", &cfg.Database.DSN)

	var accessMinutes, refreshDays int
	for key, dst := range map[string]*int{
		"SERVER_PORT":                 &cfg.Server.Port,
		"REDIS_DB":                    &cfg.Auth.Store.Redis.DB,
		"ACCESS_TOKEN_EXPIRE_MINUTES": &accessMinutes,
		"REFRESH_TOKEN_EXPIRE_DAYS":   &refreshDays,
	} {
		if err := integer(key, dst); err != nil {
			return err
		}
	}
	if accessMinutes != 0 {
		cfg.Auth.AccessTTL = time.Duration(accessMinutes) * time.Minute
	}
	if refreshDays != 0 {
		cfg.Auth.RefreshTTL = time.Duration(refreshDays) * 24 * time.Hour
	}

	if _, ok := l.lookupEnv("DB_DSN"); !ok {
		if dsn := l.postgresDSN(); dsn != "" {
			cfg.Database.Driver = "postgres"
			cfg.Database.DSN = dsn
		}
	}
	return nil
}

func (l *Loader) postgresDSN() string {
	get := func(key string) string {
		v, _ := l.lookupEnv(key)
		return v
	}
	host, db := get("POSTGRES_HOST"), get("POSTGRES_DB")
	if host == "" || db == "" {
		return ""
	}
	return fmt.Sprintf("postgres://%s:%s@%s/%s", get("POSTGRES_USER"), get("POSTGRES_PASSWORD"), host, db)
}

func (l *Loader) validate(cfg *Config) error {
	invalid := func(msg string) error {
		return platformerrors.New(platformerrors.KindConfig, "config.validate", msg)
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return invalid(fmt.Sprintf("invalid server port %d", cfg.Server.Port))
	}
	if strings.TrimSpace(cfg.Auth.SecretKey) == "" {
		return invalid("auth secret key must not be empty")
	}
	switch strings.ToUpper(cfg.Auth.Algorithm) {
	case "HS256", "HS384", "HS512":
	default:
		return invalid(fmt.Sprintf("unsupported signing algorithm %q", cfg.Auth.Algorithm))
	}
	if cfg.Auth.Issuer == "" {
		return invalid("auth issuer must not be empty")
	}
	if cfg.Auth.AccessTTL <= 0 || cfg.Auth.RefreshTTL <= 0 {
		return invalid("token lifetimes must be positive")
	}
	if cfg.Auth.Store.TTL < 0 {
		return invalid("session store ttl must not be negative")
	}
	switch cfg.Auth.Store.Type {
	case "memory", "sqlite", "redis":
	default:
		return invalid(fmt.Sprintf("unsupported session store %q", cfg.Auth.Store.Type))
	}
	switch cfg.Database.Driver {
	case "sqlite", "postgres":
	default:
		return invalid(fmt.Sprintf("unsupported database driver %q", cfg.Database.Driver))
	}
	if cfg.Receipt.MinLineWidth <= 0 || cfg.Receipt.MinLineWidth > cfg.Receipt.MaxLineWidth {
		return invalid("receipt line width bounds are inconsistent")
	}
	return nil
}
