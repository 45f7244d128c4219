package config

import (
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Log           LogConfig           `yaml:"log"`
	Auth          AuthConfig          `yaml:"auth"`
	Database      DatabaseConfig      `yaml:"database"`
	Receipt       ReceiptConfig       `yaml:"receipt"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ServerConfig struct {
	IP          string   `yaml:"ip"`
	Port        int      `yaml:"port"`
	Env         string   `yaml:"env"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// IsProduction reports whether cookies must carry the Secure attribute.
func (s ServerConfig) IsProduction() bool {
	return strings.EqualFold(s.Env, "prod") || strings.EqualFold(s.Env, "production")
}

type LogConfig struct {
	Level string `yaml:"log_level"`
	Dir   string `yaml:"log_dir"`
	File  string `yaml:"log_file"`
}

type AuthConfig struct {
	SecretKey  string        `yaml:"secret_key"`
	Algorithm  string        `yaml:"algorithm"`
	Issuer     string        `yaml:"issuer"`
	AccessTTL  time.Duration `yaml:"access_ttl"`
	RefreshTTL time.Duration `yaml:"refresh_ttl"`
	BcryptCost int           `yaml:"bcrypt_cost"`
	CookieName string        `yaml:"cookie_name"`
	CookiePath string        `yaml:"cookie_path"`
	Store      StoreConfig   `yaml:"store"`
}

type StoreConfig struct {
	Type   string          `yaml:"type"`
	TTL    time.Duration   `yaml:"ttl"`
	Redis  AuthRedisStore  `yaml:"redis,omitempty"`
	Memory AuthMemoryStore `yaml:"memory,omitempty"`
}

type AuthRedisStore struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

type AuthMemoryStore struct {
	Cleanup time.Duration `yaml:"cleanup"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type ReceiptConfig struct {
	Merchant     string `yaml:"merchant"`
	LineWidth    int    `yaml:"line_width"`
	MinLineWidth int    `yaml:"min_line_width"`
	MaxLineWidth int    `yaml:"max_line_width"`
}

type RateLimitConfig struct {
	Enabled         bool          `yaml:"enabled"`
	PerMinute       float64       `yaml:"per_minute"`
	Burst           int           `yaml:"burst"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

type ObservabilityConfig struct {
	Enabled bool `yaml:"enabled"`
}
