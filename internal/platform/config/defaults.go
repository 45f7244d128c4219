package config

import "time"

// DefaultConfig returns the configuration used when no file or environment
// override is present.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:          "0.0.0.0",
			Port:        8000,
			Env:         "dev",
			CORSOrigins: []string{"*"},
		},
		Log: LogConfig{
			Level: "INFO",
			Dir:   "data/logs",
			File:  "server.log",
		},
		Auth: AuthConfig{
			SecretKey:  "your-token-secret-key",
			Algorithm:  "HS256",
			Issuer:     "issuer",
			AccessTTL:  5 * time.Minute,
			RefreshTTL: 5 * 24 * time.Hour,
			BcryptCost: 12,
			CookieName: "refresh_token",
			CookiePath: "/",
			Store: StoreConfig{
				Type: "redis",
				Redis: AuthRedisStore{
					Addr:   "redis:6379",
					Prefix: "auth:session:",
				},
				Memory: AuthMemoryStore{
					Cleanup: 5 * time.Minute,
				},
			},
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "data/receipts.db",
		},
		Receipt: ReceiptConfig{
			Merchant:     "Receipt Server",
			LineWidth:    32,
			MinLineWidth: 20,
			MaxLineWidth: 100,
		},
		RateLimit: RateLimitConfig{
			Enabled:         true,
			PerMinute:       30,
			Burst:           10,
			CleanupInterval: 5 * time.Minute,
		},
		Observability: ObservabilityConfig{
			Enabled: true,
		},
	}
}
