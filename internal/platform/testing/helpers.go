package testing

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"receipt-server-go/internal/platform/config"
	"receipt-server-go/internal/platform/logging"
)

var dbSeq atomic.Int64

// SetupTestConfig returns a configuration that keeps every backend in
// process: in-memory sessions, a private shared-cache sqlite database and
// logs under a temporary directory.
func SetupTestConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Server.IP = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.Env = "test"
	cfg.Log.Level = "DEBUG"
	cfg.Log.Dir = t.TempDir()
	cfg.Log.File = "test.log"
	cfg.Auth.SecretKey = "test-secret-key"
	cfg.Auth.Issuer = "receipts-test"
	cfg.Auth.BcryptCost = 4
	cfg.Auth.Store.Type = "memory"
	cfg.Database.Driver = "sqlite"
	cfg.Database.DSN = fmt.Sprintf("file:platform-test-%d-%d?mode=memory&cache=shared", time.Now().UnixNano(), dbSeq.Add(1))
	cfg.RateLimit.Enabled = false
	cfg.Observability.Enabled = false

	return cfg
}

// SetupTestLogger builds a file-only logger that is closed with the test.
func SetupTestLogger(t *testing.T) *logging.Logger {
	t.Helper()

	cfg := SetupTestConfig(t)
	console := false
	logger, err := logging.New(logging.Config{
		Level:    cfg.Log.Level,
		Dir:      cfg.Log.Dir,
		Filename: cfg.Log.File,
		Console:  &console,
	})
	if err != nil {
		t.Fatalf("failed to create test logger: %v", err)
	}
	t.Cleanup(func() { _ = logger.Close() })

	return logger
}

func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error but got nil")
	}
}

func AssertEqual(t *testing.T, expected, actual interface{}) {
	t.Helper()
	if expected != actual {
		t.Fatalf("expected %v, got %v", expected, actual)
	}
}
