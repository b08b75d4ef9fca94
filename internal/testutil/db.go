package testutil

import (
	"database/sql"
	"os"
	"testing"

	"github.com/xxxsen/otpauth/internal/config"
	"github.com/xxxsen/otpauth/internal/db"
)

// OpenTestDB connects to the Postgres named by TEST_DB_HOST and truncates the
// tables. Tests calling it are skipped when the variable is unset.
func OpenTestDB(t *testing.T) *sql.DB {
	t.Helper()
	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		t.Skip("TEST_DB_HOST not set, skipping postgres test")
	}
	conn, err := db.Open(config.DatabaseConfig{
		Host:     host,
		Port:     5432,
		User:     envOr("TEST_DB_USER", "otpauth"),
		Password: envOr("TEST_DB_PASSWORD", "otpauth_pass"),
		DBName:   envOr("TEST_DB_NAME", "otpauth_test"),
		SSLMode:  "disable",
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	if _, err := conn.Exec(`TRUNCATE otps, users`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
