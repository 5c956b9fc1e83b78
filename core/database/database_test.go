package database

import (
	"path/filepath"
	"strings"
	"testing"

	coreconfig "github.com/m3rciful/weatherbot/core/config"
)

func TestPostgresURLEscapesCredentials(t *testing.T) {
	got := PostgresURL(coreconfig.PostgresConfig{
		Host: "db", Port: "5432", User: "bot", Password: "p@ss/word", Name: "weather", SSLMode: "disable",
	})
	if !strings.HasPrefix(got, "postgres://bot:p%40ss%2Fword@db:5432/weather") {
		t.Fatalf("unexpected url %s", got)
	}
	if !strings.HasSuffix(got, "?sslmode=disable") {
		t.Fatalf("missing sslmode in %s", got)
	}
}

func TestSQLiteMigrationsCreateSessionTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	if err := RunSQLiteMigrations(path); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// second run must be a no-op
	if err := RunSQLiteMigrations(path); err != nil {
		t.Fatalf("migrate again: %v", err)
	}

	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	var count int
	if err := db.Get(&count, `SELECT COUNT(*) FROM user_sessions`); err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != 0 {
		t.Fatalf("count = %d, want 0", count)
	}
}
