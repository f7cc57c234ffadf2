package db

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestGetMigrationsPath(t *testing.T) {
	// Running from the package directory, migrations/ resolves.
	path, err := getMigrationsPath()
	if err != nil {
		t.Fatalf("getMigrationsPath: %v", err)
	}
	if len(path) < len("file://") || path[:7] != "file://" {
		t.Errorf("path = %q, want file:// URL", path)
	}
}

func TestRunMigrationsFromPath(t *testing.T) {
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set; skipping postgres migration test")
	}
	abs, err := filepath.Abs("migrations")
	if err != nil {
		t.Fatal(err)
	}

	run := func() error {
		dbx, err := sql.Open("pgx", dsn)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		defer dbx.Close()
		return RunMigrationsFromPath(dbx, "file://"+abs)
	}
	if err := run(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// Versioned migrations are idempotent.
	if err := run(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}
