package db

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set; skipping postgres test")
	}
	dbx, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { dbx.Close() })
	if err := Migrate(context.Background(), dbx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return dbx
}

func TestMigrateIdempotent(t *testing.T) {
	dbx := testDB(t)
	// Re-running the full migration must be a no-op.
	if err := Migrate(context.Background(), dbx); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestOAuthTokenRoundtrip(t *testing.T) {
	dbx := testDB(t)
	ctx := context.Background()
	channelID := "UCtest-roundtrip"
	t.Cleanup(func() {
		_, _ = dbx.ExecContext(ctx, `DELETE FROM oauth_tokens WHERE channel_id=$1`, channelID)
	})

	expiry := time.Now().Add(time.Hour).Truncate(time.Second)
	if err := UpsertOAuthToken(ctx, dbx, channelID, "access-1", "refresh-1", expiry, "scope-a"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	access, refresh, gotExpiry, scope, err := GetOAuthToken(ctx, dbx, channelID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if access != "access-1" || refresh != "refresh-1" || scope != "scope-a" {
		t.Errorf("got (%q, %q, %q), want stored values", access, refresh, scope)
	}
	if !gotExpiry.Equal(expiry) {
		t.Errorf("expiry = %v, want %v", gotExpiry, expiry)
	}

	// Upsert replaces
	if err := UpsertOAuthToken(ctx, dbx, channelID, "access-2", "refresh-2", expiry, "scope-b"); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	access, refresh, _, scope, err = GetOAuthToken(ctx, dbx, channelID)
	if err != nil {
		t.Fatalf("get after upsert: %v", err)
	}
	if access != "access-2" || refresh != "refresh-2" || scope != "scope-b" {
		t.Errorf("got (%q, %q, %q) after upsert", access, refresh, scope)
	}
}

func TestGetOAuthTokenMissing(t *testing.T) {
	dbx := testDB(t)
	access, refresh, expiry, scope, err := GetOAuthToken(context.Background(), dbx, "UCnope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if access != "" || refresh != "" || scope != "" || !expiry.IsZero() {
		t.Errorf("missing channel returned non-zero values: (%q, %q, %v, %q)", access, refresh, expiry, scope)
	}
}

func TestListTokenChannels(t *testing.T) {
	dbx := testDB(t)
	ctx := context.Background()
	t.Cleanup(func() {
		_, _ = dbx.ExecContext(ctx, `DELETE FROM oauth_tokens WHERE channel_id LIKE 'UClist-%'`)
	})

	if err := UpsertOAuthToken(ctx, dbx, "UClist-1", "a", "r", time.Now().Add(time.Hour), ""); err != nil {
		t.Fatal(err)
	}
	if err := UpsertOAuthToken(ctx, dbx, "UClist-2", "a", "r", time.Now().Add(time.Hour), ""); err != nil {
		t.Fatal(err)
	}
	channels, err := ListTokenChannels(ctx, dbx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	seen := map[string]bool{}
	for _, c := range channels {
		seen[c] = true
	}
	if !seen["UClist-1"] || !seen["UClist-2"] {
		t.Errorf("channels = %v, missing test rows", channels)
	}
}
