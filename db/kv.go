package db

import (
	"context"
	"database/sql"
	"time"
)

// The kv table is the shared keyed store behind the bot's session state:
// presence flags (expiring), cursors and processed markers (durable). Expiry
// is enforced on read rather than by a background sweeper, so an expired row
// is indistinguishable from an absent one.

// GetKV returns the value for key. ok is false when the key is absent or its
// expiry has passed.
func GetKV(ctx context.Context, dbx *sql.DB, key string) (value string, ok bool, err error) {
	row := dbx.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE key=$1 AND (expires_at IS NULL OR expires_at > NOW())`, key)
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

// SetKV stores key=value. A ttl <= 0 stores the entry without expiry.
func SetKV(ctx context.Context, dbx *sql.DB, key, value string, ttl time.Duration) error {
	var expires any
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	_, err := dbx.ExecContext(ctx,
		`INSERT INTO kv (key, value, expires_at, updated_at) VALUES ($1,$2,$3,NOW())
		 ON CONFLICT(key) DO UPDATE SET value=EXCLUDED.value, expires_at=EXCLUDED.expires_at, updated_at=NOW()`,
		key, value, expires)
	return err
}

// DeleteKV removes key. Deleting an absent key is not an error.
func DeleteKV(ctx context.Context, dbx *sql.DB, key string) error {
	_, err := dbx.ExecContext(ctx, `DELETE FROM kv WHERE key=$1`, key)
	return err
}

// SweepExpiredKV deletes rows whose expiry has passed and returns the number
// removed. Reads already ignore expired rows; this just keeps the table small.
func SweepExpiredKV(ctx context.Context, dbx *sql.DB) (int64, error) {
	res, err := dbx.ExecContext(ctx, `DELETE FROM kv WHERE expires_at IS NOT NULL AND expires_at <= NOW()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// KVStore adapts the kv table to the bot.KV interface.
type KVStore struct{ DB *sql.DB }

func (s *KVStore) Get(ctx context.Context, key string) (string, bool, error) {
	return GetKV(ctx, s.DB, key)
}

func (s *KVStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return SetKV(ctx, s.DB, key, value, ttl)
}

func (s *KVStore) Delete(ctx context.Context, key string) error {
	return DeleteKV(ctx, s.DB, key)
}
