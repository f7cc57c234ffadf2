package bot

import (
	"context"
	"log/slog"
	"time"
)

// DefaultPresenceTTL bounds how long a presence flag survives without a
// refresh. The loop refreshes it every page, so it must comfortably exceed
// the feed's polling interval.
const DefaultPresenceTTL = 200 * time.Second

// KV is the narrow key/value contract the bot's session state lives behind.
// A ttl <= 0 means the entry does not expire.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

func presenceKey(sessionID string) string  { return "presence:" + sessionID }
func cursorKey(sessionID string) string    { return "cursor:" + sessionID }
func processedKey(messageID string) string { return "processed:" + messageID }

// Dedup tracks which messages have been acted on and whether an execution is
// currently polling a session. Reads are best-effort: a store failure is
// logged and treated as "never seen", trading a possible duplicate action for
// availability. Writes are best-effort for the same reason.
type Dedup struct {
	KV KV
}

// Present reports whether a live execution's presence flag is set for the session.
func (d *Dedup) Present(ctx context.Context, sessionID string) bool {
	_, ok, err := d.KV.Get(ctx, presenceKey(sessionID))
	if err != nil {
		slog.Warn("presence read failed; assuming absent", slog.String("session_id", sessionID), slog.Any("err", err))
		return false
	}
	return ok
}

// MarkPresent sets or refreshes the presence flag with the given ttl.
func (d *Dedup) MarkPresent(ctx context.Context, sessionID string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultPresenceTTL
	}
	if err := d.KV.Set(ctx, presenceKey(sessionID), "1", ttl); err != nil {
		slog.Warn("presence write failed", slog.String("session_id", sessionID), slog.Any("err", err))
	}
}

// ClearPresence removes the presence flag for the session.
func (d *Dedup) ClearPresence(ctx context.Context, sessionID string) error {
	return d.KV.Delete(ctx, presenceKey(sessionID))
}

// Seen reports whether a message id has already been processed.
func (d *Dedup) Seen(ctx context.Context, messageID string) bool {
	_, ok, err := d.KV.Get(ctx, processedKey(messageID))
	if err != nil {
		slog.Warn("processed read failed; assuming unseen", slog.String("message_id", messageID), slog.Any("err", err))
		return false
	}
	return ok
}

// MarkProcessed durably flags a message id before any action is taken on it.
// The marker carries no expiry: it must outlive the upstream redelivery window.
func (d *Dedup) MarkProcessed(ctx context.Context, messageID string) {
	if err := d.KV.Set(ctx, processedKey(messageID), "1", 0); err != nil {
		slog.Warn("processed write failed", slog.String("message_id", messageID), slog.Any("err", err))
	}
}

// Cursors persists the last-seen pagination cursor per session so an
// interrupted execution can resume where the previous one stopped.
type Cursors struct {
	KV KV
}

// Load returns the stored cursor for the session. ok is false when no cursor
// exists, which tells the feed to start from the current live position.
func (c *Cursors) Load(ctx context.Context, sessionID string) (cursor string, ok bool) {
	v, ok, err := c.KV.Get(ctx, cursorKey(sessionID))
	if err != nil {
		slog.Warn("cursor read failed; starting fresh", slog.String("session_id", sessionID), slog.Any("err", err))
		return "", false
	}
	return v, ok
}

// Save stores the cursor for the session.
func (c *Cursors) Save(ctx context.Context, sessionID, cursor string) {
	if err := c.KV.Set(ctx, cursorKey(sessionID), cursor, 0); err != nil {
		slog.Warn("cursor write failed", slog.String("session_id", sessionID), slog.Any("err", err))
	}
}

// Clear removes the stored cursor for the session.
func (c *Cursors) Clear(ctx context.Context, sessionID string) error {
	return c.KV.Delete(ctx, cursorKey(sessionID))
}
