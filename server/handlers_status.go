package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// HandleStatus returns a lightweight status summary: task queue state and
// which sessions currently have a live presence flag.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	resp := map[string]any{}

	// Task counts by status
	var queued, running, done int
	_ = h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bot_tasks WHERE status='queued'`).Scan(&queued)
	_ = h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bot_tasks WHERE status='running'`).Scan(&running)
	_ = h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bot_tasks WHERE status='done'`).Scan(&done)
	resp["tasks_queued"] = queued
	resp["tasks_running"] = running
	resp["tasks_done"] = done

	// Sessions with a live presence flag
	var sessions []string
	rows, err := h.db.QueryContext(ctx,
		`SELECT key FROM kv WHERE key LIKE 'presence:%' AND (expires_at IS NULL OR expires_at > NOW())`)
	if err == nil {
		defer func() {
			if err := rows.Close(); err != nil {
				slog.Warn("failed to close rows", slog.Any("err", err))
			}
		}()
		for rows.Next() {
			var key string
			if err := rows.Scan(&key); err == nil {
				sessions = append(sessions, strings.TrimPrefix(key, "presence:"))
			}
		}
	}
	resp["active_sessions"] = sessions

	// Authorized channels
	var channels int
	_ = h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM oauth_tokens`).Scan(&channels)
	resp["authorized_channels"] = channels

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
