// Package server exposes the HTTP API: the join trigger endpoint, the YouTube
// OAuth flow, health, status, and metrics. It includes permissive CORS for
// development and injects correlation IDs into request contexts for
// consistent logging.
package server

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/onnwee/livechat-tender/backend/bot"
	"github.com/onnwee/livechat-tender/backend/db"
	"github.com/onnwee/livechat-tender/backend/tasks"
	"github.com/onnwee/livechat-tender/backend/youtubeapi"
)

const (
	// Maximum number of OAuth states to keep in memory
	maxOAuthStates = 10000
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	db         *sql.DB
	ctx        context.Context
	youtube    *youtubeapi.Service
	queue      *tasks.Queue
	presence   *bot.Dedup
	stateStore map[string]time.Time
	stateMu    sync.RWMutex
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(ctx context.Context, database *sql.DB, yts *youtubeapi.Service, queue *tasks.Queue) *Handlers {
	return &Handlers{
		db:         database,
		ctx:        ctx,
		youtube:    yts,
		queue:      queue,
		presence:   &bot.Dedup{KV: &db.KVStore{DB: database}},
		stateStore: make(map[string]time.Time),
	}
}

// cleanExpiredStates removes expired OAuth states from the store.
// This should be called with stateMu locked.
func (h *Handlers) cleanExpiredStates() {
	now := time.Now()
	for state, expiry := range h.stateStore {
		if now.After(expiry) {
			delete(h.stateStore, state)
		}
	}
}

// addOAuthState adds a new OAuth state to the store with cleanup if needed.
func (h *Handlers) addOAuthState(state string, expiry time.Time) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	// Clean expired states periodically to prevent unbounded growth
	if len(h.stateStore)%100 == 0 {
		h.cleanExpiredStates()
	}

	// Refusing new states beyond the cap fails the OAuth flow, which beats a
	// memory exhaustion attack.
	if len(h.stateStore) >= maxOAuthStates {
		return
	}

	h.stateStore[state] = expiry
}

// takeOAuthState validates and consumes a state, returning false when the
// state is unknown or expired.
func (h *Handlers) takeOAuthState(state string) bool {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	exp, ok := h.stateStore[state]
	if !ok || time.Now().After(exp) {
		return false
	}
	delete(h.stateStore, state)
	return true
}
