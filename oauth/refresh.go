// Package oauth provides generic token refresh scheduling for the per-channel
// credentials persisted in the oauth_tokens table. It performs jittered checks
// and refreshes tokens whose expiry falls within a configured window, so a
// bot task never starts on a credential about to lapse.
package oauth

import (
	"context"
	"database/sql"
	"log/slog"
	"math/rand"
	"time"

	dbpkg "github.com/onnwee/livechat-tender/backend/db"
)

// RefreshFunc performs the provider-specific refresh and returns
// (access, refresh, expiry, scope).
type RefreshFunc func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error)

// StartRefresher launches a goroutine that periodically sweeps stored channel
// tokens and refreshes any whose remaining lifetime is <= window.
// interval: how often to wake up and check.
func StartRefresher(ctx context.Context, db *sql.DB, interval, window time.Duration, fn RefreshFunc) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	// Randomize initial delay to spread load across instances.
	//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
	initialJitter := time.Duration(rand.Int63n(int64(interval / 2)))
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(initialJitter):
		}
		for {
			// Per-iteration jitter (±20% of interval) for scheduling diversity.
			jitterRange := int64(interval / 5)
			//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
			jitter := time.Duration(rand.Int63n(jitterRange*2) - jitterRange)
			nextSleep := interval + jitter
			if nextSleep < interval/2 {
				nextSleep = interval / 2
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(nextSleep):
			}
			sweep(ctx, db, window, fn)
		}
	}()
}

// sweep refreshes every stored token within the expiry window.
func sweep(ctx context.Context, db *sql.DB, window time.Duration, fn RefreshFunc) {
	channels, err := dbpkg.ListTokenChannels(ctx, db)
	if err != nil {
		slog.Warn("token sweep list failed", slog.Any("err", err))
		return
	}
	for _, channelID := range channels {
		_, rt, exp, scope, err := dbpkg.GetOAuthToken(ctx, db, channelID)
		if err != nil || rt == "" {
			continue
		}
		if time.Until(exp) > window {
			continue
		}
		// Small pre-refresh jitter to avoid stampedes when many instances see
		// the same expiry.
		//nolint:gosec // G404: math/rand is sufficient for jitter, not used for security
		pre := time.Duration(rand.Int63n(int64(5 * time.Second)))
		select {
		case <-ctx.Done():
			return
		case <-time.After(pre):
		}
		ctx2, cancel := context.WithTimeout(ctx, 15*time.Second)
		newAT, newRT, newExp, newScope, err := fn(ctx2, rt)
		cancel()
		if err != nil {
			slog.Warn("token refresh failed", slog.String("channel_id", channelID), slog.Any("err", err))
			continue
		}
		if newRT == "" {
			newRT = rt
		}
		if newScope == "" {
			newScope = scope
		}
		if err := dbpkg.UpsertOAuthToken(ctx, db, channelID, newAT, newRT, newExp, newScope); err != nil {
			slog.Warn("token persist failed", slog.String("channel_id", channelID), slog.Any("err", err))
			continue
		}
		slog.Info("token refreshed", slog.String("channel_id", channelID))
	}
}
