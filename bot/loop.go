package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/onnwee/livechat-tender/backend/telemetry"
)

// joinGreeting is sent once per session, the first time an execution finds no
// presence flag set.
const joinGreeting = "Hello, I've joined the chat!"

// cleanupTimeout bounds the detached teardown/requeue work performed after the
// execution's own context has been cut.
const cleanupTimeout = 10 * time.Second

// Page is one fetched slice of the message feed. PollInterval is the feed's
// self-reported backoff before the next fetch, not a fixed constant.
type Page struct {
	Messages     []Message
	NextCursor   string
	PollInterval time.Duration
}

// Feed abstracts the upstream chat API. FetchPage returns only messages newer
// than the given cursor; an empty cursor means "start from the live position".
type Feed interface {
	FetchPage(ctx context.Context, sessionID, cursor string) (Page, error)
	Send(ctx context.Context, sessionID, text string) error
}

// Scheduler decides what happens to a session after this execution: either a
// continuation task is enqueued (interrupted mid-poll) or the session's keyed
// state is torn down (clean exit).
type Scheduler interface {
	ScheduleContinuation(ctx context.Context, channelID, sessionID string) error
	Cleanup(ctx context.Context, sessionID string) error
}

// Runner drives one polling execution for a single chat session. A Runner is
// bound to one channel's feed credentials; sessions of different channels get
// separate Runners. It is not safe for concurrent use.
type Runner struct {
	Feed      Feed
	Dedup     *Dedup
	Cursors   *Cursors
	Scheduler Scheduler

	// PresenceTTL overrides DefaultPresenceTTL when > 0.
	PresenceTTL time.Duration
}

// Run polls the session's feed until told to leave, until the chat ends, or
// until ctx is cut by the host. Interruption is an expected outcome, not an
// error: the session is re-enqueued and Run returns nil. Only an unusable feed
// yields an error, which the caller's retry policy owns.
//
// The recovery invariant: the cursor for a page is persisted only after every
// message on that page has its processed marker set, so a resumed execution
// may re-observe processed messages (a no-op under dedup) but never skips
// unprocessed ones.
func (r *Runner) Run(ctx context.Context, channelID, sessionID string) error {
	log := slog.Default().With(slog.String("session_id", sessionID), slog.String("component", "bot"))
	telemetry.AddActiveSessions(1)
	defer telemetry.AddActiveSessions(-1)

	if r.Dedup.Present(ctx, sessionID) {
		// Another execution greeted this chat already (possibly one we are
		// resuming for). Double-polling is tolerated; double-greeting is not.
		log.Debug("presence flag set; skipping greeting")
	} else if err := r.Feed.Send(ctx, sessionID, joinGreeting); err != nil {
		log.Warn("greeting send failed", slog.Any("err", err))
		telemetry.IncSendFailures()
	} else {
		telemetry.IncGreetings()
	}

	cursor, resumed := r.Cursors.Load(ctx, sessionID)
	if resumed {
		log.Info("resuming from stored cursor")
	}

	remain := true
	for remain {
		if ctx.Err() != nil {
			return r.requeue(ctx, log, channelID, sessionID)
		}
		r.Dedup.MarkPresent(ctx, sessionID, r.PresenceTTL)

		start := time.Now()
		page, err := r.Feed.FetchPage(ctx, sessionID, cursor)
		if err != nil {
			if ctx.Err() != nil {
				// The host cut the fetch short; this is interruption, not a feed fault.
				return r.requeue(ctx, log, channelID, sessionID)
			}
			return fmt.Errorf("fetch page: %w", err)
		}
		telemetry.ObservePageFetch(time.Since(start))

		for _, m := range page.Messages {
			if r.Dedup.Seen(ctx, m.ID) {
				telemetry.IncDuplicatesSkipped()
				continue
			}
			// Mark before acting: redelivery after this point re-reads the
			// message but never re-executes its action.
			r.Dedup.MarkProcessed(ctx, m.ID)
			telemetry.IncMessagesProcessed()

			act := Route(m)
			switch act.Kind {
			case ActionReply:
				r.send(ctx, log, sessionID, act.Reply)
			case ActionLeave:
				r.send(ctx, log, sessionID, act.Reply)
				log.Info("leave requested", slog.String("author", m.AuthorName))
				remain = false
			case ActionSessionEnded:
				log.Info("chat ended upstream")
				remain = false
			}
			if act.Kind == ActionSessionEnded {
				// Leave the rest of the page untouched for good.
				break
			}
		}

		if page.NextCursor == "" {
			// The feed cannot be resumed past this point. Looping on an empty
			// cursor would refetch from the live position forever.
			log.Info("feed returned no continuation cursor; ending")
			remain = false
		} else {
			r.Cursors.Save(ctx, sessionID, page.NextCursor)
			cursor = page.NextCursor
		}

		if !remain {
			break
		}

		select {
		case <-ctx.Done():
			return r.requeue(ctx, log, channelID, sessionID)
		case <-time.After(page.PollInterval):
		}
	}

	// Clean exit: tear down the session's keyed state. Detached from ctx so a
	// deadline landing between the leave decision and here still cleans up
	// instead of stranding the presence flag.
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := r.Scheduler.Cleanup(cctx, sessionID); err != nil {
		log.Warn("session cleanup failed", slog.Any("err", err))
		return fmt.Errorf("cleanup session: %w", err)
	}
	telemetry.IncCleanups()
	log.Info("left channel")
	return nil
}

// requeue hands the session to a fresh execution after a forced interruption.
// It runs on a detached context because the execution's own is already dead.
func (r *Runner) requeue(ctx context.Context, log *slog.Logger, channelID, sessionID string) error {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := r.Scheduler.ScheduleContinuation(rctx, channelID, sessionID); err != nil {
		log.Error("continuation enqueue failed", slog.Any("err", err))
		return fmt.Errorf("schedule continuation: %w", err)
	}
	telemetry.IncContinuations()
	log.Info("interrupted; continuation scheduled", slog.String("channel_id", channelID))
	return nil
}

// send delivers one reply. A failed send is reported and dropped: losing one
// reply is preferable to losing the session's place in the feed.
func (r *Runner) send(ctx context.Context, log *slog.Logger, sessionID, text string) {
	if err := r.Feed.Send(ctx, sessionID, text); err != nil {
		log.Warn("reply send failed", slog.Any("err", err))
		telemetry.IncSendFailures()
		return
	}
	telemetry.IncRepliesSent()
}
