// Package tasks provides the bot's execution substrate: a Postgres-backed
// task queue holding {channel, session} work items, and a worker that claims
// items and runs the polling loop for each under a hard per-task deadline.
// The deadline is what makes interruption an everyday event rather than a
// crash: a session that outlives its task is simply re-enqueued.
package tasks

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/onnwee/livechat-tender/backend/bot"
	"github.com/onnwee/livechat-tender/backend/db"
)

// Task is one queued bot execution, bound to a single chat session.
type Task struct {
	ID        string
	ChannelID string
	SessionID string
}

// Queue implements bot.Scheduler over the bot_tasks table.
type Queue struct {
	DB *sql.DB
}

// Enqueue inserts a queued task for the session. At most one queued task per
// session exists at a time: a concurrent enqueue for the same session is a
// no-op, which keeps an interrupted execution from ever producing duplicate
// continuations.
func (q *Queue) Enqueue(ctx context.Context, channelID, sessionID string) error {
	_, err := q.DB.ExecContext(ctx,
		`INSERT INTO bot_tasks (id, channel_id, session_id, status, created_at) VALUES ($1,$2,$3,'queued',NOW())
		 ON CONFLICT (session_id) WHERE status='queued' DO NOTHING`,
		uuid.New().String(), channelID, sessionID)
	if err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}
	return nil
}

// ScheduleContinuation re-enqueues an interrupted session.
func (q *Queue) ScheduleContinuation(ctx context.Context, channelID, sessionID string) error {
	return q.Enqueue(ctx, channelID, sessionID)
}

// Cleanup removes the session's cursor and presence entries after a clean exit.
func (q *Queue) Cleanup(ctx context.Context, sessionID string) error {
	kv := &db.KVStore{DB: q.DB}
	if err := (&bot.Cursors{KV: kv}).Clear(ctx, sessionID); err != nil {
		return fmt.Errorf("clear cursor: %w", err)
	}
	if err := (&bot.Dedup{KV: kv}).ClearPresence(ctx, sessionID); err != nil {
		return fmt.Errorf("clear presence: %w", err)
	}
	return nil
}

// Depth returns the number of queued tasks.
func (q *Queue) Depth(ctx context.Context) (int, error) {
	var n int
	err := q.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM bot_tasks WHERE status='queued'`).Scan(&n)
	return n, err
}

// Claim atomically moves the oldest queued task to running and returns it.
// Returns nil when the queue is empty. SKIP LOCKED keeps concurrent workers
// from fighting over the same row.
func (q *Queue) Claim(ctx context.Context) (*Task, error) {
	row := q.DB.QueryRowContext(ctx,
		`UPDATE bot_tasks SET status='running', started_at=NOW()
		 WHERE id = (
		   SELECT id FROM bot_tasks WHERE status='queued'
		   ORDER BY created_at ASC LIMIT 1
		   FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, channel_id, session_id`)
	var t Task
	if err := row.Scan(&t.ID, &t.ChannelID, &t.SessionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("claim task: %w", err)
	}
	return &t, nil
}

// Finish marks a claimed task done, recording errText when the execution failed.
func (q *Queue) Finish(ctx context.Context, taskID, errText string) error {
	var errCol any
	if errText != "" {
		errCol = errText
	}
	_, err := q.DB.ExecContext(ctx,
		`UPDATE bot_tasks SET status='done', error=$2, finished_at=NOW() WHERE id=$1`,
		taskID, errCol)
	return err
}
