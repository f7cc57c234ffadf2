package tasks

import (
	"context"
	"testing"

	"github.com/onnwee/livechat-tender/backend/bot"
	"github.com/onnwee/livechat-tender/backend/db"
	"github.com/onnwee/livechat-tender/backend/testutil"
)

func cleanTasks(t *testing.T, q *Queue) {
	t.Helper()
	t.Cleanup(func() {
		_, _ = q.DB.Exec(`DELETE FROM bot_tasks WHERE session_id LIKE 'test-%'`)
		_, _ = q.DB.Exec(`DELETE FROM kv WHERE key LIKE '%test-%'`)
	})
}

func TestEnqueueDedup(t *testing.T) {
	q := &Queue{DB: testutil.SetupTestDB(t)}
	cleanTasks(t, q)
	ctx := context.Background()

	if err := q.Enqueue(ctx, "chan1", "test-dedup"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	// A second enqueue while one is queued must be a no-op.
	if err := q.Enqueue(ctx, "chan1", "test-dedup"); err != nil {
		t.Fatalf("duplicate enqueue: %v", err)
	}
	var n int
	if err := q.DB.QueryRow(`SELECT COUNT(*) FROM bot_tasks WHERE session_id='test-dedup' AND status='queued'`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("queued tasks for session = %d, want 1", n)
	}

	// Claiming the task frees the slot for the next continuation.
	task, err := q.Claim(ctx)
	if err != nil || task == nil {
		t.Fatalf("claim = (%v, %v)", task, err)
	}
	if err := q.Enqueue(ctx, "chan1", "test-dedup"); err != nil {
		t.Fatalf("enqueue after claim: %v", err)
	}
	if err := q.DB.QueryRow(`SELECT COUNT(*) FROM bot_tasks WHERE session_id='test-dedup' AND status='queued'`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("queued tasks after re-enqueue = %d, want 1", n)
	}
}

func TestClaimOrderAndEmpty(t *testing.T) {
	q := &Queue{DB: testutil.SetupTestDB(t)}
	cleanTasks(t, q)
	ctx := context.Background()

	if err := q.Enqueue(ctx, "chan1", "test-first"); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(ctx, "chan1", "test-second"); err != nil {
		t.Fatal(err)
	}

	task, err := q.Claim(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if task == nil || task.SessionID != "test-first" {
		t.Errorf("first claim = %+v, want oldest task", task)
	}
	task2, err := q.Claim(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if task2 == nil || task2.SessionID != "test-second" {
		t.Errorf("second claim = %+v", task2)
	}
	// Empty queue claims as nil, nil
	task3, err := q.Claim(ctx)
	if err != nil {
		t.Fatalf("claim on empty: %v", err)
	}
	if task3 != nil {
		t.Errorf("claim on empty = %+v, want nil", task3)
	}
}

func TestFinishRecordsError(t *testing.T) {
	q := &Queue{DB: testutil.SetupTestDB(t)}
	cleanTasks(t, q)
	ctx := context.Background()

	if err := q.Enqueue(ctx, "chan1", "test-finish"); err != nil {
		t.Fatal(err)
	}
	task, err := q.Claim(ctx)
	if err != nil || task == nil {
		t.Fatalf("claim = (%v, %v)", task, err)
	}
	if err := q.Finish(ctx, task.ID, "fetch page: quota exceeded"); err != nil {
		t.Fatalf("finish: %v", err)
	}
	var status, errText string
	if err := q.DB.QueryRow(`SELECT status, COALESCE(error, '') FROM bot_tasks WHERE id=$1`, task.ID).Scan(&status, &errText); err != nil {
		t.Fatal(err)
	}
	if status != "done" || errText != "fetch page: quota exceeded" {
		t.Errorf("task row = (%q, %q)", status, errText)
	}
}

func TestDepth(t *testing.T) {
	q := &Queue{DB: testutil.SetupTestDB(t)}
	cleanTasks(t, q)
	ctx := context.Background()

	before, err := q.Depth(ctx)
	if err != nil {
		t.Fatalf("depth: %v", err)
	}
	if err := q.Enqueue(ctx, "chan1", "test-depth"); err != nil {
		t.Fatal(err)
	}
	after, err := q.Depth(ctx)
	if err != nil {
		t.Fatalf("depth: %v", err)
	}
	if after != before+1 {
		t.Errorf("depth = %d after enqueue, want %d", after, before+1)
	}
}

func TestCleanupClearsSessionState(t *testing.T) {
	database := testutil.SetupTestDB(t)
	q := &Queue{DB: database}
	cleanTasks(t, q)
	ctx := context.Background()

	kv := &db.KVStore{DB: database}
	cursors := &bot.Cursors{KV: kv}
	dedup := &bot.Dedup{KV: kv}
	cursors.Save(ctx, "test-clean", "tok")
	dedup.MarkPresent(ctx, "test-clean", 0)
	dedup.MarkProcessed(ctx, "test-clean-msg")

	if err := q.Cleanup(ctx, "test-clean"); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if _, ok := cursors.Load(ctx, "test-clean"); ok {
		t.Error("cursor survived cleanup")
	}
	if dedup.Present(ctx, "test-clean") {
		t.Error("presence survived cleanup")
	}
	// Processed markers outlive the session on purpose.
	if !dedup.Seen(ctx, "test-clean-msg") {
		t.Error("processed marker removed by cleanup")
	}
}
