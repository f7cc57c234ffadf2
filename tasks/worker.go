package tasks

import (
	"context"
	"log/slog"
	"time"

	"github.com/onnwee/livechat-tender/backend/bot"
	"github.com/onnwee/livechat-tender/backend/telemetry"
)

// RunnerFactory builds a polling Runner authorized as the task's channel.
// Loading the channel's credential happens here, before the loop starts; a
// channel with no stored token fails the task rather than the loop.
type RunnerFactory func(ctx context.Context, channelID string) (*bot.Runner, error)

// Worker claims queued tasks one at a time and runs each session's polling
// loop under a hard deadline. Hitting the deadline is not a failure: the loop
// observes it as an interruption and re-enqueues itself.
type Worker struct {
	Queue     *Queue
	NewRunner RunnerFactory

	// Deadline bounds one task execution (default 9m).
	Deadline time.Duration
	// PollInterval is how often an idle worker re-checks the queue (default 5s).
	PollInterval time.Duration
}

// StartWorker runs the claim loop until ctx is done. Call it in a goroutine;
// run several for parallel sessions (a single session never runs twice in
// parallel off the queue, since at most one queued task per session exists).
func (w *Worker) StartWorker(ctx context.Context) {
	deadline := w.Deadline
	if deadline <= 0 {
		deadline = 9 * time.Minute
	}
	interval := w.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	slog.Info("task worker starting", slog.Duration("deadline", deadline), slog.Duration("poll_interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		// Drain the queue back to back; long-lived tasks shouldn't make the
		// next one wait a full tick.
		for {
			if ctx.Err() != nil {
				slog.Info("task worker stopped")
				return
			}
			ran, err := w.runOnce(ctx, deadline)
			if err != nil {
				slog.Warn("task run", slog.Any("err", err))
			}
			if !ran {
				break
			}
		}
		if depth, err := w.Queue.Depth(ctx); err == nil {
			telemetry.SetQueueDepth(depth)
		}
		select {
		case <-ctx.Done():
			slog.Info("task worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// runOnce claims and executes a single task. ran is false when the queue was
// empty.
func (w *Worker) runOnce(ctx context.Context, deadline time.Duration) (ran bool, err error) {
	task, err := w.Queue.Claim(ctx)
	if err != nil || task == nil {
		return false, err
	}
	telemetry.IncTasksClaimed()
	log := slog.Default().With(
		slog.String("task_id", task.ID),
		slog.String("session_id", task.SessionID),
		slog.String("channel_id", task.ChannelID),
		slog.String("component", "task_worker"))
	log.Info("task claimed")

	runner, err := w.NewRunner(ctx, task.ChannelID)
	if err != nil {
		// Credential precondition failed; the task owns the error, not the loop.
		log.Error("runner setup failed", slog.Any("err", err))
		telemetry.IncTasksFailed()
		if ferr := w.Queue.Finish(context.WithoutCancel(ctx), task.ID, err.Error()); ferr != nil {
			log.Warn("task finish failed", slog.Any("err", ferr))
		}
		return true, nil
	}

	tctx, cancel := context.WithTimeout(ctx, deadline)
	start := time.Now()
	runErr := runner.Run(tctx, task.ChannelID, task.SessionID)
	cancel()
	telemetry.ObserveTaskRun(time.Since(start))

	errText := ""
	if runErr != nil {
		errText = runErr.Error()
		telemetry.IncTasksFailed()
		log.Error("task execution failed", slog.Any("err", runErr), slog.Duration("duration", time.Since(start)))
	} else {
		log.Info("task finished", slog.Duration("duration", time.Since(start)))
	}
	if ferr := w.Queue.Finish(context.WithoutCancel(ctx), task.ID, errText); ferr != nil {
		log.Warn("task finish failed", slog.Any("err", ferr))
	}
	return true, nil
}
