// Package insightq runs asynchronous insight generation through the
// SQLite job queue, so entry saves can return before the model call
// finishes.
package insightq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meridell/daybook/internal/journal"
	"github.com/meridell/daybook/internal/storage"
)

// JobType identifies insight generation jobs in the queue.
const JobType = "insight_generate"

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
}

// Enqueuer is the subset of the store needed to schedule a job.
type Enqueuer interface {
	EnqueueJob(job storage.Job) error
}

// InsightGenerator produces the initial insight for an entry.
type InsightGenerator interface {
	GenerateInitialInsight(ctx context.Context, userID, entryID string) (storage.Insight, error)
}

type payload struct {
	UserID  string `json:"user_id"`
	EntryID string `json:"entry_id"`
}

// Enqueue schedules insight generation for an entry and returns the job ID.
func Enqueue(store Enqueuer, userID, entryID string) (string, error) {
	body, err := json.Marshal(payload{UserID: userID, EntryID: entryID})
	if err != nil {
		return "", fmt.Errorf("encoding payload: %w", err)
	}
	job := storage.Job{
		ID:          uuid.NewString(),
		Type:        JobType,
		PayloadJSON: string(body),
	}
	if err := store.EnqueueJob(job); err != nil {
		return "", fmt.Errorf("enqueueing insight job: %w", err)
	}
	return job.ID, nil
}

// Worker processes insight_generate jobs from the SQLite job queue.
type Worker struct {
	store  JobStore
	gen    InsightGenerator
	poll   time.Duration
	logger *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, gen InsightGenerator, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:  store,
		gen:    gen,
		poll:   pollInterval,
		logger: slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single insight job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobType})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("insight job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var p payload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &p); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	insight, err := w.gen.GenerateInitialInsight(ctx, p.UserID, p.EntryID)
	if err != nil {
		var qe *journal.QuotaError
		if errors.As(err, &qe) {
			return fmt.Errorf("daily quota exhausted, resets %s: %w", qe.ResetAt.Format(time.RFC3339), err)
		}
		return fmt.Errorf("generating insight for entry %s: %w", p.EntryID, err)
	}

	w.logger.Info("async insight generated", "entry_id", p.EntryID, "insight_id", insight.ID)
	return nil
}
