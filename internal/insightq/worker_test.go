package insightq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/meridell/daybook/internal/storage"
)

type mockGenerator struct {
	generateFn func(ctx context.Context, userID, entryID string) (storage.Insight, error)
	calls      atomic.Int32
}

func (m *mockGenerator) GenerateInitialInsight(ctx context.Context, userID, entryID string) (storage.Insight, error) {
	m.calls.Add(1)
	return m.generateFn(ctx, userID, entryID)
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// resetRunAfter sets run_after to now so the job is immediately claimable after FailJob backoff.
func resetRunAfter(t *testing.T, store *storage.Store, jobID string) {
	t.Helper()
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := store.DB().Exec(`UPDATE jobs SET run_after = ? WHERE id = ?`, now, jobID)
	if err != nil {
		t.Fatalf("resetRunAfter: %v", err)
	}
}

func jobStatus(t *testing.T, store *storage.Store, jobID string) (string, int) {
	t.Helper()
	var status string
	var attempts int
	if err := store.DB().QueryRow(`SELECT status, attempts FROM jobs WHERE id = ?`, jobID).Scan(&status, &attempts); err != nil {
		t.Fatalf("querying job %s: %v", jobID, err)
	}
	return status, attempts
}

func TestEnqueue(t *testing.T) {
	store := openTestStore(t)

	jobID, err := Enqueue(store, "u1", "entry-1")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	job, err := store.GetJob(jobID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Type != JobType {
		t.Errorf("job type = %q, want %q", job.Type, JobType)
	}

	var p payload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &p); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if p.UserID != "u1" || p.EntryID != "entry-1" {
		t.Errorf("payload = %+v", p)
	}
}

func TestWorker_ProcessesJob(t *testing.T) {
	store := openTestStore(t)
	jobID, err := Enqueue(store, "u1", "entry-1")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	gen := &mockGenerator{
		generateFn: func(_ context.Context, userID, entryID string) (storage.Insight, error) {
			if userID != "u1" || entryID != "entry-1" {
				return storage.Insight{}, fmt.Errorf("unexpected args %s/%s", userID, entryID)
			}
			return storage.Insight{ID: "ins-1", EntryID: entryID}, nil
		},
	}
	w := NewWorker(store, gen, 0)

	didWork, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if !didWork {
		t.Fatal("RunOnce returned false, expected true")
	}

	status, _ := jobStatus(t, store, jobID)
	if status != "completed" {
		t.Errorf("status = %q, want completed", status)
	}
	if gen.calls.Load() != 1 {
		t.Errorf("generator called %d times, want 1", gen.calls.Load())
	}
}

func TestWorker_RunOnce_EmptyQueue(t *testing.T) {
	store := openTestStore(t)
	w := NewWorker(store, &mockGenerator{}, 0)

	didWork, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if didWork {
		t.Error("RunOnce returned true on empty queue")
	}
}

func TestWorker_RetryOnFailure(t *testing.T) {
	store := openTestStore(t)
	jobID, err := Enqueue(store, "u1", "entry-r")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	gen := &mockGenerator{}
	gen.generateFn = func(_ context.Context, _, entryID string) (storage.Insight, error) {
		if gen.calls.Load() <= 2 {
			return storage.Insight{}, fmt.Errorf("transient error %d", gen.calls.Load())
		}
		return storage.Insight{ID: "ins-r", EntryID: entryID}, nil
	}
	w := NewWorker(store, gen, 0)
	ctx := context.Background()

	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce 1: %v", err)
	}
	status, attempts := jobStatus(t, store, jobID)
	if status != "pending" || attempts != 1 {
		t.Errorf("after 1st fail: status=%q attempts=%d, want pending/1", status, attempts)
	}

	resetRunAfter(t, store, jobID)
	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce 2: %v", err)
	}
	_, attempts = jobStatus(t, store, jobID)
	if attempts != 2 {
		t.Errorf("after 2nd fail: attempts=%d, want 2", attempts)
	}

	resetRunAfter(t, store, jobID)
	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce 3: %v", err)
	}
	status, _ = jobStatus(t, store, jobID)
	if status != "completed" {
		t.Errorf("after 3rd attempt: status=%q, want completed", status)
	}
}

func TestWorker_MaxRetriesExceeded(t *testing.T) {
	store := openTestStore(t)
	jobID, err := Enqueue(store, "u1", "entry-m")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	gen := &mockGenerator{
		generateFn: func(_ context.Context, _, _ string) (storage.Insight, error) {
			return storage.Insight{}, fmt.Errorf("permanent error")
		},
	}
	w := NewWorker(store, gen, 0)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		didWork, err := w.RunOnce(ctx)
		if err != nil {
			t.Fatalf("RunOnce %d error: %v", i, err)
		}
		if !didWork {
			t.Fatalf("RunOnce %d returned false", i)
		}
		if i < 3 {
			resetRunAfter(t, store, jobID)
		}
	}

	status, _ := jobStatus(t, store, jobID)
	if status != "failed" {
		t.Errorf("final status = %q, want failed", status)
	}
}

func TestWorker_BadPayloadFails(t *testing.T) {
	store := openTestStore(t)
	job := storage.Job{ID: "job-bad", Type: JobType, PayloadJSON: "{not json"}
	if err := store.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	gen := &mockGenerator{
		generateFn: func(_ context.Context, _, _ string) (storage.Insight, error) {
			return storage.Insight{}, nil
		},
	}
	w := NewWorker(store, gen, 0)

	didWork, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if !didWork {
		t.Fatal("RunOnce returned false")
	}
	if gen.calls.Load() != 0 {
		t.Error("generator should not run for undecodable payload")
	}
	status, attempts := jobStatus(t, store, "job-bad")
	if status != "pending" || attempts != 1 {
		t.Errorf("status=%q attempts=%d, want pending/1", status, attempts)
	}
}
