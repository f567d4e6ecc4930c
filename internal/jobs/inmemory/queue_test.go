package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/budget-tracker/internal/domain"
	"github.com/dvloznov/budget-tracker/internal/jobs"
)

func waitForStatus(t *testing.T, store *Store, jobID string, want jobs.JobStatus) *jobs.ImportMailJob {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetJob(context.Background(), jobID)
		if err == nil && job.Status == want {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %s", jobID, want)
	return nil
}

func TestQueueProcessesJob(t *testing.T) {
	store := NewStore()
	q := NewQueue(4, 2, store)
	defer q.Close()

	var handled atomic.Int64
	err := q.Start(context.Background(), func(_ context.Context, job jobs.Job) error {
		handled.Add(1)
		if imp, ok := job.(*jobs.ImportMailJob); ok {
			imp.ImportedCount = 7
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	job := &jobs.ImportMailJob{UserID: "user-1", Mode: domain.ModeRecent}
	if err := q.PublishImportMail(context.Background(), job); err != nil {
		t.Fatalf("PublishImportMail: %v", err)
	}

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	if handled.Load() != 1 {
		t.Errorf("handler ran %d times, want 1", handled.Load())
	}
	if done.ImportedCount != 7 {
		t.Errorf("ImportedCount = %d, want 7", done.ImportedCount)
	}
}

func TestQueueRetriesFailedJob(t *testing.T) {
	store := NewStore()
	q := NewQueue(4, 1, store)
	defer q.Close()

	var attempts atomic.Int64
	err := q.Start(context.Background(), func(context.Context, jobs.Job) error {
		if attempts.Add(1) == 1 {
			return errors.New("provider unavailable")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	job := &jobs.ImportMailJob{UserID: "user-1", Mode: domain.ModeBackfill}
	if err := q.PublishImportMail(context.Background(), job); err != nil {
		t.Fatalf("PublishImportMail: %v", err)
	}

	waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	if attempts.Load() != 2 {
		t.Errorf("attempts = %d, want 2", attempts.Load())
	}
}

func TestQueueRejectsAfterClose(t *testing.T) {
	q := NewQueue(1, 1, NewStore())
	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	err := q.PublishImportMail(context.Background(), &jobs.ImportMailJob{UserID: "u"})
	if err == nil {
		t.Fatal("expected publish to a closed queue to fail")
	}
}
