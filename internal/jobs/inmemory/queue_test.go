package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/statement-ingest/internal/jobs"
)

func waitForStatus(t *testing.T, store *Store, jobID string, status jobs.JobStatus) *jobs.IngestUploadJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetJob(context.Background(), jobID)
		if err == nil && job.Status == status {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %s", jobID, status)
	return nil
}

func startQueue(t *testing.T, handler jobs.JobHandler, opts ...Option) (*Queue, *Store) {
	t.Helper()
	store := NewStore()
	opts = append([]Option{WithBackoff(func(int) time.Duration { return time.Millisecond })}, opts...)
	q := NewQueue(16, store, opts...)
	if err := q.Start(context.Background(), handler); err != nil {
		t.Fatalf("Start() unexpected error: %v", err)
	}
	t.Cleanup(func() { q.Close() })
	return q, store
}

func TestQueue_ProcessesJob(t *testing.T) {
	q, store := startQueue(t, func(ctx context.Context, job jobs.Job) error {
		upload := job.(*jobs.IngestUploadJob)
		upload.RunID = "run-1"
		upload.Transactions = 3
		return nil
	})

	job := &jobs.IngestUploadJob{Source: "jan.csv", AccountID: "acc-1"}
	if err := q.PublishIngestUpload(context.Background(), job); err != nil {
		t.Fatalf("PublishIngestUpload() unexpected error: %v", err)
	}
	if job.JobID == "" || job.MaxRetries != defaultMaxRetries {
		t.Errorf("defaults not applied: %+v", job)
	}

	got := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	if got.RunID != "run-1" || got.Transactions != 3 || got.CompletedAt == nil {
		t.Errorf("completed job = %+v", got)
	}
}

func TestQueue_Retries(t *testing.T) {
	tests := []struct {
		name        string
		failures    int32
		wantStatus  jobs.JobStatus
		wantRetries int
		wantCalls   int32
	}{
		{name: "recovers on retry", failures: 1, wantStatus: jobs.JobStatusCompleted, wantRetries: 1, wantCalls: 2},
		{name: "gives up after max retries", failures: 100, wantStatus: jobs.JobStatusFailed, wantRetries: 2, wantCalls: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			q, store := startQueue(t, func(ctx context.Context, job jobs.Job) error {
				if calls.Add(1) <= tt.failures {
					return errors.New("statement unreadable")
				}
				return nil
			})

			job := &jobs.IngestUploadJob{JobID: "job-1", Source: "jan.csv", AccountID: "acc-1", MaxRetries: 2}
			if err := q.PublishIngestUpload(context.Background(), job); err != nil {
				t.Fatalf("PublishIngestUpload() unexpected error: %v", err)
			}

			got := waitForStatus(t, store, "job-1", tt.wantStatus)
			if got.RetryCount != tt.wantRetries {
				t.Errorf("RetryCount = %d, want %d", got.RetryCount, tt.wantRetries)
			}
			if tt.wantStatus == jobs.JobStatusFailed && got.Error != "statement unreadable" {
				t.Errorf("Error = %q", got.Error)
			}
			if n := calls.Load(); n != tt.wantCalls {
				t.Errorf("handler called %d times, want %d", n, tt.wantCalls)
			}
		})
	}
}

func TestQueue_SerializesPerAccount(t *testing.T) {
	var (
		mu       sync.Mutex
		inFlight = map[string]int{}
		overlap  []string
	)
	q, store := startQueue(t, func(ctx context.Context, job jobs.Job) error {
		account := job.(*jobs.IngestUploadJob).AccountID
		mu.Lock()
		inFlight[account]++
		if inFlight[account] > 1 {
			overlap = append(overlap, job.GetID())
		}
		mu.Unlock()

		time.Sleep(2 * time.Millisecond)

		mu.Lock()
		inFlight[account]--
		mu.Unlock()
		return nil
	}, WithWorkers(4))

	var ids []string
	for i := 0; i < 5; i++ {
		for _, account := range []string{"acc-1", "acc-2"} {
			job := &jobs.IngestUploadJob{JobID: fmt.Sprintf("%s-%d", account, i), Source: "s.csv", AccountID: account}
			if err := q.PublishIngestUpload(context.Background(), job); err != nil {
				t.Fatalf("PublishIngestUpload() unexpected error: %v", err)
			}
			ids = append(ids, job.JobID)
		}
	}

	for _, id := range ids {
		waitForStatus(t, store, id, jobs.JobStatusCompleted)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(overlap) > 0 {
		t.Errorf("jobs ran concurrently with another job of the same account: %v", overlap)
	}
}

func TestQueue_PublishErrors(t *testing.T) {
	q := NewQueue(1, NewStore())

	if err := q.PublishIngestUpload(context.Background(), &jobs.IngestUploadJob{Source: "s.csv"}); err == nil {
		t.Error("expected error for a job without account")
	}

	if err := q.Close(); err != nil {
		t.Fatalf("Close() unexpected error: %v", err)
	}
	if err := q.PublishIngestUpload(context.Background(), &jobs.IngestUploadJob{AccountID: "acc-1"}); err == nil {
		t.Error("expected error publishing to a closed queue")
	}
	if err := q.Start(context.Background(), nil); err == nil {
		t.Error("expected error starting a closed queue")
	}
}

func TestQueue_StopWithBlockedPublisher(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(1, NewStore())

	// No workers: the first job fills the buffer and the second blocks.
	if err := q.PublishIngestUpload(ctx, &jobs.IngestUploadJob{AccountID: "acc-1"}); err != nil {
		t.Fatalf("PublishIngestUpload() unexpected error: %v", err)
	}
	published := make(chan error, 1)
	go func() {
		published <- q.PublishIngestUpload(ctx, &jobs.IngestUploadJob{AccountID: "acc-1"})
	}()
	time.Sleep(50 * time.Millisecond)

	stopped := make(chan error, 1)
	go func() { stopped <- q.Stop(ctx) }()

	select {
	case err := <-stopped:
		if err != nil {
			t.Fatalf("Stop() unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return while a publisher was blocked")
	}
	select {
	case err := <-published:
		if err == nil {
			t.Error("blocked PublishIngestUpload() returned nil after Stop, want error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked PublishIngestUpload() did not return after Stop")
	}
}
