package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/statement-ingest/internal/jobs"
	"github.com/dvloznov/statement-ingest/internal/logger"
)

const (
	defaultWorkers    = 5
	defaultMaxRetries = 3
)

// Queue is an in-memory implementation of job publisher and consumer.
// It uses Go channels for job distribution and is safe for concurrent use.
// Jobs of one account run one at a time; jobs of different
// accounts run in parallel up to the worker count.
type Queue struct {
	jobChan   chan *jobs.IngestUploadJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.JobStore
	closed    bool

	workers int
	backoff func(retry int) time.Duration

	accountsMu sync.Mutex
	active     map[string]bool
	waiting    map[string][]*jobs.IngestUploadJob
}

// Option configures a Queue.
type Option func(*Queue)

// WithWorkers sets the number of concurrent workers.
func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithBackoff sets the delay before the given retry. The default waits retry
// seconds.
func WithBackoff(backoff func(retry int) time.Duration) Option {
	return func(q *Queue) {
		if backoff != nil {
			q.backoff = backoff
		}
	}
}

// NewQueue creates a new in-memory job queue.
// bufferSize determines how many jobs can be queued before PublishIngestUpload blocks.
func NewQueue(bufferSize int, store jobs.JobStore, opts ...Option) *Queue {
	q := &Queue{
		jobChan:   make(chan *jobs.IngestUploadJob, bufferSize),
		closeChan: make(chan struct{}),
		store:     store,
		workers:   defaultWorkers,
		backoff:   func(retry int) time.Duration { return time.Duration(retry) * time.Second },
		active:    make(map[string]bool),
		waiting:   make(map[string][]*jobs.IngestUploadJob),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// PublishIngestUpload implements the Publisher interface.
// It enqueues an upload for asynchronous ingestion.
// The send does not hold the queue lock, so a publisher blocked on a full
// buffer never holds up Stop.
func (q *Queue) PublishIngestUpload(ctx context.Context, job *jobs.IngestUploadJob) error {
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()

	if closed {
		return fmt.Errorf("queue is closed")
	}
	if job.AccountID == "" {
		return errors.New("account ID is required")
	}

	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = defaultMaxRetries
	}

	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("failed to save job: %w", err)
		}
	}

	select {
	case q.jobChan <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return fmt.Errorf("queue is closed")
	}
}

// Start implements the Consumer interface.
// It starts consuming jobs from the queue and processes them using the provided handler.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return fmt.Errorf("queue is closed")
	}
	q.mu.RUnlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}

	return nil
}

// worker processes jobs from the queue. A job whose account is busy is parked
// and later run by the worker that holds the account.
func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}
			if !q.claim(job) {
				continue
			}
			for job != nil {
				account := job.AccountID
				q.processJob(ctx, job, handler)
				job = q.release(account)
			}
		}
	}
}

// claim marks the job's account busy, or parks the job if it already is.
func (q *Queue) claim(job *jobs.IngestUploadJob) bool {
	q.accountsMu.Lock()
	defer q.accountsMu.Unlock()

	if q.active[job.AccountID] {
		q.waiting[job.AccountID] = append(q.waiting[job.AccountID], job)
		return false
	}
	q.active[job.AccountID] = true
	return true
}

// release hands over the next parked job of the account, keeping it busy, or
// frees the account when none is left.
func (q *Queue) release(account string) *jobs.IngestUploadJob {
	q.accountsMu.Lock()
	defer q.accountsMu.Unlock()

	if parked := q.waiting[account]; len(parked) > 0 {
		q.waiting[account] = parked[1:]
		return parked[0]
	}
	delete(q.waiting, account)
	delete(q.active, account)
	return nil
}

// processJob executes a single job with retry logic.
func (q *Queue) processJob(ctx context.Context, job *jobs.IngestUploadJob, handler jobs.JobHandler) {
	log := logger.FromContext(ctx).With().
		Str("job_id", job.JobID).
		Str("account_id", job.AccountID).
		Str("source", job.Source).
		Logger()

	job.Status = jobs.JobStatusRunning
	now := time.Now()
	job.StartedAt = &now

	if q.store != nil {
		_ = q.store.SaveJob(ctx, job)
	}

	err := handler(logger.WithContext(ctx, log), job)

	completedAt := time.Now()
	job.CompletedAt = &completedAt

	if err != nil {
		job.Error = err.Error()

		if job.RetryCount < job.MaxRetries {
			job.RetryCount++
			job.Status = jobs.JobStatusRetrying
			log.Warn().Err(err).Int("retry", job.RetryCount).Msg("job failed, retrying")

			// Saved before the timer starts; the timer owns the job afterwards.
			if q.store != nil {
				_ = q.store.SaveJob(ctx, job)
			}
			time.AfterFunc(q.backoff(job.RetryCount), func() {
				job.Status = jobs.JobStatusPending
				job.StartedAt = nil
				job.CompletedAt = nil
				if err := q.PublishIngestUpload(ctx, job); err != nil {
					log.Error().Err(err).Msg("re-enqueueing job")
				}
			})
			return
		}
		job.Status = jobs.JobStatusFailed
		log.Error().Err(err).Int("retries", job.RetryCount).Msg("job failed")
	} else {
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
	}

	if q.store != nil {
		_ = q.store.SaveJob(ctx, job)
	}
}

// Stop implements the Consumer interface.
// It stops the queue and waits for all in-flight jobs to complete. Parked
// jobs are left pending in the store.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the Publisher interface.
// It closes the queue and releases resources.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

// Ensure Queue implements both Publisher and Consumer interfaces.
var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
