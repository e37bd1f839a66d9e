package persistence

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrQueueClosed is returned when work is submitted after Close.
var ErrQueueClosed = errors.New("persistence queue closed")

// Job is one unit of background persistence work.
type Job struct {
	ID             string
	Name           string // "update", "amend", ...
	ConversationID string
	QueuedAt       time.Time

	run   func(ctx context.Context) error
	done  chan struct{}
	flush bool
}

// Queue runs persistence jobs one at a time, in submission order, on a
// single background goroutine. Failures are logged and kept as the last
// error until a later job succeeds.
type Queue struct {
	logger  *slog.Logger
	timeout time.Duration

	mu      sync.Mutex
	pending []*Job
	closed  bool
	lastErr error
	wake    chan struct{}

	wg sync.WaitGroup
}

// NewQueue starts a queue. Each job runs with the given timeout; zero
// means no limit.
func NewQueue(timeout time.Duration, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		logger:  logger,
		timeout: timeout,
		wake:    make(chan struct{}, 1),
	}
	q.wg.Add(1)
	go q.loop()
	return q
}

// Enqueue schedules fn. It never blocks on the work itself.
func (q *Queue) Enqueue(name, conversationID string, fn func(ctx context.Context) error) (*Job, error) {
	return q.push(&Job{
		ID:             uuid.New().String()[:8],
		Name:           name,
		ConversationID: conversationID,
		QueuedAt:       time.Now(),
		run:            fn,
		done:           make(chan struct{}),
	})
}

func (q *Queue) push(job *Job) (*Job, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrQueueClosed
	}
	q.pending = append(q.pending, job)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return job, nil
}

// Done is closed once the job has run.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Flush waits until every job queued before the call has run.
func (q *Queue) Flush(ctx context.Context) error {
	job, err := q.push(&Job{
		Name:     "flush",
		QueuedAt: time.Now(),
		run:      func(context.Context) error { return nil },
		done:     make(chan struct{}),
		flush:    true,
	})
	if err != nil {
		return err
	}
	select {
	case <-job.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LastError returns the error of the most recent failed job, or nil when
// a job succeeded since.
func (q *Queue) LastError() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastErr
}

// Len returns the number of jobs waiting to run.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops accepting jobs, runs the ones already queued and waits for
// the worker to exit.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	q.wg.Wait()
}

func (q *Queue) loop() {
	defer q.wg.Done()
	for {
		job, closed := q.next()
		if job == nil {
			if closed {
				return
			}
			<-q.wake
			continue
		}
		q.execute(job)
	}
}

func (q *Queue) next() (*Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil, q.closed
	}
	job := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	return job, false
}

func (q *Queue) execute(job *Job) {
	defer close(job.done)

	ctx := context.Background()
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	start := time.Now()
	err := job.run(ctx)
	if job.flush {
		return
	}

	q.mu.Lock()
	q.lastErr = err
	q.mu.Unlock()

	if err != nil {
		q.logger.Warn("persistence job failed",
			"job_id", job.ID,
			"job", job.Name,
			"conversation_id", job.ConversationID,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err)
		return
	}
	q.logger.Debug("persistence job done",
		"job_id", job.ID,
		"job", job.Name,
		"conversation_id", job.ConversationID,
		"wait_ms", start.Sub(job.QueuedAt).Milliseconds())
}
