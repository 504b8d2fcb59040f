package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is one unit of background work, identified for tracking and
// retried on handler failure. Statement exports enqueue the job id of
// the tracked render as the payload.
type Job struct {
	ID       string
	Type     string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job.
type Handler func(context.Context, Job) error

// QueueConfig tunes the worker pool.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

func (cfg QueueConfig) withDefaults() QueueConfig {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 4
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return cfg
}

// Queue is an in-memory job dispatcher backed by a worker pool.
// Statement renders run on it so a slow PDF never blocks the request
// path; jobs do not survive a restart.
type Queue struct {
	name    string
	handler Handler
	cfg     QueueConfig

	jobs    chan Job
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewQueue builds a queue around the handler. Call Start before
// enqueueing.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	cfg = cfg.withDefaults()
	return &Queue{
		name:    name,
		handler: handler,
		cfg:     cfg,
		jobs:    make(chan Job, cfg.BufferSize),
	}
}

// Start launches the workers. Subsequent calls are no-ops.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.started = true
	q.cfg.Logger.Sugar().Infow("queue started", "queue", q.name, "workers", q.cfg.Workers)
}

// Stop cancels the workers and waits for them to exit.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.cancel()
	q.mu.Unlock()
	q.wg.Wait()
	q.cfg.Logger.Sugar().Infow("queue stopped", "queue", q.name)
}

// Enqueue hands a job to the pool. Fails when the queue was never
// started or has been stopped.
func (q *Queue) Enqueue(job Job) error {
	q.mu.Lock()
	ctx := q.ctx
	started := q.started
	q.mu.Unlock()

	if !started {
		return fmt.Errorf("queue %s not started", q.name)
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("queue %s stopped: %w", q.name, ctx.Err())
	case q.jobs <- job:
		return nil
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			if err := q.handler(q.ctx, job); err != nil {
				q.retry(job, err)
			}
		}
	}
}

// retry re-enqueues a failed job after the configured delay until its
// attempts are spent.
func (q *Queue) retry(job Job, err error) {
	job.Attempt++
	if job.Attempt > q.cfg.MaxRetries {
		q.cfg.Logger.Sugar().Errorw("job exceeded retries", "queue", q.name, "job_id", job.ID, "type", job.Type, "error", err)
		return
	}
	q.cfg.Logger.Sugar().Warnw("job failed, retrying", "queue", q.name, "job_id", job.ID, "type", job.Type, "attempt", job.Attempt, "error", err)

	go func(j Job) {
		timer := time.NewTimer(q.cfg.RetryDelay)
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
			return
		case <-timer.C:
			if err := q.Enqueue(j); err != nil {
				q.cfg.Logger.Sugar().Errorw("failed to requeue job", "queue", q.name, "job_id", j.ID, "error", err)
			}
		}
	}(job)
}
