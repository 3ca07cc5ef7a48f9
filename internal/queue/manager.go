package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// Handler processes one dequeued job. A nil error is a success; an error
// wrapped with Permanent fails the job without retries; any other error
// consumes one retry.
type Handler func(ctx context.Context, job *Job) (any, error)

// Options configures one enqueue call.
type Options struct {
	// DedupKey guarantees at most one in-flight job per key. When empty it
	// defaults to "<queue>:<payload id>" if the payload carries an "id"
	// field, otherwise to a fresh UUID (no coalescing).
	DedupKey   string
	MaxRetries int
	Backoff    time.Duration
}

// Store is the persistence boundary for durable job rows. A nil Store
// disables durability (useful in tests).
type Store interface {
	SaveQueueJob(ctx context.Context, id, queue, dedupKey string, payload map[string]any, maxRetries int, backoffMS int64) error
	UpdateQueueJobStatus(ctx context.Context, id, status string, attempts int, lastError *string) error
}

type consumer struct {
	name    string
	handler Handler
	workers int
	tasks   chan *Job
}

// Manager owns the named queues of one process. Create it at process start,
// register consumers, then Stop it at shutdown.
type Manager struct {
	store  Store
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	queues    map[string]*consumer
	jobs      map[string]*Job
	pending   map[string]*Job // dedup key -> non-terminal job
	listeners []func(Event)
	closed    bool
}

// NewManager creates a job queue manager. store may be nil.
func NewManager(store Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:   store,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		queues:  make(map[string]*consumer),
		jobs:    make(map[string]*Job),
		pending: make(map[string]*Job),
	}
}

// Consume registers a handler for a named queue and starts its worker pool.
// At-least-once delivery: the handler may observe the same logical work
// again after a crash, and must re-check the record store.
func (m *Manager) Consume(queue string, workers int, h Handler) {
	if workers <= 0 {
		workers = 1
	}

	c := &consumer{
		name:    queue,
		handler: h,
		workers: workers,
		tasks:   make(chan *Job, 1024),
	}

	m.mu.Lock()
	m.queues[queue] = c
	m.mu.Unlock()

	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go m.workerLoop(c)
	}

	m.logger.Debug("queue consumer registered", "queue", queue, "workers", workers)
}

// Subscribe registers a listener invoked on every lifecycle event.
func (m *Manager) Subscribe(fn func(Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Enqueue submits a job. When the dedup key matches an already-pending job
// the call silently coalesces: the in-flight job is returned with
// coalesced=true and no new work is scheduled.
func (m *Manager) Enqueue(ctx context.Context, queue string, payload map[string]any, opts Options) (*Job, bool, error) {
	key := opts.DedupKey
	if key == "" {
		if id, ok := payload["id"].(string); ok && id != "" {
			key = queue + ":" + id
		} else {
			key = uuid.New().String()
		}
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, false, fmt.Errorf("queue manager stopped")
	}
	c, ok := m.queues[queue]
	if !ok {
		m.mu.Unlock()
		return nil, false, fmt.Errorf("%w: %s", ErrUnknownQueue, queue)
	}
	if existing, ok := m.pending[key]; ok {
		m.mu.Unlock()
		m.emit(Event{Kind: EventEnqueued, JobID: existing.ID, Queue: queue, DedupKey: key, Coalesced: true})
		return existing, true, nil
	}

	job := m.newJob(queue, key, payload, opts)
	m.jobs[job.ID] = job
	m.pending[key] = job
	m.mu.Unlock()

	m.emit(Event{Kind: EventEnqueued, JobID: job.ID, Queue: queue, DedupKey: key})
	m.persistCreate(ctx, job)
	m.deliver(c, job)

	m.logger.Debug("job enqueued", "queue", queue, "job_id", job.ID, "dedup_key", key)
	return job, false, nil
}

// Wait blocks until the job is terminal, returning its result. A failed job
// yields an ErrJobFailed-wrapped error.
func (m *Manager) Wait(ctx context.Context, job *Job) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-job.Done():
	}

	if job.Status() == StatusFailed {
		return nil, fmt.Errorf("%w: %s/%s: %v", ErrJobFailed, job.Queue, job.ID, job.Err())
	}
	return job.Result(), nil
}

// Job returns the in-memory job with the given ID, or nil.
func (m *Manager) Job(id string) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[id]
}

// InFlight returns the non-terminal job registered for a dedup key, or nil.
func (m *Manager) InFlight(dedupKey string) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending[dedupKey]
}

// Stop cancels all workers and waits for in-flight handlers to return.
// Jobs still pending remain persisted for the next process's resume pass.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
}

func (m *Manager) newJob(queue, key string, payload map[string]any, opts Options) *Job {
	if payload == nil {
		payload = map[string]any{}
	}
	retries := opts.MaxRetries
	if retries < 0 {
		retries = 0
	}
	delay := opts.Backoff
	if delay <= 0 {
		delay = time.Second
	}

	return &Job{
		ID:         uuid.New().String()[:8], // short ID for log readability
		Queue:      queue,
		DedupKey:   key,
		Payload:    payload,
		MaxRetries: retries,
		Backoff:    delay,
		policy:     backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(retries)),
		status:     StatusPending,
		done:       make(chan struct{}),
	}
}

// deliver hands the job to the consumer without blocking the caller when
// the channel is full. The wg.Add happens under the lock that Stop takes to
// set closed, so no goroutine starts once shutdown has begun.
func (m *Manager) deliver(c *consumer, job *Job) {
	select {
	case c.tasks <- job:
		return
	default:
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		select {
		case c.tasks <- job:
		case <-m.ctx.Done():
		}
	}()
}

func (m *Manager) workerLoop(c *consumer) {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case job := <-c.tasks:
			m.runJob(c, job)
		}
	}
}

func (m *Manager) runJob(c *consumer, job *Job) {
	job.mu.Lock()
	job.status = StatusRunning
	job.attempts++
	attempt := job.attempts
	job.mu.Unlock()

	m.persistStatus(job, string(StatusRunning), nil)

	start := time.Now()
	result, err := func() (res any, handlerErr error) {
		defer func() {
			if r := recover(); r != nil {
				handlerErr = fmt.Errorf("handler panic: %v", r)
			}
		}()
		return c.handler(m.ctx, job)
	}()
	took := time.Since(start)

	if err == nil {
		m.finish(job, StatusSucceeded, result, nil, took)
		return
	}

	if IsPermanent(err) {
		m.logger.Warn("job failed permanently", "queue", job.Queue, "job_id", job.ID, "attempt", attempt, "error", err)
		m.finish(job, StatusFailed, nil, err, took)
		return
	}

	next := job.policy.NextBackOff()
	if next == backoff.Stop {
		m.logger.Error("job exhausted retries", "queue", job.Queue, "job_id", job.ID, "attempts", attempt, "error", err)
		m.finish(job, StatusFailed, nil, err, took)
		return
	}

	job.mu.Lock()
	job.status = StatusPending
	job.lastErr = err
	job.mu.Unlock()

	m.emit(Event{Kind: EventRetrying, JobID: job.ID, Queue: job.Queue, DedupKey: job.DedupKey, Attempt: attempt, Duration: took, Err: err})
	m.persistStatus(job, string(StatusPending), err)
	m.logger.Warn("job retrying", "queue", job.Queue, "job_id", job.ID, "attempt", attempt, "delay", next, "error", err)

	time.AfterFunc(next, func() {
		m.mu.Lock()
		closed := m.closed
		m.mu.Unlock()
		if closed {
			return
		}
		m.deliver(c, job)
	})
}

func (m *Manager) finish(job *Job, status Status, result any, err error, took time.Duration) {
	job.mu.Lock()
	job.status = status
	job.result = result
	job.lastErr = err
	attempt := job.attempts
	close(job.done)
	job.mu.Unlock()

	m.mu.Lock()
	if m.pending[job.DedupKey] == job {
		delete(m.pending, job.DedupKey)
	}
	m.mu.Unlock()

	kind := EventSucceeded
	if status == StatusFailed {
		kind = EventFailed
	}
	m.emit(Event{Kind: kind, JobID: job.ID, Queue: job.Queue, DedupKey: job.DedupKey, Attempt: attempt, Duration: took, Err: err, Result: result})
	m.persistStatus(job, string(status), err)

	if status == StatusSucceeded {
		m.logger.Debug("job succeeded", "queue", job.Queue, "job_id", job.ID, "attempts", attempt)
	}
}

func (m *Manager) emit(ev Event) {
	m.mu.Lock()
	listeners := make([]func(Event), len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(ev)
	}
}

func (m *Manager) persistCreate(ctx context.Context, job *Job) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveQueueJob(ctx, job.ID, job.Queue, job.DedupKey, job.Payload, job.MaxRetries, job.Backoff.Milliseconds()); err != nil {
		m.logger.Warn("failed to persist queue job", "job_id", job.ID, "error", err)
	}
}

func (m *Manager) persistStatus(job *Job, status string, jobErr error) {
	if m.store == nil {
		return
	}
	var lastErr *string
	if jobErr != nil {
		s := jobErr.Error()
		lastErr = &s
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.store.UpdateQueueJobStatus(ctx, job.ID, status, job.Attempts(), lastErr); err != nil {
		m.logger.Warn("failed to persist job status", "job_id", job.ID, "status", status, "error", err)
	}
}
