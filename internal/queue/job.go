// Package queue implements durable named job queues with deduplication,
// bounded retry on a fixed backoff, and lifecycle events. Handlers must be
// idempotent: delivery is at-least-once, and deduplication by key is the
// sole concurrency-safety mechanism callers get.
package queue

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Status represents the state of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// EventKind identifies a job lifecycle transition.
type EventKind string

const (
	EventEnqueued  EventKind = "enqueued"
	EventRetrying  EventKind = "retrying"
	EventSucceeded EventKind = "succeeded"
	EventFailed    EventKind = "failed"
)

// Event is emitted to manager listeners on every lifecycle transition.
type Event struct {
	Kind      EventKind
	JobID     string
	Queue     string
	DedupKey  string
	Attempt   int
	Coalesced bool          // enqueued events: call attached to a pending job
	Duration  time.Duration // handler run time of the attempt triggering the event
	Err       error
	Result    any
}

// ErrJobFailed wraps the handler error of a job that exhausted its retry
// budget or failed permanently.
var ErrJobFailed = errors.New("job failed")

// ErrUnknownQueue is returned when enqueueing onto a queue with no consumer.
var ErrUnknownQueue = errors.New("unknown queue")

// Job is one unit of queued work. Payloads stay small: a few identifying
// fields such as an address or an import id.
type Job struct {
	ID         string
	Queue      string
	DedupKey   string
	Payload    map[string]any
	MaxRetries int
	Backoff    time.Duration

	policy backoff.BackOff

	mu       sync.Mutex
	status   Status
	attempts int
	lastErr  error
	result   any
	done     chan struct{}
}

// Status returns the job's current state.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Attempts returns how many times the handler has run.
func (j *Job) Attempts() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.attempts
}

// Err returns the terminal error, or nil while non-terminal or succeeded.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastErr
}

// Result returns the handler result once the job succeeded.
func (j *Job) Result() any {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result
}

// Done returns a channel closed when the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// PayloadString extracts a string field from the payload.
func (j *Job) PayloadString(key string) (string, error) {
	v, ok := j.Payload[key]
	if !ok {
		return "", fmt.Errorf("payload missing %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("payload field %q is %T, want string", key, v)
	}
	return s, nil
}

// permanentError marks a handler error as non-retryable. The queue fails the
// job immediately instead of consuming the retry budget.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the queue will not retry the job. Used for data
// errors where re-running cannot help (invalid names, occupied DAOs).
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
