package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/gosh-sh/gosh-sub009/internal/models"
)

// ResumeStore extends Store with the query used at startup.
type ResumeStore interface {
	Store
	ListIncompleteQueueJobs(ctx context.Context) ([]models.QueueJob, error)
}

// ResumePending re-registers jobs that were pending or running when the
// previous process stopped. Handlers are idempotent, so replaying a job
// whose work partially happened is safe: each stage re-checks the record
// store before mutating anything.
func (m *Manager) ResumePending(ctx context.Context) error {
	rs, ok := m.store.(ResumeStore)
	if m.store == nil || !ok {
		return nil
	}

	rows, err := rs.ListIncompleteQueueJobs(ctx)
	if err != nil {
		return fmt.Errorf("list incomplete jobs: %w", err)
	}

	if len(rows) == 0 {
		m.logger.Info("no incomplete jobs to resume")
		return nil
	}

	m.logger.Info("resuming incomplete jobs", "count", len(rows))

	resumed := 0
	for _, row := range rows {
		id, err := models.RecordIDString(row.ID)
		if err != nil {
			m.logger.Warn("failed to read job row ID", "error", err)
			continue
		}

		m.mu.Lock()
		c, registered := m.queues[row.Queue]
		_, inFlight := m.pending[row.DedupKey]
		if !registered || inFlight {
			m.mu.Unlock()
			if !registered {
				m.logger.Warn("skipping job for unregistered queue", "queue", row.Queue, "job_id", id)
			}
			continue
		}

		job := m.newJob(row.Queue, row.DedupKey, row.Payload, Options{
			DedupKey:   row.DedupKey,
			MaxRetries: row.MaxRetries,
			Backoff:    time.Duration(row.BackoffMS) * time.Millisecond,
		})
		// Keep the persisted row ID so status updates land on the same row.
		job.ID = id
		m.jobs[job.ID] = job
		m.pending[job.DedupKey] = job
		m.mu.Unlock()

		m.deliver(c, job)
		resumed++
		m.logger.Info("job resumed", "queue", row.Queue, "job_id", id, "dedup_key", row.DedupKey)
	}

	m.logger.Info("job resume complete", "resumed", resumed, "skipped", len(rows)-resumed)
	return nil
}
