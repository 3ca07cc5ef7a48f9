package db

import (
	"context"
	"fmt"

	"github.com/gosh-sh/gosh-sub009/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// SaveQueueJob persists a job row on enqueue. Best-effort: the queue
// manager logs and continues when this fails.
func (c *Client) SaveQueueJob(ctx context.Context, id, queue, dedupKey string, payload map[string]any, maxRetries int, backoffMS int64) error {
	if payload == nil {
		payload = map[string]any{}
	}

	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("queue_job", $id) SET
			queue = $queue,
			dedup_key = $dedup_key,
			payload = $payload,
			max_retries = $max_retries,
			backoff_ms = $backoff_ms,
			status = "pending"
	`, map[string]any{
		"id":          id,
		"queue":       queue,
		"dedup_key":   dedupKey,
		"payload":     payload,
		"max_retries": maxRetries,
		"backoff_ms":  backoffMS,
	})
	if err != nil {
		return fmt.Errorf("save queue job: %w", err)
	}
	return nil
}

// UpdateQueueJobStatus records a job state transition.
func (c *Client) UpdateQueueJobStatus(ctx context.Context, id, status string, attempts int, lastError *string) error {
	sql := `
		UPDATE type::record("queue_job", $id) SET
			status = $status,
			attempts = $attempts,
			last_error = $last_error
	`
	if status == "succeeded" || status == "failed" {
		sql = `
			UPDATE type::record("queue_job", $id) SET
				status = $status,
				attempts = $attempts,
				last_error = $last_error,
				finished_at = time::now()
		`
	}

	_, err := surrealdb.Query[any](ctx, c.db, sql, map[string]any{
		"id":         id,
		"status":     status,
		"attempts":   attempts,
		"last_error": lastError,
	})
	if err != nil {
		return fmt.Errorf("update queue job status: %w", err)
	}
	return nil
}

// ListIncompleteQueueJobs returns jobs that were pending or running when the
// previous process stopped. Used by the queue manager's startup resume.
func (c *Client) ListIncompleteQueueJobs(ctx context.Context) ([]models.QueueJob, error) {
	results, err := surrealdb.Query[[]models.QueueJob](ctx, c.db, `
		SELECT * FROM queue_job WHERE status IN ["pending", "running"]
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("list incomplete queue jobs: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.QueueJob{}, nil
	}
	return (*results)[0].Result, nil
}
