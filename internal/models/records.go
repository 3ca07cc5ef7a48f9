// Package models defines data structures for the GOSH onboarding record store.
package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// DaoBot is the automated agent that performs provisioning operations on
// behalf of one DAO's import batch. Created on first sight of an import
// referencing an unknown DAO; never deleted.
type DaoBot struct {
	ID            surrealmodels.RecordID `json:"id"`
	Seed          string                 `json:"seed"`
	Pubkey        string                 `json:"pubkey"`
	Name          string                 `json:"name"`
	DaoName       string                 `json:"dao_name"`
	ProfileAddr   *string                `json:"profile_addr,omitempty"`
	InitializedAt *time.Time             `json:"initialized_at,omitempty"`
	Version       string                 `json:"version"`
	CreatedAt     time.Time              `json:"created_at,omitempty"`
}

// Initialized reports whether bootstrap has confirmed every stage for this bot.
// The record store, not queue dedup, is the authority for this check.
func (b *DaoBot) Initialized() bool {
	return b.InitializedAt != nil
}

// RepoImport is the unit of work representing one externally-sourced
// repository to be provisioned and transferred. It is never deleted and
// acts as the resumability checkpoint for the pipeline.
type RepoImport struct {
	ID          surrealmodels.RecordID  `json:"id"`
	SourceURL   string                  `json:"source_url"`
	Target      string                  `json:"target"` // "<dao>/<repo>"
	DaoBot      *surrealmodels.RecordID `json:"dao_bot,omitempty"`
	Owner       string                  `json:"owner"` // user email
	SizeUnits   *int                    `json:"size_units,omitempty"`
	Ignore      bool                    `json:"ignore"`
	Resolution  *string                 `json:"resolution,omitempty"`
	CompletedAt *time.Time              `json:"completed_at,omitempty"`
	CreatedAt   time.Time               `json:"created_at,omitempty"`
	UpdatedAt   time.Time               `json:"updated_at,omitempty"`
}

// Terminal reports whether the import reached one of its two terminal
// states (permanently ignored or transferred). Terminal imports never
// revert.
func (r *RepoImport) Terminal() bool {
	return r.Ignore || r.CompletedAt != nil
}

// User is an onboarding user awaiting final notification once every one of
// their imports reaches a terminal state.
type User struct {
	ID          surrealmodels.RecordID `json:"id"`
	Email       string                 `json:"email"`
	Username    string                 `json:"username"`
	OnboardedAt *time.Time             `json:"onboarded_at,omitempty"`
}

// QueueJob is the persisted form of a queue job, written best-effort by the
// queue manager for durability and startup resume.
type QueueJob struct {
	ID         surrealmodels.RecordID `json:"id"`
	Queue      string                 `json:"queue"`
	DedupKey   string                 `json:"dedup_key"`
	Payload    map[string]any         `json:"payload,omitempty"`
	Attempts   int                    `json:"attempts"`
	MaxRetries int                    `json:"max_retries"`
	BackoffMS  int64                  `json:"backoff_ms"`
	Status     string                 `json:"status"`
	LastError  *string                `json:"last_error,omitempty"`
	CreatedAt  time.Time              `json:"created_at,omitempty"`
	FinishedAt *time.Time             `json:"finished_at,omitempty"`
}
