package onboarding

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/gosh-sh/gosh-sub009/internal/models"
	"github.com/gosh-sh/gosh-sub009/internal/notify"
	"github.com/gosh-sh/gosh-sub009/internal/queue"
)

// UserQueueName is the final-onboarding notification queue.
const UserQueueName = "user-finalize"

// FinalizeStore is the record-store surface the finalizer needs.
type FinalizeStore interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListImportsByOwner(ctx context.Context, owner string) ([]models.RepoImport, error)
	SetUserOnboarded(ctx context.Context, id string) error
}

// Finalizer completes onboarding for users whose imports all reached a
// terminal state: it sends the completion notification and stamps the user
// record so later scans skip them.
type Finalizer struct {
	store    FinalizeStore
	q        *queue.Manager
	notifier notify.Notifier
	logger   *slog.Logger
}

// NewFinalizer creates the user finalizer.
func NewFinalizer(store FinalizeStore, q *queue.Manager, n notify.Notifier, logger *slog.Logger) *Finalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Finalizer{store: store, q: q, notifier: n, logger: logger}
}

// Register attaches the finalize handler to its queue.
func (f *Finalizer) Register(workers int) {
	f.q.Consume(UserQueueName, workers, f.HandleJob)
}

// HandleJob finalizes one user identified by email.
func (f *Finalizer) HandleJob(ctx context.Context, job *queue.Job) (any, error) {
	email, err := job.PayloadString("email")
	if err != nil {
		return nil, queue.Permanent(err)
	}
	return nil, f.Run(ctx, email)
}

// Run re-checks eligibility against the record store before acting: the
// scan that enqueued this job may be stale by the time a worker runs it.
func (f *Finalizer) Run(ctx context.Context, email string) error {
	user, err := f.store.GetUserByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return queue.Permanent(fmt.Errorf("user %s not found", email))
	}
	if user.OnboardedAt != nil {
		return nil
	}

	imports, err := f.store.ListImportsByOwner(ctx, email)
	if err != nil {
		return fmt.Errorf("list imports: %w", err)
	}

	completed := 0
	for _, imp := range imports {
		if !imp.Terminal() {
			// Not ready after all; a later scan will pick the user up again.
			f.logger.Debug("user not ready for finalization", "email", email)
			return nil
		}
		if imp.CompletedAt != nil {
			completed++
		}
	}
	if completed > 0 {
		f.notifier.Notify(ctx, email, notify.TemplateOnboardingComplete, map[string]string{
			"username":  user.Username,
			"completed": strconv.Itoa(completed),
		})
	}
	// When every import was dropped the per-import failure notifications
	// already told the user; the stamp below still closes out the record so
	// the scan stops revisiting them.

	if err := f.store.SetUserOnboarded(ctx, models.MustRecordIDString(user.ID)); err != nil {
		return fmt.Errorf("stamp onboarded: %w", err)
	}

	f.logger.Info("user onboarded", "email", email, "repos", completed)
	return nil
}
