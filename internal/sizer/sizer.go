// Package sizer measures repositories before provisioning and routes each
// import to a tier-specific queue. Size is counted in addressable git
// objects: commits, trees, blobs, and annotated tags.
package sizer

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/gosh-sh/gosh-sub009/internal/models"
	"github.com/gosh-sh/gosh-sub009/internal/notify"
	"github.com/gosh-sh/gosh-sub009/internal/queue"
)

// QueueName is the triage queue the bootstrap fan-out feeds.
const QueueName = "repo-size"

// Tier is a provisioning size class. Each tier has its own queue so wide
// small-repo pools and narrow large-repo pools can drain independently.
type Tier string

const (
	TierSmall  Tier = "small"
	TierMedium Tier = "medium"
	TierLarge  Tier = "large"
)

// Queue returns the provisioning queue name for the tier.
func (t Tier) Queue() string {
	return "repo-" + string(t)
}

// Classify maps a unit count onto a tier given the two thresholds.
func Classify(units, smallMax, mediumMax int) Tier {
	switch {
	case units <= smallMax:
		return TierSmall
	case units <= mediumMax:
		return TierMedium
	default:
		return TierLarge
	}
}

// Store is the record-store surface the sizer needs.
type Store interface {
	GetRepoImport(ctx context.Context, id string) (*models.RepoImport, error)
	SetImportSize(ctx context.Context, id string, units int) error
	MarkImportIgnored(ctx context.Context, id, resolution string) error
}

// Measurer counts the addressable objects of a remote repository.
type Measurer interface {
	Measure(ctx context.Context, url string) (int, error)
}

// Service consumes triage jobs, measures, records, and dispatches.
type Service struct {
	store    Store
	measurer Measurer
	q        *queue.Manager
	notifier notify.Notifier
	logger   *slog.Logger

	smallMax  int
	mediumMax int
	jobOpts   queue.Options
}

// NewService creates the triage sizer. smallMax and mediumMax are the upper
// unit bounds of the small and medium tiers; dispatch is the retry policy
// stamped onto the provisioning jobs it enqueues.
func NewService(store Store, m Measurer, q *queue.Manager, n notify.Notifier, smallMax, mediumMax int, dispatch queue.Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		measurer:  m,
		q:         q,
		notifier:  n,
		logger:    logger,
		smallMax:  smallMax,
		mediumMax: mediumMax,
		jobOpts:   dispatch,
	}
}

// Register attaches the sizing handler to the triage queue.
func (s *Service) Register(workers int) {
	s.q.Consume(QueueName, workers, s.HandleJob)
}

// HandleJob sizes one import identified by record id.
func (s *Service) HandleJob(ctx context.Context, job *queue.Job) (any, error) {
	id, err := job.PayloadString("id")
	if err != nil {
		return nil, queue.Permanent(err)
	}
	return nil, s.Run(ctx, id)
}

// Run measures the import and enqueues it on its tier queue. A previously
// recorded measurement above the medium threshold is trusted as-is: repos
// only grow, and re-cloning a known-large repo just to reconfirm "large"
// wastes the widest bandwidth the orchestrator spends anywhere.
func (s *Service) Run(ctx context.Context, importID string) error {
	imp, err := s.store.GetRepoImport(ctx, importID)
	if err != nil {
		return fmt.Errorf("load import: %w", err)
	}
	if imp == nil {
		return queue.Permanent(fmt.Errorf("import %s not found", importID))
	}
	if imp.Terminal() {
		s.logger.Debug("import already terminal, skipping triage", "import", importID)
		return nil
	}

	log := s.logger.With("import", importID, "url", imp.SourceURL)

	var units int
	if imp.SizeUnits != nil && *imp.SizeUnits > s.mediumMax {
		units = *imp.SizeUnits
		log.Debug("reusing recorded size", "units", units)
	} else {
		units, err = s.measurer.Measure(ctx, imp.SourceURL)
		if err != nil {
			// An unmeasurable source will not become provisionable either.
			reason := fmt.Sprintf("source repository could not be measured: %v", err)
			log.Warn("sizing failed, dropping import", "error", err)
			if igErr := s.store.MarkImportIgnored(ctx, importID, reason); igErr != nil {
				return fmt.Errorf("ignore unmeasurable import: %w", igErr)
			}
			s.notifier.Notify(ctx, imp.Owner, notify.TemplateImportDropped, map[string]string{
				"target": imp.Target,
				"reason": reason,
			})
			return queue.Permanent(err)
		}
		if err := s.store.SetImportSize(ctx, importID, units); err != nil {
			return fmt.Errorf("record size: %w", err)
		}
	}

	tier := Classify(units, s.smallMax, s.mediumMax)
	opts := s.jobOpts
	opts.DedupKey = "provision:" + importID
	if _, _, err := s.q.Enqueue(ctx, tier.Queue(), map[string]any{"id": importID}, opts); err != nil {
		return fmt.Errorf("enqueue provisioning: %w", err)
	}

	log.Info("import triaged", "units", units, "tier", tier)
	return nil
}

// GitMeasurer measures by a bare clone into a scratch directory.
type GitMeasurer struct {
	workDir string
	logger  *slog.Logger
}

var _ Measurer = (*GitMeasurer)(nil)

// NewGitMeasurer creates a measurer cloning under workDir.
func NewGitMeasurer(workDir string, logger *slog.Logger) *GitMeasurer {
	if logger == nil {
		logger = slog.Default()
	}
	return &GitMeasurer{workDir: workDir, logger: logger}
}

// Measure clones url bare and counts its objects. The clone directory is
// removed before returning.
func (m *GitMeasurer) Measure(ctx context.Context, url string) (int, error) {
	dir, err := os.MkdirTemp(m.workDir, "gosh-sizing-")
	if err != nil {
		return 0, fmt.Errorf("scratch dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			m.logger.Warn("failed to remove sizing scratch dir", "dir", dir, "error", err)
		}
	}()

	repo, err := git.PlainCloneContext(ctx, dir, true, &git.CloneOptions{
		URL:        url,
		NoCheckout: true,
	})
	if err != nil {
		return 0, fmt.Errorf("clone %s: %w", url, err)
	}

	iter, err := repo.Objects()
	if err != nil {
		return 0, fmt.Errorf("iterate objects: %w", err)
	}
	defer iter.Close()

	count := 0
	err = iter.ForEach(func(object.Object) error {
		count++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count objects: %w", err)
	}
	return count, nil
}
