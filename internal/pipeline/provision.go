package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gosh-sh/gosh-sub009/internal/confirm"
	"github.com/gosh-sh/gosh-sub009/internal/ledger"
	"github.com/gosh-sh/gosh-sub009/internal/models"
	"github.com/gosh-sh/gosh-sub009/internal/notify"
	"github.com/gosh-sh/gosh-sub009/internal/onboarding"
	"github.com/gosh-sh/gosh-sub009/internal/queue"
	"github.com/gosh-sh/gosh-sub009/internal/sizer"
)

// Store is the record-store surface provisioning needs.
type Store interface {
	GetRepoImport(ctx context.Context, id string) (*models.RepoImport, error)
	GetDaoBot(ctx context.Context, id string) (*models.DaoBot, error)
	MarkImportIgnored(ctx context.Context, id, resolution string) error
	SetImportCompleted(ctx context.Context, id string) error
}

// Confirmer waits for a ledger-visible effect. Satisfied by confirm.Poller.
type Confirmer interface {
	Wait(ctx context.Context, key string, exp confirm.Expectation) (*ledger.State, error)
}

// Service consumes provisioning jobs from the three tier queues. One handler
// serves all tiers; the tiers only differ in worker pool width.
type Service struct {
	store    Store
	ledger   ledger.Client
	confirm  Confirmer
	runner   Runner
	q        *queue.Manager
	notifier notify.Notifier
	logger   *slog.Logger

	deployTimeout time.Duration
}

// NewService creates the provisioning service. deployTimeout is the hard
// wall-clock bound on a single deploy-and-confirm attempt.
func NewService(store Store, lc ledger.Client, cf Confirmer, r Runner, q *queue.Manager, n notify.Notifier, deployTimeout time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:         store,
		ledger:        lc,
		confirm:       cf,
		runner:        r,
		q:             q,
		notifier:      n,
		logger:        logger,
		deployTimeout: deployTimeout,
	}
}

// Register attaches the handler to the tier queues with per-tier pool widths.
func (s *Service) Register(small, medium, large int) {
	s.q.Consume(sizer.TierSmall.Queue(), small, s.HandleJob)
	s.q.Consume(sizer.TierMedium.Queue(), medium, s.HandleJob)
	s.q.Consume(sizer.TierLarge.Queue(), large, s.HandleJob)
}

// HandleJob provisions one import identified by record id.
func (s *Service) HandleJob(ctx context.Context, job *queue.Job) (any, error) {
	id, err := job.PayloadString("id")
	if err != nil {
		return nil, queue.Permanent(err)
	}
	return nil, s.Run(ctx, id)
}

// Run carries one import from "sized" to "transferred". Every step checks
// its postcondition before acting, so a retry after a crash resumes at the
// first step whose effect is not yet visible. Once the repository account is
// already active, Run skips straight to the content transfer.
func (s *Service) Run(ctx context.Context, importID string) error {
	imp, err := s.store.GetRepoImport(ctx, importID)
	if err != nil {
		return fmt.Errorf("load import: %w", err)
	}
	if imp == nil {
		return queue.Permanent(fmt.Errorf("import %s not found", importID))
	}
	if imp.Terminal() {
		s.logger.Debug("import already terminal, skipping provisioning", "import", importID)
		return nil
	}
	if imp.DaoBot == nil {
		return queue.Permanent(fmt.Errorf("import %s has no dao bot", importID))
	}

	bot, err := s.store.GetDaoBot(ctx, models.MustRecordIDString(*imp.DaoBot))
	if err != nil {
		return fmt.Errorf("load dao bot: %w", err)
	}
	if bot == nil {
		return queue.Permanent(fmt.Errorf("import %s references missing dao bot", importID))
	}
	if bot.ProfileAddr == nil {
		// Bootstrap has not confirmed the identity yet; this job should not
		// exist. Re-dispatch happens from the scan once it has.
		return queue.Permanent(fmt.Errorf("dao bot %s has no confirmed profile", bot.Name))
	}

	_, repoName, err := onboarding.SplitTarget(imp.Target)
	if err != nil {
		return s.drop(ctx, imp, fmt.Sprintf("malformed target: %v", err), err)
	}
	if err := onboarding.CheckRepoName(repoName); err != nil {
		return s.drop(ctx, imp, fmt.Sprintf("repository name rejected: %v", err), err)
	}

	log := s.logger.With("import", importID, "dao", bot.DaoName, "repo", repoName)
	repoAddr := ledger.DeriveRepoAddress(bot.DaoName, repoName)

	state, err := s.ledger.QueryState(ctx, repoAddr)
	if err != nil {
		return fmt.Errorf("query repository: %w", err)
	}

	outcome := ClassifyState(state)
	if outcome == OutcomeAbsent {
		log.Info("deploying repository", "addr", repoAddr)
		ledger.BestEffortSubmit(ctx, s.ledger, log, ledger.OpDeployRepo, map[string]string{
			"dao":  bot.DaoName,
			"name": repoName,
		}, ledger.Credentials{Pubkey: bot.Pubkey, Seed: bot.Seed})
		outcome = OutcomeDeploying
	}

	if outcome == OutcomeDeploying {
		// Hard wall-clock bound on one deploy attempt. On expiry the whole
		// job retries and the precondition checks above make that cheap.
		deployCtx, cancel := context.WithTimeout(ctx, s.deployTimeout)
		state, err = s.confirm.Wait(deployCtx, "repo:"+repoAddr, confirm.RepoReady(repoAddr))
		cancel()
		if err != nil {
			if errors.Is(err, confirm.ErrConfirmationTimeout) || errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("repository %s not ready in time: %w", repoAddr, err)
			}
			return fmt.Errorf("confirm repository: %w", err)
		}
		outcome = ClassifyState(state)
	}

	switch outcome {
	case OutcomeReady:
		// fall through to transfer
	case OutcomeWaitingApproval:
		// Success for this job: the import stays non-terminal and the scan
		// re-dispatches it until the approval resolves either way.
		log.Info("repository waiting for approval", "addr", repoAddr)
		return nil
	case OutcomeRejected:
		reason := "repository deploy rejected"
		if state != nil && state.Reason != "" {
			reason = fmt.Sprintf("repository deploy rejected: %s", state.Reason)
		}
		return s.drop(ctx, imp, reason, errors.New(reason))
	default:
		return fmt.Errorf("repository %s in unexpected state %s", repoAddr, outcome)
	}

	destURL := fmt.Sprintf("gosh://%s/%s", bot.DaoName, repoName)
	log.Info("transferring content", "source", imp.SourceURL, "dest", destURL)
	if err := s.runner.Transfer(ctx, imp.SourceURL, destURL); err != nil {
		return fmt.Errorf("transfer content: %w", err)
	}

	if err := s.store.SetImportCompleted(ctx, importID); err != nil {
		return fmt.Errorf("stamp completed: %w", err)
	}

	log.Info("import provisioned")
	return nil
}

// drop moves the import into its ignored terminal state, tells the owner,
// and stops the job for good.
func (s *Service) drop(ctx context.Context, imp *models.RepoImport, reason string, cause error) error {
	importID := models.MustRecordIDString(imp.ID)
	if err := s.store.MarkImportIgnored(ctx, importID, reason); err != nil {
		return fmt.Errorf("ignore import %s: %w", importID, err)
	}
	s.notifier.Notify(ctx, imp.Owner, notify.TemplateImportDropped, map[string]string{
		"target": imp.Target,
		"reason": reason,
	})
	s.logger.Warn("import dropped", "import", importID, "reason", reason)
	return queue.Permanent(cause)
}
