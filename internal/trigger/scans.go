package trigger

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gosh-sh/gosh-sub009/internal/db"
	"github.com/gosh-sh/gosh-sub009/internal/models"
	"github.com/gosh-sh/gosh-sub009/internal/notify"
	"github.com/gosh-sh/gosh-sub009/internal/onboarding"
	"github.com/gosh-sh/gosh-sub009/internal/queue"
	"github.com/gosh-sh/gosh-sub009/internal/sizer"
)

// Store is the record-store surface the scans need.
type Store interface {
	ListImportsWithoutBot(ctx context.Context) ([]models.RepoImport, error)
	ListPendingLinkedImports(ctx context.Context) ([]models.RepoImport, error)
	ListUninitializedDaoBots(ctx context.Context) ([]models.DaoBot, error)
	ListUsersAwaitingOnboarding(ctx context.Context) ([]models.User, error)
	ListImportsByOwner(ctx context.Context, owner string) ([]models.RepoImport, error)
	GetDaoBot(ctx context.Context, id string) (*models.DaoBot, error)
	GetDaoBotByDaoName(ctx context.Context, daoName string) (*models.DaoBot, error)
	CreateDaoBot(ctx context.Context, input db.DaoBotInput) (*models.DaoBot, error)
	SetImportBot(ctx context.Context, id, botID string) error
	MarkImportIgnored(ctx context.Context, id, resolution string) error
	UpsertUser(ctx context.Context, email, username string) (*models.User, error)
}

// Health gates scanning on node liveness. Satisfied by ledger.BlockWatcher.
type Health interface {
	Healthy(maxAge time.Duration) bool
}

// Scans holds the three periodic producers: new imports, pending work, and
// ready users.
type Scans struct {
	store    Store
	q        *queue.Manager
	health   Health
	notifier notify.Notifier
	logger   *slog.Logger

	jobOpts    queue.Options
	staleAfter time.Duration
}

// NewScans creates the scan set. health may be nil to disable the liveness
// gate; staleAfter is the block age beyond which scans are skipped.
func NewScans(store Store, q *queue.Manager, health Health, n notify.Notifier, jobOpts queue.Options, staleAfter time.Duration, logger *slog.Logger) *Scans {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scans{
		store:      store,
		q:          q,
		health:     health,
		notifier:   n,
		logger:     logger,
		jobOpts:    jobOpts,
		staleAfter: staleAfter,
	}
}

// Schedulers builds one scheduler per scan, all on the same interval.
func (s *Scans) Schedulers(interval time.Duration) []*Scheduler {
	return []*Scheduler{
		NewScheduler("new-imports", interval, s.ScanNewImports, s.logger),
		NewScheduler("pending-work", interval, s.ScanPendingWork, s.logger),
		NewScheduler("ready-users", interval, s.ScanReadyUsers, s.logger),
	}
}

// live reports whether the node looks alive enough to bother scanning.
func (s *Scans) live() bool {
	if s.health == nil {
		return true
	}
	if !s.health.Healthy(s.staleAfter) {
		s.logger.Warn("block stream stale, skipping scan", "max_age", s.staleAfter)
		return false
	}
	return true
}

// ScanNewImports adopts imports that have no bot yet: it registers the
// owner, creates or finds the DAO's bot, links the import, and enqueues
// the bot's bootstrap.
func (s *Scans) ScanNewImports(ctx context.Context) error {
	if !s.live() {
		return nil
	}

	imports, err := s.store.ListImportsWithoutBot(ctx)
	if err != nil {
		return fmt.Errorf("list unlinked imports: %w", err)
	}

	for _, imp := range imports {
		impID := models.MustRecordIDString(imp.ID)

		daoName, _, err := onboarding.SplitTarget(imp.Target)
		if err != nil {
			reason := fmt.Sprintf("malformed target: %v", err)
			if igErr := s.store.MarkImportIgnored(ctx, impID, reason); igErr != nil {
				return fmt.Errorf("ignore malformed import %s: %w", impID, igErr)
			}
			s.notifier.Notify(ctx, imp.Owner, notify.TemplateImportDropped, map[string]string{
				"target": imp.Target,
				"reason": reason,
			})
			continue
		}

		if _, err := s.store.UpsertUser(ctx, imp.Owner, usernameFromEmail(imp.Owner)); err != nil {
			return fmt.Errorf("register owner %s: %w", imp.Owner, err)
		}

		bot, err := s.botForDao(ctx, daoName)
		if err != nil {
			return fmt.Errorf("bot for dao %s: %w", daoName, err)
		}
		botID := models.MustRecordIDString(bot.ID)

		if err := s.store.SetImportBot(ctx, impID, botID); err != nil {
			return fmt.Errorf("link import %s: %w", impID, err)
		}

		if _, _, err := s.q.Enqueue(ctx, onboarding.QueueName, map[string]any{"id": botID}, s.jobOpts); err != nil {
			return fmt.Errorf("enqueue bootstrap for %s: %w", botID, err)
		}
		s.logger.Info("import adopted", "import", impID, "dao", daoName, "bot", botID)
	}
	return nil
}

// ScanPendingWork re-dispatches work that survived a restart or is waiting
// on an external resolution: uninitialized bots go back to bootstrap, and
// non-terminal imports of initialized bots go back to triage.
func (s *Scans) ScanPendingWork(ctx context.Context) error {
	if !s.live() {
		return nil
	}

	bots, err := s.store.ListUninitializedDaoBots(ctx)
	if err != nil {
		return fmt.Errorf("list uninitialized bots: %w", err)
	}
	for _, bot := range bots {
		botID := models.MustRecordIDString(bot.ID)
		if _, _, err := s.q.Enqueue(ctx, onboarding.QueueName, map[string]any{"id": botID}, s.jobOpts); err != nil {
			return fmt.Errorf("re-enqueue bootstrap for %s: %w", botID, err)
		}
	}

	imports, err := s.store.ListPendingLinkedImports(ctx)
	if err != nil {
		return fmt.Errorf("list pending imports: %w", err)
	}

	initialized := make(map[string]bool)
	for _, imp := range imports {
		botID := models.MustRecordIDString(*imp.DaoBot)
		ready, seen := initialized[botID]
		if !seen {
			bot, err := s.store.GetDaoBot(ctx, botID)
			if err != nil {
				return fmt.Errorf("load bot %s: %w", botID, err)
			}
			ready = bot != nil && bot.Initialized()
			initialized[botID] = ready
		}
		if !ready {
			// Still covered by the bootstrap re-enqueue above; its own
			// fan-out will reach this import.
			continue
		}

		impID := models.MustRecordIDString(imp.ID)
		opts := s.jobOpts
		opts.DedupKey = "import:" + impID
		if _, _, err := s.q.Enqueue(ctx, sizer.QueueName, map[string]any{"id": impID}, opts); err != nil {
			return fmt.Errorf("re-enqueue sizing for %s: %w", impID, err)
		}
	}
	return nil
}

// ScanReadyUsers finds users whose imports all reached a terminal state and
// enqueues their finalization.
func (s *Scans) ScanReadyUsers(ctx context.Context) error {
	if !s.live() {
		return nil
	}

	users, err := s.store.ListUsersAwaitingOnboarding(ctx)
	if err != nil {
		return fmt.Errorf("list awaiting users: %w", err)
	}

	for _, user := range users {
		imports, err := s.store.ListImportsByOwner(ctx, user.Email)
		if err != nil {
			return fmt.Errorf("list imports of %s: %w", user.Email, err)
		}
		if len(imports) == 0 || !allTerminal(imports) {
			continue
		}

		opts := s.jobOpts
		opts.DedupKey = "finalize:" + user.Email
		if _, _, err := s.q.Enqueue(ctx, onboarding.UserQueueName, map[string]any{"email": user.Email}, opts); err != nil {
			return fmt.Errorf("enqueue finalize for %s: %w", user.Email, err)
		}
	}
	return nil
}

// botForDao returns the DAO's bot, creating it with a fresh identity on
// first sight. The unique dao_name index arbitrates a race between two
// concurrent creations.
func (s *Scans) botForDao(ctx context.Context, daoName string) (*models.DaoBot, error) {
	bot, err := s.store.GetDaoBotByDaoName(ctx, daoName)
	if err != nil {
		return nil, err
	}
	if bot != nil {
		return bot, nil
	}

	seed, pubkey, err := newBotIdentity()
	if err != nil {
		return nil, fmt.Errorf("generate identity: %w", err)
	}

	bot, err = s.store.CreateDaoBot(ctx, db.DaoBotInput{
		ID:      uuid.New().String(),
		Seed:    seed,
		Pubkey:  pubkey,
		Name:    daoName + "-bot",
		DaoName: daoName,
	})
	if err == nil {
		s.logger.Info("dao bot created", "dao", daoName)
		return bot, nil
	}
	if errors.Is(err, db.ErrAlreadyExists) {
		// Lost the race; the winner's bot serves this DAO.
		return s.store.GetDaoBotByDaoName(ctx, daoName)
	}
	return nil, err
}

// newBotIdentity generates a signing identity for a new bot. The ed25519
// seed doubles as the stored secret; the public key is what the ledger
// sees.
func newBotIdentity() (seed, pubkey string, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", err
	}
	return hex.EncodeToString(priv.Seed()), hex.EncodeToString(pub), nil
}

func usernameFromEmail(email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return strings.ToLower(email[:at])
	}
	return strings.ToLower(email)
}

func allTerminal(imports []models.RepoImport) bool {
	for _, imp := range imports {
		if !imp.Terminal() {
			return false
		}
	}
	return true
}
