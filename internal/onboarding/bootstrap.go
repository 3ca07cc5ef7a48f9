// Package onboarding drives the DAO bot bootstrap: identity, DAO container,
// operating rights, and the fan-out of per-repository provisioning work.
// Every stage is gated by an "already true?" check against the ledger or the
// record store, so the whole sequence can be re-run from the top after any
// failure.
package onboarding

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/gosh-sh/gosh-sub009/internal/confirm"
	"github.com/gosh-sh/gosh-sub009/internal/ledger"
	"github.com/gosh-sh/gosh-sub009/internal/models"
	"github.com/gosh-sh/gosh-sub009/internal/notify"
	"github.com/gosh-sh/gosh-sub009/internal/queue"
	"github.com/gosh-sh/gosh-sub009/internal/sizer"
)

// QueueName is the bootstrap job queue.
const QueueName = "daobot-bootstrap"

// Store is the record-store surface bootstrap needs.
type Store interface {
	GetDaoBot(ctx context.Context, id string) (*models.DaoBot, error)
	SetDaoBotProfileAddr(ctx context.Context, id, addr string) error
	SetDaoBotInitialized(ctx context.Context, id string) error
	ListPendingImportsForBot(ctx context.Context, botID string) ([]models.RepoImport, error)
	MarkImportIgnored(ctx context.Context, id, resolution string) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// Confirmer waits for a ledger-visible effect. Satisfied by confirm.Poller.
type Confirmer interface {
	Wait(ctx context.Context, key string, exp confirm.Expectation) (*ledger.State, error)
}

// Service runs the bootstrap state machine as a queue consumer.
type Service struct {
	store    Store
	ledger   ledger.Client
	confirm  Confirmer
	q        *queue.Manager
	notifier notify.Notifier
	logger   *slog.Logger

	jobRetries int
	jobBackoff queue.Options
}

// NewService creates the bootstrap service.
func NewService(store Store, lc ledger.Client, cf Confirmer, q *queue.Manager, n notify.Notifier, fanOut queue.Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      store,
		ledger:     lc,
		confirm:    cf,
		q:          q,
		notifier:   n,
		logger:     logger,
		jobBackoff: fanOut,
	}
}

// Register attaches the bootstrap handler to its queue.
func (s *Service) Register(workers int) {
	s.q.Consume(QueueName, workers, s.HandleJob)
}

// HandleJob unpacks the bot id and runs the state machine.
func (s *Service) HandleJob(ctx context.Context, job *queue.Job) (any, error) {
	id, err := job.PayloadString("id")
	if err != nil {
		return nil, queue.Permanent(err)
	}
	return nil, s.Run(ctx, id)
}

// Run executes the bootstrap stages for one DAO bot. Transient errors
// propagate and the enclosing job re-runs the whole sequence; permanent
// data problems mark the bot's imports ignored and stop for good.
func (s *Service) Run(ctx context.Context, botID string) error {
	bot, err := s.store.GetDaoBot(ctx, botID)
	if err != nil {
		return fmt.Errorf("load dao bot: %w", err)
	}
	if bot == nil {
		return queue.Permanent(fmt.Errorf("dao bot %s not found", botID))
	}

	// The record store, not queue dedup, decides whether bootstrap already
	// ran: independent scan cycles can enqueue this bot again at any time.
	if bot.Initialized() {
		s.logger.Debug("dao bot already initialized", "bot", botID)
		return nil
	}

	log := s.logger.With("bot", botID, "dao", bot.DaoName)
	creds := ledger.Credentials{Pubkey: bot.Pubkey, Seed: bot.Seed}

	// Stage 1: identity. The submission is best-effort by design; the
	// confirmation poll is the correctness check.
	profileAddr := ledger.DeriveProfileAddress(bot.Name)
	profile, err := s.ledger.QueryState(ctx, profileAddr)
	if err != nil {
		return fmt.Errorf("query profile: %w", err)
	}
	if profile == nil {
		log.Info("deploying profile", "addr", profileAddr)
		ledger.BestEffortSubmit(ctx, s.ledger, log, ledger.OpDeployProfile, map[string]string{
			"name":   bot.Name,
			"pubkey": bot.Pubkey,
		}, creds)
		if _, err := s.confirm.Wait(ctx, "profile:"+profileAddr, confirm.Exists(profileAddr)); err != nil {
			return fmt.Errorf("confirm profile: %w", err)
		}
	}

	// Stage 2: persist the confirmed address onto the record.
	if bot.ProfileAddr == nil || *bot.ProfileAddr != profileAddr {
		if err := s.store.SetDaoBotProfileAddr(ctx, botID, profileAddr); err != nil {
			return fmt.Errorf("link profile addr: %w", err)
		}
	}

	// Stage 3: name validation. A bad DAO name is a data problem, not a
	// transient one: drop the batch and stop without retry.
	if err := CheckDaoName(bot.DaoName); err != nil {
		log.Warn("dao name rejected", "error", err)
		if dropErr := s.dropImports(ctx, bot, fmt.Sprintf("DAO name rejected: %v", err), nil); dropErr != nil {
			return dropErr
		}
		return queue.Permanent(err)
	}

	// Stage 4: DAO container.
	daoAddr := ledger.DeriveDaoAddress(bot.DaoName)
	dao, err := s.ledger.QueryState(ctx, daoAddr)
	if err != nil {
		return fmt.Errorf("query dao: %w", err)
	}
	if dao == nil {
		log.Info("deploying dao", "addr", daoAddr)
		ledger.BestEffortSubmit(ctx, s.ledger, log, ledger.OpDeployDao, map[string]string{
			"name":    bot.DaoName,
			"creator": profileAddr,
		}, creds)
		dao, err = s.confirm.Wait(ctx, "dao:"+daoAddr, confirm.Exists(daoAddr))
		if err != nil {
			return fmt.Errorf("confirm dao: %w", err)
		}
	}

	// Stage 5: membership. Joining a DAO that already has other members
	// cannot be done automatically; that needs human consent.
	if !slices.Contains(dao.Members, bot.Name) {
		if others := membersExcluding(dao.Members, bot.Name); len(others) > 0 {
			log.Warn("dao occupied by other members", "members", others)
			reason := fmt.Sprintf("DAO %q already has members %v; cannot join automatically", bot.DaoName, others)
			if dropErr := s.dropImports(ctx, bot, reason, others); dropErr != nil {
				return dropErr
			}
			return queue.Permanent(fmt.Errorf("dao %s occupied", bot.DaoName))
		}
		// Freshly deployed DAO: membership materializes asynchronously.
		if _, err := s.confirm.Wait(ctx, "dao-member:"+daoAddr+":"+bot.Name, confirm.Member(daoAddr, bot.Name)); err != nil {
			return fmt.Errorf("confirm dao membership: %w", err)
		}
	}

	// Stage 6: operating rights on the wallet.
	walletAddr := ledger.DeriveWalletAddress(daoAddr, profileAddr)
	wallet, err := s.ledger.QueryState(ctx, walletAddr)
	if err != nil {
		return fmt.Errorf("query wallet: %w", err)
	}
	if wallet == nil || wallet.Status != ledger.StatusActive {
		log.Info("granting wallet rights", "addr", walletAddr)
		ledger.BestEffortSubmit(ctx, s.ledger, log, ledger.OpTurnOnWallet, map[string]string{
			"wallet": walletAddr,
			"pubkey": bot.Pubkey,
		}, creds)
		if _, err := s.confirm.Wait(ctx, "wallet:"+walletAddr, confirm.WalletActive(walletAddr)); err != nil {
			return fmt.Errorf("confirm wallet: %w", err)
		}
	}

	// Stage 7: fan out one sizing job per incomplete import. Dedup by
	// import id keeps work already in flight from an earlier attempt from
	// being enqueued twice.
	imports, err := s.store.ListPendingImportsForBot(ctx, botID)
	if err != nil {
		return fmt.Errorf("list pending imports: %w", err)
	}
	for _, imp := range imports {
		impID := models.MustRecordIDString(imp.ID)
		opts := s.jobBackoff
		opts.DedupKey = "import:" + impID
		if _, _, err := s.q.Enqueue(ctx, sizer.QueueName, map[string]any{"id": impID}, opts); err != nil {
			return fmt.Errorf("enqueue sizing for %s: %w", impID, err)
		}
	}
	log.Info("bootstrap fan-out complete", "imports", len(imports))

	// Stamp last: once set, bootstrap is never re-run for this bot, so
	// everything above (including fan-out) must already have happened.
	if err := s.store.SetDaoBotInitialized(ctx, botID); err != nil {
		return fmt.Errorf("stamp initialized: %w", err)
	}

	log.Info("dao bot bootstrapped")
	return nil
}

// dropImports marks every pending import of the bot ignored and notifies
// each distinct owner once. When skipUsernames is non-nil, owners whose
// username appears in it are not notified (they are already DAO members).
func (s *Service) dropImports(ctx context.Context, bot *models.DaoBot, reason string, skipUsernames []string) error {
	botID := models.MustRecordIDString(bot.ID)
	imports, err := s.store.ListPendingImportsForBot(ctx, botID)
	if err != nil {
		return fmt.Errorf("list imports to drop: %w", err)
	}

	notified := make(map[string]bool)
	for _, imp := range imports {
		impID := models.MustRecordIDString(imp.ID)
		if err := s.store.MarkImportIgnored(ctx, impID, reason); err != nil {
			return fmt.Errorf("ignore import %s: %w", impID, err)
		}

		if notified[imp.Owner] {
			continue
		}
		notified[imp.Owner] = true

		if skipUsernames != nil {
			user, err := s.store.GetUserByEmail(ctx, imp.Owner)
			if err != nil {
				s.logger.Warn("failed to load user for notification", "owner", imp.Owner, "error", err)
			} else if user != nil && slices.Contains(skipUsernames, user.Username) {
				continue
			}
		}

		template := notify.TemplateImportDropped
		if skipUsernames != nil {
			template = notify.TemplateDaoConflict
		}
		s.notifier.Notify(ctx, imp.Owner, template, map[string]string{
			"dao":    bot.DaoName,
			"reason": reason,
		})
	}

	s.logger.Info("imports dropped", "bot", botID, "count", len(imports), "reason", reason)
	return nil
}

func membersExcluding(members []string, name string) []string {
	out := make([]string, 0, len(members))
	for _, m := range members {
		if m != name {
			out = append(out, m)
		}
	}
	return out
}
