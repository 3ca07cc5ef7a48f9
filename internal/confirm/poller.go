// Package confirm converts "I submitted an operation whose effect becomes
// visible asynchronously" into "the effect is now visible, or I give up".
// It rides on the job queue: one confirmation is one job on a dedicated
// queue whose retry/backoff budget is the polling schedule, and whose dedup
// key coalesces concurrent waiters onto a single poll sequence.
package confirm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/gosh-sh/gosh-sub009/internal/ledger"
	"github.com/gosh-sh/gosh-sub009/internal/queue"
)

// QueueName is the dedicated confirmation queue.
const QueueName = "confirm"

// ErrConfirmationTimeout signals the expectation did not become visible
// within the attempts x delay budget.
var ErrConfirmationTimeout = errors.New("confirmation timeout")

// errNotYetVisible makes the queue retry the poll. Internal only.
var errNotYetVisible = errors.New("not yet visible")

// ExpectationKind enumerates the closed set of conditions the poller can
// verify. Decided once at the call site, never inspected ad hoc downstream.
type ExpectationKind string

const (
	ExpectExists       ExpectationKind = "exists"
	ExpectMember       ExpectationKind = "member"
	ExpectWalletActive ExpectationKind = "wallet_active"
	ExpectRepoReady    ExpectationKind = "repo_ready"
)

// Expectation is one ledger-visible condition on an address.
type Expectation struct {
	Kind    ExpectationKind
	Address string
	Member  string // only for ExpectMember
}

// Exists expects the address to be present on the ledger.
func Exists(address string) Expectation {
	return Expectation{Kind: ExpectExists, Address: address}
}

// Member expects username to appear in the DAO's membership set.
func Member(address, username string) Expectation {
	return Expectation{Kind: ExpectMember, Address: address, Member: username}
}

// WalletActive expects the wallet account to be active.
func WalletActive(address string) Expectation {
	return Expectation{Kind: ExpectWalletActive, Address: address}
}

// RepoReady expects the repository account to be active.
func RepoReady(address string) Expectation {
	return Expectation{Kind: ExpectRepoReady, Address: address}
}

// Holds reports whether the queried state satisfies the expectation.
// A nil state (address absent) satisfies nothing.
func (e Expectation) Holds(s *ledger.State) bool {
	if s == nil {
		return false
	}
	switch e.Kind {
	case ExpectExists:
		return true
	case ExpectMember:
		return slices.Contains(s.Members, e.Member)
	case ExpectWalletActive, ExpectRepoReady:
		return s.Status == ledger.StatusActive
	default:
		return false
	}
}

// Poller waits for ledger-visible effects with a bounded poll budget.
type Poller struct {
	q        *queue.Manager
	ledger   ledger.Client
	attempts int
	delay    time.Duration
	logger   *slog.Logger
}

// NewPoller creates a poller issuing at most attempts queries, delay apart.
func NewPoller(q *queue.Manager, lc ledger.Client, attempts int, delay time.Duration, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if attempts < 1 {
		attempts = 1
	}
	return &Poller{q: q, ledger: lc, attempts: attempts, delay: delay, logger: logger}
}

// Register attaches the poller's handler to the confirmation queue.
// Must be called once before Wait.
func (p *Poller) Register(workers int) {
	p.q.Consume(QueueName, workers, p.handle)
}

// Wait blocks until the expectation holds on the ledger or the poll budget
// is exhausted (ErrConfirmationTimeout). Two concurrent callers with the
// same key attach to the same in-flight confirmation job.
//
// Callers should check the condition directly first: Wait is only for
// genuinely pending transitions.
func (p *Poller) Wait(ctx context.Context, key string, exp Expectation) (*ledger.State, error) {
	payload := map[string]any{
		"kind":    string(exp.Kind),
		"address": exp.Address,
	}
	if exp.Member != "" {
		payload["member"] = exp.Member
	}

	job, coalesced, err := p.q.Enqueue(ctx, QueueName, payload, queue.Options{
		DedupKey:   key,
		MaxRetries: p.attempts - 1,
		Backoff:    p.delay,
	})
	if err != nil {
		return nil, fmt.Errorf("enqueue confirmation: %w", err)
	}
	if coalesced {
		p.logger.Debug("attached to in-flight confirmation", "key", key)
	}

	result, err := p.q.Wait(ctx, job)
	if err != nil {
		if errors.Is(err, queue.ErrJobFailed) {
			return nil, fmt.Errorf("%w: %s (%s on %s)", ErrConfirmationTimeout, key, exp.Kind, exp.Address)
		}
		return nil, err
	}

	state, ok := result.(*ledger.State)
	if !ok {
		return nil, fmt.Errorf("confirmation %s: unexpected result type %T", key, result)
	}
	return state, nil
}

// handle issues one bounded ledger query per attempt.
func (p *Poller) handle(ctx context.Context, job *queue.Job) (any, error) {
	exp, err := expectationFromPayload(job)
	if err != nil {
		return nil, queue.Permanent(err)
	}

	queryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	state, err := p.ledger.QueryState(queryCtx, exp.Address)
	if err != nil {
		// Infrastructure error: retry on the same budget as invisibility.
		return nil, fmt.Errorf("confirmation query: %w", err)
	}

	if !exp.Holds(state) {
		return nil, fmt.Errorf("%w: %s on %s", errNotYetVisible, exp.Kind, exp.Address)
	}
	return state, nil
}

func expectationFromPayload(job *queue.Job) (Expectation, error) {
	kind, err := job.PayloadString("kind")
	if err != nil {
		return Expectation{}, err
	}
	address, err := job.PayloadString("address")
	if err != nil {
		return Expectation{}, err
	}
	exp := Expectation{Kind: ExpectationKind(kind), Address: address}
	if member, ok := job.Payload["member"].(string); ok {
		exp.Member = member
	}
	return exp, nil
}
