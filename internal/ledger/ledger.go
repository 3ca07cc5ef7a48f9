// Package ledger is the boundary to the GOSH blockchain node. Submission is
// fire-and-forget: a successful submit only means the node accepted the
// operation, and truth is established by querying state until the effect
// becomes visible.
package ledger

import (
	"context"
	"log/slog"
)

// AccountStatus classifies the on-chain state of an address.
type AccountStatus string

const (
	StatusActive          AccountStatus = "active"
	StatusDeploying       AccountStatus = "deploying"
	StatusPendingApproval AccountStatus = "pending_approval"
	StatusRejected        AccountStatus = "rejected"
)

// State is the queried view of one on-chain account.
type State struct {
	Address string        `json:"address"`
	Kind    string        `json:"kind"` // profile | dao | wallet | repository
	Status  AccountStatus `json:"status"`
	Members []string      `json:"members,omitempty"` // DAO membership usernames
	Reason  string        `json:"reason,omitempty"`  // set on rejected
}

// OpKind identifies a submit operation.
type OpKind string

const (
	OpDeployProfile OpKind = "deploy_profile"
	OpDeployDao     OpKind = "deploy_dao"
	OpTurnOnWallet  OpKind = "turn_on_wallet"
	OpDeployRepo    OpKind = "deploy_repository"
)

// Credentials sign a submit operation.
type Credentials struct {
	Pubkey string
	Seed   string
}

// Client is the query/submit boundary the orchestrator depends on.
type Client interface {
	// QueryState returns the state of an address, or (nil, nil) when the
	// address does not exist on the ledger.
	QueryState(ctx context.Context, address string) (*State, error)

	// SubmitOperation submits an operation. Acceptance does not imply the
	// effect is visible; callers confirm via QueryState.
	SubmitOperation(ctx context.Context, kind OpKind, params map[string]string, creds Credentials) error
}

// BestEffortSubmit submits an operation and deliberately swallows the error.
// It is never authoritative: the caller's subsequent confirmation poll is
// the actual correctness check, so a lost or duplicate submission here is
// re-established there.
func BestEffortSubmit(ctx context.Context, c Client, logger *slog.Logger, kind OpKind, params map[string]string, creds Credentials) {
	if err := c.SubmitOperation(ctx, kind, params, creds); err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("best-effort submit failed", "kind", kind, "error", err)
	}
}
