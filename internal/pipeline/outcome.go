// Package pipeline provisions repositories on the GOSH ledger and transfers
// their content. Jobs arrive on tier queues fed by the triage sizer, so
// small repositories never wait behind large ones.
package pipeline

import "github.com/gosh-sh/gosh-sub009/internal/ledger"

// Outcome is the closed set of states a repository account can be in after
// a deploy attempt. Every branch of the pipeline is decided here, once.
type Outcome string

const (
	// OutcomeAbsent means the address does not exist yet.
	OutcomeAbsent Outcome = "absent"
	// OutcomeDeploying means the deploy was accepted and is materializing.
	OutcomeDeploying Outcome = "deploying"
	// OutcomeReady means the account is active and can receive content.
	OutcomeReady Outcome = "ready"
	// OutcomeWaitingApproval means a DAO vote or manual approval gates the
	// repository. Not an error and not terminal: a later scan retries.
	OutcomeWaitingApproval Outcome = "waiting_approval"
	// OutcomeRejected means the deploy was refused. Terminal.
	OutcomeRejected Outcome = "rejected"
)

// ClassifyState maps a queried account state onto an outcome.
func ClassifyState(s *ledger.State) Outcome {
	if s == nil {
		return OutcomeAbsent
	}
	switch s.Status {
	case ledger.StatusActive:
		return OutcomeReady
	case ledger.StatusPendingApproval:
		return OutcomeWaitingApproval
	case ledger.StatusRejected:
		return OutcomeRejected
	default:
		return OutcomeDeploying
	}
}
