package ledger

import (
	"fmt"

	"github.com/zeebo/blake3"
)

// Addresses are pure functions of logical names: the orchestrator can decide
// "does X exist" before ever submitting anything, which is what makes every
// bootstrap stage idempotent-checkable.

func derive(parts ...string) string {
	h := blake3.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	sum := h.Sum(nil)
	return fmt.Sprintf("0:%x", sum)
}

// DeriveProfileAddress computes the identity address of a named profile.
func DeriveProfileAddress(name string) string {
	return derive("profile", name)
}

// DeriveDaoAddress computes the DAO container address for a DAO name.
func DeriveDaoAddress(daoName string) string {
	return derive("dao", daoName)
}

// DeriveWalletAddress computes the operating wallet address of a profile
// within a DAO.
func DeriveWalletAddress(daoAddr, profileAddr string) string {
	return derive("wallet", daoAddr, profileAddr)
}

// DeriveRepoAddress computes the repository address inside a DAO.
func DeriveRepoAddress(daoName, repoName string) string {
	return derive("repository", daoName, repoName)
}
