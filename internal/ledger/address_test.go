package ledger

import (
	"strings"
	"testing"
)

func TestDerivedAddressesAreDeterministic(t *testing.T) {
	if DeriveProfileAddress("acme-bot") != DeriveProfileAddress("acme-bot") {
		t.Error("Same profile name must derive the same address")
	}
	if DeriveRepoAddress("acme", "widgets") != DeriveRepoAddress("acme", "widgets") {
		t.Error("Same dao/repo pair must derive the same address")
	}
}

func TestDerivedAddressesAreDistinct(t *testing.T) {
	addrs := map[string]string{
		"profile":    DeriveProfileAddress("acme"),
		"dao":        DeriveDaoAddress("acme"),
		"repo":       DeriveRepoAddress("acme", "widgets"),
		"other repo": DeriveRepoAddress("acme", "gadgets"),
		"other dao":  DeriveRepoAddress("emca", "widgets"),
	}

	seen := make(map[string]string)
	for name, addr := range addrs {
		if prev, ok := seen[addr]; ok {
			t.Errorf("%s and %s derived the same address %s", name, prev, addr)
		}
		seen[addr] = name
	}
}

func TestFieldBoundariesDoNotCollide(t *testing.T) {
	// Concatenation ambiguity: ("ab","c") must not equal ("a","bc").
	if DeriveWalletAddress("ab", "c") == DeriveWalletAddress("a", "bc") {
		t.Error("Adjacent fields collide without separation")
	}
}

func TestAddressFormat(t *testing.T) {
	addr := DeriveDaoAddress("acme")
	if !strings.HasPrefix(addr, "0:") {
		t.Errorf("Expected '0:' prefix, got %s", addr)
	}
	if len(addr) != 2+64 {
		t.Errorf("Expected 32-byte hex digest, got length %d", len(addr))
	}
}
