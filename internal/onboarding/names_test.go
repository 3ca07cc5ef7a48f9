package onboarding

import (
	"strings"
	"testing"
)

func TestCheckDaoName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "acme", false},
		{"with digits", "acme2", false},
		{"with dash", "acme-corp", false},
		{"with underscore", "acme_corp", false},
		{"empty", "", true},
		{"uppercase", "Acme", true},
		{"leading dash", "-acme", true},
		{"trailing dash", "acme-", true},
		{"trailing underscore", "acme_", true},
		{"space", "acme corp", true},
		{"slash", "acme/corp", true},
		{"too long", strings.Repeat("a", 65), true},
		{"max length", strings.Repeat("a", 64), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckDaoName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckDaoName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestCheckRepoName(t *testing.T) {
	if err := CheckRepoName(strings.Repeat("r", 100)); err != nil {
		t.Errorf("100-char repo name should be valid, got %v", err)
	}
	if err := CheckRepoName(strings.Repeat("r", 101)); err == nil {
		t.Error("101-char repo name should be rejected")
	}
	if err := CheckRepoName("my.repo"); err == nil {
		t.Error("dot in repo name should be rejected")
	}
}

func TestSplitTarget(t *testing.T) {
	dao, repo, err := SplitTarget("acme/widgets")
	if err != nil {
		t.Fatalf("SplitTarget failed: %v", err)
	}
	if dao != "acme" || repo != "widgets" {
		t.Errorf("got (%q, %q), want (acme, widgets)", dao, repo)
	}

	for _, bad := range []string{"", "acme", "acme/", "/widgets", "a/b/c"} {
		if _, _, err := SplitTarget(bad); err == nil {
			t.Errorf("SplitTarget(%q) should fail", bad)
		}
	}
}
