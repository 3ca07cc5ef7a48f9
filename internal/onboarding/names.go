package onboarding

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	maxDaoNameLen  = 64
	maxRepoNameLen = 100
)

// namePattern matches the characters GOSH accepts in DAO and repository
// names. Notably no slashes, spaces, or uppercase.
var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// CheckDaoName validates a DAO name. The returned error message is shown to
// users in drop notifications, so it names the offending input.
func CheckDaoName(name string) error {
	return checkName("DAO", name, maxDaoNameLen)
}

// CheckRepoName validates a repository name.
func CheckRepoName(name string) error {
	return checkName("repository", name, maxRepoNameLen)
}

func checkName(kind, name string, maxLen int) error {
	if name == "" {
		return fmt.Errorf("%s name is empty", kind)
	}
	if len(name) > maxLen {
		return fmt.Errorf("%s name %q exceeds %d characters", kind, name, maxLen)
	}
	if name != strings.ToLower(name) {
		return fmt.Errorf("%s name %q must be lowercase", kind, name)
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%s name %q contains invalid characters (allowed: a-z, 0-9, '-', '_')", kind, name)
	}
	if strings.HasSuffix(name, "-") || strings.HasSuffix(name, "_") {
		return fmt.Errorf("%s name %q must not end with a separator", kind, name)
	}
	return nil
}

// SplitTarget splits an import target "dao/repo" into its components.
func SplitTarget(target string) (dao, repo string, err error) {
	parts := strings.Split(target, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("target %q is not of the form dao/repo", target)
	}
	return parts[0], parts[1], nil
}
