package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// Runner moves repository content from a source remote to a GOSH remote.
type Runner interface {
	Transfer(ctx context.Context, sourceURL, destURL string) error
}

// GitRunner transfers content with the git binary: a mirror clone of the
// source followed by a mirror push to the destination. The gosh remote
// helper on PATH handles the gosh:// scheme.
type GitRunner struct {
	binary  string
	workDir string
	logger  *slog.Logger
}

var _ Runner = (*GitRunner)(nil)

// NewGitRunner creates a runner using the given git binary and scratch root.
func NewGitRunner(binary, workDir string, logger *slog.Logger) *GitRunner {
	if binary == "" {
		binary = "git"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GitRunner{binary: binary, workDir: workDir, logger: logger}
}

// Transfer clones sourceURL as a mirror and pushes it to destURL. The
// scratch clone is removed before returning. Both steps are safe to repeat:
// a re-push of already-present refs is a no-op on the remote.
func (r *GitRunner) Transfer(ctx context.Context, sourceURL, destURL string) error {
	dir, err := os.MkdirTemp(r.workDir, "gosh-transfer-")
	if err != nil {
		return fmt.Errorf("scratch dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			r.logger.Warn("failed to remove transfer scratch dir", "dir", dir, "error", err)
		}
	}()

	if err := r.git(ctx, dir, "clone", "--mirror", sourceURL, "."); err != nil {
		return fmt.Errorf("mirror clone %s: %w", sourceURL, err)
	}
	if err := r.git(ctx, dir, "push", "--mirror", destURL); err != nil {
		return fmt.Errorf("mirror push to %s: %w", destURL, err)
	}
	return nil
}

// git runs one git command in dir, folding captured output into the error.
func (r *GitRunner) git(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Dir = dir

	out, err := cmd.CombinedOutput()
	if err != nil {
		trimmed := strings.TrimSpace(string(out))
		if trimmed != "" {
			return fmt.Errorf("git %s: %w: %s", args[0], err, trimmed)
		}
		return fmt.Errorf("git %s: %w", args[0], err)
	}
	r.logger.Debug("git command finished", "args", args)
	return nil
}
