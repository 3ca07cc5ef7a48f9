package db

import (
	"context"
	"fmt"

	"github.com/gosh-sh/gosh-sub009/internal/models"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// RepoImportInput holds the fields required to create an import record.
type RepoImportInput struct {
	ID        string
	SourceURL string
	Target    string // "<dao>/<repo>"
	Owner     string
}

// CreateRepoImport inserts a new import record with default flags.
func (c *Client) CreateRepoImport(ctx context.Context, input RepoImportInput) (*models.RepoImport, error) {
	results, err := surrealdb.Query[[]models.RepoImport](ctx, c.db, `
		CREATE type::record("repo_import", $id) SET
			source_url = $source_url,
			target = $target,
			owner = $owner
		RETURN AFTER
	`, map[string]any{
		"id":         input.ID,
		"source_url": input.SourceURL,
		"target":     input.Target,
		"owner":      input.Owner,
	})
	if err != nil {
		return nil, fmt.Errorf("create repo import: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("create repo import: no result returned")
	}
	return &(*results)[0].Result[0], nil
}

// GetRepoImport retrieves an import by ID. Returns nil if not found.
func (c *Client) GetRepoImport(ctx context.Context, id string) (*models.RepoImport, error) {
	results, err := surrealdb.Query[[]models.RepoImport](ctx, c.db, `
		SELECT * FROM type::record("repo_import", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get repo import: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// ListRepoImports returns every import, newest first.
func (c *Client) ListRepoImports(ctx context.Context) ([]models.RepoImport, error) {
	results, err := surrealdb.Query[[]models.RepoImport](ctx, c.db, `
		SELECT * FROM repo_import ORDER BY created_at DESC
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("list repo imports: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.RepoImport{}, nil
	}
	return (*results)[0].Result, nil
}

// ListImportsWithoutBot returns non-ignored imports not yet linked to a bot.
// These are the "newly observed" imports the scan trigger picks up.
func (c *Client) ListImportsWithoutBot(ctx context.Context) ([]models.RepoImport, error) {
	results, err := surrealdb.Query[[]models.RepoImport](ctx, c.db, `
		SELECT * FROM repo_import WHERE dao_bot IS NONE AND ignore = false
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("list imports without bot: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.RepoImport{}, nil
	}
	return (*results)[0].Result, nil
}

// ListPendingImportsForBot returns the bot's imports that are still
// non-terminal (not ignored, not completed).
func (c *Client) ListPendingImportsForBot(ctx context.Context, botID string) ([]models.RepoImport, error) {
	results, err := surrealdb.Query[[]models.RepoImport](ctx, c.db, `
		SELECT * FROM repo_import
		WHERE dao_bot = type::record("dao_bot", $bot)
			AND ignore = false
			AND completed_at IS NONE
	`, map[string]any{"bot": botID})
	if err != nil {
		return nil, fmt.Errorf("list pending imports for bot: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.RepoImport{}, nil
	}
	return (*results)[0].Result, nil
}

// ListPendingLinkedImports returns non-terminal imports already linked to a
// bot. The pending-work scan uses these to re-dispatch provisioning that a
// crash or an unresolved approval left behind.
func (c *Client) ListPendingLinkedImports(ctx context.Context) ([]models.RepoImport, error) {
	results, err := surrealdb.Query[[]models.RepoImport](ctx, c.db, `
		SELECT * FROM repo_import
		WHERE dao_bot IS NOT NONE
			AND ignore = false
			AND completed_at IS NONE
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("list pending linked imports: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.RepoImport{}, nil
	}
	return (*results)[0].Result, nil
}

// ListImportsByOwner returns every import belonging to one user.
func (c *Client) ListImportsByOwner(ctx context.Context, owner string) ([]models.RepoImport, error) {
	results, err := surrealdb.Query[[]models.RepoImport](ctx, c.db, `
		SELECT * FROM repo_import WHERE owner = $owner
	`, map[string]any{"owner": owner})
	if err != nil {
		return nil, fmt.Errorf("list imports by owner: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.RepoImport{}, nil
	}
	return (*results)[0].Result, nil
}

// SetImportBot links an import to its owning DAO bot.
func (c *Client) SetImportBot(ctx context.Context, id, botID string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("repo_import", $id) SET
			dao_bot = type::record("dao_bot", $bot),
			updated_at = time::now()
	`, map[string]any{"id": id, "bot": botID})
	if err != nil {
		return fmt.Errorf("set import bot: %w", err)
	}
	return nil
}

// SetImportSize persists a measured unit count.
func (c *Client) SetImportSize(ctx context.Context, id string, units int) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("repo_import", $id) SET
			size_units = $units,
			updated_at = time::now()
	`, map[string]any{"id": id, "units": units})
	if err != nil {
		return fmt.Errorf("set import size: %w", err)
	}
	return nil
}

// MarkImportIgnored moves an import into its permanent-failure terminal
// state, recording the diagnostic resolution. Already-completed imports are
// left untouched so a terminal state never reverts.
func (c *Client) MarkImportIgnored(ctx context.Context, id, resolution string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("repo_import", $id) SET
			ignore = true,
			resolution = $resolution,
			updated_at = time::now()
		WHERE completed_at IS NONE
	`, map[string]any{"id": id, "resolution": resolution})
	if err != nil {
		return fmt.Errorf("mark import ignored: %w", err)
	}
	return nil
}

// SetImportCompleted stamps the completion timestamp. Ignored imports are
// excluded so the two terminal states stay mutually exclusive.
func (c *Client) SetImportCompleted(ctx context.Context, id string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("repo_import", $id) SET
			completed_at = time::now(),
			updated_at = time::now()
		WHERE ignore = false
	`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("set import completed: %w", err)
	}
	return nil
}

// BotRecordID builds a dao_bot record reference for linking.
func BotRecordID(id string) surrealmodels.RecordID {
	return surrealmodels.RecordID{Table: "dao_bot", ID: id}
}
