package db

import (
	"context"
	"fmt"

	"github.com/gosh-sh/gosh-sub009/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// DaoBotInput holds the fields required to create a DAO bot record.
type DaoBotInput struct {
	ID      string
	Seed    string
	Pubkey  string
	Name    string
	DaoName string
	Version string
}

// CreateDaoBot inserts a new DAO bot record. The dao_name unique index
// rejects a second bot for the same DAO; callers get ErrAlreadyExists.
func (c *Client) CreateDaoBot(ctx context.Context, input DaoBotInput) (*models.DaoBot, error) {
	if input.Version == "" {
		input.Version = "v1"
	}

	results, err := surrealdb.Query[[]models.DaoBot](ctx, c.db, `
		CREATE type::record("dao_bot", $id) SET
			seed = $seed,
			pubkey = $pubkey,
			name = $name,
			dao_name = $dao_name,
			version = $version
		RETURN AFTER
	`, map[string]any{
		"id":       input.ID,
		"seed":     input.Seed,
		"pubkey":   input.Pubkey,
		"name":     input.Name,
		"dao_name": input.DaoName,
		"version":  input.Version,
	})
	if err != nil {
		return nil, fmt.Errorf("create dao bot: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("create dao bot: no result returned")
	}
	return &(*results)[0].Result[0], nil
}

// GetDaoBot retrieves a DAO bot by ID. Returns nil if not found.
func (c *Client) GetDaoBot(ctx context.Context, id string) (*models.DaoBot, error) {
	results, err := surrealdb.Query[[]models.DaoBot](ctx, c.db, `
		SELECT * FROM type::record("dao_bot", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get dao bot: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// GetDaoBotByDaoName retrieves the bot owning a DAO name. Returns nil if
// the DAO has not been seen yet.
func (c *Client) GetDaoBotByDaoName(ctx context.Context, daoName string) (*models.DaoBot, error) {
	results, err := surrealdb.Query[[]models.DaoBot](ctx, c.db, `
		SELECT * FROM dao_bot WHERE dao_name = $dao_name LIMIT 1
	`, map[string]any{"dao_name": daoName})
	if err != nil {
		return nil, fmt.Errorf("get dao bot by dao name: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// ListDaoBots returns every bot, newest first.
func (c *Client) ListDaoBots(ctx context.Context) ([]models.DaoBot, error) {
	results, err := surrealdb.Query[[]models.DaoBot](ctx, c.db, `
		SELECT * FROM dao_bot ORDER BY created_at DESC
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("list dao bots: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.DaoBot{}, nil
	}
	return (*results)[0].Result, nil
}

// ListUninitializedDaoBots returns bots whose bootstrap has not yet been
// confirmed end to end.
func (c *Client) ListUninitializedDaoBots(ctx context.Context) ([]models.DaoBot, error) {
	results, err := surrealdb.Query[[]models.DaoBot](ctx, c.db, `
		SELECT * FROM dao_bot WHERE initialized_at IS NONE
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("list uninitialized dao bots: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.DaoBot{}, nil
	}
	return (*results)[0].Result, nil
}

// SetDaoBotProfileAddr persists the confirmed profile address onto the bot
// record. Idempotent set-field update keyed by record id.
func (c *Client) SetDaoBotProfileAddr(ctx context.Context, id, addr string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("dao_bot", $id) SET profile_addr = $addr
	`, map[string]any{"id": id, "addr": addr})
	if err != nil {
		return fmt.Errorf("set dao bot profile addr: %w", err)
	}
	return nil
}

// SetDaoBotInitialized stamps initialized_at once. The WHERE clause keeps
// the timestamp monotonic: a concurrent or repeated bootstrap never moves it.
func (c *Client) SetDaoBotInitialized(ctx context.Context, id string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("dao_bot", $id) SET initialized_at = time::now()
		WHERE initialized_at IS NONE
	`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("set dao bot initialized: %w", err)
	}
	return nil
}
