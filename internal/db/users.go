package db

import (
	"context"
	"fmt"

	"github.com/gosh-sh/gosh-sub009/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// UpsertUser creates or refreshes an onboarding user keyed by email.
// The onboarded_at stamp is preserved on update.
func (c *Client) UpsertUser(ctx context.Context, email, username string) (*models.User, error) {
	results, err := surrealdb.Query[[]models.User](ctx, c.db, `
		UPSERT onboarding_user SET
			email = $email,
			username = $username
		WHERE email = $email
		RETURN AFTER
	`, map[string]any{"email": email, "username": username})
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("upsert user: no result returned")
	}
	return &(*results)[0].Result[0], nil
}

// GetUserByEmail retrieves a user. Returns nil if not found.
func (c *Client) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	results, err := surrealdb.Query[[]models.User](ctx, c.db, `
		SELECT * FROM onboarding_user WHERE email = $email LIMIT 1
	`, map[string]any{"email": email})
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// ListUsersAwaitingOnboarding returns users without a final onboarding stamp.
// Whether all their imports are terminal is decided by the caller.
func (c *Client) ListUsersAwaitingOnboarding(ctx context.Context) ([]models.User, error) {
	results, err := surrealdb.Query[[]models.User](ctx, c.db, `
		SELECT * FROM onboarding_user WHERE onboarded_at IS NONE
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("list users awaiting onboarding: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.User{}, nil
	}
	return (*results)[0].Result, nil
}

// SetUserOnboarded stamps the final onboarding timestamp once.
func (c *Client) SetUserOnboarded(ctx context.Context, id string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("onboarding_user", $id) SET onboarded_at = time::now()
		WHERE onboarded_at IS NONE
	`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("set user onboarded: %w", err)
	}
	return nil
}
