package onboarding

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosh-sh/gosh-sub009/internal/models"
	"github.com/gosh-sh/gosh-sub009/internal/queue"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

func (s *fakeStore) addUser(id, email, username string) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &models.User{
		ID:       surrealmodels.RecordID{Table: "onboarding_user", ID: id},
		Email:    email,
		Username: username,
	}
	s.users[email] = u
	return u
}

func (s *fakeStore) ListImportsByOwner(ctx context.Context, owner string) ([]models.RepoImport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.RepoImport
	for _, imp := range s.imports {
		if imp.Owner == owner {
			out = append(out, *imp)
		}
	}
	return out, nil
}

func (s *fakeStore) SetUserOnboarded(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if models.MustRecordIDString(u.ID) == id && u.OnboardedAt == nil {
			now := time.Now()
			u.OnboardedAt = &now
		}
	}
	return nil
}

func newFinalizeFixture(t *testing.T) (*fakeStore, *captureNotifier, *Finalizer) {
	t.Helper()
	store := newFakeStore()
	notifier := &captureNotifier{}
	q := queue.NewManager(nil, nil)
	t.Cleanup(q.Stop)
	return store, notifier, NewFinalizer(store, q, notifier, nil)
}

func TestFinalizeCompletedUser(t *testing.T) {
	store, notifier, fin := newFinalizeFixture(t)
	store.addUser("u1", "dev@acme.io", "dev")
	now := time.Now()
	imp := store.addImport("i1", "b1", "dev@acme.io")
	imp.CompletedAt = &now

	require.NoError(t, fin.Run(context.Background(), "dev@acme.io"))

	assert.Equal(t, []string{"dev@acme.io|onboarding_complete"}, notifier.notifications())
	assert.NotNil(t, store.users["dev@acme.io"].OnboardedAt)
}

func TestFinalizeAllImportsDropped(t *testing.T) {
	store, notifier, fin := newFinalizeFixture(t)
	store.addUser("u1", "dev@acme.io", "dev")
	imp := store.addImport("i1", "b1", "dev@acme.io")
	imp.Ignore = true

	require.NoError(t, fin.Run(context.Background(), "dev@acme.io"))

	// No celebration, but the record is closed out.
	assert.Empty(t, notifier.notifications())
	assert.NotNil(t, store.users["dev@acme.io"].OnboardedAt)
}

func TestFinalizeNotReadyYet(t *testing.T) {
	store, notifier, fin := newFinalizeFixture(t)
	store.addUser("u1", "dev@acme.io", "dev")
	store.addImport("i1", "b1", "dev@acme.io") // still pending

	require.NoError(t, fin.Run(context.Background(), "dev@acme.io"))

	assert.Empty(t, notifier.notifications())
	assert.Nil(t, store.users["dev@acme.io"].OnboardedAt)
}

func TestFinalizeIdempotent(t *testing.T) {
	store, notifier, fin := newFinalizeFixture(t)
	store.addUser("u1", "dev@acme.io", "dev")
	now := time.Now()
	imp := store.addImport("i1", "b1", "dev@acme.io")
	imp.CompletedAt = &now

	require.NoError(t, fin.Run(context.Background(), "dev@acme.io"))
	require.NoError(t, fin.Run(context.Background(), "dev@acme.io"))

	// Second run saw the stamp and sent nothing.
	assert.Len(t, notifier.notifications(), 1)
}

func TestFinalizeUnknownUserIsPermanent(t *testing.T) {
	_, _, fin := newFinalizeFixture(t)

	err := fin.Run(context.Background(), "ghost@acme.io")
	require.Error(t, err)
	assert.True(t, queue.IsPermanent(err))
}
