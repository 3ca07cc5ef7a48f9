package onboarding

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosh-sh/gosh-sub009/internal/confirm"
	"github.com/gosh-sh/gosh-sub009/internal/ledger"
	"github.com/gosh-sh/gosh-sub009/internal/models"
	"github.com/gosh-sh/gosh-sub009/internal/notify"
	"github.com/gosh-sh/gosh-sub009/internal/queue"
	"github.com/gosh-sh/gosh-sub009/internal/sizer"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// fakeStore is an in-memory onboarding.Store.
type fakeStore struct {
	mu      sync.Mutex
	bots    map[string]*models.DaoBot
	imports map[string]*models.RepoImport
	users   map[string]*models.User
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		bots:    make(map[string]*models.DaoBot),
		imports: make(map[string]*models.RepoImport),
		users:   make(map[string]*models.User),
	}
}

func (s *fakeStore) addBot(id, name, daoName string) *models.DaoBot {
	s.mu.Lock()
	defer s.mu.Unlock()
	bot := &models.DaoBot{
		ID:      surrealmodels.RecordID{Table: "dao_bot", ID: id},
		Name:    name,
		DaoName: daoName,
		Pubkey:  "pk-" + id,
		Seed:    "seed-" + id,
	}
	s.bots[id] = bot
	return bot
}

func (s *fakeStore) addImport(id, botID, owner string) *models.RepoImport {
	s.mu.Lock()
	defer s.mu.Unlock()
	rid := surrealmodels.RecordID{Table: "dao_bot", ID: botID}
	imp := &models.RepoImport{
		ID:     surrealmodels.RecordID{Table: "repo_import", ID: id},
		DaoBot: &rid,
		Owner:  owner,
		Target: "acme/" + id,
	}
	s.imports[id] = imp
	return imp
}

func (s *fakeStore) GetDaoBot(ctx context.Context, id string) (*models.DaoBot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bot, ok := s.bots[id]
	if !ok {
		return nil, nil
	}
	cp := *bot
	return &cp, nil
}

func (s *fakeStore) SetDaoBotProfileAddr(ctx context.Context, id, addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bots[id].ProfileAddr = &addr
	return nil
}

func (s *fakeStore) SetDaoBotInitialized(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bots[id].InitializedAt == nil {
		now := time.Now()
		s.bots[id].InitializedAt = &now
	}
	return nil
}

func (s *fakeStore) ListPendingImportsForBot(ctx context.Context, botID string) ([]models.RepoImport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.RepoImport
	for _, imp := range s.imports {
		if imp.DaoBot != nil && models.MustRecordIDString(*imp.DaoBot) == botID && !imp.Terminal() {
			out = append(out, *imp)
		}
	}
	return out, nil
}

func (s *fakeStore) MarkImportIgnored(ctx context.Context, id, resolution string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	imp := s.imports[id]
	if imp.CompletedAt == nil {
		imp.Ignore = true
		imp.Resolution = &resolution
	}
	return nil
}

func (s *fakeStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[email]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

// fakeLedger serves states from a map and records submissions.
type fakeLedger struct {
	mu       sync.Mutex
	states   map[string]*ledger.State
	submits  []ledger.OpKind
	queries  int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{states: make(map[string]*ledger.State)}
}

func (l *fakeLedger) set(addr string, s *ledger.State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states[addr] = s
}

func (l *fakeLedger) QueryState(ctx context.Context, address string) (*ledger.State, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queries++
	return l.states[address], nil
}

func (l *fakeLedger) SubmitOperation(ctx context.Context, kind ledger.OpKind, params map[string]string, creds ledger.Credentials) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.submits = append(l.submits, kind)
	return nil
}

func (l *fakeLedger) submitted() []ledger.OpKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ledger.OpKind, len(l.submits))
	copy(out, l.submits)
	return out
}

// fakeConfirmer resolves waits from a key-indexed map.
type fakeConfirmer struct {
	mu      sync.Mutex
	results map[string]*ledger.State
	calls   []string
}

func newFakeConfirmer() *fakeConfirmer {
	return &fakeConfirmer{results: make(map[string]*ledger.State)}
}

func (c *fakeConfirmer) resolve(key string, s *ledger.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[key] = s
}

func (c *fakeConfirmer) Wait(ctx context.Context, key string, exp confirm.Expectation) (*ledger.State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, key)
	if s, ok := c.results[key]; ok {
		return s, nil
	}
	return nil, confirm.ErrConfirmationTimeout
}

// captureNotifier records notifications.
type captureNotifier struct {
	mu    sync.Mutex
	sent  []string // "user|template"
}

func (n *captureNotifier) Notify(ctx context.Context, user string, template notify.TemplateKind, params map[string]string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, user+"|"+string(template))
}

func (n *captureNotifier) notifications() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.sent))
	copy(out, n.sent)
	return out
}

type bootstrapFixture struct {
	store    *fakeStore
	ledger   *fakeLedger
	confirm  *fakeConfirmer
	notifier *captureNotifier
	q        *queue.Manager
	svc      *Service
	sized    chan string
}

func newBootstrapFixture(t *testing.T) *bootstrapFixture {
	t.Helper()

	f := &bootstrapFixture{
		store:    newFakeStore(),
		ledger:   newFakeLedger(),
		confirm:  newFakeConfirmer(),
		notifier: &captureNotifier{},
		q:        queue.NewManager(nil, nil),
		sized:    make(chan string, 16),
	}
	t.Cleanup(f.q.Stop)

	// Capture the sizing fan-out.
	f.q.Consume(sizer.QueueName, 2, func(ctx context.Context, job *queue.Job) (any, error) {
		id, err := job.PayloadString("id")
		if err != nil {
			return nil, err
		}
		f.sized <- id
		return nil, nil
	})

	f.svc = NewService(f.store, f.ledger, f.confirm, f.q, f.notifier, queue.Options{}, nil)
	return f
}

func (f *bootstrapFixture) drainSized(t *testing.T, want int) []string {
	t.Helper()
	var out []string
	for i := 0; i < want; i++ {
		select {
		case id := <-f.sized:
			out = append(out, id)
		case <-time.After(2 * time.Second):
			t.Fatalf("expected %d sizing jobs, got %d", want, len(out))
		}
	}
	return out
}

func TestBootstrapFreshBot(t *testing.T) {
	f := newBootstrapFixture(t)
	bot := f.store.addBot("b1", "acme-bot", "acme")
	f.store.addImport("i1", "b1", "dev@acme.io")
	f.store.addImport("i2", "b1", "dev@acme.io")

	profileAddr := ledger.DeriveProfileAddress(bot.Name)
	daoAddr := ledger.DeriveDaoAddress(bot.DaoName)
	walletAddr := ledger.DeriveWalletAddress(daoAddr, profileAddr)

	f.confirm.resolve("profile:"+profileAddr, &ledger.State{Address: profileAddr, Status: ledger.StatusActive})
	f.confirm.resolve("dao:"+daoAddr, &ledger.State{Address: daoAddr, Status: ledger.StatusActive, Members: []string{}})
	f.confirm.resolve("dao-member:"+daoAddr+":"+bot.Name, &ledger.State{Address: daoAddr, Members: []string{bot.Name}})
	f.confirm.resolve("wallet:"+walletAddr, &ledger.State{Address: walletAddr, Status: ledger.StatusActive})

	require.NoError(t, f.svc.Run(context.Background(), "b1"))

	assert.Equal(t, []ledger.OpKind{ledger.OpDeployProfile, ledger.OpDeployDao, ledger.OpTurnOnWallet}, f.ledger.submitted())

	got, err := f.store.GetDaoBot(context.Background(), "b1")
	require.NoError(t, err)
	require.NotNil(t, got.ProfileAddr)
	assert.Equal(t, profileAddr, *got.ProfileAddr)
	assert.True(t, got.Initialized())

	sized := f.drainSized(t, 2)
	assert.ElementsMatch(t, []string{"i1", "i2"}, sized)
}

func TestBootstrapAlreadyInitialized(t *testing.T) {
	f := newBootstrapFixture(t)
	bot := f.store.addBot("b1", "acme-bot", "acme")
	now := time.Now()
	bot.InitializedAt = &now

	require.NoError(t, f.svc.Run(context.Background(), "b1"))

	assert.Empty(t, f.ledger.submitted())
	assert.Zero(t, f.ledger.queries)
}

func TestBootstrapResumesWithoutResubmitting(t *testing.T) {
	f := newBootstrapFixture(t)
	bot := f.store.addBot("b1", "acme-bot", "acme")
	f.store.addImport("i1", "b1", "dev@acme.io")

	// Everything already happened on chain; only the record store lags.
	profileAddr := ledger.DeriveProfileAddress(bot.Name)
	daoAddr := ledger.DeriveDaoAddress(bot.DaoName)
	walletAddr := ledger.DeriveWalletAddress(daoAddr, profileAddr)
	f.ledger.set(profileAddr, &ledger.State{Address: profileAddr, Status: ledger.StatusActive})
	f.ledger.set(daoAddr, &ledger.State{Address: daoAddr, Status: ledger.StatusActive, Members: []string{bot.Name}})
	f.ledger.set(walletAddr, &ledger.State{Address: walletAddr, Status: ledger.StatusActive})

	require.NoError(t, f.svc.Run(context.Background(), "b1"))

	assert.Empty(t, f.ledger.submitted())
	got, _ := f.store.GetDaoBot(context.Background(), "b1")
	assert.True(t, got.Initialized())
	f.drainSized(t, 1)
}

func TestBootstrapOccupiedDao(t *testing.T) {
	f := newBootstrapFixture(t)
	bot := f.store.addBot("b1", "acme-bot", "acme")
	f.store.addImport("i1", "b1", "dev@acme.io")
	f.store.addImport("i2", "b1", "other@acme.io")

	profileAddr := ledger.DeriveProfileAddress(bot.Name)
	daoAddr := ledger.DeriveDaoAddress(bot.DaoName)
	f.ledger.set(profileAddr, &ledger.State{Address: profileAddr, Status: ledger.StatusActive})
	f.ledger.set(daoAddr, &ledger.State{Address: daoAddr, Status: ledger.StatusActive, Members: []string{"stranger"}})

	err := f.svc.Run(context.Background(), "b1")
	require.Error(t, err)
	assert.True(t, queue.IsPermanent(err))

	for _, id := range []string{"i1", "i2"} {
		imp := f.store.imports[id]
		assert.True(t, imp.Ignore, "import %s should be ignored", id)
		require.NotNil(t, imp.Resolution)
		assert.Contains(t, *imp.Resolution, "stranger")
	}

	// One conflict notification per distinct owner.
	assert.ElementsMatch(t, []string{
		"dev@acme.io|dao_conflict",
		"other@acme.io|dao_conflict",
	}, f.notifier.notifications())

	got, _ := f.store.GetDaoBot(context.Background(), "b1")
	assert.False(t, got.Initialized())
}

func TestBootstrapInvalidDaoName(t *testing.T) {
	f := newBootstrapFixture(t)
	bot := f.store.addBot("b1", "acme-bot", "Bad Name")
	f.store.addImport("i1", "b1", "dev@acme.io")

	profileAddr := ledger.DeriveProfileAddress(bot.Name)
	f.ledger.set(profileAddr, &ledger.State{Address: profileAddr, Status: ledger.StatusActive})

	err := f.svc.Run(context.Background(), "b1")
	require.Error(t, err)
	assert.True(t, queue.IsPermanent(err))

	imp := f.store.imports["i1"]
	assert.True(t, imp.Ignore)
	assert.Equal(t, []string{"dev@acme.io|import_dropped"}, f.notifier.notifications())
}

func TestBootstrapMissingBotIsPermanent(t *testing.T) {
	f := newBootstrapFixture(t)

	err := f.svc.Run(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, queue.IsPermanent(err))
}
