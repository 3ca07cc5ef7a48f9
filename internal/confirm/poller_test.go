package confirm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosh-sh/gosh-sub009/internal/ledger"
	"github.com/gosh-sh/gosh-sub009/internal/queue"
)

// scriptedLedger returns the states of one address in sequence, repeating
// the last entry once the script runs out.
type scriptedLedger struct {
	mu      sync.Mutex
	states  map[string][]*ledger.State
	queries map[string]int
}

func newScriptedLedger() *scriptedLedger {
	return &scriptedLedger{
		states:  make(map[string][]*ledger.State),
		queries: make(map[string]int),
	}
}

func (l *scriptedLedger) script(addr string, states ...*ledger.State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states[addr] = states
}

func (l *scriptedLedger) QueryState(ctx context.Context, address string) (*ledger.State, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := l.queries[address]
	l.queries[address] = n + 1

	script := l.states[address]
	if len(script) == 0 {
		return nil, nil
	}
	if n >= len(script) {
		n = len(script) - 1
	}
	return script[n], nil
}

func (l *scriptedLedger) SubmitOperation(ctx context.Context, kind ledger.OpKind, params map[string]string, creds ledger.Credentials) error {
	return nil
}

func (l *scriptedLedger) queryCount(addr string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queries[addr]
}

func newTestPoller(t *testing.T, lc ledger.Client, attempts int) *Poller {
	t.Helper()
	q := queue.NewManager(nil, nil)
	t.Cleanup(q.Stop)
	p := NewPoller(q, lc, attempts, 5*time.Millisecond, nil)
	p.Register(2)
	return p
}

func TestWaitBecomesVisible(t *testing.T) {
	lc := newScriptedLedger()
	lc.script("0:abc",
		nil,
		nil,
		&ledger.State{Address: "0:abc", Status: ledger.StatusActive},
	)

	p := newTestPoller(t, lc, 10)

	state, err := p.Wait(context.Background(), "test:0:abc", Exists("0:abc"))
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "0:abc", state.Address)
	assert.Equal(t, 3, lc.queryCount("0:abc"))
}

func TestWaitTimeout(t *testing.T) {
	lc := newScriptedLedger() // address never appears
	p := newTestPoller(t, lc, 3)

	_, err := p.Wait(context.Background(), "test:0:gone", Exists("0:gone"))
	require.ErrorIs(t, err, ErrConfirmationTimeout)
	assert.Equal(t, 3, lc.queryCount("0:gone"))
}

func TestWaitAlreadyTrue(t *testing.T) {
	lc := newScriptedLedger()
	lc.script("0:now", &ledger.State{Address: "0:now", Status: ledger.StatusActive})

	p := newTestPoller(t, lc, 5)

	state, err := p.Wait(context.Background(), "test:0:now", WalletActive("0:now"))
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusActive, state.Status)
	assert.Equal(t, 1, lc.queryCount("0:now"))
}

func TestConcurrentWaitersShareOnePollSequence(t *testing.T) {
	lc := newScriptedLedger()
	lc.script("0:shared",
		nil,
		nil,
		nil,
		&ledger.State{Address: "0:shared", Status: ledger.StatusActive},
	)

	p := newTestPoller(t, lc, 20)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = p.Wait(context.Background(), "shared-key", Exists("0:shared"))
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	// One poll sequence served all four waiters.
	assert.Equal(t, 4, lc.queryCount("0:shared"))
}

func TestExpectationHolds(t *testing.T) {
	tests := []struct {
		name  string
		exp   Expectation
		state *ledger.State
		want  bool
	}{
		{"exists nil state", Exists("a"), nil, false},
		{"exists present", Exists("a"), &ledger.State{Address: "a"}, true},
		{"member absent", Member("a", "bob"), &ledger.State{Members: []string{"alice"}}, false},
		{"member present", Member("a", "bob"), &ledger.State{Members: []string{"alice", "bob"}}, true},
		{"wallet deploying", WalletActive("a"), &ledger.State{Status: ledger.StatusDeploying}, false},
		{"wallet active", WalletActive("a"), &ledger.State{Status: ledger.StatusActive}, true},
		{"repo pending approval", RepoReady("a"), &ledger.State{Status: ledger.StatusPendingApproval}, false},
		{"repo active", RepoReady("a"), &ledger.State{Status: ledger.StatusActive}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.exp.Holds(tt.state))
		})
	}
}
