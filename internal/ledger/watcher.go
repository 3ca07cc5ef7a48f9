package ledger

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

// BlockWatcher subscribes to the node's block event stream and tracks the
// latest seen height. Scan triggers use it as a liveness gate: when no block
// has arrived within the staleness window, scanning is pointless because
// queries would fail or return stale state anyway.
type BlockWatcher struct {
	url    string
	logger *slog.Logger

	mu        sync.RWMutex
	height    int64
	lastBlock time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

type blockEvent struct {
	Height int64 `json:"height"`
}

// NewBlockWatcher creates a watcher for the given websocket endpoint.
func NewBlockWatcher(url string, logger *slog.Logger) *BlockWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &BlockWatcher{
		url:    url,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start begins the read loop with automatic reconnect.
func (w *BlockWatcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	go func() {
		defer close(w.done)

		policy := backoff.NewExponentialBackOff()
		policy.InitialInterval = time.Second
		policy.MaxInterval = 30 * time.Second
		policy.MaxElapsedTime = 0 // reconnect forever

		for {
			if ctx.Err() != nil {
				return
			}

			if err := w.readLoop(ctx, policy); err != nil && ctx.Err() == nil {
				delay := policy.NextBackOff()
				w.logger.Warn("block stream disconnected", "error", err, "reconnect_in", delay)
				select {
				case <-ctx.Done():
					return
				case <-time.After(delay):
				}
			}
		}
	}()
}

func (w *BlockWatcher) readLoop(ctx context.Context, policy *backoff.ExponentialBackOff) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// A successful dial means the node is back; forget accumulated delay so
	// the next blip reconnects quickly again.
	policy.Reset()

	w.logger.Info("block stream connected", "url", w.url)

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var ev blockEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			w.logger.Warn("malformed block event", "error", err)
			continue
		}

		w.mu.Lock()
		w.height = ev.Height
		w.lastBlock = time.Now()
		w.mu.Unlock()
	}
}

// Height returns the latest seen block height.
func (w *BlockWatcher) Height() int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.height
}

// Healthy reports whether a block arrived within maxAge.
func (w *BlockWatcher) Healthy(maxAge time.Duration) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return !w.lastBlock.IsZero() && time.Since(w.lastBlock) <= maxAge
}

// Stop terminates the read loop and waits for it to exit.
func (w *BlockWatcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	<-w.done
}
