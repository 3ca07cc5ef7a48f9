package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gosh-sh/gosh-sub009/internal/queue"
)

func TestObserveQueueCountsTransitions(t *testing.T) {
	c := NewCollector()

	c.ObserveQueue(queue.Event{Kind: queue.EventEnqueued, Queue: "dao-bootstrap"})
	c.ObserveQueue(queue.Event{Kind: queue.EventEnqueued, Queue: "dao-bootstrap", Coalesced: true})
	c.ObserveQueue(queue.Event{Kind: queue.EventRetrying, Queue: "dao-bootstrap", Duration: 5 * time.Millisecond})
	c.ObserveQueue(queue.Event{Kind: queue.EventSucceeded, Queue: "dao-bootstrap", Duration: 10 * time.Millisecond})
	c.ObserveQueue(queue.Event{Kind: queue.EventFailed, Queue: "repo-small", Duration: 20 * time.Millisecond})

	snap := c.Snapshot()
	assert.Equal(t, int64(1), snap.Queue.Enqueued)
	assert.Equal(t, int64(1), snap.Queue.Coalesced)
	assert.Equal(t, int64(1), snap.Queue.Retries)
	assert.Equal(t, int64(1), snap.Queue.Succeeded)
	assert.Equal(t, int64(1), snap.Queue.Failed)
}

func TestObserveQueueFoldsDurationsPerQueue(t *testing.T) {
	c := NewCollector()

	c.ObserveQueue(queue.Event{Kind: queue.EventSucceeded, Queue: "repo-size", Duration: 10 * time.Millisecond})
	c.ObserveQueue(queue.Event{Kind: queue.EventSucceeded, Queue: "repo-size", Duration: 30 * time.Millisecond})
	// Enqueue events carry no duration and must not pollute timings.
	c.ObserveQueue(queue.Event{Kind: queue.EventEnqueued, Queue: "repo-size"})

	snap := c.Snapshot()
	op := snap.Operations["repo-size"]
	if op == nil {
		t.Fatal("Expected timing stats for repo-size")
	}
	assert.Equal(t, int64(2), op.Count)
	assert.Equal(t, int64(40), op.TotalTimeMs)
	assert.Equal(t, float64(20), op.AvgTimeMs)
	assert.Equal(t, int64(10), op.MinTimeMs)
	assert.Equal(t, int64(30), op.MaxTimeMs)
}

func TestRecordTiming(t *testing.T) {
	c := NewCollector()

	c.RecordTiming(OpScan, 100*time.Millisecond)
	c.RecordTiming(OpScan, 200*time.Millisecond)

	snap := c.Snapshot()
	op := snap.Operations[OpScan]
	if op == nil {
		t.Fatal("Expected timing stats for scan")
	}
	assert.Equal(t, int64(2), op.Count)
	assert.Equal(t, int64(100), op.MinTimeMs)
	assert.Equal(t, int64(200), op.MaxTimeMs)
}

func TestSnapshotOmitsEmptyOperations(t *testing.T) {
	c := NewCollector()

	snap := c.Snapshot()
	assert.Empty(t, snap.Operations)
	assert.GreaterOrEqual(t, snap.UptimeSeconds, float64(0))
}
