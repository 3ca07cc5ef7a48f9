// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"math"
	"sync"
	"time"

	"github.com/gosh-sh/gosh-sub009/internal/queue"
)

// OperationMetrics holds aggregated timings for a single operation type.
type OperationMetrics struct {
	Count     int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64   `json:"count"`
	TotalTimeMs int64   `json:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms"`
}

// QueueSnapshot aggregates job lifecycle counters across all queues.
type QueueSnapshot struct {
	Enqueued  int64 `json:"enqueued"`
	Coalesced int64 `json:"coalesced"`
	Retries   int64 `json:"retries"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
}

// Snapshot represents the full orchestrator statistics at a point in time.
// Operations is keyed by queue name for queue-driven work, and by the Op
// constants for work recorded directly.
type Snapshot struct {
	UptimeSeconds float64                       `json:"uptime_seconds"`
	Queue         QueueSnapshot                 `json:"queue"`
	Operations    map[string]*OperationSnapshot `json:"operations,omitempty"`
}

// OpScan names the directly recorded scan timing. Queue-driven work is
// keyed by queue name instead.
const OpScan = "scan"

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
	q         QueueSnapshot
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
	}
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{MinTime: time.Duration(math.MaxInt64)}
		c.ops[op] = m
	}
	return m
}

// RecordTiming records timing for an operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(op, duration)
}

// record updates one operation. Caller must hold write lock.
func (c *Collector) record(op string, duration time.Duration) {
	m := c.getOrCreate(op)
	m.Count++
	m.TotalTime += duration

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// ObserveQueue consumes queue lifecycle events, counting transitions and
// folding handler durations into the per-queue timing stats. Register it
// with queue.Manager.Subscribe.
func (c *Collector) ObserveQueue(ev queue.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Kind {
	case queue.EventEnqueued:
		if ev.Coalesced {
			c.q.Coalesced++
		} else {
			c.q.Enqueued++
		}
	case queue.EventRetrying:
		c.q.Retries++
	case queue.EventSucceeded:
		c.q.Succeeded++
	case queue.EventFailed:
		c.q.Failed++
	}

	if ev.Duration > 0 {
		c.record(ev.Queue, ev.Duration)
	}
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(m *OperationMetrics) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}
	return &OperationSnapshot{
		Count:       m.Count,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ops := make(map[string]*OperationSnapshot, len(c.ops))
	for name, m := range c.ops {
		if snap := snapshotOp(m); snap != nil {
			ops[name] = snap
		}
	}

	return Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Queue:         c.q,
		Operations:    ops,
	}
}
