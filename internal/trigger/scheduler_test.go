package trigger

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRunsImmediatelyAndOnTicks(t *testing.T) {
	var runs atomic.Int32
	s := NewScheduler("test", 20*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}, nil)

	s.Start(context.Background())
	defer s.Stop()

	require.Eventually(t, func() bool {
		return runs.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSchedulerSkipsOverlappingRuns(t *testing.T) {
	block := make(chan struct{})
	entered := make(chan struct{})
	s := NewScheduler("slow", time.Hour, func(ctx context.Context) error {
		close(entered)
		<-block
		return nil
	}, nil)

	go s.RunOnce(context.Background())
	<-entered

	// A tick arriving mid-run is dropped, not queued.
	assert.False(t, s.RunOnce(context.Background()))

	close(block)
}

func TestSchedulerStopWaitsForInProgressRun(t *testing.T) {
	finished := make(chan struct{})
	s := NewScheduler("stopping", time.Hour, func(ctx context.Context) error {
		time.Sleep(30 * time.Millisecond)
		close(finished)
		return nil
	}, nil)

	s.Start(context.Background())
	time.Sleep(5 * time.Millisecond) // let the immediate run begin
	s.Stop()

	select {
	case <-finished:
	default:
		t.Fatal("Stop returned before the in-progress run finished")
	}
}

func TestSchedulerSwallowsErrors(t *testing.T) {
	var runs atomic.Int32
	s := NewScheduler("failing", 10*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return context.DeadlineExceeded
	}, nil)

	s.Start(context.Background())
	defer s.Stop()

	// Errors never stop the schedule.
	require.Eventually(t, func() bool {
		return runs.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)
}
