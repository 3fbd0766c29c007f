package lane

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestBaseWorkerRunInvokesPollAndStops(t *testing.T) {
	w := NewBaseWorker(WorkerConfig{Name: "test", Concurrency: 2, PollInterval: 5 * time.Millisecond})

	var calls int64
	ctx, cancel := context.WithCancel(context.Background())

	if err := w.run(ctx, func(ctx context.Context, goroutineID int) {
		atomic.AddInt64(&calls, 1)
	}); err != nil {
		t.Fatalf("run() returned error: %v", err)
	}

	if !w.IsRunning() {
		t.Fatal("expected worker to be running immediately after run()")
	}

	time.Sleep(30 * time.Millisecond)
	if atomic.LoadInt64(&calls) == 0 {
		t.Fatal("expected poll to have been invoked at least once")
	}

	cancel()
	deadline := time.Now().Add(time.Second)
	for w.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if w.IsRunning() {
		t.Fatal("expected worker to stop running after context cancellation")
	}
}

func TestBaseWorkerRejectsDoubleStart(t *testing.T) {
	w := NewBaseWorker(WorkerConfig{Name: "test", PollInterval: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.run(ctx, func(ctx context.Context, goroutineID int) {}); err != nil {
		t.Fatalf("first run() returned error: %v", err)
	}
	if err := w.run(ctx, func(ctx context.Context, goroutineID int) {}); err == nil {
		t.Fatal("expected second run() to reject with already-running error")
	}
}

func TestStatsTracksSuccessAndFailure(t *testing.T) {
	w := NewBaseWorker(WorkerConfig{Name: "test"})
	w.recordSuccess()
	w.recordSuccess()
	w.recordFailure()

	stats := w.Stats()
	if stats.Processed != 2 || stats.Failed != 1 {
		t.Fatalf("stats = %+v, want {Processed:2 Failed:1}", stats)
	}
}
