package parallel

import (
	"runtime"
	"sync/atomic"
	"testing"
)

// =============================================================================
// WorkerPool Creation Tests
// =============================================================================

func TestWorkerPool_Create(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	if pool.Workers() != 4 {
		t.Errorf("Workers() = %d, want 4", pool.Workers())
	}
	if !pool.IsRunning() {
		t.Error("pool should be running after creation")
	}
}

func TestWorkerPool_CreateDefaultWorkers(t *testing.T) {
	for _, n := range []int{0, -3} {
		pool := NewWorkerPool(n)
		if pool.Workers() != runtime.GOMAXPROCS(0) {
			t.Errorf("NewWorkerPool(%d).Workers() = %d, want GOMAXPROCS", n, pool.Workers())
		}
		pool.Close()
	}
}

// =============================================================================
// ExecuteAll Tests
// =============================================================================

func TestWorkerPool_ExecuteAll(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var counter atomic.Int64
	work := make([]func(), 100)
	for i := range work {
		work[i] = func() { counter.Add(1) }
	}
	pool.ExecuteAll(work)

	if counter.Load() != 100 {
		t.Errorf("counter = %d, want 100", counter.Load())
	}
}

func TestWorkerPool_ExecuteAllAfterClose(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()
	pool.Close()

	ran := 0
	pool.ExecuteAll([]func(){func() { ran++ }, func() { ran++ }})
	if ran != 2 {
		t.Errorf("ran = %d after Close, want 2 (inline execution)", ran)
	}
}

// =============================================================================
// ForEach Tests
// =============================================================================

func TestWorkerPool_ForEach(t *testing.T) {
	pool := NewWorkerPool(3)
	defer pool.Close()

	tests := []int{0, 1, 7, 12, 1000}
	for _, n := range tests {
		seen := make([]atomic.Int32, n)
		if err := pool.ForEach(n, func(i int) { seen[i].Add(1) }); err != nil {
			t.Fatalf("ForEach(%d) error: %v", n, err)
		}
		for i := range seen {
			if got := seen[i].Load(); got != 1 {
				t.Errorf("ForEach(%d): index %d visited %d times, want 1", n, i, got)
			}
		}
	}
}

func TestWorkerPool_ForEachPanic(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Close()

	var visited atomic.Int32
	err := pool.ForEach(64, func(i int) {
		if i == 5 {
			panic("boom")
		}
		visited.Add(1)
	})
	if err == nil {
		t.Fatal("ForEach should report a panicking item")
	}
	if visited.Load() == 0 {
		t.Error("other chunks should still run")
	}
}
