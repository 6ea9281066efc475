package parallel

import (
	"runtime"
	"sync/atomic"
	"testing"
)

func TestParallelizeN_CoversEveryItemOnce(t *testing.T) {
	for _, workers := range []int{-1, 1, 3, 64} {
		seen := make([]int32, 25)
		ParallelizeN(len(seen), workers, func(start, end int) {
			for i := start; i < end; i++ {
				atomic.AddInt32(&seen[i], 1)
			}
		})
		for i, c := range seen {
			if c != 1 {
				t.Fatalf("workers=%d: item %d visited %d times", workers, i, c)
			}
		}
	}
}

func TestParallelizeN_Empty(t *testing.T) {
	called := false
	ParallelizeN(0, 4, func(int, int) { called = true })
	if called {
		t.Error("fn should not be called for zero items")
	}
}

func TestWorkers(t *testing.T) {
	tests := []struct {
		nJobs, items, want int
	}{
		{2, 10, 2},
		{8, 3, 3},
		{1, 0, 1},
		{-1, 1000000, runtime.NumCPU()},
	}
	for _, tt := range tests {
		if got := Workers(tt.nJobs, tt.items); got != tt.want {
			t.Errorf("Workers(%d, %d) = %d, want %d", tt.nJobs, tt.items, got, tt.want)
		}
	}
}

func TestParallelizeWithThreshold_Sequential(t *testing.T) {
	calls := 0
	ParallelizeWithThreshold(5, 10, func(start, end int) {
		calls++
		if start != 0 || end != 5 {
			t.Errorf("range = [%d,%d)", start, end)
		}
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
