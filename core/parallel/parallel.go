// Package parallel splits index ranges across goroutines for the forest's
// per-tree fitting and batch prediction.
package parallel

import (
	"runtime"
	"sync"
)

// Workers resolves a job count the way n_jobs does: values below 1 mean
// "all CPUs", and the result never exceeds items.
func Workers(nJobs, items int) int {
	n := nJobs
	if n < 1 {
		n = runtime.NumCPU()
	}
	return max(1, min(n, items))
}

// ParallelizeN calls fn on contiguous [start, end) chunks of [0, items) using
// at most Workers(workers, items) goroutines, and waits for all of them.
func ParallelizeN(items, workers int, fn func(start, end int)) {
	if items == 0 {
		return
	}
	n := Workers(workers, items)
	chunk := (items + n - 1) / n

	var wg sync.WaitGroup
	for start := 0; start < items; start += chunk {
		end := min(start+chunk, items)
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(start, end)
		}()
	}
	wg.Wait()
}

// ParallelizeWithThreshold runs fn inline for small inputs, where goroutine
// startup would cost more than the work.
func ParallelizeWithThreshold(items, threshold int, fn func(start, end int)) {
	if items <= threshold {
		fn(0, items)
		return
	}
	ParallelizeN(items, -1, fn)
}
