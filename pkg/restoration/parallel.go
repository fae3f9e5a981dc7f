package restoration

import (
	"runtime"
	"sync"
)

// splitRange divides [0, n) into one contiguous chunk per core and calls fn
// on every chunk concurrently. fn must only write to outputs owned by its
// chunk.
func splitRange(n int, fn func(start, end int)) {
	numCores := runtime.NumCPU()
	if numCores > n {
		numCores = n
	}
	if numCores <= 1 {
		fn(0, n)
		return
	}

	perCore := (n + numCores - 1) / numCores
	var wg sync.WaitGroup
	for c := 0; c < numCores; c++ {
		start := c * perCore
		end := min(start+perCore, n)
		if start >= end {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(start, end)
		}()
	}
	wg.Wait()
}
