package timeline

import (
	"sync"
	"sync/atomic"
)

// runPool runs fn(i) for every i in [0, n) on at most `workers`
// goroutines. A shared monotonically advancing cursor hands the next index
// to whichever worker asks first, so no index is ever assigned twice.
// Blocks until all work is done.
func runPool(workers, n int, fn func(i int)) {
	if n == 0 {
		return
	}
	if workers > n {
		workers = n
	}

	var cursor int64
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= n {
					return
				}
				fn(i)
			}
		}()
	}
	wg.Wait()
}
