package async

import (
	"runtime"
	"sync"

	"github.com/pkg/errors"
)

// ScatterResult is one worker's contribution to a Scatter call: the input
// offset it was assigned and the value it produced for that extent.
type ScatterResult struct {
	Offset int
	Extent interface{}
}

// scatterWorkFn processes the half-open extent [offset, offset+entries) of
// the input. The shared mutex lets workers serialize access to state that
// must be mutated across the whole input set (see TestScatter_SharedMutex).
type scatterWorkFn func(offset int, entries int, mu *sync.RWMutex) (interface{}, error)

// Scatter splits [0, n) into up to GOMAXPROCS contiguous chunks and runs work
// over each chunk concurrently, so a bounded set of goroutines, rather than
// one goroutine per item, does the work.
func Scatter(n int, work scatterWorkFn) ([]ScatterResult, error) {
	if n <= 0 {
		return nil, errors.New("input length must be greater than 0")
	}

	workers := runtime.GOMAXPROCS(0)
	if workers > n {
		workers = n
	}
	chunk := (n + workers - 1) / workers

	var mu sync.RWMutex
	var wg sync.WaitGroup
	results := make([]ScatterResult, workers)
	errs := make([]error, workers)

	for w := 0; w < workers; w++ {
		offset := w * chunk
		if offset >= n {
			break
		}
		entries := chunk
		if offset+entries > n {
			entries = n - offset
		}
		wg.Add(1)
		go func(w, offset, entries int) {
			defer wg.Done()
			extent, err := work(offset, entries, &mu)
			results[w] = ScatterResult{Offset: offset, Extent: extent}
			errs[w] = err
		}(w, offset, entries)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	// Trim unused tail slots when workers > populated chunks.
	used := (n + chunk - 1) / chunk
	if used < len(results) {
		results = results[:used]
	}
	return results, nil
}
