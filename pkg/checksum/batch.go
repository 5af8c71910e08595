package checksum

import (
	goSync "sync"

	"github.com/spf13/afero"
)

// Result is the outcome of digesting a single file in a batch. Exactly one
// of Digest and Err is set.
type Result struct {
	Digest string
	Err    error
}

// Batch computes digests for many files using a bounded worker pool. One
// path's failure doesn't prevent the others from completing: the returned
// map has an entry for every input path, with the per-path error recorded in
// the Result.
func Batch(fs afero.Fs, paths []string, algorithm Algorithm, workers int) map[string]Result {
	if workers > len(paths) {
		workers = len(paths)
	}
	if workers < 1 {
		workers = 1
	}

	results := make(map[string]Result, len(paths))
	var resultsLock goSync.Mutex

	pathsChan := make(chan string, workers*2)
	var wg goSync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range pathsChan {
				digest, err := File(fs, path, algorithm)

				resultsLock.Lock()
				results[path] = Result{Digest: digest, Err: err}
				resultsLock.Unlock()
			}
		}()
	}

	for _, path := range paths {
		pathsChan <- path
	}
	close(pathsChan)
	wg.Wait()

	return results
}
