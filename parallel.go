package riac

import "sync"

// minParallelCandidates is the candidate count below which scoring runs on
// the calling goroutine.
const minParallelCandidates = 32

// scoreCandidates evaluates fitness(i) for every candidate i in [0, n) and
// returns the scores in candidate order. numWorkers controls the degree of
// parallelism; if <= 1, or n is small, scoring is sequential.
//
// The result is identical to sequential scoring: each worker handles a
// contiguous range of candidates and writes only its own slots. fitness
// must be safe for concurrent use.
func scoreCandidates(n, numWorkers int, fitness func(i int) float64) []float64 {
	scores := make([]float64, n)
	if numWorkers <= 1 || n < minParallelCandidates {
		for i := range scores {
			scores[i] = fitness(i)
		}
		return scores
	}

	var wg sync.WaitGroup
	perWorker := (n + numWorkers - 1) / numWorkers

	for w := 0; w < numWorkers; w++ {
		start := w * perWorker
		end := min(start+perWorker, n)
		if start >= n {
			break
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				scores[i] = fitness(i)
			}
		}(start, end)
	}

	wg.Wait()
	return scores
}

// argmax returns the index of the first maximal score. NaN scores never win
// unless every score is NaN, in which case 0 is returned.
func argmax(scores []float64) int {
	best := -1
	for i, s := range scores {
		if s != s {
			continue
		}
		if best < 0 || s > scores[best] {
			best = i
		}
	}
	return max(best, 0)
}
