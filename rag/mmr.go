package rag

import "math"

// MaximalMarginalRelevance greedily picks up to k candidates maximising
//
//	lambda*relevance[i] - (1-lambda)*max(sim(candidate_i, selected_j))
//
// relevance holds each candidate's similarity to the query. Equal scores keep
// the lower index, so with lambda=1 the result is the relevance order of a
// stable descending sort. Returns indexes into candidates.
func MaximalMarginalRelevance(relevance []float64, candidates [][]float64, lambda float64, k int) []int {
	n := len(relevance)
	if k > n {
		k = n
	}
	if k <= 0 {
		return []int{}
	}

	selected := make([]int, 0, k)
	used := make([]bool, n)
	// maxSim[i] tracks the highest similarity of candidate i to any selected one.
	maxSim := make([]float64, n)

	for len(selected) < k {
		best := -1
		bestScore := math.Inf(-1)
		for i := 0; i < n; i++ {
			if used[i] {
				continue
			}
			redundancy := 0.0
			if len(selected) > 0 {
				redundancy = maxSim[i]
			}
			score := lambda*relevance[i] - (1-lambda)*redundancy
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		if best < 0 {
			break
		}

		used[best] = true
		selected = append(selected, best)

		for i := 0; i < n; i++ {
			if used[i] || i >= len(candidates) || best >= len(candidates) {
				continue
			}
			sim := cosineSimilarity(candidates[i], candidates[best])
			if len(selected) == 1 || sim > maxSim[i] {
				maxSim[i] = sim
			}
		}
	}

	return selected
}
