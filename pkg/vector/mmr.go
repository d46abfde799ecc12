package vector

import (
	"math"
)

// MMR reranks candidates by maximal marginal relevance and returns at most k
// of them.
//
// lambda trades relevance against diversity: 1 ranks purely by similarity to
// the query, 0 maximises dissimilarity to what was already picked. The most
// similar candidate is always selected first. Candidates without a vector
// fall back to their backend score and never count as redundant.
func MMR(query []float32, candidates []Match, k int, lambda float64) []Match {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	k = min(k, len(candidates))
	lambda = math.Max(0, math.Min(1, lambda))

	relevance := make([]float64, len(candidates))
	for i, c := range candidates {
		if len(c.Vector) > 0 {
			relevance[i] = Cosine(query, c.Vector)
		} else {
			relevance[i] = float64(c.Score)
		}
	}

	first := 0
	for i := range relevance {
		if relevance[i] > relevance[first] {
			first = i
		}
	}

	selected := []int{first}
	picked := make([]bool, len(candidates))
	picked[first] = true

	for len(selected) < k {
		best, bestScore := -1, math.Inf(-1)
		for i, c := range candidates {
			if picked[i] {
				continue
			}
			redundancy := 0.0
			if len(c.Vector) > 0 {
				redundancy = math.Inf(-1)
				for _, j := range selected {
					if len(candidates[j].Vector) == 0 {
						continue
					}
					redundancy = math.Max(redundancy, Cosine(c.Vector, candidates[j].Vector))
				}
				if math.IsInf(redundancy, -1) {
					redundancy = 0
				}
			}
			score := lambda*relevance[i] - (1-lambda)*redundancy
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		selected = append(selected, best)
		picked[best] = true
	}

	out := make([]Match, len(selected))
	for i, idx := range selected {
		out[i] = candidates[idx]
	}
	return out
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
