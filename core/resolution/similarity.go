package resolution

import "math"

// CosineSimilarity calculates the cosine similarity between two vectors.
// Returns 0 if the vectors have different lengths, are empty, or either has zero magnitude.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// BestMatch returns the index and similarity of the candidate most similar to embedding.
// Only a strictly greater similarity replaces the current best, so ties keep the
// earliest candidate. The index is -1 if there are no candidates.
func BestMatch(embedding []float32, candidates [][]float32) (int, float64) {
	best := -1
	highest := math.Inf(-1)
	for i, candidate := range candidates {
		similarity := CosineSimilarity(embedding, candidate)
		if similarity > highest {
			highest = similarity
			best = i
		}
	}
	if best < 0 {
		return -1, 0
	}
	return best, highest
}
