package embedding

import "math"

// CosineSimilarity returns the cosine of the angle between a and b, in
// [-1, 1]. A zero vector on either side yields 0 rather than dividing by
// zero, so degenerate embeddings rank last instead of poisoning the sort.
func CosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim > 1 {
		sim = 1
	} else if sim < -1 {
		sim = -1
	}
	return sim
}

// SimilarityScores computes the cosine similarity of query against every row
// of matrix.
func SimilarityScores(query []float32, matrix [][]float32) []float64 {
	scores := make([]float64, len(matrix))
	for i, row := range matrix {
		scores[i] = CosineSimilarity(query, row)
	}
	return scores
}
