package store

import (
	"math"
	"sort"
)

// Cosine returns the cosine similarity of two vectors, 0 when either is
// empty or lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// rankBySimilarity scores facts against the query embedding and returns the
// topK best matches. Shared by the memory and sqlite fact stores.
func rankBySimilarity(facts []Fact, embedding []float32, topK int) []FactMatch {
	matches := make([]FactMatch, 0, len(facts))
	for _, f := range facts {
		matches = append(matches, FactMatch{Fact: f, Score: Cosine(f.Embedding, embedding)})
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}
