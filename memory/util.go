package memory

import (
	"math"

	"github.com/google/uuid"
)

// newID generates a prefixed identifier, e.g. "page_7f3a91b2".
func newID(prefix string) string {
	return prefix + "_" + uuid.NewString()[:8]
}

// normalize scales vec to unit length in place and returns it.
// A zero vector is returned unchanged.
func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		vec[i] = float32(float64(v) / norm)
	}
	return vec
}

// vectorNorm returns the L2 norm of vec.
func vectorNorm(vec []float32) float64 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	return math.Sqrt(norm)
}

// dot returns the inner product of a and b. For unit vectors this equals
// cosine similarity. Mismatched lengths score zero.
func dot(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// jaccard returns the Jaccard similarity of two keyword sets.
func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, k := range a {
		set[k] = struct{}{}
	}
	intersection := 0
	union := len(set)
	seen := make(map[string]struct{}, len(b))
	for _, k := range b {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if _, ok := set[k]; ok {
			intersection++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
