package storage

import (
	"cmp"
	"math"

	"github.com/poiesic/carebuddy/core"
)

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// when either is a zero vector or their lengths differ.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	na, nb := magnitude(a), magnitude(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (na * nb))
}

// Normalize returns a unit-length copy of v. A zero vector yields a zero
// vector of the same length.
func Normalize(v []float32) []float32 {
	if len(v) == 0 {
		return v
	}
	out := make([]float32, len(v))
	m := magnitude(v)
	if m == 0 {
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / m)
	}
	return out
}

func magnitude(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// CompareResults orders results by descending score, then by insertion
// sequence, then by chunk ID so the order is total.
func CompareResults(a, b *core.RetrievalResult) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Chunk.Seq, b.Chunk.Seq); c != 0 {
		return c
	}
	return cmp.Compare(a.Chunk.Id, b.Chunk.Id)
}
