// Package vectormath holds the small set of dense-vector operations the
// clustering and consolidation passes share.
package vectormath

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// CosineSimilarity returns the cosine of the angle between a and b.
// Returns 0 when either vector has zero magnitude or lengths differ.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	dot := floats.Dot(a, b)
	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (na * nb)
}

// CosineDistance returns 1 - CosineSimilarity(a, b).
func CosineDistance(a, b []float64) float64 {
	return 1 - CosineSimilarity(a, b)
}

// Unit returns a copy of v scaled to unit length. Zero vectors are returned
// unchanged. Pre-normalizing lets pairwise similarity reduce to a dot
// product in the quadratic consolidation pass.
func Unit(v []float64) []float64 {
	out := make([]float64, len(v))
	n := floats.Norm(v, 2)
	if n == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = x / n
	}
	return out
}

// Centroid returns the element-wise mean of the given vectors. All vectors
// must share a length; returns nil for empty input.
func Centroid(vecs [][]float64) []float64 {
	if len(vecs) == 0 {
		return nil
	}
	out := make([]float64, len(vecs[0]))
	for _, v := range vecs {
		floats.Add(out, v)
	}
	floats.Scale(1/float64(len(vecs)), out)
	return out
}

// Nearest returns the index of the vector closest to target by cosine
// distance, breaking ties toward the lower index. Returns -1 for empty input.
func Nearest(target []float64, vecs [][]float64) int {
	best := -1
	bestDist := math.Inf(1)
	for i, v := range vecs {
		d := CosineDistance(target, v)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}
