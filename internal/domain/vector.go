package domain

import "math"

// InnerProduct returns the inner product of two vectors. For unit-normalized
// vectors this equals cosine similarity.
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// L2Norm returns the Euclidean norm of a vector.
func L2Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Normalize scales v to unit length in place and returns it. The zero vector
// is returned unchanged: there is no direction to preserve and dividing by a
// zero norm would poison the index with NaNs. Every vector crossing the
// embedding/index boundary goes through this, even when the provider already
// claims to normalize — it keeps inner-product search equal to cosine
// similarity no matter what upstream did.
func Normalize(v []float32) []float32 {
	norm := L2Norm(v)
	if norm == 0 {
		return v
	}
	inv := float32(1 / norm)
	for i := range v {
		v[i] *= inv
	}
	return v
}
