package database

import "gonum.org/v1/gonum/floats"

// EuclideanDistance returns the L2 distance between a and b.
// Vectors of different or zero length are infinitely far apart.
func EuclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return maxDistance
	}
	return floats.Distance(toFloat64(a), toFloat64(b), 2)
}

const maxDistance = 1e9

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
