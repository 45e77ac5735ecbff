package utils

import "sort"

// Clamp limits v to the interval [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampVec limits each element of v to [lower[i], upper[i]] in place.
func ClampVec(v, lower, upper []float64) {
	for i := range v {
		v[i] = Clamp(v[i], lower[i], upper[i])
	}
}

// CopyFloats returns a fresh copy of v.
func CopyFloats(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}

// ArgsortDescending returns the index permutation that sorts keys in
// descending order. The sort is stable so equal keys keep their input
// order.
func ArgsortDescending(keys []float64) []int {
	idx := make([]int, len(keys))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return keys[idx[a]] > keys[idx[b]]
	})
	return idx
}

// Max returns the larger of a and b.
func Max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Min returns the smaller of a and b.
func Min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// CeilDiv returns ceil(a / b) for positive b.
func CeilDiv(a, b int) int {
	return (a + b - 1) / b
}
