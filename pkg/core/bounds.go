package core

import (
	"math"

	"github.com/XiaoConstantine/qd-go/pkg/errors"
)

// Bounds holds per-dimension solution bounds. A zero Bounds is invalid;
// use one of the constructors.
type Bounds struct {
	Lower []float64
	Upper []float64
}

// Unbounded returns bounds of (-Inf, +Inf) in every dimension.
func Unbounded(dim int) Bounds {
	lower := make([]float64, dim)
	upper := make([]float64, dim)
	for i := 0; i < dim; i++ {
		lower[i] = math.Inf(-1)
		upper[i] = math.Inf(1)
	}
	return Bounds{Lower: lower, Upper: upper}
}

// UniformBounds broadcasts a single (lo, hi) pair to every dimension.
func UniformBounds(lo, hi float64, dim int) (Bounds, error) {
	if lo >= hi {
		return Bounds{}, errors.WithFields(
			errors.New(errors.InvalidArgument, "bounds range is inverted"),
			errors.Fields{"lower": lo, "upper": hi},
		)
	}
	lower := make([]float64, dim)
	upper := make([]float64, dim)
	for i := 0; i < dim; i++ {
		lower[i] = lo
		upper[i] = hi
	}
	return Bounds{Lower: lower, Upper: upper}, nil
}

// NewBounds builds per-dimension bounds from explicit vectors.
func NewBounds(lower, upper []float64) (Bounds, error) {
	if len(lower) != len(upper) {
		return Bounds{}, errors.WithFields(
			errors.New(errors.InvalidArgument, "bound vectors differ in length"),
			errors.Fields{"lower_len": len(lower), "upper_len": len(upper)},
		)
	}
	for i := range lower {
		if lower[i] >= upper[i] {
			return Bounds{}, errors.WithFields(
				errors.New(errors.InvalidArgument, "bounds range is inverted"),
				errors.Fields{"dim": i, "lower": lower[i], "upper": upper[i]},
			)
		}
	}
	return Bounds{
		Lower: append([]float64(nil), lower...),
		Upper: append([]float64(nil), upper...),
	}, nil
}

// Dim returns the number of bounded dimensions.
func (b Bounds) Dim() int {
	return len(b.Lower)
}

// Clamp limits v componentwise to [Lower, Upper] in place.
func (b Bounds) Clamp(v []float64) {
	for i := range v {
		if v[i] < b.Lower[i] {
			v[i] = b.Lower[i]
		} else if v[i] > b.Upper[i] {
			v[i] = b.Upper[i]
		}
	}
}

// Contains reports whether v lies componentwise within the bounds.
func (b Bounds) Contains(v []float64) bool {
	for i := range v {
		if v[i] < b.Lower[i] || v[i] > b.Upper[i] {
			return false
		}
	}
	return true
}
