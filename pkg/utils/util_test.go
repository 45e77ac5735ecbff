package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-1, 0, 1))
	assert.Equal(t, 1.0, Clamp(2, 0, 1))
	assert.Equal(t, 0.5, Clamp(0.5, 0, 1))
}

func TestClampVec(t *testing.T) {
	v := []float64{-2, 0.5, 7}
	ClampVec(v, []float64{0, 0, 0}, []float64{1, 1, 1})
	assert.Equal(t, []float64{0, 0.5, 1}, v)
}

func TestCopyFloats(t *testing.T) {
	v := []float64{1, 2, 3}
	c := CopyFloats(v)
	c[0] = 9
	assert.Equal(t, 1.0, v[0])
}

func TestArgsortDescending(t *testing.T) {
	idx := ArgsortDescending([]float64{0.1, 2.5, 1.0})
	assert.Equal(t, []int{1, 2, 0}, idx)
}

func TestArgsortDescendingStable(t *testing.T) {
	idx := ArgsortDescending([]float64{1.0, 1.0, 2.0})
	assert.Equal(t, []int{2, 0, 1}, idx)
}

func TestMinMax(t *testing.T) {
	assert.Equal(t, 3, Max(1, 3))
	assert.Equal(t, 1, Min(1, 3))
	assert.Equal(t, -1, Max(-1, -3))
}

func TestCeilDiv(t *testing.T) {
	assert.Equal(t, 4, CeilDiv(10, 3))
	assert.Equal(t, 3, CeilDiv(9, 3))
	assert.Equal(t, 1, CeilDiv(1, 8))
}
