package archives

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/qd-go/pkg/core"
	"github.com/XiaoConstantine/qd-go/pkg/errors"
)

func newUnitGrid(t *testing.T, opts ...GridOption) *GridArchive {
	t.Helper()
	archive, err := NewGridArchive(2, []int{10, 10}, [][2]float64{{0, 1}, {0, 1}}, opts...)
	require.NoError(t, err)
	return archive
}

func TestGridConstructorValidation(t *testing.T) {
	tests := []struct {
		name  string
		build func() error
	}{
		{"zero solution dim", func() error {
			_, err := NewGridArchive(0, []int{10}, [][2]float64{{0, 1}})
			return err
		}},
		{"no measure dims", func() error {
			_, err := NewGridArchive(2, nil, nil)
			return err
		}},
		{"range count mismatch", func() error {
			_, err := NewGridArchive(2, []int{10, 10}, [][2]float64{{0, 1}})
			return err
		}},
		{"inverted range", func() error {
			_, err := NewGridArchive(2, []int{10}, [][2]float64{{1, 0}})
			return err
		}},
		{"zero cells on axis", func() error {
			_, err := NewGridArchive(2, []int{10, 0}, [][2]float64{{0, 1}, {0, 1}})
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.build()
			assert.Error(t, err)
			assert.Equal(t, errors.InvalidArgument, errors.Code(err))
		})
	}
}

func TestGridIndexing(t *testing.T) {
	archive := newUnitGrid(t)

	// Reference indices for the 10x10 unit grid.
	tests := []struct {
		measures []float64
		index    int
	}{
		{[]float64{0.05, 0.05}, 1},
		{[]float64{0.95, 0.95}, 100},
		{[]float64{0.25, 0.55}, 53},
	}
	for _, tt := range tests {
		idx, err := archive.Index(tt.measures)
		require.NoError(t, err)
		assert.Equal(t, tt.index, idx, "measures %v", tt.measures)
	}

	t.Run("outer bins are half-open", func(t *testing.T) {
		low, err := archive.Index([]float64{-5, -5})
		require.NoError(t, err)
		assert.Equal(t, 1, low)

		high, err := archive.Index([]float64{5, 5})
		require.NoError(t, err)
		assert.Equal(t, 100, high)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := archive.Index([]float64{0.5})
		assert.Equal(t, errors.DimensionMismatch, errors.Code(err))
	})
}

func TestGridAddAndRetrieve(t *testing.T) {
	archive := newUnitGrid(t)

	result, err := archive.Add([]float64{0.5, 0.5}, 1.0, []float64{0.3, 0.3})
	require.NoError(t, err)
	assert.Equal(t, core.StatusNew, result.Status)
	assert.Equal(t, 1.0, result.Value)

	elite, ok, err := archive.Get([]float64{0.3, 0.3})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1.0, elite.Objective)
	assert.Equal(t, []float64{0.5, 0.5}, elite.Solution)

	// Same cell, higher objective: improvement is measured against the
	// occupant, not the threshold.
	result, err = archive.Add([]float64{0.7, 0.7}, 2.0, []float64{0.3, 0.3})
	require.NoError(t, err)
	assert.Equal(t, core.StatusImprove, result.Status)
	assert.Equal(t, 1.0, result.Value)

	// Below threshold: shortfall is objective - threshold.
	result, err = archive.Add([]float64{0.1, 0.1}, 0.5, []float64{0.3, 0.3})
	require.NoError(t, err)
	assert.Equal(t, core.StatusNotAdded, result.Status)

	tau, err := archive.Threshold([]float64{0.3, 0.3})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, tau, 2.0)
	assert.Equal(t, 0.5-tau, result.Value)
	assert.LessOrEqual(t, result.Value, 0.0)
}

func TestGridAddDimensionMismatch(t *testing.T) {
	archive := newUnitGrid(t)

	_, err := archive.Add([]float64{0.5}, 1.0, []float64{0.3, 0.3})
	assert.Equal(t, errors.DimensionMismatch, errors.Code(err))

	_, err = archive.Add([]float64{0.5, 0.5}, 1.0, []float64{0.3})
	assert.Equal(t, errors.DimensionMismatch, errors.Code(err))
}

func TestGridStatusTotality(t *testing.T) {
	archive := newUnitGrid(t)
	rng := rand.New(rand.NewSource(7))

	seen := map[int]bool{}
	for i := 0; i < 500; i++ {
		measures := []float64{rng.Float64(), rng.Float64()}
		idx, err := archive.Index(measures)
		require.NoError(t, err)

		wasOccupied := seen[idx]
		result, err := archive.Add([]float64{rng.Float64(), rng.Float64()}, rng.NormFloat64(), measures)
		require.NoError(t, err)

		// NEW iff the cell was previously unoccupied.
		if result.Status == core.StatusNew {
			assert.False(t, wasOccupied)
		} else {
			assert.True(t, wasOccupied)
		}
		seen[idx] = true
	}
	assert.Equal(t, len(seen), archive.Len())
}

func TestGridThresholdMonotoneAtFullLearningRate(t *testing.T) {
	archive := newUnitGrid(t)
	measures := []float64{0.42, 0.42}

	best := math.Inf(-1)
	objectives := []float64{1.0, 3.0, 2.0, 3.5, 3.5, -1.0}
	for _, obj := range objectives {
		result, err := archive.Add([]float64{0, 0}, obj, measures)
		require.NoError(t, err)
		if result.Status.Added() {
			best = math.Max(best, obj)
		}

		tau, err := archive.Threshold(measures)
		require.NoError(t, err)
		// With learning rate one the threshold is exactly the max
		// objective ever accepted into the cell.
		assert.Equal(t, best, tau)
	}
}

func TestGridThresholdBlend(t *testing.T) {
	archive := newUnitGrid(t, WithLearningRate(0.5), WithThresholdMin(0))
	measures := []float64{0.11, 0.11}

	_, err := archive.Add([]float64{0, 0}, 1.0, measures)
	require.NoError(t, err)
	tau, err := archive.Threshold(measures)
	require.NoError(t, err)
	assert.Equal(t, 1.0, tau)

	// 2.0 > 1.0, accepted: tau = 0.5*1.0 + 0.5*2.0 = 1.5
	_, err = archive.Add([]float64{0, 0}, 2.0, measures)
	require.NoError(t, err)
	tau, err = archive.Threshold(measures)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, tau, 1e-12)

	// Threshold never drops below the floor.
	assert.GreaterOrEqual(t, tau, 0.0)
}

func TestGridElitePermanence(t *testing.T) {
	// With a learning rate below one a decayed threshold can accept a
	// weaker occupant; the elite must keep the best ever accepted.
	archive := newUnitGrid(t, WithLearningRate(0.1), WithThresholdMin(0))
	measures := []float64{0.77, 0.77}

	_, err := archive.Add([]float64{1, 1}, 10.0, measures)
	require.NoError(t, err)

	// tau after acceptance: 0.9*10 + 0.1*10 = 10 on entry (max rule),
	// entry sets tau = max(0, 10) = 10. A 10.5 candidate passes and
	// drags tau to 0.9*10 + 0.1*10.5 = 10.05.
	_, err = archive.Add([]float64{2, 2}, 10.5, measures)
	require.NoError(t, err)

	// 10.2 > 10.05 passes but is weaker than the elite 10.5.
	result, err := archive.Add([]float64{3, 3}, 10.2, measures)
	require.NoError(t, err)
	assert.Equal(t, core.StatusImprove, result.Status)
	assert.InDelta(t, -0.3, result.Value, 1e-12)

	occupant, ok, err := archive.Get(measures)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 10.2, occupant.Objective)

	elite, ok, err := archive.GetElite(measures)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 10.5, elite.Objective)
	assert.Equal(t, []float64{2, 2}, elite.Solution)
}

func TestGridQDScoreIdentity(t *testing.T) {
	archive := newUnitGrid(t)
	rng := rand.New(rand.NewSource(11))

	for i := 0; i < 200; i++ {
		measures := []float64{rng.Float64(), rng.Float64()}
		_, err := archive.Add([]float64{0, 0}, rng.NormFloat64(), measures)
		require.NoError(t, err)
	}

	offset := archive.QDScoreOffset()
	assert.LessOrEqual(t, offset, 0.0)

	expected := 0.0
	for _, elite := range archive.Elites() {
		expected += elite.Objective - offset
	}
	assert.InDelta(t, expected, archive.QDScore(), 1e-9)
	assert.InDelta(t, expected/float64(archive.Cells()), archive.NormQDScore(), 1e-9)
	assert.GreaterOrEqual(t, archive.QDScore(), 0.0)
}

func TestGridOffsetTracksRejectedCandidates(t *testing.T) {
	archive := newUnitGrid(t, WithThresholdMin(0))

	_, err := archive.Add([]float64{0, 0}, 5.0, []float64{0.5, 0.5})
	require.NoError(t, err)

	// Rejected candidate still lowers the offset.
	result, err := archive.Add([]float64{0, 0}, -3.0, []float64{0.5, 0.5})
	require.NoError(t, err)
	assert.Equal(t, core.StatusNotAdded, result.Status)
	assert.Equal(t, -3.0, archive.QDScoreOffset())
	assert.InDelta(t, 8.0, archive.QDScore(), 1e-12)
}

func TestGridCoverageAndStats(t *testing.T) {
	archive := newUnitGrid(t)
	assert.Equal(t, 100, archive.Cells())
	assert.Equal(t, 0.0, archive.Coverage())
	assert.True(t, archive.Empty())

	_, err := archive.Add([]float64{0, 0}, 1.0, []float64{0.05, 0.05})
	require.NoError(t, err)
	_, err = archive.Add([]float64{0, 0}, 3.0, []float64{0.95, 0.95})
	require.NoError(t, err)

	assert.Equal(t, 2, archive.Len())
	assert.InDelta(t, 0.02, archive.Coverage(), 1e-12)
	assert.Equal(t, 3.0, archive.ObjMax())
	assert.InDelta(t, 2.0, archive.ObjMean(), 1e-12)
	assert.GreaterOrEqual(t, archive.Coverage(), 0.0)
	assert.LessOrEqual(t, archive.Coverage(), 1.0)
}

func TestGridClear(t *testing.T) {
	archive := newUnitGrid(t)

	_, err := archive.Add([]float64{0, 0}, -2.0, []float64{0.5, 0.5})
	require.NoError(t, err)
	require.Equal(t, 1, archive.Len())
	require.Equal(t, -2.0, archive.QDScoreOffset())

	archive.Clear()
	assert.True(t, archive.Empty())
	assert.Equal(t, 0.0, archive.QDScoreOffset())
	assert.Equal(t, 0.0, archive.Coverage())

	_, ok, err := archive.Get([]float64{0.5, 0.5})
	require.NoError(t, err)
	assert.False(t, ok)

	// Previously occupied cell accepts fresh candidates as NEW again.
	result, err := archive.Add([]float64{0, 0}, -5.0, []float64{0.5, 0.5})
	require.NoError(t, err)
	assert.Equal(t, core.StatusNew, result.Status)
}

func TestGridSample(t *testing.T) {
	archive := newUnitGrid(t)

	t.Run("empty archive fails", func(t *testing.T) {
		_, err := archive.Sample(rand.New(rand.NewSource(1)), 1)
		assert.Error(t, err)
		assert.Equal(t, errors.EmptyArchive, errors.Code(err))
	})

	t.Run("uniform with replacement", func(t *testing.T) {
		_, err := archive.Add([]float64{1, 0}, 1.0, []float64{0.05, 0.05})
		require.NoError(t, err)
		_, err = archive.Add([]float64{0, 1}, 2.0, []float64{0.95, 0.95})
		require.NoError(t, err)

		samples, err := archive.Sample(rand.New(rand.NewSource(1)), 100)
		require.NoError(t, err)
		assert.Len(t, samples, 100)

		cells := map[int]int{}
		for _, s := range samples {
			cells[s.Cell]++
		}
		// Both occupants appear under a seeded RNG over 100 draws.
		assert.Len(t, cells, 2)
	})
}

func TestGridCellUniqueness(t *testing.T) {
	archive := newUnitGrid(t)

	// Two measures mapping to the same cell compete for one slot.
	a := []float64{0.31, 0.31}
	b := []float64{0.39, 0.39}
	idxA, err := archive.Index(a)
	require.NoError(t, err)
	idxB, err := archive.Index(b)
	require.NoError(t, err)
	require.Equal(t, idxA, idxB)

	_, err = archive.Add([]float64{0, 0}, 1.0, a)
	require.NoError(t, err)
	_, err = archive.Add([]float64{1, 1}, 2.0, b)
	require.NoError(t, err)

	assert.Equal(t, 1, archive.Len())
	eliteA, _, err := archive.Get(a)
	require.NoError(t, err)
	eliteB, _, err := archive.Get(b)
	require.NoError(t, err)
	assert.Equal(t, eliteA, eliteB)
}

func TestGridReturnedElitesAreCopies(t *testing.T) {
	archive := newUnitGrid(t)
	_, err := archive.Add([]float64{0.5, 0.5}, 1.0, []float64{0.3, 0.3})
	require.NoError(t, err)

	elite, _, err := archive.Get([]float64{0.3, 0.3})
	require.NoError(t, err)
	elite.Solution[0] = 99

	again, _, err := archive.Get([]float64{0.3, 0.3})
	require.NoError(t, err)
	assert.Equal(t, 0.5, again.Solution[0])
}
