package schedulers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/qd-go/pkg/archives"
	"github.com/XiaoConstantine/qd-go/pkg/core"
	"github.com/XiaoConstantine/qd-go/pkg/emitters"
	"github.com/XiaoConstantine/qd-go/pkg/errors"
)

// sumObjective rewards the coordinate sum and uses the solution itself
// as its measure, so every cell of the unit grid is reachable.
func sumObjective(x []float64) core.Evaluation {
	return core.Evaluation{
		Objective: x[0] + x[1],
		Measures:  []float64{x[0], x[1]},
	}
}

func testArchive(t *testing.T) *archives.GridArchive {
	t.Helper()
	archive, err := archives.NewGridArchive(2, []int{10, 10}, [][2]float64{{0, 1}, {0, 1}})
	require.NoError(t, err)
	return archive
}

func testEmitter(t *testing.T, archive core.Archive, seed int64) core.Emitter {
	t.Helper()
	bounds, err := core.UniformBounds(0, 1, 2)
	require.NoError(t, err)
	emitter, err := emitters.NewGaussianEmitter(archive, []float64{0.5, 0.5}, []float64{0.1},
		emitters.WithBounds(bounds), emitters.WithSeed(seed))
	require.NoError(t, err)
	return emitter
}

func TestRoundRobinValidation(t *testing.T) {
	archive := testArchive(t)

	t.Run("no emitters", func(t *testing.T) {
		_, err := NewRoundRobinScheduler(nil)
		assert.Equal(t, errors.InvalidArgument, errors.Code(err))
	})

	t.Run("mismatched emitter dims", func(t *testing.T) {
		other, err := archives.NewGridArchive(3, []int{10, 10}, [][2]float64{{0, 1}, {0, 1}})
		require.NoError(t, err)
		otherEmitter, err := emitters.NewGaussianEmitter(other, []float64{0.5, 0.5, 0.5}, []float64{0.1})
		require.NoError(t, err)

		_, err = NewRoundRobinScheduler([]core.Emitter{testEmitter(t, archive, 1), otherEmitter})
		assert.Equal(t, errors.InvalidArgument, errors.Code(err))
	})

	t.Run("bad batch size", func(t *testing.T) {
		_, err := NewRoundRobinScheduler([]core.Emitter{testEmitter(t, archive, 1)}, WithBatchSize(0))
		assert.Equal(t, errors.InvalidArgument, errors.Code(err))
	})

	t.Run("bad evaluation budget", func(t *testing.T) {
		scheduler, err := NewRoundRobinScheduler([]core.Emitter{testEmitter(t, archive, 1)})
		require.NoError(t, err)
		err = scheduler.Run(context.Background(), sumObjective, 0)
		assert.Equal(t, errors.InvalidArgument, errors.Code(err))
	})
}

func TestRoundRobinInvalidObjective(t *testing.T) {
	archive := testArchive(t)
	scheduler, err := NewRoundRobinScheduler([]core.Emitter{testEmitter(t, archive, 1)},
		WithBatchSize(10), WithProgress(false))
	require.NoError(t, err)

	evaluated := 0
	// Returns a single measure where the archive expects two.
	bad := func(x []float64) core.Evaluation {
		evaluated++
		return core.Evaluation{Objective: x[0], Measures: []float64{x[0]}}
	}

	err = scheduler.Run(context.Background(), bad, 100)
	assert.Error(t, err)
	assert.Equal(t, errors.InvalidObjective, errors.Code(err))
	// The startup probe is the only call that may have happened.
	assert.LessOrEqual(t, evaluated, 1)
	assert.True(t, archive.Empty())
}

func TestRoundRobinCoverageGrows(t *testing.T) {
	archive := testArchive(t)
	scheduler, err := NewRoundRobinScheduler([]core.Emitter{testEmitter(t, archive, 42)},
		WithBatchSize(10), WithProgress(false))
	require.NoError(t, err)

	require.NoError(t, scheduler.Run(context.Background(), sumObjective, 1000))

	assert.Equal(t, 1000, scheduler.TotalEvaluations())
	assert.Greater(t, archive.Coverage(), 0.0)
	assert.Greater(t, archive.Len(), 0)

	best, ok := scheduler.Best()
	require.True(t, ok)
	assert.Greater(t, best.Objective, 0.0)
}

func TestRoundRobinCyclesEmitters(t *testing.T) {
	shared := testArchive(t)
	a := testEmitter(t, shared, 1)
	b := testEmitter(t, shared, 2)

	scheduler, err := NewRoundRobinScheduler([]core.Emitter{a, b},
		WithBatchSize(5), WithProgress(false))
	require.NoError(t, err)

	// 4 batches of 5: each emitter runs twice against the shared
	// archive.
	require.NoError(t, scheduler.Run(context.Background(), sumObjective, 20))
	assert.Equal(t, 20, scheduler.TotalEvaluations())
	assert.Greater(t, shared.Len(), 0)
}

func TestRoundRobinParallelEvaluation(t *testing.T) {
	archive := testArchive(t)
	scheduler, err := NewRoundRobinScheduler([]core.Emitter{testEmitter(t, archive, 42)},
		WithBatchSize(16), WithParallel(true), WithMaxWorkers(4), WithProgress(false))
	require.NoError(t, err)

	require.NoError(t, scheduler.Run(context.Background(), sumObjective, 160))
	assert.Greater(t, archive.Len(), 0)
}

func TestRoundRobinReproducibility(t *testing.T) {
	run := func() []core.Elite {
		archive := testArchive(t)
		scheduler, err := NewRoundRobinScheduler([]core.Emitter{testEmitter(t, archive, 7)},
			WithBatchSize(10), WithProgress(false))
		require.NoError(t, err)
		require.NoError(t, scheduler.Run(context.Background(), sumObjective, 300))
		return archive.Elites()
	}

	assert.Equal(t, run(), run())
}

func TestRoundRobinContextCancellation(t *testing.T) {
	archive := testArchive(t)
	scheduler, err := NewRoundRobinScheduler([]core.Emitter{testEmitter(t, archive, 42)},
		WithBatchSize(10), WithProgress(false))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = scheduler.Run(ctx, sumObjective, 1000)
	assert.Error(t, err)
	assert.Equal(t, errors.Canceled, errors.Code(err))
}
