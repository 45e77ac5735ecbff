package schedulers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/qd-go/pkg/archives"
	"github.com/XiaoConstantine/qd-go/pkg/core"
)

func TestReporterSnapshot(t *testing.T) {
	a := testArchive(t)
	b := testArchive(t)

	_, err := a.Add([]float64{0, 0}, 1.0, []float64{0.05, 0.05})
	require.NoError(t, err)
	_, err = a.Add([]float64{0, 0}, 3.0, []float64{0.95, 0.95})
	require.NoError(t, err)
	_, err = b.Add([]float64{0, 0}, 5.0, []float64{0.5, 0.5})
	require.NoError(t, err)

	t.Run("verbose", func(t *testing.T) {
		report := NewReporter([]core.Archive{a, b}, core.ReportVerbose).Snapshot(4, 40)

		assert.Equal(t, 4, report.Batch)
		assert.Equal(t, 40, report.TotalEvaluations)
		assert.Equal(t, 5.0, report.BestObjective)
		// coverage: (2/100 + 1/100) / 2
		assert.InDelta(t, 0.015, report.Coverage, 1e-12)
		// qd score: (1 + 3) + 5, offsets are zero here
		assert.InDelta(t, 9.0, report.TotalQDScore, 1e-12)
		// mean objective: (2 + 5) / 2
		assert.InDelta(t, 3.5, report.MeanObjective, 1e-12)
		assert.Equal(t, 200, report.TotalCells)
		assert.Equal(t, 3, report.FilledCells)
	})

	t.Run("compact omits verbose fields", func(t *testing.T) {
		report := NewReporter([]core.Archive{a, b}, core.ReportCompact).Snapshot(4, 40)

		assert.Equal(t, 5.0, report.BestObjective)
		assert.Zero(t, report.MeanObjective)
		assert.Zero(t, report.NormalizedQDScore)
		assert.Zero(t, report.TotalCells)
		assert.Zero(t, report.FilledCells)
	})
}

func TestReporterMixedArchiveKinds(t *testing.T) {
	grid := testArchive(t)
	pareto, err := archives.NewParetoArchive(2, 2)
	require.NoError(t, err)

	_, err = grid.Add([]float64{0, 0}, 1.0, []float64{0.5, 0.5})
	require.NoError(t, err)
	_, err = pareto.Add([]float64{0, 0}, 2.0, []float64{0.5, 0.5})
	require.NoError(t, err)

	report := NewReporter([]core.Archive{grid, pareto}, core.ReportVerbose).Snapshot(1, 10)
	assert.Equal(t, 2.0, report.BestObjective)
	assert.Equal(t, 2, report.FilledCells)
}

func TestReporterEmit(t *testing.T) {
	a := testArchive(t)
	_, err := a.Add([]float64{0, 0}, 1.0, []float64{0.5, 0.5})
	require.NoError(t, err)

	report := NewReporter([]core.Archive{a}, core.ReportCompact).Emit(context.Background(), 2, 20)
	assert.Equal(t, 2, report.Batch)
	assert.Equal(t, 20, report.TotalEvaluations)
}
