package core

import "math/rand"

// Archive stores elites partitioned over measure space and tracks
// quality-diversity summary statistics.
//
// Implementations serialize all mutation on the caller's goroutine;
// see the scheduler contract for the concurrency model.
type Archive interface {
	// Add inserts a candidate. It fails only on dimension mismatch;
	// rejection by threshold or dominance is a normal AddResult.
	Add(solution []float64, objective float64, measures []float64) (AddResult, error)

	// Clear resets the archive to its freshly constructed state.
	Clear()

	// Get returns the current occupant of the cell the measures map to.
	// The second return is false when the cell is empty.
	Get(measures []float64) (Elite, bool, error)

	// GetElite returns the best solution ever accepted into the cell
	// the measures map to, which may outlive the current occupant when
	// the threshold learning rate is below one.
	GetElite(measures []float64) (Elite, bool, error)

	// Elites returns the current occupants of all occupied cells.
	Elites() []Elite

	// Sample draws n occupants uniformly with replacement using the
	// caller's RNG. Fails with EmptyArchive when nothing is stored.
	Sample(rng *rand.Rand, n int) ([]Elite, error)

	Len() int
	Empty() bool
	SolutionDim() int
	MeasureDim() int
	Cells() int

	// Summary statistics over occupied cells.
	Coverage() float64
	ObjMax() float64
	ObjMean() float64
	QDScore() float64
	NormQDScore() float64
}
