package archives

import (
	"math"
	"math/rand"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/XiaoConstantine/qd-go/pkg/core"
	"github.com/XiaoConstantine/qd-go/pkg/errors"
	"github.com/XiaoConstantine/qd-go/pkg/utils"
)

// GridArchive tessellates measure space into a uniform grid and keeps
// at most one elite per cell. Replacement is gated by a per-cell
// threshold updated as an exponential moving average with coefficient
// LearningRate; cells stay occupied until Clear.
//
// Cell indices are 1-based: index = b_1 + sum_{i>=2} (b_i-1) * prod_{j<i} K_j
// where b_i is the 1-based bin of measure i.
type GridArchive struct {
	solutionDim int
	measureDim  int
	dims        []int
	strides     []int
	lower       []float64
	upper       []float64
	boundaries  [][]float64 // interior bin edges per measure axis
	cells       int

	learningRate float64
	thresholdMin float64

	occupied   *roaring.Bitmap
	solutions  []float64 // cells x solutionDim, one column per cell
	objectives []float64
	measures   []float64 // cells x measureDim
	thresholds []float64

	// Best-ever record per cell. Distinct from the occupant: with a
	// learning rate below one a cell can accept a lower-objective
	// candidate once its threshold has decayed.
	eliteSolutions  []float64
	eliteObjectives []float64
	eliteMeasures   []float64

	// Running minimum of every objective ever passed to Add, rejected
	// candidates included. Keeps the QD score non-negative for
	// pessimistic objectives.
	qdScoreOffset float64
}

var _ core.Archive = (*GridArchive)(nil)

// GridOption configures optional archive parameters.
type GridOption func(*GridArchive)

// WithLearningRate sets the threshold EMA coefficient (default 1.0).
func WithLearningRate(alpha float64) GridOption {
	return func(g *GridArchive) {
		g.learningRate = alpha
	}
}

// WithThresholdMin sets the floor on cell thresholds (default -Inf).
func WithThresholdMin(min float64) GridOption {
	return func(g *GridArchive) {
		g.thresholdMin = min
	}
}

// NewGridArchive builds a grid archive over measure space.
// cellsPerMeasure gives the bin count along each measure axis and
// measureRanges the (lower, upper) extent of each axis.
func NewGridArchive(solutionDim int, cellsPerMeasure []int, measureRanges [][2]float64, opts ...GridOption) (*GridArchive, error) {
	if solutionDim <= 0 {
		return nil, errors.WithFields(
			errors.New(errors.InvalidArgument, "solution dimension must be positive"),
			errors.Fields{"solution_dim": solutionDim},
		)
	}
	if len(cellsPerMeasure) == 0 {
		return nil, errors.New(errors.InvalidArgument, "at least one measure dimension is required")
	}
	if len(measureRanges) != len(cellsPerMeasure) {
		return nil, errors.WithFields(
			errors.New(errors.InvalidArgument, "measure ranges and cell counts differ in length"),
			errors.Fields{"ranges": len(measureRanges), "cells": len(cellsPerMeasure)},
		)
	}

	g := &GridArchive{
		solutionDim:  solutionDim,
		measureDim:   len(cellsPerMeasure),
		dims:         append([]int(nil), cellsPerMeasure...),
		learningRate: 1.0,
		thresholdMin: math.Inf(-1),
	}

	cells := 1
	g.strides = make([]int, g.measureDim)
	g.lower = make([]float64, g.measureDim)
	g.upper = make([]float64, g.measureDim)
	g.boundaries = make([][]float64, g.measureDim)
	for i, k := range cellsPerMeasure {
		if k <= 0 {
			return nil, errors.WithFields(
				errors.New(errors.InvalidArgument, "cells per measure must be positive"),
				errors.Fields{"axis": i, "cells": k},
			)
		}
		lo, hi := measureRanges[i][0], measureRanges[i][1]
		if lo >= hi {
			return nil, errors.WithFields(
				errors.New(errors.InvalidArgument, "measure range is inverted"),
				errors.Fields{"axis": i, "lower": lo, "upper": hi},
			)
		}
		g.strides[i] = cells
		cells *= k
		g.lower[i] = lo
		g.upper[i] = hi

		edges := make([]float64, k-1)
		width := hi - lo
		for j := 1; j < k; j++ {
			edges[j-1] = lo + width*float64(j)/float64(k)
		}
		g.boundaries[i] = edges
	}
	g.cells = cells

	for _, opt := range opts {
		opt(g)
	}

	g.occupied = roaring.New()
	g.solutions = make([]float64, cells*solutionDim)
	g.objectives = make([]float64, cells)
	g.measures = make([]float64, cells*g.measureDim)
	g.thresholds = make([]float64, cells)
	g.eliteSolutions = make([]float64, cells*solutionDim)
	g.eliteObjectives = make([]float64, cells)
	g.eliteMeasures = make([]float64, cells*g.measureDim)
	g.resetCells()

	return g, nil
}

func (g *GridArchive) resetCells() {
	negInf := math.Inf(-1)
	for c := 0; c < g.cells; c++ {
		g.objectives[c] = negInf
		g.thresholds[c] = g.thresholdMin
		g.eliteObjectives[c] = negInf
	}
	g.qdScoreOffset = 0
}

// Index maps a measure vector to its 1-based cell index. The first and
// last bins along each axis are half-open toward -Inf and +Inf.
func (g *GridArchive) Index(measures []float64) (int, error) {
	if len(measures) != g.measureDim {
		return 0, g.measureMismatch(len(measures))
	}
	return g.slot(measures) + 1, nil
}

// slot computes the 0-based storage slot for a measure vector whose
// dimension has already been validated.
func (g *GridArchive) slot(measures []float64) int {
	idx := 0
	for i, mu := range measures {
		b := sort.SearchFloat64s(g.boundaries[i], mu)
		idx += b * g.strides[i]
	}
	return idx
}

func (g *GridArchive) measureMismatch(actual int) error {
	return errors.WithFields(
		errors.New(errors.DimensionMismatch, "measure length does not match archive"),
		errors.Fields{"expected": g.measureDim, "actual": actual},
	)
}

// Add inserts a candidate following the threshold replacement rule.
func (g *GridArchive) Add(solution []float64, objective float64, measures []float64) (core.AddResult, error) {
	if len(solution) != g.solutionDim {
		return core.AddResult{}, errors.WithFields(
			errors.New(errors.DimensionMismatch, "solution length does not match archive"),
			errors.Fields{"expected": g.solutionDim, "actual": len(solution)},
		)
	}
	if len(measures) != g.measureDim {
		return core.AddResult{}, g.measureMismatch(len(measures))
	}

	if objective < g.qdScoreOffset {
		g.qdScoreOffset = objective
	}

	c := g.slot(measures)

	if !g.occupied.Contains(uint32(c)) {
		g.occupied.Add(uint32(c))
		g.storeOccupant(c, solution, objective, measures)
		g.thresholds[c] = math.Max(g.thresholdMin, objective)
		g.storeElite(c, solution, objective, measures)
		return core.AddResult{Status: core.StatusNew, Value: objective}, nil
	}

	if objective > g.thresholds[c] {
		improvement := objective - g.objectives[c]
		g.storeOccupant(c, solution, objective, measures)
		alpha := g.learningRate
		g.thresholds[c] = math.Max(g.thresholdMin, (1-alpha)*g.thresholds[c]+alpha*objective)
		if objective > g.eliteObjectives[c] {
			g.storeElite(c, solution, objective, measures)
		}
		return core.AddResult{Status: core.StatusImprove, Value: improvement}, nil
	}

	return core.AddResult{Status: core.StatusNotAdded, Value: objective - g.thresholds[c]}, nil
}

func (g *GridArchive) storeOccupant(c int, solution []float64, objective float64, measures []float64) {
	copy(g.solutions[c*g.solutionDim:(c+1)*g.solutionDim], solution)
	copy(g.measures[c*g.measureDim:(c+1)*g.measureDim], measures)
	g.objectives[c] = objective
}

func (g *GridArchive) storeElite(c int, solution []float64, objective float64, measures []float64) {
	copy(g.eliteSolutions[c*g.solutionDim:(c+1)*g.solutionDim], solution)
	copy(g.eliteMeasures[c*g.measureDim:(c+1)*g.measureDim], measures)
	g.eliteObjectives[c] = objective
}

// Clear resets occupancy, objectives, thresholds, elites, and the QD
// score offset.
func (g *GridArchive) Clear() {
	g.occupied.Clear()
	g.resetCells()
}

// Get returns the current occupant of the cell the measures map to.
func (g *GridArchive) Get(measures []float64) (core.Elite, bool, error) {
	if len(measures) != g.measureDim {
		return core.Elite{}, false, g.measureMismatch(len(measures))
	}
	c := g.slot(measures)
	if !g.occupied.Contains(uint32(c)) {
		return core.Elite{}, false, nil
	}
	return g.occupantAt(c), true, nil
}

// GetElite returns the best solution ever accepted into the cell the
// measures map to.
func (g *GridArchive) GetElite(measures []float64) (core.Elite, bool, error) {
	if len(measures) != g.measureDim {
		return core.Elite{}, false, g.measureMismatch(len(measures))
	}
	c := g.slot(measures)
	if !g.occupied.Contains(uint32(c)) {
		return core.Elite{}, false, nil
	}
	return core.Elite{
		Cell:      c + 1,
		Solution:  utils.CopyFloats(g.eliteSolutions[c*g.solutionDim : (c+1)*g.solutionDim]),
		Objective: g.eliteObjectives[c],
		Measures:  utils.CopyFloats(g.eliteMeasures[c*g.measureDim : (c+1)*g.measureDim]),
	}, true, nil
}

func (g *GridArchive) occupantAt(c int) core.Elite {
	return core.Elite{
		Cell:      c + 1,
		Solution:  utils.CopyFloats(g.solutions[c*g.solutionDim : (c+1)*g.solutionDim]),
		Objective: g.objectives[c],
		Measures:  utils.CopyFloats(g.measures[c*g.measureDim : (c+1)*g.measureDim]),
	}
}

// Elites returns the current occupants of all occupied cells.
func (g *GridArchive) Elites() []core.Elite {
	out := make([]core.Elite, 0, g.occupied.GetCardinality())
	it := g.occupied.Iterator()
	for it.HasNext() {
		out = append(out, g.occupantAt(int(it.Next())))
	}
	return out
}

// Sample draws n occupants uniformly with replacement.
func (g *GridArchive) Sample(rng *rand.Rand, n int) ([]core.Elite, error) {
	card := int(g.occupied.GetCardinality())
	if card == 0 {
		return nil, errors.New(errors.EmptyArchive, "cannot sample from an empty archive")
	}
	out := make([]core.Elite, n)
	for i := 0; i < n; i++ {
		slot, err := g.occupied.Select(uint32(rng.Intn(card)))
		if err != nil {
			return nil, errors.Wrap(err, errors.Unknown, "occupancy select failed")
		}
		out[i] = g.occupantAt(int(slot))
	}
	return out, nil
}

// Threshold returns the acceptance threshold of the cell the measures
// map to.
func (g *GridArchive) Threshold(measures []float64) (float64, error) {
	if len(measures) != g.measureDim {
		return 0, g.measureMismatch(len(measures))
	}
	return g.thresholds[g.slot(measures)], nil
}

// QDScoreOffset returns the running minimum objective ever observed.
func (g *GridArchive) QDScoreOffset() float64 {
	return g.qdScoreOffset
}

func (g *GridArchive) Len() int {
	return int(g.occupied.GetCardinality())
}

func (g *GridArchive) Empty() bool {
	return g.occupied.IsEmpty()
}

func (g *GridArchive) SolutionDim() int { return g.solutionDim }
func (g *GridArchive) MeasureDim() int  { return g.measureDim }
func (g *GridArchive) Cells() int       { return g.cells }

// CellsPerMeasure returns the bin counts per measure axis.
func (g *GridArchive) CellsPerMeasure() []int {
	return append([]int(nil), g.dims...)
}

func (g *GridArchive) Coverage() float64 {
	return float64(g.Len()) / float64(g.cells)
}

func (g *GridArchive) ObjMax() float64 {
	max := math.Inf(-1)
	it := g.occupied.Iterator()
	for it.HasNext() {
		if obj := g.objectives[it.Next()]; obj > max {
			max = obj
		}
	}
	return max
}

func (g *GridArchive) ObjMean() float64 {
	count := g.Len()
	if count == 0 {
		return 0
	}
	sum := 0.0
	it := g.occupied.Iterator()
	for it.HasNext() {
		sum += g.objectives[it.Next()]
	}
	return sum / float64(count)
}

func (g *GridArchive) QDScore() float64 {
	score := 0.0
	it := g.occupied.Iterator()
	for it.HasNext() {
		score += g.objectives[it.Next()] - g.qdScoreOffset
	}
	return score
}

func (g *GridArchive) NormQDScore() float64 {
	return g.QDScore() / float64(g.cells)
}
