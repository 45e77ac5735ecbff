package schedulers

import (
	"github.com/sourcegraph/conc/pool"

	"github.com/XiaoConstantine/qd-go/pkg/core"
)

// evaluate runs the objective over every solution in the batch. The
// parallel path is a data-parallel map across batch columns: workers
// only touch their own result slot, never emitter RNGs or archives.
func evaluate(objective core.Objective, solutions [][]float64, parallel bool, maxWorkers int) ([]float64, [][]float64) {
	objectives := make([]float64, len(solutions))
	measures := make([][]float64, len(solutions))

	if !parallel {
		for i, solution := range solutions {
			evaluation := objective(solution)
			objectives[i] = evaluation.Objective
			measures[i] = evaluation.Measures
		}
		return objectives, measures
	}

	p := pool.New().WithMaxGoroutines(maxWorkers)
	for i, solution := range solutions {
		i, solution := i, solution
		p.Go(func() {
			evaluation := objective(solution)
			objectives[i] = evaluation.Objective
			measures[i] = evaluation.Measures
		})
	}
	p.Wait()

	return objectives, measures
}

// distinctArchives collects the unique archives referenced by a list of
// emitters, preserving first-seen order.
func distinctArchives(emitters []core.Emitter) []core.Archive {
	seen := make(map[core.Archive]bool, len(emitters))
	out := make([]core.Archive, 0, len(emitters))
	for _, emitter := range emitters {
		archive := emitter.Archive()
		if !seen[archive] {
			seen[archive] = true
			out = append(out, archive)
		}
	}
	return out
}
