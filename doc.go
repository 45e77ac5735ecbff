// Package qd is a Go implementation of a Quality-Diversity optimization
// engine: rather than hunting a single optimum, it grows an archive of
// high-performing solutions that differ in behavior.
//
// A user supplies a black-box objective that maps a solution vector to
// a scalar objective plus a low-dimensional measure vector. The engine
// partitions measure space into an archive, generates candidates with
// emitters, and drives batched (optionally parallel) evaluation through
// a scheduler until the evaluation budget runs out.
//
// Key Components:
//
//   - Core: the capability contracts (Archive, Emitter, Scheduler), the
//     Evaluation record returned by objectives, the AddStatus sum type,
//     and bounds handling.
//
//   - Archives: storage for elites over measure space:
//     * GridArchive: uniform tessellation with threshold-gated
//       replacement and QD summary statistics
//     * ParetoArchive: the non-dominated set over objective and
//       measures jointly
//
//   - Emitters: candidate generators feeding evaluations back into
//     their archive:
//     * GaussianEmitter: elite perturbation with per-dimension noise
//     * IsoLineEmitter: the Iso+LineDD crossover-style operator
//     * CMAESEmitter: full covariance matrix adaptation with six
//       ranking policies and restart handling
//
//   - Schedulers: orchestration of the ask/evaluate/tell loop:
//     * RoundRobinScheduler: cycles emitters one batch each
//     * BanditScheduler: allocates batches by UCB1 or Thompson
//       sampling over emitter reward history
//
// Simple Example:
//
//	import (
//	    "context"
//	    "log"
//
//	    "github.com/XiaoConstantine/qd-go/pkg/archives"
//	    "github.com/XiaoConstantine/qd-go/pkg/core"
//	    "github.com/XiaoConstantine/qd-go/pkg/emitters"
//	    "github.com/XiaoConstantine/qd-go/pkg/schedulers"
//	)
//
//	func main() {
//	    archive, err := archives.NewGridArchive(2, []int{20, 20}, [][2]float64{{0, 1}, {0, 1}})
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    emitter, err := emitters.NewGaussianEmitter(archive, []float64{0.5, 0.5}, []float64{0.1})
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    scheduler, err := schedulers.NewRoundRobinScheduler([]core.Emitter{emitter},
//	        schedulers.WithBatchSize(32))
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    objective := func(x []float64) core.Evaluation {
//	        return core.Evaluation{Objective: x[0] + x[1], Measures: []float64{x[0], x[1]}}
//	    }
//	    if err := scheduler.Run(context.Background(), objective, 10000); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//
// Advanced Features:
//
//   - Structured Logging: per-batch progress reports flow through the
//     logging package with batch and evaluation counters attached.
//
//   - Error Handling: a closed taxonomy of structured error codes
//     raised at API boundaries; archive rejection is a result, never an
//     error.
//
//   - Config-Driven Assembly: the config package builds a ready-to-run
//     scheduler from a validated YAML description.
//
//   - Reproducibility: every emitter and the bandit scheduler own a
//     seedable RNG, and parallel evaluation never consumes from them.
package qd
