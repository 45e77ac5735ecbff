package schedulers

import (
	"context"
	"math"

	"github.com/XiaoConstantine/qd-go/pkg/core"
	"github.com/XiaoConstantine/qd-go/pkg/logging"
)

// Report aggregates archive metrics at a batch boundary. The verbose
// fields are only populated (and logged) in ReportVerbose mode.
type Report struct {
	Batch            int     `json:"batch"`
	TotalEvaluations int     `json:"total_evaluations"`
	BestObjective    float64 `json:"best_objective"`
	Coverage         float64 `json:"coverage"`
	TotalQDScore     float64 `json:"total_qd_score"`

	MeanObjective     float64 `json:"mean_objective,omitempty"`
	NormalizedQDScore float64 `json:"normalized_qd_score,omitempty"`
	TotalCells        int     `json:"total_cells,omitempty"`
	FilledCells       int     `json:"filled_cells,omitempty"`
}

// Reporter computes per-batch progress records over a set of report
// archives and emits them through the process logger at INFO.
type Reporter struct {
	archives []core.Archive
	mode     core.ReportMode
	logger   *logging.Logger
}

// NewReporter builds a reporter over the given archives.
func NewReporter(archives []core.Archive, mode core.ReportMode) *Reporter {
	return &Reporter{
		archives: archives,
		mode:     mode,
		logger:   logging.GetLogger(),
	}
}

// Snapshot computes the current report without emitting it.
func (r *Reporter) Snapshot(batch, totalEvaluations int) Report {
	report := Report{
		Batch:            batch,
		TotalEvaluations: totalEvaluations,
		BestObjective:    math.Inf(-1),
	}

	coverageSum := 0.0
	meanSum := 0.0
	normSum := 0.0
	for _, archive := range r.archives {
		if objMax := archive.ObjMax(); objMax > report.BestObjective {
			report.BestObjective = objMax
		}
		coverageSum += archive.Coverage()
		report.TotalQDScore += archive.QDScore()
		meanSum += archive.ObjMean()
		normSum += archive.NormQDScore()
		report.TotalCells += archive.Cells()
		report.FilledCells += archive.Len()
	}
	if n := float64(len(r.archives)); n > 0 {
		report.Coverage = coverageSum / n
		report.MeanObjective = meanSum / n
		report.NormalizedQDScore = normSum / n
	}

	if r.mode != core.ReportVerbose {
		report.MeanObjective = 0
		report.NormalizedQDScore = 0
		report.TotalCells = 0
		report.FilledCells = 0
	}
	return report
}

// Emit computes the report and logs it as a structured INFO record.
func (r *Reporter) Emit(ctx context.Context, batch, totalEvaluations int) Report {
	report := r.Snapshot(batch, totalEvaluations)

	fields := map[string]interface{}{
		"batch":             report.Batch,
		"total_evaluations": report.TotalEvaluations,
		"best_objective":    report.BestObjective,
		"coverage":          report.Coverage,
		"total_qd_score":    report.TotalQDScore,
	}
	if r.mode == core.ReportVerbose {
		fields["mean_objective"] = report.MeanObjective
		fields["normalized_qd_score"] = report.NormalizedQDScore
		fields["total_cells"] = report.TotalCells
		fields["filled_cells"] = report.FilledCells
	}

	ctx = logging.WithProgress(ctx, logging.Progress{
		Batch:       report.Batch,
		Evaluations: report.TotalEvaluations,
		QDScore:     report.TotalQDScore,
	})
	r.logger.Report(ctx, "progress", fields)
	return report
}
