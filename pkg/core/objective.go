package core

import (
	"github.com/XiaoConstantine/qd-go/pkg/errors"
)

// ValidateObjective probes the callback once with a zero vector of
// length solutionDim and verifies the returned record matches the
// archive's measure dimension. Schedulers call this at startup so a
// malformed callback fails before any real evaluation.
func ValidateObjective(f Objective, solutionDim, measureDim int) error {
	if f == nil {
		return errors.New(errors.InvalidObjective, "objective callback is nil")
	}

	probe := f(make([]float64, solutionDim))
	if len(probe.Measures) != measureDim {
		return errors.WithFields(
			errors.New(errors.InvalidObjective, "objective callback returns wrong measure dimension"),
			errors.Fields{"expected": measureDim, "actual": len(probe.Measures)},
		)
	}

	return nil
}
