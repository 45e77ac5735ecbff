// Package config loads engine descriptions from YAML and assembles the
// corresponding archive, emitters, and scheduler.
package config

import (
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/XiaoConstantine/qd-go/pkg/archives"
	"github.com/XiaoConstantine/qd-go/pkg/core"
	"github.com/XiaoConstantine/qd-go/pkg/emitters"
	"github.com/XiaoConstantine/qd-go/pkg/errors"
	"github.com/XiaoConstantine/qd-go/pkg/schedulers"
)

// Config is the root engine description.
type Config struct {
	Archive   ArchiveConfig   `yaml:"archive" validate:"required"`
	Emitters  []EmitterConfig `yaml:"emitters" validate:"required,min=1,dive"`
	Scheduler SchedulerConfig `yaml:"scheduler" validate:"required"`
}

// ArchiveConfig describes the shared archive.
type ArchiveConfig struct {
	Kind            string      `yaml:"kind" validate:"required,oneof=grid pareto"`
	SolutionDim     int         `yaml:"solution_dim" validate:"gt=0"`
	CellsPerMeasure []int       `yaml:"cells_per_measure" validate:"required_if=Kind grid,dive,gt=0"`
	MeasureRanges   [][]float64 `yaml:"measure_ranges" validate:"required_if=Kind grid,dive,len=2"`
	MeasureDim      int         `yaml:"measure_dim"` // pareto only
	LearningRate    *float64    `yaml:"learning_rate"`
	ThresholdMin    *float64    `yaml:"threshold_min"`
}

// EmitterConfig describes one emitter attached to the archive.
type EmitterConfig struct {
	Kind      string        `yaml:"kind" validate:"required,oneof=gaussian isoline cmaes"`
	X0        []float64     `yaml:"x0" validate:"required,min=1"`
	Sigma     []float64     `yaml:"sigma"`      // gaussian
	SigmaIso  float64       `yaml:"sigma_iso"`  // isoline
	SigmaLine float64       `yaml:"sigma_line"` // isoline
	Sigma0    float64       `yaml:"sigma0"`     // cmaes
	Bounds    *BoundsConfig `yaml:"bounds"`
	Seed      *int64        `yaml:"seed"`
	Ranker    string        `yaml:"ranker" validate:"omitempty,oneof=objective two_stage_objective improvement two_stage_improvement random_direction two_stage_random_direction"`
	Selection string        `yaml:"selection" validate:"omitempty,oneof=mu filter"`
	Restart   int           `yaml:"restart_rule" validate:"gte=0"`
}

// BoundsConfig describes solution bounds: either a broadcast Range pair
// or explicit per-dimension Lower/Upper vectors.
type BoundsConfig struct {
	Range []float64 `yaml:"range" validate:"omitempty,len=2"`
	Lower []float64 `yaml:"lower"`
	Upper []float64 `yaml:"upper"`
}

// SchedulerConfig describes the orchestration loop.
type SchedulerConfig struct {
	Kind           string `yaml:"kind" validate:"required,oneof=round_robin bandit"`
	BatchSize      int    `yaml:"batch_size" validate:"gte=0"`
	StatsFrequency int    `yaml:"stats_frequency" validate:"gte=0"`
	ReportMode     string `yaml:"report_mode" validate:"omitempty,oneof=compact verbose"`
	Parallel       bool   `yaml:"parallel"`
	Seed           *int64 `yaml:"seed"`

	// Bandit only.
	NumActive int     `yaml:"num_active" validate:"gte=0"`
	Strategy  string  `yaml:"strategy" validate:"omitempty,oneof=ucb1 thompson"`
	Zeta      float64 `yaml:"zeta" validate:"gte=0"`
}

// Load reads and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidArgument, "cannot read config file")
	}
	return Parse(data)
}

// Parse decodes and validates YAML config bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, errors.InvalidArgument, "cannot decode config")
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, errors.Wrap(err, errors.InvalidArgument, "config validation failed")
	}
	return &cfg, nil
}

// Build assembles the archive, emitters, and scheduler the config
// describes. Every emitter shares the single configured archive.
func (c *Config) Build() (core.Scheduler, core.Archive, error) {
	archive, err := c.buildArchive()
	if err != nil {
		return nil, nil, err
	}

	emitterList := make([]core.Emitter, 0, len(c.Emitters))
	for i := range c.Emitters {
		emitter, buildErr := c.Emitters[i].build(archive)
		if buildErr != nil {
			return nil, nil, buildErr
		}
		emitterList = append(emitterList, emitter)
	}

	scheduler, err := c.Scheduler.build(emitterList)
	if err != nil {
		return nil, nil, err
	}
	return scheduler, archive, nil
}

func (c *Config) buildArchive() (core.Archive, error) {
	switch c.Archive.Kind {
	case "pareto":
		return archives.NewParetoArchive(c.Archive.SolutionDim, c.Archive.MeasureDim)
	default:
		ranges := make([][2]float64, len(c.Archive.MeasureRanges))
		for i, r := range c.Archive.MeasureRanges {
			ranges[i] = [2]float64{r[0], r[1]}
		}
		var opts []archives.GridOption
		if c.Archive.LearningRate != nil {
			opts = append(opts, archives.WithLearningRate(*c.Archive.LearningRate))
		}
		if c.Archive.ThresholdMin != nil {
			opts = append(opts, archives.WithThresholdMin(*c.Archive.ThresholdMin))
		}
		return archives.NewGridArchive(c.Archive.SolutionDim, c.Archive.CellsPerMeasure, ranges, opts...)
	}
}

func (e *EmitterConfig) build(archive core.Archive) (core.Emitter, error) {
	opts, err := e.options(archive.SolutionDim())
	if err != nil {
		return nil, err
	}

	switch e.Kind {
	case "gaussian":
		return emitters.NewGaussianEmitter(archive, e.X0, e.Sigma, opts...)
	case "isoline":
		return emitters.NewIsoLineEmitter(archive, e.X0, e.SigmaIso, e.SigmaLine, opts...)
	case "cmaes":
		return emitters.NewCMAESEmitter(archive, e.X0, e.Sigma0, opts...)
	default:
		return nil, errors.WithFields(
			errors.New(errors.InvalidArgument, "unknown emitter kind"),
			errors.Fields{"kind": e.Kind},
		)
	}
}

func (e *EmitterConfig) options(dim int) ([]emitters.Option, error) {
	var opts []emitters.Option

	if e.Bounds != nil {
		var bounds core.Bounds
		var err error
		if len(e.Bounds.Range) == 2 {
			bounds, err = core.UniformBounds(e.Bounds.Range[0], e.Bounds.Range[1], dim)
		} else {
			bounds, err = core.NewBounds(e.Bounds.Lower, e.Bounds.Upper)
		}
		if err != nil {
			return nil, err
		}
		opts = append(opts, emitters.WithBounds(bounds))
	}
	if e.Seed != nil {
		opts = append(opts, emitters.WithSeed(*e.Seed))
	}
	if e.Ranker != "" {
		opts = append(opts, emitters.WithRanker(parseRanker(e.Ranker)))
	}
	if e.Selection == "filter" {
		opts = append(opts, emitters.WithSelectionRule(emitters.SelectFilter))
	}
	if e.Restart > 0 {
		opts = append(opts, emitters.WithRestartRule(e.Restart))
	}
	return opts, nil
}

func parseRanker(name string) emitters.RankerPolicy {
	switch strings.ToLower(name) {
	case "objective":
		return emitters.RankObjective
	case "two_stage_objective":
		return emitters.RankTwoStageObjective
	case "improvement":
		return emitters.RankImprovement
	case "random_direction":
		return emitters.RankRandomDirection
	case "two_stage_random_direction":
		return emitters.RankTwoStageRandomDirection
	default:
		return emitters.RankTwoStageImprovement
	}
}

func (s *SchedulerConfig) build(emitterList []core.Emitter) (core.Scheduler, error) {
	var opts []schedulers.Option
	if s.BatchSize > 0 {
		opts = append(opts, schedulers.WithBatchSize(s.BatchSize))
	}
	if s.StatsFrequency > 0 {
		opts = append(opts, schedulers.WithStatsFrequency(s.StatsFrequency))
	}
	if s.ReportMode == "verbose" {
		opts = append(opts, schedulers.WithReportMode(core.ReportVerbose))
	}
	if s.Parallel {
		opts = append(opts, schedulers.WithParallel(true))
	}
	if s.Seed != nil {
		opts = append(opts, schedulers.WithSeed(*s.Seed))
	}

	if s.Kind == "bandit" {
		if s.Strategy == "thompson" {
			opts = append(opts, schedulers.WithStrategy(schedulers.StrategyThompson))
		}
		if s.Zeta > 0 {
			opts = append(opts, schedulers.WithZeta(s.Zeta))
		}
		numActive := s.NumActive
		if numActive == 0 {
			numActive = 1
		}
		return schedulers.NewBanditScheduler(emitterList, numActive, opts...)
	}
	return schedulers.NewRoundRobinScheduler(emitterList, opts...)
}
