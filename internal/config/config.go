// Package config loads the YAML run configuration used by the riac command.
//
// Values are resolved with priority env > file > preset defaults: the preset
// named in the file (or RIAC_PRESET) supplies the tree defaults, keys present
// in the file override them, and RIAC_* environment variables override both.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/TrevorS/riac"
)

// File is the on-disk run configuration.
type File struct {
	Preset     string           `yaml:"preset"`
	Tree       TreeConfig       `yaml:"tree"`
	Space      SpaceConfig      `yaml:"space"`
	Competence CompetenceConfig `yaml:"competence"`
	Simulation SimulationConfig `yaml:"simulation"`
	Storage    StorageConfig    `yaml:"storage"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// TreeConfig mirrors riac.Config for the fields that can be set from a file.
type TreeConfig struct {
	MaxPointsPerRegion int                  `yaml:"max_points_per_region"`
	MaxDepth           int                  `yaml:"max_depth"`
	SplitMode          riac.SplitMode       `yaml:"split_mode"`
	ProgressWinSize    int                  `yaml:"progress_win_size"`
	ProgressMeasure    riac.ProgressMeasure `yaml:"progress_measure"`
	Sampling           riac.Sampling        `yaml:"sampling"`
	Seed               uint64               `yaml:"seed"`
	Workers            int                  `yaml:"workers"`
}

// SpaceConfig describes the goal space explored by the interest model.
type SpaceConfig struct {
	Bounds riac.Bounds `yaml:"bounds"`
}

// Competence measures accepted in CompetenceConfig.Measure.
const (
	MeasurePreset          = "preset"
	MeasureDist            = "dist"
	MeasureExp             = "exp"
	MeasureCosDistExp      = "cos_dist_exp"
	MeasurePredictionError = "prediction_error"
	MeasureBool            = "bool"
)

// CompetenceConfig selects the competence measure. An empty or "preset"
// measure uses the one the preset was tuned for.
type CompetenceConfig struct {
	Measure string  `yaml:"measure"`
	DistMin float64 `yaml:"dist_min"`
	DistMax float64 `yaml:"dist_max"`
	Power   float64 `yaml:"power"`
}

// SimulationConfig drives the synthetic learner of the simulate command.
type SimulationConfig struct {
	Steps       int           `yaml:"steps"`
	Seed        uint64        `yaml:"seed"`
	OutcomeDims int           `yaml:"outcome_dims"`
	Noise       float64       `yaml:"noise"`
	Decay       float64       `yaml:"decay"`
	Radius      float64       `yaml:"radius"`
	Neighbors   int           `yaml:"neighbors"`
	Learnable   []riac.Bounds `yaml:"learnable"`
}

// StorageConfig locates the run log. An empty DBPath disables recording.
type StorageConfig struct {
	DBPath    string `yaml:"db_path"`
	BatchSize int    `yaml:"batch_size"`
}

// LoggingConfig controls the command's slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration of the named preset.
func Default(preset string) (File, error) {
	p, err := riac.LookupPreset(preset)
	if err != nil {
		return File{}, err
	}
	c := p.Config
	return File{
		Preset: preset,
		Tree: TreeConfig{
			MaxPointsPerRegion: c.MaxPointsPerRegion,
			MaxDepth:           c.MaxDepth,
			SplitMode:          c.SplitMode,
			ProgressWinSize:    c.ProgressWinSize,
			ProgressMeasure:    c.ProgressMeasure,
			Sampling:           c.Sampling,
			Seed:               c.Seed,
			Workers:            c.Workers,
		},
		Space: SpaceConfig{
			Bounds: riac.Bounds{Min: []float64{0, 0}, Max: []float64{1, 1}},
		},
		Competence: CompetenceConfig{Measure: MeasurePreset, DistMin: 0, DistMax: 1, Power: 1},
		Simulation: SimulationConfig{
			Steps:     2000,
			Seed:      1,
			Noise:     0.3,
			Decay:     0.8,
			Radius:    0.05,
			Neighbors: 20,
			Learnable: []riac.Bounds{{Min: []float64{0, 0}, Max: []float64{0.5, 0.5}}},
		},
		Storage: StorageConfig{BatchSize: 100},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}, nil
}

// Load loads configuration with priority: env > file > defaults. An empty
// path or a missing file yields the preset defaults.
func Load(path string) (File, error) {
	var data []byte
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return File{}, fmt.Errorf("read config: %w", err)
		}
		data = b
	}

	f, err := parse(data, os.Getenv("RIAC_PRESET"))
	if err != nil {
		return File{}, err
	}
	if err := loadFromEnv(&f); err != nil {
		return File{}, err
	}
	if err := f.Validate(); err != nil {
		return File{}, fmt.Errorf("invalid config: %w", err)
	}
	return f, nil
}

// Parse decodes data over the defaults of the preset it names. It ignores
// the environment, so a recorded configuration always decodes the same way.
func Parse(data []byte) (File, error) {
	f, err := parse(data, "")
	if err != nil {
		return File{}, err
	}
	if err := f.Validate(); err != nil {
		return File{}, fmt.Errorf("invalid config: %w", err)
	}
	return f, nil
}

func parse(data []byte, presetOverride string) (File, error) {
	var head struct {
		Preset string `yaml:"preset"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return File{}, fmt.Errorf("parse config: %w", err)
	}
	preset := riac.PresetDefault
	if head.Preset != "" {
		preset = head.Preset
	}
	if presetOverride != "" {
		preset = presetOverride
	}

	f, err := Default(preset)
	if err != nil {
		return File{}, err
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parse config: %w", err)
	}
	f.Preset = preset
	return f, nil
}

// Marshal encodes f as YAML.
func (f File) Marshal() ([]byte, error) {
	return yaml.Marshal(f)
}

func loadFromEnv(f *File) error {
	ints := []struct {
		key string
		dst *int
	}{
		{"RIAC_MAX_POINTS_PER_REGION", &f.Tree.MaxPointsPerRegion},
		{"RIAC_MAX_DEPTH", &f.Tree.MaxDepth},
		{"RIAC_PROGRESS_WIN_SIZE", &f.Tree.ProgressWinSize},
		{"RIAC_WORKERS", &f.Tree.Workers},
		{"RIAC_STEPS", &f.Simulation.Steps},
	}
	for _, e := range ints {
		if v := os.Getenv(e.key); v != "" {
			i, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", e.key, err)
			}
			*e.dst = i
		}
	}
	if v := os.Getenv("RIAC_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("RIAC_SEED: %w", err)
		}
		f.Tree.Seed = seed
	}
	if v := os.Getenv("RIAC_SAMPLING_PARAM"); v != "" {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("RIAC_SAMPLING_PARAM: %w", err)
		}
		f.Tree.Sampling.Param = p
	}
	if v := os.Getenv("RIAC_SPLIT_MODE"); v != "" {
		f.Tree.SplitMode = riac.SplitMode(v)
	}
	if v := os.Getenv("RIAC_PROGRESS_MEASURE"); v != "" {
		f.Tree.ProgressMeasure = riac.ProgressMeasure(v)
	}
	if v := os.Getenv("RIAC_SAMPLING_MODE"); v != "" {
		f.Tree.Sampling.Mode = riac.SamplingMode(v)
	}
	if v := os.Getenv("RIAC_COMPETENCE"); v != "" {
		f.Competence.Measure = v
	}
	if v := os.Getenv("RIAC_DB_PATH"); v != "" {
		f.Storage.DBPath = v
	}
	if v := os.Getenv("RIAC_LOG_LEVEL"); v != "" {
		f.Logging.Level = v
	}
	if v := os.Getenv("RIAC_LOG_FORMAT"); v != "" {
		f.Logging.Format = v
	}
	if v := os.Getenv("RIAC_METRICS_ADDR"); v != "" {
		f.Metrics.Addr = v
	}
	return nil
}

// Validate checks that the configuration is usable.
func (f File) Validate() error {
	if err := f.TreeConfig().Validate(); err != nil {
		return err
	}
	b := f.Space.Bounds
	if b.Dims() == 0 || len(b.Max) != b.Dims() {
		return errors.New("space.bounds: min and max must have the same non-zero length")
	}
	for d := range b.Min {
		if !(b.Min[d] <= b.Max[d]) {
			return fmt.Errorf("space.bounds: min[%d]=%v > max[%d]=%v", d, b.Min[d], d, b.Max[d])
		}
	}
	if _, err := f.Competence.Func(f.Preset); err != nil {
		return err
	}
	s := f.Simulation
	if s.Steps < 0 {
		return fmt.Errorf("simulation.steps must be >= 0, got %d", s.Steps)
	}
	if s.OutcomeDims < 0 {
		return fmt.Errorf("simulation.outcome_dims must be >= 0, got %d", s.OutcomeDims)
	}
	if s.Noise < 0 {
		return fmt.Errorf("simulation.noise must be >= 0, got %v", s.Noise)
	}
	if s.Decay <= 0 || s.Decay > 1 {
		return fmt.Errorf("simulation.decay must be in (0, 1], got %v", s.Decay)
	}
	if !(s.Radius > 0) {
		return fmt.Errorf("simulation.radius must be > 0, got %v", s.Radius)
	}
	if s.Neighbors < 1 {
		return fmt.Errorf("simulation.neighbors must be >= 1, got %d", s.Neighbors)
	}
	for i, box := range s.Learnable {
		if box.Dims() != b.Dims() || len(box.Max) != b.Dims() {
			return fmt.Errorf("simulation.learnable[%d]: want %d dims", i, b.Dims())
		}
	}
	if f.Storage.BatchSize < 1 {
		return fmt.Errorf("storage.batch_size must be >= 1, got %d", f.Storage.BatchSize)
	}
	if _, err := f.Logging.level(); err != nil {
		return err
	}
	switch f.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", f.Logging.Format)
	}
	return nil
}

// TreeConfig converts the tree section into a riac.Config.
func (f File) TreeConfig() riac.Config {
	t := f.Tree
	return riac.Config{
		MaxPointsPerRegion: t.MaxPointsPerRegion,
		MaxDepth:           t.MaxDepth,
		SplitMode:          t.SplitMode,
		ProgressWinSize:    t.ProgressWinSize,
		ProgressMeasure:    t.ProgressMeasure,
		Sampling:           t.Sampling,
		Seed:               t.Seed,
		Workers:            t.Workers,
	}
}

// Func resolves the competence measure. preset names the preset whose
// measure is used for MeasurePreset.
func (c CompetenceConfig) Func(preset string) (riac.CompetenceFunc, error) {
	switch c.Measure {
	case "", MeasurePreset:
		p, err := riac.LookupPreset(preset)
		if err != nil {
			return nil, err
		}
		return p.Competence, nil
	case MeasureDist, MeasureExp:
		if !(c.DistMax > c.DistMin) {
			return nil, fmt.Errorf("competence: dist_max (%v) must be > dist_min (%v)", c.DistMax, c.DistMin)
		}
		if c.Measure == MeasureDist {
			return riac.DistCompetence(c.DistMin, c.DistMax), nil
		}
		return riac.ExpCompetence(c.DistMin, c.DistMax, c.Power), nil
	case MeasureCosDistExp:
		return riac.CosDistExpCompetence(), nil
	case MeasurePredictionError:
		return riac.PredictionErrorCompetence(), nil
	case MeasureBool:
		return riac.BoolCompetence(), nil
	default:
		return nil, fmt.Errorf("competence: unknown measure %q", c.Measure)
	}
}

func (l LoggingConfig) level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("logging.level: %w", err)
	}
	return lvl, nil
}

// NewLogger builds a slog.Logger writing to w with the configured level and
// format.
func (l LoggingConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	lvl, err := l.level()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch l.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("logging.format must be text or json, got %q", l.Format)
	}
}
