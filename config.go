package riac

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sort"
)

var (
	// ErrInvalidConfig is wrapped by every construction-time configuration
	// error (unknown split mode or progress measure, bad window size, bad
	// bounds, ...).
	ErrInvalidConfig = errors.New("riac: invalid config")

	// ErrUnknownSamplingMode is returned when a sampling mode passed at call
	// time is not one of the SamplingMode constants.
	ErrUnknownSamplingMode = errors.New("riac: unknown sampling mode")

	// ErrInvalidNorm is returned by nearest-neighbor queries with p < 1.
	ErrInvalidNorm = errors.New("riac: only p-norms with 1 <= p <= +Inf are permitted")

	// ErrInvalidQuery is returned for malformed queries (k < 1, negative eps).
	ErrInvalidQuery = errors.New("riac: invalid query")

	// ErrDimensionMismatch is returned when a vector does not have the
	// dimensionality of the indexed goal space.
	ErrDimensionMismatch = errors.New("riac: dimension mismatch")

	// ErrOutOfRange is returned when a point index is not in the point store.
	ErrOutOfRange = errors.New("riac: point index out of range")
)

func configErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...)
}

// SplitMode selects how a full region picks its split value.
type SplitMode string

const (
	// SplitRandom splits uniformly between the min and max member coordinate.
	SplitRandom SplitMode = "random"
	// SplitMedian splits at the median member coordinate.
	SplitMedian SplitMode = "median"
	// SplitMiddle splits at the middle of the region bounds. May leave one
	// child empty.
	SplitMiddle SplitMode = "middle"
	// SplitBestInterestDiff picks the candidate value maximizing
	// card(lower)*card(greater)*|progress(lower)-progress(greater)|.
	SplitBestInterestDiff SplitMode = "best_interest_diff"
	// SplitVarianceOfCosSim picks the candidate value minimizing the variance
	// of pairwise cosine similarities between outcomes on both sides.
	SplitVarianceOfCosSim SplitMode = "variance_of_cos_sim"
)

// ProgressMeasure selects how learning progress is estimated from the
// competence window of a region.
type ProgressMeasure string

const (
	// ProgressAbsDerivCov is |cov(position in window, competence)|.
	ProgressAbsDerivCov ProgressMeasure = "abs_deriv_cov"
	// ProgressAbsDeriv is |mean of consecutive competence differences|.
	ProgressAbsDeriv ProgressMeasure = "abs_deriv"
	// ProgressAbsDerivSmooth is |mean(second half) - mean(first half)|.
	ProgressAbsDerivSmooth ProgressMeasure = "abs_deriv_smooth"
	// ProgressBoundedSmooth is (mean(second half) - mean(first half) + 1) / 4.
	ProgressBoundedSmooth ProgressMeasure = "bounded_smooth"
)

// SamplingMode selects the goal sampling strategy.
type SamplingMode string

const (
	SampleRandom        SamplingMode = "random"
	SampleGreedy        SamplingMode = "greedy"
	SampleEpsilonGreedy SamplingMode = "epsilon_greedy"
	SampleSoftmax       SamplingMode = "softmax"
)

// defaultFallbackEpsilon is the epsilon used when softmax sampling degenerates.
const defaultFallbackEpsilon = 0.1

// Sampling is an immutable sampling configuration. It is passed by value
// through recursive sampling calls.
type Sampling struct {
	// Mode is the sampling strategy.
	Mode SamplingMode `json:"mode" yaml:"mode"`

	// Param is epsilon for SampleEpsilonGreedy and the temperature for
	// SampleSoftmax. Ignored by the other modes.
	Param float64 `json:"param" yaml:"param"`

	// Multiscale lets greedy and softmax sampling choose internal regions,
	// not only leaves.
	Multiscale bool `json:"multiscale" yaml:"multiscale"`

	// Volume weights random descent by split ratio and softmax weights by
	// region volume.
	Volume bool `json:"volume" yaml:"volume"`
}

func (s Sampling) validate() error {
	switch s.Mode {
	case SampleRandom, SampleGreedy:
	case SampleEpsilonGreedy:
		if s.Param < 0 || s.Param > 1 || math.IsNaN(s.Param) {
			return fmt.Errorf("riac: epsilon must be in [0, 1], got %v", s.Param)
		}
	case SampleSoftmax:
		if !(s.Param > 0) {
			return fmt.Errorf("riac: softmax temperature must be > 0, got %v", s.Param)
		}
	default:
		return fmt.Errorf("%w %q", ErrUnknownSamplingMode, s.Mode)
	}
	return nil
}

// Config controls tree construction, splitting, progress and sampling.
// Start with [DefaultConfig] or a [Preset] and override the fields you need.
// A Config is copied into the tree at construction and never changes after.
type Config struct {
	// MaxPointsPerRegion is the number of points a leaf holds before the
	// next insertion splits it. Must be >= 2. Default: 100.
	MaxPointsPerRegion int

	// MaxDepth bounds how many times a region can be split along any path
	// from the root. Must be >= 0. Unlike the other fields, a zero MaxDepth
	// is not replaced by the default: it disables splitting and keeps a
	// single region. DefaultConfig sets 20.
	MaxDepth int

	// SplitMode chooses the split heuristic. Default: SplitBestInterestDiff.
	SplitMode SplitMode

	// ProgressWinSize is the number of most recent points of a region used
	// to estimate its progress. Must be >= 1 and < MaxPointsPerRegion.
	// Default: 50.
	ProgressWinSize int

	// ProgressMeasure chooses the progress formula. Default:
	// ProgressAbsDerivSmooth.
	ProgressMeasure ProgressMeasure

	// Sampling is the default sampling configuration used by Sample.
	// Default: softmax with temperature 0.2, volume weighted.
	Sampling Sampling

	// Seed seeds the tree's random source. 0 draws a random seed.
	Seed uint64

	// Workers controls the number of goroutines used to score split
	// candidates. 0 means runtime.NumCPU(). Scoring is sequential for small
	// candidate sets regardless of this value.
	Workers int

	// Logger receives debug output about splits and sampling fallbacks.
	// Default: slog.Default().
	Logger *slog.Logger

	// Observer receives tree events. Optional.
	Observer Observer
}

// DefaultConfig returns the configuration of the "default" preset.
func DefaultConfig() Config {
	return Config{
		MaxPointsPerRegion: 100,
		MaxDepth:           20,
		SplitMode:          SplitBestInterestDiff,
		ProgressWinSize:    50,
		ProgressMeasure:    ProgressAbsDerivSmooth,
		Sampling: Sampling{
			Mode:   SampleSoftmax,
			Param:  0.2,
			Volume: true,
		},
	}
}

// Validate reports whether cfg would be accepted by NewTree.
func (cfg Config) Validate() error {
	applyDefaults(&cfg)
	return validateConfig(&cfg)
}

// validateConfig checks that cfg fields are valid and returns a descriptive error if not.
func validateConfig(cfg *Config) error {
	if cfg.MaxPointsPerRegion < 2 {
		return configErrorf("MaxPointsPerRegion must be >= 2, got %d", cfg.MaxPointsPerRegion)
	}
	if cfg.MaxDepth < 0 {
		return configErrorf("MaxDepth must be >= 0, got %d", cfg.MaxDepth)
	}
	if cfg.ProgressWinSize < 1 {
		return configErrorf("ProgressWinSize must be >= 1, got %d", cfg.ProgressWinSize)
	}
	if cfg.ProgressWinSize >= cfg.MaxPointsPerRegion {
		return configErrorf("ProgressWinSize (%d) must be < MaxPointsPerRegion (%d)", cfg.ProgressWinSize, cfg.MaxPointsPerRegion)
	}
	switch cfg.SplitMode {
	case SplitRandom, SplitMedian, SplitMiddle, SplitBestInterestDiff, SplitVarianceOfCosSim:
		// valid
	default:
		return configErrorf("unknown SplitMode %q", cfg.SplitMode)
	}
	switch cfg.ProgressMeasure {
	case ProgressAbsDerivCov, ProgressAbsDeriv, ProgressAbsDerivSmooth, ProgressBoundedSmooth:
		// valid
	default:
		return configErrorf("unknown ProgressMeasure %q", cfg.ProgressMeasure)
	}
	if err := cfg.Sampling.validate(); err != nil {
		return configErrorf("Sampling: %v", err)
	}
	if cfg.Workers < 0 {
		return configErrorf("Workers must be >= 0, got %d", cfg.Workers)
	}
	return nil
}

// applyDefaults fills in zero-valued config fields with their defaults.
// MaxDepth is left alone since 0 is meaningful.
func applyDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.MaxPointsPerRegion == 0 {
		cfg.MaxPointsPerRegion = def.MaxPointsPerRegion
	}
	if cfg.ProgressWinSize == 0 {
		cfg.ProgressWinSize = min(def.ProgressWinSize, cfg.MaxPointsPerRegion-1)
	}
	if cfg.SplitMode == "" {
		cfg.SplitMode = def.SplitMode
	}
	if cfg.ProgressMeasure == "" {
		cfg.ProgressMeasure = def.ProgressMeasure
	}
	if cfg.Sampling.Mode == "" {
		cfg.Sampling = def.Sampling
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
}

// Preset bundles a tree configuration with the competence measure it was
// tuned for.
type Preset struct {
	Name       string
	Config     Config
	Competence CompetenceFunc
}

const (
	PresetDefault = "default"
	PresetCozmo   = "cozmo"
)

var presets = map[string]func() Preset{
	PresetDefault: func() Preset {
		return Preset{
			Name:       PresetDefault,
			Config:     DefaultConfig(),
			Competence: ExpCompetence(0, 10, 1),
		}
	},
	// Tuned for a wheeled robot whose goals are (rotation in degrees,
	// linear travel in mm) and whose outcomes are image embeddings.
	PresetCozmo: func() Preset {
		return Preset{
			Name: PresetCozmo,
			Config: Config{
				MaxPointsPerRegion: 20,
				MaxDepth:           50,
				SplitMode:          SplitVarianceOfCosSim,
				ProgressWinSize:    8,
				ProgressMeasure:    ProgressAbsDerivSmooth,
				Sampling: Sampling{
					Mode:   SampleEpsilonGreedy,
					Param:  0.1,
					Volume: true,
				},
			},
			Competence: PredictionErrorCompetence(),
		}
	},
}

// LookupPreset returns the named preset.
func LookupPreset(name string) (Preset, error) {
	p, ok := presets[name]
	if !ok {
		return Preset{}, configErrorf("unknown preset %q", name)
	}
	return p(), nil
}

// Presets returns the names of the available presets in sorted order.
func Presets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
