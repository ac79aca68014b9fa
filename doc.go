// Package riac implements competence-progress trees for intrinsically
// motivated goal exploration (R-IAC / SAGG-RIAC).
//
// A Tree recursively partitions a goal space into axis-aligned regions. Each
// region tracks the learning progress of the points it owns, measured as the
// recent trend of their competence values. Sampling prefers regions where
// progress is high, so an agent spends its experiments where it is learning
// fastest. Regions split once they hold enough points, either at the median
// or middle, at random, or at the value that best separates progress between
// the two halves.
//
// Basic usage:
//
//	cfg := riac.DefaultConfig()
//	cfg.MaxPointsPerRegion = 20
//	cfg.ProgressWinSize = 10
//	bounds := riac.Bounds{Min: []float64{-1, -1}, Max: []float64{1, 1}}
//	im, err := riac.NewInterestModel(bounds, []int{0, 1}, riac.ExpCompetence(0, 10, 1), cfg)
//	for i := 0; i < steps; i++ {
//		goal := im.Sample()
//		reached := execute(goal)
//		im.Update(goal, reached)
//	}
//
// Lower-level callers can drive a Tree directly with their own PointStore:
//
//	store := riac.NewPointStore(2)
//	tree, err := riac.NewTree(store, bounds, cfg)
//	idx, err := store.Append(goal, outcome, competence)
//	leaf, err := tree.Insert(idx)
//
// # Sampling modes
//
// Config.Sampling selects how Sample picks the next goal:
//
//	riac.Sampling{Mode: riac.SampleGreedy}                   // highest-progress leaf
//	riac.Sampling{Mode: riac.SampleEpsilonGreedy, Param: 0.1} // random 10% of the time
//	riac.Sampling{Mode: riac.SampleSoftmax, Param: 0.2, Volume: true}
//
// Multiscale sampling lets greedy and softmax choose internal regions as
// well as leaves.
//
// The riac command (cmd/riac) runs the model against a synthetic learner,
// records runs in SQLite and exports Prometheus metrics.
package riac
