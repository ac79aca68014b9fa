package riac

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
)

// CompetenceFunc scores how well reached matches target. Higher is better
// for competence measures; PredictionErrorCompetence instead returns an
// error in [0, 1) where lower is better, and progress measures are
// symmetric enough that either works. target and reached have the same
// length and must not be modified.
type CompetenceFunc func(target, reached []float64) float64

// CompetenceDist returns the negative Euclidean distance between target and
// reached, clamped to [-distMax, -distMin].
func CompetenceDist(target, reached []float64, distMin, distMax float64) float64 {
	return math.Max(-distMax, math.Min(-distMin, -floats.Distance(target, reached, 2)))
}

// CompetenceExp returns exp(power * CompetenceDist(...)), in (0, 1] for a
// positive power.
func CompetenceExp(target, reached []float64, distMin, distMax, power float64) float64 {
	return math.Exp(power * CompetenceDist(target, reached, distMin, distMax))
}

// CosDistError is the cosine prediction error between a target and a
// reached outcome.
type CosDistError struct {
	CosSim  float64 // cosine similarity, in [-1, 1]
	CosDist float64 // 1 - CosSim, in [0, 2]
	Bounded float64 // 1 - exp(-2 * CosDist), in [0, 1)
}

// Coordinate ranges normalized by PredictionErrorCosDistExp: a rotation in
// degrees and a linear travel.
const (
	angleMin, angleMax   = -180.0, 180.0
	linearMin, linearMax = -80.0, 80.0
)

// PredictionErrorCosDistExp rescales the first coordinate from
// [-180, 180] and the second from [-80, 80] into [0, 1], then compares the
// vectors by cosine distance. The inputs are not modified.
func PredictionErrorCosDistExp(target, reached []float64) CosDistError {
	t := normalizeMotion(target)
	r := normalizeMotion(reached)
	sim := CosineSimilarity(t, r)
	dist := 1 - sim
	return CosDistError{
		CosSim:  sim,
		CosDist: dist,
		Bounded: 1 - math.Exp(-2*dist),
	}
}

func normalizeMotion(v []float64) []float64 {
	out := slices.Clone(v)
	if len(out) > 0 {
		out[0] = (out[0] - angleMin) / (angleMax - angleMin)
	}
	if len(out) > 1 {
		out[1] = (out[1] - linearMin) / (linearMax - linearMin)
	}
	return out
}

// CompetenceCosDistExp is 1 minus the bounded cosine prediction error.
func CompetenceCosDistExp(target, reached []float64) float64 {
	return 1 - PredictionErrorCosDistExp(target, reached).Bounded
}

// CompetenceBool is 1 if target and reached are exactly equal, else 0.
func CompetenceBool(target, reached []float64) float64 {
	if slices.Equal(target, reached) {
		return 1
	}
	return 0
}

// DistCompetence returns a CompetenceFunc for CompetenceDist.
func DistCompetence(distMin, distMax float64) CompetenceFunc {
	return func(target, reached []float64) float64 {
		return CompetenceDist(target, reached, distMin, distMax)
	}
}

// ExpCompetence returns a CompetenceFunc for CompetenceExp.
func ExpCompetence(distMin, distMax, power float64) CompetenceFunc {
	return func(target, reached []float64) float64 {
		return CompetenceExp(target, reached, distMin, distMax, power)
	}
}

// CosDistExpCompetence returns CompetenceCosDistExp as a CompetenceFunc.
func CosDistExpCompetence() CompetenceFunc { return CompetenceCosDistExp }

// PredictionErrorCompetence scores observations by their bounded cosine
// prediction error.
func PredictionErrorCompetence() CompetenceFunc {
	return func(target, reached []float64) float64 {
		return PredictionErrorCosDistExp(target, reached).Bounded
	}
}

// BoolCompetence returns CompetenceBool as a CompetenceFunc.
func BoolCompetence() CompetenceFunc { return CompetenceBool }
