package riac

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"
)

// smBounds is a 4-D sensorimotor space: two motor dims and two sensory dims.
func smBounds() Bounds {
	return Bounds{
		Min: []float64{-1, -1, 0, 0},
		Max: []float64{1, 1, 10, 10},
	}
}

func newTestModel(t *testing.T, explDims []int) *InterestModel {
	t.Helper()
	cfg := testConfig(SplitBestInterestDiff)
	cfg.Sampling = Sampling{Mode: SampleSoftmax, Param: 0.5, Volume: true}
	m, err := NewInterestModel(smBounds(), explDims, DistCompetence(0, 20), cfg)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestInterestModel_ProjectsGoalsAndOutcomes(t *testing.T) {
	m := newTestModel(t, []int{2, 3})
	target := []float64{0.1, 0.2, 3, 4}
	reached := []float64{0.15, 0.25, 3, 8}
	if _, err := m.Update(target, reached); err != nil {
		t.Fatal(err)
	}
	goal, outcome, c, err := m.Observation(0)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(goal, []float64{3, 4}) {
		t.Errorf("goal = %v, want [3 4]", goal)
	}
	if !slices.Equal(outcome, []float64{0.15, 0.25}) {
		t.Errorf("outcome = %v, want the non-explored dims [0.15 0.25]", outcome)
	}
	if want := CompetenceDist(target, reached, 0, 20); c != want {
		t.Errorf("competence = %v, want %v", c, want)
	}
}

func TestInterestModel_AllDimsExplored(t *testing.T) {
	m := newTestModel(t, []int{0, 1, 2, 3})
	reached := []float64{0, 0, 1, 1}
	if _, err := m.Update([]float64{0, 0, 1, 1}, reached); err != nil {
		t.Fatal(err)
	}
	_, outcome, _, _ := m.Observation(0)
	if !slices.Equal(outcome, reached) {
		t.Errorf("outcome = %v, want the full reached vector", outcome)
	}
}

func TestInterestModel_SamplesInGoalBounds(t *testing.T) {
	m := newTestModel(t, []int{2, 3})
	rng := rand.New(rand.NewPCG(81, 82))
	goalBounds := Bounds{Min: []float64{0, 0}, Max: []float64{10, 10}}
	for i := 0; i < 300; i++ {
		g := m.Sample()
		if !goalBounds.Contains(g) {
			t.Fatalf("sample %v outside goal bounds", g)
		}
		target := []float64{0, 0, g[0], g[1]}
		reached := []float64{0, 0, g[0] + rng.NormFloat64(), g[1] + rng.NormFloat64()}
		if _, err := m.Update(target, reached); err != nil {
			t.Fatal(err)
		}
	}
	if m.Len() != 300 {
		t.Errorf("Len = %d, want 300", m.Len())
	}
	st := m.Stats()
	if st.Observations != 300 || st.Leaves != len(m.Leaves()) || st.Regions < st.Leaves {
		t.Errorf("inconsistent stats %+v", st)
	}
	if st.MaxLeafProgress != m.MaxLeafProgress() || st.Progress != m.Progress() || st.ProgressAll != m.ProgressAll() {
		t.Errorf("stats disagree with accessors: %+v", st)
	}
}

func TestInterestModel_NearestNeighbors(t *testing.T) {
	m := newTestModel(t, []int{2, 3})
	for i := 0; i < 20; i++ {
		x := float64(i) / 2
		if _, err := m.Record([]float64{x, x}, []float64{0, 0}, 0); err != nil {
			t.Fatal(err)
		}
	}
	nbs, err := m.NearestNeighbors([]float64{3.1, 3.1}, KNNOptions{K: 2})
	if err != nil {
		t.Fatal(err)
	}
	// Goals (3, 3) and (3.5, 3.5) are indices 6 and 7.
	if nbs[0].Index != 6 || nbs[1].Index != 7 {
		t.Errorf("neighbors = %v, want indices 6 and 7", nbs)
	}
}

func TestInterestModel_Errors(t *testing.T) {
	cfg := testConfig(SplitMedian)
	cases := map[string]struct {
		dims    []int
		measure CompetenceFunc
	}{
		"no dims":      {nil, BoolCompetence()},
		"out of range": {[]int{4}, BoolCompetence()},
		"duplicate":    {[]int{1, 1}, BoolCompetence()},
		"nil measure":  {[]int{0}, nil},
	}
	for name, c := range cases {
		if _, err := NewInterestModel(smBounds(), c.dims, c.measure, cfg); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("%s: expected ErrInvalidConfig, got %v", name, err)
		}
	}

	m := newTestModel(t, []int{0})
	if _, err := m.Update([]float64{0}, []float64{0}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("short vectors: expected ErrDimensionMismatch, got %v", err)
	}
	if _, err := m.Record([]float64{0, 0}, nil, 0); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("wrong goal dims: expected ErrDimensionMismatch, got %v", err)
	}
	if m.Len() != 0 {
		t.Errorf("failed updates must not record observations, Len = %d", m.Len())
	}
	if _, _, _, err := m.Observation(0); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
	if _, err := m.SampleWith(Sampling{Mode: "nope"}); !errors.Is(err, ErrUnknownSamplingMode) {
		t.Errorf("expected ErrUnknownSamplingMode, got %v", err)
	}
}

func TestInterestModel_CompetenceEvents(t *testing.T) {
	var got []Event
	cfg := testConfig(SplitMedian)
	cfg.Observer = ObserverFunc(func(ev Event) {
		if ev.Kind == EventCompetence {
			got = append(got, ev)
		}
	})
	m, err := NewInterestModel(smBounds(), []int{2, 3}, DistCompetence(0, 20), cfg)
	if err != nil {
		t.Fatal(err)
	}
	m.Update([]float64{0, 0, 1, 1}, []float64{0, 0, 1, 2})
	m.Record([]float64{1, 1}, nil, 0.5)
	if len(got) != 1 || got[0].Index != 0 || got[0].Competence != -1 {
		t.Errorf("expected one competence event for index 0 with -1, got %+v", got)
	}
}

func TestFromPreset(t *testing.T) {
	b := Bounds{Min: []float64{-180, -80, 0, 0, 0}, Max: []float64{180, 80, 1, 1, 1}}
	m, err := FromPreset(PresetCozmo, b, []int{0, 1})
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewPCG(83, 84))
	for i := 0; i < 100; i++ {
		g := m.Sample()
		target := []float64{g[0], g[1], 0, 0, 0}
		reached := []float64{g[0] + 10*rng.NormFloat64(), g[1] + 5*rng.NormFloat64(), rng.Float64(), rng.Float64(), rng.Float64()}
		if _, err := m.Update(target, reached); err != nil {
			t.Fatal(err)
		}
	}
	if len(m.Leaves()) < 2 {
		t.Errorf("expected the cozmo preset to split within 100 observations, got %d leaves", len(m.Leaves()))
	}
	if _, err := FromPreset("nope", b, []int{0}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestInterestModel_ConcurrentUse(t *testing.T) {
	m := newTestModel(t, []int{2, 3})
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(seed uint64) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(seed, seed))
			for i := 0; i < 100; i++ {
				g := m.Sample()
				m.Update([]float64{0, 0, g[0], g[1]}, []float64{0, 0, g[0] + rng.Float64(), g[1]})
				m.Progress()
				m.MaxLeafProgress()
				m.NearestNeighbors(g, KNNOptions{K: 3})
				m.Leaves()
			}
		}(uint64(w))
	}
	wg.Wait()
	if m.Len() != 400 {
		t.Errorf("Len = %d, want 400", m.Len())
	}
}

func TestInterestModel_LogValue(t *testing.T) {
	m := newTestModel(t, []int{2, 3})
	for i := 0; i < 30; i++ {
		x := float64(i%10) + 0.5
		if _, err := m.Update([]float64{0, 0, x, x}, []float64{0, 0, x, x + 1}); err != nil {
			t.Fatal(err)
		}
	}
	var buf bytes.Buffer
	slog.New(slog.NewJSONHandler(&buf, nil)).Info("progress", "model", m)
	var rec struct {
		Model struct {
			Points int `json:"points"`
			Nodes  int `json:"nodes"`
			Depth  int `json:"depth"`
		} `json:"model"`
	}
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	st := m.Stats()
	if rec.Model.Points != 30 || rec.Model.Nodes != st.Regions || rec.Model.Depth != st.Depth {
		t.Errorf("logged %+v, stats %+v", rec.Model, st)
	}
}
