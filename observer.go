package riac

import (
	"context"
	"log/slog"
)

// EventKind identifies a tree or interest model event.
type EventKind string

const (
	// EventSplit is emitted after a leaf splits into two children.
	EventSplit EventKind = "split"
	// EventCompetence is emitted when the interest model scores an observation.
	EventCompetence EventKind = "competence"
	// EventSample is emitted for every sampled goal.
	EventSample EventKind = "sample"
	// EventRandomBranch is emitted when epsilon-greedy takes its random branch.
	EventRandomBranch EventKind = "random_branch"
	// EventSoftmaxFallback is emitted when softmax weights degenerate and
	// sampling falls back to epsilon-greedy.
	EventSoftmaxFallback EventKind = "softmax_fallback"
)

// Event describes something that happened inside a tree. Only the fields
// relevant to Kind are set.
type Event struct {
	Kind EventKind

	// Node is the split node (EventSplit) or the sampled region (EventSample).
	Node NodeID

	// Dim and Value are the split dimension and value (EventSplit).
	Dim   int
	Value float64

	// Lower and Greater are the child member counts (EventSplit).
	Lower, Greater int

	// Mode is the sampling mode that produced the event.
	Mode SamplingMode

	// Point is the sampled goal (EventSample).
	Point []float64

	// Index and Competence describe a scored observation (EventCompetence).
	Index      int
	Competence float64
}

// Observer receives events. Implementations are called synchronously from
// the goroutine that mutates the tree and must not call back into it.
type Observer interface {
	Observe(ev Event)
}

// ObserverFunc adapts a plain function into an Observer.
type ObserverFunc func(ev Event)

func (f ObserverFunc) Observe(ev Event) { f(ev) }

type nopObserver struct{}

func (nopObserver) Observe(Event) {}

type multiObserver []Observer

func (m multiObserver) Observe(ev Event) {
	for _, o := range m {
		o.Observe(ev)
	}
}

// Observers fans events out to every non-nil observer in order.
func Observers(obs ...Observer) Observer {
	var m multiObserver
	for _, o := range obs {
		if o != nil {
			m = append(m, o)
		}
	}
	switch len(m) {
	case 0:
		return nopObserver{}
	case 1:
		return m[0]
	}
	return m
}

// LogObserver returns an Observer that writes every event to logger at the
// given level.
func LogObserver(logger *slog.Logger, level slog.Level) Observer {
	return ObserverFunc(func(ev Event) {
		if !logger.Enabled(context.Background(), level) {
			return
		}
		switch ev.Kind {
		case EventSplit:
			logger.Log(context.Background(), level, "riac: split",
				"node", ev.Node, "dim", ev.Dim, "value", ev.Value,
				"lower", ev.Lower, "greater", ev.Greater)
		case EventCompetence:
			logger.Log(context.Background(), level, "riac: competence",
				"index", ev.Index, "competence", ev.Competence)
		case EventSample:
			logger.Log(context.Background(), level, "riac: sample",
				"mode", ev.Mode, "node", ev.Node, "point", ev.Point)
		default:
			logger.Log(context.Background(), level, "riac: "+string(ev.Kind), "mode", ev.Mode)
		}
	})
}
