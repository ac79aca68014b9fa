// Package metrics exports interest model activity to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"

	"github.com/TrevorS/riac"
)

const metricsNamespace = "riac"

// Collector counts tree events and tracks model statistics. It implements
// riac.Observer, so it can be installed in riac.Config.Observer directly.
type Collector struct {
	reg prometheus.Gatherer

	SplitsTotal           prometheus.Counter
	SamplesTotal          *prometheus.CounterVec
	RandomBranchesTotal   prometheus.Counter
	SoftmaxFallbacksTotal prometheus.Counter
	ObservationsTotal     prometheus.Counter
	Competence            prometheus.Histogram
	Progress              prometheus.Gauge
	MaxLeafProgress       prometheus.Gauge
	ProgressAll           prometheus.Gauge
	Leaves                prometheus.Gauge
	Depth                 prometheus.Gauge
}

// New registers the collector's metrics with reg.
func New(reg *prometheus.Registry) *Collector {
	f := promauto.With(reg)
	return &Collector{
		reg: reg,
		SplitsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "splits_total",
			Help:      "Number of region splits",
		}),
		SamplesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "samples_total",
			Help:      "Number of sampled goals by sampling mode",
		}, []string{"mode"}),
		RandomBranchesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "random_branches_total",
			Help:      "Number of epsilon-greedy samples that took the random branch",
		}),
		SoftmaxFallbacksTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "softmax_fallbacks_total",
			Help:      "Number of softmax samples that fell back to epsilon-greedy",
		}),
		ObservationsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "observations_total",
			Help:      "Number of scored observations",
		}),
		Competence: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "competence",
			Help:      "Competence of scored observations",
			Buckets:   prometheus.LinearBuckets(-1, 0.25, 9),
		}),
		Progress: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "progress",
			Help:      "Progress of the root region",
		}),
		MaxLeafProgress: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "max_leaf_progress",
			Help:      "Highest progress among leaf regions",
		}),
		ProgressAll: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "progress_all",
			Help:      "Progress over the most recent observations of the whole store",
		}),
		Leaves: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "leaves",
			Help:      "Number of leaf regions",
		}),
		Depth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "depth",
			Help:      "Depth of the region tree",
		}),
	}
}

// Observe implements riac.Observer.
func (c *Collector) Observe(ev riac.Event) {
	switch ev.Kind {
	case riac.EventSplit:
		c.SplitsTotal.Inc()
	case riac.EventSample:
		c.SamplesTotal.WithLabelValues(string(ev.Mode)).Inc()
	case riac.EventRandomBranch:
		c.RandomBranchesTotal.Inc()
	case riac.EventSoftmaxFallback:
		c.SoftmaxFallbacksTotal.Inc()
	case riac.EventCompetence:
		c.ObservationsTotal.Inc()
		c.Competence.Observe(ev.Competence)
	}
}

// Update sets the gauges from a model summary.
func (c *Collector) Update(s riac.Stats) {
	c.Progress.Set(s.Progress)
	c.MaxLeafProgress.Set(s.MaxLeafProgress)
	c.ProgressAll.Set(s.ProgressAll)
	c.Leaves.Set(float64(s.Leaves))
	c.Depth.Set(float64(s.Depth))
}

// Snapshot gathers the registry and returns counter and gauge values keyed
// by metric name. Labelled series are summed; histograms report their
// sample count.
func (c *Collector) Snapshot() (map[string]float64, error) {
	families, err := c.reg.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(families))
	for _, mf := range families {
		out[mf.GetName()] = sumFamily(mf)
	}
	return out, nil
}

func sumFamily(mf *dto.MetricFamily) float64 {
	var total float64
	for _, m := range mf.GetMetric() {
		switch mf.GetType() {
		case dto.MetricType_COUNTER:
			total += m.GetCounter().GetValue()
		case dto.MetricType_GAUGE:
			total += m.GetGauge().GetValue()
		case dto.MetricType_HISTOGRAM:
			total += float64(m.GetHistogram().GetSampleCount())
		}
	}
	return total
}
