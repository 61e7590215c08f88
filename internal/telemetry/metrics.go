package telemetry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/danielpatrickdp/adaptive-form/internal/adaptation"
	"github.com/danielpatrickdp/adaptive-form/internal/pipeline"
)

// #region metrics

// Metrics records pipeline decisions as Prometheus series. It implements
// pipeline.Recorder.
type Metrics struct {
	decisions     *prometheus.CounterVec
	tiers         *prometheus.CounterVec
	admitted      prometheus.Histogram
	duration      *prometheus.HistogramVec
	stateFailures *prometheus.CounterVec
}

var _ pipeline.Recorder = (*Metrics)(nil)

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adapt_decisions_total",
			Help: "Pipeline decisions, split by whether a degraded path was used.",
		}, []string{"fallback"}),
		tiers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adapt_tier_outcomes_total",
			Help: "Per-tier outcome of each decision.",
		}, []string{"tier", "status"}),
		admitted: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "adapt_admitted_candidates",
			Help:    "Adaptations admitted per decision.",
			Buckets: []float64{0, 1, 2, 3, 4, 6},
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "adapt_pipeline_duration_seconds",
			Help:    "Wall time of pipeline stages.",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"stage"}),
		stateFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adapt_state_failures_total",
			Help: "Session store failures by operation.",
		}, []string{"op"}),
	}
	if reg != nil {
		reg.MustRegister(m.decisions, m.tiers, m.admitted, m.duration, m.stateFailures)
	}
	return m
}

// ObserveDecision updates every series from one finished decision.
func (m *Metrics) ObserveDecision(d pipeline.Decision) {
	m.decisions.WithLabelValues(strconv.FormatBool(d.FallbackUsed)).Inc()
	for tier, status := range d.Tiers {
		m.tiers.WithLabelValues(string(tier), string(status)).Inc()
	}
	m.admitted.Observe(float64(len(d.Candidates)))

	m.duration.WithLabelValues("total").Observe(d.Timings.TotalMs / 1000)
	if d.Tiers[adaptation.TierEdge] != pipeline.StatusUnused {
		m.duration.WithLabelValues(string(adaptation.TierEdge)).Observe(d.Timings.EdgeMs / 1000)
	}
	switch d.Tiers[adaptation.TierEnhancement] {
	case pipeline.StatusOK, pipeline.StatusFailed, pipeline.StatusTimeout:
		m.duration.WithLabelValues(string(adaptation.TierEnhancement)).Observe(d.Timings.EnhancementMs / 1000)
	}
}

// ObserveStateFailure counts a failed session load or save.
func (m *Metrics) ObserveStateFailure(op pipeline.StateOp) {
	m.stateFailures.WithLabelValues(string(op)).Inc()
}

// #endregion

// #region nop

// Nop discards decisions.
type Nop struct{}

// ObserveDecision does nothing.
func (Nop) ObserveDecision(pipeline.Decision) {}

// ObserveStateFailure does nothing.
func (Nop) ObserveStateFailure(pipeline.StateOp) {}

// #endregion
