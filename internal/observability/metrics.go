package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "webpilot"

// Metrics holds the Prometheus collectors updated by the agent loop and the
// action executor. All methods are safe on a nil receiver so components can
// run without metrics.
type Metrics struct {
	runsTotal          *prometheus.CounterVec
	actionsTotal       *prometheus.CounterVec
	parseFailuresTotal prometheus.Counter
	modelRoundDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg. Passing a
// fresh prometheus.NewRegistry keeps tests independent of the default one.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "runs_total",
				Help:      "Agent runs by final state.",
			},
			[]string{"state"},
		),
		actionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "actions_total",
				Help:      "Browser actions dispatched, by kind and result.",
			},
			[]string{"kind", "result"},
		),
		parseFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "parse_failures_total",
				Help:      "Model responses that yielded no usable action.",
			},
		),
		modelRoundDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "model_round_duration_seconds",
				Help:      "Duration of one streamed model round trip.",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
		),
	}

	for _, c := range []prometheus.Collector{m.runsTotal, m.actionsTotal, m.parseFailuresTotal, m.modelRoundDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordRun counts a finished run.
func (m *Metrics) RecordRun(state string) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(state).Inc()
}

// RecordAction counts one dispatched action. result is "ok" or "error".
func (m *Metrics) RecordAction(kind, result string) {
	if m == nil {
		return
	}
	m.actionsTotal.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) RecordParseFailure() {
	if m == nil {
		return
	}
	m.parseFailuresTotal.Inc()
}

func (m *Metrics) ObserveModelRound(d time.Duration) {
	if m == nil {
		return
	}
	m.modelRoundDuration.Observe(d.Seconds())
}
