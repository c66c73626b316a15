package primer

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects prometheus metrics about checker runs and bisections.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	checks        *prometheus.CounterVec
	checkDuration prometheus.Histogram
	bisectSteps   *prometheus.CounterVec
	remaining     prometheus.Gauge
	regressions   prometheus.Counter
}

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "typeprimer",
			Name:      "checks_total",
			Help:      "Checker runs by whether the checker succeeded.",
		}, []string{"success"}),
		checkDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "typeprimer",
			Name:      "check_duration_seconds",
			Help:      "Wall clock time of single checker runs.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		bisectSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "typeprimer",
			Name:      "bisect_steps_total",
			Help:      "Completed bisection steps by verdict.",
		}, []string{"verdict"}),
		remaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "typeprimer",
			Name:      "bisect_remaining_revisions",
			Help:      "Revisions which may still be the first bad one.",
		}),
		regressions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "typeprimer",
			Name:      "diffs_total",
			Help:      "Projects whose output differed between the old and new checker.",
		}),
	}
	reg.MustRegister(m.checks, m.checkDuration, m.bisectSteps, m.remaining, m.regressions)
	return m
}

func (m *Metrics) observeCheck(r CheckResult) {
	if m == nil {
		return
	}
	success := "false"
	if r.Success {
		success = "true"
	}
	m.checks.WithLabelValues(success).Inc()
	m.checkDuration.Observe(r.Runtime.Seconds())
}

func (m *Metrics) observeStep(v Verdict, remaining int) {
	if m == nil {
		return
	}
	m.bisectSteps.WithLabelValues(v.String()).Inc()
	m.remaining.Set(float64(remaining))
}

func (m *Metrics) observeDiff() {
	if m == nil {
		return
	}
	m.regressions.Inc()
}
