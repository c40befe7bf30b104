package metricsvc

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trezcool/educore/core/action"
	"github.com/trezcool/educore/core/admission"
	"github.com/trezcool/educore/core/auth"
)

const namespace = "educore"

// Collector exposes admission, gate and action counters to Prometheus.
type Collector struct {
	registry   *prometheus.Registry
	admissions *prometheus.CounterVec
	outcomes   *prometheus.CounterVec
	results    *prometheus.CounterVec
}

var _ action.Observer = (*Collector)(nil)

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_decisions_total",
			Help:      "Admission decisions by verdict.",
		}, []string{"verdict"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_outcomes_total",
			Help:      "Authorization gate outcomes by action.",
		}, []string{"action", "outcome"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "action_results_total",
			Help:      "Action results by action and signal.",
		}, []string{"action", "signal"}),
	}
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.admissions,
		c.outcomes,
		c.results,
	)
	return c
}

func (c *Collector) ObserveAdmission(d admission.Decision) {
	verdict := "admitted"
	if !d.Admitted {
		verdict = "throttled"
	}
	c.admissions.WithLabelValues(verdict).Inc()
}

func (c *Collector) ObserveGate(name string, outcome auth.Outcome) {
	c.outcomes.WithLabelValues(actionLabel(name), outcome.String()).Inc()
}

func (c *Collector) ObserveResult(name string, res action.Result) {
	c.results.WithLabelValues(actionLabel(name), string(res.Signal)).Inc()
}

// Handler serves the collected metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func actionLabel(name string) string {
	if name == "" {
		return "public"
	}
	return name
}
