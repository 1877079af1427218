package metrics

import (
	"fmt"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "multibuild"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	registry       *prom.Registry
	targetDuration *prom.HistogramVec
	targetOutcomes *prom.CounterVec
	minifyFailures *prom.CounterVec
	runDuration    prom.Histogram
	inFlight       prom.Gauge
}

// NewPrometheusRecorder constructs the metrics and registers them on reg.
// A nil registry gets a fresh one.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		registry: reg,
		targetDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "target_duration_seconds",
			Help:      "Duration of individual target builds",
			Buckets:   prom.DefBuckets,
		}, []string{"target"}),
		targetOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "target_outcomes_total",
			Help:      "Target build outcomes",
		}, []string{"target", "outcome"}),
		minifyFailures: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "minify_failures_total",
			Help:      "Non-fatal minification failures",
		}, []string{"target"}),
		runDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of orchestrated runs",
			Buckets:   prom.DefBuckets,
		}),
		inFlight: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "targets_in_flight",
			Help:      "Target builds currently running",
		}),
	}
	reg.MustRegister(pr.targetDuration, pr.targetOutcomes, pr.minifyFailures, pr.runDuration, pr.inFlight)
	return pr
}

// Registry returns the registry the metrics are registered on.
func (p *PrometheusRecorder) Registry() *prom.Registry {
	return p.registry
}

func (p *PrometheusRecorder) ObserveTargetDuration(target string, d time.Duration) {
	if p == nil {
		return
	}
	p.targetDuration.WithLabelValues(target).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncTargetOutcome(target string, outcome Outcome) {
	if p == nil {
		return
	}
	p.targetOutcomes.WithLabelValues(target, string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncMinifyFailure(target string) {
	if p == nil {
		return
	}
	p.minifyFailures.WithLabelValues(target).Inc()
}

func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.runDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) SetInFlight(n int) {
	if p == nil {
		return
	}
	p.inFlight.Set(float64(n))
}

// WriteTextfile writes all metrics in the Prometheus text format, suitable
// for the node exporter textfile collector.
func (p *PrometheusRecorder) WriteTextfile(path string) error {
	if err := prom.WriteToTextfile(path, p.registry); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}

// Handler serves the registry over HTTP.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
