package pipeline

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var stageBuckets = []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600}

// Metrics records pipeline activity. A nil *Metrics records nothing.
type Metrics struct {
	outcomes      *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	inFlight      prometheus.Gauge
	waitingBuilds prometheus.Gauge
}

// NewMetrics creates pipeline metrics and registers them with reg. A nil reg
// leaves them unregistered. Collectors already registered by an earlier call
// are reused.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "minideploy",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Finished pipeline runs by outcome",
		}, []string{"outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "minideploy",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages",
			Buckets:   stageBuckets,
		}, []string{"stage", "outcome"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "minideploy",
			Subsystem: "pipeline",
			Name:      "in_flight",
			Help:      "Pipelines currently executing",
		}),
		waitingBuilds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "minideploy",
			Subsystem: "pipeline",
			Name:      "builds_waiting",
			Help:      "Pipelines waiting for a build slot",
		}),
	}
	if reg == nil {
		return m
	}

	m.outcomes = registerOrReuse(reg, m.outcomes)
	m.stageDuration = registerOrReuse(reg, m.stageDuration)
	m.inFlight = registerOrReuse(reg, m.inFlight)
	m.waitingBuilds = registerOrReuse(reg, m.waitingBuilds)
	return m
}

func registerOrReuse[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func (m *Metrics) observeStage(stage string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage, outcome(err)).Observe(time.Since(start).Seconds())
}

func (m *Metrics) finished(err error) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) started() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *Metrics) done() {
	if m == nil {
		return
	}
	m.inFlight.Dec()
}

func (m *Metrics) waitingForSlot(delta float64) {
	if m == nil {
		return
	}
	m.waitingBuilds.Add(delta)
}

func outcome(err error) string {
	if err != nil {
		return "failed"
	}
	return "succeeded"
}
