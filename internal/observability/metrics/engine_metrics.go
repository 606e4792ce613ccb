package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics captures batch pipeline health signals: job runs, latency,
// errors, and the number of aggregates each component computed.
type EngineMetrics struct {
	jobRuns     *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	jobErrors   *prometheus.CounterVec
	aggregates  *prometheus.CounterVec
}

var (
	engineMetricsOnce sync.Once
	engineMetrics     *EngineMetrics
)

// Engine returns the singleton engine metrics registry.
func Engine() *EngineMetrics {
	engineMetricsOnce.Do(func() {
		engineMetrics = newEngineMetrics(prometheus.DefaultRegisterer)
	})
	return engineMetrics
}

// ResetEngineMetricsForTest resets the engine metrics singleton for tests.
func ResetEngineMetricsForTest() {
	engineMetricsOnce = sync.Once{}
	engineMetrics = nil
}

func newEngineMetrics(registerer prometheus.Registerer) *EngineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "revplan_job_runs_total",
		Help: "Pipeline job runs by name.",
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "revplan_job_duration_seconds",
		Help:    "Pipeline job latency.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "revplan_job_errors_total",
		Help: "Pipeline job errors by name.",
	}, []string{"job"})
	aggregates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "revplan_aggregates_computed_total",
		Help: "Computed allocation aggregates by component and level.",
	}, []string{"component", "level"})

	for _, collector := range []prometheus.Collector{jobRuns, jobDuration, jobErrors, aggregates} {
		if err := registerer.Register(collector); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				switch existing := already.ExistingCollector.(type) {
				case *prometheus.CounterVec:
					switch collector {
					case jobRuns:
						jobRuns = existing
					case jobErrors:
						jobErrors = existing
					case aggregates:
						aggregates = existing
					}
				case *prometheus.HistogramVec:
					jobDuration = existing
				}
			}
		}
	}

	return &EngineMetrics{
		jobRuns:     jobRuns,
		jobDuration: jobDuration,
		jobErrors:   jobErrors,
		aggregates:  aggregates,
	}
}

func (m *EngineMetrics) IncJobRun(job string) {
	m.jobRuns.WithLabelValues(normalizeLabel(job)).Inc()
}

func (m *EngineMetrics) ObserveJobDuration(job string, d time.Duration) {
	m.jobDuration.WithLabelValues(normalizeLabel(job)).Observe(d.Seconds())
}

func (m *EngineMetrics) IncJobError(job string) {
	m.jobErrors.WithLabelValues(normalizeLabel(job)).Inc()
}

func (m *EngineMetrics) IncAggregates(component, level string, n int) {
	if n <= 0 {
		return
	}
	m.aggregates.WithLabelValues(normalizeLabel(component), normalizeLabel(level)).Add(float64(n))
}

func normalizeLabel(v string) string {
	v = strings.TrimSpace(strings.ToLower(v))
	if v == "" {
		return "unknown"
	}
	return v
}
