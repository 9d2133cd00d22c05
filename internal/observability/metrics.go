package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	queueSize    *prometheus.GaugeVec
	enqueueTotal *prometheus.CounterVec
	dequeueTotal *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec
	toolErrorsTotal       *prometheus.CounterVec
	batchIdentifiers      *prometheus.HistogramVec

	analysisTotal    *prometheus.CounterVec
	analysisDuration *prometheus.HistogramVec

	llmCallTotal    *prometheus.CounterVec
	llmCallDuration *prometheus.HistogramVec

	dataFetchTotal    *prometheus.CounterVec
	dataFetchDuration *prometheus.HistogramVec

	activeSessions      prometheus.Gauge
	sessionLoadDuration prometheus.Histogram
	sessionSaveDuration prometheus.Histogram

	scheduledRunTotal *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			queueSize: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "queue_size",
					Help: "Current queue size by lane.",
				},
				[]string{"lane"},
			),
			enqueueTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "enqueue_total",
					Help: "Total enqueue operations by lane.",
				},
				[]string{"lane"},
			),
			dequeueTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dequeue_total",
					Help: "Total dequeue/completion operations by lane and status.",
				},
				[]string{"lane", "status"},
			),
			taskDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "task_duration_seconds",
					Help:    "Task execution duration in seconds by lane.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"lane"},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_execution_total",
					Help: "Total tool dispatches by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tool_execution_duration_seconds",
					Help:    "Tool dispatch duration in seconds by tool.",
					Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
				},
				[]string{"tool"},
			),
			toolErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_errors_total",
					Help: "Total failed tool dispatches by tool.",
				},
				[]string{"tool"},
			),
			batchIdentifiers: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "batch_identifiers",
					Help:    "Identifiers per batch by tool.",
					Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
				},
				[]string{"tool"},
			),
			analysisTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "analysis_total",
					Help: "Total per-identifier analyses by kind and status.",
				},
				[]string{"kind", "status"},
			),
			analysisDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "analysis_duration_seconds",
					Help:    "Per-identifier analysis duration in seconds by kind.",
					Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
				},
				[]string{"kind"},
			),
			llmCallTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "llm_call_total",
					Help: "Total LLM calls by provider and status.",
				},
				[]string{"provider", "status"},
			),
			llmCallDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "llm_call_duration_seconds",
					Help:    "LLM call duration in seconds by provider.",
					Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
				},
				[]string{"provider"},
			),
			dataFetchTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "data_fetch_total",
					Help: "Total market data fetches by endpoint and status.",
				},
				[]string{"endpoint", "status"},
			),
			dataFetchDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "data_fetch_duration_seconds",
					Help:    "Market data fetch duration in seconds by endpoint.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"endpoint"},
			),
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "active_sessions",
					Help: "Current active session count.",
				},
			),
			sessionLoadDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "session_load_duration_seconds",
					Help:    "Session load duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			sessionSaveDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "session_save_duration_seconds",
					Help:    "Session save duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			scheduledRunTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "scheduled_run_total",
					Help: "Total scheduled job runs by status.",
				},
				[]string{"status"},
			),
		}

		prometheus.MustRegister(
			m.queueSize,
			m.enqueueTotal,
			m.dequeueTotal,
			m.taskDuration,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.toolErrorsTotal,
			m.batchIdentifiers,
			m.analysisTotal,
			m.analysisDuration,
			m.llmCallTotal,
			m.llmCallDuration,
			m.dataFetchTotal,
			m.dataFetchDuration,
			m.activeSessions,
			m.sessionLoadDuration,
			m.sessionSaveDuration,
			m.scheduledRunTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordQueueEnqueue(lane string, queueSize int) {
	m := getMetrics()
	m.enqueueTotal.WithLabelValues(lane).Inc()
	m.queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

func SetQueueSize(lane string, queueSize int) {
	m := getMetrics()
	m.queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

func RecordQueueCompletion(lane string, duration time.Duration, success bool, queueSize int) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.dequeueTotal.WithLabelValues(lane, status).Inc()
	m.taskDuration.WithLabelValues(lane).Observe(duration.Seconds())
	m.queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.toolExecutionTotal.WithLabelValues(tool, status).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
	if !success {
		m.toolErrorsTotal.WithLabelValues(tool).Inc()
	}
}

func RecordBatchSize(tool string, identifiers int) {
	m := getMetrics()
	m.batchIdentifiers.WithLabelValues(tool).Observe(float64(identifiers))
}

func RecordAnalysis(kind string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.analysisTotal.WithLabelValues(kind, status).Inc()
	m.analysisDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func RecordLLMCall(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.llmCallTotal.WithLabelValues(provider, status).Inc()
	m.llmCallDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func RecordDataFetch(endpoint string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.dataFetchTotal.WithLabelValues(endpoint, status).Inc()
	m.dataFetchDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func SetActiveSessions(count int) {
	m := getMetrics()
	m.activeSessions.Set(float64(count))
}

func RecordSessionLoad(duration time.Duration) {
	m := getMetrics()
	m.sessionLoadDuration.Observe(duration.Seconds())
}

func RecordSessionSave(duration time.Duration) {
	m := getMetrics()
	m.sessionSaveDuration.Observe(duration.Seconds())
}

func RecordScheduledRun(success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.scheduledRunTotal.WithLabelValues(status).Inc()
}
