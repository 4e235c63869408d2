package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики выполнения тестов.
var (
	// StepSubmissions — принятые и отклонённые результаты шагов.
	// outcome: passed, failed, invalid.
	StepSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moduletrack_step_submissions_total",
		Help: "Step submissions by step kind and outcome",
	}, []string{"kind", "outcome"})

	// SessionsStarted — открытые тестовые сессии.
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "moduletrack_sessions_started_total",
		Help: "Test sessions opened on first step submission",
	})

	// SessionsFinalized — завершённые сессии по итогу.
	SessionsFinalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moduletrack_sessions_finalized_total",
		Help: "Test sessions completed by technicians, by verdict",
	}, []string{"verdict"})

	// SignOffs — подписи QA.
	SignOffs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "moduletrack_qa_signoffs_total",
		Help: "QA sign-offs recorded",
	})

	// SessionsAbandoned — сессии, освобождённые sweeper'ом.
	SessionsAbandoned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "moduletrack_sessions_abandoned_total",
		Help: "Incomplete sessions released by the sweeper",
	})

	// AuditEventsStored — события, сохранённые в журнал аудита.
	AuditEventsStored = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moduletrack_audit_events_stored_total",
		Help: "Session events persisted by the audit consumer, by type",
	}, []string{"type"})
)

// HTTP метрики API.
var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moduletrack_api_http_requests_total",
		Help: "Total HTTP requests handled by moduletrack-api",
	}, []string{"method", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "moduletrack_api_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})
)
