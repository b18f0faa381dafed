package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScoringOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waitlist_scoring_operations_total",
			Help: "Total number of applicant scorings by caller",
		},
		[]string{"caller"},
	)

	ScoreDistribution = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "waitlist_score",
			Help:    "Distribution of computed applicant scores",
			Buckets: []float64{2, 4, 6, 8, 10},
		},
	)

	ConfigLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waitlist_scoring_config_loads_total",
			Help: "Scoring config resolutions by serving source",
		},
		[]string{"source"},
	)

	ConfigSourceRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waitlist_scoring_config_source_rejected_total",
			Help: "Config sources skipped because they were unreachable or invalid",
		},
		[]string{"source", "reason"},
	)

	ConfigUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waitlist_scoring_config_updates_total",
			Help: "Scoring config update attempts by outcome",
		},
		[]string{"outcome"},
	)

	AutoApprovalDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waitlist_auto_approval_decisions_total",
			Help: "Auto-approval outcomes",
		},
		[]string{"outcome"},
	)

	AdminRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waitlist_admin_requests_total",
			Help: "Admin scoring requests by operation and HTTP status",
		},
		[]string{"operation", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "waitlist_http_request_duration_seconds",
			Help: "Duration of HTTP requests in seconds",
		},
		[]string{"route", "method"},
	)

	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waitlist_rate_limit_rejections_total",
			Help: "Requests rejected by the token bucket",
		},
		[]string{"scope"},
	)

	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)
)
