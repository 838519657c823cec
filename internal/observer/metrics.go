package observer

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"gitlab.com/timkado/api/waitlist-ops/internal/apperrors"
)

var (
	metricsEnabled = true // Flag to control metric collection

	// IntakeSubmissionsTotal counts public submissions by terminal status.
	IntakeSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waitlist_intake_submissions_total",
			Help: "Total number of waitlist submissions, labeled by outcome status and source.",
		},
		[]string{"status", "source"},
	)

	// OpsActionsTotal counts operator mutations and refused ops requests by action and result.
	OpsActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waitlist_ops_actions_total",
			Help: "Total number of ops mutations, labeled by action and error type.",
		},
		[]string{"action", "error_type"},
	)

	StoreOperationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "waitlist_store_operation_duration_seconds",
			Help:    "Duration of store load/save operations.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"backend", "operation", "status"},
	)

	LockWaitDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "waitlist_lock_wait_duration_seconds",
			Help:    "Time spent waiting to acquire the store lock.",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"backend"},
	)

	// LockTimeoutsTotal counts lock waits that hit the timeout, labeled by the policy applied.
	LockTimeoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waitlist_lock_timeouts_total",
			Help: "Total number of lock acquisitions that timed out.",
		},
		[]string{"backend", "policy"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waitlist_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "waitlist_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// InitMetrics toggles metric collection. promauto already registered the collectors.
func InitMetrics(enabled bool) {
	metricsEnabled = enabled
}

// IncIntakeSubmission records one intake outcome.
func IncIntakeSubmission(status, source string) {
	if !metricsEnabled {
		return
	}
	if source == "" {
		source = "unknown"
	}
	IncCounter(IntakeSubmissionsTotal, status, source)
}

// IncOpsAction records one ops mutation outcome.
func IncOpsAction(action string, err error) {
	if !metricsEnabled {
		return
	}
	IncCounter(OpsActionsTotal, action, ErrorType(err))
}

// ObserveStoreOperation records the duration of a load or save.
func ObserveStoreOperation(backend, operation string, duration time.Duration, err error) {
	if !metricsEnabled {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	StoreOperationDurationSeconds.WithLabelValues(backend, operation, status).Observe(duration.Seconds())
}

// ObserveLockWait records how long a caller waited for the store lock.
func ObserveLockWait(backend string, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	LockWaitDurationSeconds.WithLabelValues(backend).Observe(duration.Seconds())
}

// IncLockTimeout records a lock wait that ran out of time.
func IncLockTimeout(backend, policy string) {
	if !metricsEnabled {
		return
	}
	IncCounter(LockTimeoutsTotal, backend, policy)
}

// ObserveHTTPRequest increments the request counter and observes duration.
func ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncCounter increments a counter vec with the given label values.
func IncCounter(vec *prometheus.CounterVec, labels ...string) {
	vec.WithLabelValues(labels...).Inc()
}

// ErrorType maps an error onto a low-cardinality label.
func ErrorType(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, apperrors.ErrValidation):
		return "validation"
	case errors.Is(err, apperrors.ErrNotFound):
		return "not_found"
	case apperrors.IsUnauthorizedError(err):
		return "unauthorized"
	case errors.Is(err, apperrors.ErrTimeout):
		return "timeout"
	case errors.Is(err, apperrors.ErrDatabase):
		return "database"
	case errors.Is(err, apperrors.ErrStorage):
		return "storage"
	default:
		return "unknown"
	}
}
