// Package metrics defines and registers all custom Prometheus metrics for the
// stall auth service. It is the single source of truth for metric names,
// labels, and help strings.
//
// Metrics are registered with the default Prometheus registry through promauto
// when the package is imported.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "stallauth"

// ── Authentication metrics ────────────────────────────────────────────────────

// LoginsTotal counts login attempts.
// Label:
//   - result: "success", "invalid_credentials", "inactive" or "error"
var LoginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Total number of login attempts, by result.",
	},
	[]string{"result"},
)

// AuthenticationFailuresTotal counts rejected bearer tokens.
// Label:
//   - reason: "invalid_token", "session_invalid", "session_expired", "password_changed", "inactive" or "error"
var AuthenticationFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "authentication_failures_total",
		Help:      "Total number of bearer tokens rejected by the authenticator.",
	},
	[]string{"reason"},
)

// PasswordChangesTotal counts successful password updates.
// Label:
//   - path: "change", "token", "contact" or "secret_word"
var PasswordChangesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "password_changes_total",
		Help:      "Total number of passwords set, by path.",
	},
	[]string{"path"},
)

// ── Recovery metrics ──────────────────────────────────────────────────────────

// RecoveryCodesTotal counts verification code requests and checks.
// Labels:
//   - op: "request" or "verify"
//   - result: "success", "rate_limited", "too_many_attempts", "invalid", "expired" or "error"
var RecoveryCodesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "recovery_codes_total",
		Help:      "Total number of verification code operations, by operation and result.",
	},
	[]string{"op", "result"},
)

// ── Session activity metrics ──────────────────────────────────────────────────

// SessionTouchesDroppedTotal counts activity touches discarded because a worker
// queue was full.
var SessionTouchesDroppedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_touches_dropped_total",
		Help:      "Total number of session activity touches dropped on a full queue.",
	},
)

// SessionTouchQueueDepth tracks the number of touches pending in each worker channel.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var SessionTouchQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "session_touch_queue_depth",
		Help:      "Current number of activity touches pending in each worker channel.",
	},
	[]string{"worker_id"},
)

// SessionTouchDuration measures how long a single touch takes to persist.
var SessionTouchDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "session_touch_duration_seconds",
		Help:      "Duration of session last-activity updates.",
		Buckets:   prometheus.DefBuckets,
	},
)
