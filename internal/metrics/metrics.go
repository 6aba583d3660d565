// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	AuditEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "passkey_audit_events_total",
			Help: "Audit events recorded, by event kind.",
		},
		[]string{"event_kind"},
	)

	AuditWriteFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "passkey_audit_write_failures_total",
			Help: "Audit entries that could not be persisted.",
		},
	)

	OTPLockoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "passkey_otp_lockouts_total",
			Help: "OTP lockouts engaged, by action and key scope.",
		},
		[]string{"action", "scope"},
	)

	LoginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "passkey_admin_logins_total",
			Help: "Admin password logins, by result.",
		},
		[]string{"result"},
	)

	CeremoniesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "passkey_ceremonies_total",
			Help: "WebAuthn ceremony verifications, by ceremony and result.",
		},
		[]string{"ceremony", "result"},
	)

	GRPCRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grpc_requests_total",
			Help: "Total number of gRPC requests, by method and status code.",
		},
		[]string{"method", "code"},
	)

	CloneDetectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "passkey_clone_detections_total",
			Help: "Assertions rejected because the signature counter did not advance.",
		},
	)
)

var registerOnce sync.Once

// MustRegister registers every collector with reg once per process.
func MustRegister(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDurationSeconds,
			AuditEventsTotal,
			AuditWriteFailuresTotal,
			OTPLockoutsTotal,
			LoginsTotal,
			CeremoniesTotal,
			CloneDetectionsTotal,
			GRPCRequestsTotal,
		)
	})
}
