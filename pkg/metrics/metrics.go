package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LoginAttempts records login attempts by provider (ldap|local) and result (success|failure).
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oitdesk_login_attempts_total",
			Help: "Total number of login attempts",
		},
		[]string{"provider", "result"},
	)

	// ActiveSessions tracks sessions that are neither expired nor revoked.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "oitdesk_active_sessions",
			Help: "Number of active user sessions",
		},
	)

	// TicketsCreated counts created tickets by priority.
	TicketsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oitdesk_tickets_created_total",
			Help: "Total number of created tickets",
		},
		[]string{"priority"},
	)

	// NotificationClients tracks currently connected notification stream subscribers.
	NotificationClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "oitdesk_notification_clients",
			Help: "Number of connected notification websocket clients",
		},
	)

	// APILatency observes HTTP request latency by method, path and status.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oitdesk_api_request_duration_seconds",
			Help:    "Latency of API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
