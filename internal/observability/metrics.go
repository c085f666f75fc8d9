package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sakan_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sakan_db_tx_seconds",
			Help:    "Duration of ledger transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	BookingsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sakan_bookings_created_total",
			Help: "Total deposit bookings created",
		},
	)

	PaymentsConfirmed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sakan_payments_confirmed_total",
			Help: "Total payments confirmed by the gateway",
		},
		[]string{"type"},
	)

	WebhooksRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sakan_webhooks_rejected_total",
			Help: "Total webhook notifications with a bad signature",
		},
	)

	BookingsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sakan_bookings_expired_total",
			Help: "Total bookings reclaimed by the expiry sweep",
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sakan_outbox_lag_seconds",
			Help: "Lag of outbox publishing",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sakan_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)
