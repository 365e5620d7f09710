// Package metrics exposes the Prometheus instruments shared across the
// core: blind-timer drift, lock acquisition latency, fraud detection
// scores, and gateway connection gauges.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BlindDriftSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "poker_blind_scheduler_drift_seconds",
		Help:    "Measured drift of blind level changes from their scheduled instant",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	})

	LockAcquireDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "poker_lock_acquire_duration_seconds",
		Help:    "Time spent acquiring distributed locks",
		Buckets: prometheus.DefBuckets,
	}, []string{"scope"})

	LockTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poker_lock_timeouts_total",
		Help: "Total lock acquisitions that failed with a timeout",
	})

	FraudSuspicionScore = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "poker_fraud_suspicion_score",
		Help:    "Distribution of suspicion scores by detector",
		Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100, 120},
	}, []string{"detector"})

	FraudDetections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poker_fraud_detections_total",
		Help: "Total flags raised by each detector",
	}, []string{"detector", "severity"})

	FraudMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poker_fraud_messages_total",
		Help: "Fraud event bus messages consumed per channel",
	}, []string{"channel", "outcome"})

	AutoBans = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poker_auto_bans_total",
		Help: "Automatic bans applied by detection type",
	}, []string{"detection_type"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "poker_ws_connections",
		Help: "Currently registered WebSocket connections",
	})

	WSMessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poker_ws_messages_sent_total",
		Help: "Envelopes delivered to clients by channel class",
	}, []string{"channel_class"})

	ChipIntegrityViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poker_chip_integrity_violations_total",
		Help: "Chip conservation check failures by code",
	}, []string{"code"})

	ActiveTables = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "poker_active_tables",
		Help: "Tables currently registered with the game manager",
	})

	ActiveBots = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "poker_active_bots",
		Help: "Bot sessions currently in JOINING or PLAYING state",
	})
)
