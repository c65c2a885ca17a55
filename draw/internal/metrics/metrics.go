// Package metrics exposes Prometheus metrics for the draw service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Draw metrics
	DrawsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lottery_draws_total",
			Help: "Total number of lottery draws attempted",
		},
		[]string{"lottery_type", "status"},
	)

	DrawDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lottery_draw_duration_seconds",
			Help:    "Duration of a single lottery draw in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"lottery_type"},
	)

	WinnersDrawn = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lottery_winners_drawn_total",
			Help: "Total number of winners recorded by draws",
		},
		[]string{"lottery_type"},
	)

	UnmatchedWinners = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lottery_unmatched_winners_total",
			Help: "Winner ticket numbers that matched no stored ticket",
		},
	)

	DueLotteries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lottery_due_lotteries",
			Help: "Lotteries found due at the last draw batch",
		},
	)

	// Export metrics
	ExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lottery_result_exports_total",
			Help: "Total number of draw result exports",
		},
		[]string{"status"},
	)

	// Feed consumer metrics
	MessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lottery_feed_messages_total",
			Help: "Feed messages processed by consumer and outcome",
		},
		[]string{"consumer", "outcome"},
	)

	MessageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lottery_feed_message_duration_seconds",
			Help:    "Duration of feed message handling in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"consumer"},
	)

	DLQMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lottery_dlq_messages_total",
			Help: "Messages written to the dead-letter stream",
		},
		[]string{"reason"},
	)

	// Audit metrics
	AuditErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lottery_audit_errors_total",
			Help: "Draw audit documents that failed to index",
		},
	)
)
