package execution

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OpportunitiesReceived tracks trade intents handed to the executor.
	OpportunitiesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kalshi_bot_execution_opportunities_received_total",
		Help: "Total number of trade intents received for execution",
	})

	// OpportunitiesSkipped tracks intents rejected before any order left the process.
	OpportunitiesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kalshi_bot_execution_opportunities_skipped_total",
			Help: "Total number of trade intents skipped before submission, by reason",
		},
		[]string{"reason"},
	)

	// ExecutionResultTotal tracks terminal execution states.
	ExecutionResultTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kalshi_bot_execution_result_total",
			Help: "Terminal execution results, by state",
		},
		[]string{"state"},
	)

	// ExecutionDurationSeconds tracks wall time from submit to terminal state.
	ExecutionDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kalshi_bot_execution_duration_seconds",
		Help:    "Duration of trade execution including fill verification",
		Buckets: prometheus.DefBuckets,
	})

	// ExecutionErrorsByType tracks execution failures by classified error type.
	ExecutionErrorsByType = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kalshi_bot_execution_errors_by_type_total",
			Help: "Total number of execution errors classified by type",
		},
		[]string{"error_type"},
	)

	// FillVerificationTotal tracks fill verification attempts by result.
	FillVerificationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kalshi_bot_execution_fill_verification_total",
			Help: "Total fill verification attempts by result (success, timeout, canceled)",
		},
		[]string{"result"},
	)

	// FillVerificationDurationSeconds tracks fill verification duration.
	FillVerificationDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kalshi_bot_execution_fill_verification_duration_seconds",
		Help:    "Duration of fill verification polling",
		Buckets: []float64{1, 2, 5, 10, 20, 30, 60},
	})

	// UnwindsTotal tracks residual-flattening unwind attempts.
	UnwindsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kalshi_bot_execution_unwinds_total",
			Help: "Residual-flattening unwind attempts, by result",
		},
		[]string{"result"},
	)

	// ProfitRealizedCents tracks cumulative realized profit, cents, by mode.
	ProfitRealizedCents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kalshi_bot_execution_profit_realized_cents",
			Help: "Cumulative profit realized in cents, by mode (paper, live)",
		},
		[]string{"mode"},
	)
)
