package discovery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MarketsDiscoveredTotal tracks total markets seen across polls.
	MarketsDiscoveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kalshi_bot_discovery_markets_total",
		Help: "Total number of markets seen from the exchange market listing endpoint",
	})

	// NewMarketsTotal tracks newly tracked tickers.
	NewMarketsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kalshi_bot_discovery_new_markets_total",
		Help: "Total number of newly tracked tickers",
	})

	// PollDurationSeconds tracks discovery poll latency.
	PollDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kalshi_bot_discovery_poll_duration_seconds",
		Help:    "Duration of exchange market listing poll requests",
		Buckets: prometheus.DefBuckets,
	})

	// PollErrorsTotal tracks poll failures.
	PollErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kalshi_bot_discovery_poll_errors_total",
		Help: "Total number of exchange market listing poll failures",
	})

	// MarketsFilteredByEndDateTotal tracks markets dropped for closing
	// too far in the future (outside MaxDaysToResolution) or already
	// past their close time.
	MarketsFilteredByEndDateTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kalshi_bot_discovery_markets_filtered_end_date_total",
		Help: "Total number of markets filtered out by resolution window",
	})
)
