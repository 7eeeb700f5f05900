package kalshi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stream metrics, grounded on pkg/websocket/metrics.go's naming
// pattern, renamed to the kalshi_bot_stream_* namespace.
var (
	StreamActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kalshi_bot_stream_active_connections",
		Help: "Whether the ticker stream connection is currently up (0 or 1)",
	})

	StreamMessagesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kalshi_bot_stream_messages_received_total",
			Help: "Total ticker-feed messages received by type",
		},
		[]string{"type"},
	)

	StreamMessagesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kalshi_bot_stream_messages_dropped_total",
			Help: "Total ticker-feed messages dropped before reaching the quote book",
		},
		[]string{"reason"},
	)
)
