package risk

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	KillSwitchEngaged = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kalshi_bot_risk_kill_switch_engaged",
		Help: "Whether the risk kill switch is engaged (1=engaged, 0=clear)",
	})

	LatestBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kalshi_bot_risk_latest_balance_cents",
		Help: "Last observed account balance in cents",
	})

	TotalExposure = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kalshi_bot_risk_total_exposure_cents",
		Help: "Current aggregate exposure across all open positions, in cents",
	})

	CriticalFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kalshi_bot_risk_critical_failures_total",
		Help: "Total critical failures recorded by the risk guard",
	})

	PreTradeRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kalshi_bot_risk_pretrade_rejections_total",
		Help: "Pre-trade checks rejected, labeled by reason code",
	}, []string{"reason"})

	PreTradeCheckDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kalshi_bot_risk_pretrade_check_duration_seconds",
		Help:    "Time taken to run the pre-trade check pipeline",
		Buckets: prometheus.DefBuckets,
	})
)
