// Package risk implements the Risk Guard: a stateful pre-trade check
// pipeline plus a sticky kill switch. Grounded on
// internal/circuitbreaker/breaker.go from the teacher — same
// atomic.Bool lock-free enabled flag guarding the hot path, same
// sync.RWMutex-protected rolling state — but the kill switch here is
// a one-way latch rather than a hysteresis breaker: once it engages,
// only an explicit ResetKillSwitch call clears it. A trading bot that
// silently re-enables itself after a balance dip is the wrong
// failure mode for a box nobody is watching continuously.
package risk

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kalshi-trading/core/pkg/boterrors"
	"github.com/kalshi-trading/core/pkg/config"
)

// Trade describes one candidate order for the pre-trade pipeline.
type Trade struct {
	Group        string // per-city / per-event grouping key (ticker prefix before first '-')
	EventTicker  string
	Ticker       string
	Qty          int64
	PriceCents   int64
	LegCount     int   // number of legs submitted together (arb sets submit >1)
	PayoutCents  int64 // conservative gross exposure proxy for arb sets; 100 for directional
}

// Guard holds process-local risk state and runs the pre-trade check
// pipeline. All exported methods are safe for concurrent use.
type Guard struct {
	killSwitch atomic.Bool // lock-free read on the hot path, same pattern as BalanceCircuitBreaker.enabled

	cfg    config.RiskConfig
	logger *zap.Logger

	mu                  sync.RWMutex
	startingBalanceCents int64
	latestBalanceCents   int64
	haveBalance          bool
	eventExposureCents   map[string]int64
	groupExposureCents   map[string]int64
	totalExposureCents   int64
	attemptHistory       map[string][]time.Time
	orderTimestamps      []time.Time
	criticalFailures     int
}

// New builds a Guard. The kill switch starts clear.
func New(cfg config.RiskConfig, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Guard{
		cfg:                cfg,
		logger:             logger,
		eventExposureCents: make(map[string]int64),
		groupExposureCents: make(map[string]int64),
		attemptHistory:     make(map[string][]time.Time),
	}
	KillSwitchEngaged.Set(0)
	return g
}

// KillSwitchEngagedNow reports whether the kill switch is currently
// latched. Lock-free.
func (g *Guard) KillSwitchEngagedNow() bool {
	return g.killSwitch.Load()
}

// ResetKillSwitch is the only way to clear an engaged kill switch —
// an explicit operator action, never automatic.
func (g *Guard) ResetKillSwitch() {
	g.killSwitch.Store(false)
	KillSwitchEngaged.Set(0)
	g.logger.Warn("risk-kill-switch-reset")
}

func (g *Guard) engageKillSwitch(reason string) {
	if g.killSwitch.CompareAndSwap(false, true) {
		KillSwitchEngaged.Set(1)
		g.logger.Error("risk-kill-switch-engaged", zap.String("reason", reason))
	}
}

// ObserveBalance records a fresh balance snapshot. The first snapshot
// establishes the starting balance used for drawdown tracking.
func (g *Guard) ObserveBalance(balanceCents int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.haveBalance {
		g.startingBalanceCents = balanceCents
		g.haveBalance = true
	}
	g.latestBalanceCents = balanceCents
	LatestBalance.Set(float64(balanceCents))
}

// RecordCriticalFailure increments the critical-failure counter and
// engages the kill switch once the configured threshold is reached.
func (g *Guard) RecordCriticalFailure() {
	g.mu.Lock()
	g.criticalFailures++
	count := g.criticalFailures
	g.mu.Unlock()

	CriticalFailures.Inc()
	if count >= g.cfg.KillSwitchDisconnectCount {
		g.engageKillSwitch("critical_failure_threshold")
	}
}

// CheckPreTrade runs the ten-step pre-trade pipeline against t, in
// order, failing fast on the first violation. A passing check appends
// the attempt/order timestamps but does not itself adjust exposure —
// call RecordExecution after the trade is actually placed.
func (g *Guard) CheckPreTrade(t Trade) error {
	start := time.Now()
	defer func() { PreTradeCheckDuration.Observe(time.Since(start).Seconds()) }()

	if err := g.checkPreTrade(t); err != nil {
		var rv *boterrors.RiskViolation
		if asRiskViolation(err, &rv) {
			PreTradeRejections.WithLabelValues(rv.Code).Inc()
		}
		return err
	}
	return nil
}

func asRiskViolation(err error, target **boterrors.RiskViolation) bool {
	rv, ok := err.(*boterrors.RiskViolation)
	if !ok {
		return false
	}
	*target = rv
	return true
}

func (g *Guard) checkPreTrade(t Trade) error {
	// 1. Kill switch engaged.
	if g.killSwitch.Load() {
		return &boterrors.RiskViolation{Code: "kill_switch_engaged", Reason: "kill switch is latched"}
	}

	// 2. Basic sanity.
	if t.Qty <= 0 {
		return &boterrors.RiskViolation{Code: "invalid_qty", Reason: "qty must be positive"}
	}
	if t.PriceCents < 1 || t.PriceCents > 99 {
		return &boterrors.RiskViolation{Code: "invalid_price", Reason: "price must be in [1,99]"}
	}
	if t.LegCount <= 0 {
		return &boterrors.RiskViolation{Code: "no_legs", Reason: "legs must be non-empty"}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	// 3. Balance snapshot exists; drawdown within bound.
	if !g.haveBalance {
		return &boterrors.RiskViolation{Code: "no_balance_snapshot", Reason: "balance has not been observed yet"}
	}
	if g.latestBalanceCents < g.cfg.MinBalanceCents {
		g.engageKillSwitchLocked("balance_below_minimum")
		return &boterrors.RiskViolation{Code: "balance_below_minimum", Reason: "latest balance below floor"}
	}
	drawdown := g.startingBalanceCents - g.latestBalanceCents
	if drawdown > g.cfg.MaxDailyLossCents {
		g.engageKillSwitchLocked("max_daily_loss_exceeded")
		return &boterrors.RiskViolation{Code: "max_daily_loss_exceeded", Reason: "drawdown exceeds daily loss cap"}
	}

	// 4. Projected post-trade balance.
	tradeCost := t.PriceCents * t.Qty
	if g.latestBalanceCents-tradeCost < g.cfg.MinBalanceCents {
		return &boterrors.RiskViolation{Code: "projected_balance_below_minimum", Reason: "trade would breach minimum balance"}
	}

	now := time.Now()

	// 5. Rolling 60s attempts per group.
	groupAttempts := pruneWindow(g.attemptHistory[t.Group], now)
	if len(groupAttempts) >= g.cfg.MaxAttemptsPerGroupPerMin {
		g.attemptHistory[t.Group] = groupAttempts
		return &boterrors.RiskViolation{Code: "group_attempt_rate_exceeded", Reason: "too many attempts for group in the last minute"}
	}

	// 6. Rolling 60s orders (all legs count).
	orderTimestamps := pruneWindow(g.orderTimestamps, now)
	if len(orderTimestamps)+t.LegCount > g.cfg.MaxOrdersPerMinute {
		g.orderTimestamps = orderTimestamps
		return &boterrors.RiskViolation{Code: "order_rate_exceeded", Reason: "would exceed max orders per minute"}
	}

	// 7. Per-event exposure.
	payout := t.PayoutCents
	if payout == 0 {
		payout = 100
	}
	projectedEventExposure := g.eventExposureCents[t.EventTicker] + payout*t.Qty
	if projectedEventExposure > g.cfg.MaxExposurePerEventCents {
		return &boterrors.RiskViolation{Code: "event_exposure_exceeded", Reason: "per-event exposure cap exceeded"}
	}

	// 8. Total exposure.
	tradeRisk := t.PriceCents * t.Qty
	if g.totalExposureCents+tradeRisk > g.cfg.MaxTotalExposureCents {
		return &boterrors.RiskViolation{Code: "total_exposure_exceeded", Reason: "total exposure cap exceeded"}
	}

	// 9. Per-ticker position limit.
	if tradeRisk > g.cfg.MaxPositionCents {
		return &boterrors.RiskViolation{Code: "position_limit_exceeded", Reason: "single-ticker position cap exceeded"}
	}

	// 10. Per-city / per-group concentration.
	projectedGroupExposure := g.groupExposureCents[t.Group] + tradeRisk
	if projectedGroupExposure > g.cfg.MaxCityExposureCents {
		return &boterrors.RiskViolation{Code: "group_exposure_exceeded", Reason: "per-group concentration cap exceeded"}
	}

	// All checks passed: record the attempt and order timestamps.
	g.attemptHistory[t.Group] = append(groupAttempts, now)
	newOrderTimestamps := orderTimestamps
	for i := 0; i < t.LegCount; i++ {
		newOrderTimestamps = append(newOrderTimestamps, now)
	}
	g.orderTimestamps = newOrderTimestamps

	return nil
}

// engageKillSwitchLocked assumes g.mu is already held.
func (g *Guard) engageKillSwitchLocked(reason string) {
	if g.killSwitch.CompareAndSwap(false, true) {
		KillSwitchEngaged.Set(1)
		g.logger.Error("risk-kill-switch-engaged", zap.String("reason", reason))
	}
}

// RecordExecution updates exposure tracking after a trade has
// actually been placed (not merely approved by CheckPreTrade).
func (g *Guard) RecordExecution(t Trade) {
	g.mu.Lock()
	defer g.mu.Unlock()

	payout := t.PayoutCents
	if payout == 0 {
		payout = 100
	}
	tradeRisk := t.PriceCents * t.Qty

	g.eventExposureCents[t.EventTicker] += payout * t.Qty
	g.groupExposureCents[t.Group] += tradeRisk
	g.totalExposureCents += tradeRisk
	TotalExposure.Set(float64(g.totalExposureCents))
}

// pruneWindow drops entries older than 60s from a FIFO of timestamps.
func pruneWindow(timestamps []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-60 * time.Second)
	i := 0
	for i < len(timestamps) && timestamps[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return timestamps
	}
	return append([]time.Time{}, timestamps[i:]...)
}
