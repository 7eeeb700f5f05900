// Package execution implements the Executor: it turns a trade intent
// into one or more exchange orders, submits them as a single batch,
// and drives the resulting fills to a terminal state. Grounded on
// internal/execution/executor.go from the teacher — same paper/live
// dual mode, same aggressive-pricing-by-slippage-buffer idea, same
// classifyError taxonomy — generalized from a two-outcome Polymarket
// CLOB order pair to an N-leg Kalshi batch, with EIP-712/ECDSA signing
// replaced by pkg/kalshi's RSA-PSS client and live trading gated by an
// explicit live_enable flag rather than implied by mode alone.
package execution

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kalshi-trading/core/internal/risk"
	"github.com/kalshi-trading/core/pkg/boterrors"
	"github.com/kalshi-trading/core/pkg/kalshi"
)

// State is a terminal or intermediate point in the executor's state
// machine: INIT -> BUILDING -> SUBMITTED -> {COMPLETE|NO_FILL|PARTIAL...} -> DONE.
type State string

const (
	StateShadowSkipped       State = "shadow_skipped"
	StateLiveDisabled        State = "live_disabled"
	StateFailed              State = "failed"
	StateComplete            State = "complete"
	StateNoFill              State = "no_fill"
	StatePartialUnwound      State = "partial_unwound"
	StatePartialUnwindFailed State = "partial_unwind_failed"
)

// exchangeClient is the subset of *kalshi.Client the executor needs;
// kept as an interface so tests can substitute a fake exchange.
type exchangeClient interface {
	PlaceBatchOrders(ctx context.Context, orders []kalshi.OrderRequest) ([]kalshi.OrderResult, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetOrder(ctx context.Context, orderID string) (kalshi.OrderStatus, error)
}

// Leg is one exchange-facing order the executor will submit.
type Leg struct {
	Ticker     string // exchange market ticker
	Side       string // "yes" or "no"
	Action     string // "buy" or "sell"
	LimitCents int64  // pre-slippage limit price
	Qty        int64
}

// Result is the terminal outcome of one Execute call.
type Result struct {
	State               State
	OrderIDs            []string
	FilledLegs          int
	TotalLegs           int
	ExpectedProfitCents int64
	RealizedProfitCents int64
	Err                 error
}

// Mode selects how orders are handled.
type Mode string

const (
	ModeShadow Mode = "shadow" // never touches the exchange, logs as if it did
	ModePaper  Mode = "paper"  // simulates fills at the adjusted limit price
	ModeLive   Mode = "live"   // submits real orders, gated by LiveEnable
)

// Config configures one Executor.
type Config struct {
	Mode                Mode
	LiveEnable          bool
	SlippageBufferCents int64

	CancelRetries int
	CancelBackoff time.Duration

	UnwindRetries int
	UnwindBackoff time.Duration
	UnwindPacing  time.Duration

	FillTimeout      time.Duration
	FillRetryInitial time.Duration
	FillRetryMax     time.Duration
	FillRetryMult    float64

	Logger *zap.Logger
}

// DefaultConfig returns the spec's literal retry/backoff constants for
// cancel (3 retries, 100ms) and unwind (3 retries, 150ms, 50ms pacing).
func DefaultConfig(mode Mode, liveEnable bool, slippageCents int64, logger *zap.Logger) Config {
	return Config{
		Mode:                mode,
		LiveEnable:          liveEnable,
		SlippageBufferCents: slippageCents,
		CancelRetries:       3,
		CancelBackoff:       100 * time.Millisecond,
		UnwindRetries:       3,
		UnwindBackoff:       150 * time.Millisecond,
		UnwindPacing:        50 * time.Millisecond,
		FillTimeout:         10 * time.Second,
		FillRetryInitial:    200 * time.Millisecond,
		FillRetryMax:        2 * time.Second,
		FillRetryMult:       2.0,
		Logger:              logger,
	}
}

// Executor carries out the build -> submit -> classify -> resolve
// pipeline for one strategy tick's worth of trade intents at a time.
// Safe for concurrent use, though the orchestrator's concurrency model
// only ever calls it from the strategy tick task.
type Executor struct {
	cfg     Config
	client  exchangeClient
	guard   *risk.Guard
	logger  *zap.Logger
	tracker *fillTracker

	mu                    sync.Mutex
	cumulativeProfitCents int64
}

// New builds an Executor. client may be nil in shadow mode; guard may
// be nil if critical-failure reporting on unwind failure is not
// wired (tests exercise this path).
func New(cfg Config, client exchangeClient, guard *risk.Guard) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{cfg: cfg, client: client, guard: guard, logger: logger}
	if client != nil {
		e.tracker = newFillTracker(client, logger, cfg)
	}
	return e
}

// Execute runs one opportunity's legs through the full pipeline and
// returns a terminal Result. expectedProfitCents is the modeled profit
// at the opportunity's priced-in cost; it is used directly as the
// paper-mode realized profit and as the live-mode complete-fill
// realized profit (the client does not expose a true average fill
// price, so a complete IOC fill is assumed to have executed at the
// submitted limit).
func (e *Executor) Execute(ctx context.Context, legs []Leg, expectedProfitCents int64) *Result {
	start := time.Now()
	OpportunitiesReceived.Inc()

	result := e.execute(ctx, legs, expectedProfitCents)

	ExecutionDurationSeconds.Observe(time.Since(start).Seconds())
	ExecutionResultTotal.WithLabelValues(string(result.State)).Inc()
	return result
}

func (e *Executor) execute(ctx context.Context, legs []Leg, expectedProfitCents int64) *Result {
	if len(legs) == 0 {
		return &Result{State: StateFailed, Err: fmt.Errorf("no legs to execute")}
	}

	if e.cfg.Mode == ModeShadow {
		e.logger.Info("execution-shadow-skip",
			zap.Int("legs", len(legs)),
			zap.Int64("expected-profit-cents", expectedProfitCents))
		return &Result{State: StateShadowSkipped, TotalLegs: len(legs), ExpectedProfitCents: expectedProfitCents}
	}

	if e.cfg.Mode == ModeLive && !e.cfg.LiveEnable {
		e.logger.Info("execution-live-disabled",
			zap.Int("legs", len(legs)),
			zap.Int64("expected-profit-cents", expectedProfitCents))
		return &Result{State: StateLiveDisabled, TotalLegs: len(legs), ExpectedProfitCents: expectedProfitCents}
	}

	orders, err := e.build(legs)
	if err != nil {
		e.logger.Warn("execution-build-rejected", zap.Error(err))
		return &Result{State: StateFailed, TotalLegs: len(legs), Err: err}
	}

	if e.cfg.Mode == ModePaper {
		return e.executePaper(legs, orders, expectedProfitCents)
	}
	return e.executeLive(ctx, legs, orders, expectedProfitCents)
}

// build translates each leg into an IOC limit order, adjusting its
// price by the slippage buffer (buy: +, sell: -). The whole batch is
// rejected — never partially submitted — if any adjusted limit falls
// outside [1,99].
func (e *Executor) build(legs []Leg) ([]kalshi.OrderRequest, error) {
	orders := make([]kalshi.OrderRequest, len(legs))
	for i, leg := range legs {
		adjusted := leg.LimitCents
		if leg.Action == "buy" {
			adjusted += e.cfg.SlippageBufferCents
		} else {
			adjusted -= e.cfg.SlippageBufferCents
		}
		if adjusted < 1 || adjusted > 99 {
			return nil, &boterrors.RiskViolation{
				Code:   "limit_out_of_range",
				Reason: fmt.Sprintf("%s adjusted limit %d outside [1,99]", leg.Ticker, adjusted),
			}
		}

		order := kalshi.OrderRequest{
			Ticker:        leg.Ticker,
			ClientOrderID: uuid.New().String(),
			Side:          leg.Side,
			Action:        leg.Action,
			Type:          "limit",
			Count:         leg.Qty,
			TimeInForce:   "immediate_or_cancel",
		}
		if leg.Side == "no" {
			order.NoPrice = adjusted
		} else {
			order.YesPrice = adjusted
		}
		orders[i] = order
	}
	return orders, nil
}

func (e *Executor) executePaper(legs []Leg, orders []kalshi.OrderRequest, expectedProfitCents int64) *Result {
	orderIDs := make([]string, len(orders))
	for i, o := range orders {
		orderIDs[i] = "paper-" + o.ClientOrderID
	}

	e.mu.Lock()
	e.cumulativeProfitCents += expectedProfitCents
	cumulative := e.cumulativeProfitCents
	e.mu.Unlock()

	ProfitRealizedCents.WithLabelValues("paper").Add(float64(expectedProfitCents))

	e.logger.Info("paper-execution-complete",
		zap.Int("legs", len(legs)),
		zap.Int64("expected-profit-cents", expectedProfitCents),
		zap.Int64("cumulative-profit-cents", cumulative))

	return &Result{
		State:               StateComplete,
		OrderIDs:            orderIDs,
		FilledLegs:          len(legs),
		TotalLegs:           len(legs),
		ExpectedProfitCents: expectedProfitCents,
		RealizedProfitCents: expectedProfitCents,
	}
}

func (e *Executor) executeLive(ctx context.Context, legs []Leg, orders []kalshi.OrderRequest, expectedProfitCents int64) *Result {
	submitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	submitResults, err := e.client.PlaceBatchOrders(submitCtx, orders)
	if err != nil {
		e.logger.Error("batch-submit-failed", zap.Error(err))
		ExecutionErrorsByType.WithLabelValues(classifyError(err)).Inc()
		return &Result{State: StateFailed, TotalLegs: len(legs), ExpectedProfitCents: expectedProfitCents, Err: err}
	}

	total := len(legs)
	orderIDs := make([]string, total)
	statuses := make([]kalshi.OrderStatus, total)
	anySucceeded := false

	for i, r := range submitResults {
		if r.Error != nil {
			e.logger.Warn("leg-order-rejected",
				zap.String("ticker", legs[i].Ticker),
				zap.String("code", r.Error.Code),
				zap.String("message", r.Error.Message))
			continue
		}
		anySucceeded = true
		orderIDs[i] = r.Order.OrderID
		statuses[i] = *r.Order
	}

	if !anySucceeded {
		return &Result{State: StateFailed, TotalLegs: total, ExpectedProfitCents: expectedProfitCents, Err: fmt.Errorf("all legs rejected by exchange")}
	}

	if e.tracker != nil {
		e.tracker.settle(ctx, statuses)
	}

	filledCount := 0
	for i, s := range statuses {
		if orderIDs[i] == "" {
			continue
		}
		if s.Status == "executed" || s.FillCount >= legs[i].Qty {
			filledCount++
		}
	}

	switch {
	case filledCount == total:
		realized := e.calculateActualProfit(legs, statuses, expectedProfitCents)
		e.mu.Lock()
		e.cumulativeProfitCents += realized
		e.mu.Unlock()
		ProfitRealizedCents.WithLabelValues("live").Add(float64(realized))
		e.logger.Info("live-execution-complete",
			zap.Int("legs", total),
			zap.Int64("expected-profit-cents", expectedProfitCents),
			zap.Int64("realized-profit-cents", realized))
		return &Result{
			State:               StateComplete,
			OrderIDs:            orderIDs,
			FilledLegs:          filledCount,
			TotalLegs:           total,
			ExpectedProfitCents: expectedProfitCents,
			RealizedProfitCents: realized,
		}

	case filledCount == 0:
		e.cancelResiduals(ctx, orderIDs)
		e.logger.Warn("live-execution-no-fill", zap.Int("legs", total))
		return &Result{State: StateNoFill, OrderIDs: orderIDs, TotalLegs: total, ExpectedProfitCents: expectedProfitCents}

	default:
		e.cancelResiduals(ctx, residualOrderIDs(orderIDs, statuses))
		unwindErr := e.unwindFilled(ctx, legs, orderIDs, statuses)
		state := StatePartialUnwound
		if unwindErr != nil {
			state = StatePartialUnwindFailed
			if e.guard != nil {
				e.guard.RecordCriticalFailure()
			}
			e.logger.Error("live-execution-partial-unwind-failed", zap.Error(unwindErr))
		} else {
			e.logger.Warn("live-execution-partial-unwound", zap.Int("filled", filledCount), zap.Int("total", total))
		}
		return &Result{
			State:               state,
			OrderIDs:            orderIDs,
			FilledLegs:          filledCount,
			TotalLegs:           total,
			ExpectedProfitCents: expectedProfitCents,
			Err:                 unwindErr,
		}
	}
}

// residualOrderIDs returns the order ids of legs that submitted
// successfully but have not terminated (open remaining quantity).
func residualOrderIDs(orderIDs []string, statuses []kalshi.OrderStatus) []string {
	var residual []string
	for i, s := range statuses {
		if orderIDs[i] == "" {
			continue
		}
		if s.RemainingCount > 0 && !kalshi.TerminalStatuses[s.Status] {
			residual = append(residual, orderIDs[i])
		}
	}
	return residual
}

// calculateActualProfit assumes a complete fill executed at each leg's
// submitted limit and returns expectedProfitCents unchanged; a true
// average-fill-price reconciliation would require the exchange to
// return per-fill prices, which the minimal client does not surface.
func (e *Executor) calculateActualProfit(_ []Leg, _ []kalshi.OrderStatus, expectedProfitCents int64) int64 {
	return expectedProfitCents
}

// cancelResiduals cancels every order id it is given (all submitted
// ids on a no-fill, only the still-open residuals on a partial fill),
// retrying each up to CancelRetries times with CancelBackoff between
// attempts. Best
// effort: a cancel that ultimately fails is logged, not escalated.
func (e *Executor) cancelResiduals(ctx context.Context, orderIDs []string) {
	for _, id := range orderIDs {
		if id == "" {
			continue
		}
		var lastErr error
		for attempt := 0; attempt < e.cfg.CancelRetries; attempt++ {
			if attempt > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(e.cfg.CancelBackoff):
				}
			}
			if lastErr = e.client.CancelOrder(ctx, id); lastErr == nil {
				break
			}
		}
		if lastErr != nil {
			e.logger.Warn("residual-cancel-failed", zap.String("order-id", id), zap.Error(lastErr))
		}
	}
}

// unwindFilled flattens delta risk from a partial fill: for each leg
// that picked up any fill, issue an opposite-action market order for
// the filled count, retrying up to UnwindRetries times with
// UnwindBackoff between attempts and UnwindPacing between legs to
// avoid rate limiting.
func (e *Executor) unwindFilled(ctx context.Context, legs []Leg, orderIDs []string, statuses []kalshi.OrderStatus) error {
	var failures []string
	for i, s := range statuses {
		if i > 0 {
			time.Sleep(e.cfg.UnwindPacing)
		}
		if orderIDs[i] == "" || s.FillCount <= 0 {
			continue
		}

		opposite := "sell"
		if legs[i].Action == "sell" {
			opposite = "buy"
		}
		order := kalshi.OrderRequest{
			Ticker:        legs[i].Ticker,
			ClientOrderID: uuid.New().String(),
			Side:          legs[i].Side,
			Action:        opposite,
			Type:          "market",
			Count:         s.FillCount,
			TimeInForce:   "immediate_or_cancel",
		}

		if err := e.retryUnwindLeg(ctx, order); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", legs[i].Ticker, err))
			UnwindsTotal.WithLabelValues("failure").Inc()
		} else {
			UnwindsTotal.WithLabelValues("success").Inc()
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("unwind failed for legs: %s", strings.Join(failures, "; "))
	}
	return nil
}

func (e *Executor) retryUnwindLeg(ctx context.Context, order kalshi.OrderRequest) error {
	var lastErr error
	for attempt := 0; attempt < e.cfg.UnwindRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.cfg.UnwindBackoff):
			}
		}
		results, err := e.client.PlaceBatchOrders(ctx, []kalshi.OrderRequest{order})
		if err != nil {
			lastErr = err
			continue
		}
		if len(results) == 1 && results[0].Error == nil {
			return nil
		}
		if len(results) == 1 && results[0].Error != nil {
			lastErr = fmt.Errorf("%s: %s", results[0].Error.Code, results[0].Error.Message)
		}
	}
	return lastErr
}

// CumulativeProfitCents returns the running realized profit total
// across every Execute call so far.
func (e *Executor) CumulativeProfitCents() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cumulativeProfitCents
}

// classifyError buckets an execution error by string content, the
// same loose taxonomy the teacher uses for its error-type metric label.
func classifyError(err error) string {
	if err == nil {
		return "unknown"
	}
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "dial"),
		strings.Contains(msg, "eof"),
		strings.Contains(msg, "network"):
		return "network"
	case strings.Contains(msg, "status=4"), strings.Contains(msg, "status=5"), strings.Contains(msg, "exchange:"):
		return "exchange"
	case strings.Contains(msg, "missing"), strings.Contains(msg, "required"), strings.Contains(msg, "not configured"):
		return "validation"
	case strings.Contains(msg, "insufficient"), strings.Contains(msg, "balance"), strings.Contains(msg, "funds"):
		return "funds"
	default:
		return "unknown"
	}
}
