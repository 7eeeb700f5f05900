package execution

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kalshi-trading/core/pkg/kalshi"
)

// fillTracker polls the exchange for orders whose batch-submission
// response was not already terminal, with exponential backoff.
// Grounded on the teacher's FillTracker — narrowed from a multi-outcome
// CLOB poll loop to re-querying only the legs still in flight, since
// Kalshi's batch response ordinarily settles IOC/FOK orders inline.
type fillTracker struct {
	client         exchangeClient
	logger         *zap.Logger
	initialBackoff time.Duration
	maxBackoff     time.Duration
	backoffMult    float64
	timeout        time.Duration
}

func newFillTracker(client exchangeClient, logger *zap.Logger, cfg Config) *fillTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &fillTracker{
		client:         client,
		logger:         logger,
		initialBackoff: cfg.FillRetryInitial,
		maxBackoff:     cfg.FillRetryMax,
		backoffMult:    cfg.FillRetryMult,
		timeout:        cfg.FillTimeout,
	}
}

// settle re-polls every order id whose entry in orders is not yet in a
// terminal state, updating the slice in place, until every tracked
// order reaches a terminal status or the timeout elapses.
func (ft *fillTracker) settle(ctx context.Context, orders []kalshi.OrderStatus) {
	pending := make([]int, 0, len(orders))
	for i, o := range orders {
		if o.OrderID != "" && !kalshi.TerminalStatuses[o.Status] {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return
	}

	start := time.Now()
	backoff := ft.initialBackoff

	for {
		stillPending := pending[:0]
		for _, i := range pending {
			status, err := ft.client.GetOrder(ctx, orders[i].OrderID)
			if err != nil {
				ft.logger.Warn("fill-poll-failed", zap.String("order-id", orders[i].OrderID), zap.Error(err))
				stillPending = append(stillPending, i)
				continue
			}
			orders[i] = status
			if !kalshi.TerminalStatuses[status.Status] {
				stillPending = append(stillPending, i)
			}
		}
		pending = stillPending

		if len(pending) == 0 {
			FillVerificationTotal.WithLabelValues("success").Inc()
			FillVerificationDurationSeconds.Observe(time.Since(start).Seconds())
			return
		}
		if time.Since(start) >= ft.timeout {
			FillVerificationTotal.WithLabelValues("timeout").Inc()
			FillVerificationDurationSeconds.Observe(time.Since(start).Seconds())
			return
		}

		select {
		case <-ctx.Done():
			FillVerificationTotal.WithLabelValues("canceled").Inc()
			return
		case <-time.After(backoff):
			backoff = time.Duration(float64(backoff) * ft.backoffMult)
			if backoff > ft.maxBackoff {
				backoff = ft.maxBackoff
			}
		}
	}
}
