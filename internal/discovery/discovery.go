// Package discovery polls the exchange's market listing endpoint and
// maintains the set of tickers the rest of the pipeline should track:
// streamed, forecast-refreshed, and evaluated for trades. Grounded on
// the teacher's internal/discovery/discovery.go polling-service shape
// (ticker loop, subscribed-set diffing, channel of newly discovered
// items) — generalized from a single Gamma API market feed to Kalshi's
// cursor-paginated, series-ticker-filterable market listing, and from
// two-outcome market subscriptions to single-ticker tracking entries.
package discovery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kalshi-trading/core/pkg/config"
	"github.com/kalshi-trading/core/pkg/kalshi"
	"github.com/kalshi-trading/core/pkg/quotebook"
)

// exchangeClient is the subset of *kalshi.Client discovery needs.
type exchangeClient interface {
	ListMarkets(ctx context.Context, seriesTicker, status, cursor string) ([]kalshi.Market, string, error)
}

// Tracked is the discovered metadata the rest of the pipeline needs
// about one market, kept alongside (not inside) the quote book because
// it changes far less often than price.
type Tracked struct {
	Ticker         string
	EventTicker    string
	SeriesPrefix   string
	RulesPrimary   string
	RulesSecondary string
	StrikeType     string
	FloorStrike    float64
	CapStrike      float64
	CloseTime      time.Time
}

// Config configures a Service.
type Config struct {
	Client exchangeClient
	Book   *quotebook.Book

	// SeriesPrefixes, when non-empty, polls one series at a time (the
	// weather variant's per-city market series). Empty means poll
	// every open market (the arbitrage and llm_rules variants).
	SeriesPrefixes []string

	PollInterval        time.Duration
	MaxDaysToResolution int64
	Logger              *zap.Logger
}

// Service polls the exchange for tradeable markets and maintains the
// tracked set.
type Service struct {
	client       exchangeClient
	book         *quotebook.Book
	seriesList   []string
	pollAll      bool
	pollInterval time.Duration
	maxDays      int64
	logger       *zap.Logger

	mu        sync.RWMutex
	tracked   map[string]Tracked
	newTicker chan string
}

// New builds a Service.
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		client:       cfg.Client,
		book:         cfg.Book,
		seriesList:   cfg.SeriesPrefixes,
		pollAll:      len(cfg.SeriesPrefixes) == 0,
		pollInterval: cfg.PollInterval,
		maxDays:      cfg.MaxDaysToResolution,
		logger:       logger,
		tracked:      make(map[string]Tracked),
		newTicker:    make(chan string, 256),
	}
}

// Run starts the discovery polling loop; it blocks until ctx is
// cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("discovery-service-starting",
		zap.Duration("poll-interval", s.pollInterval),
		zap.Strings("series-prefixes", s.seriesList))

	if err := s.poll(ctx); err != nil {
		s.logger.Error("discovery-initial-poll-failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			close(s.newTicker)
			return ctx.Err()
		case <-ticker.C:
			if err := s.poll(ctx); err != nil {
				s.logger.Error("discovery-poll-failed", zap.Error(err))
			}
		}
	}
}

func (s *Service) poll(ctx context.Context) error {
	start := time.Now()
	defer func() { PollDurationSeconds.Observe(time.Since(start).Seconds()) }()

	var markets []kalshi.Market
	if s.pollAll {
		fetched, err := s.fetchAllPages(ctx, "")
		if err != nil {
			PollErrorsTotal.Inc()
			return fmt.Errorf("fetch open markets: %w", err)
		}
		markets = fetched
	} else {
		for _, prefix := range s.seriesList {
			fetched, err := s.fetchAllPages(ctx, prefix)
			if err != nil {
				PollErrorsTotal.Inc()
				s.logger.Error("discovery-series-poll-failed", zap.String("series", prefix), zap.Error(err))
				continue
			}
			markets = append(markets, fetched...)
		}
	}

	MarketsDiscoveredTotal.Add(float64(len(markets)))
	s.absorb(markets)
	return nil
}

func (s *Service) fetchAllPages(ctx context.Context, seriesTicker string) ([]kalshi.Market, error) {
	var all []kalshi.Market
	cursor := ""
	for {
		page, next, err := s.client.ListMarkets(ctx, seriesTicker, "open", cursor)
		if err != nil {
			return all, err
		}
		all = append(all, page...)
		if next == "" || next == cursor {
			return all, nil
		}
		cursor = next
	}
}

// absorb folds a freshly fetched page of markets into the tracked set:
// new tickers are added and seeded into the quote book, tickers no
// longer present (closed or past the resolution window) are removed.
func (s *Service) absorb(markets []kalshi.Market) {
	now := time.Now()
	seen := make(map[string]struct{}, len(markets))

	s.mu.Lock()
	for i := range markets {
		m := &markets[i]
		if !s.eligible(m, now) {
			continue
		}
		seen[m.Ticker] = struct{}{}

		if _, exists := s.tracked[m.Ticker]; !exists {
			NewMarketsTotal.Inc()
			select {
			case s.newTicker <- m.Ticker:
			default:
				s.logger.Warn("discovery-new-ticker-channel-full", zap.String("ticker", m.Ticker))
			}
		}

		s.tracked[m.Ticker] = Tracked{
			Ticker:         m.Ticker,
			EventTicker:    m.EventTicker,
			SeriesPrefix:   seriesPrefixOf(m.Ticker),
			RulesPrimary:   m.RulesPrimary,
			RulesSecondary: m.RulesSecondary,
			StrikeType:     m.StrikeType,
			FloorStrike:    m.FloorStrike,
			CapStrike:      m.CapStrike,
			CloseTime:      parseCloseTime(m.CloseTime),
		}

		if s.book != nil {
			s.book.SeedIfAbsent(m.Ticker, quotebook.Quote{
				Ticker:       m.Ticker,
				YesBid:       m.YesBid,
				YesAsk:       m.YesAsk,
				LastPrice:    m.LastPrice,
				Volume24h:    m.Volume24h,
				OpenInterest: m.OpenInterest,
				UpdatedAt:    now,
			})
		}
	}

	var removed []string
	for ticker := range s.tracked {
		if _, ok := seen[ticker]; !ok {
			removed = append(removed, ticker)
		}
	}
	for _, ticker := range removed {
		delete(s.tracked, ticker)
		if s.book != nil {
			s.book.Remove(ticker)
		}
	}
	s.mu.Unlock()

	if len(removed) > 0 {
		s.logger.Info("discovery-markets-retired", zap.Int("count", len(removed)))
	}
}

func (s *Service) eligible(m *kalshi.Market, now time.Time) bool {
	if m.Status != "active" && m.Status != "open" {
		return false
	}
	if s.maxDays <= 0 {
		return true
	}
	closeTime := parseCloseTime(m.CloseTime)
	if closeTime.IsZero() {
		return true
	}
	if closeTime.Before(now) {
		MarketsFilteredByEndDateTotal.Inc()
		return false
	}
	if closeTime.Sub(now) > time.Duration(s.maxDays)*24*time.Hour {
		MarketsFilteredByEndDateTotal.Inc()
		return false
	}
	return true
}

func parseCloseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func seriesPrefixOf(ticker string) string {
	if i := strings.Index(ticker, "-"); i > 0 {
		return ticker[:i]
	}
	return ticker
}

// NewTickersChan returns the channel of newly discovered tickers.
func (s *Service) NewTickersChan() <-chan string {
	return s.newTicker
}

// TrackedTickers returns every currently tracked ticker.
func (s *Service) TrackedTickers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.tracked))
	for ticker := range s.tracked {
		out = append(out, ticker)
	}
	return out
}

// Get returns the tracked metadata for ticker.
func (s *Service) Get(ticker string) (Tracked, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tracked[ticker]
	return t, ok
}

// EventGroups returns tracked tickers grouped by event ticker, used by
// the arbitrage signal to assemble candidate outcome sets.
func (s *Service) EventGroups() map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	groups := make(map[string][]string)
	for ticker, t := range s.tracked {
		groups[t.EventTicker] = append(groups[t.EventTicker], ticker)
	}
	return groups
}

// CityFor resolves the weather city config whose series prefix matches
// ticker, given the bot's configured city list.
func CityFor(cities []config.CityConfig, ticker string) (config.CityConfig, bool) {
	return config.CityForTicker(cities, ticker)
}
