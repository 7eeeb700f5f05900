// Streaming adapts the teacher's pkg/websocket reconnect-with-backoff
// manager to the Kalshi ticker feed: one persistent connection instead
// of a connection pool, a signed upgrade request instead of an
// unauthenticated Polymarket dial, and Quote Book upserts instead of a
// message channel for a separate consumer goroutine.
package kalshi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	gorillaws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kalshi-trading/core/pkg/kalshiauth"
	"github.com/kalshi-trading/core/pkg/quotebook"
	wsutil "github.com/kalshi-trading/core/pkg/websocket"
)

// StreamConfig configures the single Kalshi ticker-feed connection.
type StreamConfig struct {
	URL                   string
	DialTimeout           time.Duration
	PingInterval          time.Duration
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	ReconnectBackoffMult  float64
	// Unauthenticated skips request signing on the upgrade, per the
	// explicit fallback flag.
	Unauthenticated bool
}

// Stream maintains one reconnecting WebSocket connection to the Kalshi
// ticker feed and upserts quotes into a Book as messages arrive.
type Stream struct {
	cfg          StreamConfig
	auth         *kalshiauth.Auth
	book         *quotebook.Book
	logger       *zap.Logger
	reconnectMgr *wsutil.ReconnectManager

	mu      sync.RWMutex
	conn    *gorillaws.Conn
	tracked map[string]bool

	connected atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewStream builds a Stream that writes upserts into book.
func NewStream(cfg StreamConfig, auth *kalshiauth.Auth, book *quotebook.Book, logger *zap.Logger) *Stream {
	if logger == nil {
		logger = zap.NewNop()
	}
	reconnectCfg := wsutil.ReconnectConfig{
		InitialDelay:      cfg.ReconnectInitialDelay,
		MaxDelay:          cfg.ReconnectMaxDelay,
		BackoffMultiplier: cfg.ReconnectBackoffMult,
		JitterPercent:     0.2,
	}
	return &Stream{
		cfg:          cfg,
		auth:         auth,
		book:         book,
		logger:       logger,
		reconnectMgr: wsutil.NewReconnectManager(reconnectCfg, logger),
		tracked:      make(map[string]bool),
	}
}

// Start dials the feed and launches the read and ping loops.
func (s *Stream) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	if err := s.connect(s.ctx); err != nil {
		return fmt.Errorf("initial connect: %w", err)
	}

	s.wg.Add(2)
	go s.readLoop()
	go s.pingLoop()

	return nil
}

func (s *Stream) connect(ctx context.Context) error {
	header := http.Header{}
	if !s.cfg.Unauthenticated && s.auth != nil {
		u, err := url.Parse(s.cfg.URL)
		if err != nil {
			return fmt.Errorf("parse stream url: %w", err)
		}
		signed, err := s.auth.SignRequest(http.MethodGet, u.Path)
		if err != nil {
			return fmt.Errorf("sign upgrade: %w", err)
		}
		for k, v := range signed.Headers() {
			header.Set(k, v)
		}
	}

	dialer := gorillaws.Dialer{HandshakeTimeout: s.cfg.DialTimeout}
	conn, _, err := dialer.DialContext(ctx, s.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	conn.SetPongHandler(func(string) error { return nil })

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.connected.Store(true)
	StreamActiveConnections.Set(1)

	s.logger.Info("stream-connected", zap.String("url", s.cfg.URL))

	if err := s.sendSubscribe(s.trackedSnapshot()); err != nil {
		return fmt.Errorf("initial subscribe: %w", err)
	}
	return nil
}

func (s *Stream) trackedSnapshot() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.tracked))
	for t := range s.tracked {
		out = append(out, t)
	}
	return out
}

// SetTracked replaces the subscribed ticker set, sending only the delta
// (subscribe newly added, unsubscribe newly removed) if connected.
func (s *Stream) SetTracked(tickers []string) error {
	want := make(map[string]bool, len(tickers))
	for _, t := range tickers {
		want[t] = true
	}

	s.mu.Lock()
	var added, removed []string
	for t := range want {
		if !s.tracked[t] {
			added = append(added, t)
		}
	}
	for t := range s.tracked {
		if !want[t] {
			removed = append(removed, t)
		}
	}
	s.tracked = want
	connected := s.connected.Load()
	s.mu.Unlock()

	if !connected {
		return nil
	}
	if len(added) > 0 {
		if err := s.sendSubscribe(added); err != nil {
			return err
		}
	}
	if len(removed) > 0 {
		if err := s.sendUnsubscribe(removed); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stream) sendSubscribe(tickers []string) error {
	if len(tickers) == 0 {
		return nil
	}
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return nil
	}
	msg := map[string]any{
		"cmd": "subscribe",
		"params": map[string]any{
			"channels":      []string{"ticker"},
			"market_tickers": tickers,
		},
	}
	s.mu.Lock()
	err := conn.WriteJSON(msg)
	s.mu.Unlock()
	return err
}

func (s *Stream) sendUnsubscribe(tickers []string) error {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return nil
	}
	msg := map[string]any{
		"cmd": "unsubscribe",
		"params": map[string]any{
			"channels":      []string{"ticker"},
			"market_tickers": tickers,
		},
	}
	s.mu.Lock()
	err := conn.WriteJSON(msg)
	s.mu.Unlock()
	return err
}

type tickerEnvelope struct {
	Type string `json:"type"`
	Msg  struct {
		MarketTicker string `json:"market_ticker"`
		YesBid       int64  `json:"yes_bid"`
		YesAsk       int64  `json:"yes_ask"`
		Price        int64  `json:"price"`
		Volume       int64  `json:"volume"`
		OpenInterest int64  `json:"open_interest"`
	} `json:"msg"`
}

func (s *Stream) readLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()
		if conn == nil {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.logger.Warn("stream-read-error", zap.Error(err))
			s.connected.Store(false)
			StreamActiveConnections.Set(0)
			s.reconnect()
			continue
		}

		var env tickerEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			StreamMessagesDroppedTotal.WithLabelValues("unparseable").Inc()
			continue
		}
		if env.Type != "ticker" {
			continue
		}

		StreamMessagesReceivedTotal.WithLabelValues(env.Type).Inc()
		s.book.Upsert(env.Msg.MarketTicker, quotebook.Quote{
			Ticker:       env.Msg.MarketTicker,
			YesBid:       env.Msg.YesBid,
			YesAsk:       env.Msg.YesAsk,
			LastPrice:    env.Msg.Price,
			Volume24h:    env.Msg.Volume,
			OpenInterest: env.Msg.OpenInterest,
			UpdatedAt:    time.Now(),
		})
	}
}

// reconnect blocks the read loop until a new connection is up and the
// tracked set has been resubscribed, then lets the caller loop back
// into ReadMessage on the fresh connection.
func (s *Stream) reconnect() {
	err := s.reconnectMgr.Reconnect(s.ctx, s.connect)
	if err != nil {
		s.logger.Warn("stream-reconnect-aborted", zap.Error(err))
	}
}

func (s *Stream) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if !s.connected.Load() {
				continue
			}
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()
			if conn == nil {
				continue
			}
			if err := conn.WriteControl(gorillaws.PingMessage, []byte{}, time.Now().Add(time.Second)); err != nil {
				s.logger.Warn("stream-ping-error", zap.Error(err))
			}
		}
	}
}

// Close stops the loops and closes the connection.
func (s *Stream) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.RLock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.mu.RUnlock()
	s.wg.Wait()
	StreamActiveConnections.Set(0)
	return nil
}
