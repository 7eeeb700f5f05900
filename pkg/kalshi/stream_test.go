package kalshi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	gorillaws "github.com/gorilla/websocket"

	"github.com/kalshi-trading/core/pkg/quotebook"
)

func testStreamConfig(url string) StreamConfig {
	return StreamConfig{
		URL:                   url,
		DialTimeout:           time.Second,
		PingInterval:          time.Hour,
		ReconnectInitialDelay: time.Millisecond,
		ReconnectMaxDelay:     5 * time.Millisecond,
		ReconnectBackoffMult:  2,
		Unauthenticated:       true,
	}
}

func TestStream_ConnectAndReceiveTicker(t *testing.T) {
	upgrader := gorillaws.Upgrader{}
	connCh := make(chan *gorillaws.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		connCh <- conn
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	book := quotebook.New()
	stream := NewStream(testStreamConfig(wsURL), nil, book, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := stream.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer stream.Close()

	serverConn := <-connCh
	defer serverConn.Close()

	env := tickerEnvelope{Type: "ticker"}
	env.Msg.MarketTicker = "KXHIGHNYC-24DEC25-T50"
	env.Msg.YesBid = 40
	env.Msg.YesAsk = 45
	env.Msg.Price = 42
	env.Msg.Volume = 100
	payload, _ := json.Marshal(env)
	if err := serverConn.WriteMessage(gorillaws.TextMessage, payload); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if q, ok := book.Get("KXHIGHNYC-24DEC25-T50"); ok {
			if q.YesBid != 40 || q.YesAsk != 45 {
				t.Fatalf("unexpected quote %+v", q)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("quote was never upserted into the book")
}

func TestStream_SetTrackedSendsDelta(t *testing.T) {
	upgrader := gorillaws.Upgrader{}
	connCh := make(chan *gorillaws.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connCh <- conn
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	book := quotebook.New()
	stream := NewStream(testStreamConfig(wsURL), nil, book, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := stream.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer stream.Close()

	serverConn := <-connCh
	defer serverConn.Close()

	if err := stream.SetTracked([]string{"A", "B"}); err != nil {
		t.Fatalf("set tracked: %v", err)
	}

	serverConn.SetReadDeadline(time.Now().Add(time.Second))
	var gotSomething bool
	for i := 0; i < 3; i++ {
		_, raw, err := serverConn.ReadMessage()
		if err != nil {
			break
		}
		if strings.Contains(string(raw), "\"A\"") && strings.Contains(string(raw), "subscribe") {
			gotSomething = true
		}
	}
	if !gotSomething {
		t.Fatal("expected a subscribe command naming the newly tracked tickers")
	}

	snapshot := stream.trackedSnapshot()
	if len(snapshot) != 2 {
		t.Fatalf("tracked snapshot = %v, want 2 entries", snapshot)
	}
}
