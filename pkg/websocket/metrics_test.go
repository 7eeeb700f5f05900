package websocket

import "testing"

func TestMetrics_Registration(t *testing.T) {
	if ReconnectAttemptsTotal == nil {
		t.Error("ReconnectAttemptsTotal not registered")
	}
	if ReconnectFailuresTotal == nil {
		t.Error("ReconnectFailuresTotal not registered")
	}
}

func TestMetrics_CounterIncrement(t *testing.T) {
	ReconnectAttemptsTotal.Inc()
	ReconnectFailuresTotal.Inc()
}
