package quotebook

import (
	"testing"
	"time"
)

func TestQuote_NoAskNoBid(t *testing.T) {
	q := Quote{YesBid: 38, YesAsk: 42}
	if got := q.NoAsk(); got != 62 {
		t.Errorf("NoAsk() = %d, want 62", got)
	}
	if got := q.NoBid(); got != 58 {
		t.Errorf("NoBid() = %d, want 58", got)
	}
}

func TestQuote_Valid(t *testing.T) {
	cases := []struct {
		name string
		q    Quote
		want bool
	}{
		{"ordered", Quote{YesBid: 10, YesAsk: 20}, true},
		{"equal", Quote{YesBid: 50, YesAsk: 50}, true},
		{"crossed", Quote{YesBid: 60, YesAsk: 40}, false},
		{"negative", Quote{YesBid: -1, YesAsk: 40}, false},
		{"over100", Quote{YesBid: 10, YesAsk: 101}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.q.Valid(); got != c.want {
				t.Errorf("Valid() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestBook_UpsertGet(t *testing.T) {
	b := New()
	q := Quote{Ticker: "KXHIGHNYC-24DEC25-T50", YesBid: 10, YesAsk: 15, UpdatedAt: time.Now()}
	b.Upsert(q.Ticker, q)

	got, ok := b.Get(q.Ticker)
	if !ok {
		t.Fatal("expected quote to be present")
	}
	if got.YesAsk != 15 {
		t.Errorf("YesAsk = %d, want 15", got.YesAsk)
	}
}

func TestBook_SeedIfAbsent_DoesNotClobber(t *testing.T) {
	b := New()
	ticker := "KXHIGHNYC-24DEC25-T50"
	b.Upsert(ticker, Quote{Ticker: ticker, YesAsk: 15})
	b.SeedIfAbsent(ticker, Quote{Ticker: ticker, YesAsk: 99})

	got, _ := b.Get(ticker)
	if got.YesAsk != 15 {
		t.Errorf("SeedIfAbsent clobbered existing quote: YesAsk = %d", got.YesAsk)
	}
}

func TestBook_SeedIfAbsent_WritesWhenMissing(t *testing.T) {
	b := New()
	ticker := "KXHIGHNYC-24DEC25-T50"
	b.SeedIfAbsent(ticker, Quote{Ticker: ticker, YesAsk: 22})

	got, ok := b.Get(ticker)
	if !ok || got.YesAsk != 22 {
		t.Errorf("expected seeded quote YesAsk=22, got ok=%v quote=%+v", ok, got)
	}
}

func TestBook_SnapshotGroup_MissingReturnsFalse(t *testing.T) {
	b := New()
	b.Upsert("A", Quote{Ticker: "A"})

	_, ok := b.SnapshotGroup([]string{"A", "B"})
	if ok {
		t.Error("expected SnapshotGroup to fail when a ticker is missing")
	}
}

func TestBook_SnapshotGroup_Complete(t *testing.T) {
	b := New()
	b.Upsert("A", Quote{Ticker: "A", YesAsk: 10})
	b.Upsert("B", Quote{Ticker: "B", YesAsk: 20})

	quotes, ok := b.SnapshotGroup([]string{"A", "B"})
	if !ok {
		t.Fatal("expected SnapshotGroup to succeed")
	}
	if len(quotes) != 2 || quotes[0].YesAsk != 10 || quotes[1].YesAsk != 20 {
		t.Errorf("unexpected quotes: %+v", quotes)
	}
}

func TestAllFresh(t *testing.T) {
	now := time.Now()
	fresh := []Quote{{UpdatedAt: now.Add(-10 * time.Second)}}
	stale := []Quote{{UpdatedAt: now.Add(-10 * time.Second)}, {UpdatedAt: now.Add(-400 * time.Second)}}

	if !AllFresh(fresh, now, 300*time.Second) {
		t.Error("expected fresh quotes to be reported fresh")
	}
	if AllFresh(stale, now, 300*time.Second) {
		t.Error("expected stale quote to fail AllFresh")
	}
}

func TestBook_RemoveAndLen(t *testing.T) {
	b := New()
	b.Upsert("A", Quote{Ticker: "A"})
	b.Upsert("B", Quote{Ticker: "B"})
	if b.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", b.Len())
	}
	b.Remove("A")
	if b.Len() != 1 {
		t.Errorf("Len() after Remove = %d, want 1", b.Len())
	}
	if _, ok := b.Get("A"); ok {
		t.Error("expected A to be removed")
	}
}
