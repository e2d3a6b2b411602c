package marketdata

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"wager-exchange/internal/engine"
	"wager-exchange/internal/eventbus"
	"wager-exchange/internal/events"
	"wager-exchange/internal/ledger"
	"wager-exchange/internal/model"
	"wager-exchange/internal/repository/memory"
)

func newProjection(t *testing.T, capacity int) (*Projection, *eventbus.Bus) {
	t.Helper()
	repo := memory.New()
	bus := eventbus.New()
	lg := ledger.New(repo, decimal.RequireFromString("0.001"))
	eng, err := engine.New("BASE/QUOTE", repo, bus, lg)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return New(eng, bus, capacity), bus
}

func TestRecentTradesIsBoundedAndOrdered(t *testing.T) {
	p, bus := newProjection(t, 2)

	for i, price := range []string{"10", "11", "12"} {
		bus.Publish(events.TradeExecuted{
			TradeID: string(rune('a' + i)), Market: "BASE/QUOTE",
			Price: decimal.RequireFromString(price), Amount: decimal.RequireFromString("1"),
			At: time.Now(),
		})
	}

	trades := p.RecentTrades()
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades retained, got %d", len(trades))
	}
	if trades[0].Price.String() != "11" || trades[1].Price.String() != "12" {
		t.Fatalf("expected the oldest trade evicted, got %+v", trades)
	}
}

func TestRecentTradesIgnoresOtherMarkets(t *testing.T) {
	p, bus := newProjection(t, 10)
	bus.Publish(events.TradeExecuted{TradeID: "x", Market: "OTHER/MARKET", Price: decimal.RequireFromString("1"), Amount: decimal.RequireFromString("1")})
	if len(p.RecentTrades()) != 0 {
		t.Fatal("trade for a different market must not be recorded")
	}
}

func TestRecentOrderUpdatesCoversFullStatusSurface(t *testing.T) {
	p, bus := newProjection(t, 10)

	bus.Publish(events.OrderStatusChanged{OrderID: "o1", Status: model.StatusFilled, Reason: "fill"})
	bus.Publish(events.StopOrderActivated{OrderID: "o2"})
	bus.Publish(events.OCOOrderCancelled{SiblingID: "o3"})

	updates := p.RecentOrderUpdates()
	if len(updates) != 3 {
		t.Fatalf("expected 3 order updates, got %d", len(updates))
	}
	if updates[1].Reason != "stop_activated" || updates[2].Reason != "oco_cancelled" {
		t.Fatalf("unexpected reasons: %+v", updates)
	}
}

func TestOrderBookSnapshotDelegatesToEngine(t *testing.T) {
	p, _ := newProjection(t, 10)
	snap := p.OrderBookSnapshot(10)
	if len(snap.Bids) != 0 || len(snap.Asks) != 0 {
		t.Fatalf("expected an empty book snapshot, got %+v", snap)
	}
}
