// Package marketdata is the market-data projection (C6): it subscribes to
// the event bus and maintains bounded, read-only views derived from
// committed state — recent trades, recent order-status updates, and (by
// delegation to C2 through the engine) the current order-book snapshot.
// original_source's test suite references a MarketDataBroadcaster with
// exactly this shape (trades/order_updates rings over an event bus), but
// its source file was not retrieved into this pack, only its tests — so
// this package is grounded on spec.md §4.6 plus the subscriber pattern
// already established in eventbus.go (itself grounded on infra/event_bus.py).
package marketdata

import (
	"sync"
	"time"

	"wager-exchange/internal/engine"
	"wager-exchange/internal/eventbus"
	"wager-exchange/internal/events"
	"wager-exchange/internal/model"
)

// OrderUpdate is a compact record of an order status transition, enough
// for a client to refresh its view of one order without a full re-fetch.
type OrderUpdate struct {
	OrderID string
	Status  model.OrderStatus
	Reason  string
	At      time.Time
}

// Projection holds the bounded views for one market.
type Projection struct {
	market   string
	capacity int
	eng      *engine.MarketEngine

	mu            sync.Mutex
	recentTrades  []model.Trade
	recentUpdates []OrderUpdate
}

// New builds a projection for eng's market and subscribes it to bus. capacity
// bounds each ring (spec.md §4.6, sized by C8's recent_events_capacity).
func New(eng *engine.MarketEngine, bus *eventbus.Bus, capacity int) *Projection {
	if capacity <= 0 {
		capacity = 1
	}
	p := &Projection{market: eng.Market(), capacity: capacity, eng: eng}
	bus.Subscribe(events.TradeExecuted{}, p.onTrade)
	bus.Subscribe(events.OrderStatusChanged{}, p.onOrderStatusChanged)
	bus.Subscribe(events.StopOrderActivated{}, p.onStopActivated)
	bus.Subscribe(events.OCOOrderCancelled{}, p.onOCOCancelled)
	return p
}

func appendBounded[T any](s []T, v T, capacity int) []T {
	s = append(s, v)
	if len(s) > capacity {
		s = s[len(s)-capacity:]
	}
	return s
}

func (p *Projection) onTrade(e any) error {
	te, ok := e.(events.TradeExecuted)
	if !ok || te.Market != p.market {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recentTrades = appendBounded(p.recentTrades, model.Trade{
		ID: te.TradeID, Market: te.Market, MakerOrderID: te.MakerOrderID,
		TakerOrderID: te.TakerOrderID, TakerSide: te.TakerSide,
		Price: te.Price, Amount: te.Amount, Fee: te.Fee, CreatedAt: te.At,
	}, p.capacity)
	return nil
}

func (p *Projection) onOrderStatusChanged(e any) error {
	osc, ok := e.(events.OrderStatusChanged)
	if !ok {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recentUpdates = appendBounded(p.recentUpdates, OrderUpdate{
		OrderID: osc.OrderID, Status: osc.Status, Reason: osc.Reason, At: osc.At,
	}, p.capacity)
	return nil
}

func (p *Projection) onStopActivated(e any) error {
	sa, ok := e.(events.StopOrderActivated)
	if !ok {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recentUpdates = appendBounded(p.recentUpdates, OrderUpdate{
		OrderID: sa.OrderID, Reason: "stop_activated", At: sa.At,
	}, p.capacity)
	return nil
}

func (p *Projection) onOCOCancelled(e any) error {
	occ, ok := e.(events.OCOOrderCancelled)
	if !ok {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recentUpdates = appendBounded(p.recentUpdates, OrderUpdate{
		OrderID: occ.SiblingID, Reason: "oco_cancelled", At: occ.At,
	}, p.capacity)
	return nil
}

// RecentTrades returns the most recent trades, oldest first, up to capacity.
func (p *Projection) RecentTrades() []model.Trade {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.Trade, len(p.recentTrades))
	copy(out, p.recentTrades)
	return out
}

// RecentOrderUpdates returns the most recent order status transitions,
// oldest first, up to capacity.
func (p *Projection) RecentOrderUpdates() []OrderUpdate {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]OrderUpdate, len(p.recentUpdates))
	copy(out, p.recentUpdates)
	return out
}

// OrderBookSnapshot delegates to C2 through the owning engine.
func (p *Projection) OrderBookSnapshot(depth int) model.BookSnapshot {
	return p.eng.BookSnapshot(depth)
}
