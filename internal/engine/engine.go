package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"wager-exchange/internal/coreerr"
	"wager-exchange/internal/eventbus"
	"wager-exchange/internal/events"
	"wager-exchange/internal/ledger"
	"wager-exchange/internal/model"
	"wager-exchange/internal/repository"
)

// MarketEngine is the matching engine for a single market (C3). A mutex
// serializes every Submit/Cancel the way the teacher's MarketEngine
// serialized every command through a single cmdCh consumed by one
// goroutine — spec.md §5 is explicit that either realization is fine, and
// a coarse lock is far easier to drive from table-driven tests than a
// channel-and-goroutine pair.
type MarketEngine struct {
	market string
	base   model.Asset
	quote  model.Asset

	mu     sync.Mutex
	book   *OrderBook
	armed  map[string]*model.Order // STOP orders not yet triggered, by ID
	orders map[string]*model.Order // every order this engine has ever seen, live or terminal
	seq    int64

	repo   repository.Repository
	bus    *eventbus.Bus
	ledger *ledger.Ledger
}

// New builds a matching engine for market (formatted "BASE/QUOTE").
func New(market string, repo repository.Repository, bus *eventbus.Bus, lg *ledger.Ledger) (*MarketEngine, error) {
	base, quote, err := splitMarket(market)
	if err != nil {
		return nil, err
	}
	return &MarketEngine{
		market: market,
		base:   base,
		quote:  quote,
		book:   NewOrderBook(),
		armed:  make(map[string]*model.Order),
		orders: make(map[string]*model.Order),
		repo:   repo,
		bus:    bus,
		ledger: lg,
	}, nil
}

func splitMarket(market string) (base, quote model.Asset, err error) {
	parts := strings.SplitN(market, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", coreerr.InvalidOrder("market %q is not in BASE/QUOTE form", market)
	}
	return model.Asset(parts[0]), model.Asset(parts[1]), nil
}

func (e *MarketEngine) Market() string     { return e.market }
func (e *MarketEngine) Base() model.Asset  { return e.base }
func (e *MarketEngine) Quote() model.Asset { return e.quote }

func (e *MarketEngine) nextSeq() int64 {
	e.seq++
	return e.seq
}

// BookSnapshot returns the best-to-worst view of both sides, used by the
// market-data projection (C6) and the HTTP adapter.
func (e *MarketEngine) BookSnapshot(depth int) model.BookSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.Snapshot(depth)
}

// GetOrder returns a copy of a live-or-terminal order this engine has
// processed, for ownership checks in the account façade.
func (e *MarketEngine) GetOrder(orderID string) (model.Order, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[orderID]
	if !ok {
		return model.Order{}, false
	}
	return *o, true
}

// Submit validates and processes a new LIMIT or STOP order. OCO pairs go
// through SubmitOCO instead, since they need both legs created atomically.
func (e *MarketEngine) Submit(ctx context.Context, order *model.Order) ([]model.Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var u *unit
	err := e.run(ctx, func(uu *unit) error {
		u = uu
		return e.submitLocked(ctx, uu, order)
	})
	if err != nil {
		return nil, err
	}
	return u.trades, nil
}

// Cancel cancels a live order by id. It returns false, nil if the order
// doesn't exist or is already terminal — that is not an error, just a
// no-op (spec.md §4.3 cancel(order_id)).
func (e *MarketEngine) Cancel(ctx context.Context, orderID string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var cancelled bool
	err := e.run(ctx, func(u *unit) error {
		o, ok := e.orders[orderID]
		if !ok || !o.IsLive() {
			return nil
		}
		if err := e.cancelLive(ctx, u, o, "cancelled"); err != nil {
			return err
		}
		cancelled = true
		if o.LinkOrderID != "" {
			if err := e.cancelSibling(ctx, u, o); err != nil {
				return err
			}
		}
		return nil
	})
	return cancelled, err
}

// run brackets fn with a snapshot of every piece of mutable state fn
// might touch, and restores it verbatim if fn (or the flush that applies
// its buffered writes) fails. This is C4's rollback fidelity: a failed
// submission leaves no trace, committed or in-memory.
func (e *MarketEngine) run(ctx context.Context, fn func(u *unit) error) error {
	bookSnap := e.book.Clone()
	armedSnap := make(map[string]*model.Order, len(e.armed))
	for id, o := range e.armed {
		cp := *o
		armedSnap[id] = &cp
	}
	ordersSnap := make(map[string]*model.Order, len(e.orders))
	for id, o := range e.orders {
		cp := *o
		ordersSnap[id] = &cp
	}
	seqSnap := e.seq
	balSnap, err := e.ledger.SnapshotBalances(ctx)
	if err != nil {
		return err
	}

	restore := func() {
		e.book = bookSnap
		e.armed = armedSnap
		e.orders = ordersSnap
		e.seq = seqSnap
		_ = e.ledger.RestoreBalances(ctx, balSnap)
	}

	u := newUnit(e.repo, e.bus)
	if err := fn(u); err != nil {
		restore()
		return err
	}
	if err := u.flush(ctx); err != nil {
		restore()
		return err
	}
	return nil
}

func (e *MarketEngine) acceptOrder(u *unit, o *model.Order) {
	o.Seq = e.nextSeq()
	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now
	o.Status = model.StatusOpen
	e.orders[o.ID] = o
	u.insertOrder(*o)
	u.publish(events.OrderAccepted{
		OrderID: o.ID, UserID: o.UserID, Market: o.Market,
		Side: o.Side, Type: o.Type, Price: o.Price, Amount: o.Amount, At: now,
	})
}

func (e *MarketEngine) submitLocked(ctx context.Context, u *unit, order *model.Order) error {
	switch order.Type {
	case model.TypeLimit:
		if err := e.validateLimit(order); err != nil {
			return err
		}
		e.acceptOrder(u, order)
		return e.matchLimit(ctx, u, order)
	case model.TypeStop:
		if err := e.validateStop(order); err != nil {
			return err
		}
		e.acceptOrder(u, order)
		e.armed[order.ID] = order
		return nil
	default:
		return coreerr.InvalidOrder("order type %q must be submitted via Submit (LIMIT/STOP) or SubmitOCO", order.Type)
	}
}

func (e *MarketEngine) validateLimit(o *model.Order) error {
	if o.Market != e.market {
		return coreerr.InvalidOrder("order market %q does not match engine market %q", o.Market, e.market)
	}
	if o.Price.Sign() <= 0 {
		return coreerr.InvalidOrder("limit price %s must be positive", o.Price)
	}
	if o.Amount.Sign() <= 0 {
		return coreerr.InvalidOrder("amount %s must be positive", o.Amount)
	}
	return nil
}

func (e *MarketEngine) validateStop(o *model.Order) error {
	if o.Market != e.market {
		return coreerr.InvalidOrder("order market %q does not match engine market %q", o.Market, e.market)
	}
	if !o.HasStopPrice || o.StopPrice.Sign() <= 0 {
		return coreerr.InvalidOrder("stop order requires a positive stop_price")
	}
	if o.Price.Sign() <= 0 {
		return coreerr.InvalidOrder("stop order requires a positive working price for after trigger")
	}
	if o.Amount.Sign() <= 0 {
		return coreerr.InvalidOrder("amount %s must be positive", o.Amount)
	}
	return nil
}

func (e *MarketEngine) reservationAsset(o *model.Order) model.Asset {
	if o.Side == model.SideBuy {
		return e.quote
	}
	return e.base
}

// cancelLive releases o's remaining reservation and marks it CANCELED. It
// does not touch any linked sibling — callers that need sibling-cancel
// semantics call cancelSibling separately.
func (e *MarketEngine) cancelLive(ctx context.Context, u *unit, o *model.Order, reason string) error {
	e.book.Remove(o.ID)
	delete(e.armed, o.ID)
	if o.Locked.Sign() > 0 {
		if err := e.ledger.Release(ctx, o.AccountID, e.reservationAsset(o), o.Locked); err != nil {
			return err
		}
		o.Locked = decimal.Zero
	}
	o.Status = model.StatusCanceled
	o.UpdatedAt = time.Now().UTC()
	u.updateOrder(*o)
	u.publish(events.OrderStatusChanged{OrderID: o.ID, Status: model.StatusCanceled, Reason: reason, At: o.UpdatedAt})
	return nil
}
