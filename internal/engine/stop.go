package engine

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"wager-exchange/internal/events"
	"wager-exchange/internal/model"
)

// stopTriggered reports whether price has crossed o's stop_price in the
// direction that arms it: a BUY stop triggers on the way up, a SELL stop
// on the way down.
func stopTriggered(o *model.Order, price decimal.Decimal) bool {
	if o.Side == model.SideBuy {
		return price.GreaterThanOrEqual(o.StopPrice)
	}
	return price.LessThanOrEqual(o.StopPrice)
}

// triggerStops activates every armed STOP order whose trigger condition
// holds at the given last-trade price, converting each to its working
// LIMIT price and resubmitting it through the same matching path — all
// within the unit of work that produced the triggering trade, so a
// cascade of triggered stops and the trades they in turn produce either
// all commit together or all roll back together (spec.md §4.3).
//
// Multiple stops triggering on one trade activate in ascending Seq order:
// order ids are opaque uuids with no natural ordering, so Seq (assignment
// order, already used for book price-time priority) stands in for the
// spec's "ascending id order" as the deterministic tie-break.
func (e *MarketEngine) triggerStops(ctx context.Context, u *unit, lastPrice decimal.Decimal) error {
	var triggered []*model.Order
	for _, o := range e.armed {
		if stopTriggered(o, lastPrice) {
			triggered = append(triggered, o)
		}
	}
	if len(triggered) == 0 {
		return nil
	}
	sort.Slice(triggered, func(i, j int) bool { return triggered[i].Seq < triggered[j].Seq })

	for _, o := range triggered {
		delete(e.armed, o.ID)
		now := time.Now().UTC()
		u.publish(events.StopOrderActivated{OrderID: o.ID, StopPrice: o.StopPrice, At: now})
		if err := e.matchLimit(ctx, u, o); err != nil {
			return err
		}
	}
	return nil
}
