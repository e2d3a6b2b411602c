package engine

import (
	"context"

	"wager-exchange/internal/coreerr"
	"wager-exchange/internal/events"
	"wager-exchange/internal/model"
)

// SubmitOCO validates and submits a linked LIMIT/STOP pair as a single
// unit of work (spec.md §4.3: "one leg is LIMIT, the other STOP"). Either
// leg filling at all cancels the other atomically.
func (e *MarketEngine) SubmitOCO(ctx context.Context, limitLeg, stopLeg *model.Order) ([]model.Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if limitLeg.LinkOrderID != stopLeg.ID || stopLeg.LinkOrderID != limitLeg.ID {
		return nil, coreerr.OrderLink("OCO legs must reference each other's order id")
	}

	var u *unit
	err := e.run(ctx, func(uu *unit) error {
		u = uu
		if err := e.validateLimit(limitLeg); err != nil {
			return err
		}
		if err := e.validateStop(stopLeg); err != nil {
			return err
		}
		e.acceptOrder(uu, limitLeg)
		e.acceptOrder(uu, stopLeg)

		if err := e.matchLimit(ctx, uu, limitLeg); err != nil {
			return err
		}
		// If the limit leg didn't fill, its sibling wasn't cancelled by
		// settle()'s OCO check, so it still needs to be armed.
		if stopLeg.IsLive() {
			e.armed[stopLeg.ID] = stopLeg
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return u.trades, nil
}

// cancelSibling cancels the order linked to o via LinkOrderID, if it is
// still live — used both when o itself is explicitly cancelled and when
// o receives its first fill (spec.md §4.3 OCO semantics).
func (e *MarketEngine) cancelSibling(ctx context.Context, u *unit, o *model.Order) error {
	sibling, ok := e.orders[o.LinkOrderID]
	if !ok || !sibling.IsLive() {
		return nil
	}
	if err := e.cancelLive(ctx, u, sibling, "oco"); err != nil {
		return err
	}
	u.publish(events.OCOOrderCancelled{OrderID: o.ID, SiblingID: sibling.ID, At: sibling.UpdatedAt})
	return nil
}
