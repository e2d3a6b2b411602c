package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"wager-exchange/internal/events"
	"wager-exchange/internal/model"
)

func opposite(side model.OrderSide) model.OrderSide {
	if side == model.SideBuy {
		return model.SideSell
	}
	return model.SideBuy
}

// matchLimit is the shared matching step for a fresh LIMIT order, a
// triggered STOP converted to its working LIMIT price, and an OCO LIMIT
// leg: spec.md §4.2/§4.3 treat all three identically once the order has
// a concrete price and time-in-force.
func (e *MarketEngine) matchLimit(ctx context.Context, u *unit, order *model.Order) error {
	if order.TimeInForce == model.TIFFOK && !e.fokSatisfied(order) {
		return e.cancelUnfilled(ctx, u, order, "fok")
	}
	if err := e.runMatchLoop(ctx, u, order); err != nil {
		return err
	}

	rem := order.Remaining()
	now := time.Now().UTC()
	switch {
	case rem.IsZero():
		order.Status = model.StatusFilled
		order.UpdatedAt = now
		// An incoming order that fills entirely at a better price than its own
		// limit leaves its reservation over-provisioned; the surplus backs
		// no unfilled notional and must come off the books with it.
		if err := e.trimSurplusLock(ctx, order); err != nil {
			return err
		}
		u.updateOrder(*order)
	case order.TimeInForce == model.TIFIOC || order.TimeInForce == model.TIFFOK:
		return e.cancelUnfilled(ctx, u, order, tifReason(order.TimeInForce))
	default: // GTC: rest the remainder
		if order.Filled.Sign() > 0 {
			order.Status = model.StatusPartial
		}
		order.UpdatedAt = now
		// A taker that only partially fills against better-priced makers
		// before resting carries the same over-provisioned reservation as
		// the full-fill case above, just short of zero instead of exactly
		// zero: trim it back to what the new Remaining needs at order's
		// own limit price before it goes on the book.
		if err := e.trimSurplusLock(ctx, order); err != nil {
			return err
		}
		u.updateOrder(*order)
		e.book.Add(&OrderEntry{
			OrderID: order.ID, UserID: order.UserID, Side: order.Side,
			Price: order.Price, Remaining: order.Remaining(), Seq: order.Seq,
		})
	}
	return nil
}

// requiredLock is the Locked value order.Locked must equal once matching
// settles: the unfilled remainder valued at order's own limit price, fee
// included on the BUY side where the reservation is in quote (spec.md §8
// "Lock accuracy"). The SELL side reserves base directly with no fee or
// price factor, matching the façade's own reservation(...) computation.
func (e *MarketEngine) requiredLock(order *model.Order) decimal.Decimal {
	if order.Side == model.SideBuy {
		notional := order.Remaining().Mul(order.Price)
		return notional.Add(notional.Mul(e.ledger.FeeRate()))
	}
	return order.Remaining()
}

// trimSurplusLock releases whatever part of order.Locked exceeds
// requiredLock(order). settle debits Locked by the actual trade notional
// at the maker's price, so a taker that fills (fully or partially) at a
// price better than its own limit is left holding an un-released surplus
// equal to its price improvement; this brings Locked back in line before
// the order either terminates or rests.
func (e *MarketEngine) trimSurplusLock(ctx context.Context, order *model.Order) error {
	target := e.requiredLock(order)
	if order.Locked.LessThanOrEqual(target) {
		return nil
	}
	surplus := order.Locked.Sub(target)
	if err := e.ledger.Release(ctx, order.AccountID, e.reservationAsset(order), surplus); err != nil {
		return err
	}
	order.Locked = target
	return nil
}

func tifReason(tif model.TimeInForce) string {
	if tif == model.TIFFOK {
		return "fok"
	}
	return "ioc"
}

// fokSatisfied reports whether the book currently holds enough liquidity,
// at prices order is willing to accept, to fill order completely. It is a
// pure read: FindMatches never mutates the book.
func (e *MarketEngine) fokSatisfied(order *model.Order) bool {
	matches := e.book.FindMatches(order.Side, &order.Price, order.Amount, "")
	total := decimal.Zero
	for _, m := range matches {
		total = total.Add(m.FillAmt)
	}
	return total.GreaterThanOrEqual(order.Amount)
}

// runMatchLoop repeatedly settles taker against the best resting order on
// the opposite side while price is compatible, one trade at a time so a
// STOP triggered mid-loop (triggerStops, called from settle) can add new
// resting liquidity before the next iteration reads the book.
func (e *MarketEngine) runMatchLoop(ctx context.Context, u *unit, taker *model.Order) error {
	for taker.Remaining().Sign() > 0 {
		var best *decimal.Decimal
		if taker.Side == model.SideBuy {
			best = e.book.BestAsk()
		} else {
			best = e.book.BestBid()
		}
		if best == nil {
			break
		}
		if taker.Side == model.SideBuy && best.GreaterThan(taker.Price) {
			break
		}
		if taker.Side == model.SideSell && best.LessThan(taker.Price) {
			break
		}

		entry := e.book.PeekBest(taker.Side)
		if entry == nil {
			break
		}
		maker, ok := e.orders[entry.OrderID]
		if !ok {
			// Defensive: the book and the order cache disagreed. Drop the
			// dangling entry rather than loop forever.
			e.book.Remove(entry.OrderID)
			continue
		}

		fillAmt := decimal.Min(taker.Remaining(), maker.Remaining())
		// The book entry is reduced before settle so that a STOP triggered
		// inside settle sees the maker's post-fill remainder (or no entry
		// at all once it is filled). run restores the book if settle fails.
		e.book.ApplyFill(entry.OrderID, fillAmt)
		if _, err := e.settle(ctx, u, maker, taker, entry.Price, fillAmt); err != nil {
			return err
		}
	}
	return nil
}

// settle applies one fill's money movement via the ledger, updates both
// orders' Filled/Locked/Status, records the trade, and runs the two
// cross-cutting checks every fill can trigger: OCO sibling cancellation
// and STOP trigger evaluation at the new last-trade price.
func (e *MarketEngine) settle(ctx context.Context, u *unit, maker, taker *model.Order, price, amount decimal.Decimal) (model.Trade, error) {
	var buyOrder, sellOrder *model.Order
	if taker.Side == model.SideBuy {
		buyOrder, sellOrder = taker, maker
	} else {
		buyOrder, sellOrder = maker, taker
	}

	buyerFee, sellerFee, err := e.ledger.SettleTrade(ctx, e.base, e.quote, buyOrder.AccountID, sellOrder.AccountID, price, amount)
	if err != nil {
		return model.Trade{}, err
	}

	notional := price.Mul(amount)
	buyOrder.Locked = buyOrder.Locked.Sub(notional.Add(buyerFee))
	sellOrder.Locked = sellOrder.Locked.Sub(amount)

	makerWasUnfilled := maker.Filled.IsZero()
	takerWasUnfilled := taker.Filled.IsZero()
	now := time.Now().UTC()

	maker.Filled = maker.Filled.Add(amount)
	taker.Filled = taker.Filled.Add(amount)
	for _, o := range [...]*model.Order{maker, taker} {
		if o.Remaining().IsZero() {
			o.Status = model.StatusFilled
		} else {
			o.Status = model.StatusPartial
		}
		o.UpdatedAt = now
	}

	tradeID, err := e.repo.Trades().NextID(ctx)
	if err != nil {
		return model.Trade{}, err
	}
	var fee decimal.Decimal
	if taker.Side == model.SideBuy {
		fee = buyerFee
	} else {
		fee = sellerFee
	}
	trade := model.Trade{
		ID: tradeID, Market: e.market,
		BuyOrderID: buyOrder.ID, SellOrderID: sellOrder.ID,
		MakerOrderID: maker.ID, TakerOrderID: taker.ID,
		TakerSide: taker.Side, Price: price, Amount: amount, Fee: fee,
		CreatedAt: now,
	}

	u.insertTrade(trade)
	u.updateOrder(*maker)
	u.updateOrder(*taker)
	u.publish(events.TradeExecuted{
		TradeID: trade.ID, Market: e.market, Price: price, Amount: amount, Fee: fee,
		TakerSide: taker.Side, MakerOrderID: maker.ID, TakerOrderID: taker.ID, At: now,
	})
	u.publish(events.OrderStatusChanged{OrderID: maker.ID, Status: maker.Status, Reason: "fill", At: now})
	u.publish(events.OrderStatusChanged{OrderID: taker.ID, Status: taker.Status, Reason: "fill", At: now})
	e.publishBalanceChanged(ctx, u, buyOrder.AccountID, e.quote, now)
	e.publishBalanceChanged(ctx, u, buyOrder.AccountID, e.base, now)
	e.publishBalanceChanged(ctx, u, sellOrder.AccountID, e.base, now)
	e.publishBalanceChanged(ctx, u, sellOrder.AccountID, e.quote, now)

	if makerWasUnfilled && maker.Filled.Sign() > 0 && maker.LinkOrderID != "" {
		if err := e.cancelSibling(ctx, u, maker); err != nil {
			return trade, err
		}
	}
	if takerWasUnfilled && taker.Filled.Sign() > 0 && taker.LinkOrderID != "" {
		if err := e.cancelSibling(ctx, u, taker); err != nil {
			return trade, err
		}
	}

	if err := e.triggerStops(ctx, u, price); err != nil {
		return trade, err
	}
	return trade, nil
}

func (e *MarketEngine) publishBalanceChanged(ctx context.Context, u *unit, accountID string, asset model.Asset, at time.Time) {
	b, err := e.ledger.Balance(ctx, accountID, asset)
	if err != nil {
		return
	}
	u.publish(events.BalanceChanged{AccountID: accountID, Asset: asset, Available: b.Available, Locked: b.Locked, At: at})
}

// cancelUnfilled releases whatever reservation still backs order's
// unfilled remainder (order.Locked tracks this exactly: every fill above
// already debited it by the precise amount settled) and marks it
// CANCELED. Used by IOC/FOK disposition of a leftover remainder.
func (e *MarketEngine) cancelUnfilled(ctx context.Context, u *unit, order *model.Order, reason string) error {
	if order.Locked.Sign() > 0 {
		if err := e.ledger.Release(ctx, order.AccountID, e.reservationAsset(order), order.Locked); err != nil {
			return err
		}
		order.Locked = decimal.Zero
	}
	order.Status = model.StatusCanceled
	order.UpdatedAt = time.Now().UTC()
	u.updateOrder(*order)
	u.publish(events.OrderStatusChanged{OrderID: order.ID, Status: model.StatusCanceled, Reason: reason, At: order.UpdatedAt})
	return nil
}
