// Package engine is the matching engine: the order book, the armed
// stop/OCO set, and the per-market mutex that serializes every
// submission.
//
// book.go generalizes the teacher's own OrderBook/OrderEntry/Level from
// int cents to decimal.Decimal: price levels are keyed by a canonical
// decimal string (two differently-scaled decimal.Decimal values can
// represent the same price and aren't safe map keys on their own) with a
// parallel sorted []decimal.Decimal slice per side, exactly as the
// teacher kept bidPrices/askPrices sorted alongside the map.
package engine

import (
	"sort"

	"github.com/shopspring/decimal"

	"wager-exchange/internal/model"
)

// OrderEntry is a resting order in the book.
type OrderEntry struct {
	OrderID   string
	UserID    string
	Side      model.OrderSide
	Price     decimal.Decimal
	Remaining decimal.Decimal
	Seq       int64
}

// Level is a price level with a FIFO queue of orders.
type Level struct {
	Price  decimal.Decimal
	Orders []*OrderEntry
}

func (l *Level) TotalAmount() decimal.Decimal {
	t := decimal.Zero
	for _, o := range l.Orders {
		t = t.Add(o.Remaining)
	}
	return t
}

// Match represents a potential fill against a resting order.
type Match struct {
	Entry     *OrderEntry
	FillAmt   decimal.Decimal
	FillPrice decimal.Decimal
}

// OrderBook is an in-memory limit order book for a single market.
type OrderBook struct {
	bids      map[string]*Level // canonical price string -> Level
	asks      map[string]*Level
	bidPrices []decimal.Decimal // sorted descending
	askPrices []decimal.Decimal // sorted ascending
	index     map[string]*OrderEntry
}

func NewOrderBook() *OrderBook {
	return &OrderBook{
		bids:  make(map[string]*Level),
		asks:  make(map[string]*Level),
		index: make(map[string]*OrderEntry),
	}
}

func key(p decimal.Decimal) string { return p.String() }

// ── Queries ──────────────────────────────────────────

func (b *OrderBook) BestBid() *decimal.Decimal {
	if len(b.bidPrices) == 0 {
		return nil
	}
	p := b.bidPrices[0]
	return &p
}

func (b *OrderBook) BestAsk() *decimal.Decimal {
	if len(b.askPrices) == 0 {
		return nil
	}
	p := b.askPrices[0]
	return &p
}

func (b *OrderBook) Size() int { return len(b.index) }

func (b *OrderBook) Get(orderID string) *OrderEntry { return b.index[orderID] }

// PeekBest returns the resting order at the head of the best-priced level
// on the given side, without removing it — the maker half of a single
// matching step (spec.md §4.2 peek_best).
func (b *OrderBook) PeekBest(side model.OrderSide) *OrderEntry {
	if side == model.SideBuy {
		if len(b.askPrices) == 0 {
			return nil
		}
		lvl := b.asks[key(b.askPrices[0])]
		if len(lvl.Orders) == 0 {
			return nil
		}
		return lvl.Orders[0]
	}
	if len(b.bidPrices) == 0 {
		return nil
	}
	lvl := b.bids[key(b.bidPrices[0])]
	if len(lvl.Orders) == 0 {
		return nil
	}
	return lvl.Orders[0]
}

func (b *OrderBook) Snapshot(depth int) model.BookSnapshot {
	var snap model.BookSnapshot
	for i := 0; i < len(b.bidPrices) && i < depth; i++ {
		p := b.bidPrices[i]
		snap.Bids = append(snap.Bids, model.BookLevel{Price: p, Amount: b.bids[key(p)].TotalAmount()})
	}
	for i := 0; i < len(b.askPrices) && i < depth; i++ {
		p := b.askPrices[i]
		snap.Asks = append(snap.Asks, model.BookLevel{Price: p, Amount: b.asks[key(p)].TotalAmount()})
	}
	return snap
}

// ── Add / Remove ─────────────────────────────────────

func (b *OrderBook) Add(e *OrderEntry) {
	if _, exists := b.index[e.OrderID]; exists {
		return
	}
	b.index[e.OrderID] = e
	if e.Side == model.SideBuy {
		b.addToSide(b.bids, &b.bidPrices, e, false) // desc
	} else {
		b.addToSide(b.asks, &b.askPrices, e, true) // asc
	}
}

func (b *OrderBook) Remove(orderID string) *OrderEntry {
	e, ok := b.index[orderID]
	if !ok {
		return nil
	}
	delete(b.index, orderID)
	if e.Side == model.SideBuy {
		b.removeFromSide(b.bids, &b.bidPrices, e)
	} else {
		b.removeFromSide(b.asks, &b.askPrices, e)
	}
	return e
}

// Clone deep-copies the book so that mutating one copy leaves the other
// untouched — the engine's unit of work takes a clone, while holding the
// engine mutex, as the snapshot it restores if a submission fails.
func (b *OrderBook) Clone() *OrderBook {
	nb := NewOrderBook()
	for id, e := range b.index {
		cp := *e
		nb.index[id] = &cp
	}
	for _, p := range b.bidPrices {
		lvl := b.bids[key(p)]
		nlvl := &Level{Price: p}
		for _, e := range lvl.Orders {
			nlvl.Orders = append(nlvl.Orders, nb.index[e.OrderID])
		}
		nb.bids[key(p)] = nlvl
		nb.bidPrices = append(nb.bidPrices, p)
	}
	for _, p := range b.askPrices {
		lvl := b.asks[key(p)]
		nlvl := &Level{Price: p}
		for _, e := range lvl.Orders {
			nlvl.Orders = append(nlvl.Orders, nb.index[e.OrderID])
		}
		nb.asks[key(p)] = nlvl
		nb.askPrices = append(nb.askPrices, p)
	}
	return nb
}

// ── Matching ─────────────────────────────────────────

// FindMatches returns potential matches without mutating the book. A nil
// limitPrice matches at any resting price.
func (b *OrderBook) FindMatches(side model.OrderSide, limitPrice *decimal.Decimal, maxAmt decimal.Decimal, excludeUserID string) []Match {
	var matches []Match
	rem := maxAmt

	if side == model.SideBuy {
		for _, askPrice := range b.askPrices {
			if rem.Sign() <= 0 {
				break
			}
			if limitPrice != nil && askPrice.GreaterThan(*limitPrice) {
				break
			}
			level := b.asks[key(askPrice)]
			for _, entry := range level.Orders {
				if rem.Sign() <= 0 {
					break
				}
				if entry.UserID == excludeUserID {
					continue
				}
				fq := decimal.Min(rem, entry.Remaining)
				matches = append(matches, Match{Entry: entry, FillAmt: fq, FillPrice: askPrice})
				rem = rem.Sub(fq)
			}
		}
	} else {
		for _, bidPrice := range b.bidPrices {
			if rem.Sign() <= 0 {
				break
			}
			if limitPrice != nil && bidPrice.LessThan(*limitPrice) {
				break
			}
			level := b.bids[key(bidPrice)]
			for _, entry := range level.Orders {
				if rem.Sign() <= 0 {
					break
				}
				if entry.UserID == excludeUserID {
					continue
				}
				fq := decimal.Min(rem, entry.Remaining)
				matches = append(matches, Match{Entry: entry, FillAmt: fq, FillPrice: bidPrice})
				rem = rem.Sub(fq)
			}
		}
	}
	return matches
}

// ApplyFill reduces the remaining amount of a resting order. Returns the
// remaining amount after fill, removing the order from the book if it is
// now fully filled.
func (b *OrderBook) ApplyFill(orderID string, fillAmt decimal.Decimal) decimal.Decimal {
	e := b.index[orderID]
	if e == nil {
		return decimal.Zero
	}
	e.Remaining = e.Remaining.Sub(fillAmt)
	if e.Remaining.Sign() <= 0 {
		b.Remove(orderID)
		return decimal.Zero
	}
	return e.Remaining
}

// ── Internals ────────────────────────────────────────

func (b *OrderBook) addToSide(m map[string]*Level, prices *[]decimal.Decimal, e *OrderEntry, asc bool) {
	k := key(e.Price)
	level, ok := m[k]
	if !ok {
		level = &Level{Price: e.Price}
		m[k] = level
		insertPrice(prices, e.Price, asc)
	}
	level.Orders = append(level.Orders, e)
}

// insertPrice inserts p into the already-sorted prices slice at its
// correct position via binary search, rather than appending and
// re-sorting the whole slice: a new price level is the hot path on
// Add, so this keeps it O(log P) + O(P) shift instead of O(P log P).
func insertPrice(prices *[]decimal.Decimal, p decimal.Decimal, asc bool) {
	s := *prices
	i := sort.Search(len(s), func(i int) bool {
		if asc {
			return s[i].GreaterThanOrEqual(p)
		}
		return s[i].LessThanOrEqual(p)
	})
	s = append(s, decimal.Zero)
	copy(s[i+1:], s[i:])
	s[i] = p
	*prices = s
}

func (b *OrderBook) removeFromSide(m map[string]*Level, prices *[]decimal.Decimal, e *OrderEntry) {
	k := key(e.Price)
	level, ok := m[k]
	if !ok {
		return
	}
	for i, o := range level.Orders {
		if o.OrderID == e.OrderID {
			level.Orders = append(level.Orders[:i], level.Orders[i+1:]...)
			break
		}
	}
	if len(level.Orders) == 0 {
		delete(m, k)
		for i, p := range *prices {
			if p.Equal(e.Price) {
				*prices = append((*prices)[:i], (*prices)[i+1:]...)
				break
			}
		}
	}
}
