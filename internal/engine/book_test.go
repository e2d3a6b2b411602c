package engine

import (
	"testing"

	"github.com/shopspring/decimal"

	"wager-exchange/internal/model"
)

func dec(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func ptr(d decimal.Decimal) *decimal.Decimal { return &d }

func TestAddAndBestBidAsk(t *testing.T) {
	b := NewOrderBook()

	b.Add(&OrderEntry{OrderID: "b1", UserID: "u1", Side: model.SideBuy, Price: dec("40"), Remaining: dec("10"), Seq: 1})
	b.Add(&OrderEntry{OrderID: "b2", UserID: "u1", Side: model.SideBuy, Price: dec("45"), Remaining: dec("5"), Seq: 2})
	b.Add(&OrderEntry{OrderID: "a1", UserID: "u2", Side: model.SideSell, Price: dec("55"), Remaining: dec("10"), Seq: 3})
	b.Add(&OrderEntry{OrderID: "a2", UserID: "u2", Side: model.SideSell, Price: dec("60"), Remaining: dec("5"), Seq: 4})

	if b.Size() != 4 {
		t.Fatalf("expected size 4, got %d", b.Size())
	}
	if bb := b.BestBid(); bb == nil || !bb.Equal(dec("45")) {
		t.Fatalf("expected best bid 45, got %v", bb)
	}
	if ba := b.BestAsk(); ba == nil || !ba.Equal(dec("55")) {
		t.Fatalf("expected best ask 55, got %v", ba)
	}
}

func TestPriceTimePriority(t *testing.T) {
	b := NewOrderBook()

	// Two sells at same price, first in should match first (FIFO)
	b.Add(&OrderEntry{OrderID: "a1", UserID: "u2", Side: model.SideSell, Price: dec("50"), Remaining: dec("3"), Seq: 1})
	b.Add(&OrderEntry{OrderID: "a2", UserID: "u2", Side: model.SideSell, Price: dec("50"), Remaining: dec("3"), Seq: 2})

	matches := b.FindMatches(model.SideBuy, ptr(dec("50")), dec("4"), "u1")
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Entry.OrderID != "a1" {
		t.Fatalf("expected first match a1, got %s", matches[0].Entry.OrderID)
	}
	if !matches[0].FillAmt.Equal(dec("3")) {
		t.Fatalf("expected first fill 3, got %s", matches[0].FillAmt)
	}
	if matches[1].Entry.OrderID != "a2" {
		t.Fatalf("expected second match a2, got %s", matches[1].Entry.OrderID)
	}
	if !matches[1].FillAmt.Equal(dec("1")) {
		t.Fatalf("expected second fill 1, got %s", matches[1].FillAmt)
	}
}

func TestPartialFillAcrossLevels(t *testing.T) {
	b := NewOrderBook()

	b.Add(&OrderEntry{OrderID: "a1", UserID: "u2", Side: model.SideSell, Price: dec("50"), Remaining: dec("2"), Seq: 1})
	b.Add(&OrderEntry{OrderID: "a2", UserID: "u2", Side: model.SideSell, Price: dec("55"), Remaining: dec("3"), Seq: 2})
	b.Add(&OrderEntry{OrderID: "a3", UserID: "u2", Side: model.SideSell, Price: dec("60"), Remaining: dec("5"), Seq: 3})

	// Buy 6 at limit 60 -> fills 2@50 + 3@55 + 1@60
	matches := b.FindMatches(model.SideBuy, ptr(dec("60")), dec("6"), "u1")
	if len(matches) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(matches))
	}
	total := decimal.Zero
	for _, m := range matches {
		total = total.Add(m.FillAmt)
	}
	if !total.Equal(dec("6")) {
		t.Fatalf("expected total fill 6, got %s", total)
	}
	if !matches[2].FillAmt.Equal(dec("1")) {
		t.Fatalf("expected partial fill 1 at 60, got %s", matches[2].FillAmt)
	}
}

func TestNilLimitPriceMatchesAnyPrice(t *testing.T) {
	b := NewOrderBook()

	b.Add(&OrderEntry{OrderID: "a1", UserID: "u2", Side: model.SideSell, Price: dec("50"), Remaining: dec("10"), Seq: 1})

	// nil limit price = marketable IOC, matches at any resting price
	matches := b.FindMatches(model.SideBuy, nil, dec("5"), "u1")
	if len(matches) != 1 || !matches[0].FillAmt.Equal(dec("5")) {
		t.Fatalf("expected 1 match for amount 5, got %d matches", len(matches))
	}
}

func TestSelfTradePreventionSkips(t *testing.T) {
	b := NewOrderBook()

	b.Add(&OrderEntry{OrderID: "a1", UserID: "u1", Side: model.SideSell, Price: dec("50"), Remaining: dec("5"), Seq: 1})
	b.Add(&OrderEntry{OrderID: "a2", UserID: "u2", Side: model.SideSell, Price: dec("55"), Remaining: dec("5"), Seq: 2})

	matches := b.FindMatches(model.SideBuy, ptr(dec("99")), dec("3"), "u1") // excludeUserID=u1
	if len(matches) != 1 {
		t.Fatalf("expected 1 match (skipping self), got %d", len(matches))
	}
	if matches[0].Entry.UserID != "u2" {
		t.Fatalf("expected match with u2, got %s", matches[0].Entry.UserID)
	}
}

func TestRemoveOrder(t *testing.T) {
	b := NewOrderBook()
	b.Add(&OrderEntry{OrderID: "b1", UserID: "u1", Side: model.SideBuy, Price: dec("50"), Remaining: dec("5"), Seq: 1})
	b.Add(&OrderEntry{OrderID: "b2", UserID: "u1", Side: model.SideBuy, Price: dec("50"), Remaining: dec("3"), Seq: 2})

	removed := b.Remove("b1")
	if removed == nil || removed.OrderID != "b1" {
		t.Fatal("expected to remove b1")
	}
	if b.Size() != 1 {
		t.Fatalf("expected size 1 after remove, got %d", b.Size())
	}

	// Price level should still exist with b2
	if bb := b.BestBid(); bb == nil || !bb.Equal(dec("50")) {
		t.Fatal("best bid should still be 50")
	}
}

func TestRemoveLastAtLevel(t *testing.T) {
	b := NewOrderBook()
	b.Add(&OrderEntry{OrderID: "a1", UserID: "u1", Side: model.SideSell, Price: dec("50"), Remaining: dec("5"), Seq: 1})
	b.Remove("a1")

	if b.BestAsk() != nil {
		t.Fatal("expected no best ask after removing only order")
	}
	if b.Size() != 0 {
		t.Fatal("expected empty book")
	}
}

func TestApplyFillPartial(t *testing.T) {
	b := NewOrderBook()
	b.Add(&OrderEntry{OrderID: "a1", UserID: "u1", Side: model.SideSell, Price: dec("50"), Remaining: dec("10"), Seq: 1})

	rem := b.ApplyFill("a1", dec("3"))
	if !rem.Equal(dec("7")) {
		t.Fatalf("expected remaining 7, got %s", rem)
	}
	if b.Size() != 1 {
		t.Fatal("order should still be in book")
	}
}

func TestApplyFillFull(t *testing.T) {
	b := NewOrderBook()
	b.Add(&OrderEntry{OrderID: "a1", UserID: "u1", Side: model.SideSell, Price: dec("50"), Remaining: dec("5"), Seq: 1})

	rem := b.ApplyFill("a1", dec("5"))
	if !rem.IsZero() {
		t.Fatalf("expected remaining 0, got %s", rem)
	}
	if b.Size() != 0 {
		t.Fatal("order should be removed from book")
	}
}

func TestSnapshotDepth(t *testing.T) {
	b := NewOrderBook()
	bidPrices := []string{"41", "42", "43", "44", "45"}
	for i, p := range bidPrices {
		b.Add(&OrderEntry{OrderID: "b" + p, UserID: "u1", Side: model.SideBuy, Price: dec(p), Remaining: dec("1"), Seq: int64(i + 1)})
	}
	askPrices := []string{"51", "52", "53", "54", "55"}
	for i, p := range askPrices {
		b.Add(&OrderEntry{OrderID: "a" + p, UserID: "u2", Side: model.SideSell, Price: dec(p), Remaining: dec("1"), Seq: int64(len(bidPrices) + i + 1)})
	}

	snap := b.Snapshot(3)
	if len(snap.Bids) != 3 {
		t.Fatalf("expected 3 bid levels, got %d", len(snap.Bids))
	}
	if len(snap.Asks) != 3 {
		t.Fatalf("expected 3 ask levels, got %d", len(snap.Asks))
	}
	// Bids descending: 45, 44, 43
	if !snap.Bids[0].Price.Equal(dec("45")) {
		t.Fatalf("expected top bid 45, got %s", snap.Bids[0].Price)
	}
	// Asks ascending: 51, 52, 53
	if !snap.Asks[0].Price.Equal(dec("51")) {
		t.Fatalf("expected top ask 51, got %s", snap.Asks[0].Price)
	}
}

func TestDuplicateAddIgnored(t *testing.T) {
	b := NewOrderBook()
	b.Add(&OrderEntry{OrderID: "b1", UserID: "u1", Side: model.SideBuy, Price: dec("50"), Remaining: dec("5"), Seq: 1})
	b.Add(&OrderEntry{OrderID: "b1", UserID: "u1", Side: model.SideBuy, Price: dec("50"), Remaining: dec("5"), Seq: 2})

	if b.Size() != 1 {
		t.Fatalf("expected size 1 (dup ignored), got %d", b.Size())
	}
}

func TestFindMatchesSellSide(t *testing.T) {
	b := NewOrderBook()

	b.Add(&OrderEntry{OrderID: "b1", UserID: "u1", Side: model.SideBuy, Price: dec("60"), Remaining: dec("5"), Seq: 1})
	b.Add(&OrderEntry{OrderID: "b2", UserID: "u1", Side: model.SideBuy, Price: dec("55"), Remaining: dec("5"), Seq: 2})

	// Sell at limit 55 -> matches bid at 60 first (best bid), then 55
	matches := b.FindMatches(model.SideSell, ptr(dec("55")), dec("8"), "u2")
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if !matches[0].FillPrice.Equal(dec("60")) {
		t.Fatalf("expected first fill at 60, got %s", matches[0].FillPrice)
	}
	total := decimal.Zero
	for _, m := range matches {
		total = total.Add(m.FillAmt)
	}
	if !total.Equal(dec("8")) {
		t.Fatalf("expected total 8, got %s", total)
	}
}
