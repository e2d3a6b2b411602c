package ledger

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"wager-exchange/internal/coreerr"
	"wager-exchange/internal/model"
	"wager-exchange/internal/repository/memory"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func newTestLedger(t *testing.T, feeRate string) (*Ledger, context.Context) {
	t.Helper()
	store := memory.New()
	return New(store, d(feeRate)), context.Background()
}

func seedBalance(t *testing.T, l *Ledger, ctx context.Context, accountID string, asset model.Asset, available string) {
	t.Helper()
	if err := l.CreditDeposit(ctx, accountID, asset, d(available)); err != nil {
		t.Fatalf("seed deposit: %v", err)
	}
}

func TestReserveAndRelease(t *testing.T) {
	l, ctx := newTestLedger(t, "0")
	seedBalance(t, l, ctx, "acct1", model.Asset("USDT"), "1000")

	if err := l.Reserve(ctx, "acct1", "USDT", d("400")); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	b, _ := l.repo.Balances().FindByAccountAndAsset(ctx, "acct1", "USDT")
	if !b.Available.Equal(d("600")) || !b.Locked.Equal(d("400")) {
		t.Fatalf("after reserve: available=%s locked=%s", b.Available, b.Locked)
	}

	if err := l.Release(ctx, "acct1", "USDT", d("400")); err != nil {
		t.Fatalf("release: %v", err)
	}
	b, _ = l.repo.Balances().FindByAccountAndAsset(ctx, "acct1", "USDT")
	if !b.Available.Equal(d("1000")) || !b.Locked.IsZero() {
		t.Fatalf("after release: available=%s locked=%s", b.Available, b.Locked)
	}
}

func TestReserveInsufficientBalance(t *testing.T) {
	l, ctx := newTestLedger(t, "0")
	seedBalance(t, l, ctx, "acct1", model.Asset("USDT"), "100")

	err := l.Reserve(ctx, "acct1", "USDT", d("500"))
	if !coreerr.Is(err, coreerr.KindInsufficientBalance) {
		t.Fatalf("expected InsufficientBalance, got %v", err)
	}
}

// TestSettleTradeFeeArithmetic checks the fee arithmetic of one fill: a
// buyer and seller trade 10 units at price 100, fee rate 0.1%.
func TestSettleTradeFeeArithmetic(t *testing.T) {
	l, ctx := newTestLedger(t, "0.001")
	seedBalance(t, l, ctx, "buyer", model.Asset("USDT"), "2000")
	seedBalance(t, l, ctx, "seller", model.Asset("ALT"), "50")

	if err := l.Reserve(ctx, "buyer", "USDT", d("1001")); err != nil { // 100*10*1.001
		t.Fatalf("reserve buyer: %v", err)
	}
	if err := l.Reserve(ctx, "seller", "ALT", d("10")); err != nil {
		t.Fatalf("reserve seller: %v", err)
	}

	buyerFee, sellerFee, err := l.SettleTrade(ctx, "ALT", "USDT", "buyer", "seller", d("100"), d("10"))
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if !buyerFee.Equal(d("1")) || !sellerFee.Equal(d("1")) {
		t.Fatalf("fees: buyer=%s seller=%s, want 1/1", buyerFee, sellerFee)
	}

	buyerQuote, _ := l.repo.Balances().FindByAccountAndAsset(ctx, "buyer", "USDT")
	if !buyerQuote.Locked.IsZero() {
		t.Fatalf("buyer quote locked should be drained, got %s", buyerQuote.Locked)
	}
	buyerBase, _ := l.repo.Balances().FindByAccountAndAsset(ctx, "buyer", "ALT")
	if !buyerBase.Available.Equal(d("10")) {
		t.Fatalf("buyer base available = %s, want 10", buyerBase.Available)
	}
	sellerBase, _ := l.repo.Balances().FindByAccountAndAsset(ctx, "seller", "ALT")
	if !sellerBase.Locked.IsZero() {
		t.Fatalf("seller base locked should be drained, got %s", sellerBase.Locked)
	}
	sellerQuote, _ := l.repo.Balances().FindByAccountAndAsset(ctx, "seller", "USDT")
	if !sellerQuote.Available.Equal(d("999")) { // 1000 notional - 1 fee
		t.Fatalf("seller quote available = %s, want 999", sellerQuote.Available)
	}
}

func TestConservationAcrossSettlement(t *testing.T) {
	l, ctx := newTestLedger(t, "0.001")
	seedBalance(t, l, ctx, "buyer", model.Asset("USDT"), "2000")
	seedBalance(t, l, ctx, "seller", model.Asset("ALT"), "50")
	l.Reserve(ctx, "buyer", "USDT", d("1001"))
	l.Reserve(ctx, "seller", "ALT", d("10"))

	wantUSDT := d("2000") // fee stays inside the system as a seller-side debit; no external sink modeled here
	l.SettleTrade(ctx, "ALT", "USDT", "buyer", "seller", d("100"), d("10"))

	ok, sum, err := l.Conserved(ctx, "USDT", wantUSDT)
	if err != nil {
		t.Fatalf("conserved: %v", err)
	}
	if !ok {
		t.Fatalf("USDT not conserved: got %s want %s", sum, wantUSDT)
	}
}

func TestWithdrawalLifecycleApproved(t *testing.T) {
	l, ctx := newTestLedger(t, "0")
	seedBalance(t, l, ctx, "acct1", model.Asset("USDT"), "500")

	if err := l.BeginWithdrawal(ctx, "acct1", "USDT", d("200")); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := l.FinalizeWithdrawal(ctx, "acct1", "USDT", d("200"), true); err != nil {
		t.Fatalf("finalize approved: %v", err)
	}
	b, _ := l.repo.Balances().FindByAccountAndAsset(ctx, "acct1", "USDT")
	if !b.Available.Equal(d("300")) || !b.Locked.IsZero() {
		t.Fatalf("after approved withdrawal: available=%s locked=%s", b.Available, b.Locked)
	}
}

func TestWithdrawalLifecycleRejected(t *testing.T) {
	l, ctx := newTestLedger(t, "0")
	seedBalance(t, l, ctx, "acct1", model.Asset("USDT"), "500")

	l.BeginWithdrawal(ctx, "acct1", "USDT", d("200"))
	if err := l.FinalizeWithdrawal(ctx, "acct1", "USDT", d("200"), false); err != nil {
		t.Fatalf("finalize rejected: %v", err)
	}
	b, _ := l.repo.Balances().FindByAccountAndAsset(ctx, "acct1", "USDT")
	if !b.Available.Equal(d("500")) || !b.Locked.IsZero() {
		t.Fatalf("after rejected withdrawal: available=%s locked=%s", b.Available, b.Locked)
	}
}
