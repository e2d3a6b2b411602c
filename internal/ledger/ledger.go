// Package ledger owns every Balance and Transaction: reservation,
// release, trade settlement, deposit credit and withdrawal lifecycle.
// It is the sole writer of Balance rows — the matching engine never
// touches money directly, it only calls into the ledger.
//
// Grounded on the teacher's internal/db/store.go WalletAddLocked /
// WalletAddBalance helpers (generalized here from int64 cents to
// decimal.Decimal) and on original_source's
// src/alt_exchange/services/wallet/service.py for the deposit/withdrawal
// state machine.
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"wager-exchange/internal/coreerr"
	"wager-exchange/internal/model"
	"wager-exchange/internal/repository"
)

// Ledger takes no lock of its own. Mutations made during matching run
// under the engine's per-market mutex inside (*MarketEngine).run in
// internal/engine; the account façade's own calls (reservations before a
// submit, deposits, withdrawals) run outside that lock.
type Ledger struct {
	repo    repository.Repository
	feeRate decimal.Decimal
}

func New(repo repository.Repository, feeRate decimal.Decimal) *Ledger {
	return &Ledger{repo: repo, feeRate: feeRate}
}

func (l *Ledger) FeeRate() decimal.Decimal { return l.feeRate }

// Balance returns the current balance row for (accountID, asset), or a
// zero-valued one if none exists yet. Exported for callers (the engine,
// event publishing) that only need to read, not mutate.
func (l *Ledger) Balance(ctx context.Context, accountID string, asset model.Asset) (*model.Balance, error) {
	return l.balance(ctx, accountID, asset)
}

// SnapshotBalances copies every balance row, keyed by accountID+asset, so
// the engine's unit of work can restore them verbatim if a step fails
// partway through (SPEC_FULL.md §4.4 rollback fidelity). Balance writes
// are applied eagerly to the repository rather than buffered like order
// and trade writes — a snapshot/restore pair around the whole step gives
// the same all-or-nothing guarantee with a much simpler Ledger.
func (l *Ledger) SnapshotBalances(ctx context.Context) (map[string]model.Balance, error) {
	all, err := l.repo.Balances().All(ctx)
	if err != nil {
		return nil, err
	}
	snap := make(map[string]model.Balance, len(all))
	for _, b := range all {
		snap[string(b.Asset)+"\x00"+b.AccountID] = b
	}
	return snap, nil
}

// RestoreBalances writes every balance row from a prior SnapshotBalances
// back to the repository, undoing any mutation made since the snapshot.
// A row first created after the snapshot is reset to zero, which reads the
// same as an absent row.
func (l *Ledger) RestoreBalances(ctx context.Context, snap map[string]model.Balance) error {
	for _, b := range snap {
		cp := b
		if err := l.repo.Balances().Upsert(ctx, &cp); err != nil {
			return err
		}
	}
	all, err := l.repo.Balances().All(ctx)
	if err != nil {
		return err
	}
	for _, b := range all {
		if _, ok := snap[string(b.Asset)+"\x00"+b.AccountID]; ok {
			continue
		}
		cp := b
		cp.Available = decimal.Zero
		cp.Locked = decimal.Zero
		if err := l.repo.Balances().Upsert(ctx, &cp); err != nil {
			return err
		}
	}
	return nil
}

func (l *Ledger) balance(ctx context.Context, accountID string, asset model.Asset) (*model.Balance, error) {
	b, err := l.repo.Balances().FindByAccountAndAsset(ctx, accountID, asset)
	if err != nil {
		return nil, err
	}
	if b == nil {
		b = &model.Balance{AccountID: accountID, Asset: asset, Available: decimal.Zero, Locked: decimal.Zero}
	}
	return b, nil
}

func (l *Ledger) save(ctx context.Context, b *model.Balance) error {
	b.UpdatedAt = time.Now().UTC()
	return l.repo.Balances().Upsert(ctx, b)
}

// Reserve moves amount from available to locked. Fails with
// coreerr.InsufficientBalance if available is short.
func (l *Ledger) Reserve(ctx context.Context, accountID string, asset model.Asset, amount decimal.Decimal) error {
	if amount.Sign() < 0 {
		return coreerr.InvalidOrder("reserve amount %s is negative", amount)
	}
	b, err := l.balance(ctx, accountID, asset)
	if err != nil {
		return err
	}
	if b.Available.LessThan(amount) {
		return coreerr.InsufficientBalance("account %s asset %s: available %s < requested %s", accountID, asset, b.Available, amount)
	}
	b.Available = b.Available.Sub(amount)
	b.Locked = b.Locked.Add(amount)
	return l.save(ctx, b)
}

// Release moves amount back from locked to available. Releasing more
// than is locked is a settlement bug, not a user error, so it returns a
// SettlementError rather than silently going negative.
func (l *Ledger) Release(ctx context.Context, accountID string, asset model.Asset, amount decimal.Decimal) error {
	if amount.Sign() == 0 {
		return nil
	}
	b, err := l.balance(ctx, accountID, asset)
	if err != nil {
		return err
	}
	if b.Locked.LessThan(amount) {
		return coreerr.Settlement(nil, "account %s asset %s: locked %s < release %s", accountID, asset, b.Locked, amount)
	}
	b.Locked = b.Locked.Sub(amount)
	b.Available = b.Available.Add(amount)
	return l.save(ctx, b)
}

// SettleTrade applies one fill's money movement. Regardless of maker or
// taker role: the BUY-side order debits quote-locked by
// price*amount*(1+fee) and credits base-available by amount; the
// SELL-side order debits base-locked by amount and credits quote-available
// by price*amount*(1-fee). This single rule reproduces every worked
// scenario in the spec's fee-arithmetic appendix, maker or taker alike.
func (l *Ledger) SettleTrade(ctx context.Context, base, quote model.Asset, buyAccountID, sellAccountID string, price, amount decimal.Decimal) (buyerFee, sellerFee decimal.Decimal, err error) {
	notional := price.Mul(amount)
	buyerFee = notional.Mul(l.feeRate)
	sellerFee = notional.Mul(l.feeRate)
	buyerDebit := notional.Add(buyerFee)
	sellerCredit := notional.Sub(sellerFee)

	buyQuote, err := l.balance(ctx, buyAccountID, quote)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if buyQuote.Locked.LessThan(buyerDebit) {
		return decimal.Zero, decimal.Zero, coreerr.Settlement(nil, "buyer %s locked %s quote short of debit %s", buyAccountID, buyQuote.Locked, buyerDebit)
	}
	buyQuote.Locked = buyQuote.Locked.Sub(buyerDebit)
	if err := l.save(ctx, buyQuote); err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	buyBase, err := l.balance(ctx, buyAccountID, base)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	buyBase.Available = buyBase.Available.Add(amount)
	if err := l.save(ctx, buyBase); err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	sellBase, err := l.balance(ctx, sellAccountID, base)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if sellBase.Locked.LessThan(amount) {
		return decimal.Zero, decimal.Zero, coreerr.Settlement(nil, "seller %s locked %s base short of debit %s", sellAccountID, sellBase.Locked, amount)
	}
	sellBase.Locked = sellBase.Locked.Sub(amount)
	if err := l.save(ctx, sellBase); err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	sellQuote, err := l.balance(ctx, sellAccountID, quote)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	sellQuote.Available = sellQuote.Available.Add(sellerCredit)
	if err := l.save(ctx, sellQuote); err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	return buyerFee, sellerFee, nil
}

// CreditDeposit records a confirmed deposit and credits available funds.
func (l *Ledger) CreditDeposit(ctx context.Context, accountID string, asset model.Asset, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return coreerr.InvalidOrder("deposit amount %s must be positive", amount)
	}
	b, err := l.balance(ctx, accountID, asset)
	if err != nil {
		return err
	}
	b.Available = b.Available.Add(amount)
	return l.save(ctx, b)
}

// BeginWithdrawal reserves the withdrawal amount out of available funds.
// The Transaction record itself is created by the account façade; this
// only moves the money.
func (l *Ledger) BeginWithdrawal(ctx context.Context, accountID string, asset model.Asset, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return coreerr.InvalidOrder("withdrawal amount %s must be positive", amount)
	}
	return l.Reserve(ctx, accountID, asset, amount)
}

// FinalizeWithdrawal either burns the locked amount (approved) or
// releases it back to available (rejected).
func (l *Ledger) FinalizeWithdrawal(ctx context.Context, accountID string, asset model.Asset, amount decimal.Decimal, approved bool) error {
	if !approved {
		return l.Release(ctx, accountID, asset, amount)
	}
	b, err := l.balance(ctx, accountID, asset)
	if err != nil {
		return err
	}
	if b.Locked.LessThan(amount) {
		return coreerr.Settlement(nil, "account %s asset %s: locked %s < withdrawal %s", accountID, asset, b.Locked, amount)
	}
	b.Locked = b.Locked.Sub(amount)
	return l.save(ctx, b)
}

// Conserved reports whether total available+locked for asset across every
// account equals want — used by tests to assert the conservation
// invariant after a batch of trades.
func (l *Ledger) Conserved(ctx context.Context, asset model.Asset, want decimal.Decimal) (bool, decimal.Decimal, error) {
	all, err := l.repo.Balances().All(ctx)
	if err != nil {
		return false, decimal.Zero, err
	}
	sum := decimal.Zero
	for _, b := range all {
		if b.Asset == asset {
			sum = sum.Add(b.Available).Add(b.Locked)
		}
	}
	return sum.Equal(want), sum, nil
}
