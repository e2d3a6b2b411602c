// Package account is the Account/Wallet façade (C7): the only entry point
// user-facing transport (C10's httpapi) calls into. It validates
// inputs, computes and reserves the funds an order will need before the
// matching engine ever sees it, and owns the deposit/withdrawal and admin
// surfaces that spec.md §4.7 lists. The teacher has no separate façade
// layer — its internal/api/server.go handlers call internal/db and
// internal/engine directly — so this package factors that same
// validate-reserve-submit sequence out of the transport layer, the way
// spec.md's C7 sits between C10 and C1/C3. Grounded on
// original_source/src/alt_exchange/services/wallet/service.py for the
// deposit-address allocator and withdrawal state machine.
package account

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"wager-exchange/internal/coreerr"
	"wager-exchange/internal/engine"
	"wager-exchange/internal/eventbus"
	"wager-exchange/internal/events"
	"wager-exchange/internal/ledger"
	"wager-exchange/internal/model"
	"wager-exchange/internal/repository"
)

// AdminPredicate reports whether userID may perform admin operations. It
// is injected by the composition root rather than hardcoded here,
// resolving spec.md §9's Open Question on admin identity externally.
type AdminPredicate func(userID string) bool

// Facade implements spec.md §4.7 for a single market. One Facade wraps
// one MarketEngine; a multi-market deployment runs one Facade per market
// sharing the same ledger and repository (account state is not scoped to
// a market).
type Facade struct {
	market string
	eng    *engine.MarketEngine
	ledger *ledger.Ledger
	repo   repository.Repository
	bus    *eventbus.Bus

	withdrawalApprovalsRequired int
	isAdmin                     AdminPredicate

	mu          sync.Mutex
	depositAddr map[string]string // cache key: userID+"\x00"+asset
}

// New builds the façade for one market. withdrawalApprovalsRequired is
// C8's withdrawal_approvals_required; isAdmin resolves admin identity.
func New(market string, eng *engine.MarketEngine, lg *ledger.Ledger, repo repository.Repository, bus *eventbus.Bus, withdrawalApprovalsRequired int, isAdmin AdminPredicate) *Facade {
	return &Facade{
		market:                      market,
		eng:                         eng,
		ledger:                      lg,
		repo:                        repo,
		bus:                         bus,
		withdrawalApprovalsRequired: withdrawalApprovalsRequired,
		isAdmin:                     isAdmin,
		depositAddr:                 make(map[string]string),
	}
}

func (f *Facade) publish(event any) {
	if f.bus != nil {
		f.bus.Publish(event)
	}
}

// soleAccount resolves user_id -> the account façade operations act on.
// The teacher's data model is 1 account per user; spec.md's Account
// entity is likewise owned 1:1 by a User (model.go), so the façade looks
// up the user's one account rather than taking an account id from the
// caller.
func (f *Facade) soleAccount(ctx context.Context, userID string) (*model.Account, error) {
	accts, err := f.repo.Accounts().GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(accts) == 0 {
		return nil, coreerr.EntityNotFound("no account for user %s", userID)
	}
	return &accts[0], nil
}

func (f *Facade) requireOriginate(acct *model.Account) error {
	if !acct.CanOriginate() {
		return coreerr.AdminPermission("account %s is frozen and cannot originate new orders or withdrawals", acct.ID)
	}
	return nil
}

// CreateUser registers a user and their single account, both persisted
// via the repository. Password hashing happens in C10 (httpapi); the
// façade only stores whatever hash it's given.
func (f *Facade) CreateUser(ctx context.Context, email, passwordHash string) (*model.User, *model.Account, error) {
	userID, err := f.repo.Users().NextID(ctx)
	if err != nil {
		return nil, nil, err
	}
	u := &model.User{ID: userID, Email: email, PasswordHash: passwordHash, CreatedAt: time.Now().UTC()}
	if err := f.repo.Users().Insert(ctx, u); err != nil {
		return nil, nil, err
	}
	acctID, err := f.repo.Accounts().NextID(ctx)
	if err != nil {
		return nil, nil, err
	}
	a := &model.Account{ID: acctID, UserID: userID, Status: model.AccountActive}
	if err := f.repo.Accounts().Insert(ctx, a); err != nil {
		return nil, nil, err
	}
	return u, a, nil
}

// quoteReservation computes the BUY-side reservation: price*amount*(1+fee).
func (f *Facade) quoteReservation(price, amount decimal.Decimal) decimal.Decimal {
	notional := price.Mul(amount)
	return notional.Add(notional.Mul(f.ledger.FeeRate()))
}

// reservation computes how much of which asset an order needs locked
// before it can be submitted, per spec.md §4.7: quote for BUY
// (price*amount*(1+FEE_RATE)), base for SELL (amount); STOP/OCO reserve
// for the order's working price the same way once triggered.
func (f *Facade) reservation(side model.OrderSide, price, amount decimal.Decimal) (model.Asset, decimal.Decimal) {
	if side == model.SideBuy {
		return f.eng.Quote(), f.quoteReservation(price, amount)
	}
	return f.eng.Base(), amount
}

const maxDecimalScale = 18

func (f *Facade) validateInputs(price, amount decimal.Decimal) error {
	if price.Sign() <= 0 {
		return coreerr.InvalidOrder("price %s must be positive", price)
	}
	if amount.Sign() <= 0 {
		return coreerr.InvalidOrder("amount %s must be positive", amount)
	}
	if -price.Exponent() > maxDecimalScale {
		return coreerr.InvalidOrder("price %s exceeds max scale of %d fractional digits", price, maxDecimalScale)
	}
	if -amount.Exponent() > maxDecimalScale {
		return coreerr.InvalidOrder("amount %s exceeds max scale of %d fractional digits", amount, maxDecimalScale)
	}
	return nil
}

func newOrderID(repo repository.Repository, ctx context.Context) (string, error) {
	return repo.Orders().NextID(ctx)
}

// PlaceLimitOrder validates, reserves funds, and submits a LIMIT order.
func (f *Facade) PlaceLimitOrder(ctx context.Context, userID string, side model.OrderSide, price, amount decimal.Decimal, tif model.TimeInForce) (*model.Order, error) {
	if err := f.validateInputs(price, amount); err != nil {
		return nil, err
	}
	acct, err := f.soleAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := f.requireOriginate(acct); err != nil {
		return nil, err
	}
	asset, amt := f.reservation(side, price, amount)
	if err := f.ledger.Reserve(ctx, acct.ID, asset, amt); err != nil {
		return nil, err
	}

	orderID, err := newOrderID(f.repo, ctx)
	if err != nil {
		f.releaseQuiet(ctx, acct.ID, asset, amt)
		return nil, err
	}
	order := &model.Order{
		ID: orderID, UserID: userID, AccountID: acct.ID, Market: f.market,
		Side: side, Type: model.TypeLimit, TimeInForce: tif,
		Price: price, Amount: amount, Locked: amt,
	}
	if _, err := f.eng.Submit(ctx, order); err != nil {
		f.releaseQuiet(ctx, acct.ID, asset, amt)
		return nil, err
	}
	return f.refreshed(ctx, order.ID)
}

// PlaceStopOrder validates, reserves funds against the working price, and
// arms a STOP order.
func (f *Facade) PlaceStopOrder(ctx context.Context, userID string, side model.OrderSide, price, stopPrice, amount decimal.Decimal, tif model.TimeInForce) (*model.Order, error) {
	if err := f.validateInputs(price, amount); err != nil {
		return nil, err
	}
	if stopPrice.Sign() <= 0 {
		return nil, coreerr.InvalidOrder("stop_price %s must be positive", stopPrice)
	}
	acct, err := f.soleAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := f.requireOriginate(acct); err != nil {
		return nil, err
	}
	asset, amt := f.reservation(side, price, amount)
	if err := f.ledger.Reserve(ctx, acct.ID, asset, amt); err != nil {
		return nil, err
	}

	orderID, err := newOrderID(f.repo, ctx)
	if err != nil {
		f.releaseQuiet(ctx, acct.ID, asset, amt)
		return nil, err
	}
	order := &model.Order{
		ID: orderID, UserID: userID, AccountID: acct.ID, Market: f.market,
		Side: side, Type: model.TypeStop, TimeInForce: tif,
		Price: price, StopPrice: stopPrice, HasStopPrice: true,
		Amount: amount, Locked: amt,
	}
	if _, err := f.eng.Submit(ctx, order); err != nil {
		f.releaseQuiet(ctx, acct.ID, asset, amt)
		return nil, err
	}
	return f.refreshed(ctx, order.ID)
}

// PlaceOCOOrder submits a linked LIMIT/STOP pair. The STOP leg's working
// price after trigger equals its stop_price itself — spec.md's
// place_oco_order signature has no separate working-price parameter for
// the stop leg, so triggering it is treated as an immediate marketable
// limit at the trigger price, the same guaranteed-fill approximation a
// stop-loss is meant to provide.
func (f *Facade) PlaceOCOOrder(ctx context.Context, userID string, side model.OrderSide, price, stopPrice, amount decimal.Decimal) (*model.Order, *model.Order, error) {
	if err := f.validateInputs(price, amount); err != nil {
		return nil, nil, err
	}
	if stopPrice.Sign() <= 0 {
		return nil, nil, coreerr.InvalidOrder("stop_price %s must be positive", stopPrice)
	}
	acct, err := f.soleAccount(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if err := f.requireOriginate(acct); err != nil {
		return nil, nil, err
	}

	asset, limitAmt := f.reservation(side, price, amount)
	if err := f.ledger.Reserve(ctx, acct.ID, asset, limitAmt); err != nil {
		return nil, nil, err
	}
	_, stopAmt := f.reservation(side, stopPrice, amount)
	if err := f.ledger.Reserve(ctx, acct.ID, asset, stopAmt); err != nil {
		f.releaseQuiet(ctx, acct.ID, asset, limitAmt)
		return nil, nil, err
	}

	limitID, err := newOrderID(f.repo, ctx)
	if err != nil {
		f.releaseQuiet(ctx, acct.ID, asset, limitAmt.Add(stopAmt))
		return nil, nil, err
	}
	stopID, err := newOrderID(f.repo, ctx)
	if err != nil {
		f.releaseQuiet(ctx, acct.ID, asset, limitAmt.Add(stopAmt))
		return nil, nil, err
	}

	limitLeg := &model.Order{
		ID: limitID, UserID: userID, AccountID: acct.ID, Market: f.market,
		Side: side, Type: model.TypeLimit, TimeInForce: model.TIFGTC,
		Price: price, Amount: amount, Locked: limitAmt, LinkOrderID: stopID,
	}
	stopLeg := &model.Order{
		ID: stopID, UserID: userID, AccountID: acct.ID, Market: f.market,
		Side: side, Type: model.TypeStop, TimeInForce: model.TIFGTC,
		Price: stopPrice, StopPrice: stopPrice, HasStopPrice: true,
		Amount: amount, Locked: stopAmt, LinkOrderID: limitID,
	}

	if _, err := f.eng.SubmitOCO(ctx, limitLeg, stopLeg); err != nil {
		f.releaseQuiet(ctx, acct.ID, asset, limitAmt.Add(stopAmt))
		return nil, nil, err
	}
	lim, err := f.refreshed(ctx, limitID)
	if err != nil {
		return nil, nil, err
	}
	stop, err := f.refreshed(ctx, stopID)
	if err != nil {
		return nil, nil, err
	}
	return lim, stop, nil
}

// releaseQuiet releases a reservation made before an engine call that
// then failed. The engine never accepted the order, so nothing it did
// needs undoing — only the façade's own upfront Reserve does.
func (f *Facade) releaseQuiet(ctx context.Context, accountID string, asset model.Asset, amount decimal.Decimal) {
	_ = f.ledger.Release(ctx, accountID, asset, amount)
}

func (f *Facade) refreshed(ctx context.Context, orderID string) (*model.Order, error) {
	o, err := f.repo.Orders().GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, coreerr.EntityNotFound("order %s vanished after submit", orderID)
	}
	return o, nil
}

// PlaceMarketOrder is a façade-only convenience (not a C3 order type):
// it synthesizes a LIMIT+IOC order at a sweep price far enough through
// the book to guarantee a fill at whatever liquidity exists, the way a
// market order behaves. Reservation is computed against the full
// available balance rather than a notional at the sweep price, since the
// true fill price isn't known until the engine matches.
func (f *Facade) PlaceMarketOrder(ctx context.Context, userID string, side model.OrderSide, amount decimal.Decimal) (*model.Order, error) {
	if amount.Sign() <= 0 {
		return nil, coreerr.InvalidOrder("amount %s must be positive", amount)
	}
	acct, err := f.soleAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := f.requireOriginate(acct); err != nil {
		return nil, err
	}

	var sweepPrice decimal.Decimal
	var reserveAsset model.Asset
	var reserveAmt decimal.Decimal
	if side == model.SideBuy {
		reserveAsset = f.eng.Quote()
		bal, err := f.ledger.Balance(ctx, acct.ID, reserveAsset)
		if err != nil {
			return nil, err
		}
		if bal.Available.Sign() <= 0 {
			return nil, coreerr.InsufficientBalance("account %s has no available %s", acct.ID, reserveAsset)
		}
		reserveAmt = bal.Available
		// Sweep price is derived from available quote funds so the implied
		// limit is always marketable regardless of how far the book moves.
		sweepPrice = reserveAmt.Div(amount).Mul(decimal.New(1000, 0))
	} else {
		reserveAsset = f.eng.Base()
		reserveAmt = amount
		sweepPrice = decimal.New(1, -9) // effectively zero: seller accepts any bid
	}
	if sweepPrice.Sign() <= 0 {
		return nil, coreerr.InvalidOrder("unable to derive a sweep price for market order")
	}
	if err := f.ledger.Reserve(ctx, acct.ID, reserveAsset, reserveAmt); err != nil {
		return nil, err
	}

	orderID, err := newOrderID(f.repo, ctx)
	if err != nil {
		f.releaseQuiet(ctx, acct.ID, reserveAsset, reserveAmt)
		return nil, err
	}
	order := &model.Order{
		ID: orderID, UserID: userID, AccountID: acct.ID, Market: f.market,
		Side: side, Type: model.TypeLimit, TimeInForce: model.TIFIOC,
		Price: sweepPrice, Amount: amount, Locked: reserveAmt,
	}
	if _, err := f.eng.Submit(ctx, order); err != nil {
		f.releaseQuiet(ctx, acct.ID, reserveAsset, reserveAmt)
		return nil, err
	}
	order, err = f.refreshed(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	// Release whatever fraction of the sweep reservation the fill didn't
	// consume; the buy side in particular over-reserves against the sweep
	// price, not the realized average fill price.
	if order.Locked.Sign() > 0 {
		f.releaseQuiet(ctx, acct.ID, reserveAsset, order.Locked)
		order.Locked = decimal.Zero
	}
	return order, nil
}

// CancelOrder cancels userID's order if they own it. Returns false, nil
// if the order doesn't exist, isn't theirs, or is already terminal.
func (f *Facade) CancelOrder(ctx context.Context, userID, orderID string) (bool, error) {
	o, err := f.repo.Orders().GetByID(ctx, orderID)
	if err != nil {
		return false, err
	}
	if o == nil || o.UserID != userID {
		return false, nil
	}
	return f.eng.Cancel(ctx, orderID)
}

func (f *Facade) GetBalance(ctx context.Context, userID string, asset model.Asset) (*model.Balance, error) {
	acct, err := f.soleAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	return f.ledger.Balance(ctx, acct.ID, asset)
}

func (f *Facade) GetUserOrders(ctx context.Context, userID string) ([]model.Order, error) {
	return f.repo.Orders().GetByUserID(ctx, userID)
}

func (f *Facade) GetUserTrades(ctx context.Context, userID string) ([]model.Trade, error) {
	return f.repo.Trades().GetByUserID(ctx, userID)
}

// CreditDeposit records a confirmed deposit against txHash and credits
// available funds. spec.md §4.1 treats deposits as already-confirmed by
// the time they reach the ledger; chain confirmation is an external
// collaborator's job.
func (f *Facade) CreditDeposit(ctx context.Context, userID string, asset model.Asset, amount decimal.Decimal, txHash string) (*model.Transaction, error) {
	if amount.Sign() <= 0 {
		return nil, coreerr.InvalidOrder("deposit amount %s must be positive", amount)
	}
	acct, err := f.soleAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := f.ledger.CreditDeposit(ctx, acct.ID, asset, amount); err != nil {
		return nil, err
	}
	txID, err := f.repo.Transactions().NextID(ctx)
	if err != nil {
		return nil, err
	}
	tx := &model.Transaction{
		ID: txID, UserID: userID, AccountID: acct.ID, Asset: asset,
		Type: model.TxDeposit, Status: model.TxConfirmed, Amount: amount,
		TxHash: txHash, CreatedAt: time.Now().UTC(),
	}
	if err := f.repo.Transactions().Insert(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// RequestWithdrawal reserves amount and opens a PENDING withdrawal
// transaction awaiting admin approval.
func (f *Facade) RequestWithdrawal(ctx context.Context, userID string, asset model.Asset, amount decimal.Decimal, address string) (*model.Transaction, error) {
	if amount.Sign() <= 0 {
		return nil, coreerr.InvalidOrder("withdrawal amount %s must be positive", amount)
	}
	acct, err := f.soleAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := f.requireOriginate(acct); err != nil {
		return nil, err
	}
	if err := f.ledger.BeginWithdrawal(ctx, acct.ID, asset, amount); err != nil {
		return nil, err
	}
	txID, err := f.repo.Transactions().NextID(ctx)
	if err != nil {
		f.releaseQuiet(ctx, acct.ID, asset, amount)
		return nil, err
	}
	tx := &model.Transaction{
		ID: txID, UserID: userID, AccountID: acct.ID, Asset: asset,
		Type: model.TxWithdraw, Status: model.TxPending, Amount: amount,
		Address: address, CreatedAt: time.Now().UTC(),
	}
	if err := f.repo.Transactions().Insert(ctx, tx); err != nil {
		f.releaseQuiet(ctx, acct.ID, asset, amount)
		return nil, err
	}
	f.publish(events.WithdrawalRequested{TransactionID: tx.ID, UserID: userID, At: tx.CreatedAt})
	return tx, nil
}

// CompleteWithdrawal attaches the on-chain tx_hash once an approved
// withdrawal has actually broadcast. It does not move funds — approval
// already burned the reservation (see AdminApproveWithdrawal).
func (f *Facade) CompleteWithdrawal(ctx context.Context, txID, txHash string) (*model.Transaction, error) {
	tx, err := f.repo.Transactions().GetByID(ctx, txID)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, coreerr.EntityNotFound("transaction %s not found", txID)
	}
	if tx.Status != model.TxConfirmed {
		return nil, coreerr.InvalidOrder("transaction %s is not an approved withdrawal (status %s)", txID, tx.Status)
	}
	tx.TxHash = txHash
	if err := f.repo.Transactions().Update(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

func (f *Facade) requireAdmin(adminID string) error {
	if f.isAdmin == nil || !f.isAdmin(adminID) {
		return coreerr.AdminPermission("%s is not an admin principal", adminID)
	}
	return nil
}

func (f *Facade) ListPendingWithdrawals(ctx context.Context, adminID string) ([]model.Transaction, error) {
	if err := f.requireAdmin(adminID); err != nil {
		return nil, err
	}
	return f.repo.Transactions().ListPending(ctx)
}

// AdminApproveWithdrawal records adminID's approval. Once
// withdrawalApprovalsRequired distinct approvers have signed off, the
// withdrawal is finalized: its reservation is burned and status becomes
// CONFIRMED.
func (f *Facade) AdminApproveWithdrawal(ctx context.Context, adminID, txID string) (*model.Transaction, error) {
	if err := f.requireAdmin(adminID); err != nil {
		return nil, err
	}
	tx, err := f.repo.Transactions().GetByID(ctx, txID)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, coreerr.EntityNotFound("transaction %s not found", txID)
	}
	if tx.Status != model.TxPending {
		return nil, coreerr.WithdrawalApproval("transaction %s is not pending approval (status %s)", txID, tx.Status)
	}
	for _, id := range tx.ApproverIDs {
		if id == adminID {
			return tx, nil // already recorded, idempotent
		}
	}
	tx.ApproverIDs = append(tx.ApproverIDs, adminID)
	now := time.Now().UTC()
	f.publish(events.WithdrawalApproved{TransactionID: tx.ID, ApproverID: adminID, At: now})

	required := f.withdrawalApprovalsRequired
	if required <= 0 {
		required = 1
	}
	if len(tx.ApproverIDs) >= required {
		if err := f.ledger.FinalizeWithdrawal(ctx, tx.AccountID, tx.Asset, tx.Amount, true); err != nil {
			return nil, err
		}
		tx.Status = model.TxConfirmed
		tx.ApprovedAt = &now
	}
	if err := f.repo.Transactions().Update(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// AdminRejectWithdrawal releases the reservation and marks the
// withdrawal FAILED. A single rejection is final, unlike approvals which
// accumulate toward a threshold.
func (f *Facade) AdminRejectWithdrawal(ctx context.Context, adminID, txID, reason string) (*model.Transaction, error) {
	if err := f.requireAdmin(adminID); err != nil {
		return nil, err
	}
	tx, err := f.repo.Transactions().GetByID(ctx, txID)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, coreerr.EntityNotFound("transaction %s not found", txID)
	}
	if tx.Status != model.TxPending {
		return nil, coreerr.WithdrawalApproval("transaction %s is not pending approval (status %s)", txID, tx.Status)
	}
	if err := f.ledger.FinalizeWithdrawal(ctx, tx.AccountID, tx.Asset, tx.Amount, false); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	tx.Status = model.TxFailed
	tx.RejectedAt = &now
	if err := f.repo.Transactions().Update(ctx, tx); err != nil {
		return nil, err
	}
	f.publish(events.WithdrawalRejected{TransactionID: tx.ID, ApproverID: adminID, Reason: reason, At: now})
	return tx, nil
}

// FreezeAccount stops an account from originating new orders or
// withdrawals. Its resting orders and pending settlements are untouched
// (spec.md §5: freeze is account-wide, the owning market engine still
// resolves whatever it already accepted).
func (f *Facade) FreezeAccount(ctx context.Context, adminID, accountID, reason string) error {
	if err := f.requireAdmin(adminID); err != nil {
		return err
	}
	acct, err := f.repo.Accounts().GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if acct == nil {
		return coreerr.EntityNotFound("account %s not found", accountID)
	}
	acct.Frozen = true
	acct.Status = model.AccountFrozen
	if err := f.repo.Accounts().Update(ctx, acct); err != nil {
		return err
	}
	f.publish(events.AccountFrozen{AccountID: accountID, AdminID: adminID, Reason: reason, At: time.Now().UTC()})
	return nil
}

func (f *Facade) UnfreezeAccount(ctx context.Context, adminID, accountID string) error {
	if err := f.requireAdmin(adminID); err != nil {
		return err
	}
	acct, err := f.repo.Accounts().GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if acct == nil {
		return coreerr.EntityNotFound("account %s not found", accountID)
	}
	acct.Frozen = false
	acct.Status = model.AccountActive
	if err := f.repo.Accounts().Update(ctx, acct); err != nil {
		return err
	}
	f.publish(events.AccountUnfrozen{AccountID: accountID, AdminID: adminID, At: time.Now().UTC()})
	return nil
}

func (f *Facade) GetAuditLogs(ctx context.Context, adminID string, limit int) ([]model.AuditLog, error) {
	if err := f.requireAdmin(adminID); err != nil {
		return nil, err
	}
	return f.repo.AuditLogs().GetRecent(ctx, limit)
}

// MarketOverview is the admin dashboard's read model for one market: the
// current book depth plus volume/trade-count summary statistics a
// dashboard would show.
type MarketOverview struct {
	Market     string
	Book       model.BookSnapshot
	TradeCount int
	Volume     decimal.Decimal
}

func (f *Facade) GetMarketOverview(ctx context.Context, adminID string, depth int) (*MarketOverview, error) {
	if err := f.requireAdmin(adminID); err != nil {
		return nil, err
	}
	book := f.eng.BookSnapshot(depth)
	trades, err := f.repo.Trades().GetByMarket(ctx, f.market)
	if err != nil {
		return nil, err
	}
	volume := decimal.Zero
	for _, t := range trades {
		volume = volume.Add(t.Amount)
	}
	return &MarketOverview{Market: f.market, Book: book, TradeCount: len(trades), Volume: volume}, nil
}

// DepositAddress deterministically allocates (and caches) a deposit
// address for (userID, asset): sha256(userID + ":" + asset), truncated
// to a 40-hex-char pseudo-address. Grounded verbatim on
// alt_exchange.services.wallet.service.WalletService.generate_deposit_address
// — same inputs, same determinism guarantee.
func (f *Facade) DepositAddress(userID string, asset model.Asset) string {
	key := userID + "\x00" + string(asset)
	f.mu.Lock()
	defer f.mu.Unlock()
	if addr, ok := f.depositAddr[key]; ok {
		return addr
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s", userID, asset)))
	addr := "0x" + fmt.Sprintf("%x", sum)[:40]
	f.depositAddr[key] = addr
	return addr
}

