// Package memory is the in-memory repository.Repository implementation,
// selected by config.DatabaseType == "inmemory" and used by the core's own
// test suite. Grounded on the snapshot-style in-memory store described by
// original_source/src/alt_exchange/infra/datastore.py.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"wager-exchange/internal/model"
	"wager-exchange/internal/repository"
)

// Store implements repository.Repository entirely with mutex-guarded maps.
type Store struct {
	mu sync.RWMutex

	users        map[string]model.User
	accounts     map[string]model.Account
	accountsByUser map[string][]string
	balances     map[string]model.Balance // key: accountID + "|" + asset
	orders       map[string]model.Order
	trades       map[string]model.Trade
	transactions map[string]model.Transaction
	auditLogs    []model.AuditLog
	nextAuditID  int64
}

func New() *Store {
	return &Store{
		users:          make(map[string]model.User),
		accounts:       make(map[string]model.Account),
		accountsByUser: make(map[string][]string),
		balances:       make(map[string]model.Balance),
		orders:         make(map[string]model.Order),
		trades:         make(map[string]model.Trade),
		transactions:   make(map[string]model.Transaction),
	}
}

func balanceKey(accountID string, asset model.Asset) string {
	return accountID + "|" + string(asset)
}

func (s *Store) Users() repository.UserRepository               { return (*userRepo)(s) }
func (s *Store) Accounts() repository.AccountRepository         { return (*accountRepo)(s) }
func (s *Store) Balances() repository.BalanceRepository         { return (*balanceRepo)(s) }
func (s *Store) Orders() repository.OrderRepository             { return (*orderRepo)(s) }
func (s *Store) Trades() repository.TradeRepository             { return (*tradeRepo)(s) }
func (s *Store) Transactions() repository.TransactionRepository { return (*txRepo)(s) }
func (s *Store) AuditLogs() repository.AuditLogRepository       { return (*auditRepo)(s) }

// ── Users ────────────────────────────────────────────

type userRepo Store

func (r *userRepo) NextID(ctx context.Context) (string, error) { return uuid.New().String(), nil }

func (r *userRepo) Insert(ctx context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = *u
	return nil
}

func (r *userRepo) Update(ctx context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = *u
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, nil
}

func (r *userRepo) List(ctx context.Context) ([]model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ── Accounts ─────────────────────────────────────────

type accountRepo Store

func (r *accountRepo) NextID(ctx context.Context) (string, error) { return uuid.New().String(), nil }

func (r *accountRepo) Insert(ctx context.Context, a *model.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[a.ID] = *a
	r.accountsByUser[a.UserID] = append(r.accountsByUser[a.UserID], a.ID)
	return nil
}

func (r *accountRepo) Update(ctx context.Context, a *model.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[a.ID] = *a
	return nil
}

func (r *accountRepo) GetByID(ctx context.Context, id string) (*model.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (r *accountRepo) GetByUserID(ctx context.Context, userID string) ([]model.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.accountsByUser[userID]
	out := make([]model.Account, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.accounts[id])
	}
	return out, nil
}

// ── Balances ─────────────────────────────────────────

type balanceRepo Store

func (r *balanceRepo) Upsert(ctx context.Context, b *model.Balance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balances[balanceKey(b.AccountID, b.Asset)] = *b
	return nil
}

func (r *balanceRepo) FindByAccountAndAsset(ctx context.Context, accountID string, asset model.Asset) (*model.Balance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.balances[balanceKey(accountID, asset)]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (r *balanceRepo) GetByAccountID(ctx context.Context, accountID string) ([]model.Balance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.Balance
	for _, b := range r.balances {
		if b.AccountID == accountID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *balanceRepo) All(ctx context.Context) ([]model.Balance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Balance, 0, len(r.balances))
	for _, b := range r.balances {
		out = append(out, b)
	}
	return out, nil
}

// ── Orders ───────────────────────────────────────────

type orderRepo Store

func (r *orderRepo) NextID(ctx context.Context) (string, error) { return uuid.New().String(), nil }

func (r *orderRepo) Insert(ctx context.Context, o *model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = *o
	return nil
}

func (r *orderRepo) Update(ctx context.Context, o *model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = *o
	return nil
}

func (r *orderRepo) GetByID(ctx context.Context, id string) (*model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (r *orderRepo) GetByUserID(ctx context.Context, userID string) ([]model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.Order
	for _, o := range r.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (r *orderRepo) GetOpenByMarket(ctx context.Context, market string) ([]model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.Order
	for _, o := range r.orders {
		if o.Market == market && o.IsLive() {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// ── Trades ───────────────────────────────────────────

type tradeRepo Store

func (r *tradeRepo) NextID(ctx context.Context) (string, error) { return uuid.New().String(), nil }

func (r *tradeRepo) Insert(ctx context.Context, t *model.Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades[t.ID] = *t
	return nil
}

func (r *tradeRepo) GetByID(ctx context.Context, id string) (*model.Trade, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.trades[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r *tradeRepo) GetByUserID(ctx context.Context, userID string) ([]model.Trade, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	r2 := (*Store)(r)
	var out []model.Trade
	for _, t := range r.trades {
		buy, buyOK := r2.orders[t.BuyOrderID]
		sell, sellOK := r2.orders[t.SellOrderID]
		if (buyOK && buy.UserID == userID) || (sellOK && sell.UserID == userID) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *tradeRepo) GetByMarket(ctx context.Context, market string) ([]model.Trade, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.Trade
	for _, t := range r.trades {
		if t.Market == market {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ── Transactions ─────────────────────────────────────

type txRepo Store

func (r *txRepo) NextID(ctx context.Context) (string, error) { return uuid.New().String(), nil }

func (r *txRepo) Insert(ctx context.Context, t *model.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transactions[t.ID] = *t
	return nil
}

func (r *txRepo) Update(ctx context.Context, t *model.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transactions[t.ID] = *t
	return nil
}

func (r *txRepo) GetByID(ctx context.Context, id string) (*model.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transactions[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r *txRepo) GetByUserID(ctx context.Context, userID string) ([]model.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.Transaction
	for _, t := range r.transactions {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *txRepo) ListPending(ctx context.Context) ([]model.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.Transaction
	for _, t := range r.transactions {
		if t.Status == model.TxPending {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ── Audit logs ───────────────────────────────────────

type auditRepo Store

func (r *auditRepo) NextID(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextAuditID++
	return r.nextAuditID, nil
}

func (r *auditRepo) Insert(ctx context.Context, a *model.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auditLogs = append(r.auditLogs, *a)
	return nil
}

func (r *auditRepo) GetRecent(ctx context.Context, limit int) ([]model.AuditLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := len(r.auditLogs)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]model.AuditLog, limit)
	for i := 0; i < limit; i++ {
		out[i] = r.auditLogs[n-1-i]
	}
	return out, nil
}
