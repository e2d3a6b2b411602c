// Package repository defines the persistence contract named in
// SPEC_FULL.md §6, polymorphic over an in-memory and a Postgres-backed
// implementation (see the memory and postgres subpackages). Interfaces
// are segregated by aggregate, grounded on
// original_source/src/alt_exchange/infra/database/repositories.py.
package repository

import (
	"context"

	"wager-exchange/internal/model"
)

type UserRepository interface {
	NextID(ctx context.Context) (string, error)
	Insert(ctx context.Context, u *model.User) error
	Update(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	List(ctx context.Context) ([]model.User, error)
}

type AccountRepository interface {
	NextID(ctx context.Context) (string, error)
	Insert(ctx context.Context, a *model.Account) error
	Update(ctx context.Context, a *model.Account) error
	GetByID(ctx context.Context, id string) (*model.Account, error)
	GetByUserID(ctx context.Context, userID string) ([]model.Account, error)
}

type BalanceRepository interface {
	Upsert(ctx context.Context, b *model.Balance) error
	FindByAccountAndAsset(ctx context.Context, accountID string, asset model.Asset) (*model.Balance, error)
	GetByAccountID(ctx context.Context, accountID string) ([]model.Balance, error)
	All(ctx context.Context) ([]model.Balance, error)
}

type OrderRepository interface {
	NextID(ctx context.Context) (string, error)
	Insert(ctx context.Context, o *model.Order) error
	Update(ctx context.Context, o *model.Order) error
	GetByID(ctx context.Context, id string) (*model.Order, error)
	GetByUserID(ctx context.Context, userID string) ([]model.Order, error)
	GetOpenByMarket(ctx context.Context, market string) ([]model.Order, error)
}

type TradeRepository interface {
	NextID(ctx context.Context) (string, error)
	Insert(ctx context.Context, t *model.Trade) error
	GetByID(ctx context.Context, id string) (*model.Trade, error)
	GetByUserID(ctx context.Context, userID string) ([]model.Trade, error)
	GetByMarket(ctx context.Context, market string) ([]model.Trade, error)
}

type TransactionRepository interface {
	NextID(ctx context.Context) (string, error)
	Insert(ctx context.Context, tx *model.Transaction) error
	Update(ctx context.Context, tx *model.Transaction) error
	GetByID(ctx context.Context, id string) (*model.Transaction, error)
	GetByUserID(ctx context.Context, userID string) ([]model.Transaction, error)
	ListPending(ctx context.Context) ([]model.Transaction, error)
}

type AuditLogRepository interface {
	NextID(ctx context.Context) (int64, error)
	Insert(ctx context.Context, a *model.AuditLog) error
	GetRecent(ctx context.Context, limit int) ([]model.AuditLog, error)
}

// Repository bundles every aggregate's repository so the composition root
// only has to thread one value through the engine, ledger, and façade.
type Repository interface {
	Users() UserRepository
	Accounts() AccountRepository
	Balances() BalanceRepository
	Orders() OrderRepository
	Trades() TradeRepository
	Transactions() TransactionRepository
	AuditLogs() AuditLogRepository
}
