// Package model holds the domain entities shared by the ledger, the
// matching engine, and the account façade: assets, users, accounts,
// balances, orders, trades, transactions, and audit log rows.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Asset identifies a tradeable currency. A market pairs exactly two:
// a base asset and a quote asset.
type Asset string

// AccountStatus is the admin-controlled lifecycle state of an Account.
type AccountStatus string

const (
	AccountActive AccountStatus = "ACTIVE"
	AccountFrozen AccountStatus = "FROZEN"
)

// OrderSide is the direction of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderType distinguishes the three order families the core understands.
// Native market orders are deliberately absent — see SPEC_FULL.md §4.3.
type OrderType string

const (
	TypeLimit OrderType = "LIMIT"
	TypeStop  OrderType = "STOP"
	TypeOCO   OrderType = "OCO"
)

// TimeInForce governs how an order behaves once it can't fully match.
type TimeInForce string

const (
	TIFGTC TimeInForce = "GTC"
	TIFIOC TimeInForce = "IOC"
	TIFFOK TimeInForce = "FOK"
)

// OrderStatus is the lifecycle state of an Order.
type OrderStatus string

const (
	StatusOpen     OrderStatus = "OPEN"
	StatusPartial  OrderStatus = "PARTIAL"
	StatusFilled   OrderStatus = "FILLED"
	StatusCanceled OrderStatus = "CANCELED"
)

// TransactionType distinguishes deposits from withdrawals.
type TransactionType string

const (
	TxDeposit  TransactionType = "DEPOSIT"
	TxWithdraw TransactionType = "WITHDRAW"
)

// TransactionStatus is the lifecycle state of a Transaction.
type TransactionStatus string

const (
	TxPending   TransactionStatus = "PENDING"
	TxConfirmed TransactionStatus = "CONFIRMED"
	TxFailed    TransactionStatus = "FAILED"
)

// User is immutable except for LastLogin.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	LastLogin    *time.Time
}

// Account is owned 1:1 by a User. A FROZEN account cannot originate new
// orders or withdrawals, but pending settlements against its existing
// resting orders still complete.
type Account struct {
	ID       string
	UserID   string
	Status   AccountStatus
	Frozen   bool
	KYCLevel int
}

func (a Account) CanOriginate() bool {
	return a.Status == AccountActive && !a.Frozen
}

// Balance is keyed by (AccountID, Asset). Available and Locked are never
// negative; Locked mirrors the sum of this account's live obligations in
// that asset.
type Balance struct {
	AccountID string
	Asset     Asset
	Available decimal.Decimal
	Locked    decimal.Decimal
	UpdatedAt time.Time
}

// Order is the single order entity shared by the ledger (via stable ids)
// and the matching engine (which owns book/armed-set placement).
type Order struct {
	ID           string
	UserID       string
	AccountID    string
	Market       string
	Side         OrderSide
	Type         OrderType
	TimeInForce  TimeInForce
	Price        decimal.Decimal // required for LIMIT/OCO; working price for STOP after trigger
	StopPrice    decimal.Decimal // STOP/OCO only
	HasStopPrice bool
	Amount       decimal.Decimal
	Filled       decimal.Decimal
	Locked       decimal.Decimal // current reservation backing this order's remaining obligation
	Status       OrderStatus
	LinkOrderID  string // OCO only
	Seq          int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Remaining is amount minus filled.
func (o Order) Remaining() decimal.Decimal {
	return o.Amount.Sub(o.Filled)
}

func (o Order) IsTerminal() bool {
	return o.Status == StatusFilled || o.Status == StatusCanceled
}

func (o Order) IsLive() bool {
	return o.Status == StatusOpen || o.Status == StatusPartial
}

// Trade records one fill. Price equals the maker's resting price.
type Trade struct {
	ID           string
	Market       string
	BuyOrderID   string
	SellOrderID  string
	MakerOrderID string
	TakerOrderID string
	TakerSide    OrderSide
	Price        decimal.Decimal
	Amount       decimal.Decimal
	Fee          decimal.Decimal
	CreatedAt    time.Time
}

// Transaction is a deposit or withdrawal record.
type Transaction struct {
	ID           string
	UserID       string
	AccountID    string
	Asset        Asset
	Type         TransactionType
	Status       TransactionStatus
	Amount       decimal.Decimal
	Address      string
	TxHash       string
	Chain        string
	Confirmations int
	ApproverIDs  []string
	ApprovedAt   *time.Time
	RejectedAt   *time.Time
	CreatedAt    time.Time
}

// AuditLog is an append-only record of administrative actions.
type AuditLog struct {
	ID        int64
	Actor     string
	Action    string
	Entity    string
	Metadata  map[string]any
	CreatedAt time.Time
}

// BookLevel is one aggregated price level of a snapshot.
type BookLevel struct {
	Price  decimal.Decimal
	Amount decimal.Decimal
}

// BookSnapshot is the best-to-worst view of both sides. It is built
// eagerly as two slices, each holding at most the requested depth of
// levels; it is not a lazy iterator.
type BookSnapshot struct {
	Bids []BookLevel
	Asks []BookLevel
}
