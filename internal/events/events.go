// Package events defines the typed event records carried by the event
// bus (SPEC_FULL.md §4.5). Fields mirror the event dataclasses in
// original_source/src/alt_exchange/core/events.py, extended with the
// additional event types spec.md §4.5 names (StopOrderActivated,
// OCOOrderCancelled, the withdrawal and account-freeze events) that the
// Python original's events.py did not carry.
package events

import (
	"time"

	"github.com/shopspring/decimal"

	"wager-exchange/internal/model"
)

type OrderAccepted struct {
	OrderID string
	UserID  string
	Market  string
	Side    model.OrderSide
	Type    model.OrderType
	Price   decimal.Decimal
	Amount  decimal.Decimal
	At      time.Time
}

type OrderStatusChanged struct {
	OrderID string
	Status  model.OrderStatus
	Reason  string
	At      time.Time
}

type TradeExecuted struct {
	TradeID      string
	Market       string
	Price        decimal.Decimal
	Amount       decimal.Decimal
	Fee          decimal.Decimal
	TakerSide    model.OrderSide
	MakerOrderID string
	TakerOrderID string
	At           time.Time
}

type BalanceChanged struct {
	AccountID string
	Asset     model.Asset
	Available decimal.Decimal
	Locked    decimal.Decimal
	At        time.Time
}

type StopOrderActivated struct {
	OrderID   string
	StopPrice decimal.Decimal
	At        time.Time
}

type OCOOrderCancelled struct {
	OrderID   string
	SiblingID string
	At        time.Time
}

type WithdrawalRequested struct {
	TransactionID string
	UserID        string
	At            time.Time
}

type WithdrawalApproved struct {
	TransactionID string
	ApproverID    string
	At            time.Time
}

type WithdrawalRejected struct {
	TransactionID string
	ApproverID    string
	Reason        string
	At            time.Time
}

type AccountFrozen struct {
	AccountID string
	AdminID   string
	Reason    string
	At        time.Time
}

type AccountUnfrozen struct {
	AccountID string
	AdminID   string
	At        time.Time
}
