package engine

import (
	"context"

	"wager-exchange/internal/eventbus"
	"wager-exchange/internal/model"
	"wager-exchange/internal/repository"
)

// unit is the Settlement Coordinator's (C4) buffering object: every order
// and trade write, and every event publish, produced while processing one
// submission or cancellation is recorded here instead of applied directly.
// flush only runs after the caller's step function returns without error,
// which is what gives a failed submission "no side effects" semantics
// without requiring the repository to support a real rollback. Grounded
// on the teacher's `tx, _ := store.BeginTx(ctx); defer tx.Rollback()`
// pattern in internal/engine/engine.go, generalized from a SQL
// transaction to cover the in-process book/armed-set state alongside the
// repository writes (see (*MarketEngine).run in engine.go).
type unit struct {
	repo repository.Repository
	bus  *eventbus.Bus

	writes []func(ctx context.Context) error
	events []any

	// trades accumulates the trades produced by this step so the caller
	// can return them once the step is known to have committed. It is
	// not part of rollback: the engine simply never reads it when the
	// enclosing run() fails.
	trades []model.Trade
}

func newUnit(repo repository.Repository, bus *eventbus.Bus) *unit {
	return &unit{repo: repo, bus: bus}
}

func (u *unit) insertOrder(o model.Order) {
	u.writes = append(u.writes, func(ctx context.Context) error { return u.repo.Orders().Insert(ctx, &o) })
}

func (u *unit) updateOrder(o model.Order) {
	u.writes = append(u.writes, func(ctx context.Context) error { return u.repo.Orders().Update(ctx, &o) })
}

func (u *unit) insertTrade(t model.Trade) {
	u.trades = append(u.trades, t)
	u.writes = append(u.writes, func(ctx context.Context) error { return u.repo.Trades().Insert(ctx, &t) })
}

// publish defers an event until flush, so a subscriber never observes a
// submission that goes on to fail.
func (u *unit) publish(e any) {
	u.events = append(u.events, e)
}

// flush applies every buffered write, in the order they were recorded,
// then publishes every buffered event in the order they were recorded.
func (u *unit) flush(ctx context.Context) error {
	for _, w := range u.writes {
		if err := w(ctx); err != nil {
			return err
		}
	}
	for _, e := range u.events {
		u.bus.Publish(e)
	}
	return nil
}
