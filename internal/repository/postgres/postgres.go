// Package postgres is the Postgres-backed repository.Repository
// implementation, selected by config.DatabaseType == "postgres". Grounded
// directly on the teacher's internal/db/store.go: database/sql +
// github.com/lib/pq for the driver, github.com/golang-migrate/migrate/v4
// for schema versioning.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"wager-exchange/internal/model"
	"wager-exchange/internal/repository"
)

// decimalParse parses a NUMERIC column read back as text. Postgres NUMERIC
// round-trips through database/sql as a string, never a float, which is
// what keeps this path exact.
func decimalParse(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// Store implements repository.Repository against a Postgres database.
type Store struct{ DB *sql.DB }

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{DB: db}, nil
}

// Migrate applies every migration under dir using golang-migrate.
func (s *Store) Migrate(dir string) error {
	driver, err := postgres.WithInstance(s.DB, &postgres.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
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
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at, last_login) VALUES ($1,$2,$3,$4,$5)`,
		u.ID, u.Email, u.PasswordHash, u.CreatedAt, u.LastLogin)
	return err
}

func (r *userRepo) Update(ctx context.Context, u *model.User) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE users SET email=$1, password_hash=$2, last_login=$3 WHERE id=$4`,
		u.Email, u.PasswordHash, u.LastLogin, u.ID)
	return err
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	u := &model.User{}
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at, last_login FROM users WHERE id=$1`, id,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.LastLogin)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	u := &model.User{}
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at, last_login FROM users WHERE email=$1`, email,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.LastLogin)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

func (r *userRepo) List(ctx context.Context) ([]model.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, email, password_hash, created_at, last_login FROM users ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.LastLogin); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// ── Accounts ─────────────────────────────────────────

type accountRepo Store

func (r *accountRepo) NextID(ctx context.Context) (string, error) { return uuid.New().String(), nil }

func (r *accountRepo) Insert(ctx context.Context, a *model.Account) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO accounts (id, user_id, status, frozen, kyc_level) VALUES ($1,$2,$3,$4,$5)`,
		a.ID, a.UserID, a.Status, a.Frozen, a.KYCLevel)
	return err
}

func (r *accountRepo) Update(ctx context.Context, a *model.Account) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE accounts SET status=$1, frozen=$2, kyc_level=$3 WHERE id=$4`,
		a.Status, a.Frozen, a.KYCLevel, a.ID)
	return err
}

func (r *accountRepo) GetByID(ctx context.Context, id string) (*model.Account, error) {
	a := &model.Account{}
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, user_id, status, frozen, kyc_level FROM accounts WHERE id=$1`, id,
	).Scan(&a.ID, &a.UserID, &a.Status, &a.Frozen, &a.KYCLevel)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

func (r *accountRepo) GetByUserID(ctx context.Context, userID string) ([]model.Account, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, user_id, status, frozen, kyc_level FROM accounts WHERE user_id=$1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Account
	for rows.Next() {
		var a model.Account
		if err := rows.Scan(&a.ID, &a.UserID, &a.Status, &a.Frozen, &a.KYCLevel); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ── Balances ─────────────────────────────────────────

type balanceRepo Store

func (r *balanceRepo) Upsert(ctx context.Context, b *model.Balance) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO balances (account_id, asset, available, locked, updated_at)
		 VALUES ($1,$2,$3,$4,$5)
		 ON CONFLICT (account_id, asset) DO UPDATE SET available=$3, locked=$4, updated_at=$5`,
		b.AccountID, b.Asset, b.Available.String(), b.Locked.String(), b.UpdatedAt)
	return err
}

func (r *balanceRepo) FindByAccountAndAsset(ctx context.Context, accountID string, asset model.Asset) (*model.Balance, error) {
	b := &model.Balance{}
	var avail, locked string
	err := r.DB.QueryRowContext(ctx,
		`SELECT account_id, asset, available, locked, updated_at FROM balances WHERE account_id=$1 AND asset=$2`,
		accountID, asset,
	).Scan(&b.AccountID, &b.Asset, &avail, &locked, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if b.Available, err = decimalParse(avail); err != nil {
		return nil, err
	}
	if b.Locked, err = decimalParse(locked); err != nil {
		return nil, err
	}
	return b, nil
}

func (r *balanceRepo) GetByAccountID(ctx context.Context, accountID string) ([]model.Balance, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT account_id, asset, available, locked, updated_at FROM balances WHERE account_id=$1`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBalances(rows)
}

func (r *balanceRepo) All(ctx context.Context) ([]model.Balance, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT account_id, asset, available, locked, updated_at FROM balances`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBalances(rows)
}

func scanBalances(rows *sql.Rows) ([]model.Balance, error) {
	var out []model.Balance
	for rows.Next() {
		var b model.Balance
		var avail, locked string
		if err := rows.Scan(&b.AccountID, &b.Asset, &avail, &locked, &b.UpdatedAt); err != nil {
			return nil, err
		}
		var err error
		if b.Available, err = decimalParse(avail); err != nil {
			return nil, err
		}
		if b.Locked, err = decimalParse(locked); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ── Orders ───────────────────────────────────────────

type orderRepo Store

func (r *orderRepo) NextID(ctx context.Context) (string, error) { return uuid.New().String(), nil }

func (r *orderRepo) Insert(ctx context.Context, o *model.Order) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO orders (id, user_id, account_id, market, side, type, time_in_force, price, has_stop_price,
		 stop_price, amount, filled, locked, status, link_order_id, seq, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		o.ID, o.UserID, o.AccountID, o.Market, o.Side, o.Type, o.TimeInForce, o.Price.String(), o.HasStopPrice,
		o.StopPrice.String(), o.Amount.String(), o.Filled.String(), o.Locked.String(), o.Status, o.LinkOrderID,
		o.Seq, o.CreatedAt, o.UpdatedAt)
	return err
}

func (r *orderRepo) Update(ctx context.Context, o *model.Order) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE orders SET filled=$1, locked=$2, status=$3, updated_at=$4 WHERE id=$5`,
		o.Filled.String(), o.Locked.String(), o.Status, o.UpdatedAt, o.ID)
	return err
}

func (r *orderRepo) GetByID(ctx context.Context, id string) (*model.Order, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT id, user_id, account_id, market, side, type, time_in_force, price, has_stop_price, stop_price,
		 amount, filled, locked, status, link_order_id, seq, created_at, updated_at FROM orders WHERE id=$1`, id)
	return scanOrder(row)
}

func (r *orderRepo) GetByUserID(ctx context.Context, userID string) ([]model.Order, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, user_id, account_id, market, side, type, time_in_force, price, has_stop_price, stop_price,
		 amount, filled, locked, status, link_order_id, seq, created_at, updated_at
		 FROM orders WHERE user_id=$1 ORDER BY seq`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

func (r *orderRepo) GetOpenByMarket(ctx context.Context, market string) ([]model.Order, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, user_id, account_id, market, side, type, time_in_force, price, has_stop_price, stop_price,
		 amount, filled, locked, status, link_order_id, seq, created_at, updated_at
		 FROM orders WHERE market=$1 AND status IN ('OPEN','PARTIAL') ORDER BY seq`, market)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

func scanOrder(row *sql.Row) (*model.Order, error) {
	var o model.Order
	var price, stopPrice, amount, filled, locked string
	err := row.Scan(&o.ID, &o.UserID, &o.AccountID, &o.Market, &o.Side, &o.Type, &o.TimeInForce, &price,
		&o.HasStopPrice, &stopPrice, &amount, &filled, &locked, &o.Status, &o.LinkOrderID, &o.Seq,
		&o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := fillDecimals(&o, price, stopPrice, amount, filled, locked); err != nil {
		return nil, err
	}
	return &o, nil
}

func scanOrders(rows *sql.Rows) ([]model.Order, error) {
	var out []model.Order
	for rows.Next() {
		var o model.Order
		var price, stopPrice, amount, filled, locked string
		if err := rows.Scan(&o.ID, &o.UserID, &o.AccountID, &o.Market, &o.Side, &o.Type, &o.TimeInForce, &price,
			&o.HasStopPrice, &stopPrice, &amount, &filled, &locked, &o.Status, &o.LinkOrderID, &o.Seq,
			&o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		if err := fillDecimals(&o, price, stopPrice, amount, filled, locked); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func fillDecimals(o *model.Order, price, stopPrice, amount, filled, locked string) error {
	var err error
	if o.Price, err = decimalParse(price); err != nil {
		return err
	}
	if o.StopPrice, err = decimalParse(stopPrice); err != nil {
		return err
	}
	if o.Amount, err = decimalParse(amount); err != nil {
		return err
	}
	if o.Filled, err = decimalParse(filled); err != nil {
		return err
	}
	if o.Locked, err = decimalParse(locked); err != nil {
		return err
	}
	return nil
}

// ── Trades ───────────────────────────────────────────

type tradeRepo Store

func (r *tradeRepo) NextID(ctx context.Context) (string, error) { return uuid.New().String(), nil }

func (r *tradeRepo) Insert(ctx context.Context, t *model.Trade) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO trades (id, market, buy_order_id, sell_order_id, maker_order_id, taker_order_id,
		 taker_side, price, amount, fee, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		t.ID, t.Market, t.BuyOrderID, t.SellOrderID, t.MakerOrderID, t.TakerOrderID, t.TakerSide,
		t.Price.String(), t.Amount.String(), t.Fee.String(), t.CreatedAt)
	return err
}

func (r *tradeRepo) GetByID(ctx context.Context, id string) (*model.Trade, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT id, market, buy_order_id, sell_order_id, maker_order_id, taker_order_id, taker_side, price,
		 amount, fee, created_at FROM trades WHERE id=$1`, id)
	var t model.Trade
	var price, amount, fee string
	err := row.Scan(&t.ID, &t.Market, &t.BuyOrderID, &t.SellOrderID, &t.MakerOrderID, &t.TakerOrderID,
		&t.TakerSide, &price, &amount, &fee, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if t.Price, err = decimalParse(price); err != nil {
		return nil, err
	}
	if t.Amount, err = decimalParse(amount); err != nil {
		return nil, err
	}
	if t.Fee, err = decimalParse(fee); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *tradeRepo) GetByUserID(ctx context.Context, userID string) ([]model.Trade, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT t.id, t.market, t.buy_order_id, t.sell_order_id, t.maker_order_id, t.taker_order_id,
		 t.taker_side, t.price, t.amount, t.fee, t.created_at
		 FROM trades t
		 JOIN orders o ON o.id = t.buy_order_id OR o.id = t.sell_order_id
		 WHERE o.user_id = $1 ORDER BY t.created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Trade
	for rows.Next() {
		var t model.Trade
		var price, amount, fee string
		if err := rows.Scan(&t.ID, &t.Market, &t.BuyOrderID, &t.SellOrderID, &t.MakerOrderID, &t.TakerOrderID,
			&t.TakerSide, &price, &amount, &fee, &t.CreatedAt); err != nil {
			return nil, err
		}
		if t.Price, err = decimalParse(price); err != nil {
			return nil, err
		}
		if t.Amount, err = decimalParse(amount); err != nil {
			return nil, err
		}
		if t.Fee, err = decimalParse(fee); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *tradeRepo) GetByMarket(ctx context.Context, market string) ([]model.Trade, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, market, buy_order_id, sell_order_id, maker_order_id, taker_order_id, taker_side, price,
		 amount, fee, created_at FROM trades WHERE market=$1 ORDER BY created_at`, market)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Trade
	for rows.Next() {
		var t model.Trade
		var price, amount, fee string
		if err := rows.Scan(&t.ID, &t.Market, &t.BuyOrderID, &t.SellOrderID, &t.MakerOrderID, &t.TakerOrderID,
			&t.TakerSide, &price, &amount, &fee, &t.CreatedAt); err != nil {
			return nil, err
		}
		if t.Price, err = decimalParse(price); err != nil {
			return nil, err
		}
		if t.Amount, err = decimalParse(amount); err != nil {
			return nil, err
		}
		if t.Fee, err = decimalParse(fee); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ── Transactions ─────────────────────────────────────

type txRepo Store

func (r *txRepo) NextID(ctx context.Context) (string, error) { return uuid.New().String(), nil }

func (r *txRepo) Insert(ctx context.Context, t *model.Transaction) error {
	approvers, _ := json.Marshal(t.ApproverIDs)
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO transactions (id, user_id, account_id, asset, type, status, amount, address, tx_hash,
		 chain, confirmations, approver_ids, approved_at, rejected_at, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		t.ID, t.UserID, t.AccountID, t.Asset, t.Type, t.Status, t.Amount.String(), t.Address, t.TxHash,
		t.Chain, t.Confirmations, approvers, t.ApprovedAt, t.RejectedAt, t.CreatedAt)
	return err
}

func (r *txRepo) Update(ctx context.Context, t *model.Transaction) error {
	approvers, _ := json.Marshal(t.ApproverIDs)
	_, err := r.DB.ExecContext(ctx,
		`UPDATE transactions SET status=$1, tx_hash=$2, confirmations=$3, approver_ids=$4, approved_at=$5,
		 rejected_at=$6 WHERE id=$7`,
		t.Status, t.TxHash, t.Confirmations, approvers, t.ApprovedAt, t.RejectedAt, t.ID)
	return err
}

func (r *txRepo) GetByID(ctx context.Context, id string) (*model.Transaction, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT id, user_id, account_id, asset, type, status, amount, address, tx_hash, chain,
		 confirmations, approver_ids, approved_at, rejected_at, created_at FROM transactions WHERE id=$1`, id)
	return scanTx(row)
}

func (r *txRepo) GetByUserID(ctx context.Context, userID string) ([]model.Transaction, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, user_id, account_id, asset, type, status, amount, address, tx_hash, chain,
		 confirmations, approver_ids, approved_at, rejected_at, created_at
		 FROM transactions WHERE user_id=$1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTxs(rows)
}

func (r *txRepo) ListPending(ctx context.Context) ([]model.Transaction, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, user_id, account_id, asset, type, status, amount, address, tx_hash, chain,
		 confirmations, approver_ids, approved_at, rejected_at, created_at
		 FROM transactions WHERE status='PENDING' ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTxs(rows)
}

func scanTx(row *sql.Row) (*model.Transaction, error) {
	var t model.Transaction
	var amount string
	var approvers []byte
	err := row.Scan(&t.ID, &t.UserID, &t.AccountID, &t.Asset, &t.Type, &t.Status, &amount, &t.Address,
		&t.TxHash, &t.Chain, &t.Confirmations, &approvers, &t.ApprovedAt, &t.RejectedAt, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if t.Amount, err = decimalParse(amount); err != nil {
		return nil, err
	}
	_ = json.Unmarshal(approvers, &t.ApproverIDs)
	return &t, nil
}

func scanTxs(rows *sql.Rows) ([]model.Transaction, error) {
	var out []model.Transaction
	for rows.Next() {
		var t model.Transaction
		var amount string
		var approvers []byte
		if err := rows.Scan(&t.ID, &t.UserID, &t.AccountID, &t.Asset, &t.Type, &t.Status, &amount, &t.Address,
			&t.TxHash, &t.Chain, &t.Confirmations, &approvers, &t.ApprovedAt, &t.RejectedAt, &t.CreatedAt); err != nil {
			return nil, err
		}
		var err error
		if t.Amount, err = decimalParse(amount); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(approvers, &t.ApproverIDs)
		out = append(out, t)
	}
	return out, rows.Err()
}

// ── Audit logs ───────────────────────────────────────

type auditRepo Store

func (r *auditRepo) NextID(ctx context.Context) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `SELECT nextval('audit_logs_id_seq')`).Scan(&id)
	return id, err
}

func (r *auditRepo) Insert(ctx context.Context, a *model.AuditLog) error {
	meta, err := json.Marshal(a.Metadata)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx,
		`INSERT INTO audit_logs (id, actor, action, entity, metadata, created_at) VALUES ($1,$2,$3,$4,$5,$6)`,
		a.ID, a.Actor, a.Action, a.Entity, meta, a.CreatedAt)
	return err
}

func (r *auditRepo) GetRecent(ctx context.Context, limit int) ([]model.AuditLog, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, actor, action, entity, metadata, created_at FROM audit_logs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.AuditLog
	for rows.Next() {
		var a model.AuditLog
		var meta []byte
		if err := rows.Scan(&a.ID, &a.Actor, &a.Action, &a.Entity, &meta, &a.CreatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(meta, &a.Metadata)
		out = append(out, a)
	}
	return out, rows.Err()
}
