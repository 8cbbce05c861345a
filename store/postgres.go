package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/gwrxuk/FastTrading/engine/types"
)

// Postgres is the durable Store implementation
type Postgres struct {
	db *sqlx.DB
}

// NewPostgres connects and verifies the database
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, types.ErrStoreUnavailable.Wrap(err.Error())
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &Postgres{db: db}, nil
}

// EnsureSchema creates tables if they do not exist
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	id UUID PRIMARY KEY,
	client_order_id TEXT NOT NULL DEFAULT '',
	principal UUID NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	order_type TEXT NOT NULL,
	time_in_force TEXT NOT NULL,
	price NUMERIC(36,18),
	stop_price NUMERIC(36,18),
	quantity NUMERIC(36,18) NOT NULL,
	filled_qty NUMERIC(36,18) NOT NULL,
	remaining_qty NUMERIC(36,18) NOT NULL,
	avg_fill_price NUMERIC(36,18),
	status TEXT NOT NULL,
	sequence BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS orders_client_id_idx
	ON orders (principal, client_order_id) WHERE client_order_id <> '';
CREATE INDEX IF NOT EXISTS orders_symbol_status_idx ON orders (symbol, status);
CREATE INDEX IF NOT EXISTS orders_principal_idx ON orders (principal, created_at DESC);

CREATE TABLE IF NOT EXISTS trades (
	id UUID PRIMARY KEY,
	trade_id BIGINT NOT NULL UNIQUE,
	symbol TEXT NOT NULL,
	maker_order_id UUID NOT NULL,
	taker_order_id UUID NOT NULL,
	maker_principal UUID NOT NULL,
	taker_principal UUID NOT NULL,
	side TEXT NOT NULL,
	price NUMERIC(36,18) NOT NULL,
	quantity NUMERIC(36,18) NOT NULL,
	quote_quantity NUMERIC(36,18) NOT NULL,
	commission NUMERIC(36,18) NOT NULL,
	commission_asset TEXT NOT NULL,
	executed_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS trades_symbol_time_idx ON trades (symbol, executed_at);
CREATE INDEX IF NOT EXISTS trades_maker_idx ON trades (maker_principal, executed_at);
CREATE INDEX IF NOT EXISTS trades_taker_idx ON trades (taker_principal, executed_at);

CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	hashed_password TEXT NOT NULL,
	is_verified BOOLEAN NOT NULL DEFAULT FALSE,
	daily_trade_limit NUMERIC(36,18) NOT NULL,
	daily_withdrawal_limit NUMERIC(36,18) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS balances (
	principal UUID NOT NULL,
	asset TEXT NOT NULL,
	available NUMERIC(36,18) NOT NULL,
	locked NUMERIC(36,18) NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (principal, asset)
);

CREATE TABLE IF NOT EXISTS wallets (
	id UUID PRIMARY KEY,
	principal UUID NOT NULL,
	address TEXT NOT NULL,
	chain TEXT NOT NULL,
	currency TEXT NOT NULL,
	verified BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS wallets_principal_idx ON wallets (principal);

CREATE TABLE IF NOT EXISTS transactions (
	id UUID PRIMARY KEY,
	wallet_id UUID NOT NULL,
	principal UUID NOT NULL,
	tx_type TEXT NOT NULL,
	status TEXT NOT NULL,
	from_address TEXT NOT NULL DEFAULT '',
	to_address TEXT NOT NULL DEFAULT '',
	currency TEXT NOT NULL,
	amount NUMERIC(36,18) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS transactions_principal_idx ON transactions (principal, created_at);
`

type orderRow struct {
	ID            uuid.UUID      `db:"id"`
	ClientOrderID string         `db:"client_order_id"`
	Principal     uuid.UUID      `db:"principal"`
	Symbol        string         `db:"symbol"`
	Side          string         `db:"side"`
	OrderType     string         `db:"order_type"`
	TimeInForce   string         `db:"time_in_force"`
	Price         sql.NullString `db:"price"`
	StopPrice     sql.NullString `db:"stop_price"`
	Quantity      string         `db:"quantity"`
	FilledQty     string         `db:"filled_qty"`
	RemainingQty  string         `db:"remaining_qty"`
	AvgFillPrice  sql.NullString `db:"avg_fill_price"`
	Status        string         `db:"status"`
	Sequence      uint64         `db:"sequence"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
	ExpiresAt     *time.Time     `db:"expires_at"`
}

func toOrderRow(o *types.Order) *orderRow {
	return &orderRow{
		ID:            o.ID,
		ClientOrderID: o.ClientOrderID,
		Principal:     o.Principal,
		Symbol:        o.Symbol,
		Side:          o.Side.String(),
		OrderType:     o.Type.String(),
		TimeInForce:   o.TimeInForce.String(),
		Price:         nullDec(o.Price),
		StopPrice:     nullDec(o.StopPrice),
		Quantity:      o.Quantity.String(),
		FilledQty:     o.FilledQty.String(),
		RemainingQty:  o.RemainingQty.String(),
		AvgFillPrice:  nullDec(o.AvgFillPrice),
		Status:        o.Status.String(),
		Sequence:      o.Sequence,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
		ExpiresAt:     o.ExpiresAt,
	}
}

func (r *orderRow) toOrder() (*types.Order, error) {
	qty, err := math.LegacyNewDecFromStr(r.Quantity)
	if err != nil {
		return nil, err
	}
	filled, err := math.LegacyNewDecFromStr(r.FilledQty)
	if err != nil {
		return nil, err
	}
	remaining, err := math.LegacyNewDecFromStr(r.RemainingQty)
	if err != nil {
		return nil, err
	}
	o := &types.Order{
		ID:            r.ID,
		ClientOrderID: r.ClientOrderID,
		Principal:     r.Principal,
		Symbol:        r.Symbol,
		Side:          types.SideFromString(r.Side),
		Type:          types.OrderTypeFromString(r.OrderType),
		TimeInForce:   types.TimeInForceFromString(r.TimeInForce),
		Price:         decFromNull(r.Price),
		StopPrice:     decFromNull(r.StopPrice),
		Quantity:      qty,
		FilledQty:     filled,
		RemainingQty:  remaining,
		AvgFillPrice:  decFromNull(r.AvgFillPrice),
		Status:        types.OrderStatusFromString(r.Status),
		Sequence:      r.Sequence,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		ExpiresAt:     r.ExpiresAt,
	}
	return o, nil
}

func nullDec(d math.LegacyDec) sql.NullString {
	if d.IsNil() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func decFromNull(s sql.NullString) math.LegacyDec {
	if !s.Valid {
		return math.LegacyDec{}
	}
	d, err := math.LegacyNewDecFromStr(s.String)
	if err != nil {
		return math.LegacyDec{}
	}
	return d
}

const orderUpsert = `
INSERT INTO orders (id, client_order_id, principal, symbol, side, order_type, time_in_force,
	price, stop_price, quantity, filled_qty, remaining_qty, avg_fill_price, status, sequence,
	created_at, updated_at, expires_at)
VALUES (:id, :client_order_id, :principal, :symbol, :side, :order_type, :time_in_force,
	:price, :stop_price, :quantity, :filled_qty, :remaining_qty, :avg_fill_price, :status, :sequence,
	:created_at, :updated_at, :expires_at)
ON CONFLICT (id) DO UPDATE SET
	filled_qty = EXCLUDED.filled_qty,
	remaining_qty = EXCLUDED.remaining_qty,
	avg_fill_price = EXCLUDED.avg_fill_price,
	status = EXCLUDED.status,
	sequence = EXCLUDED.sequence,
	updated_at = EXCLUDED.updated_at`

func (p *Postgres) SaveOrder(ctx context.Context, order *types.Order) error {
	_, err := p.db.NamedExecContext(ctx, orderUpsert, toOrderRow(order))
	if err != nil {
		return types.ErrStoreUnavailable.Wrap(err.Error())
	}
	return nil
}

func (p *Postgres) GetOrder(ctx context.Context, id uuid.UUID) (*types.Order, error) {
	var row orderRow
	err := p.db.GetContext(ctx, &row, `SELECT * FROM orders WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrOrderNotFound
	}
	if err != nil {
		return nil, types.ErrStoreUnavailable.Wrap(err.Error())
	}
	return row.toOrder()
}

func (p *Postgres) GetOrderByClientID(ctx context.Context, principal uuid.UUID, clientID string) (*types.Order, error) {
	var row orderRow
	err := p.db.GetContext(ctx, &row,
		`SELECT * FROM orders WHERE principal = $1 AND client_order_id = $2`, principal, clientID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrOrderNotFound
	}
	if err != nil {
		return nil, types.ErrStoreUnavailable.Wrap(err.Error())
	}
	return row.toOrder()
}

func (p *Postgres) OpenOrders(ctx context.Context, symbol string) ([]*types.Order, error) {
	var rows []orderRow
	err := p.db.SelectContext(ctx, &rows,
		`SELECT * FROM orders WHERE symbol = $1 AND status IN ('pending','open','partial') ORDER BY sequence`, symbol)
	if err != nil {
		return nil, types.ErrStoreUnavailable.Wrap(err.Error())
	}
	return rowsToOrders(rows)
}

func (p *Postgres) OrdersByPrincipal(ctx context.Context, principal uuid.UUID, symbol string, limit int) ([]*types.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []orderRow
	var err error
	if symbol == "" {
		err = p.db.SelectContext(ctx, &rows,
			`SELECT * FROM orders WHERE principal = $1 ORDER BY created_at DESC LIMIT $2`, principal, limit)
	} else {
		err = p.db.SelectContext(ctx, &rows,
			`SELECT * FROM orders WHERE principal = $1 AND symbol = $2 ORDER BY created_at DESC LIMIT $3`,
			principal, symbol, limit)
	}
	if err != nil {
		return nil, types.ErrStoreUnavailable.Wrap(err.Error())
	}
	return rowsToOrders(rows)
}

func rowsToOrders(rows []orderRow) ([]*types.Order, error) {
	out := make([]*types.Order, 0, len(rows))
	for i := range rows {
		o, err := rows[i].toOrder()
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

type tradeRow struct {
	ID              uuid.UUID `db:"id"`
	TradeID         int64     `db:"trade_id"`
	Symbol          string    `db:"symbol"`
	MakerOrderID    uuid.UUID `db:"maker_order_id"`
	TakerOrderID    uuid.UUID `db:"taker_order_id"`
	MakerPrincipal  uuid.UUID `db:"maker_principal"`
	TakerPrincipal  uuid.UUID `db:"taker_principal"`
	Side            string    `db:"side"`
	Price           string    `db:"price"`
	Quantity        string    `db:"quantity"`
	QuoteQuantity   string    `db:"quote_quantity"`
	Commission      string    `db:"commission"`
	CommissionAsset string    `db:"commission_asset"`
	ExecutedAt      time.Time `db:"executed_at"`
}

func (r *tradeRow) toTrade() (*types.Trade, error) {
	price, err := math.LegacyNewDecFromStr(r.Price)
	if err != nil {
		return nil, err
	}
	qty, err := math.LegacyNewDecFromStr(r.Quantity)
	if err != nil {
		return nil, err
	}
	quoteQty, err := math.LegacyNewDecFromStr(r.QuoteQuantity)
	if err != nil {
		return nil, err
	}
	commission, err := math.LegacyNewDecFromStr(r.Commission)
	if err != nil {
		return nil, err
	}
	return &types.Trade{
		ID:              r.ID,
		TradeID:         r.TradeID,
		Symbol:          r.Symbol,
		MakerOrderID:    r.MakerOrderID,
		TakerOrderID:    r.TakerOrderID,
		MakerPrincipal:  r.MakerPrincipal,
		TakerPrincipal:  r.TakerPrincipal,
		Side:            types.SideFromString(r.Side),
		Price:           price,
		Quantity:        qty,
		QuoteQuantity:   quoteQty,
		Commission:      commission,
		CommissionAsset: r.CommissionAsset,
		ExecutedAt:      r.ExecutedAt,
	}, nil
}

const tradeInsert = `
INSERT INTO trades (id, trade_id, symbol, maker_order_id, taker_order_id, maker_principal,
	taker_principal, side, price, quantity, quote_quantity, commission, commission_asset, executed_at)
VALUES (:id, :trade_id, :symbol, :maker_order_id, :taker_order_id, :maker_principal,
	:taker_principal, :side, :price, :quantity, :quote_quantity, :commission, :commission_asset, :executed_at)`

func toTradeRow(trade *types.Trade) *tradeRow {
	return &tradeRow{
		ID:              trade.ID,
		TradeID:         trade.TradeID,
		Symbol:          trade.Symbol,
		MakerOrderID:    trade.MakerOrderID,
		TakerOrderID:    trade.TakerOrderID,
		MakerPrincipal:  trade.MakerPrincipal,
		TakerPrincipal:  trade.TakerPrincipal,
		Side:            trade.Side.String(),
		Price:           trade.Price.String(),
		Quantity:        trade.Quantity.String(),
		QuoteQuantity:   trade.QuoteQuantity.String(),
		Commission:      trade.Commission.String(),
		CommissionAsset: trade.CommissionAsset,
		ExecutedAt:      trade.ExecutedAt,
	}
}

func (p *Postgres) SaveTrade(ctx context.Context, trade *types.Trade) error {
	_, err := p.db.NamedExecContext(ctx, tradeInsert, toTradeRow(trade))
	if err != nil {
		return types.ErrStoreUnavailable.Wrap(err.Error())
	}
	return nil
}

// SaveExecution inserts the trade and upserts its order rows in one
// transaction. A trade row never lands without the order state that
// produced it.
func (p *Postgres) SaveExecution(ctx context.Context, trade *types.Trade, orders ...*types.Order) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return types.ErrStoreUnavailable.Wrap(err.Error())
	}
	defer tx.Rollback()

	if _, err := tx.NamedExecContext(ctx, tradeInsert, toTradeRow(trade)); err != nil {
		return types.ErrStoreUnavailable.Wrap(err.Error())
	}
	for _, o := range orders {
		if _, err := tx.NamedExecContext(ctx, orderUpsert, toOrderRow(o)); err != nil {
			return types.ErrStoreUnavailable.Wrap(err.Error())
		}
	}
	if err := tx.Commit(); err != nil {
		return types.ErrStoreUnavailable.Wrap(err.Error())
	}
	return nil
}

func (p *Postgres) MaxTradeID(ctx context.Context) (int64, error) {
	var max sql.NullInt64
	if err := p.db.GetContext(ctx, &max, `SELECT MAX(trade_id) FROM trades`); err != nil {
		return 0, types.ErrStoreUnavailable.Wrap(err.Error())
	}
	return max.Int64, nil
}

func (p *Postgres) TradesBySymbol(ctx context.Context, symbol string, since time.Time, limit int) ([]*types.Trade, error) {
	if limit <= 0 {
		limit = 500
	}
	var rows []tradeRow
	err := p.db.SelectContext(ctx, &rows, `
SELECT * FROM (
	SELECT * FROM trades WHERE symbol = $1 AND executed_at >= $2 ORDER BY trade_id DESC LIMIT $3
) t ORDER BY trade_id`, symbol, since, limit)
	if err != nil {
		return nil, types.ErrStoreUnavailable.Wrap(err.Error())
	}
	return rowsToTrades(rows)
}

func (p *Postgres) TradesByPrincipal(ctx context.Context, principal uuid.UUID, since time.Time, limit int) ([]*types.Trade, error) {
	if limit <= 0 {
		limit = 500
	}
	var rows []tradeRow
	err := p.db.SelectContext(ctx, &rows, `
SELECT * FROM (
	SELECT * FROM trades WHERE (maker_principal = $1 OR taker_principal = $1) AND executed_at >= $2
	ORDER BY trade_id DESC LIMIT $3
) t ORDER BY trade_id`, principal, since, limit)
	if err != nil {
		return nil, types.ErrStoreUnavailable.Wrap(err.Error())
	}
	return rowsToTrades(rows)
}

func rowsToTrades(rows []tradeRow) ([]*types.Trade, error) {
	out := make([]*types.Trade, 0, len(rows))
	for i := range rows {
		t, err := rows[i].toTrade()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

type userRow struct {
	ID                   uuid.UUID `db:"id"`
	Email                string    `db:"email"`
	HashedPassword       string    `db:"hashed_password"`
	IsVerified           bool      `db:"is_verified"`
	DailyTradeLimit      string    `db:"daily_trade_limit"`
	DailyWithdrawalLimit string    `db:"daily_withdrawal_limit"`
	CreatedAt            time.Time `db:"created_at"`
}

func (r *userRow) toUser() (*types.User, error) {
	tradeLimit, err := math.LegacyNewDecFromStr(r.DailyTradeLimit)
	if err != nil {
		return nil, err
	}
	withdrawalLimit, err := math.LegacyNewDecFromStr(r.DailyWithdrawalLimit)
	if err != nil {
		return nil, err
	}
	return &types.User{
		ID:                   r.ID,
		Email:                r.Email,
		HashedPassword:       r.HashedPassword,
		IsVerified:           r.IsVerified,
		DailyTradeLimit:      tradeLimit,
		DailyWithdrawalLimit: withdrawalLimit,
		CreatedAt:            r.CreatedAt,
	}, nil
}

func (p *Postgres) CreateUser(ctx context.Context, user *types.User) error {
	_, err := p.db.ExecContext(ctx, `
INSERT INTO users (id, email, hashed_password, is_verified, daily_trade_limit, daily_withdrawal_limit, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		user.ID, user.Email, user.HashedPassword, user.IsVerified,
		user.DailyTradeLimit.String(), user.DailyWithdrawalLimit.String(), user.CreatedAt)
	if err != nil {
		return types.ErrStoreUnavailable.Wrap(err.Error())
	}
	return nil
}

func (p *Postgres) GetUser(ctx context.Context, id uuid.UUID) (*types.User, error) {
	var row userRow
	err := p.db.GetContext(ctx, &row, `SELECT * FROM users WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound.Wrap("user")
	}
	if err != nil {
		return nil, types.ErrStoreUnavailable.Wrap(err.Error())
	}
	return row.toUser()
}

func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (*types.User, error) {
	var row userRow
	err := p.db.GetContext(ctx, &row, `SELECT * FROM users WHERE LOWER(email) = LOWER($1)`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound.Wrap("user")
	}
	if err != nil {
		return nil, types.ErrStoreUnavailable.Wrap(err.Error())
	}
	return row.toUser()
}

type balanceRow struct {
	Principal uuid.UUID `db:"principal"`
	Asset     string    `db:"asset"`
	Available string    `db:"available"`
	Locked    string    `db:"locked"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r *balanceRow) toBalance() (*types.Balance, error) {
	available, err := math.LegacyNewDecFromStr(r.Available)
	if err != nil {
		return nil, err
	}
	locked, err := math.LegacyNewDecFromStr(r.Locked)
	if err != nil {
		return nil, err
	}
	return &types.Balance{
		Principal: r.Principal,
		Asset:     r.Asset,
		Available: available,
		Locked:    locked,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

func (p *Postgres) GetBalance(ctx context.Context, principal uuid.UUID, asset string) (*types.Balance, error) {
	var row balanceRow
	err := p.db.GetContext(ctx, &row,
		`SELECT * FROM balances WHERE principal = $1 AND asset = $2`, principal, asset)
	if errors.Is(err, sql.ErrNoRows) {
		return &types.Balance{
			Principal: principal,
			Asset:     asset,
			Available: math.LegacyZeroDec(),
			Locked:    math.LegacyZeroDec(),
		}, nil
	}
	if err != nil {
		return nil, types.ErrStoreUnavailable.Wrap(err.Error())
	}
	return row.toBalance()
}

func (p *Postgres) SaveBalance(ctx context.Context, balance *types.Balance) error {
	_, err := p.db.ExecContext(ctx, `
INSERT INTO balances (principal, asset, available, locked, updated_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (principal, asset) DO UPDATE SET
	available = EXCLUDED.available, locked = EXCLUDED.locked, updated_at = NOW()`,
		balance.Principal, balance.Asset, balance.Available.String(), balance.Locked.String())
	if err != nil {
		return types.ErrStoreUnavailable.Wrap(err.Error())
	}
	return nil
}

func (p *Postgres) BalancesByPrincipal(ctx context.Context, principal uuid.UUID) ([]*types.Balance, error) {
	var rows []balanceRow
	err := p.db.SelectContext(ctx, &rows,
		`SELECT * FROM balances WHERE principal = $1 ORDER BY asset`, principal)
	if err != nil {
		return nil, types.ErrStoreUnavailable.Wrap(err.Error())
	}
	out := make([]*types.Balance, 0, len(rows))
	for i := range rows {
		b, err := rows[i].toBalance()
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (p *Postgres) SaveWallet(ctx context.Context, wallet *types.Wallet) error {
	_, err := p.db.ExecContext(ctx, `
INSERT INTO wallets (id, principal, address, chain, currency, verified, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET verified = EXCLUDED.verified`,
		wallet.ID, wallet.Principal, wallet.Address, wallet.Chain, wallet.Currency, wallet.Verified, wallet.CreatedAt)
	if err != nil {
		return types.ErrStoreUnavailable.Wrap(err.Error())
	}
	return nil
}

type walletRow struct {
	ID        uuid.UUID `db:"id"`
	Principal uuid.UUID `db:"principal"`
	Address   string    `db:"address"`
	Chain     string    `db:"chain"`
	Currency  string    `db:"currency"`
	Verified  bool      `db:"verified"`
	CreatedAt time.Time `db:"created_at"`
}

func (r *walletRow) toWallet() *types.Wallet {
	return &types.Wallet{
		ID:        r.ID,
		Principal: r.Principal,
		Address:   r.Address,
		Chain:     r.Chain,
		Currency:  r.Currency,
		Verified:  r.Verified,
		CreatedAt: r.CreatedAt,
	}
}

func (p *Postgres) GetWallet(ctx context.Context, id uuid.UUID) (*types.Wallet, error) {
	var row walletRow
	err := p.db.GetContext(ctx, &row, `SELECT * FROM wallets WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrWalletNotFound
	}
	if err != nil {
		return nil, types.ErrStoreUnavailable.Wrap(err.Error())
	}
	return row.toWallet(), nil
}

func (p *Postgres) WalletsByPrincipal(ctx context.Context, principal uuid.UUID) ([]*types.Wallet, error) {
	var rows []walletRow
	err := p.db.SelectContext(ctx, &rows,
		`SELECT * FROM wallets WHERE principal = $1 ORDER BY created_at`, principal)
	if err != nil {
		return nil, types.ErrStoreUnavailable.Wrap(err.Error())
	}
	out := make([]*types.Wallet, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toWallet())
	}
	return out, nil
}

func (p *Postgres) SaveTransaction(ctx context.Context, tx *types.Transaction) error {
	_, err := p.db.ExecContext(ctx, `
INSERT INTO transactions (id, wallet_id, principal, tx_type, status, from_address, to_address, currency, amount, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status`,
		tx.ID, tx.WalletID, tx.Principal, tx.Type, tx.Status.String(),
		tx.FromAddress, tx.ToAddress, tx.Currency, tx.Amount.String(), tx.CreatedAt)
	if err != nil {
		return types.ErrStoreUnavailable.Wrap(err.Error())
	}
	return nil
}

type transactionRow struct {
	ID          uuid.UUID `db:"id"`
	WalletID    uuid.UUID `db:"wallet_id"`
	Principal   uuid.UUID `db:"principal"`
	TxType      string    `db:"tx_type"`
	Status      string    `db:"status"`
	FromAddress string    `db:"from_address"`
	ToAddress   string    `db:"to_address"`
	Currency    string    `db:"currency"`
	Amount      string    `db:"amount"`
	CreatedAt   time.Time `db:"created_at"`
}

func (p *Postgres) TransactionsByWallet(ctx context.Context, walletID uuid.UUID, limit int) ([]*types.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []transactionRow
	err := p.db.SelectContext(ctx, &rows,
		`SELECT * FROM transactions WHERE wallet_id = $1 ORDER BY created_at DESC LIMIT $2`, walletID, limit)
	if err != nil {
		return nil, types.ErrStoreUnavailable.Wrap(err.Error())
	}
	out := make([]*types.Transaction, 0, len(rows))
	for i := range rows {
		r := rows[i]
		amount, err := math.LegacyNewDecFromStr(r.Amount)
		if err != nil {
			return nil, err
		}
		status := types.TransactionPending
		switch r.Status {
		case "confirmed":
			status = types.TransactionConfirmed
		case "failed":
			status = types.TransactionFailed
		}
		out = append(out, &types.Transaction{
			ID:          r.ID,
			WalletID:    r.WalletID,
			Principal:   r.Principal,
			Type:        r.TxType,
			Status:      status,
			FromAddress: r.FromAddress,
			ToAddress:   r.ToAddress,
			Currency:    r.Currency,
			Amount:      amount,
			CreatedAt:   r.CreatedAt,
		})
	}
	return out, nil
}

func (p *Postgres) WithdrawnSince(ctx context.Context, principal uuid.UUID, since time.Time) (math.LegacyDec, error) {
	var total sql.NullString
	err := p.db.GetContext(ctx, &total, `
SELECT SUM(amount) FROM transactions
WHERE principal = $1 AND tx_type = 'withdrawal' AND status <> 'failed' AND created_at >= $2`,
		principal, since)
	if err != nil {
		return math.LegacyDec{}, types.ErrStoreUnavailable.Wrap(err.Error())
	}
	if !total.Valid {
		return math.LegacyZeroDec(), nil
	}
	return math.LegacyNewDecFromStr(total.String)
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
