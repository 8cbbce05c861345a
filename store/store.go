package store

import (
	"context"
	"time"

	"cosmossdk.io/math"
	"github.com/google/uuid"

	"github.com/gwrxuk/FastTrading/engine/types"
)

// OrderStore persists order state transitions
type OrderStore interface {
	SaveOrder(ctx context.Context, order *types.Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (*types.Order, error)
	// GetOrderByClientID enforces per-principal client order id uniqueness
	GetOrderByClientID(ctx context.Context, principal uuid.UUID, clientID string) (*types.Order, error)
	// OpenOrders returns all non-terminal orders for a symbol, used to
	// rebuild books after a halt
	OpenOrders(ctx context.Context, symbol string) ([]*types.Order, error)
	OrdersByPrincipal(ctx context.Context, principal uuid.UUID, symbol string, limit int) ([]*types.Order, error)
}

// TradeStore persists immutable executions
type TradeStore interface {
	SaveTrade(ctx context.Context, trade *types.Trade) error
	// MaxTradeID seeds the trade id allocator at startup
	MaxTradeID(ctx context.Context) (int64, error)
	TradesBySymbol(ctx context.Context, symbol string, since time.Time, limit int) ([]*types.Trade, error)
	TradesByPrincipal(ctx context.Context, principal uuid.UUID, since time.Time, limit int) ([]*types.Trade, error)
}

// ExecutionStore commits one execution atomically: the trade row and
// the order rows it filled land together or not at all.
type ExecutionStore interface {
	SaveExecution(ctx context.Context, trade *types.Trade, orders ...*types.Order) error
}

// UserStore persists principals and their caps
type UserStore interface {
	CreateUser(ctx context.Context, user *types.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*types.User, error)
	GetUserByEmail(ctx context.Context, email string) (*types.User, error)
}

// BalanceStore persists the asset ledger. Callers serialize writes per
// principal; the store only guarantees row-level durability.
type BalanceStore interface {
	GetBalance(ctx context.Context, principal uuid.UUID, asset string) (*types.Balance, error)
	SaveBalance(ctx context.Context, balance *types.Balance) error
	BalancesByPrincipal(ctx context.Context, principal uuid.UUID) ([]*types.Balance, error)
}

// WalletStore persists external addresses and their transactions
type WalletStore interface {
	SaveWallet(ctx context.Context, wallet *types.Wallet) error
	GetWallet(ctx context.Context, id uuid.UUID) (*types.Wallet, error)
	WalletsByPrincipal(ctx context.Context, principal uuid.UUID) ([]*types.Wallet, error)
	SaveTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionsByWallet(ctx context.Context, walletID uuid.UUID, limit int) ([]*types.Transaction, error)
	// WithdrawnSince sums confirmed and pending withdrawals for the
	// daily cap check
	WithdrawnSince(ctx context.Context, principal uuid.UUID, since time.Time) (math.LegacyDec, error)
}

// Store is the full persistence surface
type Store interface {
	OrderStore
	TradeStore
	ExecutionStore
	UserStore
	BalanceStore
	WalletStore

	Ping(ctx context.Context) error
	Close() error
}
