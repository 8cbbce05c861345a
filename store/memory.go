package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"cosmossdk.io/math"
	"github.com/google/uuid"

	"github.com/gwrxuk/FastTrading/engine/types"
)

// Memory is an in-process Store used in tests and single-node dev runs
type Memory struct {
	mu           sync.RWMutex
	orders       map[uuid.UUID]*types.Order
	trades       []*types.Trade
	users        map[uuid.UUID]*types.User
	usersByEmail map[string]uuid.UUID
	balances     map[string]*types.Balance // principal|asset
	wallets      map[uuid.UUID]*types.Wallet
	transactions []*types.Transaction
}

// NewMemory creates an empty in-process store
func NewMemory() *Memory {
	return &Memory{
		orders:       make(map[uuid.UUID]*types.Order),
		users:        make(map[uuid.UUID]*types.User),
		usersByEmail: make(map[string]uuid.UUID),
		balances:     make(map[string]*types.Balance),
		wallets:      make(map[uuid.UUID]*types.Wallet),
	}
}

func balanceKey(principal uuid.UUID, asset string) string {
	return principal.String() + "|" + asset
}

func (m *Memory) SaveOrder(_ context.Context, order *types.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *order
	m.orders[order.ID] = &cp
	return nil
}

func (m *Memory) GetOrder(_ context.Context, id uuid.UUID) (*types.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, types.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *Memory) GetOrderByClientID(_ context.Context, principal uuid.UUID, clientID string) (*types.Order, error) {
	if clientID == "" {
		return nil, types.ErrOrderNotFound
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.orders {
		if o.Principal == principal && o.ClientOrderID == clientID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, types.ErrOrderNotFound
}

func (m *Memory) OpenOrders(_ context.Context, symbol string) ([]*types.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.Order
	for _, o := range m.orders {
		if o.Symbol == symbol && o.IsActive() {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (m *Memory) OrdersByPrincipal(_ context.Context, principal uuid.UUID, symbol string, limit int) ([]*types.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.Order
	for _, o := range m.orders {
		if o.Principal != principal {
			continue
		}
		if symbol != "" && o.Symbol != symbol {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) SaveTrade(_ context.Context, trade *types.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *trade
	m.trades = append(m.trades, &cp)
	return nil
}

// SaveExecution writes the trade and its order rows in one critical
// section so readers never observe a trade without its order state.
func (m *Memory) SaveExecution(_ context.Context, trade *types.Trade, orders ...*types.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tc := *trade
	m.trades = append(m.trades, &tc)
	for _, o := range orders {
		cp := *o
		m.orders[o.ID] = &cp
	}
	return nil
}

func (m *Memory) MaxTradeID(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var max int64
	for _, t := range m.trades {
		if t.TradeID > max {
			max = t.TradeID
		}
	}
	return max, nil
}

func (m *Memory) TradesBySymbol(_ context.Context, symbol string, since time.Time, limit int) ([]*types.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filterTrades(m.trades, since, limit, func(t *types.Trade) bool {
		return t.Symbol == symbol
	}), nil
}

func (m *Memory) TradesByPrincipal(_ context.Context, principal uuid.UUID, since time.Time, limit int) ([]*types.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filterTrades(m.trades, since, limit, func(t *types.Trade) bool {
		return t.MakerPrincipal == principal || t.TakerPrincipal == principal
	}), nil
}

func filterTrades(trades []*types.Trade, since time.Time, limit int, match func(*types.Trade) bool) []*types.Trade {
	var out []*types.Trade
	for _, t := range trades {
		if !match(t) {
			continue
		}
		if !since.IsZero() && t.ExecutedAt.Before(since) {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TradeID < out[j].TradeID })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func (m *Memory) CreateUser(_ context.Context, user *types.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	email := strings.ToLower(user.Email)
	if _, exists := m.usersByEmail[email]; exists {
		return types.ErrInvalidCredentials.Wrap("email already registered")
	}
	cp := *user
	m.users[user.ID] = &cp
	m.usersByEmail[email] = user.ID
	return nil
}

func (m *Memory) GetUser(_ context.Context, id uuid.UUID) (*types.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, types.ErrNotFound.Wrap("user")
	}
	cp := *u
	return &cp, nil
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (*types.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.usersByEmail[strings.ToLower(email)]
	if !ok {
		return nil, types.ErrNotFound.Wrap("user")
	}
	cp := *m.users[id]
	return &cp, nil
}

func (m *Memory) GetBalance(_ context.Context, principal uuid.UUID, asset string) (*types.Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.balances[balanceKey(principal, asset)]
	if !ok {
		return &types.Balance{
			Principal: principal,
			Asset:     asset,
			Available: math.LegacyZeroDec(),
			Locked:    math.LegacyZeroDec(),
		}, nil
	}
	cp := *b
	return &cp, nil
}

func (m *Memory) SaveBalance(_ context.Context, balance *types.Balance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *balance
	cp.UpdatedAt = time.Now().UTC()
	m.balances[balanceKey(balance.Principal, balance.Asset)] = &cp
	return nil
}

func (m *Memory) BalancesByPrincipal(_ context.Context, principal uuid.UUID) ([]*types.Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.Balance
	for _, b := range m.balances {
		if b.Principal == principal {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out, nil
}

func (m *Memory) SaveWallet(_ context.Context, wallet *types.Wallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *wallet
	m.wallets[wallet.ID] = &cp
	return nil
}

func (m *Memory) GetWallet(_ context.Context, id uuid.UUID) (*types.Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.wallets[id]
	if !ok {
		return nil, types.ErrWalletNotFound
	}
	cp := *w
	return &cp, nil
}

func (m *Memory) WalletsByPrincipal(_ context.Context, principal uuid.UUID) ([]*types.Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.Wallet
	for _, w := range m.wallets {
		if w.Principal == principal {
			cp := *w
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) SaveTransaction(_ context.Context, tx *types.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *tx
	m.transactions = append(m.transactions, &cp)
	return nil
}

func (m *Memory) TransactionsByWallet(_ context.Context, walletID uuid.UUID, limit int) ([]*types.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.Transaction
	for _, tx := range m.transactions {
		if tx.WalletID == walletID {
			cp := *tx
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) WithdrawnSince(_ context.Context, principal uuid.UUID, since time.Time) (math.LegacyDec, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := math.LegacyZeroDec()
	for _, tx := range m.transactions {
		if tx.Principal != principal || tx.Type != "withdrawal" {
			continue
		}
		if tx.Status == types.TransactionFailed {
			continue
		}
		if tx.CreatedAt.Before(since) {
			continue
		}
		total = total.Add(tx.Amount)
	}
	return total, nil
}

func (m *Memory) Ping(_ context.Context) error { return nil }
func (m *Memory) Close() error                 { return nil }
