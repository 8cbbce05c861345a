package wallet

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"cosmossdk.io/log"
	"cosmossdk.io/math"
	"github.com/google/uuid"

	"github.com/gwrxuk/FastTrading/engine/types"
	"github.com/gwrxuk/FastTrading/store"
)

// nonceTTL bounds how long a sign-message challenge stays valid
const nonceTTL = 10 * time.Minute

type challenge struct {
	principal uuid.UUID
	address   string
	expiresAt time.Time
}

// Service manages external wallets: address binding via signed
// challenge, deposits, and capped withdrawals.
type Service struct {
	store  store.Store
	gate   *Gate
	logger log.Logger

	mu     sync.Mutex
	nonces map[string]*challenge
}

// NewService creates a wallet service
func NewService(st store.Store, gate *Gate, logger log.Logger) *Service {
	return &Service{
		store:  st,
		gate:   gate,
		logger: logger.With("component", "wallet_service"),
		nonces: make(map[string]*challenge),
	}
}

// BindRequest starts address binding: registers the wallet unverified
// and returns the message the owner must sign.
func (s *Service) BindRequest(ctx context.Context, principal uuid.UUID, address, chain, currency string) (*types.Wallet, string, error) {
	address = strings.ToLower(address)
	if !validAddress(address) {
		return nil, "", types.ErrInvalidOrder.Wrap("malformed address")
	}

	w := &types.Wallet{
		ID:        uuid.New(),
		Principal: principal,
		Address:   address,
		Chain:     chain,
		Currency:  currency,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.SaveWallet(ctx, w); err != nil {
		return nil, "", err
	}

	nonce := uuid.NewString()
	s.mu.Lock()
	s.nonces[nonce] = &challenge{
		principal: principal,
		address:   address,
		expiresAt: time.Now().Add(nonceTTL),
	}
	s.mu.Unlock()

	message := fmt.Sprintf("Sign this message to verify wallet ownership: %s", nonce)
	return w, message, nil
}

// BindVerify completes binding: the signature must recover the bound
// address and the nonce must be live. Nonces are single use.
func (s *Service) BindVerify(ctx context.Context, principal uuid.UUID, walletID uuid.UUID, nonce, signature string) (*types.Wallet, error) {
	w, err := s.store.GetWallet(ctx, walletID)
	if err != nil {
		return nil, err
	}
	if w.Principal != principal {
		return nil, types.ErrUnauthorized.Wrap("wallet belongs to another principal")
	}

	s.mu.Lock()
	ch, ok := s.nonces[nonce]
	if ok {
		delete(s.nonces, nonce)
	}
	s.mu.Unlock()

	if !ok || time.Now().After(ch.expiresAt) || ch.principal != principal || ch.address != w.Address {
		return nil, types.ErrNonceExpired
	}

	message := fmt.Sprintf("Sign this message to verify wallet ownership: %s", nonce)
	recovered, err := RecoverAddress(message, signature)
	if err != nil {
		return nil, types.ErrInvalidSignature.Wrap(err.Error())
	}
	if !strings.EqualFold(recovered, w.Address) {
		return nil, types.ErrInvalidSignature.Wrapf("signature recovers %s", recovered)
	}

	w.Verified = true
	if err := s.store.SaveWallet(ctx, w); err != nil {
		return nil, err
	}
	s.logger.Info("wallet verified", "wallet_id", w.ID, "address", w.Address)
	return w, nil
}

// Withdraw debits available funds to an external address, subject to
// the principal's daily cap. The transaction is recorded pending;
// chain submission happens elsewhere.
func (s *Service) Withdraw(ctx context.Context, principal uuid.UUID, walletID uuid.UUID, amount math.LegacyDec) (*types.Transaction, error) {
	if !amount.IsPositive() {
		return nil, types.ErrInvalidOrder.Wrap("withdrawal amount must be positive")
	}

	w, err := s.store.GetWallet(ctx, walletID)
	if err != nil {
		return nil, err
	}
	if w.Principal != principal {
		return nil, types.ErrUnauthorized.Wrap("wallet belongs to another principal")
	}
	if !w.Verified {
		return nil, types.ErrUnauthorized.Wrap("wallet not verified")
	}

	user, err := s.store.GetUser(ctx, principal)
	if err != nil {
		return nil, err
	}
	dayStart := time.Now().UTC().Truncate(24 * time.Hour)
	withdrawn, err := s.store.WithdrawnSince(ctx, principal, dayStart)
	if err != nil {
		return nil, err
	}
	if withdrawn.Add(amount).GT(user.DailyWithdrawalLimit) {
		return nil, types.ErrDailyLimitExceeded.Wrapf("daily withdrawal limit %s", user.DailyWithdrawalLimit)
	}

	b, err := s.store.GetBalance(ctx, principal, w.Currency)
	if err != nil {
		return nil, err
	}
	if b.Available.LT(amount) {
		return nil, types.ErrInsufficientBalance.Wrapf("need %s %s, have %s", amount, w.Currency, b.Available)
	}
	b.Available = b.Available.Sub(amount)
	if err := s.store.SaveBalance(ctx, b); err != nil {
		return nil, err
	}

	tx := &types.Transaction{
		ID:        uuid.New(),
		WalletID:  w.ID,
		Principal: principal,
		Type:      "withdrawal",
		Status:    types.TransactionPending,
		ToAddress: w.Address,
		Currency:  w.Currency,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.SaveTransaction(ctx, tx); err != nil {
		return nil, err
	}
	s.logger.Info("withdrawal requested",
		"principal", principal, "wallet_id", w.ID, "amount", amount.String(), "currency", w.Currency)
	return tx, nil
}

// CheckDailyTradeCap rejects an admission that would push the
// principal's quote turnover past their daily limit.
func (s *Service) CheckDailyTradeCap(ctx context.Context, principal uuid.UUID, orderValue math.LegacyDec) error {
	user, err := s.store.GetUser(ctx, principal)
	if err != nil {
		return err
	}
	dayStart := time.Now().UTC().Truncate(24 * time.Hour)
	trades, err := s.store.TradesByPrincipal(ctx, principal, dayStart, 0)
	if err != nil {
		return err
	}
	turnover := math.LegacyZeroDec()
	for _, t := range trades {
		turnover = turnover.Add(t.QuoteQuantity)
	}
	if !orderValue.IsNil() && turnover.Add(orderValue).GT(user.DailyTradeLimit) {
		return types.ErrDailyLimitExceeded.Wrapf("daily trade limit %s", user.DailyTradeLimit)
	}
	return nil
}

func validAddress(addr string) bool {
	if !strings.HasPrefix(addr, "0x") || len(addr) != 42 {
		return false
	}
	for _, c := range addr[2:] {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
