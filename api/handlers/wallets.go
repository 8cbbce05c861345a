package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/gwrxuk/FastTrading/api/middleware"
	"github.com/gwrxuk/FastTrading/engine/types"
	"github.com/gwrxuk/FastTrading/store"
	"github.com/gwrxuk/FastTrading/wallet"
)

// WalletHandler serves wallet binding, balances, and withdrawals
type WalletHandler struct {
	wallets  *wallet.Service
	store    store.WalletStore
	balances store.BalanceStore
}

func NewWalletHandler(svc *wallet.Service, walletStore store.WalletStore, balances store.BalanceStore) *WalletHandler {
	return &WalletHandler{wallets: svc, store: walletStore, balances: balances}
}

// WalletView is the wire representation of a bound wallet
type WalletView struct {
	ID        uuid.UUID `json:"id"`
	Address   string    `json:"address"`
	Chain     string    `json:"chain"`
	Currency  string    `json:"currency"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"created_at"`
}

func walletView(w *types.Wallet) *WalletView {
	return &WalletView{
		ID:        w.ID,
		Address:   w.Address,
		Chain:     w.Chain,
		Currency:  w.Currency,
		Verified:  w.Verified,
		CreatedAt: w.CreatedAt,
	}
}

// TransactionView is the wire representation of a wallet transaction
type TransactionView struct {
	ID          uuid.UUID `json:"id"`
	WalletID    uuid.UUID `json:"wallet_id"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	FromAddress string    `json:"from_address,omitempty"`
	ToAddress   string    `json:"to_address,omitempty"`
	Currency    string    `json:"currency"`
	Amount      string    `json:"amount"`
	CreatedAt   time.Time `json:"created_at"`
}

func transactionView(t *types.Transaction) *TransactionView {
	return &TransactionView{
		ID:          t.ID,
		WalletID:    t.WalletID,
		Type:        t.Type,
		Status:      t.Status.String(),
		FromAddress: t.FromAddress,
		ToAddress:   t.ToAddress,
		Currency:    t.Currency,
		Amount:      decString(t.Amount),
		CreatedAt:   t.CreatedAt,
	}
}

// HandleSignMessage serves POST /api/v1/wallets/sign-message. It
// records the pending wallet and returns the challenge the owner must
// sign to prove control of the address.
func (h *WalletHandler) HandleSignMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	var req struct {
		Address  string `json:"address"`
		Chain    string `json:"chain,omitempty"`
		Currency string `json:"currency,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body")
		return
	}

	pending, message, err := h.wallets.BindRequest(r.Context(), principal, req.Address, req.Chain, req.Currency)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"wallet":  walletView(pending),
		"message": message,
	})
}

// HandleBind serves POST /api/v1/wallets/bind
func (h *WalletHandler) HandleBind(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	var req struct {
		WalletID  string `json:"wallet_id"`
		Nonce     string `json:"nonce"`
		Signature string `json:"signature"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body")
		return
	}
	walletID, err := uuid.Parse(req.WalletID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_wallet_id", "wallet_id must be a UUID")
		return
	}

	bound, err := h.wallets.BindVerify(r.Context(), principal, walletID, req.Nonce, req.Signature)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"wallet": walletView(bound)})
}

// HandleWallets serves GET /api/v1/wallets
func (h *WalletHandler) HandleWallets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}
	wallets, err := h.store.WalletsByPrincipal(r.Context(), principal)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	views := make([]*WalletView, len(wallets))
	for i, wal := range wallets {
		views[i] = walletView(wal)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"wallets": views})
}

// HandleBalances serves GET /api/v1/wallets/balances
func (h *WalletHandler) HandleBalances(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}
	balances, err := h.balances.BalancesByPrincipal(r.Context(), principal)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	type balanceView struct {
		Asset     string `json:"asset"`
		Available string `json:"available"`
		Locked    string `json:"locked"`
		Total     string `json:"total"`
	}
	views := make([]balanceView, len(balances))
	for i, b := range balances {
		views[i] = balanceView{
			Asset:     b.Asset,
			Available: decString(b.Available),
			Locked:    decString(b.Locked),
			Total:     decString(b.Total()),
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"balances": views})
}

// HandleWithdraw serves POST /api/v1/wallets/withdraw
func (h *WalletHandler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	var req struct {
		WalletID string `json:"wallet_id"`
		Amount   string `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body")
		return
	}
	walletID, err := uuid.Parse(req.WalletID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_wallet_id", "wallet_id must be a UUID")
		return
	}
	amount, err := parseDec(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_amount", err.Error())
		return
	}

	tx, err := h.wallets.Withdraw(r.Context(), principal, walletID, amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"transaction": transactionView(tx)})
}

// HandleTransactions serves GET /api/v1/wallets/transactions?wallet_id=&limit=
func (h *WalletHandler) HandleTransactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}
	query := r.URL.Query()
	limit := 100
	if l := query.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	var wallets []*types.Wallet
	if id := query.Get("wallet_id"); id != "" {
		walletID, err := uuid.Parse(id)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_wallet_id", "wallet_id must be a UUID")
			return
		}
		owned, err := h.store.GetWallet(r.Context(), walletID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if owned.Principal != principal {
			writeError(w, http.StatusNotFound, "not_found", "wallet not found")
			return
		}
		wallets = []*types.Wallet{owned}
	} else {
		all, err := h.store.WalletsByPrincipal(r.Context(), principal)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		wallets = all
	}

	var views []*TransactionView
	for _, wal := range wallets {
		txs, err := h.store.TransactionsByWallet(r.Context(), wal.ID, limit)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		for _, tx := range txs {
			views = append(views, transactionView(tx))
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": views})
}
