package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/gwrxuk/FastTrading/api/middleware"
	"github.com/gwrxuk/FastTrading/auth"
	"github.com/gwrxuk/FastTrading/engine/types"
)

// AuthHandler serves registration, login, and token refresh
type AuthHandler struct {
	auth *auth.Service
}

func NewAuthHandler(svc *auth.Service) *AuthHandler {
	return &AuthHandler{auth: svc}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserView is the public projection of a user record
type UserView struct {
	ID                   uuid.UUID `json:"id"`
	Email                string    `json:"email"`
	IsVerified           bool      `json:"is_verified"`
	DailyTradeLimit      string    `json:"daily_trade_limit"`
	DailyWithdrawalLimit string    `json:"daily_withdrawal_limit"`
	CreatedAt            time.Time `json:"created_at"`
}

func userView(u *types.User) *UserView {
	return &UserView{
		ID:                   u.ID,
		Email:                u.Email,
		IsVerified:           u.IsVerified,
		DailyTradeLimit:      decString(u.DailyTradeLimit),
		DailyWithdrawalLimit: decString(u.DailyWithdrawalLimit),
		CreatedAt:            u.CreatedAt,
	}
}

// HandleRegister serves POST /api/v1/auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body")
		return
	}
	user, err := h.auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"user": userView(user)})
}

// HandleLogin serves POST /api/v1/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body")
		return
	}
	token, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

// HandleMe serves GET /api/v1/auth/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}
	user, err := h.auth.Profile(r.Context(), principal)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": userView(user)})
}

// HandleRefresh serves POST /api/v1/auth/refresh
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}
	token, err := h.auth.Refresh(principal)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, token)
}
