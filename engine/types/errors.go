package types

import (
	errorsmod "cosmossdk.io/errors"
)

// Module error codes
var (
	ErrInvalidOrder         = errorsmod.Register("engine", 2, "invalid order")
	ErrInvalidSymbol        = errorsmod.Register("engine", 3, "invalid symbol")
	ErrOrderNotFound        = errorsmod.Register("engine", 4, "order not found")
	ErrOrderNotCancellable  = errorsmod.Register("engine", 5, "order not cancellable")
	ErrInsufficientBalance  = errorsmod.Register("engine", 6, "insufficient balance")
	ErrDuplicateClientOrder = errorsmod.Register("engine", 7, "client order id already used")
	ErrFillOrKill           = errorsmod.Register("engine", 8, "fok order cannot be fully filled")
	ErrNoLiquidity          = errorsmod.Register("engine", 9, "no liquidity for market order")
	ErrSymbolHalted         = errorsmod.Register("engine", 10, "symbol halted")
	ErrRateLimited          = errorsmod.Register("engine", 11, "order rate limit exceeded")
	ErrDailyLimitExceeded   = errorsmod.Register("engine", 12, "daily limit exceeded")
	ErrUnauthorized         = errorsmod.Register("engine", 13, "unauthorized")
	ErrInvalidCredentials   = errorsmod.Register("engine", 14, "invalid credentials")
	ErrStoreUnavailable     = errorsmod.Register("engine", 15, "store unavailable")
	ErrWalletNotFound       = errorsmod.Register("engine", 16, "wallet not found")
	ErrInvalidSignature     = errorsmod.Register("engine", 17, "invalid signature")
	ErrNonceExpired         = errorsmod.Register("engine", 18, "nonce expired or already used")
	ErrNotFound             = errorsmod.Register("engine", 19, "not found")
	ErrInsufficientData     = errorsmod.Register("engine", 20, "insufficient data")
)
