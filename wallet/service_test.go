package wallet

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"
	"time"

	"cosmossdk.io/log"
	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/gwrxuk/FastTrading/engine/types"
	"github.com/gwrxuk/FastTrading/store"
)

func signPersonal(t *testing.T, message string, keyHex string) string {
	t.Helper()
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		t.Fatal(err)
	}
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	sig, err := crypto.Sign(crypto.Keccak256([]byte(prefixed)), key)
	if err != nil {
		t.Fatal(err)
	}
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig)
}

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func testAddress(t *testing.T) string {
	t.Helper()
	key, err := crypto.HexToECDSA(testKey)
	if err != nil {
		t.Fatal(err)
	}
	return strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex())
}

func newService(t *testing.T) (*Service, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	gate := NewGate(mem, log.NewNopLogger())
	return NewService(mem, gate, log.NewNopLogger()), mem
}

func TestBindFlow(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	principal := uuid.New()
	addr := testAddress(t)

	w, message, err := svc.BindRequest(ctx, principal, addr, "ethereum", "USDT")
	if err != nil {
		t.Fatal(err)
	}
	if w.Verified {
		t.Fatal("wallet should start unverified")
	}

	nonce := strings.TrimPrefix(message, "Sign this message to verify wallet ownership: ")
	sig := signPersonal(t, message, testKey)

	verified, err := svc.BindVerify(ctx, principal, w.ID, nonce, sig)
	if err != nil {
		t.Fatal(err)
	}
	if !verified.Verified {
		t.Error("wallet should be verified after valid signature")
	}

	// nonce is single use
	if _, err := svc.BindVerify(ctx, principal, w.ID, nonce, sig); !types.ErrNonceExpired.Is(err) {
		t.Errorf("expected nonce rejection on reuse, got %v", err)
	}
}

func TestBindVerifyRejectsWrongSigner(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	principal := uuid.New()
	addr := testAddress(t)

	w, message, err := svc.BindRequest(ctx, principal, addr, "ethereum", "USDT")
	if err != nil {
		t.Fatal(err)
	}
	nonce := strings.TrimPrefix(message, "Sign this message to verify wallet ownership: ")

	otherKey := "8da4ef21b864d2cc526dbdb2a120bd2874c36c9d0a1fb7f8c63d7f7a8b41de8f"
	sig := signPersonal(t, message, otherKey)

	if _, err := svc.BindVerify(ctx, principal, w.ID, nonce, sig); !types.ErrInvalidSignature.Is(err) {
		t.Errorf("expected signature rejection, got %v", err)
	}
}

func TestBindRequestRejectsMalformedAddress(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	for _, addr := range []string{"", "0x123", "not-an-address", "0xZZ96b182d19c5b3d8ef7a12d8271b2e33a4b788d"} {
		if _, _, err := svc.BindRequest(ctx, uuid.New(), addr, "ethereum", "USDT"); err == nil {
			t.Errorf("expected rejection for %q", addr)
		}
	}
}

func TestWithdrawEnforcesDailyCap(t *testing.T) {
	svc, mem := newService(t)
	ctx := context.Background()
	principal := uuid.New()
	addr := testAddress(t)

	mem.CreateUser(ctx, &types.User{
		ID: principal, Email: "cap@example.com",
		DailyTradeLimit:      math.LegacyNewDec(100000),
		DailyWithdrawalLimit: math.LegacyNewDec(1000),
		CreatedAt:            time.Now(),
	})
	mem.SaveBalance(ctx, &types.Balance{
		Principal: principal, Asset: "USDT",
		Available: math.LegacyNewDec(5000), Locked: math.LegacyZeroDec(),
	})

	w, message, err := svc.BindRequest(ctx, principal, addr, "ethereum", "USDT")
	if err != nil {
		t.Fatal(err)
	}
	nonce := strings.TrimPrefix(message, "Sign this message to verify wallet ownership: ")
	if _, err := svc.BindVerify(ctx, principal, w.ID, nonce, signPersonal(t, message, testKey)); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Withdraw(ctx, principal, w.ID, math.LegacyNewDec(800)); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Withdraw(ctx, principal, w.ID, math.LegacyNewDec(300)); !types.ErrDailyLimitExceeded.Is(err) {
		t.Errorf("expected daily cap rejection, got %v", err)
	}

	b, _ := mem.GetBalance(ctx, principal, "USDT")
	if !b.Available.Equal(math.LegacyNewDec(4200)) {
		t.Errorf("expected 4200 after withdrawal, got %s", b.Available)
	}
}

func TestWithdrawRequiresVerifiedWallet(t *testing.T) {
	svc, mem := newService(t)
	ctx := context.Background()
	principal := uuid.New()

	mem.CreateUser(ctx, &types.User{
		ID: principal, Email: "unverified@example.com",
		DailyTradeLimit:      math.LegacyNewDec(100000),
		DailyWithdrawalLimit: math.LegacyNewDec(1000),
	})
	w, _, err := svc.BindRequest(ctx, principal, testAddress(t), "ethereum", "USDT")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Withdraw(ctx, principal, w.ID, math.LegacyNewDec(10)); !types.ErrUnauthorized.Is(err) {
		t.Errorf("expected unauthorized for unverified wallet, got %v", err)
	}
}
