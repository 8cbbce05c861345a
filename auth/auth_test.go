package auth

import (
	"context"
	"testing"
	"time"

	"cosmossdk.io/log"

	"github.com/gwrxuk/FastTrading/store"
)

func newService() *Service {
	return NewService(store.NewMemory(), []byte("test-secret"), log.NewNopLogger())
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	user, err := svc.Register(ctx, "Trader@Example.com", "hunter2hunter2")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Email != "trader@example.com" {
		t.Errorf("email not normalized: %s", user.Email)
	}
	if user.HashedPassword == "hunter2hunter2" {
		t.Error("password stored in plaintext")
	}

	token, err := svc.Login(ctx, "trader@example.com", "hunter2hunter2")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if token.TokenType != "bearer" || token.AccessToken == "" {
		t.Errorf("unexpected token: %+v", token)
	}

	principal, err := svc.Authenticate(token.AccessToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if principal != user.ID {
		t.Errorf("principal = %s, want %s", principal, user.ID)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	if _, err := svc.Register(ctx, "a@b.com", "correcthorse"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Login(ctx, "a@b.com", "wrongpassword"); err == nil {
		t.Fatal("expected login failure")
	}
	if _, err := svc.Login(ctx, "nobody@b.com", "correcthorse"); err == nil {
		t.Fatal("expected login failure for unknown email")
	}
}

func TestRegisterRejectsWeakInput(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	if _, err := svc.Register(ctx, "not-an-email", "longenoughpw"); err == nil {
		t.Error("expected malformed email rejection")
	}
	if _, err := svc.Register(ctx, "x@y.com", "short"); err == nil {
		t.Error("expected short password rejection")
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	if _, err := svc.Register(ctx, "dup@b.com", "password123"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register(ctx, "DUP@b.com", "password456"); err == nil {
		t.Fatal("expected duplicate email rejection")
	}
}

func TestAuthenticateRejectsGarbage(t *testing.T) {
	svc := newService()
	if _, err := svc.Authenticate("not.a.token"); err == nil {
		t.Fatal("expected rejection")
	}
}

func TestAuthenticateExpiredToken(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	user, err := svc.Register(ctx, "exp@b.com", "password123")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	issued := time.Now().UTC()
	svc.now = func() time.Time { return issued }
	token, err := svc.Refresh(user.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	svc.now = func() time.Time { return issued.Add(DefaultTokenTTL + time.Minute) }
	if _, err := svc.Authenticate(token.AccessToken); err == nil {
		t.Fatal("expected expired token rejection")
	}
}

func TestAuthenticateWrongSecret(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	user, err := svc.Register(ctx, "sig@b.com", "password123")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	token, err := svc.Refresh(user.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	other := NewService(store.NewMemory(), []byte("different-secret"), log.NewNopLogger())
	if _, err := other.Authenticate(token.AccessToken); err == nil {
		t.Fatal("expected signature mismatch rejection")
	}
}
