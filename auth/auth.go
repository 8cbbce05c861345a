// Package auth issues and validates bearer tokens for API principals.
// Passwords are bcrypt-hashed; tokens are HS256 JWTs carrying the
// principal id as subject.
package auth

import (
	"context"
	"strings"
	"time"

	"cosmossdk.io/log"
	"cosmossdk.io/math"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/gwrxuk/FastTrading/engine/types"
	"github.com/gwrxuk/FastTrading/store"
)

const (
	DefaultTokenTTL = 30 * time.Minute
	minPasswordLen  = 8

	defaultDailyTradeLimit      = "1000000"
	defaultDailyWithdrawalLimit = "100000"
)

// Token is an issued credential
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// claims extends the registered set with a token class so refresh
// tokens can be split out later without a format change.
type claims struct {
	jwt.RegisteredClaims
	TokenType string `json:"type"`
}

// Service authenticates principals against the user store
type Service struct {
	users    store.UserStore
	secret   []byte
	tokenTTL time.Duration
	logger   log.Logger
	now      func() time.Time
}

func NewService(users store.UserStore, secret []byte, logger log.Logger) *Service {
	return &Service{
		users:    users,
		secret:   secret,
		tokenTTL: DefaultTokenTTL,
		logger:   logger.With("component", "auth"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetTokenTTL overrides the default access token lifetime
func (s *Service) SetTokenTTL(ttl time.Duration) {
	if ttl > 0 {
		s.tokenTTL = ttl
	}
}

// Register creates a new principal. Email uniqueness is enforced by
// the store; new accounts start with default daily limits.
func (s *Service) Register(ctx context.Context, email, password string) (*types.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") {
		return nil, types.ErrInvalidCredentials.Wrap("malformed email")
	}
	if len(password) < minPasswordLen {
		return nil, types.ErrInvalidCredentials.Wrapf("password shorter than %d characters", minPasswordLen)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, types.ErrInvalidCredentials.Wrap(err.Error())
	}

	user := &types.User{
		ID:                   uuid.New(),
		Email:                email,
		HashedPassword:       string(hashed),
		DailyTradeLimit:      math.LegacyMustNewDecFromStr(defaultDailyTradeLimit),
		DailyWithdrawalLimit: math.LegacyMustNewDecFromStr(defaultDailyWithdrawalLimit),
		CreatedAt:            s.now(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("principal registered", "principal", user.ID, "email", email)
	return user, nil
}

// Login checks credentials and issues a token. Unknown email and bad
// password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*Token, error) {
	user, err := s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, types.ErrInvalidCredentials.Wrap("invalid email or password")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(password)) != nil {
		return nil, types.ErrInvalidCredentials.Wrap("invalid email or password")
	}
	return s.issue(user.ID)
}

// Refresh issues a fresh token for an already-authenticated principal
func (s *Service) Refresh(principal uuid.UUID) (*Token, error) {
	return s.issue(principal)
}

func (s *Service) issue(principal uuid.UUID) (*Token, error) {
	now := s.now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
		TokenType: "access",
	})
	signed, err := t.SignedString(s.secret)
	if err != nil {
		return nil, types.ErrUnauthorized.Wrap(err.Error())
	}
	return &Token{
		AccessToken: signed,
		TokenType:   "bearer",
		ExpiresIn:   int(s.tokenTTL.Seconds()),
	}, nil
}

// Authenticate validates a bearer token and returns its principal
func (s *Service) Authenticate(tokenString string) (uuid.UUID, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, types.ErrUnauthorized.Wrapf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return uuid.Nil, types.ErrUnauthorized.Wrap("invalid token")
	}
	principal, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, types.ErrUnauthorized.Wrap("malformed subject")
	}
	return principal, nil
}

// Profile loads the principal's account record
func (s *Service) Profile(ctx context.Context, principal uuid.UUID) (*types.User, error) {
	return s.users.GetUser(ctx, principal)
}
