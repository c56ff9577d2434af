package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dailycoin/ubi-ledger/internal/config"
	"github.com/dailycoin/ubi-ledger/internal/identity"
)

var (
	// ErrInvalidToken covers malformed, expired and wrongly signed tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenRevoked is returned for tokens minted before the last logout.
	ErrTokenRevoked = errors.New("token version invalidated")
)

// Claims are the JWT claims issued to an account. The subject is the account
// name; Version must match the account's token version.
type Claims struct {
	Version int `json:"ver"`
	jwt.RegisteredClaims
}

// Service issues and verifies session tokens.
type Service struct {
	cfg    config.Config
	idRepo identity.Repository
}

// NewService constructs the token service.
func NewService(cfg config.Config, idRepo identity.Repository) *Service {
	return &Service{cfg: cfg, idRepo: idRepo}
}

// TokenPair is returned on login.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Login issues an access and refresh token for an authenticated account.
func (s *Service) Login(acct identity.Account) (TokenPair, error) {
	access, err := s.sign(acct.Name, acct.TokenVersion, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.sign(acct.Name, acct.TokenVersion, s.cfg.RefreshSecret, s.cfg.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: int64(s.cfg.AccessTokenTTL.Seconds())}, nil
}

func (s *Service) sign(name string, version int, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Version: version,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   name,
			Issuer:    s.cfg.AppName,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func parse(token, secret string) (Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return Claims{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}

// Verify checks an access token and returns the account name it was issued
// to. Tokens older than the account's last logout are rejected.
func (s *Service) Verify(ctx context.Context, accessToken string) (string, error) {
	claims, err := parse(accessToken, s.cfg.JWTSecret)
	if err != nil {
		return "", err
	}
	if err := s.checkVersion(ctx, claims); err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// Refresh verifies the refresh token and returns a new access token if valid.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, int64, error) {
	claims, err := parse(refreshToken, s.cfg.RefreshSecret)
	if err != nil {
		return "", 0, err
	}
	if err := s.checkVersion(ctx, claims); err != nil {
		return "", 0, err
	}
	signed, err := s.sign(claims.Subject, claims.Version, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return "", 0, err
	}
	return signed, int64(s.cfg.AccessTokenTTL.Seconds()), nil
}

// Logout increments the token version so older tokens become invalid.
func (s *Service) Logout(ctx context.Context, name string) error {
	acct, err := s.idRepo.FindByName(ctx, name)
	if err != nil {
		return err
	}
	return s.idRepo.UpdateTokenVersion(ctx, acct.Name, acct.TokenVersion+1)
}

func (s *Service) checkVersion(ctx context.Context, claims Claims) error {
	acct, err := s.idRepo.FindByName(ctx, claims.Subject)
	if err != nil {
		return fmt.Errorf("%w: unknown account", ErrInvalidToken)
	}
	if acct.TokenVersion != claims.Version {
		return ErrTokenRevoked
	}
	return nil
}
