package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dailycoin/ubi-ledger/internal/config"
	"github.com/dailycoin/ubi-ledger/internal/identity"
	"github.com/dailycoin/ubi-ledger/internal/ledger"
)

func newTestService(t *testing.T) (*Service, *identity.Service) {
	t.Helper()
	repo := identity.NewMemoryRepository()
	ids := identity.NewService(repo)
	cfg := config.Config{
		AppName:         "test",
		JWTSecret:       "access",
		RefreshSecret:   "refresh",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
	}
	if _, err := ids.Register(context.Background(), identity.Credentials{Name: "alice", PIN: "1234"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	return NewService(cfg, repo), ids
}

func TestLoginVerifyRefresh(t *testing.T) {
	svc, ids := newTestService(t)
	ctx := context.Background()

	acct, err := ids.Find(ctx, "alice")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	pair, err := svc.Login(acct)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if pair.ExpiresIn != 60 {
		t.Fatalf("unexpected expiry %d", pair.ExpiresIn)
	}

	name, err := svc.Verify(ctx, pair.AccessToken)
	if err != nil || name != "alice" {
		t.Fatalf("verify: %q %v", name, err)
	}
	if _, err := svc.Verify(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh token must not pass as access token, got %v", err)
	}

	access, _, err := svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if name, err := svc.Verify(ctx, access); err != nil || name != "alice" {
		t.Fatalf("verify refreshed: %q %v", name, err)
	}
}

func TestLogoutRevokesTokens(t *testing.T) {
	svc, ids := newTestService(t)
	ctx := context.Background()

	acct, _ := ids.Find(ctx, "alice")
	pair, err := svc.Login(acct)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := svc.Logout(ctx, "alice"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.Verify(ctx, pair.AccessToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected revoked access token, got %v", err)
	}
	if _, _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected revoked refresh token, got %v", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Verify(context.Background(), "not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
}

func TestActorAuthorizer(t *testing.T) {
	var authz ActorAuthorizer
	ctx := context.Background()

	if err := authz.RequireAuthority(ctx, "alice"); !errors.Is(err, ledger.ErrUnauthorized) {
		t.Fatalf("expected unauthorized without actor, got %v", err)
	}
	ctx = WithActor(ctx, "alice")
	if err := authz.RequireAuthority(ctx, "alice"); err != nil {
		t.Fatalf("expected alice to act for its own account: %v", err)
	}
	if err := authz.RequireAuthority(ctx, "bob"); !errors.Is(err, ledger.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for bob, got %v", err)
	}
}
