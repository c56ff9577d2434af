package identity

import (
	"context"
	"errors"
	"testing"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	acct, err := svc.Register(ctx, Credentials{Name: "alice", PIN: "1234"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if acct.TokenVersion != 0 {
		t.Fatalf("expected token version 0, got %d", acct.TokenVersion)
	}

	if _, err := svc.Authenticate(ctx, Credentials{Name: "alice", PIN: "1234"}); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if _, err := svc.Authenticate(ctx, Credentials{Name: "alice", PIN: "9999"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, Credentials{Name: "nobody", PIN: "1234"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown account, got %v", err)
	}
}

func TestRegisterRejectsDuplicatesAndBadInput(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	if _, err := svc.Register(ctx, Credentials{Name: "bob", PIN: "1234"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register(ctx, Credentials{Name: "bob", PIN: "5678"}); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if _, err := svc.Register(ctx, Credentials{Name: "Bob", PIN: "1234"}); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected invalid name, got %v", err)
	}
	if _, err := svc.Register(ctx, Credentials{Name: "carol", PIN: "12"}); err == nil {
		t.Fatal("expected short PIN to be rejected")
	}
}

func TestExists(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()
	if _, err := svc.Register(ctx, Credentials{Name: "dave.1", PIN: "1234"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	for name, want := range map[string]bool{"dave.1": true, "erin": false, "": false, "UPPER": false} {
		got, err := svc.Exists(ctx, name)
		if err != nil {
			t.Fatalf("exists %q: %v", name, err)
		}
		if got != want {
			t.Fatalf("exists %q = %v, want %v", name, got, want)
		}
	}
}

func TestRevokeTokensBumpsVersion(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()
	if _, err := svc.Register(ctx, Credentials{Name: "frank", PIN: "1234"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := svc.RevokeTokens(ctx, "frank"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	acct, err := svc.Find(ctx, "frank")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if acct.TokenVersion != 1 {
		t.Fatalf("expected token version 1, got %d", acct.TokenVersion)
	}
}

func TestValidName(t *testing.T) {
	valid := []string{"a", "alice", "bob.5", "abcdefghijkl", "x1y2z3"}
	invalid := []string{"", "alice.", "abcdefghijklm", "al ice", "zed6", "Zed"}
	for _, n := range valid {
		if !ValidName(n) {
			t.Fatalf("expected %q to be valid", n)
		}
	}
	for _, n := range invalid {
		if ValidName(n) {
			t.Fatalf("expected %q to be invalid", n)
		}
	}
}
