package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const maxNameLen = 12

var (
	// ErrAccountExists is returned when registering a taken name.
	ErrAccountExists = errors.New("account already exists")
	// ErrAccountNotFound is returned for unknown names.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInvalidName rejects names outside the account alphabet.
	ErrInvalidName = errors.New("invalid account name")
	// ErrInvalidCredentials hides whether the name or the PIN was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ValidName reports whether name is 1 to 12 characters from a-z, 1-5 and '.',
// not ending with a dot.
func ValidName(name string) bool {
	if len(name) == 0 || len(name) > maxNameLen || name[len(name)-1] == '.' {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c < 'a' || c > 'z') && (c < '1' || c > '5') && c != '.' {
			return false
		}
	}
	return true
}

// Service manages the account directory.
type Service struct {
	repo Repository
}

// NewService creates a new identity service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Register creates a new account and stores a hashed PIN.
func (s *Service) Register(ctx context.Context, creds Credentials) (Account, error) {
	if !ValidName(creds.Name) {
		return Account{}, fmt.Errorf("%w: %q", ErrInvalidName, creds.Name)
	}
	if len(creds.PIN) < 4 {
		return Account{}, errors.New("PIN must be at least 4 digits")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.PIN), bcrypt.DefaultCost)
	if err != nil {
		return Account{}, err
	}

	acct := Account{
		Name:      creds.Name,
		PINHash:   hash,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, acct); err != nil {
		return Account{}, err
	}
	return acct, nil
}

// Authenticate verifies credentials.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (Account, error) {
	acct, err := s.repo.FindByName(ctx, creds.Name)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return Account{}, ErrInvalidCredentials
		}
		return Account{}, err
	}
	if err := bcrypt.CompareHashAndPassword(acct.PINHash, []byte(creds.PIN)); err != nil {
		return Account{}, ErrInvalidCredentials
	}
	return acct, nil
}

// Find returns the account registered under name.
func (s *Service) Find(ctx context.Context, name string) (Account, error) {
	return s.repo.FindByName(ctx, name)
}

// Exists reports whether name is a registered account.
func (s *Service) Exists(ctx context.Context, name string) (bool, error) {
	if !ValidName(name) {
		return false, nil
	}
	_, err := s.repo.FindByName(ctx, name)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrAccountNotFound):
		return false, nil
	default:
		return false, err
	}
}

// RevokeTokens bumps the account's token version so that every token issued
// before is rejected.
func (s *Service) RevokeTokens(ctx context.Context, name string) error {
	acct, err := s.repo.FindByName(ctx, name)
	if err != nil {
		return err
	}
	return s.repo.UpdateTokenVersion(ctx, name, acct.TokenVersion+1)
}
