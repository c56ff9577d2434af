package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dailycoin/ubi-ledger/internal/asset"
	"github.com/dailycoin/ubi-ledger/internal/calendar"
)

var (
	// ErrValidation marks malformed currency, amount, percentage or memo input.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a missing balance, stats, share or profile record.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates the actor lacks the required authority.
	ErrUnauthorized = errors.New("missing required authority")

	// ErrOverdrawn occurs when a debit exceeds the stored balance.
	ErrOverdrawn = errors.New("overdrawn balance")

	// ErrNothingDue is returned by a strict settlement when the account was
	// already settled today.
	ErrNothingDue = errors.New("no pending income to claim")

	// ErrNoCoinsAvailable is returned by a strict settlement when the max
	// supply leaves nothing to pay.
	ErrNoCoinsAvailable = errors.New("no coins available")

	// ErrConflict indicates a record changed underneath the transaction or
	// already exists.
	ErrConflict = errors.New("conflict")

	// ErrNoBalanceRecord is the NotFound variant for a missing balance row.
	ErrNoBalanceRecord = fmt.Errorf("%w: no balance object found", ErrNotFound)
)

// Balance is one account's holding of one currency.
type Balance struct {
	Owner             string
	Balance           asset.Asset
	LastSettlementDay calendar.Day
	Payer             string
}

// Stats is the per-currency supply record. Version increases on every
// successful update and guards against lost updates.
type Stats struct {
	Supply    asset.Asset
	MaxSupply asset.Asset
	Issuer    string
	Burned    asset.Asset
	Claims    uint64
	Version   uint64
}

// Symbol returns the currency the stats describe.
func (s Stats) Symbol() asset.Symbol {
	return s.Supply.Symbol
}

// Available returns how much can still be minted before hitting MaxSupply.
func (s Stats) Available() int64 {
	return s.MaxSupply.Amount - s.Supply.Amount
}

// Share redirects Percent of Owner's future UBI to Beneficiary.
type Share struct {
	Owner       string
	Beneficiary string
	Percent     uint8
}

// Profile is free-form text an account publishes about itself.
type Profile struct {
	Owner   string
	Profile string
}

// Tx exposes keyed record access inside one atomic unit of work. Shares are
// always returned in ascending beneficiary order.
type Tx interface {
	GetBalance(ctx context.Context, owner, code string) (Balance, error)
	InsertBalance(ctx context.Context, b Balance) error
	UpdateBalance(ctx context.Context, b Balance) error
	DeleteBalance(ctx context.Context, owner, code string) error

	GetStats(ctx context.Context, code string) (Stats, error)
	InsertStats(ctx context.Context, s Stats) error
	// UpdateStats persists s if the stored version equals s.Version and
	// returns the record with its new version.
	UpdateStats(ctx context.Context, s Stats) (Stats, error)

	ListShares(ctx context.Context, owner string) ([]Share, error)
	PutShare(ctx context.Context, s Share) error
	DeleteShare(ctx context.Context, owner, beneficiary string) error
	DeleteShares(ctx context.Context, owner string) error

	GetProfile(ctx context.Context, owner string) (Profile, error)
	PutProfile(ctx context.Context, p Profile) error
	DeleteProfile(ctx context.Context, owner string) error
}

// Store runs functions as atomic transactions. If fn returns an error none of
// its writes become visible.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}
