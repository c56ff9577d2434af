// Package token implements the ledger operations accounts call: currency
// creation and issuance, transfers, burns, balance records, income claims,
// income shares and profiles. Every operation settles the accounts it touches
// before moving funds.
package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/dailycoin/ubi-ledger/internal/asset"
	"github.com/dailycoin/ubi-ledger/internal/auth"
	"github.com/dailycoin/ubi-ledger/internal/calendar"
	"github.com/dailycoin/ubi-ledger/internal/events"
	"github.com/dailycoin/ubi-ledger/internal/ledger"
	"github.com/dailycoin/ubi-ledger/internal/ubi"
)

const (
	maxMemoBytes    = 256
	maxProfileBytes = 1024
)

// Accounts tells whether an account name is registered.
type Accounts interface {
	Exists(ctx context.Context, name string) (bool, error)
}

// Deps groups the collaborators of the service.
type Deps struct {
	Store      ledger.Store
	Engine     *ubi.Engine
	Authorizer auth.Authorizer
	Accounts   Accounts
	Emitter    events.Emitter
	Logger     *slog.Logger
	// Authority is the account allowed to create currencies.
	Authority string
}

// Service runs token operations, each inside one ledger transaction. Events
// are emitted only after the transaction commits.
type Service struct {
	store     ledger.Store
	engine    *ubi.Engine
	authz     auth.Authorizer
	accounts  Accounts
	emitter   events.Emitter
	logger    *slog.Logger
	authority string
}

// NewService constructs a token service.
func NewService(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	authz := d.Authorizer
	if authz == nil {
		authz = auth.ActorAuthorizer{}
	}
	return &Service{
		store:     d.Store,
		engine:    d.Engine,
		authz:     authz,
		accounts:  d.Accounts,
		emitter:   d.Emitter,
		logger:    logger,
		authority: d.Authority,
	}
}

// Today returns the current settlement day.
func (s *Service) Today() calendar.Day {
	return s.engine.Today()
}

// TransferResult holds both balances after a transfer.
type TransferResult struct {
	From ledger.Balance
	To   ledger.Balance
}

// Create registers a new currency with a fixed maximum supply.
func (s *Service) Create(ctx context.Context, issuer string, maxSupply asset.Asset) (ledger.Stats, error) {
	sym := maxSupply.Symbol
	switch {
	case !sym.IsValid():
		return ledger.Stats{}, invalid("invalid symbol name")
	case !maxSupply.IsValid():
		return ledger.Stats{}, invalid("invalid supply")
	case maxSupply.Amount <= 0:
		return ledger.Stats{}, invalid("max-supply must be positive")
	case sym.Precision != asset.Precision:
		return ledger.Stats{}, invalid("unsupported symbol precision")
	case issuer == "":
		return ledger.Stats{}, invalid("issuer is required")
	}
	if err := s.authz.RequireAuthority(ctx, s.authority); err != nil {
		return ledger.Stats{}, err
	}

	st := ledger.Stats{
		Supply:    asset.New(0, sym),
		MaxSupply: maxSupply,
		Issuer:    issuer,
		Burned:    asset.New(0, sym),
	}
	err := s.run(ctx, "create", func(tx ledger.Tx, _ events.Recorder) error {
		if err := tx.InsertStats(ctx, st); err != nil {
			return err
		}
		var err error
		st, err = tx.GetStats(ctx, sym.Code)
		return err
	})
	if err != nil {
		return ledger.Stats{}, err
	}
	s.logger.InfoContext(ctx, "currency created", slog.String("symbol", sym.String()), slog.String("issuer", issuer), slog.String("max_supply", maxSupply.String()))
	return st, nil
}

// Issue mints qty to the issuer and forwards it to `to` when that is another
// account.
func (s *Service) Issue(ctx context.Context, to string, qty asset.Asset, memo string) (ledger.Stats, error) {
	if err := validQuantity(qty, "issue"); err != nil {
		return ledger.Stats{}, err
	}
	if err := validMemo(memo); err != nil {
		return ledger.Stats{}, err
	}

	// Looked up before the transaction opens; the SQLite store runs on a
	// single connection.
	toKnown, err := s.accountExists(ctx, to)
	if err != nil {
		return ledger.Stats{}, err
	}

	var out ledger.Stats
	err = s.run(ctx, "issue", func(tx ledger.Tx, rec events.Recorder) error {
		st, err := s.stats(ctx, tx, qty.Symbol)
		if err != nil {
			return err
		}
		if err := s.authz.RequireAuthority(ctx, st.Issuer); err != nil {
			return err
		}
		if to != st.Issuer && !toKnown {
			return invalid("to account does not exist")
		}
		if qty.Amount > st.Available() {
			return invalid("quantity exceeds available supply")
		}

		if st, err = s.settleIfOpen(ctx, tx, st, st.Issuer, st.Issuer, rec); err != nil {
			return err
		}
		if qty.Amount > st.Available() {
			return invalid("quantity exceeds available supply")
		}
		st.Supply.Amount += qty.Amount
		if st, err = tx.UpdateStats(ctx, st); err != nil {
			return err
		}
		if _, err := ubi.Credit(ctx, tx, st.Issuer, qty, st.Issuer); err != nil {
			return err
		}
		rec.Record(events.New(events.KindIssue, st.Issuer, map[string]string{
			"to":       to,
			"quantity": qty.String(),
			"memo":     memo,
		}))

		if to != st.Issuer {
			if _, st, err = s.transfer(ctx, tx, st, st.Issuer, to, qty, memo, st.Issuer, rec); err != nil {
				return err
			}
		}
		out = st
		return nil
	})
	return out, err
}

// Retire removes qty from the issuer's balance and the supply. When the
// issuer is the ledger authority anyone may retire.
func (s *Service) Retire(ctx context.Context, qty asset.Asset, memo string) (ledger.Stats, error) {
	if err := validQuantity(qty, "retire"); err != nil {
		return ledger.Stats{}, err
	}
	if err := validMemo(memo); err != nil {
		return ledger.Stats{}, err
	}

	var out ledger.Stats
	err := s.run(ctx, "retire", func(tx ledger.Tx, rec events.Recorder) error {
		st, err := s.stats(ctx, tx, qty.Symbol)
		if err != nil {
			return err
		}
		if st.Issuer != s.authority {
			if err := s.authz.RequireAuthority(ctx, st.Issuer); err != nil {
				return err
			}
		}
		if st, err = s.settleIfOpen(ctx, tx, st, st.Issuer, st.Issuer, rec); err != nil {
			return err
		}
		if _, err := ubi.Debit(ctx, tx, st.Issuer, qty); err != nil {
			return err
		}
		st.Supply.Amount -= qty.Amount
		st.Burned.Amount += qty.Amount
		if out, err = tx.UpdateStats(ctx, st); err != nil {
			return err
		}
		rec.Record(events.New(events.KindRetire, st.Issuer, map[string]string{
			"quantity": qty.String(),
			"memo":     memo,
		}))
		return nil
	})
	return out, err
}

// Transfer moves qty from one account to another after settling both. The
// recipient pays for records created on its behalf when it is the acting
// account, otherwise the sender does.
func (s *Service) Transfer(ctx context.Context, from, to string, qty asset.Asset, memo string) (TransferResult, error) {
	if from == to {
		return TransferResult{}, invalid("cannot transfer to self")
	}
	if err := validQuantity(qty, "transfer"); err != nil {
		return TransferResult{}, err
	}
	if err := validMemo(memo); err != nil {
		return TransferResult{}, err
	}
	if err := s.authz.RequireAuthority(ctx, from); err != nil {
		return TransferResult{}, err
	}
	if err := s.requireAccount(ctx, to, "to"); err != nil {
		return TransferResult{}, err
	}

	payer := from
	if actor, ok := auth.ActorFrom(ctx); ok && actor == to {
		payer = to
	}

	var out TransferResult
	err := s.run(ctx, "transfer", func(tx ledger.Tx, rec events.Recorder) error {
		st, err := s.stats(ctx, tx, qty.Symbol)
		if err != nil {
			return err
		}
		out, _, err = s.transfer(ctx, tx, st, from, to, qty, memo, payer, rec)
		return err
	})
	return out, err
}

func (s *Service) transfer(ctx context.Context, tx ledger.Tx, st ledger.Stats, from, to string, qty asset.Asset, memo, payer string, rec events.Recorder) (TransferResult, ledger.Stats, error) {
	var err error
	if st, err = s.settleIfOpen(ctx, tx, st, from, payer, rec); err != nil {
		return TransferResult{}, st, err
	}
	if st, err = s.settleIfOpen(ctx, tx, st, to, payer, rec); err != nil {
		return TransferResult{}, st, err
	}

	var res TransferResult
	if res.From, err = ubi.Debit(ctx, tx, from, qty); err != nil {
		return TransferResult{}, st, err
	}
	if res.To, err = ubi.Credit(ctx, tx, to, qty, payer); err != nil {
		return TransferResult{}, st, err
	}
	rec.Record(events.New(events.KindTransfer, to, map[string]string{
		"from":     from,
		"quantity": qty.String(),
		"memo":     memo,
	}))
	return res, st, nil
}

// Open creates an empty balance record for owner, paid for by payer, and
// settles it.
func (s *Service) Open(ctx context.Context, owner string, sym asset.Symbol, payer string) (ubi.Settlement, error) {
	return s.open(ctx, owner, sym, payer, false)
}

// Claim opens the owner's balance if needed and pays the income due. With
// strict set, an account already settled today or a currency with no supply
// left yields an error instead of a no-op.
func (s *Service) Claim(ctx context.Context, owner string, sym asset.Symbol, strict bool) (ubi.Settlement, error) {
	res, err := s.open(ctx, owner, sym, owner, strict)
	if err == nil && res.Settled {
		s.logger.InfoContext(ctx, "income claimed",
			slog.String("owner", owner),
			slog.String("symbol", sym.Code),
			slog.String("amount", asset.New(res.Claimed, sym).String()),
			slog.Int64("lost_days", res.LostDays),
		)
	}
	return res, err
}

// ClaimFor settles owner's income with payer covering any new records.
func (s *Service) ClaimFor(ctx context.Context, owner string, sym asset.Symbol, payer string) (ubi.Settlement, error) {
	return s.open(ctx, owner, sym, payer, false)
}

func (s *Service) open(ctx context.Context, owner string, sym asset.Symbol, payer string, strict bool) (ubi.Settlement, error) {
	if !sym.IsValid() {
		return ubi.Settlement{}, invalid("invalid symbol name")
	}
	if err := s.authz.RequireAuthority(ctx, payer); err != nil {
		return ubi.Settlement{}, err
	}
	if err := s.requireAccount(ctx, owner, "owner"); err != nil {
		return ubi.Settlement{}, err
	}

	var out ubi.Settlement
	err := s.run(ctx, "open", func(tx ledger.Tx, rec events.Recorder) error {
		st, err := s.stats(ctx, tx, sym)
		if err != nil {
			return err
		}
		_, err = tx.GetBalance(ctx, owner, sym.Code)
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			if err := tx.InsertBalance(ctx, ledger.Balance{Owner: owner, Balance: asset.New(0, sym), Payer: payer}); err != nil {
				return err
			}
		case err != nil:
			return err
		}
		out, err = s.engine.Settle(ctx, tx, st, ubi.SettleRequest{Owner: owner, Symbol: sym, Payer: payer, FailIfNothingDue: strict}, rec)
		return err
	})
	return out, err
}

// Close deletes an empty balance record.
func (s *Service) Close(ctx context.Context, owner string, sym asset.Symbol) error {
	if err := s.authz.RequireAuthority(ctx, owner); err != nil {
		return err
	}
	return s.run(ctx, "close", func(tx ledger.Tx, _ events.Recorder) error {
		bal, err := tx.GetBalance(ctx, owner, sym.Code)
		if err != nil {
			return fmt.Errorf("balance row already deleted or never existed: %w", err)
		}
		today := s.engine.Today()
		switch {
		case bal.Balance.Amount != 0:
			return invalid("cannot close because the balance is not zero")
		case bal.LastSettlementDay != 0 && bal.LastSettlementDay >= today:
			return invalid("cannot close yet: income was already claimed for today")
		case s.engine.Policy().SignupBonusActive(today):
			return invalid("cannot close yet: must wait for the end of the reward period")
		}
		return tx.DeleteBalance(ctx, owner, sym.Code)
	})
}

// Burn destroys qty of the owner's balance after settling it.
func (s *Service) Burn(ctx context.Context, owner string, qty asset.Asset) (ledger.Balance, error) {
	if err := validQuantity(qty, "burn"); err != nil {
		return ledger.Balance{}, err
	}
	if err := s.authz.RequireAuthority(ctx, owner); err != nil {
		return ledger.Balance{}, err
	}

	var out ledger.Balance
	err := s.run(ctx, "burn", func(tx ledger.Tx, rec events.Recorder) error {
		st, err := s.stats(ctx, tx, qty.Symbol)
		if err != nil {
			return err
		}
		if st, err = s.settleIfOpen(ctx, tx, st, owner, owner, rec); err != nil {
			return err
		}
		if out, err = ubi.Debit(ctx, tx, owner, qty); err != nil {
			return err
		}
		st.Supply.Amount -= qty.Amount
		st.Burned.Amount += qty.Amount
		if _, err := tx.UpdateStats(ctx, st); err != nil {
			return err
		}
		rec.Record(events.New(events.KindBurn, owner, map[string]string{
			"quantity": qty.String(),
			"memo":     "burn",
		}))
		return nil
	})
	return out, err
}

// SetShare redirects percent of the owner's future income to `to`. Zero
// removes the share. The call fails if the owner's shares would sum above
// 100 percent.
func (s *Service) SetShare(ctx context.Context, owner, to string, percent int) ([]ledger.Share, error) {
	switch {
	case percent < 0 || percent > 100:
		return nil, invalid("invalid percent value")
	case owner == to:
		return nil, invalid("cannot setshare to self")
	}
	if err := s.authz.RequireAuthority(ctx, owner); err != nil {
		return nil, err
	}
	if err := s.requireAccount(ctx, to, "to"); err != nil {
		return nil, err
	}

	var out []ledger.Share
	err := s.run(ctx, "setshare", func(tx ledger.Tx, _ events.Recorder) error {
		if percent == 0 {
			if err := tx.DeleteShare(ctx, owner, to); err != nil && !errors.Is(err, ledger.ErrNotFound) {
				return err
			}
		} else if err := tx.PutShare(ctx, ledger.Share{Owner: owner, Beneficiary: to, Percent: uint8(percent)}); err != nil {
			return err
		}

		list, err := tx.ListShares(ctx, owner)
		if err != nil {
			return err
		}
		sum := 0
		for _, sh := range list {
			sum += int(sh.Percent)
		}
		if sum > 100 {
			return invalid("share total would exceed 100%")
		}
		out = list
		return nil
	})
	return out, err
}

// ResetShare removes all of the owner's shares.
func (s *Service) ResetShare(ctx context.Context, owner string) error {
	if err := s.authz.RequireAuthority(ctx, owner); err != nil {
		return err
	}
	return s.run(ctx, "resetshare", func(tx ledger.Tx, _ events.Recorder) error {
		return tx.DeleteShares(ctx, owner)
	})
}

// SetProfile stores the owner's profile text. An empty profile deletes it.
func (s *Service) SetProfile(ctx context.Context, owner, profile string) error {
	if len(profile) > maxProfileBytes {
		return invalid("profile has more than " + strconv.Itoa(maxProfileBytes) + " bytes")
	}
	if err := s.authz.RequireAuthority(ctx, owner); err != nil {
		return err
	}
	return s.run(ctx, "setprofile", func(tx ledger.Tx, _ events.Recorder) error {
		if profile == "" {
			if err := tx.DeleteProfile(ctx, owner); err != nil && !errors.Is(err, ledger.ErrNotFound) {
				return err
			}
			return nil
		}
		return tx.PutProfile(ctx, ledger.Profile{Owner: owner, Profile: profile})
	})
}

// Balance returns the owner's stored balance record.
func (s *Service) Balance(ctx context.Context, owner, code string) (ledger.Balance, error) {
	var out ledger.Balance
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		var err error
		out, err = tx.GetBalance(ctx, owner, code)
		return err
	})
	return out, err
}

// Stats returns the currency record.
func (s *Service) Stats(ctx context.Context, code string) (ledger.Stats, error) {
	var out ledger.Stats
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		var err error
		out, err = tx.GetStats(ctx, code)
		return err
	})
	return out, err
}

// Shares lists the owner's shares in ascending beneficiary order.
func (s *Service) Shares(ctx context.Context, owner string) ([]ledger.Share, error) {
	var out []ledger.Share
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		var err error
		out, err = tx.ListShares(ctx, owner)
		return err
	})
	return out, err
}

// Profile returns the owner's profile.
func (s *Service) Profile(ctx context.Context, owner string) (ledger.Profile, error) {
	var out ledger.Profile
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		var err error
		out, err = tx.GetProfile(ctx, owner)
		return err
	})
	return out, err
}

// run executes fn in one transaction and flushes its events after commit.
func (s *Service) run(ctx context.Context, op string, fn func(tx ledger.Tx, rec events.Recorder) error) error {
	var buf events.Buffer
	if err := s.store.WithinTx(ctx, func(tx ledger.Tx) error { return fn(tx, &buf) }); err != nil {
		s.logger.DebugContext(ctx, "ledger operation rejected", slog.String("op", op), slog.Any("error", err))
		return err
	}
	if err := buf.Flush(ctx, s.emitter); err != nil {
		s.logger.WarnContext(ctx, "event delivery failed", slog.String("op", op), slog.Any("error", err))
	}
	return nil
}

func (s *Service) stats(ctx context.Context, tx ledger.Tx, sym asset.Symbol) (ledger.Stats, error) {
	st, err := tx.GetStats(ctx, sym.Code)
	if err != nil {
		return ledger.Stats{}, err
	}
	if st.Symbol() != sym {
		return ledger.Stats{}, invalid("symbol precision mismatch")
	}
	return st, nil
}

// settleIfOpen settles owner when it has a balance record and returns the
// stats to continue with.
func (s *Service) settleIfOpen(ctx context.Context, tx ledger.Tx, st ledger.Stats, owner, payer string, rec events.Recorder) (ledger.Stats, error) {
	res, err := s.engine.Settle(ctx, tx, st, ubi.SettleRequest{Owner: owner, Symbol: st.Symbol(), Payer: payer}, rec)
	switch {
	case errors.Is(err, ledger.ErrNoBalanceRecord):
		return st, nil
	case err != nil:
		return st, err
	}
	return res.Stats, nil
}

func (s *Service) accountExists(ctx context.Context, name string) (bool, error) {
	if s.accounts == nil {
		return true, nil
	}
	return s.accounts.Exists(ctx, name)
}

// requireAccount must not be called inside a transaction.
func (s *Service) requireAccount(ctx context.Context, name, role string) error {
	ok, err := s.accountExists(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return invalid(role + " account does not exist")
	}
	return nil
}

func validQuantity(qty asset.Asset, verb string) error {
	switch {
	case !qty.Symbol.IsValid():
		return invalid("invalid symbol name")
	case !qty.IsValid():
		return invalid("invalid quantity")
	case qty.Amount <= 0:
		return invalid("must " + verb + " positive quantity")
	}
	return nil
}

func validMemo(memo string) error {
	if len(memo) > maxMemoBytes {
		return invalid("memo has more than " + strconv.Itoa(maxMemoBytes) + " bytes")
	}
	return nil
}

func invalid(reason string) error {
	return fmt.Errorf("%w: %s", ledger.ErrValidation, reason)
}
