// Package ubi settles accounts: it burns demurrage on the stored balance, pays
// the daily income owed since the last settlement and splits that income
// across the owner's shares.
package ubi

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dailycoin/ubi-ledger/internal/asset"
	"github.com/dailycoin/ubi-ledger/internal/calendar"
	"github.com/dailycoin/ubi-ledger/internal/events"
	"github.com/dailycoin/ubi-ledger/internal/ledger"
)

// Engine runs settlements against a ledger transaction.
type Engine struct {
	clock  calendar.Clock
	decay  Decay
	policy Policy
}

// NewEngine constructs a settlement engine.
func NewEngine(clock calendar.Clock, decay Decay, policy Policy) *Engine {
	if clock == nil {
		clock = calendar.SystemClock{}
	}
	return &Engine{clock: clock, decay: decay, policy: policy}
}

// Today returns the current settlement day.
func (e *Engine) Today() calendar.Day {
	return e.clock.Today()
}

// Policy returns the income rules the engine applies.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Decay returns the demurrage model the engine applies.
func (e *Engine) Decay() Decay {
	return e.decay
}

// SettleRequest names the account to settle.
type SettleRequest struct {
	Owner  string
	Symbol asset.Symbol
	// Payer pays for balance records created for beneficiaries.
	Payer string
	// FailIfNothingDue turns the "already settled" and "supply exhausted"
	// outcomes into errors.
	FailIfNothingDue bool
}

// Settlement describes the effects of one settlement.
type Settlement struct {
	Owner string
	Today calendar.Day
	// Settled is false when the account was already settled today.
	Settled      bool
	Burned       int64
	Claimed      int64
	LostDays     int64
	NextClaimDay int64
	Distribution Distribution
	// Balance is the owner's record after settlement.
	Balance ledger.Balance
	// Stats is the currency record after settlement, with its new version.
	Stats ledger.Stats
}

// Settle brings the owner's balance up to today. The caller passes the
// currency stats read in the same transaction and must use the returned
// Stats for any further update. Once the account is due, the demurrage and
// the new settlement day are written before the income is sized, so a
// non-strict settlement with no coins left still records the burn.
func (e *Engine) Settle(ctx context.Context, tx ledger.Tx, st ledger.Stats, req SettleRequest, rec events.Recorder) (Settlement, error) {
	sym := st.Symbol()
	if req.Symbol != sym {
		return Settlement{}, fmt.Errorf("%w: symbol %s does not match currency %s", ledger.ErrValidation, req.Symbol, sym)
	}

	today := e.clock.Today()
	bal, err := tx.GetBalance(ctx, req.Owner, sym.Code)
	if err != nil {
		return Settlement{}, err
	}
	res := Settlement{Owner: req.Owner, Today: today, Balance: bal, Stats: st}

	lcd := bal.LastSettlementDay
	if lcd >= today {
		if req.FailIfNothingDue {
			return Settlement{}, fmt.Errorf("%w: %s already settled on %s", ledger.ErrNothingDue, req.Owner, calendar.Format(int64(lcd)))
		}
		return res, nil
	}
	res.Settled = true

	elapsed := uint32(1)
	if lcd > 0 {
		elapsed = uint32(today - lcd)
	}
	kept := e.decay.Apply(bal.Balance.Amount, elapsed)
	res.Burned = bal.Balance.Amount - kept
	bal.Balance.Amount = kept
	bal.LastSettlementDay = today
	if err := tx.UpdateBalance(ctx, bal); err != nil {
		return Settlement{}, err
	}
	res.Balance = bal
	st.Burned.Amount += res.Burned
	st.Supply.Amount -= res.Burned
	record(rec, events.New(events.KindBurn, req.Owner, map[string]string{
		"quantity": asset.New(res.Burned, sym).String(),
		"memo":     "demurrage",
	}))

	acc := e.policy.Accrual(lcd, today)
	res.LostDays = acc.LostDays
	claim := acc.ClaimDays * e.policy.UnitsPerDay
	if avail := st.Available(); claim > avail {
		claim = avail
	}
	if claim <= 0 {
		if req.FailIfNothingDue {
			return Settlement{}, fmt.Errorf("%w: max supply of %s reached", ledger.ErrNoCoinsAvailable, sym.Code)
		}
		if res.Stats, err = tx.UpdateStats(ctx, st); err != nil {
			return Settlement{}, err
		}
		return res, nil
	}

	covered := acc.LostDays + claim/e.policy.UnitsPerDay
	res.NextClaimDay = acc.EffectivePrevDay + covered + 1
	res.Claimed = claim
	record(rec, events.New(events.KindIncome, req.Owner, map[string]string{
		"quantity":       asset.New(claim, sym).String(),
		"next_claim_day": strconv.FormatInt(res.NextClaimDay, 10),
		"lost_days":      strconv.FormatInt(acc.LostDays, 10),
		"memo":           incomeMemo(res.NextClaimDay, acc.LostDays),
	}))

	st.Supply.Amount += claim
	st.Claims++

	shares, err := tx.ListShares(ctx, req.Owner)
	if err != nil {
		return Settlement{}, err
	}
	dist := Distribute(claim, shares)
	for _, p := range dist.Portions {
		if _, err := Credit(ctx, tx, p.Beneficiary, asset.New(p.Amount, sym), req.Payer); err != nil {
			return Settlement{}, err
		}
		record(rec, events.New(events.KindShareIncome, p.Beneficiary, map[string]string{
			"from":     req.Owner,
			"quantity": asset.New(p.Amount, sym).String(),
			"percent":  strconv.Itoa(int(p.Percent)),
		}))
	}
	if dist.Residue > 0 {
		if res.Balance, err = Credit(ctx, tx, req.Owner, asset.New(dist.Residue, sym), req.Payer); err != nil {
			return Settlement{}, err
		}
	}
	res.Distribution = dist

	if res.Stats, err = tx.UpdateStats(ctx, st); err != nil {
		return Settlement{}, err
	}
	return res, nil
}

func incomeMemo(next, lost int64) string {
	memo := "next on " + calendar.Format(next)
	if lost > 0 {
		memo += fmt.Sprintf(", lost %d days of income.", lost)
	}
	return memo
}

func record(rec events.Recorder, ev events.Event) {
	if rec != nil {
		rec.Record(ev)
	}
}
