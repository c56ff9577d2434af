package ubi

import (
	"github.com/dailycoin/ubi-ledger/internal/asset"
	"github.com/dailycoin/ubi-ledger/internal/calendar"
)

// Policy holds the income rules of a currency.
type Policy struct {
	// UnitsPerDay is the income for one day, in base units.
	UnitsPerDay int64
	// MaxPastClaimDays caps how many past days of income can accumulate.
	MaxPastClaimDays int64
	// SignupBonusCutoffDay is the last day on which a first claim earns the
	// signup bonus. Zero disables the bonus.
	SignupBonusCutoffDay calendar.Day
	// MaxSignupBonusDays caps the bonus length.
	MaxSignupBonusDays int64
}

// DefaultPolicy pays 1.0000 per day, keeps at most 360 past days and grants a
// signup bonus until January 1st, 2021.
func DefaultPolicy() Policy {
	return Policy{
		UnitsPerDay:          asset.Unit,
		MaxPastClaimDays:     360,
		SignupBonusCutoffDay: 18628,
		MaxSignupBonusDays:   360,
	}
}

// SignupBonusActive reports whether today is inside the signup bonus window.
func (p Policy) SignupBonusActive(today calendar.Day) bool {
	return p.SignupBonusCutoffDay > 0 && today <= p.SignupBonusCutoffDay
}

// Accrual sizes the income owed for one settlement.
type Accrual struct {
	// EffectivePrevDay is the baseline the income is counted from. It can be
	// negative when a large signup bonus is granted close to the epoch.
	EffectivePrevDay int64
	PendingDays      int64
	LostDays         int64
	// ClaimDays is PendingDays plus today's pay.
	ClaimDays int64
}

// Accrual computes the days owed between lcd and today. The caller guarantees
// lcd < today.
func (p Policy) Accrual(lcd, today calendar.Day) Accrual {
	prev := int64(lcd)
	if lcd == 0 {
		prev = int64(today) - 1
		if p.SignupBonusActive(today) {
			bonus := int64(p.SignupBonusCutoffDay) - int64(today) + 1
			if bonus > p.MaxSignupBonusDays {
				bonus = p.MaxSignupBonusDays
			}
			prev -= bonus
		}
	}

	a := Accrual{EffectivePrevDay: prev}
	a.PendingDays = int64(today) - prev - 1
	if a.PendingDays > p.MaxPastClaimDays {
		a.LostDays = a.PendingDays - p.MaxPastClaimDays
		a.PendingDays = p.MaxPastClaimDays
	}
	a.ClaimDays = a.PendingDays + 1
	return a
}
