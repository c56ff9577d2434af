package ubi

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	daysPerYear = 365
	scaleDigits = 18
)

var decayScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(scaleDigits), nil)

// Decay applies demurrage with integer arithmetic only. The per-day retention
// factor is stored at 18 decimal digits and is derived once from the annual
// retention rate, so identical inputs always burn identical amounts.
type Decay struct {
	daily *big.Int
}

// NewDecay derives the per-day factor floor(365th root of annual) where annual
// is the fraction of a balance kept after one year, e.g. 0.999.
func NewDecay(annual decimal.Decimal) (Decay, error) {
	if !annual.IsPositive() || annual.GreaterThan(decimal.NewFromInt(1)) {
		return Decay{}, fmt.Errorf("annual retention must be in (0, 1], got %s", annual)
	}
	r := annual.Shift(scaleDigits).BigInt()
	if r.Sign() <= 0 {
		return Decay{}, fmt.Errorf("annual retention %s is below 1e-%d", annual, scaleDigits)
	}
	// daily^365 / scale^364 <= r  <=>  daily^365 <= r * scale^364
	n := new(big.Int).Exp(decayScale, big.NewInt(daysPerYear-1), nil)
	n.Mul(n, r)
	return Decay{daily: nthRoot(n, daysPerYear, decayScale)}, nil
}

// MustDecay is NewDecay for compile-time constants.
func MustDecay(annual string) Decay {
	d, err := NewDecay(decimal.RequireFromString(annual))
	if err != nil {
		panic(err)
	}
	return d
}

// DailyFactor returns the per-day retention factor scaled by 10^18.
func (d Decay) DailyFactor() *big.Int {
	return new(big.Int).Set(d.daily)
}

// Factor returns daily^days scaled by 10^18. Products are truncated to scale
// after every multiplication of the square-and-multiply ladder.
func (d Decay) Factor(days uint32) *big.Int {
	result := new(big.Int).Set(decayScale)
	if d.daily == nil {
		return result
	}
	base := new(big.Int).Set(d.daily)
	for e := days; e > 0; e >>= 1 {
		if e&1 == 1 {
			result.Mul(result, base)
			result.Quo(result, decayScale)
		}
		base.Mul(base, base)
		base.Quo(base, decayScale)
	}
	return result
}

// Apply returns floor(amount * daily^days), the balance left after days of
// demurrage.
func (d Decay) Apply(amount int64, days uint32) int64 {
	if amount <= 0 || days == 0 {
		return amount
	}
	v := big.NewInt(amount)
	v.Mul(v, d.Factor(days))
	v.Quo(v, decayScale)
	return v.Int64()
}

// nthRoot returns floor(N^(1/k)) by integer Newton iteration starting from
// guess, which must not be below the root.
func nthRoot(n *big.Int, k int64, guess *big.Int) *big.Int {
	x := new(big.Int).Set(guess)
	km1 := big.NewInt(k - 1)
	bk := big.NewInt(k)
	pow := new(big.Int)
	y := new(big.Int)
	for {
		pow.Exp(x, km1, nil)
		y.Quo(n, pow)
		pow.Mul(x, km1)
		y.Add(y, pow)
		y.Quo(y, bk)
		if y.Cmp(x) >= 0 {
			return x
		}
		x.Set(y)
	}
}
