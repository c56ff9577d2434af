package ubi

import "github.com/dailycoin/ubi-ledger/internal/ledger"

// Portion is the part of an income paid to one beneficiary.
type Portion struct {
	Beneficiary string
	Amount      int64
	Percent     uint8
}

// Distribution is the result of splitting an income across a share list.
// Residue is what stays with the claimant.
type Distribution struct {
	Portions []Portion
	Residue  int64
}

// Distribute splits total across shares in the given order. Each share gets
// its percent of the original total, rounded down, except the share that
// brings the running percent sum to 100 or more: it takes everything left,
// truncation remainders included. Iteration stops once nothing remains.
func Distribute(total int64, shares []ledger.Share) Distribution {
	var d Distribution
	remaining := total
	pcsum := 0
	for _, sh := range shares {
		pcsum += int(sh.Percent)

		var amount int64
		if pcsum >= 100 {
			amount = remaining
		} else {
			amount = percentOf(total, sh.Percent)
		}
		remaining -= amount
		d.Portions = append(d.Portions, Portion{Beneficiary: sh.Beneficiary, Amount: amount, Percent: sh.Percent})

		if remaining <= 0 {
			break
		}
	}
	if remaining > 0 {
		d.Residue = remaining
	}
	return d
}

// percentOf returns floor(total * pct / 100) without overflowing for totals
// near the int64 limit.
func percentOf(total int64, pct uint8) int64 {
	p := int64(pct)
	return total/100*p + total%100*p/100
}
