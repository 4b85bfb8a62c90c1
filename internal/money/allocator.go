// Package money implements the penny-exact allocation of a total amount
// across N shares, and the small set of pure monetary helpers the sync
// engines and settlement calculator build on.
package money

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// centsFactor converts a decimal amount (2 fractional digits, the
// currency's minor unit) to an integer number of cents.
var centsFactor = decimal.NewFromInt(100)

// Allocate splits total into n shares that sum exactly to total, each
// rounded to the minor unit, differing by at most one minor unit. The
// first (total*100 mod n) shares (in slice order) receive the extra cent,
// so identical inputs in identical order always produce identical outputs.
func Allocate(total decimal.Decimal, n int) []decimal.Decimal {
	if n <= 0 {
		return nil
	}
	totalCents := total.Mul(centsFactor).Round(0).IntPart()

	baseCents := totalCents / int64(n)
	remainder := totalCents % int64(n)
	if remainder < 0 {
		// total may be negative (e.g. a refund); Go's integer division
		// truncates toward zero, so normalize remainder into [0, n).
		remainder += int64(n)
		baseCents--
	}

	shares := make([]decimal.Decimal, n)
	for i := 0; i < n; i++ {
		cents := baseCents
		if int64(i) < remainder {
			cents++
		}
		shares[i] = decimal.New(cents, -2)
	}
	return shares
}

// AllocateToMembers allocates total across memberIDs in the given order and
// returns a map from member id to its share. The order of memberIDs is the
// caller-supplied stable tie-break required by the allocation contract.
func AllocateToMembers(total decimal.Decimal, memberIDs []uuid.UUID) map[uuid.UUID]decimal.Decimal {
	shares := Allocate(total, len(memberIDs))
	result := make(map[uuid.UUID]decimal.Decimal, len(memberIDs))
	for i, id := range memberIDs {
		result[id] = shares[i]
	}
	return result
}

// ApplyServiceFee returns amount * (1 + pct/100), unrounded. Rounding only
// happens at allocation time, per the allocator's contract.
func ApplyServiceFee(amount decimal.Decimal, pct decimal.Decimal) decimal.Decimal {
	multiplier := decimal.NewFromInt(1).Add(pct.Div(centsFactor))
	return amount.Mul(multiplier)
}
