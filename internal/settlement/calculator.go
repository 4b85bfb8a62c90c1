// Package settlement computes each member's net balance on a bill and the
// minimal set of transfers that would settle all of them, using the same
// greedy largest-creditor/largest-debtor matching used by the reference
// expense-splitting services this one was modeled on.
package settlement

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/snapsplit/sync-core/internal/domain"
	"github.com/snapsplit/sync-core/internal/money"
)

// tolerance is the minor-unit rounding slack below which a balance is
// treated as settled. Balances returns penny-rounded values, so a cent of
// drift never accumulates, but the tolerance keeps the greedy loop from
// spinning on a balance parked within a cent of zero.
var tolerance = decimal.New(1, -2)

// Transfer is one edge in the minimal settlement plan: From owes To Amount.
type Transfer struct {
	From   uuid.UUID
	To     uuid.UUID
	Amount decimal.Decimal
}

// Result is a computed settlement snapshot for a bill.
type Result struct {
	// Balances maps member id to net balance: positive means the bill owes
	// them money (they overpaid), negative means they owe the bill.
	Balances  map[uuid.UUID]decimal.Decimal
	Transfers []Transfer
}

// Compute aggregates every live expense and item on bill into per-member
// balances, then reduces those balances to a minimal transfer plan.
func Compute(bill *domain.Bill) Result {
	balances := Balances(bill)
	return Result{
		Balances:  balances,
		Transfers: MinimalTransfers(balances),
	}
}

// Balances returns each live member's net balance across all live, non-
// deleted expenses and items on the bill. A non-itemized expense's paid-by
// member is credited the fee-inclusive total; an itemized expense credits
// each item's own paid-by member instead, since items carry no service fee
// of their own. Each balance is rounded to 2 decimal places.
func Balances(bill *domain.Bill) map[uuid.UUID]decimal.Decimal {
	balances := make(map[uuid.UUID]decimal.Decimal, len(bill.Members))
	for _, m := range bill.Members {
		if m.DeletedAt == nil {
			balances[m.ID] = decimal.Zero
		}
	}

	for _, e := range bill.Expenses {
		if e.DeletedAt != nil {
			continue
		}
		if e.IsItemized {
			for _, it := range e.Items {
				if it.DeletedAt != nil {
					continue
				}
				if it.PaidByMemberID != nil {
					credit(balances, *it.PaidByMemberID, it.Amount)
				}
				for _, p := range it.Participants {
					debit(balances, p.MemberID, p.Amount)
				}
			}
			continue
		}
		if e.PaidByMemberID != nil {
			credit(balances, *e.PaidByMemberID, money.ApplyServiceFee(e.Amount, e.ServiceFeePercent))
		}
		for _, p := range e.Participants {
			debit(balances, p.MemberID, p.Amount)
		}
	}

	for id, bal := range balances {
		balances[id] = bal.Round(2)
	}
	return balances
}

func credit(balances map[uuid.UUID]decimal.Decimal, member uuid.UUID, amount decimal.Decimal) {
	balances[member] = balances[member].Add(amount)
}

func debit(balances map[uuid.UUID]decimal.Decimal, member uuid.UUID, amount decimal.Decimal) {
	balances[member] = balances[member].Sub(amount)
}

type ledgerEntry struct {
	id     uuid.UUID
	amount decimal.Decimal
}

// MinimalTransfers reduces a balance map to the smallest set of transfers
// that zeroes every balance, by repeatedly matching the largest remaining
// creditor against the largest remaining debtor. Ties break on member id so
// that identical inputs always produce identical output ordering.
func MinimalTransfers(balances map[uuid.UUID]decimal.Decimal) []Transfer {
	var creditors, debtors []ledgerEntry
	for id, bal := range balances {
		switch {
		case bal.GreaterThan(tolerance):
			creditors = append(creditors, ledgerEntry{id, bal})
		case bal.LessThan(tolerance.Neg()):
			debtors = append(debtors, ledgerEntry{id, bal.Neg()})
		}
	}

	sortLedger(creditors)
	sortLedger(debtors)

	var transfers []Transfer
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		d := &debtors[i]
		c := &creditors[j]

		transfer := d.amount
		if c.amount.LessThan(transfer) {
			transfer = c.amount
		}
		if transfer.GreaterThan(decimal.Zero) {
			transfers = append(transfers, Transfer{From: d.id, To: c.id, Amount: transfer})
		}

		d.amount = d.amount.Sub(transfer)
		c.amount = c.amount.Sub(transfer)

		if d.amount.LessThanOrEqual(tolerance) {
			i++
		}
		if c.amount.LessThanOrEqual(tolerance) {
			j++
		}
	}

	return transfers
}

func sortLedger(entries []ledgerEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].amount.Equal(entries[j].amount) {
			return entries[i].amount.GreaterThan(entries[j].amount)
		}
		return entries[i].id.String() < entries[j].id.String()
	})
}
