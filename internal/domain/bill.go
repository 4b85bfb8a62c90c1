package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Bill is the aggregate root: a shared, editable expense-splitting document.
type Bill struct {
	ID            uuid.UUID  `json:"id"`
	Name          string     `json:"name"`
	OwnerUserID   *uuid.UUID `json:"ownerUserId,omitempty"`
	ShareCode     string     `json:"shareCode"`
	Version       int64      `json:"version"`
	LocalClientID *string    `json:"localClientId,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	DeletedAt     *time.Time `json:"deletedAt,omitempty"`

	Members           []*Member           `json:"members,omitempty"`
	Expenses          []*Expense          `json:"expenses,omitempty"`
	SettledTransfers  []*SettledTransfer  `json:"settledTransfers,omitempty"`
}

// MemberByID returns the live member with the given id, or nil.
func (b *Bill) MemberByID(id uuid.UUID) *Member {
	for _, m := range b.Members {
		if m.ID == id && m.DeletedAt == nil {
			return m
		}
	}
	return nil
}

// IsLiveMember reports whether id refers to a live member of this bill.
func (b *Bill) IsLiveMember(id uuid.UUID) bool {
	return b.MemberByID(id) != nil
}

// ExpenseByID returns the live expense with the given id, or nil.
func (b *Bill) ExpenseByID(id uuid.UUID) *Expense {
	for _, e := range b.Expenses {
		if e.ID == id && e.DeletedAt == nil {
			return e
		}
	}
	return nil
}

// ItemByID returns the live item with the given id across all expenses, plus
// its owning expense, or (nil, nil).
func (b *Bill) ItemByID(id uuid.UUID) (*ExpenseItem, *Expense) {
	for _, e := range b.Expenses {
		if e.DeletedAt != nil {
			continue
		}
		for _, it := range e.Items {
			if it.ID == id && it.DeletedAt == nil {
				return it, e
			}
		}
	}
	return nil, nil
}

// Member is a person slot on a bill; may be unclaimed (anonymous) or claimed
// by a real user.
type Member struct {
	ID            uuid.UUID  `json:"id"`
	BillID        uuid.UUID  `json:"billId"`
	Name          string     `json:"name"`
	DisplayOrder  int        `json:"displayOrder"`
	LinkedUserID  *uuid.UUID `json:"linkedUserId,omitempty"`
	ClaimedAt     *time.Time `json:"claimedAt,omitempty"`
	OriginalName  *string    `json:"originalName,omitempty"`
	LocalClientID *string    `json:"localClientId,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	DeletedAt     *time.Time `json:"deletedAt,omitempty"`
}

// IsClaimed reports whether the member is linked to a real user identity.
func (m *Member) IsClaimed() bool {
	return m.LinkedUserID != nil
}

// Expense belongs to one bill; optionally itemized into line Items.
type Expense struct {
	ID               uuid.UUID  `json:"id"`
	BillID           uuid.UUID  `json:"billId"`
	Name             string     `json:"name"`
	Amount           decimal.Decimal `json:"amount"`
	ServiceFeePercent decimal.Decimal `json:"serviceFeePercent"`
	IsItemized       bool       `json:"isItemized"`
	PaidByMemberID   *uuid.UUID `json:"paidByMemberId,omitempty"`
	LocalClientID    *string    `json:"localClientId,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	DeletedAt        *time.Time `json:"deletedAt,omitempty"`

	Participants []*ExpenseParticipant `json:"participants,omitempty"`
	Items        []*ExpenseItem        `json:"items,omitempty"`
}

// ParticipantIDs returns the ordered member ids currently participating in
// the expense (not itemized).
func (e *Expense) ParticipantIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(e.Participants))
	for _, p := range e.Participants {
		ids = append(ids, p.MemberID)
	}
	return ids
}

// ExpenseItem belongs to one Expense; holds item-level participants.
type ExpenseItem struct {
	ID             uuid.UUID  `json:"id"`
	ExpenseID      uuid.UUID  `json:"expenseId"`
	Name           string     `json:"name"`
	Amount         decimal.Decimal `json:"amount"`
	PaidByMemberID *uuid.UUID `json:"paidByMemberId,omitempty"`
	LocalClientID  *string    `json:"localClientId,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	DeletedAt      *time.Time `json:"deletedAt,omitempty"`

	Participants []*ExpenseItemParticipant `json:"participants,omitempty"`
}

// ExpenseParticipant is a computed allocation row for a simple expense.
// Primary key is (expense_id, member_id); amount is computed by the money
// allocator, never user input.
type ExpenseParticipant struct {
	ExpenseID uuid.UUID       `json:"expenseId"`
	MemberID  uuid.UUID       `json:"memberId"`
	Amount    decimal.Decimal `json:"amount"`
}

// ExpenseItemParticipant is the item-level equivalent of ExpenseParticipant.
type ExpenseItemParticipant struct {
	ItemID   uuid.UUID       `json:"itemId"`
	MemberID uuid.UUID       `json:"memberId"`
	Amount   decimal.Decimal `json:"amount"`
}

// SettledTransfer records a (debtor -> creditor) edge marked as paid outside
// the system. It is a display flag, not a balance change. PK is
// (bill_id, from_member_id, to_member_id).
type SettledTransfer struct {
	BillID       uuid.UUID       `json:"billId"`
	FromMemberID uuid.UUID       `json:"fromMemberId"`
	ToMemberID   uuid.UUID       `json:"toMemberId"`
	Amount       decimal.Decimal `json:"amount"`
	SettledAt    time.Time       `json:"settledAt"`
}

// TransferKey uniquely identifies a settled transfer within a bill.
type TransferKey struct {
	From uuid.UUID
	To   uuid.UUID
}
