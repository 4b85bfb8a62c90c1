package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OpType tags the kind of mutation an Operation carries. The merger
// dispatches on this tag rather than probing the payload's shape.
type OpType string

const (
	OpBillUpdateMeta         OpType = "BILL_UPDATE_META"
	OpMemberAdd              OpType = "MEMBER_ADD"
	OpMemberUpdate           OpType = "MEMBER_UPDATE"
	OpMemberClaim            OpType = "MEMBER_CLAIM"
	OpMemberUnclaim          OpType = "MEMBER_UNCLAIM"
	OpMemberReorder          OpType = "MEMBER_REORDER"
	OpMemberRemove           OpType = "MEMBER_REMOVE"
	OpExpenseAdd             OpType = "EXPENSE_ADD"
	OpExpenseUpdate          OpType = "EXPENSE_UPDATE"
	OpExpenseDelete          OpType = "EXPENSE_DELETE"
	OpExpenseSetParticipants OpType = "EXPENSE_SET_PARTICIPANTS"
	OpExpenseToggleItemized  OpType = "EXPENSE_TOGGLE_ITEMIZED"
	OpItemAdd                OpType = "ITEM_ADD"
	OpItemUpdate             OpType = "ITEM_UPDATE"
	OpItemDelete             OpType = "ITEM_DELETE"
	OpItemSetParticipants    OpType = "ITEM_SET_PARTICIPANTS"
	OpSettlementMark         OpType = "SETTLEMENT_MARK"
	OpSettlementUnmark       OpType = "SETTLEMENT_UNMARK"
	OpSettlementClearAll     OpType = "SETTLEMENT_CLEAR_ALL"
)

// Operation is one append-only, versioned log entry. Version is the version
// the bill reaches after this operation is applied; (bill_id, version) is
// unique and is the durable proof of strictly-serializable ordering.
type Operation struct {
	ID        uuid.UUID       `json:"id"`
	BillID    uuid.UUID       `json:"billId"`
	Version   int64           `json:"version"`
	OpType    OpType          `json:"opType"`
	TargetID  *uuid.UUID      `json:"targetId,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	ActorID   *uuid.UUID      `json:"actorId,omitempty"`
	ClientID  string          `json:"clientId"`
	CreatedAt time.Time       `json:"createdAt"`
}

// DecodePayload unmarshals the operation's opaque JSON payload into dst.
func (o *Operation) DecodePayload(dst interface{}) error {
	if len(o.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(o.Payload, dst)
}

// Payload shapes for each op_type. These are decoded by the merger; they are
// never probed dynamically.

type BillUpdateMetaPayload struct {
	Name string `json:"name"`
}

type MemberAddPayload struct {
	Name         string `json:"name"`
	DisplayOrder *int   `json:"displayOrder,omitempty"`
}

type MemberUpdatePayload struct {
	Name         *string `json:"name,omitempty"`
	DisplayOrder *int    `json:"displayOrder,omitempty"`
}

type MemberReorderPayload struct {
	Order []uuid.UUID `json:"order"`
}

type ExpenseAddPayload struct {
	Name              string           `json:"name"`
	Amount            decimal.Decimal  `json:"amount"`
	ServiceFeePercent *decimal.Decimal `json:"serviceFeePercent,omitempty"`
	PaidByID          *uuid.UUID       `json:"paidById,omitempty"`
}

type ExpenseUpdatePayload struct {
	Name              *string          `json:"name,omitempty"`
	Amount            *decimal.Decimal `json:"amount,omitempty"`
	ServiceFeePercent *decimal.Decimal `json:"serviceFeePercent,omitempty"`
	PaidByID          *uuid.UUID       `json:"paidById,omitempty"`
	ClearPaidBy       bool             `json:"clearPaidBy,omitempty"`
}

type SetParticipantsPayload struct {
	ParticipantIDs []uuid.UUID `json:"participantIds"`
}

type ItemAddPayload struct {
	ExpenseID uuid.UUID       `json:"expenseId"`
	Name      string          `json:"name"`
	Amount    decimal.Decimal `json:"amount"`
	PaidByID  *uuid.UUID      `json:"paidById,omitempty"`
}

type ItemUpdatePayload struct {
	Name        *string          `json:"name,omitempty"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	PaidByID    *uuid.UUID       `json:"paidById,omitempty"`
	ClearPaidBy bool             `json:"clearPaidBy,omitempty"`
}

type SettlementMarkPayload struct {
	FromMemberID uuid.UUID       `json:"fromMemberId"`
	ToMemberID   uuid.UUID       `json:"toMemberId"`
	Amount       decimal.Decimal `json:"amount"`
}

type SettlementUnmarkPayload struct {
	FromMemberID uuid.UUID `json:"fromMemberId"`
	ToMemberID   uuid.UUID `json:"toMemberId"`
}

// MemberClaimPayload carries the claiming user's display name, which
// replaces the member's placeholder name; the placeholder is saved to
// OriginalName so MEMBER_UNCLAIM can restore it.
type MemberClaimPayload struct {
	Name string `json:"name"`
}

type MemberUnclaimPayload struct{}

type MemberRemovePayload struct{}

type ExpenseDeletePayload struct{}

type ExpenseToggleItemizedPayload struct {
	IsItemized bool `json:"isItemized"`
}

type ItemDeletePayload struct{}

type SettlementClearAllPayload struct{}
