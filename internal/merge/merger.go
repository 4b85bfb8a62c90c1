// Package merge applies a single decoded Operation onto an in-memory Bill
// aggregate. It never talks to storage; callers are responsible for loading
// the aggregate under lock, calling Apply once per operation in version
// order, and persisting whatever changed.
package merge

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/snapsplit/sync-core/internal/domain"
	"github.com/snapsplit/sync-core/internal/money"
)

// Merger dispatches Operations onto a Bill by OpType. It carries no state of
// its own; a single Merger value is safe to reuse across goroutines.
type Merger struct{}

// New returns a ready-to-use Merger.
func New() *Merger {
	return &Merger{}
}

// Apply mutates bill in place according to op. Operations whose target no
// longer resolves to a live entity are accepted as no-ops and logged, not
// rejected, so that a late-arriving edit of an already-deleted entity never
// aborts an otherwise-valid batch. OpMemberClaim and OpMemberUnclaim are the
// exception: a member that does not resolve returns domain.ErrMemberNotFound.
func (m *Merger) Apply(ctx context.Context, bill *domain.Bill, op *domain.Operation) error {
	switch op.OpType {
	case domain.OpBillUpdateMeta:
		return m.applyBillUpdateMeta(bill, op)
	case domain.OpMemberAdd:
		return m.applyMemberAdd(bill, op)
	case domain.OpMemberUpdate:
		return m.applyMemberUpdate(ctx, bill, op)
	case domain.OpMemberClaim:
		return m.applyMemberClaim(bill, op)
	case domain.OpMemberUnclaim:
		return m.applyMemberUnclaim(bill, op)
	case domain.OpMemberReorder:
		return m.applyMemberReorder(bill, op)
	case domain.OpMemberRemove:
		return m.applyMemberRemove(ctx, bill, op)
	case domain.OpExpenseAdd:
		return m.applyExpenseAdd(bill, op)
	case domain.OpExpenseUpdate:
		return m.applyExpenseUpdate(ctx, bill, op)
	case domain.OpExpenseDelete:
		return m.applyExpenseDelete(ctx, bill, op)
	case domain.OpExpenseSetParticipants:
		return m.applyExpenseSetParticipants(ctx, bill, op)
	case domain.OpExpenseToggleItemized:
		return m.applyExpenseToggleItemized(ctx, bill, op)
	case domain.OpItemAdd:
		return m.applyItemAdd(ctx, bill, op)
	case domain.OpItemUpdate:
		return m.applyItemUpdate(ctx, bill, op)
	case domain.OpItemDelete:
		return m.applyItemDelete(ctx, bill, op)
	case domain.OpItemSetParticipants:
		return m.applyItemSetParticipants(ctx, bill, op)
	case domain.OpSettlementMark:
		return m.applySettlementMark(bill, op)
	case domain.OpSettlementUnmark:
		return m.applySettlementUnmark(bill, op)
	case domain.OpSettlementClearAll:
		bill.SettledTransfers = nil
		return nil
	default:
		return fmt.Errorf("merge: unknown op type %q", op.OpType)
	}
}

func (m *Merger) applyBillUpdateMeta(bill *domain.Bill, op *domain.Operation) error {
	var p domain.BillUpdateMetaPayload
	if err := op.DecodePayload(&p); err != nil {
		return err
	}
	bill.Name = p.Name
	return nil
}

func (m *Merger) applyMemberAdd(bill *domain.Bill, op *domain.Operation) error {
	var p domain.MemberAddPayload
	if err := op.DecodePayload(&p); err != nil {
		return err
	}
	if op.TargetID == nil {
		return fmt.Errorf("merge: MEMBER_ADD missing target id")
	}
	order := len(bill.Members)
	if p.DisplayOrder != nil {
		order = *p.DisplayOrder
	}
	bill.Members = append(bill.Members, &domain.Member{
		ID:           *op.TargetID,
		BillID:       bill.ID,
		Name:         p.Name,
		DisplayOrder: order,
		CreatedAt:    op.CreatedAt,
		UpdatedAt:    op.CreatedAt,
	})
	return nil
}

func (m *Merger) applyMemberUpdate(ctx context.Context, bill *domain.Bill, op *domain.Operation) error {
	if op.TargetID == nil {
		return fmt.Errorf("merge: MEMBER_UPDATE missing target id")
	}
	member := bill.MemberByID(*op.TargetID)
	if member == nil {
		logNoopTarget(ctx, op, "member")
		return nil
	}
	var p domain.MemberUpdatePayload
	if err := op.DecodePayload(&p); err != nil {
		return err
	}
	if p.Name != nil {
		member.Name = *p.Name
	}
	if p.DisplayOrder != nil {
		member.DisplayOrder = *p.DisplayOrder
	}
	member.UpdatedAt = op.CreatedAt
	return nil
}

func (m *Merger) applyMemberClaim(bill *domain.Bill, op *domain.Operation) error {
	if op.TargetID == nil || op.ActorID == nil {
		return fmt.Errorf("merge: MEMBER_CLAIM requires target and actor")
	}
	member := bill.MemberByID(*op.TargetID)
	if member == nil {
		return domain.ErrMemberNotFound
	}
	if member.IsClaimed() {
		return domain.ErrMemberAlreadyClaimed
	}
	for _, other := range bill.Members {
		if other.DeletedAt == nil && other.LinkedUserID != nil && *other.LinkedUserID == *op.ActorID {
			return domain.ErrUserAlreadyClaimedOther
		}
	}
	var p domain.MemberClaimPayload
	if err := op.DecodePayload(&p); err != nil {
		return err
	}
	claimedAt := op.CreatedAt
	actor := *op.ActorID
	original := member.Name
	member.OriginalName = &original
	if p.Name != "" {
		member.Name = p.Name
	}
	member.LinkedUserID = &actor
	member.ClaimedAt = &claimedAt
	member.UpdatedAt = op.CreatedAt
	return nil
}

func (m *Merger) applyMemberUnclaim(bill *domain.Bill, op *domain.Operation) error {
	if op.TargetID == nil {
		return fmt.Errorf("merge: MEMBER_UNCLAIM missing target id")
	}
	member := bill.MemberByID(*op.TargetID)
	if member == nil {
		return domain.ErrMemberNotFound
	}
	if !member.IsClaimed() {
		return domain.ErrMemberNotClaimed
	}
	if op.ActorID == nil || *member.LinkedUserID != *op.ActorID {
		return domain.ErrUnauthorizedUnclaim
	}
	if member.OriginalName != nil {
		member.Name = *member.OriginalName
		member.OriginalName = nil
	}
	member.LinkedUserID = nil
	member.ClaimedAt = nil
	member.UpdatedAt = op.CreatedAt
	return nil
}

func (m *Merger) applyMemberReorder(bill *domain.Bill, op *domain.Operation) error {
	var p domain.MemberReorderPayload
	if err := op.DecodePayload(&p); err != nil {
		return err
	}
	for i, id := range p.Order {
		if member := bill.MemberByID(id); member != nil {
			member.DisplayOrder = i
			member.UpdatedAt = op.CreatedAt
		}
	}
	return nil
}

func (m *Merger) applyMemberRemove(ctx context.Context, bill *domain.Bill, op *domain.Operation) error {
	if op.TargetID == nil {
		return fmt.Errorf("merge: MEMBER_REMOVE missing target id")
	}
	member := bill.MemberByID(*op.TargetID)
	if member == nil {
		logNoopTarget(ctx, op, "member")
		return nil
	}
	deletedAt := op.CreatedAt
	member.DeletedAt = &deletedAt
	member.UpdatedAt = op.CreatedAt

	kept := bill.SettledTransfers[:0]
	for _, t := range bill.SettledTransfers {
		if t.FromMemberID == member.ID || t.ToMemberID == member.ID {
			continue
		}
		kept = append(kept, t)
	}
	bill.SettledTransfers = kept
	return nil
}

func (m *Merger) applyExpenseAdd(bill *domain.Bill, op *domain.Operation) error {
	var p domain.ExpenseAddPayload
	if err := op.DecodePayload(&p); err != nil {
		return err
	}
	if op.TargetID == nil {
		return fmt.Errorf("merge: EXPENSE_ADD missing target id")
	}
	fee := decimal.Zero
	if p.ServiceFeePercent != nil {
		fee = *p.ServiceFeePercent
	}
	bill.Expenses = append(bill.Expenses, &domain.Expense{
		ID:                *op.TargetID,
		BillID:            bill.ID,
		Name:              p.Name,
		Amount:            p.Amount,
		ServiceFeePercent: fee,
		PaidByMemberID:    p.PaidByID,
		CreatedAt:         op.CreatedAt,
		UpdatedAt:         op.CreatedAt,
	})
	return nil
}

func (m *Merger) applyExpenseUpdate(ctx context.Context, bill *domain.Bill, op *domain.Operation) error {
	if op.TargetID == nil {
		return fmt.Errorf("merge: EXPENSE_UPDATE missing target id")
	}
	expense := bill.ExpenseByID(*op.TargetID)
	if expense == nil {
		logNoopTarget(ctx, op, "expense")
		return nil
	}
	var p domain.ExpenseUpdatePayload
	if err := op.DecodePayload(&p); err != nil {
		return err
	}
	if p.Name != nil {
		expense.Name = *p.Name
	}
	if p.Amount != nil {
		expense.Amount = *p.Amount
	}
	if p.ServiceFeePercent != nil {
		expense.ServiceFeePercent = *p.ServiceFeePercent
	}
	if p.ClearPaidBy {
		expense.PaidByMemberID = nil
	} else if p.PaidByID != nil {
		expense.PaidByMemberID = p.PaidByID
	}
	expense.UpdatedAt = op.CreatedAt
	return nil
}

func (m *Merger) applyExpenseDelete(ctx context.Context, bill *domain.Bill, op *domain.Operation) error {
	if op.TargetID == nil {
		return fmt.Errorf("merge: EXPENSE_DELETE missing target id")
	}
	expense := bill.ExpenseByID(*op.TargetID)
	if expense == nil {
		logNoopTarget(ctx, op, "expense")
		return nil
	}
	deletedAt := op.CreatedAt
	expense.DeletedAt = &deletedAt
	expense.UpdatedAt = op.CreatedAt
	for _, it := range expense.Items {
		if it.DeletedAt == nil {
			it.DeletedAt = &deletedAt
			it.UpdatedAt = op.CreatedAt
		}
	}
	return nil
}

func (m *Merger) applyExpenseSetParticipants(ctx context.Context, bill *domain.Bill, op *domain.Operation) error {
	if op.TargetID == nil {
		return fmt.Errorf("merge: EXPENSE_SET_PARTICIPANTS missing target id")
	}
	expense := bill.ExpenseByID(*op.TargetID)
	if expense == nil {
		logNoopTarget(ctx, op, "expense")
		return nil
	}
	var p domain.SetParticipantsPayload
	if err := op.DecodePayload(&p); err != nil {
		return err
	}
	live := make([]uuid.UUID, 0, len(p.ParticipantIDs))
	for _, id := range p.ParticipantIDs {
		if bill.IsLiveMember(id) {
			live = append(live, id)
		} else {
			log.Ctx(ctx).Warn().Str("memberId", id.String()).Msg("dropping ghost participant reference")
		}
	}
	total := money.ApplyServiceFee(expense.Amount, expense.ServiceFeePercent)
	shares := money.AllocateToMembers(total, live)
	expense.Participants = make([]*domain.ExpenseParticipant, 0, len(live))
	for _, id := range live {
		expense.Participants = append(expense.Participants, &domain.ExpenseParticipant{
			ExpenseID: expense.ID,
			MemberID:  id,
			Amount:    shares[id],
		})
	}
	expense.UpdatedAt = op.CreatedAt
	return nil
}

func (m *Merger) applyExpenseToggleItemized(ctx context.Context, bill *domain.Bill, op *domain.Operation) error {
	if op.TargetID == nil {
		return fmt.Errorf("merge: EXPENSE_TOGGLE_ITEMIZED missing target id")
	}
	expense := bill.ExpenseByID(*op.TargetID)
	if expense == nil {
		logNoopTarget(ctx, op, "expense")
		return nil
	}
	var p domain.ExpenseToggleItemizedPayload
	if err := op.DecodePayload(&p); err != nil {
		return err
	}
	expense.IsItemized = p.IsItemized
	expense.UpdatedAt = op.CreatedAt
	return nil
}

func (m *Merger) applyItemAdd(ctx context.Context, bill *domain.Bill, op *domain.Operation) error {
	var p domain.ItemAddPayload
	if err := op.DecodePayload(&p); err != nil {
		return err
	}
	if op.TargetID == nil {
		return fmt.Errorf("merge: ITEM_ADD missing target id")
	}
	expense := bill.ExpenseByID(p.ExpenseID)
	if expense == nil {
		logNoopTarget(ctx, op, "expense")
		return nil
	}
	expense.Items = append(expense.Items, &domain.ExpenseItem{
		ID:             *op.TargetID,
		ExpenseID:      expense.ID,
		Name:           p.Name,
		Amount:         p.Amount,
		PaidByMemberID: p.PaidByID,
		CreatedAt:      op.CreatedAt,
		UpdatedAt:      op.CreatedAt,
	})
	return nil
}

func (m *Merger) applyItemUpdate(ctx context.Context, bill *domain.Bill, op *domain.Operation) error {
	if op.TargetID == nil {
		return fmt.Errorf("merge: ITEM_UPDATE missing target id")
	}
	item, _ := bill.ItemByID(*op.TargetID)
	if item == nil {
		logNoopTarget(ctx, op, "item")
		return nil
	}
	var p domain.ItemUpdatePayload
	if err := op.DecodePayload(&p); err != nil {
		return err
	}
	if p.Name != nil {
		item.Name = *p.Name
	}
	if p.Amount != nil {
		item.Amount = *p.Amount
	}
	if p.ClearPaidBy {
		item.PaidByMemberID = nil
	} else if p.PaidByID != nil {
		item.PaidByMemberID = p.PaidByID
	}
	item.UpdatedAt = op.CreatedAt
	return nil
}

func (m *Merger) applyItemDelete(ctx context.Context, bill *domain.Bill, op *domain.Operation) error {
	if op.TargetID == nil {
		return fmt.Errorf("merge: ITEM_DELETE missing target id")
	}
	item, _ := bill.ItemByID(*op.TargetID)
	if item == nil {
		logNoopTarget(ctx, op, "item")
		return nil
	}
	deletedAt := op.CreatedAt
	item.DeletedAt = &deletedAt
	item.UpdatedAt = op.CreatedAt
	return nil
}

func (m *Merger) applyItemSetParticipants(ctx context.Context, bill *domain.Bill, op *domain.Operation) error {
	if op.TargetID == nil {
		return fmt.Errorf("merge: ITEM_SET_PARTICIPANTS missing target id")
	}
	item, _ := bill.ItemByID(*op.TargetID)
	if item == nil {
		logNoopTarget(ctx, op, "item")
		return nil
	}
	var p domain.SetParticipantsPayload
	if err := op.DecodePayload(&p); err != nil {
		return err
	}
	live := make([]uuid.UUID, 0, len(p.ParticipantIDs))
	for _, id := range p.ParticipantIDs {
		if bill.IsLiveMember(id) {
			live = append(live, id)
		} else {
			log.Ctx(ctx).Warn().Str("memberId", id.String()).Msg("dropping ghost participant reference")
		}
	}
	shares := money.AllocateToMembers(item.Amount, live)
	item.Participants = make([]*domain.ExpenseItemParticipant, 0, len(live))
	for _, id := range live {
		item.Participants = append(item.Participants, &domain.ExpenseItemParticipant{
			ItemID:   item.ID,
			MemberID: id,
			Amount:   shares[id],
		})
	}
	item.UpdatedAt = op.CreatedAt
	return nil
}

func (m *Merger) applySettlementMark(bill *domain.Bill, op *domain.Operation) error {
	var p domain.SettlementMarkPayload
	if err := op.DecodePayload(&p); err != nil {
		return err
	}
	for _, t := range bill.SettledTransfers {
		if t.FromMemberID == p.FromMemberID && t.ToMemberID == p.ToMemberID {
			t.Amount = p.Amount
			t.SettledAt = op.CreatedAt
			return nil
		}
	}
	bill.SettledTransfers = append(bill.SettledTransfers, &domain.SettledTransfer{
		BillID:       bill.ID,
		FromMemberID: p.FromMemberID,
		ToMemberID:   p.ToMemberID,
		Amount:       p.Amount,
		SettledAt:    op.CreatedAt,
	})
	return nil
}

func (m *Merger) applySettlementUnmark(bill *domain.Bill, op *domain.Operation) error {
	var p domain.SettlementUnmarkPayload
	if err := op.DecodePayload(&p); err != nil {
		return err
	}
	kept := bill.SettledTransfers[:0]
	for _, t := range bill.SettledTransfers {
		if t.FromMemberID == p.FromMemberID && t.ToMemberID == p.ToMemberID {
			continue
		}
		kept = append(kept, t)
	}
	bill.SettledTransfers = kept
	return nil
}

func logNoopTarget(ctx context.Context, op *domain.Operation, kind string) {
	id := "<nil>"
	if op.TargetID != nil {
		id = op.TargetID.String()
	}
	log.Ctx(ctx).Warn().
		Str("opType", string(op.OpType)).
		Str("kind", kind).
		Str("targetId", id).
		Msg("operation targets an entity that no longer resolves; applying as no-op")
}
