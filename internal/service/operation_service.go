package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/snapsplit/sync-core/internal/domain"
	"github.com/snapsplit/sync-core/internal/merge"
	"github.com/snapsplit/sync-core/internal/util"
	"github.com/snapsplit/sync-core/internal/websocket"
)

// OperationService implements the fine-grained operation log: version-gated
// admission of a single typed edit, and the rebase stream that lets a
// client catch up after a conflict.
type OperationService struct {
	bills     domain.BillRepository
	ops       domain.OperationRepository
	merger    *merge.Merger
	clock     util.Clock
	publisher websocket.EventPublisher
}

// NewOperationService creates an OperationService.
func NewOperationService(bills domain.BillRepository, ops domain.OperationRepository, clock util.Clock) *OperationService {
	return &OperationService{
		bills:  bills,
		ops:    ops,
		merger: merge.New(),
		clock:  clock,
	}
}

// SetEventPublisher sets the event publisher for real-time updates.
func (s *OperationService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.publisher = publisher
}

func (s *OperationService) publishEvent(billID uuid.UUID, event websocket.Event) {
	if s.publisher != nil {
		s.publisher.Publish(billID, event)
	}
}

// ProcessOperation admits one operation onto billID's log.
//
// State machine: Received -> Locked -> VersionChecked -> Applied ->
// Committed on success; Received -> Locked -> VersionChecked(mismatch) ->
// Rejected on conflict (returns a non-nil *domain.OperationConflict, nil
// error); any step may fail transiently (non-nil error), which the caller
// may retry.
func (s *OperationService) ProcessOperation(ctx context.Context, billID uuid.UUID, req domain.OperationRequest) (*domain.Operation, *domain.OperationConflict, error) {
	var accepted *domain.Operation
	var conflict *domain.OperationConflict

	err := s.bills.WithTx(ctx, func(ctx context.Context, tx domain.BillRepository) error {
		bill, err := tx.GetForUpdate(ctx, billID)
		if err != nil {
			return err
		}

		if req.BaseVersion != bill.Version {
			missing, err := s.ops.ListSince(ctx, billID, req.BaseVersion)
			if err != nil {
				return err
			}
			conflict = &domain.OperationConflict{CurrentVersion: bill.Version, MissingOperations: missing}
			return nil
		}

		nextVersion := bill.Version + 1
		op := &domain.Operation{
			ID:        uuid.New(),
			BillID:    billID,
			Version:   nextVersion,
			OpType:    req.OpType,
			TargetID:  req.TargetID,
			Payload:   req.Payload,
			ActorID:   req.ActorID,
			ClientID:  req.ClientID,
			CreatedAt: s.clock.Now(),
		}

		if err := s.merger.Apply(ctx, bill, op); err != nil {
			return err
		}
		if err := persistMergedOp(ctx, tx, bill, op); err != nil {
			return err
		}
		var nameUpdate *string
		if op.OpType == domain.OpBillUpdateMeta {
			nameUpdate = &bill.Name
		}
		if err := tx.UpdateVersionAndMeta(ctx, billID, nextVersion, nameUpdate); err != nil {
			return err
		}

		if err := s.ops.Append(ctx, op); err != nil {
			if errors.Is(err, domain.ErrStaleWrite) {
				missing, lerr := s.ops.ListSince(ctx, billID, req.BaseVersion)
				if lerr != nil {
					return lerr
				}
				conflict = &domain.OperationConflict{CurrentVersion: bill.Version, MissingOperations: missing}
				return nil
			}
			return err
		}

		accepted = op
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if conflict != nil {
		return nil, conflict, nil
	}

	s.publishEvent(billID, websocket.BillUpdated(map[string]interface{}{
		"billId":     billID,
		"newVersion": accepted.Version,
		"updatedBy":  actorLabel(accepted.ActorID),
	}))
	s.publishEvent(billID, websocket.OperationApplied(accepted))

	return accepted, nil, nil
}

// GetOperationsSince returns the operations a client needs to rebase past
// sinceVersion, ascending.
func (s *OperationService) GetOperationsSince(ctx context.Context, billID uuid.UUID, sinceVersion int64) ([]*domain.Operation, error) {
	return s.ops.ListSince(ctx, billID, sinceVersion)
}

func actorLabel(actorID *uuid.UUID) string {
	if actorID == nil {
		return "anonymous"
	}
	return actorID.String()
}

// persistMergedOp writes the in-memory mutation the merger just applied to
// bill back through tx's granular repository methods. The merger only ever
// touches the aggregate held in memory; this is the one place a mutation
// becomes durable.
func persistMergedOp(ctx context.Context, tx domain.BillRepository, bill *domain.Bill, op *domain.Operation) error {
	switch op.OpType {
	case domain.OpBillUpdateMeta:
		// The merger already wrote the new name onto bill.Name; the
		// caller's UpdateVersionAndMeta persists it alongside the version bump.
		return nil

	case domain.OpMemberAdd:
		if op.TargetID == nil {
			return nil
		}
		member := bill.MemberByID(*op.TargetID)
		if member == nil {
			return nil
		}
		_, err := tx.AddMember(ctx, bill.ID, member)
		return err

	case domain.OpMemberUpdate, domain.OpMemberClaim, domain.OpMemberUnclaim:
		if op.TargetID == nil {
			return nil
		}
		member := bill.MemberByID(*op.TargetID)
		if member == nil {
			return nil
		}
		return tx.UpdateMember(ctx, bill.ID, member)

	case domain.OpMemberReorder:
		order := make([]uuid.UUID, 0, len(bill.Members))
		for _, m := range bill.Members {
			if m.DeletedAt == nil {
				order = append(order, m.ID)
			}
		}
		return tx.ReorderMembers(ctx, bill.ID, order)

	case domain.OpMemberRemove:
		if op.TargetID == nil {
			return nil
		}
		if err := tx.RemoveSettledTransfersForMember(ctx, bill.ID, *op.TargetID); err != nil {
			return err
		}
		return tx.RemoveMember(ctx, bill.ID, *op.TargetID)

	case domain.OpExpenseAdd:
		if op.TargetID == nil {
			return nil
		}
		expense := bill.ExpenseByID(*op.TargetID)
		if expense == nil {
			return nil
		}
		_, err := tx.AddExpense(ctx, bill.ID, expense)
		return err

	case domain.OpExpenseUpdate, domain.OpExpenseToggleItemized:
		if op.TargetID == nil {
			return nil
		}
		expense := bill.ExpenseByID(*op.TargetID)
		if expense == nil {
			return nil
		}
		return tx.UpdateExpense(ctx, bill.ID, expense)

	case domain.OpExpenseDelete:
		if op.TargetID == nil {
			return nil
		}
		return tx.RemoveExpense(ctx, bill.ID, *op.TargetID)

	case domain.OpExpenseSetParticipants:
		if op.TargetID == nil {
			return nil
		}
		expense := bill.ExpenseByID(*op.TargetID)
		if expense == nil {
			return nil
		}
		return tx.SetExpenseParticipants(ctx, expense.ID, expense.Participants)

	case domain.OpItemAdd:
		if op.TargetID == nil {
			return nil
		}
		item, _ := bill.ItemByID(*op.TargetID)
		if item == nil {
			return nil
		}
		_, err := tx.AddItem(ctx, item.ExpenseID, item)
		return err

	case domain.OpItemUpdate:
		if op.TargetID == nil {
			return nil
		}
		item, _ := bill.ItemByID(*op.TargetID)
		if item == nil {
			return nil
		}
		return tx.UpdateItem(ctx, item)

	case domain.OpItemDelete:
		if op.TargetID == nil {
			return nil
		}
		return tx.RemoveItem(ctx, *op.TargetID)

	case domain.OpItemSetParticipants:
		if op.TargetID == nil {
			return nil
		}
		item, _ := bill.ItemByID(*op.TargetID)
		if item == nil {
			return nil
		}
		return tx.SetItemParticipants(ctx, item.ID, item.Participants)

	case domain.OpSettlementMark:
		var p domain.SettlementMarkPayload
		if err := op.DecodePayload(&p); err != nil {
			return err
		}
		for _, t := range bill.SettledTransfers {
			if t.FromMemberID == p.FromMemberID && t.ToMemberID == p.ToMemberID {
				return tx.UpsertSettledTransfer(ctx, t)
			}
		}
		return nil

	case domain.OpSettlementUnmark:
		var p domain.SettlementUnmarkPayload
		if err := op.DecodePayload(&p); err != nil {
			return err
		}
		return tx.RemoveSettledTransfer(ctx, bill.ID, p.FromMemberID, p.ToMemberID)

	case domain.OpSettlementClearAll:
		return tx.ClearSettledTransfers(ctx, bill.ID)

	default:
		return fmt.Errorf("service: unhandled op type %q", op.OpType)
	}
}
