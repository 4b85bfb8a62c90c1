package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/snapsplit/sync-core/internal/authcheck"
	"github.com/snapsplit/sync-core/internal/domain"
	"github.com/snapsplit/sync-core/internal/money"
	"github.com/snapsplit/sync-core/internal/shareid"
	"github.com/snapsplit/sync-core/internal/util"
	"github.com/snapsplit/sync-core/internal/websocket"
)

// BulkSyncService implements the one-shot full-state sync used by clients
// that have been offline long enough that replaying the fine-grained
// operation log would be wasteful. Under a version conflict it still merges
// ADDs (the client's in-flight creations) while skipping UPDATE/DELETE of
// entities the server has since changed.
type BulkSyncService struct {
	bills     domain.BillRepository
	clock     util.Clock
	shareIDs  *shareid.Generator
	publisher websocket.EventPublisher
}

// NewBulkSyncService creates a BulkSyncService.
func NewBulkSyncService(bills domain.BillRepository, clock util.Clock, shareIDs *shareid.Generator) *BulkSyncService {
	return &BulkSyncService{bills: bills, clock: clock, shareIDs: shareIDs}
}

// SetEventPublisher sets the event publisher for real-time updates.
func (s *BulkSyncService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.publisher = publisher
}

func (s *BulkSyncService) publishEvent(billID uuid.UUID, event websocket.Event) {
	if s.publisher != nil {
		s.publisher.Publish(billID, event)
	}
}

type memberResolver func(ref string) (uuid.UUID, bool)

// BulkSync identifies or creates the target bill, merges the request's
// upsert/delete sets, penny-allocates any participant set that was
// (re)written, and bumps the bill's version exactly once. When req names an
// existing bill and the caller carries a resolved identity, that identity
// must own or participate in the bill or the sync is rejected.
func (s *BulkSyncService) BulkSync(ctx context.Context, req domain.SyncBillRequest, owner *uuid.UUID, actorID *uuid.UUID) (*domain.SyncBillResponse, error) {
	var resp *domain.SyncBillResponse
	var publishBillID uuid.UUID
	var publishVersion int64

	err := s.bills.WithTx(ctx, func(ctx context.Context, tx domain.BillRepository) error {
		var bill *domain.Bill

		switch {
		case req.RemoteID != nil:
			loaded, err := tx.GetForUpdate(ctx, *req.RemoteID)
			if err != nil {
				return err
			}
			// RequireBillAccess can't gate this route: the target bill is
			// named by RemoteID in the body, not a path param. Enforce it
			// here instead, once the bill is loaded and an identity known.
			if actorID != nil && !authcheck.IsOwnerOrParticipantInBill(loaded, *actorID) {
				return domain.ErrForbidden
			}
			bill = loaded

		case req.LocalID != "":
			existing, err := tx.GetByLocalClientOwner(ctx, req.LocalID, owner)
			if err == nil {
				// Idempotent replay: the bill already exists for this
				// (local_id, owner) pair. No mutation, no version bump.
				resp = &domain.SyncBillResponse{
					RemoteID:   existing.ID,
					Version:    existing.Version,
					ShareCode:  existing.ShareCode,
					IDMappings: mappingsFromStoredBill(existing),
					ServerTime: s.clock.Now(),
					LatestBill: existing,
				}
				return nil
			}
			if !errors.Is(err, domain.ErrBillNotFound) {
				return err
			}
			code, cerr := s.shareIDs.Generate()
			if cerr != nil {
				return cerr
			}
			localID := req.LocalID
			name := "Untitled Bill"
			if req.Name != nil {
				name = *req.Name
			}
			created, err := tx.Create(ctx, &domain.Bill{
				Name:          name,
				OwnerUserID:   owner,
				ShareCode:     code,
				LocalClientID: &localID,
			})
			if err != nil {
				return err
			}
			bill = created

		default:
			return domain.ErrInvalidInput
		}

		hasConflict := req.RemoteID != nil && req.BaseVersion < bill.Version
		mappings := domain.NewIDMappings()

		if req.Name != nil && !hasConflict {
			bill.Name = *req.Name
		}

		if err := s.mergeMembers(ctx, tx, bill, req, hasConflict, mappings); err != nil {
			return err
		}
		resolve := func(ref string) (uuid.UUID, bool) {
			if id, ok := mappings.Members[ref]; ok {
				return id, true
			}
			if id, err := uuid.Parse(ref); err == nil && bill.IsLiveMember(id) {
				return id, true
			}
			return uuid.Nil, false
		}
		if err := s.mergeExpenses(ctx, tx, bill, req, hasConflict, mappings, resolve); err != nil {
			return err
		}
		if err := s.mergeSettledTransfers(ctx, tx, bill, req, resolve); err != nil {
			return err
		}

		nextVersion := bill.Version + 1
		var nameUpdate *string
		if req.Name != nil && !hasConflict {
			nameUpdate = req.Name
		}
		if err := tx.UpdateVersionAndMeta(ctx, bill.ID, nextVersion, nameUpdate); err != nil {
			return err
		}
		bill.Version = nextVersion

		var latest *domain.Bill
		if hasConflict {
			reloaded, err := tx.Get(ctx, bill.ID)
			if err != nil {
				return err
			}
			latest = reloaded
		}

		resp = &domain.SyncBillResponse{
			RemoteID:    bill.ID,
			Version:     bill.Version,
			ShareCode:   bill.ShareCode,
			IDMappings:  mappings,
			ServerTime:  s.clock.Now(),
			HasConflict: hasConflict,
			LatestBill:  latest,
		}
		publishBillID = bill.ID
		publishVersion = bill.Version
		return nil
	})
	if err != nil {
		return nil, err
	}

	if publishBillID != uuid.Nil {
		s.publishEvent(publishBillID, websocket.BillUpdated(map[string]interface{}{
			"billId":     publishBillID,
			"newVersion": publishVersion,
			"updatedBy":  actorLabel(actorID),
		}))
	}
	return resp, nil
}

func (s *BulkSyncService) findExistingMemberByLocalID(bill *domain.Bill, localID string) *domain.Member {
	for _, m := range bill.Members {
		if m.DeletedAt == nil && m.LocalClientID != nil && *m.LocalClientID == localID {
			return m
		}
	}
	return nil
}

func (s *BulkSyncService) findExistingExpenseByLocalID(bill *domain.Bill, localID string) *domain.Expense {
	for _, e := range bill.Expenses {
		if e.DeletedAt == nil && e.LocalClientID != nil && *e.LocalClientID == localID {
			return e
		}
	}
	return nil
}

func (s *BulkSyncService) findExistingItemByLocalID(e *domain.Expense, localID string) *domain.ExpenseItem {
	for _, it := range e.Items {
		if it.DeletedAt == nil && it.LocalClientID != nil && *it.LocalClientID == localID {
			return it
		}
	}
	return nil
}

func (s *BulkSyncService) mergeMembers(ctx context.Context, tx domain.BillRepository, bill *domain.Bill, req domain.SyncBillRequest, hasConflict bool, mappings domain.IDMappings) error {
	for _, mu := range req.Members {
		if mu.RemoteID == nil {
			if existing := s.findExistingMemberByLocalID(bill, mu.LocalID); existing != nil {
				mappings.Members[mu.LocalID] = existing.ID
				continue
			}
			localID := mu.LocalID
			order := len(bill.Members)
			if mu.DisplayOrder != nil {
				order = *mu.DisplayOrder
			}
			created, err := tx.AddMember(ctx, bill.ID, &domain.Member{
				Name:          mu.Name,
				DisplayOrder:  order,
				LocalClientID: &localID,
			})
			if err != nil {
				return err
			}
			bill.Members = append(bill.Members, created)
			mappings.Members[mu.LocalID] = created.ID
			continue
		}

		mappings.Members[mu.LocalID] = *mu.RemoteID
		if hasConflict {
			continue
		}
		existing := bill.MemberByID(*mu.RemoteID)
		if existing == nil {
			continue
		}
		existing.Name = mu.Name
		if mu.DisplayOrder != nil {
			existing.DisplayOrder = *mu.DisplayOrder
		}
		if err := tx.UpdateMember(ctx, bill.ID, existing); err != nil {
			return err
		}
	}

	if !hasConflict {
		for _, id := range req.DeletedMemberIDs {
			if err := tx.RemoveSettledTransfersForMember(ctx, bill.ID, id); err != nil {
				return err
			}
			if err := tx.RemoveMember(ctx, bill.ID, id); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *BulkSyncService) mergeExpenses(ctx context.Context, tx domain.BillRepository, bill *domain.Bill, req domain.SyncBillRequest, hasConflict bool, mappings domain.IDMappings, resolve memberResolver) error {
	for _, eu := range req.Expenses {
		var expense *domain.Expense

		if eu.RemoteID == nil {
			if existing := s.findExistingExpenseByLocalID(bill, eu.LocalID); existing != nil {
				mappings.Expenses[eu.LocalID] = existing.ID
				expense = existing
			} else {
				localID := eu.LocalID
				e := &domain.Expense{
					Name:              eu.Name,
					Amount:            eu.Amount,
					ServiceFeePercent: eu.ServiceFeePercent,
					IsItemized:        eu.IsItemized,
					LocalClientID:     &localID,
				}
				resolvePaidBy(e, &e.PaidByMemberID, eu.PaidByLocalID, eu.PaidByID, resolve)
				created, err := tx.AddExpense(ctx, bill.ID, e)
				if err != nil {
					return err
				}
				bill.Expenses = append(bill.Expenses, created)
				mappings.Expenses[eu.LocalID] = created.ID
				expense = created
			}
		} else {
			mappings.Expenses[eu.LocalID] = *eu.RemoteID
			if hasConflict {
				continue
			}
			existing := bill.ExpenseByID(*eu.RemoteID)
			if existing == nil {
				continue
			}
			existing.Name = eu.Name
			existing.Amount = eu.Amount
			existing.ServiceFeePercent = eu.ServiceFeePercent
			existing.IsItemized = eu.IsItemized
			resolvePaidBy(existing, &existing.PaidByMemberID, eu.PaidByLocalID, eu.PaidByID, resolve)
			if err := tx.UpdateExpense(ctx, bill.ID, existing); err != nil {
				return err
			}
			expense = existing
		}

		if eu.Participants != nil {
			if err := s.writeExpenseParticipants(ctx, tx, expense, eu.Participants, resolve); err != nil {
				return err
			}
		}
		if err := s.mergeItems(ctx, tx, bill, expense, eu.Items, mappings, resolve); err != nil {
			return err
		}
	}

	if !hasConflict {
		for _, id := range req.DeletedExpenseIDs {
			if err := tx.RemoveExpense(ctx, bill.ID, id); err != nil {
				return err
			}
		}
		for _, id := range req.DeletedItemIDs {
			if err := tx.RemoveItem(ctx, id); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *BulkSyncService) mergeItems(ctx context.Context, tx domain.BillRepository, bill *domain.Bill, expense *domain.Expense, items []domain.ItemUpsert, mappings domain.IDMappings, resolve memberResolver) error {
	for _, iu := range items {
		var item *domain.ExpenseItem

		if iu.RemoteID == nil {
			if existing := s.findExistingItemByLocalID(expense, iu.LocalID); existing != nil {
				mappings.ExpenseItems[iu.LocalID] = existing.ID
				item = existing
			} else {
				localID := iu.LocalID
				it := &domain.ExpenseItem{
					ExpenseID:     expense.ID,
					Name:          iu.Name,
					Amount:        iu.Amount,
					LocalClientID: &localID,
				}
				resolvePaidBy(it, &it.PaidByMemberID, iu.PaidByLocalID, iu.PaidByID, resolve)
				created, err := tx.AddItem(ctx, expense.ID, it)
				if err != nil {
					return err
				}
				expense.Items = append(expense.Items, created)
				mappings.ExpenseItems[iu.LocalID] = created.ID
				item = created
			}
		} else {
			mappings.ExpenseItems[iu.LocalID] = *iu.RemoteID
			for _, existing := range expense.Items {
				if existing.ID == *iu.RemoteID {
					item = existing
					break
				}
			}
			if item == nil {
				continue
			}
			item.Name = iu.Name
			item.Amount = iu.Amount
			resolvePaidBy(item, &item.PaidByMemberID, iu.PaidByLocalID, iu.PaidByID, resolve)
			if err := tx.UpdateItem(ctx, item); err != nil {
				return err
			}
		}

		if iu.Participants != nil {
			live := liveMembers(iu.Participants, bill, resolve)
			shares := money.AllocateToMembers(item.Amount, live)
			participants := make([]*domain.ExpenseItemParticipant, 0, len(live))
			for _, id := range live {
				participants = append(participants, &domain.ExpenseItemParticipant{ItemID: item.ID, MemberID: id, Amount: shares[id]})
			}
			item.Participants = participants
			if err := tx.SetItemParticipants(ctx, item.ID, participants); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *BulkSyncService) writeExpenseParticipants(ctx context.Context, tx domain.BillRepository, expense *domain.Expense, refs []string, resolve memberResolver) error {
	live := make([]uuid.UUID, 0, len(refs))
	for _, ref := range refs {
		if id, ok := resolve(ref); ok {
			live = append(live, id)
		}
	}
	total := money.ApplyServiceFee(expense.Amount, expense.ServiceFeePercent)
	shares := money.AllocateToMembers(total, live)
	participants := make([]*domain.ExpenseParticipant, 0, len(live))
	for _, id := range live {
		participants = append(participants, &domain.ExpenseParticipant{ExpenseID: expense.ID, MemberID: id, Amount: shares[id]})
	}
	expense.Participants = participants
	return tx.SetExpenseParticipants(ctx, expense.ID, participants)
}

func (s *BulkSyncService) mergeSettledTransfers(ctx context.Context, tx domain.BillRepository, bill *domain.Bill, req domain.SyncBillRequest, resolve memberResolver) error {
	for _, raw := range req.SettledTransfers {
		parsed, ok := money.ParseTransferKey(raw)
		if !ok || parsed.Amount == nil {
			continue
		}
		fromID, fromOK := resolve(parsed.FromRaw)
		toID, toOK := resolve(parsed.ToRaw)
		if !fromOK || !toOK {
			continue
		}
		if err := tx.UpsertSettledTransfer(ctx, &domain.SettledTransfer{
			BillID:       bill.ID,
			FromMemberID: fromID,
			ToMemberID:   toID,
			Amount:       *parsed.Amount,
			SettledAt:    s.clock.Now(),
		}); err != nil {
			return err
		}
	}
	for _, raw := range req.RemovedSettledTransfers {
		parsed, ok := money.ParseTransferKey(raw)
		if !ok {
			continue
		}
		fromID, fromOK := resolve(parsed.FromRaw)
		toID, toOK := resolve(parsed.ToRaw)
		if !fromOK || !toOK {
			continue
		}
		if err := tx.RemoveSettledTransfer(ctx, bill.ID, fromID, toID); err != nil {
			return err
		}
	}
	return nil
}

func resolvePaidBy(entity interface{}, target **uuid.UUID, localRef *string, directID *uuid.UUID, resolve memberResolver) {
	if localRef != nil {
		if id, ok := resolve(*localRef); ok {
			*target = &id
		}
		return
	}
	if directID != nil {
		*target = directID
	}
}

func liveMembers(refs []string, bill *domain.Bill, resolve memberResolver) []uuid.UUID {
	live := make([]uuid.UUID, 0, len(refs))
	for _, ref := range refs {
		if id, ok := resolve(ref); ok && bill.IsLiveMember(id) {
			live = append(live, id)
		}
	}
	return live
}

func mappingsFromStoredBill(bill *domain.Bill) domain.IDMappings {
	m := domain.NewIDMappings()
	for _, mem := range bill.Members {
		if mem.LocalClientID != nil {
			m.Members[*mem.LocalClientID] = mem.ID
		}
	}
	for _, e := range bill.Expenses {
		if e.LocalClientID != nil {
			m.Expenses[*e.LocalClientID] = e.ID
		}
		for _, it := range e.Items {
			if it.LocalClientID != nil {
				m.ExpenseItems[*it.LocalClientID] = it.ID
			}
		}
	}
	return m
}
