package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/snapsplit/sync-core/internal/domain"
	"github.com/snapsplit/sync-core/internal/money"
	"github.com/snapsplit/sync-core/internal/util"
	"github.com/snapsplit/sync-core/internal/websocket"
)

// DeltaSyncService implements the structured sync variant: changes arrive as
// explicit add/update/delete lists per entity type, conflicts resolve
// per-field instead of whole-bill, and a reference to a member the server
// can't resolve fails the entire request before any write lands.
type DeltaSyncService struct {
	bills     domain.BillRepository
	clock     util.Clock
	publisher websocket.EventPublisher
}

// NewDeltaSyncService creates a DeltaSyncService.
func NewDeltaSyncService(bills domain.BillRepository, clock util.Clock) *DeltaSyncService {
	return &DeltaSyncService{bills: bills, clock: clock}
}

// SetEventPublisher sets the event publisher for real-time updates.
func (s *DeltaSyncService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.publisher = publisher
}

func (s *DeltaSyncService) publishEvent(billID uuid.UUID, event websocket.Event) {
	if s.publisher != nil {
		s.publisher.Publish(billID, event)
	}
}

// DeltaSync merges req into billID's bill. Every add/update member reference
// is resolved against req's own id mappings plus the bill's live members
// before any write happens; an unresolvable reference fails the whole
// request with ErrInvalidMemberReference and nothing is persisted.
func (s *DeltaSyncService) DeltaSync(ctx context.Context, billID uuid.UUID, req domain.DeltaSyncRequest, actorID *uuid.UUID) (*domain.DeltaSyncResponse, error) {
	var resp *domain.DeltaSyncResponse
	var publishBillID uuid.UUID
	var publishVersion int64

	err := s.bills.WithTx(ctx, func(ctx context.Context, tx domain.BillRepository) error {
		bill, err := tx.GetForUpdate(ctx, billID)
		if err != nil {
			return err
		}

		hasConflict := req.BaseVersion < bill.Version
		mappings := domain.NewIDMappings()
		expenseIDs := make(map[string]uuid.UUID)

		for _, mu := range req.AddMembers {
			if existing := s.findMemberByLocalID(bill, mu.LocalID); existing != nil {
				mappings.Members[mu.LocalID] = existing.ID
				continue
			}
			mappings.Members[mu.LocalID] = uuid.New()
		}
		for _, mu := range req.UpdateMembers {
			if mu.RemoteID != nil {
				mappings.Members[mu.LocalID] = *mu.RemoteID
			}
		}
		for _, eu := range req.AddExpenses {
			if existing := s.findExpenseByLocalID(bill, eu.LocalID); existing != nil {
				expenseIDs[eu.LocalID] = existing.ID
				continue
			}
			expenseIDs[eu.LocalID] = uuid.New()
		}
		for _, eu := range req.UpdateExpenses {
			if eu.RemoteID != nil {
				expenseIDs[eu.LocalID] = *eu.RemoteID
			}
		}

		resolveMember := func(ref string) (uuid.UUID, bool) {
			if id, ok := mappings.Members[ref]; ok {
				return id, true
			}
			if id, err := uuid.Parse(ref); err == nil && bill.IsLiveMember(id) {
				return id, true
			}
			return uuid.Nil, false
		}

		if err := validateMemberReferences(req, resolveMember); err != nil {
			return err
		}

		var conflicts []domain.ConflictInfo

		s.mergeMembers(ctx, tx, bill, req, hasConflict, mappings, &conflicts)
		if err := s.mergeExpenses(ctx, tx, bill, req, hasConflict, mappings, expenseIDs, resolveMember, &conflicts); err != nil {
			return err
		}
		if err := s.mergeTopLevelItems(ctx, tx, bill, req, hasConflict, mappings, expenseIDs, resolveMember, &conflicts); err != nil {
			return err
		}
		s.mergeSettledTransfers(ctx, tx, bill, req, resolveMember)

		nextVersion := bill.Version + 1
		if err := tx.UpdateVersionAndMeta(ctx, bill.ID, nextVersion, req.Name); err != nil {
			return err
		}
		bill.Version = nextVersion

		var merged *domain.Bill
		if hasConflict || len(conflicts) > 0 {
			reloaded, err := tx.Get(ctx, bill.ID)
			if err != nil {
				return err
			}
			merged = reloaded
		}

		resp = &domain.DeltaSyncResponse{
			Success:    true,
			NewVersion: bill.Version,
			IDMappings: mappings,
			Conflicts:  conflicts,
			MergedBill: merged,
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

func (s *DeltaSyncService) findMemberByLocalID(bill *domain.Bill, localID string) *domain.Member {
	for _, m := range bill.Members {
		if m.DeletedAt == nil && m.LocalClientID != nil && *m.LocalClientID == localID {
			return m
		}
	}
	return nil
}

func (s *DeltaSyncService) findExpenseByLocalID(bill *domain.Bill, localID string) *domain.Expense {
	for _, e := range bill.Expenses {
		if e.DeletedAt == nil && e.LocalClientID != nil && *e.LocalClientID == localID {
			return e
		}
	}
	return nil
}

func (s *DeltaSyncService) findItemByLocalID(e *domain.Expense, localID string) *domain.ExpenseItem {
	for _, it := range e.Items {
		if it.DeletedAt == nil && it.LocalClientID != nil && *it.LocalClientID == localID {
			return it
		}
	}
	return nil
}

// validateMemberReferences resolves every payer/participant reference on
// every add/update entity before any write happens, per the ghost-reference
// rejection rule: one bad reference fails the whole request.
func validateMemberReferences(req domain.DeltaSyncRequest, resolve memberResolver) error {
	checkRef := func(localRef *string, directID *uuid.UUID) error {
		if localRef != nil {
			if _, ok := resolve(*localRef); !ok {
				return domain.ErrInvalidMemberReference
			}
		}
		if directID != nil {
			if _, ok := resolve(directID.String()); !ok {
				return domain.ErrInvalidMemberReference
			}
		}
		return nil
	}
	checkRefs := func(refs []string) error {
		for _, ref := range refs {
			if _, ok := resolve(ref); !ok {
				return domain.ErrInvalidMemberReference
			}
		}
		return nil
	}

	for _, eu := range append(append([]domain.ExpenseUpsert{}, req.AddExpenses...), req.UpdateExpenses...) {
		if err := checkRef(eu.PaidByLocalID, eu.PaidByID); err != nil {
			return err
		}
		if err := checkRefs(eu.Participants); err != nil {
			return err
		}
		for _, iu := range eu.Items {
			if err := checkRef(iu.PaidByLocalID, iu.PaidByID); err != nil {
				return err
			}
			if err := checkRefs(iu.Participants); err != nil {
				return err
			}
		}
	}
	for _, iu := range append(append([]domain.ItemUpsert{}, req.AddItems...), req.UpdateItems...) {
		if err := checkRef(iu.PaidByLocalID, iu.PaidByID); err != nil {
			return err
		}
		if err := checkRefs(iu.Participants); err != nil {
			return err
		}
	}
	return nil
}

func (s *DeltaSyncService) mergeMembers(ctx context.Context, tx domain.BillRepository, bill *domain.Bill, req domain.DeltaSyncRequest, hasConflict bool, mappings domain.IDMappings, conflicts *[]domain.ConflictInfo) {
	for _, mu := range req.AddMembers {
		if existing := s.findMemberByLocalID(bill, mu.LocalID); existing != nil {
			continue
		}
		localID := mu.LocalID
		order := len(bill.Members)
		if mu.DisplayOrder != nil {
			order = *mu.DisplayOrder
		}
		m := &domain.Member{ID: mappings.Members[mu.LocalID], Name: mu.Name, DisplayOrder: order, LocalClientID: &localID}
		created, err := tx.AddMember(ctx, bill.ID, m)
		if err == nil {
			bill.Members = append(bill.Members, created)
		}
	}
	for _, mu := range req.UpdateMembers {
		if mu.RemoteID == nil {
			continue
		}
		if hasConflict {
			*conflicts = append(*conflicts, domain.ConflictInfo{EntityType: "member", EntityID: *mu.RemoteID, Resolution: domain.ResolutionServerWins})
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
		_ = tx.UpdateMember(ctx, bill.ID, existing)
	}
	for _, id := range req.DeleteMembers {
		if hasConflict {
			*conflicts = append(*conflicts, domain.ConflictInfo{EntityType: "member", EntityID: id, Resolution: domain.ResolutionManualRequired})
			continue
		}
		_ = tx.RemoveSettledTransfersForMember(ctx, bill.ID, id)
		_ = tx.RemoveMember(ctx, bill.ID, id)
	}
}

func (s *DeltaSyncService) mergeExpenses(ctx context.Context, tx domain.BillRepository, bill *domain.Bill, req domain.DeltaSyncRequest, hasConflict bool, mappings domain.IDMappings, expenseIDs map[string]uuid.UUID, resolve memberResolver, conflicts *[]domain.ConflictInfo) error {
	for _, eu := range req.AddExpenses {
		var expense *domain.Expense
		if existing := s.findExpenseByLocalID(bill, eu.LocalID); existing != nil {
			expense = existing
		} else {
			localID := eu.LocalID
			e := &domain.Expense{
				ID:                expenseIDs[eu.LocalID],
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
			expense = created
		}
		mappings.Expenses[eu.LocalID] = expense.ID
		if eu.Participants != nil {
			if err := s.writeExpenseParticipants(ctx, tx, expense, eu.Participants, resolve); err != nil {
				return err
			}
		}
		if err := s.mergeNestedItems(ctx, tx, bill, expense, eu.Items, mappings, resolve); err != nil {
			return err
		}
	}

	for _, eu := range req.UpdateExpenses {
		if eu.RemoteID == nil {
			continue
		}
		mappings.Expenses[eu.LocalID] = *eu.RemoteID
		if hasConflict {
			*conflicts = append(*conflicts, domain.ConflictInfo{EntityType: "expense", EntityID: *eu.RemoteID, Resolution: domain.ResolutionServerWins})
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
		if eu.Participants != nil {
			if err := s.writeExpenseParticipants(ctx, tx, existing, eu.Participants, resolve); err != nil {
				return err
			}
		}
		if err := s.mergeNestedItems(ctx, tx, bill, existing, eu.Items, mappings, resolve); err != nil {
			return err
		}
	}

	for _, id := range req.DeleteExpenses {
		if hasConflict {
			*conflicts = append(*conflicts, domain.ConflictInfo{EntityType: "expense", EntityID: id, Resolution: domain.ResolutionManualRequired})
			continue
		}
		if err := tx.RemoveExpense(ctx, bill.ID, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *DeltaSyncService) mergeNestedItems(ctx context.Context, tx domain.BillRepository, bill *domain.Bill, expense *domain.Expense, items []domain.ItemUpsert, mappings domain.IDMappings, resolve memberResolver) error {
	for _, iu := range items {
		if err := s.upsertItem(ctx, tx, bill, expense, iu, mappings, resolve); err != nil {
			return err
		}
	}
	return nil
}

// mergeTopLevelItems handles DeltaSyncRequest's flat AddItems/UpdateItems/
// DeleteItems lists, whose parent expense is named explicitly rather than
// implied by nesting.
func (s *DeltaSyncService) mergeTopLevelItems(ctx context.Context, tx domain.BillRepository, bill *domain.Bill, req domain.DeltaSyncRequest, hasConflict bool, mappings domain.IDMappings, expenseIDs map[string]uuid.UUID, resolve memberResolver, conflicts *[]domain.ConflictInfo) error {
	resolveExpense := func(iu domain.ItemUpsert) *domain.Expense {
		if iu.ExpenseID != nil {
			return bill.ExpenseByID(*iu.ExpenseID)
		}
		if iu.ExpenseLocalID != nil {
			if id, ok := expenseIDs[*iu.ExpenseLocalID]; ok {
				return bill.ExpenseByID(id)
			}
		}
		return nil
	}

	for _, iu := range req.AddItems {
		expense := resolveExpense(iu)
		if expense == nil {
			continue
		}
		if err := s.upsertItem(ctx, tx, bill, expense, iu, mappings, resolve); err != nil {
			return err
		}
	}
	for _, iu := range req.UpdateItems {
		if iu.RemoteID == nil {
			continue
		}
		mappings.ExpenseItems[iu.LocalID] = *iu.RemoteID
		if hasConflict {
			*conflicts = append(*conflicts, domain.ConflictInfo{EntityType: "item", EntityID: *iu.RemoteID, Resolution: domain.ResolutionServerWins})
			continue
		}
		expense := resolveExpense(iu)
		if expense == nil {
			continue
		}
		item := s.findItemByLocalID(expense, iu.LocalID)
		if item == nil {
			for _, it := range expense.Items {
				if it.ID == *iu.RemoteID {
					item = it
					break
				}
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
		if iu.Participants != nil {
			if err := s.writeItemParticipants(ctx, tx, bill, item, iu.Participants, resolve); err != nil {
				return err
			}
		}
	}
	for _, id := range req.DeleteItems {
		if hasConflict {
			*conflicts = append(*conflicts, domain.ConflictInfo{EntityType: "item", EntityID: id, Resolution: domain.ResolutionManualRequired})
			continue
		}
		if err := tx.RemoveItem(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *DeltaSyncService) upsertItem(ctx context.Context, tx domain.BillRepository, bill *domain.Bill, expense *domain.Expense, iu domain.ItemUpsert, mappings domain.IDMappings, resolve memberResolver) error {
	var item *domain.ExpenseItem
	if iu.RemoteID == nil {
		if existing := s.findItemByLocalID(expense, iu.LocalID); existing != nil {
			item = existing
		} else {
			localID := iu.LocalID
			it := &domain.ExpenseItem{ExpenseID: expense.ID, Name: iu.Name, Amount: iu.Amount, LocalClientID: &localID}
			resolvePaidBy(it, &it.PaidByMemberID, iu.PaidByLocalID, iu.PaidByID, resolve)
			created, err := tx.AddItem(ctx, expense.ID, it)
			if err != nil {
				return err
			}
			expense.Items = append(expense.Items, created)
			item = created
		}
	} else {
		for _, existing := range expense.Items {
			if existing.ID == *iu.RemoteID {
				item = existing
				break
			}
		}
		if item == nil {
			return nil
		}
		item.Name = iu.Name
		item.Amount = iu.Amount
		resolvePaidBy(item, &item.PaidByMemberID, iu.PaidByLocalID, iu.PaidByID, resolve)
		if err := tx.UpdateItem(ctx, item); err != nil {
			return err
		}
	}
	mappings.ExpenseItems[iu.LocalID] = item.ID

	if iu.Participants != nil {
		return s.writeItemParticipants(ctx, tx, bill, item, iu.Participants, resolve)
	}
	return nil
}

func (s *DeltaSyncService) writeExpenseParticipants(ctx context.Context, tx domain.BillRepository, expense *domain.Expense, refs []string, resolve memberResolver) error {
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

func (s *DeltaSyncService) writeItemParticipants(ctx context.Context, tx domain.BillRepository, bill *domain.Bill, item *domain.ExpenseItem, refs []string, resolve memberResolver) error {
	live := liveMembers(refs, bill, resolve)
	shares := money.AllocateToMembers(item.Amount, live)
	participants := make([]*domain.ExpenseItemParticipant, 0, len(live))
	for _, id := range live {
		participants = append(participants, &domain.ExpenseItemParticipant{ItemID: item.ID, MemberID: id, Amount: shares[id]})
	}
	item.Participants = participants
	return tx.SetItemParticipants(ctx, item.ID, participants)
}

func (s *DeltaSyncService) mergeSettledTransfers(ctx context.Context, tx domain.BillRepository, bill *domain.Bill, req domain.DeltaSyncRequest, resolve memberResolver) {
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
		_ = tx.UpsertSettledTransfer(ctx, &domain.SettledTransfer{
			BillID:       bill.ID,
			FromMemberID: fromID,
			ToMemberID:   toID,
			Amount:       *parsed.Amount,
			SettledAt:    s.clock.Now(),
		})
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
		_ = tx.RemoveSettledTransfer(ctx, bill.ID, fromID, toID)
	}
}
