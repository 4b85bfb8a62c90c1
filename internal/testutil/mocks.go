// Package testutil provides in-memory fakes for every repository interface
// in internal/domain, for use in service-layer tests that don't need a
// real Postgres instance.
package testutil

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/snapsplit/sync-core/internal/domain"
)

// FakeBillRepository is an in-memory domain.BillRepository. WithTx snapshots
// the store before running its callback and restores the snapshot if the
// callback returns an error, approximating transactional rollback.
type FakeBillRepository struct {
	mu           sync.Mutex
	bills        map[uuid.UUID]*domain.Bill
	byLocalOwner map[string]uuid.UUID
}

// NewFakeBillRepository returns an empty FakeBillRepository.
func NewFakeBillRepository() *FakeBillRepository {
	return &FakeBillRepository{
		bills:        make(map[uuid.UUID]*domain.Bill),
		byLocalOwner: make(map[string]uuid.UUID),
	}
}

func localOwnerKey(localID string, owner *uuid.UUID) string {
	o := "anon"
	if owner != nil {
		o = owner.String()
	}
	return localID + "|" + o
}

func cloneBill(b *domain.Bill) *domain.Bill {
	if b == nil {
		return nil
	}
	cp := *b
	cp.Members = make([]*domain.Member, len(b.Members))
	for i, m := range b.Members {
		mm := *m
		cp.Members[i] = &mm
	}
	cp.Expenses = make([]*domain.Expense, len(b.Expenses))
	for i, e := range b.Expenses {
		ee := *e
		ee.Participants = append([]*domain.ExpenseParticipant(nil), e.Participants...)
		ee.Items = make([]*domain.ExpenseItem, len(e.Items))
		for j, it := range e.Items {
			ii := *it
			ii.Participants = append([]*domain.ExpenseItemParticipant(nil), it.Participants...)
			ee.Items[j] = &ii
		}
		cp.Expenses[i] = &ee
	}
	cp.SettledTransfers = make([]*domain.SettledTransfer, len(b.SettledTransfers))
	for i, t := range b.SettledTransfers {
		tt := *t
		cp.SettledTransfers[i] = &tt
	}
	return &cp
}

func (r *FakeBillRepository) snapshot() (map[uuid.UUID]*domain.Bill, map[string]uuid.UUID) {
	bills := make(map[uuid.UUID]*domain.Bill, len(r.bills))
	for id, b := range r.bills {
		bills[id] = cloneBill(b)
	}
	owners := make(map[string]uuid.UUID, len(r.byLocalOwner))
	for k, v := range r.byLocalOwner {
		owners[k] = v
	}
	return bills, owners
}

// Create inserts a new bill at version 1. Mirrors the Postgres
// implementation's idempotent-reread behavior: a second create racing on
// the same (local_client_id, owner) pair returns the bill the first create
// won, rather than a duplicate.
func (r *FakeBillRepository) Create(ctx context.Context, bill *domain.Bill) (*domain.Bill, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if bill.LocalClientID != nil {
		if id, ok := r.byLocalOwner[localOwnerKey(*bill.LocalClientID, bill.OwnerUserID)]; ok {
			return cloneBill(r.bills[id]), nil
		}
	}
	if bill.ID == uuid.Nil {
		bill.ID = uuid.New()
	}
	bill.Version = 1
	stored := cloneBill(bill)
	r.bills[stored.ID] = stored
	if stored.LocalClientID != nil {
		r.byLocalOwner[localOwnerKey(*stored.LocalClientID, stored.OwnerUserID)] = stored.ID
	}
	return cloneBill(stored), nil
}

// GetForUpdate loads a bill. The fake has no real row locking; callers
// relying on WithTx snapshot/restore get equivalent isolation for tests.
func (r *FakeBillRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Bill, error) {
	return r.Get(ctx, id)
}

// Get loads a bill by id.
func (r *FakeBillRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Bill, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bills[id]
	if !ok || b.DeletedAt != nil {
		return nil, domain.ErrBillNotFound
	}
	return cloneBill(b), nil
}

// GetByLocalClientOwner looks up a bill by its (local_client_id, owner) pair.
func (r *FakeBillRepository) GetByLocalClientOwner(ctx context.Context, localClientID string, ownerID *uuid.UUID) (*domain.Bill, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byLocalOwner[localOwnerKey(localClientID, ownerID)]
	if !ok {
		return nil, domain.ErrBillNotFound
	}
	b := r.bills[id]
	if b == nil || b.DeletedAt != nil {
		return nil, domain.ErrBillNotFound
	}
	return cloneBill(b), nil
}

// UpdateVersionAndMeta bumps a bill's version and optionally renames it.
func (r *FakeBillRepository) UpdateVersionAndMeta(ctx context.Context, id uuid.UUID, newVersion int64, name *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bills[id]
	if !ok {
		return domain.ErrBillNotFound
	}
	b.Version = newVersion
	if name != nil {
		b.Name = *name
	}
	return nil
}

// WithTx snapshots the store, runs fn, and restores the snapshot if fn
// returns an error.
func (r *FakeBillRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx domain.BillRepository) error) error {
	r.mu.Lock()
	billsSnap, ownersSnap := r.snapshot()
	r.mu.Unlock()

	err := fn(ctx, r)

	if err != nil {
		r.mu.Lock()
		r.bills = billsSnap
		r.byLocalOwner = ownersSnap
		r.mu.Unlock()
	}
	return err
}

func (r *FakeBillRepository) AddMember(ctx context.Context, billID uuid.UUID, m *domain.Member) (*domain.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bills[billID]
	if !ok {
		return nil, domain.ErrBillNotFound
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.BillID = billID
	cp := *m
	b.Members = append(b.Members, &cp)
	return &cp, nil
}

func (r *FakeBillRepository) UpdateMember(ctx context.Context, billID uuid.UUID, m *domain.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bills[billID]
	if !ok {
		return domain.ErrBillNotFound
	}
	for i, existing := range b.Members {
		if existing.ID == m.ID {
			cp := *m
			b.Members[i] = &cp
			return nil
		}
	}
	return domain.ErrMemberNotFound
}

func (r *FakeBillRepository) RemoveMember(ctx context.Context, billID uuid.UUID, memberID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bills[billID]
	if !ok {
		return domain.ErrBillNotFound
	}
	for _, m := range b.Members {
		if m.ID == memberID {
			now := m.UpdatedAt
			m.DeletedAt = &now
			return nil
		}
	}
	return nil
}

func (r *FakeBillRepository) ReorderMembers(ctx context.Context, billID uuid.UUID, order []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bills[billID]
	if !ok {
		return domain.ErrBillNotFound
	}
	index := make(map[uuid.UUID]int, len(order))
	for i, id := range order {
		index[id] = i
	}
	for _, m := range b.Members {
		if i, ok := index[m.ID]; ok {
			m.DisplayOrder = i
		}
	}
	return nil
}

func (r *FakeBillRepository) AddExpense(ctx context.Context, billID uuid.UUID, e *domain.Expense) (*domain.Expense, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bills[billID]
	if !ok {
		return nil, domain.ErrBillNotFound
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.BillID = billID
	cp := *e
	b.Expenses = append(b.Expenses, &cp)
	return &cp, nil
}

func (r *FakeBillRepository) UpdateExpense(ctx context.Context, billID uuid.UUID, e *domain.Expense) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bills[billID]
	if !ok {
		return domain.ErrBillNotFound
	}
	for i, existing := range b.Expenses {
		if existing.ID == e.ID {
			cp := *e
			b.Expenses[i] = &cp
			return nil
		}
	}
	return domain.ErrExpenseNotFound
}

func (r *FakeBillRepository) RemoveExpense(ctx context.Context, billID uuid.UUID, expenseID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bills[billID]
	if !ok {
		return domain.ErrBillNotFound
	}
	for _, e := range b.Expenses {
		if e.ID == expenseID {
			now := e.UpdatedAt
			e.DeletedAt = &now
			return nil
		}
	}
	return nil
}

func (r *FakeBillRepository) SetExpenseParticipants(ctx context.Context, expenseID uuid.UUID, participants []*domain.ExpenseParticipant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.bills {
		for _, e := range b.Expenses {
			if e.ID == expenseID {
				e.Participants = append([]*domain.ExpenseParticipant(nil), participants...)
				return nil
			}
		}
	}
	return domain.ErrExpenseNotFound
}

func (r *FakeBillRepository) AddItem(ctx context.Context, expenseID uuid.UUID, it *domain.ExpenseItem) (*domain.ExpenseItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.bills {
		for _, e := range b.Expenses {
			if e.ID == expenseID {
				if it.ID == uuid.Nil {
					it.ID = uuid.New()
				}
				it.ExpenseID = expenseID
				cp := *it
				e.Items = append(e.Items, &cp)
				return &cp, nil
			}
		}
	}
	return nil, domain.ErrExpenseNotFound
}

func (r *FakeBillRepository) UpdateItem(ctx context.Context, it *domain.ExpenseItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.bills {
		for _, e := range b.Expenses {
			for i, existing := range e.Items {
				if existing.ID == it.ID {
					cp := *it
					e.Items[i] = &cp
					return nil
				}
			}
		}
	}
	return domain.ErrItemNotFound
}

func (r *FakeBillRepository) RemoveItem(ctx context.Context, itemID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.bills {
		for _, e := range b.Expenses {
			for _, it := range e.Items {
				if it.ID == itemID {
					now := it.UpdatedAt
					it.DeletedAt = &now
					return nil
				}
			}
		}
	}
	return nil
}

func (r *FakeBillRepository) SetItemParticipants(ctx context.Context, itemID uuid.UUID, participants []*domain.ExpenseItemParticipant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.bills {
		for _, e := range b.Expenses {
			for _, it := range e.Items {
				if it.ID == itemID {
					it.Participants = append([]*domain.ExpenseItemParticipant(nil), participants...)
					return nil
				}
			}
		}
	}
	return domain.ErrItemNotFound
}

func (r *FakeBillRepository) UpsertSettledTransfer(ctx context.Context, t *domain.SettledTransfer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bills[t.BillID]
	if !ok {
		return domain.ErrBillNotFound
	}
	for i, existing := range b.SettledTransfers {
		if existing.FromMemberID == t.FromMemberID && existing.ToMemberID == t.ToMemberID {
			cp := *t
			b.SettledTransfers[i] = &cp
			return nil
		}
	}
	cp := *t
	b.SettledTransfers = append(b.SettledTransfers, &cp)
	return nil
}

func (r *FakeBillRepository) RemoveSettledTransfer(ctx context.Context, billID, from, to uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bills[billID]
	if !ok {
		return domain.ErrBillNotFound
	}
	kept := b.SettledTransfers[:0]
	for _, t := range b.SettledTransfers {
		if t.FromMemberID == from && t.ToMemberID == to {
			continue
		}
		kept = append(kept, t)
	}
	b.SettledTransfers = kept
	return nil
}

func (r *FakeBillRepository) ClearSettledTransfers(ctx context.Context, billID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bills[billID]
	if !ok {
		return domain.ErrBillNotFound
	}
	b.SettledTransfers = nil
	return nil
}

func (r *FakeBillRepository) RemoveSettledTransfersForMember(ctx context.Context, billID, memberID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bills[billID]
	if !ok {
		return domain.ErrBillNotFound
	}
	kept := b.SettledTransfers[:0]
	for _, t := range b.SettledTransfers {
		if t.FromMemberID == memberID || t.ToMemberID == memberID {
			continue
		}
		kept = append(kept, t)
	}
	b.SettledTransfers = kept
	return nil
}

// FakeOperationRepository is an in-memory domain.OperationRepository.
type FakeOperationRepository struct {
	mu  sync.Mutex
	ops map[uuid.UUID][]*domain.Operation
}

// NewFakeOperationRepository returns an empty FakeOperationRepository.
func NewFakeOperationRepository() *FakeOperationRepository {
	return &FakeOperationRepository{ops: make(map[uuid.UUID][]*domain.Operation)}
}

// Append inserts an operation, rejecting a version that's already taken.
func (r *FakeOperationRepository) Append(ctx context.Context, op *domain.Operation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.ops[op.BillID] {
		if existing.Version == op.Version {
			return domain.ErrStaleWrite
		}
	}
	cp := *op
	r.ops[op.BillID] = append(r.ops[op.BillID], &cp)
	return nil
}

// ListSince returns operations with version > sinceVersion, ascending.
func (r *FakeOperationRepository) ListSince(ctx context.Context, billID uuid.UUID, sinceVersion int64) ([]*domain.Operation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Operation
	for _, op := range r.ops[billID] {
		if op.Version > sinceVersion {
			cp := *op
			out = append(out, &cp)
		}
	}
	return out, nil
}

// FakeMemberLinkRepository is an in-memory domain.MemberLinkRepository
// backed directly by a FakeBillRepository's bill store.
type FakeMemberLinkRepository struct {
	Bills *FakeBillRepository
}

// IsOwnerOrParticipant reports whether userID owns or is a live member of billID.
func (r *FakeMemberLinkRepository) IsOwnerOrParticipant(ctx context.Context, billID, userID uuid.UUID) (bool, error) {
	bill, err := r.Bills.Get(ctx, billID)
	if err != nil {
		return false, err
	}
	if bill.OwnerUserID != nil && *bill.OwnerUserID == userID {
		return true, nil
	}
	for _, m := range bill.Members {
		if m.DeletedAt == nil && m.LinkedUserID != nil && *m.LinkedUserID == userID {
			return true, nil
		}
	}
	return false, nil
}

// FakeUserRepository is an in-memory domain.UserRepository.
type FakeUserRepository struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

// NewFakeUserRepository returns an empty FakeUserRepository.
func NewFakeUserRepository() *FakeUserRepository {
	return &FakeUserRepository{users: make(map[string]*domain.User)}
}

// GetByAuth0ID retrieves a user by their identity provider subject.
func (r *FakeUserRepository) GetByAuth0ID(ctx context.Context, auth0ID string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[auth0ID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

// Create inserts a new user.
func (r *FakeUserRepository) Create(ctx context.Context, u *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	cp := *u
	r.users[u.Auth0ID] = &cp
	out := cp
	return &out, nil
}
