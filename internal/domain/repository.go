package domain

import (
	"context"

	"github.com/google/uuid"
)

// BillRepository persists Bills and their children. Every read filters
// deleted bills; every write that mutates the aggregate happens inside a
// caller-managed transaction (see WithTx) so the operation log and the
// version bump commit atomically.
type BillRepository interface {
	// Create inserts a new bill (version 1) with no children.
	Create(ctx context.Context, bill *Bill) (*Bill, error)

	// GetForUpdate loads a bill and all of its children, holding a
	// row-level write lock (SELECT ... FOR UPDATE) until the caller's
	// transaction commits or rolls back. Must be called within WithTx.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Bill, error)

	// Get loads a bill and its children without acquiring a lock.
	Get(ctx context.Context, id uuid.UUID) (*Bill, error)

	// GetByLocalClientOwner looks up a bill by the unique
	// (local_client_id, owner_id) pair used for idempotent first-sync.
	GetByLocalClientOwner(ctx context.Context, localClientID string, ownerID *uuid.UUID) (*Bill, error)

	// UpdateVersionAndMeta bumps the bill's version and optionally renames
	// it, as part of the caller's transaction.
	UpdateVersionAndMeta(ctx context.Context, id uuid.UUID, newVersion int64, name *string) error

	// WithTx runs fn with a repository bound to a single DB transaction.
	// All calls made through the provided BillRepository participate in
	// that transaction; fn's returned error rolls the transaction back.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx BillRepository) error) error

	// Member mutations. UpdateMember returns ErrMemberNotFound when the
	// target does not resolve to a member of the bill; RemoveMember and
	// ReorderMembers ignore ids that do not resolve.
	AddMember(ctx context.Context, billID uuid.UUID, m *Member) (*Member, error)
	UpdateMember(ctx context.Context, billID uuid.UUID, m *Member) error
	RemoveMember(ctx context.Context, billID uuid.UUID, memberID uuid.UUID) error
	ReorderMembers(ctx context.Context, billID uuid.UUID, order []uuid.UUID) error

	// Expense mutations.
	AddExpense(ctx context.Context, billID uuid.UUID, e *Expense) (*Expense, error)
	UpdateExpense(ctx context.Context, billID uuid.UUID, e *Expense) error
	RemoveExpense(ctx context.Context, billID uuid.UUID, expenseID uuid.UUID) error
	SetExpenseParticipants(ctx context.Context, expenseID uuid.UUID, participants []*ExpenseParticipant) error

	// Item mutations.
	AddItem(ctx context.Context, expenseID uuid.UUID, it *ExpenseItem) (*ExpenseItem, error)
	UpdateItem(ctx context.Context, it *ExpenseItem) error
	RemoveItem(ctx context.Context, itemID uuid.UUID) error
	SetItemParticipants(ctx context.Context, itemID uuid.UUID, participants []*ExpenseItemParticipant) error

	// Settlement mutations.
	UpsertSettledTransfer(ctx context.Context, t *SettledTransfer) error
	RemoveSettledTransfer(ctx context.Context, billID, from, to uuid.UUID) error
	ClearSettledTransfers(ctx context.Context, billID uuid.UUID) error
	RemoveSettledTransfersForMember(ctx context.Context, billID, memberID uuid.UUID) error
}

// OperationRepository persists the append-only operation log.
type OperationRepository interface {
	// Append inserts an operation. Violates the (bill_id, version) unique
	// index if the version was already taken by a concurrent writer.
	Append(ctx context.Context, op *Operation) error

	// ListSince returns operations with version > sinceVersion, ascending.
	ListSince(ctx context.Context, billID uuid.UUID, sinceVersion int64) ([]*Operation, error)
}

// MemberLinkRepository answers "is this user a participant anywhere on this
// bill" queries used by the auth predicate, independent of a full bill load.
type MemberLinkRepository interface {
	IsOwnerOrParticipant(ctx context.Context, billID, userID uuid.UUID) (bool, error)
}
