package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/snapsplit/sync-core/internal/domain"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx, letting BillRepository
// run its queries against either the pool directly or a caller-managed
// transaction started by WithTx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// BillRepository implements domain.BillRepository against Postgres.
type BillRepository struct {
	pool *pgxpool.Pool
	db   dbtx
}

// NewBillRepository creates a BillRepository bound directly to pool.
func NewBillRepository(pool *pgxpool.Pool) *BillRepository {
	return &BillRepository{pool: pool, db: pool}
}

// WithTx runs fn against a repository bound to a single transaction. fn's
// error rolls the transaction back; a nil error commits.
func (r *BillRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx domain.BillRepository) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	txRepo := &BillRepository{pool: r.pool, db: tx}
	if err := fn(ctx, txRepo); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit tx: %w", err)
	}
	return nil
}

// Create inserts a new bill at version 1. If a concurrent request already
// won the race to create a bill for the same (local_client_id, owner) pair,
// the unique index rejects this insert; rather than surface that as an
// error, Create re-reads and returns the bill the other request created, so
// two racing first-time syncs converge on the same remote bill instead of
// one of them failing.
func (r *BillRepository) Create(ctx context.Context, bill *domain.Bill) (*domain.Bill, error) {
	if bill.ID == uuid.Nil {
		bill.ID = uuid.New()
	}
	row := r.db.QueryRow(ctx, `
		INSERT INTO bills (id, name, owner_user_id, share_code, version, local_client_id)
		VALUES ($1, $2, $3, $4, 1, $5)
		RETURNING id, name, owner_user_id, share_code, version, local_client_id, created_at, updated_at, deleted_at`,
		bill.ID, bill.Name, nullUUID(bill.OwnerUserID), bill.ShareCode, nullString(bill.LocalClientID))
	created, err := scanBill(row)
	if err != nil {
		if isPgUniqueViolation(err) && bill.LocalClientID != nil {
			existing, gerr := r.GetByLocalClientOwner(ctx, *bill.LocalClientID, bill.OwnerUserID)
			if gerr != nil {
				return nil, fmt.Errorf("postgres: create bill: reread after conflict: %w", gerr)
			}
			return existing, nil
		}
		return nil, fmt.Errorf("postgres: create bill: %w", err)
	}
	return created, nil
}

// GetForUpdate loads a bill and its children, holding a row lock until the
// caller's transaction commits or rolls back.
func (r *BillRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Bill, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, owner_user_id, share_code, version, local_client_id, created_at, updated_at, deleted_at
		FROM bills WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, id)
	return r.loadAggregate(ctx, row)
}

// Get loads a bill and its children without acquiring a lock.
func (r *BillRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Bill, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, owner_user_id, share_code, version, local_client_id, created_at, updated_at, deleted_at
		FROM bills WHERE id = $1 AND deleted_at IS NULL`, id)
	return r.loadAggregate(ctx, row)
}

// GetByLocalClientOwner looks up a bill by its (local_client_id, owner) pair.
func (r *BillRepository) GetByLocalClientOwner(ctx context.Context, localClientID string, ownerID *uuid.UUID) (*domain.Bill, error) {
	var row pgx.Row
	if ownerID == nil {
		row = r.db.QueryRow(ctx, `
			SELECT id, name, owner_user_id, share_code, version, local_client_id, created_at, updated_at, deleted_at
			FROM bills WHERE local_client_id = $1 AND owner_user_id IS NULL AND deleted_at IS NULL`, localClientID)
	} else {
		row = r.db.QueryRow(ctx, `
			SELECT id, name, owner_user_id, share_code, version, local_client_id, created_at, updated_at, deleted_at
			FROM bills WHERE local_client_id = $1 AND owner_user_id = $2 AND deleted_at IS NULL`, localClientID, *ownerID)
	}
	return r.loadAggregate(ctx, row)
}

func (r *BillRepository) loadAggregate(ctx context.Context, row pgx.Row) (*domain.Bill, error) {
	bill, err := scanBill(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBillNotFound
		}
		return nil, fmt.Errorf("postgres: load bill: %w", err)
	}
	if err := r.loadMembers(ctx, bill); err != nil {
		return nil, err
	}
	if err := r.loadExpenses(ctx, bill); err != nil {
		return nil, err
	}
	if err := r.loadSettledTransfers(ctx, bill); err != nil {
		return nil, err
	}
	return bill, nil
}

func scanBill(row pgx.Row) (*domain.Bill, error) {
	b := &domain.Bill{}
	var localClientID pgtypeText
	var ownerID pgtypeUUID
	var deletedAt pgtypeTimestamptz
	if err := row.Scan(&b.ID, &b.Name, &ownerID, &b.ShareCode, &b.Version, &localClientID, &b.CreatedAt, &b.UpdatedAt, &deletedAt); err != nil {
		return nil, err
	}
	b.OwnerUserID = fromNullUUID(ownerID)
	b.LocalClientID = fromNullString(localClientID)
	b.DeletedAt = fromNullTime(deletedAt)
	return b, nil
}

func (r *BillRepository) loadMembers(ctx context.Context, bill *domain.Bill) error {
	rows, err := r.db.Query(ctx, `
		SELECT id, bill_id, name, display_order, linked_user_id, claimed_at, original_name, local_client_id, created_at, updated_at, deleted_at
		FROM members WHERE bill_id = $1 AND deleted_at IS NULL ORDER BY display_order`, bill.ID)
	if err != nil {
		return fmt.Errorf("postgres: load members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		m := &domain.Member{}
		var linkedUserID, localClientID pgtypeUUID
		var originalName pgtypeText
		var claimedAt, deletedAt pgtypeTimestamptz
		var lcid pgtypeText
		if err := rows.Scan(&m.ID, &m.BillID, &m.Name, &m.DisplayOrder, &linkedUserID, &claimedAt, &originalName, &lcid, &m.CreatedAt, &m.UpdatedAt, &deletedAt); err != nil {
			return fmt.Errorf("postgres: scan member: %w", err)
		}
		m.LinkedUserID = fromNullUUID(linkedUserID)
		m.ClaimedAt = fromNullTime(claimedAt)
		m.OriginalName = fromNullString(originalName)
		m.LocalClientID = fromNullString(lcid)
		m.DeletedAt = fromNullTime(deletedAt)
		_ = localClientID
		bill.Members = append(bill.Members, m)
	}
	return rows.Err()
}

func (r *BillRepository) loadExpenses(ctx context.Context, bill *domain.Bill) error {
	rows, err := r.db.Query(ctx, `
		SELECT id, bill_id, name, amount, service_fee_percent, is_itemized, paid_by_member_id, local_client_id, created_at, updated_at, deleted_at
		FROM expenses WHERE bill_id = $1 AND deleted_at IS NULL ORDER BY created_at`, bill.ID)
	if err != nil {
		return fmt.Errorf("postgres: load expenses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e := &domain.Expense{}
		var amount, fee pgtypeNumeric
		var paidBy, lcid pgtypeUUID
		var localClientID pgtypeText
		var deletedAt pgtypeTimestamptz
		if err := rows.Scan(&e.ID, &e.BillID, &e.Name, &amount, &fee, &e.IsItemized, &paidBy, &localClientID, &e.CreatedAt, &e.UpdatedAt, &deletedAt); err != nil {
			return fmt.Errorf("postgres: scan expense: %w", err)
		}
		e.Amount = pgNumericToDecimal(amount)
		e.ServiceFeePercent = pgNumericToDecimal(fee)
		e.PaidByMemberID = fromNullUUID(paidBy)
		e.LocalClientID = fromNullString(localClientID)
		e.DeletedAt = fromNullTime(deletedAt)
		_ = lcid
		bill.Expenses = append(bill.Expenses, e)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, e := range bill.Expenses {
		if err := r.loadExpenseParticipants(ctx, e); err != nil {
			return err
		}
		if err := r.loadItems(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (r *BillRepository) loadExpenseParticipants(ctx context.Context, e *domain.Expense) error {
	rows, err := r.db.Query(ctx, `SELECT expense_id, member_id, amount FROM expense_participants WHERE expense_id = $1`, e.ID)
	if err != nil {
		return fmt.Errorf("postgres: load expense participants: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		p := &domain.ExpenseParticipant{}
		var amount pgtypeNumeric
		if err := rows.Scan(&p.ExpenseID, &p.MemberID, &amount); err != nil {
			return err
		}
		p.Amount = pgNumericToDecimal(amount)
		e.Participants = append(e.Participants, p)
	}
	return rows.Err()
}

func (r *BillRepository) loadItems(ctx context.Context, e *domain.Expense) error {
	rows, err := r.db.Query(ctx, `
		SELECT id, expense_id, name, amount, paid_by_member_id, local_client_id, created_at, updated_at, deleted_at
		FROM expense_items WHERE expense_id = $1 AND deleted_at IS NULL ORDER BY created_at`, e.ID)
	if err != nil {
		return fmt.Errorf("postgres: load items: %w", err)
	}
	defer rows.Close()

	var items []*domain.ExpenseItem
	for rows.Next() {
		it := &domain.ExpenseItem{}
		var amount pgtypeNumeric
		var paidBy pgtypeUUID
		var localClientID pgtypeText
		var deletedAt pgtypeTimestamptz
		if err := rows.Scan(&it.ID, &it.ExpenseID, &it.Name, &amount, &paidBy, &localClientID, &it.CreatedAt, &it.UpdatedAt, &deletedAt); err != nil {
			return fmt.Errorf("postgres: scan item: %w", err)
		}
		it.Amount = pgNumericToDecimal(amount)
		it.PaidByMemberID = fromNullUUID(paidBy)
		it.LocalClientID = fromNullString(localClientID)
		it.DeletedAt = fromNullTime(deletedAt)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, it := range items {
		if err := r.loadItemParticipants(ctx, it); err != nil {
			return err
		}
	}
	e.Items = items
	return nil
}

func (r *BillRepository) loadItemParticipants(ctx context.Context, it *domain.ExpenseItem) error {
	rows, err := r.db.Query(ctx, `SELECT item_id, member_id, amount FROM expense_item_participants WHERE item_id = $1`, it.ID)
	if err != nil {
		return fmt.Errorf("postgres: load item participants: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		p := &domain.ExpenseItemParticipant{}
		var amount pgtypeNumeric
		if err := rows.Scan(&p.ItemID, &p.MemberID, &amount); err != nil {
			return err
		}
		p.Amount = pgNumericToDecimal(amount)
		it.Participants = append(it.Participants, p)
	}
	return rows.Err()
}

func (r *BillRepository) loadSettledTransfers(ctx context.Context, bill *domain.Bill) error {
	rows, err := r.db.Query(ctx, `
		SELECT bill_id, from_member_id, to_member_id, amount, settled_at
		FROM settled_transfers WHERE bill_id = $1`, bill.ID)
	if err != nil {
		return fmt.Errorf("postgres: load settled transfers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		t := &domain.SettledTransfer{}
		var amount pgtypeNumeric
		if err := rows.Scan(&t.BillID, &t.FromMemberID, &t.ToMemberID, &amount, &t.SettledAt); err != nil {
			return err
		}
		t.Amount = pgNumericToDecimal(amount)
		bill.SettledTransfers = append(bill.SettledTransfers, t)
	}
	return rows.Err()
}

// UpdateVersionAndMeta bumps a bill's version and optionally renames it.
func (r *BillRepository) UpdateVersionAndMeta(ctx context.Context, id uuid.UUID, newVersion int64, name *string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE bills SET version = $2, name = COALESCE($3, name), updated_at = now()
		WHERE id = $1`, id, newVersion, nullString(name))
	if err != nil {
		return fmt.Errorf("postgres: update bill version: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBillNotFound
	}
	return nil
}

// AddMember inserts a member.
func (r *BillRepository) AddMember(ctx context.Context, billID uuid.UUID, m *domain.Member) (*domain.Member, error) {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	row := r.db.QueryRow(ctx, `
		INSERT INTO members (id, bill_id, name, display_order, linked_user_id, claimed_at, original_name, local_client_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, bill_id, name, display_order, linked_user_id, claimed_at, original_name, local_client_id, created_at, updated_at, deleted_at`,
		m.ID, billID, m.Name, m.DisplayOrder, nullUUID(m.LinkedUserID), nullTime(m.ClaimedAt), nullString(m.OriginalName), nullString(m.LocalClientID))
	return scanMember(row)
}

func scanMember(row pgx.Row) (*domain.Member, error) {
	m := &domain.Member{}
	var linkedUserID pgtypeUUID
	var originalName, localClientID pgtypeText
	var claimedAt, deletedAt pgtypeTimestamptz
	if err := row.Scan(&m.ID, &m.BillID, &m.Name, &m.DisplayOrder, &linkedUserID, &claimedAt, &originalName, &localClientID, &m.CreatedAt, &m.UpdatedAt, &deletedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMemberNotFound
		}
		return nil, fmt.Errorf("postgres: scan member: %w", err)
	}
	m.LinkedUserID = fromNullUUID(linkedUserID)
	m.ClaimedAt = fromNullTime(claimedAt)
	m.OriginalName = fromNullString(originalName)
	m.LocalClientID = fromNullString(localClientID)
	m.DeletedAt = fromNullTime(deletedAt)
	return m, nil
}

// UpdateMember writes back a member's mutable fields.
func (r *BillRepository) UpdateMember(ctx context.Context, billID uuid.UUID, m *domain.Member) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE members SET name = $3, display_order = $4, linked_user_id = $5, claimed_at = $6,
			original_name = $7, updated_at = now()
		WHERE id = $1 AND bill_id = $2 AND deleted_at IS NULL`,
		m.ID, billID, m.Name, m.DisplayOrder, nullUUID(m.LinkedUserID), nullTime(m.ClaimedAt), nullString(m.OriginalName))
	if err != nil {
		return fmt.Errorf("postgres: update member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMemberNotFound
	}
	return nil
}

// RemoveMember soft-deletes a member.
func (r *BillRepository) RemoveMember(ctx context.Context, billID uuid.UUID, memberID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `UPDATE members SET deleted_at = now() WHERE id = $1 AND bill_id = $2`, memberID, billID)
	if err != nil {
		return fmt.Errorf("postgres: remove member: %w", err)
	}
	return nil
}

// ReorderMembers rewrites display_order for a set of members in one pass.
func (r *BillRepository) ReorderMembers(ctx context.Context, billID uuid.UUID, order []uuid.UUID) error {
	for i, id := range order {
		if _, err := r.db.Exec(ctx, `UPDATE members SET display_order = $3, updated_at = now() WHERE id = $1 AND bill_id = $2`, id, billID, i); err != nil {
			return fmt.Errorf("postgres: reorder members: %w", err)
		}
	}
	return nil
}

// AddExpense inserts an expense.
func (r *BillRepository) AddExpense(ctx context.Context, billID uuid.UUID, e *domain.Expense) (*domain.Expense, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	amount, err := decimalToPgNumeric(e.Amount)
	if err != nil {
		return nil, fmt.Errorf("postgres: invalid expense amount: %w", err)
	}
	fee, err := decimalToPgNumeric(e.ServiceFeePercent)
	if err != nil {
		return nil, fmt.Errorf("postgres: invalid service fee: %w", err)
	}
	row := r.db.QueryRow(ctx, `
		INSERT INTO expenses (id, bill_id, name, amount, service_fee_percent, is_itemized, paid_by_member_id, local_client_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, bill_id, name, amount, service_fee_percent, is_itemized, paid_by_member_id, local_client_id, created_at, updated_at, deleted_at`,
		e.ID, billID, e.Name, amount, fee, e.IsItemized, nullUUID(e.PaidByMemberID), nullString(e.LocalClientID))
	return scanExpense(row)
}

func scanExpense(row pgx.Row) (*domain.Expense, error) {
	e := &domain.Expense{}
	var amount, fee pgtypeNumeric
	var paidBy pgtypeUUID
	var localClientID pgtypeText
	var deletedAt pgtypeTimestamptz
	if err := row.Scan(&e.ID, &e.BillID, &e.Name, &amount, &fee, &e.IsItemized, &paidBy, &localClientID, &e.CreatedAt, &e.UpdatedAt, &deletedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrExpenseNotFound
		}
		return nil, fmt.Errorf("postgres: scan expense: %w", err)
	}
	e.Amount = pgNumericToDecimal(amount)
	e.ServiceFeePercent = pgNumericToDecimal(fee)
	e.PaidByMemberID = fromNullUUID(paidBy)
	e.LocalClientID = fromNullString(localClientID)
	e.DeletedAt = fromNullTime(deletedAt)
	return e, nil
}

// UpdateExpense writes back an expense's mutable fields.
func (r *BillRepository) UpdateExpense(ctx context.Context, billID uuid.UUID, e *domain.Expense) error {
	amount, err := decimalToPgNumeric(e.Amount)
	if err != nil {
		return fmt.Errorf("postgres: invalid expense amount: %w", err)
	}
	fee, err := decimalToPgNumeric(e.ServiceFeePercent)
	if err != nil {
		return fmt.Errorf("postgres: invalid service fee: %w", err)
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE expenses SET name = $3, amount = $4, service_fee_percent = $5, is_itemized = $6,
			paid_by_member_id = $7, updated_at = now()
		WHERE id = $1 AND bill_id = $2 AND deleted_at IS NULL`,
		e.ID, billID, e.Name, amount, fee, e.IsItemized, nullUUID(e.PaidByMemberID))
	if err != nil {
		return fmt.Errorf("postgres: update expense: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrExpenseNotFound
	}
	return nil
}

// RemoveExpense soft-deletes an expense.
func (r *BillRepository) RemoveExpense(ctx context.Context, billID uuid.UUID, expenseID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `UPDATE expenses SET deleted_at = now() WHERE id = $1 AND bill_id = $2`, expenseID, billID)
	if err != nil {
		return fmt.Errorf("postgres: remove expense: %w", err)
	}
	return nil
}

// SetExpenseParticipants replaces an expense's computed participant rows.
func (r *BillRepository) SetExpenseParticipants(ctx context.Context, expenseID uuid.UUID, participants []*domain.ExpenseParticipant) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM expense_participants WHERE expense_id = $1`, expenseID); err != nil {
		return fmt.Errorf("postgres: clear expense participants: %w", err)
	}
	for _, p := range participants {
		amount, err := decimalToPgNumeric(p.Amount)
		if err != nil {
			return fmt.Errorf("postgres: invalid participant amount: %w", err)
		}
		if _, err := r.db.Exec(ctx, `INSERT INTO expense_participants (expense_id, member_id, amount) VALUES ($1, $2, $3)`,
			expenseID, p.MemberID, amount); err != nil {
			return fmt.Errorf("postgres: insert expense participant: %w", err)
		}
	}
	return nil
}

// AddItem inserts an itemized expense line.
func (r *BillRepository) AddItem(ctx context.Context, expenseID uuid.UUID, it *domain.ExpenseItem) (*domain.ExpenseItem, error) {
	if it.ID == uuid.Nil {
		it.ID = uuid.New()
	}
	amount, err := decimalToPgNumeric(it.Amount)
	if err != nil {
		return nil, fmt.Errorf("postgres: invalid item amount: %w", err)
	}
	row := r.db.QueryRow(ctx, `
		INSERT INTO expense_items (id, expense_id, name, amount, paid_by_member_id, local_client_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, expense_id, name, amount, paid_by_member_id, local_client_id, created_at, updated_at, deleted_at`,
		it.ID, expenseID, it.Name, amount, nullUUID(it.PaidByMemberID), nullString(it.LocalClientID))
	return scanItem(row)
}

func scanItem(row pgx.Row) (*domain.ExpenseItem, error) {
	it := &domain.ExpenseItem{}
	var amount pgtypeNumeric
	var paidBy pgtypeUUID
	var localClientID pgtypeText
	var deletedAt pgtypeTimestamptz
	if err := row.Scan(&it.ID, &it.ExpenseID, &it.Name, &amount, &paidBy, &localClientID, &it.CreatedAt, &it.UpdatedAt, &deletedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrItemNotFound
		}
		return nil, fmt.Errorf("postgres: scan item: %w", err)
	}
	it.Amount = pgNumericToDecimal(amount)
	it.PaidByMemberID = fromNullUUID(paidBy)
	it.LocalClientID = fromNullString(localClientID)
	it.DeletedAt = fromNullTime(deletedAt)
	return it, nil
}

// UpdateItem writes back an item's mutable fields.
func (r *BillRepository) UpdateItem(ctx context.Context, it *domain.ExpenseItem) error {
	amount, err := decimalToPgNumeric(it.Amount)
	if err != nil {
		return fmt.Errorf("postgres: invalid item amount: %w", err)
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE expense_items SET name = $2, amount = $3, paid_by_member_id = $4, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`,
		it.ID, it.Name, amount, nullUUID(it.PaidByMemberID))
	if err != nil {
		return fmt.Errorf("postgres: update item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrItemNotFound
	}
	return nil
}

// RemoveItem soft-deletes an item.
func (r *BillRepository) RemoveItem(ctx context.Context, itemID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `UPDATE expense_items SET deleted_at = now() WHERE id = $1`, itemID)
	if err != nil {
		return fmt.Errorf("postgres: remove item: %w", err)
	}
	return nil
}

// SetItemParticipants replaces an item's computed participant rows.
func (r *BillRepository) SetItemParticipants(ctx context.Context, itemID uuid.UUID, participants []*domain.ExpenseItemParticipant) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM expense_item_participants WHERE item_id = $1`, itemID); err != nil {
		return fmt.Errorf("postgres: clear item participants: %w", err)
	}
	for _, p := range participants {
		amount, err := decimalToPgNumeric(p.Amount)
		if err != nil {
			return fmt.Errorf("postgres: invalid participant amount: %w", err)
		}
		if _, err := r.db.Exec(ctx, `INSERT INTO expense_item_participants (item_id, member_id, amount) VALUES ($1, $2, $3)`,
			itemID, p.MemberID, amount); err != nil {
			return fmt.Errorf("postgres: insert item participant: %w", err)
		}
	}
	return nil
}

// UpsertSettledTransfer inserts or updates a settled-transfer marker.
func (r *BillRepository) UpsertSettledTransfer(ctx context.Context, t *domain.SettledTransfer) error {
	amount, err := decimalToPgNumeric(t.Amount)
	if err != nil {
		return fmt.Errorf("postgres: invalid transfer amount: %w", err)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO settled_transfers (bill_id, from_member_id, to_member_id, amount, settled_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (bill_id, from_member_id, to_member_id)
		DO UPDATE SET amount = EXCLUDED.amount, settled_at = EXCLUDED.settled_at`,
		t.BillID, t.FromMemberID, t.ToMemberID, amount, t.SettledAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert settled transfer: %w", err)
	}
	return nil
}

// RemoveSettledTransfer deletes one settled-transfer marker.
func (r *BillRepository) RemoveSettledTransfer(ctx context.Context, billID, from, to uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM settled_transfers WHERE bill_id = $1 AND from_member_id = $2 AND to_member_id = $3`, billID, from, to)
	if err != nil {
		return fmt.Errorf("postgres: remove settled transfer: %w", err)
	}
	return nil
}

// ClearSettledTransfers deletes every settled-transfer marker for a bill.
func (r *BillRepository) ClearSettledTransfers(ctx context.Context, billID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM settled_transfers WHERE bill_id = $1`, billID)
	if err != nil {
		return fmt.Errorf("postgres: clear settled transfers: %w", err)
	}
	return nil
}

// RemoveSettledTransfersForMember deletes every settled-transfer marker that
// references memberID, before the member itself is removed (FK RESTRICT).
func (r *BillRepository) RemoveSettledTransfersForMember(ctx context.Context, billID, memberID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM settled_transfers
		WHERE bill_id = $1 AND (from_member_id = $2 OR to_member_id = $2)`, billID, memberID)
	if err != nil {
		return fmt.Errorf("postgres: remove settled transfers for member: %w", err)
	}
	return nil
}
