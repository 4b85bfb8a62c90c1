package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/snapsplit/sync-core/internal/domain"
)

// OperationRepository implements domain.OperationRepository against Postgres.
type OperationRepository struct {
	pool *pgxpool.Pool
	db   dbtx
}

// NewOperationRepository creates an OperationRepository bound directly to pool.
func NewOperationRepository(pool *pgxpool.Pool) *OperationRepository {
	return &OperationRepository{pool: pool, db: pool}
}

// Append inserts an operation, relying on the (bill_id, version) unique
// index to reject a submission that lost the race to a concurrent writer.
func (r *OperationRepository) Append(ctx context.Context, op *domain.Operation) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO operations (id, bill_id, version, op_type, target_id, payload, actor_id, client_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		op.ID, op.BillID, op.Version, op.OpType, nullUUID(op.TargetID), op.Payload, nullUUID(op.ActorID), op.ClientID)
	if err != nil {
		if isPgUniqueViolation(err) {
			return domain.ErrStaleWrite
		}
		return fmt.Errorf("postgres: append operation: %w", err)
	}
	return nil
}

// ListSince returns operations with version > sinceVersion, ascending.
func (r *OperationRepository) ListSince(ctx context.Context, billID uuid.UUID, sinceVersion int64) ([]*domain.Operation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, bill_id, version, op_type, target_id, payload, actor_id, client_id, created_at
		FROM operations WHERE bill_id = $1 AND version > $2 ORDER BY version ASC`, billID, sinceVersion)
	if err != nil {
		return nil, fmt.Errorf("postgres: list operations since: %w", err)
	}
	defer rows.Close()

	var ops []*domain.Operation
	for rows.Next() {
		op := &domain.Operation{}
		var targetID, actorID pgtypeUUID
		if err := rows.Scan(&op.ID, &op.BillID, &op.Version, &op.OpType, &targetID, &op.Payload, &actorID, &op.ClientID, &op.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan operation: %w", err)
		}
		op.TargetID = fromNullUUID(targetID)
		op.ActorID = fromNullUUID(actorID)
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ops, nil
}
