package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MemberLinkRepository implements domain.MemberLinkRepository against
// Postgres, independent of a full bill load.
type MemberLinkRepository struct {
	pool *pgxpool.Pool
}

// NewMemberLinkRepository creates a MemberLinkRepository bound to pool.
func NewMemberLinkRepository(pool *pgxpool.Pool) *MemberLinkRepository {
	return &MemberLinkRepository{pool: pool}
}

// IsOwnerOrParticipant reports whether userID owns billID or has a member
// slot on it linked to their identity.
func (r *MemberLinkRepository) IsOwnerOrParticipant(ctx context.Context, billID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bills WHERE id = $1 AND owner_user_id = $2 AND deleted_at IS NULL
			UNION ALL
			SELECT 1 FROM members WHERE bill_id = $1 AND linked_user_id = $2 AND deleted_at IS NULL
		)`, billID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: is owner or participant: %w", err)
	}
	return exists, nil
}
