package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/snapsplit/sync-core/internal/domain"
)

// UserRepository implements domain.UserRepository against Postgres.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a UserRepository bound to pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetByAuth0ID retrieves a user by their identity provider subject.
func (r *UserRepository) GetByAuth0ID(ctx context.Context, auth0ID string) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, auth0_id, email, name, picture_url, created_at, updated_at
		FROM users WHERE auth0_id = $1`, auth0ID)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("postgres: get user by auth0 id: %w", err)
	}
	return u, nil
}

// Create inserts a new user.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) (*domain.User, error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (id, auth0_id, email, name, picture_url)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, auth0_id, email, name, picture_url, created_at, updated_at`,
		u.ID, u.Auth0ID, u.Email, nullString(u.Name), nullString(u.PictureURL))
	created, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("postgres: create user: %w", err)
	}
	return created, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	u := &domain.User{}
	var name, pictureURL pgtypeText
	if err := row.Scan(&u.ID, &u.Auth0ID, &u.Email, &name, &pictureURL, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Name = fromNullString(name)
	u.PictureURL = fromNullString(pictureURL)
	return u, nil
}
