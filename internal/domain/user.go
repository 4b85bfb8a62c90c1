package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// User is an owner identity resolved from an external identity provider.
// Anonymous share-code collaborators never get a User row; only an
// authenticated owner does.
type User struct {
	ID         uuid.UUID `json:"id"`
	Auth0ID    string    `json:"auth0Id"`
	Email      string    `json:"email"`
	Name       *string   `json:"name,omitempty"`
	PictureURL *string   `json:"pictureUrl,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// UserRepository persists owner identities.
type UserRepository interface {
	GetByAuth0ID(ctx context.Context, auth0ID string) (*User, error)
	Create(ctx context.Context, u *User) (*User, error)
}
