package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/snapsplit/sync-core/internal/domain"
)

// UserService resolves an identity provider's subject into this system's
// internal user id, creating the user record on first sight. cmd/api wraps
// it in small adapters to satisfy middleware.UserProvider and
// websocket.UserLookup, whose CustomClaims types differ only in name.
type UserService struct {
	users domain.UserRepository
}

// NewUserService creates a UserService.
func NewUserService(users domain.UserRepository) *UserService {
	return &UserService{users: users}
}

// GetOrCreateUserByAuth0ID looks up a user by Auth0 subject, creating one
// from the token's claims if none exists yet.
func (s *UserService) GetOrCreateUserByAuth0ID(ctx context.Context, auth0ID string, email, name, picture string) (uuid.UUID, error) {
	existing, err := s.users.GetByAuth0ID(ctx, auth0ID)
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return uuid.Nil, fmt.Errorf("service: lookup user: %w", err)
	}

	u := &domain.User{Auth0ID: auth0ID, Email: email}
	if name != "" {
		u.Name = &name
	}
	if picture != "" {
		u.PictureURL = &picture
	}

	created, err := s.users.Create(ctx, u)
	if err != nil {
		return uuid.Nil, fmt.Errorf("service: create user: %w", err)
	}
	return created.ID, nil
}
