package websocket

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

// mockUserLookup is a test double for UserLookup
type mockUserLookup struct {
	userID uuid.UUID
	err    error
}

func (m *mockUserLookup) GetOrCreateUserByAuth0ID(ctx context.Context, auth0ID string, claims CustomClaims) (uuid.UUID, error) {
	return m.userID, m.err
}

func TestUserLookup_Interface(t *testing.T) {
	var _ UserLookup = (*mockUserLookup)(nil)
}

func TestAuth0JWTValidator_ErrorTypes(t *testing.T) {
	t.Run("ErrUserNotFound is returned correctly", func(t *testing.T) {
		assert.Equal(t, "user not found", ErrUserNotFound.Error())
	})

	t.Run("ErrInvalidToken is returned correctly", func(t *testing.T) {
		assert.Equal(t, "invalid token", ErrInvalidToken.Error())
	})
}

func TestCustomClaims_Validate(t *testing.T) {
	claims := &CustomClaims{}
	err := claims.Validate(context.Background())
	assert.NoError(t, err, "CustomClaims.Validate should return nil")
}

func TestNewAuth0JWTValidator_InvalidDomain(t *testing.T) {
	lookup := &mockUserLookup{userID: uuid.New()}

	// Empty domain creates https:/// which is technically a valid URL
	validator, err := NewAuth0JWTValidator("", "audience", lookup)
	assert.NoError(t, err)
	assert.NotNil(t, validator)
}

func TestNewAuth0JWTValidator_Success(t *testing.T) {
	lookup := &mockUserLookup{userID: uuid.New()}

	validator, err := NewAuth0JWTValidator("test.auth0.com", "https://api.snapsplit.app", lookup)
	assert.NoError(t, err)
	assert.NotNil(t, validator)
	assert.NotNil(t, validator.validator)
	assert.Equal(t, lookup, validator.userLookup)
}

func TestAuth0JWTValidator_ValidateToken_InvalidJWT(t *testing.T) {
	lookup := &mockUserLookup{userID: uuid.New()}

	validator, err := NewAuth0JWTValidator("test.auth0.com", "https://api.snapsplit.app", lookup)
	assert.NoError(t, err)

	userID, err := validator.ValidateToken("invalid-token")
	assert.Error(t, err)
	assert.Equal(t, uuid.Nil, userID)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}
