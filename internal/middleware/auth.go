package middleware

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// CustomClaims contains the custom claims from the identity provider's JWT.
type CustomClaims struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// Validate implements validator.CustomClaims
func (c CustomClaims) Validate(ctx context.Context) error {
	return nil
}

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// ClaimsKey is the context key for JWT claims
	ClaimsKey contextKey = "claims"
	// Auth0IDKey is the context key for the identity provider's subject id
	Auth0IDKey contextKey = "auth0_id"
	// UserIDKey is the context key for the resolved internal user id
	UserIDKey contextKey = "user_id"
)

// UserProvider resolves the identity provider's subject into this system's
// internal user id, creating one on first sight.
type UserProvider interface {
	GetOrCreateUserByAuth0ID(ctx context.Context, auth0ID string, claims CustomClaims) (userID uuid.UUID, err error)
}

// AuthMiddleware validates owner JWTs. Bills also accept anonymous access
// via share code, so this middleware is only mounted on routes that require
// a resolved owner identity; see OptionalAuthenticate for routes that
// accept either.
type AuthMiddleware struct {
	validator    *validator.Validator
	userProvider UserProvider
}

// NewAuthMiddleware creates a new AuthMiddleware with Auth0 configuration.
func NewAuthMiddleware(domain, audience string, userProvider UserProvider) (*AuthMiddleware, error) {
	issuerURL, err := url.Parse("https://" + domain + "/")
	if err != nil {
		return nil, err
	}

	provider := jwks.NewCachingProvider(issuerURL, 5*time.Minute)

	jwtValidator, err := validator.New(
		provider.KeyFunc,
		validator.RS256,
		issuerURL.String(),
		[]string{audience},
		validator.WithCustomClaims(func() validator.CustomClaims {
			return &CustomClaims{}
		}),
		validator.WithAllowedClockSkew(time.Minute),
	)
	if err != nil {
		return nil, err
	}

	return &AuthMiddleware{
		validator:    jwtValidator,
		userProvider: userProvider,
	}, nil
}

// Authenticate returns an Echo middleware that requires a valid JWT, and
// rejects a missing or invalid one with the same Problem Details envelope
// every other endpoint uses rather than echo's default error shape.
func (m *AuthMiddleware) Authenticate() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, err := m.resolve(c)
			if err != nil {
				return unauthorizedError(c, httpErrorDetail(err))
			}
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// httpErrorDetail unwraps the message carried by an echo.HTTPError, falling
// back to the error's own text for anything else.
func httpErrorDetail(err error) string {
	if he, ok := err.(*echo.HTTPError); ok {
		if msg, ok := he.Message.(string); ok {
			return msg
		}
	}
	return err.Error()
}

// OptionalAuthenticate resolves a JWT into a UserID when one is present and
// valid, but never rejects the request for a missing or unparsable header;
// handlers that allow anonymous share-code access use this and fall back to
// GetUserID returning uuid.Nil.
func (m *AuthMiddleware) OptionalAuthenticate() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Header.Get("Authorization") == "" {
				return next(c)
			}
			ctx, err := m.resolve(c)
			if err != nil {
				log.Debug().Err(err).Msg("optional authentication failed, continuing anonymously")
				return next(c)
			}
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func (m *AuthMiddleware) resolve(c echo.Context) (context.Context, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header format")
	}
	token := parts[1]

	claims, err := m.validator.ValidateToken(c.Request().Context(), token)
	if err != nil {
		log.Debug().Err(err).Msg("token validation failed")
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}

	validatedClaims, ok := claims.(*validator.ValidatedClaims)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid claims")
	}

	auth0ID := validatedClaims.RegisteredClaims.Subject
	ctx := context.WithValue(c.Request().Context(), ClaimsKey, validatedClaims)
	ctx = context.WithValue(ctx, Auth0IDKey, auth0ID)

	if m.userProvider != nil {
		custom, _ := validatedClaims.CustomClaims.(*CustomClaims)
		if custom == nil {
			custom = &CustomClaims{}
		}
		userID, err := m.userProvider.GetOrCreateUserByAuth0ID(c.Request().Context(), auth0ID, *custom)
		if err != nil {
			log.Debug().Err(err).Str("auth0_id", auth0ID).Msg("user resolution failed")
			return nil, echo.NewHTTPError(http.StatusUnauthorized, "user resolution failed")
		}
		ctx = context.WithValue(ctx, UserIDKey, userID)
	}

	return ctx, nil
}

// GetAuth0ID extracts the identity provider's subject id from the context.
func GetAuth0ID(c echo.Context) string {
	if id, ok := c.Request().Context().Value(Auth0IDKey).(string); ok {
		return id
	}
	return ""
}

// GetClaims extracts the validated claims from the context.
func GetClaims(c echo.Context) *validator.ValidatedClaims {
	if claims, ok := c.Request().Context().Value(ClaimsKey).(*validator.ValidatedClaims); ok {
		return claims
	}
	return nil
}

// GetCustomClaims extracts the custom claims from the context.
func GetCustomClaims(c echo.Context) *CustomClaims {
	claims := GetClaims(c)
	if claims == nil {
		return nil
	}
	if custom, ok := claims.CustomClaims.(*CustomClaims); ok {
		return custom
	}
	return nil
}

// GetUserID extracts the resolved internal user id from the context, or
// uuid.Nil if the request carried no valid owner authentication.
func GetUserID(c echo.Context) uuid.UUID {
	if id, ok := c.Request().Context().Value(UserIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}
