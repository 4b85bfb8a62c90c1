package middleware

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/snapsplit/sync-core/internal/authcheck"
)

// RequireBillAccess installs an authcheck memoization cache on the request
// context and, for a request that carries a resolved owner identity, rejects
// it with 403 unless that user owns the bill or is linked to one of its
// members. A share-code-only (anonymous) request skips the check entirely,
// since anonymous access is granted by knowing the share code, not by
// identity.
func RequireBillAccess(checker *authcheck.Checker) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := authcheck.WithCache(c.Request().Context())
			c.SetRequest(c.Request().WithContext(ctx))

			userID := GetUserID(c)
			if userID == uuid.Nil {
				return next(c)
			}

			billID, err := uuid.Parse(c.Param(BillIDParam))
			if err != nil {
				return next(c)
			}

			ok, err := checker.IsOwnerOrParticipant(ctx, billID, userID)
			if err != nil {
				return unauthorizedError(c, "failed to verify bill access")
			}
			if !ok {
				return c.JSON(http.StatusForbidden, problemDetails{
					Type:     "https://snapsplit.app/errors/forbidden",
					Title:    "Forbidden",
					Status:   http.StatusForbidden,
					Detail:   "this user is not an owner or participant of the bill",
					Instance: c.Request().URL.Path,
				})
			}
			return next(c)
		}
	}
}
