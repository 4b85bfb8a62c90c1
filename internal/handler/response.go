package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ProblemDetails represents an RFC 7807 Problem Details response. Code
// carries a stable machine-readable error code in addition to Type's URI,
// since sync clients branch on specific conflict/claim outcomes rather than
// just the HTTP status.
type ProblemDetails struct {
	Type     string            `json:"type"`
	Code     string            `json:"code,omitempty"`
	Title    string            `json:"title"`
	Status   int               `json:"status"`
	Detail   string            `json:"detail,omitempty"`
	Instance string            `json:"instance,omitempty"`
	Errors   []ValidationError `json:"errors,omitempty"`
}

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error types
const (
	ErrorTypeValidation   = "https://snapsplit.app/errors/validation"
	ErrorTypeNotFound     = "https://snapsplit.app/errors/not-found"
	ErrorTypeUnauthorized = "https://snapsplit.app/errors/unauthorized"
	ErrorTypeForbidden    = "https://snapsplit.app/errors/forbidden"
	ErrorTypeConflict     = "https://snapsplit.app/errors/conflict"
	ErrorTypeInternal     = "https://snapsplit.app/errors/internal"
)

// Error codes returned in ProblemDetails.Code
const (
	CodeBillNotFound            = "BILL_NOT_FOUND"
	CodeConflict                = "CONFLICT"
	CodeInvalidMemberReference  = "INVALID_MEMBER_REFERENCE"
	CodeMemberAlreadyClaimed    = "MEMBER_ALREADY_CLAIMED"
	CodeUserAlreadyClaimedOther = "USER_ALREADY_CLAIMED_OTHER"
	CodeUnauthorizedUnclaim     = "UNAUTHORIZED_UNCLAIM"
	CodeMemberNotClaimed        = "MEMBER_NOT_CLAIMED"
	CodeForbiddenBillAccess     = "FORBIDDEN_BILL_ACCESS"
)

// NewValidationError creates a validation error response
func NewValidationError(c echo.Context, detail string, errors []ValidationError) error {
	return c.JSON(http.StatusBadRequest, ProblemDetails{
		Type:     ErrorTypeValidation,
		Title:    "Validation Error",
		Status:   http.StatusBadRequest,
		Detail:   detail,
		Instance: c.Request().URL.Path,
		Errors:   errors,
	})
}

// NewNotFoundError creates a not found error response
func NewNotFoundError(c echo.Context, detail string) error {
	return c.JSON(http.StatusNotFound, ProblemDetails{
		Type:     ErrorTypeNotFound,
		Title:    "Not Found",
		Status:   http.StatusNotFound,
		Detail:   detail,
		Instance: c.Request().URL.Path,
	})
}

// NewUnauthorizedError creates an unauthorized error response
func NewUnauthorizedError(c echo.Context, detail string) error {
	return c.JSON(http.StatusUnauthorized, ProblemDetails{
		Type:     ErrorTypeUnauthorized,
		Title:    "Unauthorized",
		Status:   http.StatusUnauthorized,
		Detail:   detail,
		Instance: c.Request().URL.Path,
	})
}

// NewForbiddenError creates a forbidden error response
func NewForbiddenError(c echo.Context, detail string) error {
	return c.JSON(http.StatusForbidden, ProblemDetails{
		Type:     ErrorTypeForbidden,
		Title:    "Forbidden",
		Status:   http.StatusForbidden,
		Detail:   detail,
		Instance: c.Request().URL.Path,
	})
}

// NewConflictError creates a conflict error response
func NewConflictError(c echo.Context, detail string) error {
	return c.JSON(http.StatusConflict, ProblemDetails{
		Type:     ErrorTypeConflict,
		Code:     CodeConflict,
		Title:    "Conflict",
		Status:   http.StatusConflict,
		Detail:   detail,
		Instance: c.Request().URL.Path,
	})
}

// NewInternalError creates an internal error response
func NewInternalError(c echo.Context, detail string) error {
	return c.JSON(http.StatusInternalServerError, ProblemDetails{
		Type:     ErrorTypeInternal,
		Title:    "Internal Server Error",
		Status:   http.StatusInternalServerError,
		Detail:   detail,
		Instance: c.Request().URL.Path,
	})
}

// NewCodedError creates a ProblemDetails response carrying a specific
// machine-readable code at the given HTTP status, for the sync-specific
// error conditions that a generic Not Found / Conflict doesn't distinguish.
func NewCodedError(c echo.Context, status int, problemType, code, detail string) error {
	return c.JSON(status, ProblemDetails{
		Type:     problemType,
		Code:     code,
		Title:    code,
		Status:   status,
		Detail:   detail,
		Instance: c.Request().URL.Path,
	})
}
