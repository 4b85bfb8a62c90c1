package domain

import "errors"

// Domain errors
var (
	ErrNotFound      = errors.New("resource not found")
	ErrAlreadyExists = errors.New("resource already exists")
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrInternalError = errors.New("internal error")

	ErrBillNotFound    = errors.New("bill not found")
	ErrMemberNotFound  = errors.New("member not found")
	ErrExpenseNotFound = errors.New("expense not found")
	ErrItemNotFound    = errors.New("item not found")
	ErrUserNotFound    = errors.New("user not found")

	ErrNameRequired  = errors.New("name is required")
	ErrNameTooLong   = errors.New("name exceeds maximum length")
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrVersionMismatch is returned by the operation log when a submission's
	// baseVersion does not match the bill's current version.
	ErrVersionMismatch = errors.New("version mismatch")

	// ErrInvalidMemberReference is returned by delta sync when a payload
	// references a member id that cannot be resolved through the request's
	// id mappings or the bill's live members.
	ErrInvalidMemberReference = errors.New("invalid member reference")

	ErrMemberAlreadyClaimed    = errors.New("member already claimed")
	ErrUserAlreadyClaimedOther = errors.New("user already claimed a different member on this bill")
	ErrUnauthorizedUnclaim     = errors.New("only the claiming user may unclaim this member")
	ErrMemberNotClaimed        = errors.New("member is not claimed")

	// ErrStaleWrite surfaces a storage-level serialization failure detected
	// after the row lock was already believed held; the sync layer treats it
	// as equivalent to a VersionMismatch for the caller.
	ErrStaleWrite = errors.New("concurrent write lost the race")
)

// Validation constants
const (
	MaxBillNameLength    = 255
	MaxMemberNameLength  = 255
	MaxExpenseNameLength = 255
	MaxItemNameLength    = 255

	// ShareCodeLength is the length, in characters, of a bill's
	// public share code.
	ShareCodeLength = 8
)
