package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/snapsplit/sync-core/internal/domain"
	"github.com/snapsplit/sync-core/internal/middleware"
	"github.com/snapsplit/sync-core/internal/service"
)

// SyncHandler exposes the bulk-sync, delta-sync and operation-log HTTP
// endpoints a client uses to push local edits and rebase after a conflict.
type SyncHandler struct {
	bulkSync  *service.BulkSyncService
	deltaSync *service.DeltaSyncService
	ops       *service.OperationService
}

// NewSyncHandler creates a SyncHandler.
func NewSyncHandler(bulkSync *service.BulkSyncService, deltaSync *service.DeltaSyncService, ops *service.OperationService) *SyncHandler {
	return &SyncHandler{bulkSync: bulkSync, deltaSync: deltaSync, ops: ops}
}

// BulkSync handles POST /bills/sync.
func (h *SyncHandler) BulkSync(c echo.Context) error {
	var req domain.SyncBillRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "malformed request body", nil)
	}

	owner := actorFromContext(c)
	resp, err := h.bulkSync.BulkSync(c.Request().Context(), req, owner, owner)
	if err != nil {
		return mapSyncError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// DeltaSync handles POST /bills/{id}/delta-sync.
func (h *SyncHandler) DeltaSync(c echo.Context) error {
	billID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "invalid bill id", nil)
	}

	var req domain.DeltaSyncRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "malformed request body", nil)
	}

	actor := actorFromContext(c)
	resp, err := h.deltaSync.DeltaSync(c.Request().Context(), billID, req, actor)
	if err != nil {
		return mapSyncError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// operationRequestBody is the wire shape of POST /bills/{id}/operations.
type operationRequestBody struct {
	BaseVersion int64           `json:"baseVersion"`
	OpType      domain.OpType   `json:"opType"`
	TargetID    *uuid.UUID      `json:"targetId,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	ClientID    string          `json:"clientId"`
}

// SubmitOperation handles POST /bills/{id}/operations.
func (h *SyncHandler) SubmitOperation(c echo.Context) error {
	billID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "invalid bill id", nil)
	}

	var body operationRequestBody
	if err := c.Bind(&body); err != nil {
		return NewValidationError(c, "malformed request body", nil)
	}

	actor := actorFromContext(c)
	req := domain.OperationRequest{
		BaseVersion: body.BaseVersion,
		OpType:      body.OpType,
		TargetID:    body.TargetID,
		Payload:     body.Payload,
		ActorID:     actor,
		ClientID:    body.ClientID,
	}

	accepted, conflict, err := h.ops.ProcessOperation(c.Request().Context(), billID, req)
	if err != nil {
		return mapSyncError(c, err)
	}
	if conflict != nil {
		return c.JSON(http.StatusConflict, conflict)
	}
	return c.JSON(http.StatusOK, accepted)
}

// ListOperations handles GET /bills/{id}/operations?since=V.
func (h *SyncHandler) ListOperations(c echo.Context) error {
	billID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "invalid bill id", nil)
	}

	since, err := strconv.ParseInt(c.QueryParam("since"), 10, 64)
	if err != nil {
		since = 0
	}

	ops, err := h.ops.GetOperationsSince(c.Request().Context(), billID, since)
	if err != nil {
		return mapSyncError(c, err)
	}
	return c.JSON(http.StatusOK, ops)
}

// actorFromContext returns the resolved owner user id, or nil for an
// anonymous (share-code-only) request.
func actorFromContext(c echo.Context) *uuid.UUID {
	id := middleware.GetUserID(c)
	if id == uuid.Nil {
		return nil
	}
	return &id
}

// mapSyncError translates a domain sentinel error into the matching
// ProblemDetails response.
func mapSyncError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrBillNotFound):
		return NewCodedError(c, http.StatusNotFound, ErrorTypeNotFound, CodeBillNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidMemberReference):
		return NewCodedError(c, http.StatusBadRequest, ErrorTypeValidation, CodeInvalidMemberReference, err.Error())
	case errors.Is(err, domain.ErrMemberAlreadyClaimed):
		return NewCodedError(c, http.StatusConflict, ErrorTypeConflict, CodeMemberAlreadyClaimed, err.Error())
	case errors.Is(err, domain.ErrUserAlreadyClaimedOther):
		return NewCodedError(c, http.StatusConflict, ErrorTypeConflict, CodeUserAlreadyClaimedOther, err.Error())
	case errors.Is(err, domain.ErrUnauthorizedUnclaim):
		return NewCodedError(c, http.StatusForbidden, ErrorTypeForbidden, CodeUnauthorizedUnclaim, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		return NewCodedError(c, http.StatusForbidden, ErrorTypeForbidden, CodeForbiddenBillAccess, err.Error())
	case errors.Is(err, domain.ErrMemberNotClaimed):
		return NewCodedError(c, http.StatusBadRequest, ErrorTypeValidation, CodeMemberNotClaimed, err.Error())
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrNameRequired), errors.Is(err, domain.ErrNameTooLong), errors.Is(err, domain.ErrInvalidAmount):
		return NewValidationError(c, err.Error(), nil)
	default:
		return NewInternalError(c, "an unexpected error occurred")
	}
}
