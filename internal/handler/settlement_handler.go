package handler

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/snapsplit/sync-core/internal/domain"
	"github.com/snapsplit/sync-core/internal/money"
	"github.com/snapsplit/sync-core/internal/service"
	"github.com/snapsplit/sync-core/internal/settlement"
)

// SettlementHandler exposes the settlement read-model and the settled-
// transfer toggle, both derived from a freshly loaded bill rather than a
// cached projection.
type SettlementHandler struct {
	bills domain.BillRepository
	ops   *service.OperationService
}

// NewSettlementHandler creates a SettlementHandler.
func NewSettlementHandler(bills domain.BillRepository, ops *service.OperationService) *SettlementHandler {
	return &SettlementHandler{bills: bills, ops: ops}
}

// GetSettlement handles GET /bills/{id}/settlement.
func (h *SettlementHandler) GetSettlement(c echo.Context) error {
	billID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "invalid bill id", nil)
	}

	bill, err := h.bills.Get(c.Request().Context(), billID)
	if err != nil {
		return mapSyncError(c, err)
	}

	result := settlement.Compute(bill)
	return c.JSON(http.StatusOK, toSettlementResult(bill, result))
}

// GetSettlementHistory handles GET /bills/{id}/settlement/history. Unlike
// GetSettlement, which reports what is currently owed, this reports what
// was marked settled and at what amount, so a client can tell a stale
// transfer (balances moved since) from a settled one.
func (h *SettlementHandler) GetSettlementHistory(c echo.Context) error {
	billID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "invalid bill id", nil)
	}

	bill, err := h.bills.Get(c.Request().Context(), billID)
	if err != nil {
		return mapSyncError(c, err)
	}

	return c.JSON(http.StatusOK, bill.SettledTransfers)
}

// toggleSettlementBody is the wire shape of POST /bills/{id}/settlements/toggle.
type toggleSettlementBody struct {
	From     uuid.UUID `json:"fromMemberId"`
	To       uuid.UUID `json:"toMemberId"`
	ClientID string    `json:"clientId"`
}

// ToggleSettlement handles POST /bills/{id}/settlements/toggle. It submits
// a SETTLEMENT_MARK or SETTLEMENT_UNMARK operation through the same
// version-gated operation log every other edit goes through, rather than
// writing the flag directly.
func (h *SettlementHandler) ToggleSettlement(c echo.Context) error {
	billID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "invalid bill id", nil)
	}

	var body toggleSettlementBody
	if err := c.Bind(&body); err != nil {
		return NewValidationError(c, "malformed request body", nil)
	}

	bill, err := h.bills.Get(c.Request().Context(), billID)
	if err != nil {
		return mapSyncError(c, err)
	}

	transfers := settlement.MinimalTransfers(settlement.Balances(bill))
	liveAmount := liveTransferAmount(transfers, body.From, body.To)

	toggle := settlement.ToggleSettled(bill.SettledTransfers, body.From, body.To, liveAmount)

	var payload []byte
	switch toggle.OpType {
	case domain.OpSettlementMark:
		payload, err = json.Marshal(toggle.Mark)
	case domain.OpSettlementUnmark:
		payload, err = json.Marshal(toggle.Unmark)
	}
	if err != nil {
		return NewInternalError(c, "failed to encode operation")
	}

	req := domain.OperationRequest{
		BaseVersion: bill.Version,
		OpType:      toggle.OpType,
		Payload:     payload,
		ActorID:     actorFromContext(c),
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

func liveTransferAmount(transfers []settlement.Transfer, from, to uuid.UUID) decimal.Decimal {
	for _, t := range transfers {
		if t.From == from && t.To == to {
			return t.Amount
		}
	}
	return decimal.Zero
}

func toSettlementResult(bill *domain.Bill, result settlement.Result) domain.SettlementResult {
	total := decimal.Zero
	totalWithFee := decimal.Zero
	for _, e := range bill.Expenses {
		if e.DeletedAt != nil {
			continue
		}
		total = total.Add(e.Amount)
		totalWithFee = totalWithFee.Add(money.ApplyServiceFee(e.Amount, e.ServiceFeePercent))
	}

	balances := make([]domain.SettlementMemberBalance, 0, len(result.Balances))
	for id, bal := range result.Balances {
		balances = append(balances, domain.SettlementMemberBalance{MemberID: id, Balance: bal})
	}

	transfers := make([]domain.TransferDto, 0, len(result.Transfers))
	for _, t := range result.Transfers {
		transfers = append(transfers, domain.TransferDto{
			From:      t.From,
			To:        t.To,
			Amount:    t.Amount,
			IsSettled: settlement.IsSettled(bill.SettledTransfers, t.From, t.To),
		})
	}

	return domain.SettlementResult{
		TotalAmount:         total,
		TotalWithServiceFee: totalWithFee,
		MemberBalances:      balances,
		Transfers:           transfers,
	}
}
