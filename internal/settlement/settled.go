package settlement

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/snapsplit/sync-core/internal/domain"
)

// IsSettled reports whether the from->to edge has been flagged as paid
// outside the system. Settled transfers are a display annotation, not a
// balance adjustment: they do not appear in, and are not computed from,
// Balances or MinimalTransfers.
func IsSettled(transfers []*domain.SettledTransfer, from, to uuid.UUID) bool {
	for _, t := range transfers {
		if t.FromMemberID == from && t.ToMemberID == to {
			return true
		}
	}
	return false
}

// ToggleResult describes which operation the caller should log to flip a
// transfer's settled flag.
type ToggleResult struct {
	OpType  domain.OpType
	Mark    *domain.SettlementMarkPayload
	Unmark  *domain.SettlementUnmarkPayload
}

// ToggleSettled decides whether marking or unmarking the from->to edge is
// the correct next operation, given the bill's current settled transfers
// and the live transfer amount computed for that edge.
func ToggleSettled(transfers []*domain.SettledTransfer, from, to uuid.UUID, liveAmount decimal.Decimal) ToggleResult {
	if IsSettled(transfers, from, to) {
		return ToggleResult{
			OpType: domain.OpSettlementUnmark,
			Unmark: &domain.SettlementUnmarkPayload{FromMemberID: from, ToMemberID: to},
		}
	}
	return ToggleResult{
		OpType: domain.OpSettlementMark,
		Mark:   &domain.SettlementMarkPayload{FromMemberID: from, ToMemberID: to, Amount: liveAmount},
	}
}
