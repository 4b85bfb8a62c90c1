package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OperationRequest is one accepted submission to the fine-grained operation
// log. ActorID is nil for an anonymous (unclaimed-member) submitter.
type OperationRequest struct {
	BaseVersion int64
	OpType      OpType
	TargetID    *uuid.UUID
	Payload     []byte
	ActorID     *uuid.UUID
	ClientID    string
}

// OperationConflict is returned instead of an accepted Operation when the
// request's BaseVersion trails the bill's current version. The client
// rebases against MissingOperations and retries.
type OperationConflict struct {
	CurrentVersion    int64        `json:"currentVersion"`
	MissingOperations []*Operation `json:"missingOperations"`
}

// IDMappings carries client local-id -> server remote-id assignments made
// during a sync, so the caller can rewrite its local state.
type IDMappings struct {
	Members      map[string]uuid.UUID `json:"members,omitempty"`
	Expenses     map[string]uuid.UUID `json:"expenses,omitempty"`
	ExpenseItems map[string]uuid.UUID `json:"expenseItems,omitempty"`
}

// NewIDMappings returns a ready-to-populate IDMappings.
func NewIDMappings() IDMappings {
	return IDMappings{
		Members:      make(map[string]uuid.UUID),
		Expenses:     make(map[string]uuid.UUID),
		ExpenseItems: make(map[string]uuid.UUID),
	}
}

// MemberUpsert is one member add-or-update row in a bulk/delta sync request.
// RemoteID is set when the client already knows the server id; LocalID is
// always present and is the idempotency key for first-time creation.
type MemberUpsert struct {
	LocalID      string     `json:"localId"`
	RemoteID     *uuid.UUID `json:"remoteId,omitempty"`
	Name         string     `json:"name"`
	DisplayOrder *int       `json:"displayOrder,omitempty"`
}

// ItemUpsert is one expense-item add-or-update row. When nested under an
// ExpenseUpsert.Items, the parent expense is implicit; when it appears in
// DeltaSyncRequest's top-level AddItems/UpdateItems, ExpenseLocalID or
// ExpenseID names the parent explicitly.
type ItemUpsert struct {
	LocalID        string          `json:"localId"`
	RemoteID       *uuid.UUID      `json:"remoteId,omitempty"`
	ExpenseLocalID *string         `json:"expenseLocalId,omitempty"`
	ExpenseID      *uuid.UUID      `json:"expenseId,omitempty"`
	Name           string          `json:"name"`
	Amount         decimal.Decimal `json:"amount"`
	PaidByLocalID  *string         `json:"paidByLocalId,omitempty"`
	PaidByID       *uuid.UUID      `json:"paidById,omitempty"`
	Participants   []string        `json:"participantLocalIds,omitempty"`
}

// ExpenseUpsert is one expense add-or-update row, with its nested items and
// participant references expressed as local ids (resolved against the id
// mapping table and the bill's live members).
type ExpenseUpsert struct {
	LocalID           string          `json:"localId"`
	RemoteID          *uuid.UUID      `json:"remoteId,omitempty"`
	Name              string          `json:"name"`
	Amount            decimal.Decimal `json:"amount"`
	ServiceFeePercent decimal.Decimal `json:"serviceFeePercent"`
	IsItemized        bool            `json:"isItemized"`
	PaidByLocalID     *string         `json:"paidByLocalId,omitempty"`
	PaidByID          *uuid.UUID      `json:"paidById,omitempty"`
	Participants      []string        `json:"participantLocalIds,omitempty"`
	Items             []ItemUpsert    `json:"items,omitempty"`
}

// SyncBillRequest is the BulkSync request body: a one-shot full-state
// update used by long-offline clients.
type SyncBillRequest struct {
	LocalID              string          `json:"localId"`
	RemoteID              *uuid.UUID     `json:"remoteId,omitempty"`
	BaseVersion           int64          `json:"baseVersion"`
	Name                  *string        `json:"name,omitempty"`
	Members               []MemberUpsert `json:"members,omitempty"`
	DeletedMemberIDs       []uuid.UUID   `json:"deletedMemberIds,omitempty"`
	Expenses               []ExpenseUpsert `json:"expenses,omitempty"`
	DeletedExpenseIDs      []uuid.UUID   `json:"deletedExpenseIds,omitempty"`
	DeletedItemIDs         []uuid.UUID   `json:"deletedItemIds,omitempty"`
	SettledTransfers       []string      `json:"settledTransfers,omitempty"`
	RemovedSettledTransfers []string     `json:"removedSettledTransfers,omitempty"`
}

// SyncBillResponse is the BulkSync response body.
type SyncBillResponse struct {
	RemoteID    uuid.UUID  `json:"remoteId"`
	Version     int64      `json:"version"`
	ShareCode   string     `json:"shareCode"`
	IDMappings  IDMappings `json:"idMappings"`
	ServerTime  time.Time  `json:"serverTime"`
	HasConflict bool       `json:"hasConflict"`
	LatestBill  *Bill      `json:"latestBill,omitempty"`
}

// ConflictResolution tags how a single DeltaSync conflict was resolved.
type ConflictResolution string

const (
	ResolutionServerWins     ConflictResolution = "server_wins"
	ResolutionManualRequired ConflictResolution = "manual_required"
)

// ConflictInfo records one entity-level conflict detected during DeltaSync.
type ConflictInfo struct {
	EntityType string             `json:"entityType"`
	EntityID   uuid.UUID          `json:"entityId"`
	Resolution ConflictResolution `json:"resolution"`
}

// DeltaSyncRequest expresses changes as explicit add/update/delete lists
// per entity type, rather than BulkSync's single upsert list.
type DeltaSyncRequest struct {
	BaseVersion int64 `json:"baseVersion"`
	Name        *string `json:"name,omitempty"`

	AddMembers    []MemberUpsert `json:"addMembers,omitempty"`
	UpdateMembers []MemberUpsert `json:"updateMembers,omitempty"`
	DeleteMembers []uuid.UUID    `json:"deleteMembers,omitempty"`

	AddExpenses    []ExpenseUpsert `json:"addExpenses,omitempty"`
	UpdateExpenses []ExpenseUpsert `json:"updateExpenses,omitempty"`
	DeleteExpenses []uuid.UUID     `json:"deleteExpenses,omitempty"`

	AddItems    []ItemUpsert `json:"addItems,omitempty"`
	UpdateItems []ItemUpsert `json:"updateItems,omitempty"`
	DeleteItems []uuid.UUID  `json:"deleteItems,omitempty"`

	SettledTransfers        []string `json:"settledTransfers,omitempty"`
	RemovedSettledTransfers []string `json:"removedSettledTransfers,omitempty"`
}

// DeltaSyncResponse is the DeltaSync response body.
type DeltaSyncResponse struct {
	Success     bool           `json:"success"`
	NewVersion  int64          `json:"newVersion"`
	IDMappings  IDMappings     `json:"idMappings"`
	Conflicts   []ConflictInfo `json:"conflicts,omitempty"`
	MergedBill  *Bill          `json:"mergedBill,omitempty"`
}

// SettlementMemberBalance is one row of the settlement read-model.
type SettlementMemberBalance struct {
	MemberID uuid.UUID       `json:"memberId"`
	Balance  decimal.Decimal `json:"balance"`
}

// TransferDto is one minimal-transfer row of the settlement read-model.
type TransferDto struct {
	From      uuid.UUID       `json:"fromMemberId"`
	To        uuid.UUID       `json:"toMemberId"`
	Amount    decimal.Decimal `json:"amount"`
	IsSettled bool            `json:"isSettled"`
}

// SettlementResult is the GET /bills/{id}/settlement response body.
type SettlementResult struct {
	TotalAmount          decimal.Decimal           `json:"totalAmount"`
	TotalWithServiceFee  decimal.Decimal           `json:"totalWithServiceFee"`
	MemberBalances       []SettlementMemberBalance `json:"memberBalances"`
	Transfers            []TransferDto             `json:"transfers"`
}
