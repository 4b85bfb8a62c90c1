package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapsplit/sync-core/internal/domain"
	"github.com/snapsplit/sync-core/internal/testutil"
)

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func newOperationServiceFixture(t *testing.T) (*OperationService, *testutil.FakeBillRepository, uuid.UUID) {
	t.Helper()
	bills := testutil.NewFakeBillRepository()
	ops := testutil.NewFakeOperationRepository()
	clock := testutil.NewFixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	svc := NewOperationService(bills, ops, clock)

	bill, err := bills.Create(context.Background(), &domain.Bill{Name: "Trip"})
	require.NoError(t, err)
	return svc, bills, bill.ID
}

func TestProcessOperation_AppliesAndBumpsVersion(t *testing.T) {
	svc, bills, billID := newOperationServiceFixture(t)

	op, conflict, err := svc.ProcessOperation(context.Background(), billID, domain.OperationRequest{
		BaseVersion: 1,
		OpType:      domain.OpMemberAdd,
		TargetID:    uuidPtr(uuid.New()),
		Payload:     mustJSON(t, domain.MemberAddPayload{Name: "Alice"}),
		ClientID:    "device-1",
	})
	require.NoError(t, err)
	require.Nil(t, conflict)
	require.NotNil(t, op)
	assert.Equal(t, int64(2), op.Version)

	bill, err := bills.Get(context.Background(), billID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), bill.Version)
	require.Len(t, bill.Members, 1)
	assert.Equal(t, "Alice", bill.Members[0].Name)
}

func TestProcessOperation_VersionMismatchReturnsConflict(t *testing.T) {
	svc, _, billID := newOperationServiceFixture(t)

	_, conflict, err := svc.ProcessOperation(context.Background(), billID, domain.OperationRequest{
		BaseVersion: 99,
		OpType:      domain.OpBillUpdateMeta,
		Payload:     mustJSON(t, domain.BillUpdateMetaPayload{Name: "Renamed"}),
		ClientID:    "device-1",
	})
	require.NoError(t, err)
	require.NotNil(t, conflict)
	assert.Equal(t, int64(1), conflict.CurrentVersion)
}

func TestProcessOperation_ConflictScenario_ReturnsMissingOperationsInOrder(t *testing.T) {
	svc, _, billID := newOperationServiceFixture(t)

	for i := 0; i < 4; i++ {
		_, conflict, err := svc.ProcessOperation(context.Background(), billID, domain.OperationRequest{
			BaseVersion: int64(1 + i),
			OpType:      domain.OpBillUpdateMeta,
			Payload:     mustJSON(t, domain.BillUpdateMetaPayload{Name: "v"}),
			ClientID:    "device-1",
		})
		require.NoError(t, err)
		require.Nil(t, conflict)
	}

	// bill is now at version 5; a stale client at base_version=3 submits.
	_, conflict, err := svc.ProcessOperation(context.Background(), billID, domain.OperationRequest{
		BaseVersion: 3,
		OpType:      domain.OpBillUpdateMeta,
		Payload:     mustJSON(t, domain.BillUpdateMetaPayload{Name: "stale"}),
		ClientID:    "device-2",
	})
	require.NoError(t, err)
	require.NotNil(t, conflict)
	assert.Equal(t, int64(5), conflict.CurrentVersion)
	require.Len(t, conflict.MissingOperations, 2)
	assert.Equal(t, int64(4), conflict.MissingOperations[0].Version)
	assert.Equal(t, int64(5), conflict.MissingOperations[1].Version)
}

func TestGetOperationsSince_OrdersAscending(t *testing.T) {
	svc, _, billID := newOperationServiceFixture(t)

	_, _, err := svc.ProcessOperation(context.Background(), billID, domain.OperationRequest{
		BaseVersion: 1,
		OpType:      domain.OpBillUpdateMeta,
		Payload:     mustJSON(t, domain.BillUpdateMetaPayload{Name: "v2"}),
		ClientID:    "device-1",
	})
	require.NoError(t, err)
	_, _, err = svc.ProcessOperation(context.Background(), billID, domain.OperationRequest{
		BaseVersion: 2,
		OpType:      domain.OpBillUpdateMeta,
		Payload:     mustJSON(t, domain.BillUpdateMetaPayload{Name: "v3"}),
		ClientID:    "device-1",
	})
	require.NoError(t, err)

	ops, err := svc.GetOperationsSince(context.Background(), billID, 0)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, int64(2), ops[0].Version)
	assert.Equal(t, int64(3), ops[1].Version)
}

func TestProcessOperation_MemberClaimRejectsDoubleClaim(t *testing.T) {
	svc, bills, billID := newOperationServiceFixture(t)
	memberID := uuid.New()

	_, conflict, err := svc.ProcessOperation(context.Background(), billID, domain.OperationRequest{
		BaseVersion: 1,
		OpType:      domain.OpMemberAdd,
		TargetID:    &memberID,
		Payload:     mustJSON(t, domain.MemberAddPayload{Name: "Guest"}),
		ClientID:    "device-1",
	})
	require.NoError(t, err)
	require.Nil(t, conflict)

	userA := uuid.New()
	_, conflict, err = svc.ProcessOperation(context.Background(), billID, domain.OperationRequest{
		BaseVersion: 2,
		OpType:      domain.OpMemberClaim,
		TargetID:    &memberID,
		ActorID:     &userA,
		Payload:     mustJSON(t, domain.MemberClaimPayload{Name: "Alice"}),
		ClientID:    "device-1",
	})
	require.NoError(t, err)
	require.Nil(t, conflict)

	userB := uuid.New()
	_, _, err = svc.ProcessOperation(context.Background(), billID, domain.OperationRequest{
		BaseVersion: 3,
		OpType:      domain.OpMemberClaim,
		TargetID:    &memberID,
		ActorID:     &userB,
		ClientID:    "device-2",
	})
	require.ErrorIs(t, err, domain.ErrMemberAlreadyClaimed)

	// The failed claim must not have bumped the bill's version.
	bill, err := bills.Get(context.Background(), billID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), bill.Version)
}

func TestProcessOperation_BillUpdateMeta_PersistsNewName(t *testing.T) {
	svc, bills, billID := newOperationServiceFixture(t)

	_, conflict, err := svc.ProcessOperation(context.Background(), billID, domain.OperationRequest{
		BaseVersion: 1,
		OpType:      domain.OpBillUpdateMeta,
		Payload:     mustJSON(t, domain.BillUpdateMetaPayload{Name: "Renamed Trip"}),
		ClientID:    "device-1",
	})
	require.NoError(t, err)
	require.Nil(t, conflict)

	bill, err := bills.Get(context.Background(), billID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed Trip", bill.Name)
	assert.Equal(t, int64(2), bill.Version)
}

func uuidPtr(id uuid.UUID) *uuid.UUID {
	return &id
}
