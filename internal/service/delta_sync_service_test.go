package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapsplit/sync-core/internal/domain"
	"github.com/snapsplit/sync-core/internal/testutil"
)

func newDeltaSyncFixture(t *testing.T) (*DeltaSyncService, *testutil.FakeBillRepository) {
	t.Helper()
	bills := testutil.NewFakeBillRepository()
	clock := testutil.NewFixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return NewDeltaSyncService(bills, clock), bills
}

func TestDeltaSync_GhostMemberReference_FailsWholeRequestAndRollsBack(t *testing.T) {
	svc, bills := newDeltaSyncFixture(t)

	bill, err := bills.Create(context.Background(), &domain.Bill{Name: "Trip", ShareCode: "GHOST0001"})
	require.NoError(t, err)
	m, err := bills.AddMember(context.Background(), bill.ID, &domain.Member{Name: "M"})
	require.NoError(t, err)
	require.NoError(t, bills.RemoveMember(context.Background(), bill.ID, m.ID))
	require.NoError(t, bills.UpdateVersionAndMeta(context.Background(), bill.ID, 2, nil))

	req := domain.DeltaSyncRequest{
		BaseVersion: 1,
		AddExpenses: []domain.ExpenseUpsert{
			{LocalID: "e1", Name: "Dinner", Amount: decimal.NewFromInt(100), PaidByID: &m.ID},
		},
	}

	_, err = svc.DeltaSync(context.Background(), bill.ID, req, nil)
	require.ErrorIs(t, err, domain.ErrInvalidMemberReference)

	reloaded, err := bills.Get(context.Background(), bill.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), reloaded.Version)
	assert.Empty(t, reloaded.Expenses)
}

func TestDeltaSync_ConflictingUpdate_ServerWinsAndReportsConflict(t *testing.T) {
	svc, bills := newDeltaSyncFixture(t)

	bill, err := bills.Create(context.Background(), &domain.Bill{Name: "Trip", ShareCode: "SVWIN0001"})
	require.NoError(t, err)
	m, err := bills.AddMember(context.Background(), bill.ID, &domain.Member{Name: "Alice"})
	require.NoError(t, err)
	require.NoError(t, bills.UpdateVersionAndMeta(context.Background(), bill.ID, 3, nil))

	req := domain.DeltaSyncRequest{
		BaseVersion: 1,
		UpdateMembers: []domain.MemberUpsert{
			{LocalID: "m1", RemoteID: &m.ID, Name: "Alicia"},
		},
	}

	resp, err := svc.DeltaSync(context.Background(), bill.ID, req, nil)
	require.NoError(t, err)
	require.Len(t, resp.Conflicts, 1)
	assert.Equal(t, domain.ResolutionServerWins, resp.Conflicts[0].Resolution)
	assert.Equal(t, "member", resp.Conflicts[0].EntityType)
	require.NotNil(t, resp.MergedBill)

	reloaded, err := bills.Get(context.Background(), bill.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", reloaded.Members[0].Name)
	assert.Equal(t, int64(4), reloaded.Version)
}

func TestDeltaSync_ConflictingDelete_IsManualRequired(t *testing.T) {
	svc, bills := newDeltaSyncFixture(t)

	bill, err := bills.Create(context.Background(), &domain.Bill{Name: "Trip", ShareCode: "MANREQ001"})
	require.NoError(t, err)
	e, err := bills.AddExpense(context.Background(), bill.ID, &domain.Expense{Name: "Snacks", Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)
	require.NoError(t, bills.UpdateVersionAndMeta(context.Background(), bill.ID, 2, nil))

	req := domain.DeltaSyncRequest{
		BaseVersion:    1,
		DeleteExpenses: []uuid.UUID{e.ID},
	}

	resp, err := svc.DeltaSync(context.Background(), bill.ID, req, nil)
	require.NoError(t, err)
	require.Len(t, resp.Conflicts, 1)
	assert.Equal(t, domain.ResolutionManualRequired, resp.Conflicts[0].Resolution)

	reloaded, err := bills.Get(context.Background(), bill.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.Expenses, 1)
}

func TestDeltaSync_AddAlwaysMergesEvenUnderConflict(t *testing.T) {
	svc, bills := newDeltaSyncFixture(t)

	bill, err := bills.Create(context.Background(), &domain.Bill{Name: "Trip", ShareCode: "ADDMRG001"})
	require.NoError(t, err)
	require.NoError(t, bills.UpdateVersionAndMeta(context.Background(), bill.ID, 3, nil))

	req := domain.DeltaSyncRequest{
		BaseVersion: 1,
		AddMembers: []domain.MemberUpsert{
			{LocalID: "m1", Name: "Carol"},
		},
	}

	resp, err := svc.DeltaSync(context.Background(), bill.ID, req, nil)
	require.NoError(t, err)
	assert.Empty(t, resp.Conflicts)
	_, ok := resp.IDMappings.Members["m1"]
	assert.True(t, ok)

	reloaded, err := bills.Get(context.Background(), bill.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.Members, 1)
	assert.Equal(t, "Carol", reloaded.Members[0].Name)
}

func TestDeltaSync_AddItem_RetryIsIdempotentByLocalID(t *testing.T) {
	svc, bills := newDeltaSyncFixture(t)

	bill, err := bills.Create(context.Background(), &domain.Bill{Name: "Trip", ShareCode: "IDEMIT001"})
	require.NoError(t, err)
	e, err := bills.AddExpense(context.Background(), bill.ID, &domain.Expense{Name: "Groceries", Amount: decimal.NewFromInt(50), IsItemized: true})
	require.NoError(t, err)

	makeReq := func(baseVersion int64) domain.DeltaSyncRequest {
		return domain.DeltaSyncRequest{
			BaseVersion: baseVersion,
			AddItems: []domain.ItemUpsert{
				{LocalID: "it1", ExpenseID: &e.ID, Name: "Milk", Amount: decimal.NewFromInt(5)},
			},
		}
	}

	first, err := svc.DeltaSync(context.Background(), bill.ID, makeReq(1), nil)
	require.NoError(t, err)
	firstID := first.IDMappings.ExpenseItems["it1"]
	require.NotEqual(t, uuid.Nil, firstID)

	second, err := svc.DeltaSync(context.Background(), bill.ID, makeReq(2), nil)
	require.NoError(t, err)
	assert.Equal(t, firstID, second.IDMappings.ExpenseItems["it1"])

	reloaded, err := bills.Get(context.Background(), bill.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.Expenses[0].Items, 1)
}
