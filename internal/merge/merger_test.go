package merge

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapsplit/sync-core/internal/domain"
)

func mustPayload(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func newTestBill() *domain.Bill {
	return &domain.Bill{
		ID:      uuid.New(),
		Name:    "Weekend trip",
		Version: 0,
	}
}

func TestApply_BillUpdateMeta(t *testing.T) {
	bill := newTestBill()
	op := &domain.Operation{
		OpType:  domain.OpBillUpdateMeta,
		Payload: mustPayload(t, domain.BillUpdateMetaPayload{Name: "Lake house"}),
	}
	require.NoError(t, New().Apply(context.Background(), bill, op))
	assert.Equal(t, "Lake house", bill.Name)
}

func TestApply_MemberAddAndUpdate(t *testing.T) {
	bill := newTestBill()
	memberID := uuid.New()
	now := time.Now().UTC()
	addOp := &domain.Operation{
		OpType:    domain.OpMemberAdd,
		TargetID:  &memberID,
		CreatedAt: now,
		Payload:   mustPayload(t, domain.MemberAddPayload{Name: "Alice"}),
	}
	m := New()
	require.NoError(t, m.Apply(context.Background(), bill, addOp))
	require.Len(t, bill.Members, 1)
	assert.Equal(t, "Alice", bill.Members[0].Name)

	newName := "Alicia"
	updateOp := &domain.Operation{
		OpType:   domain.OpMemberUpdate,
		TargetID: &memberID,
		Payload:  mustPayload(t, domain.MemberUpdatePayload{Name: &newName}),
	}
	require.NoError(t, m.Apply(context.Background(), bill, updateOp))
	assert.Equal(t, "Alicia", bill.MemberByID(memberID).Name)
}

func TestApply_MemberUpdate_MissingTargetIsNoop(t *testing.T) {
	bill := newTestBill()
	ghost := uuid.New()
	newName := "nobody"
	op := &domain.Operation{
		OpType:   domain.OpMemberUpdate,
		TargetID: &ghost,
		Payload:  mustPayload(t, domain.MemberUpdatePayload{Name: &newName}),
	}
	err := New().Apply(context.Background(), bill, op)
	assert.NoError(t, err)
	assert.Empty(t, bill.Members)
}

func TestApply_MemberClaim_RejectsDoubleClaim(t *testing.T) {
	bill := newTestBill()
	memberID := uuid.New()
	userA := uuid.New()
	userB := uuid.New()
	bill.Members = []*domain.Member{{ID: memberID, BillID: bill.ID, Name: "Bob"}}

	m := New()
	claimOp := &domain.Operation{OpType: domain.OpMemberClaim, TargetID: &memberID, ActorID: &userA, CreatedAt: time.Now()}
	require.NoError(t, m.Apply(context.Background(), bill, claimOp))
	assert.True(t, bill.MemberByID(memberID).IsClaimed())

	secondClaim := &domain.Operation{OpType: domain.OpMemberClaim, TargetID: &memberID, ActorID: &userB, CreatedAt: time.Now()}
	err := m.Apply(context.Background(), bill, secondClaim)
	assert.ErrorIs(t, err, domain.ErrMemberAlreadyClaimed)
}

func TestApply_MemberClaim_RejectsSameUserClaimingTwoMembers(t *testing.T) {
	bill := newTestBill()
	m1, m2 := uuid.New(), uuid.New()
	user := uuid.New()
	bill.Members = []*domain.Member{
		{ID: m1, BillID: bill.ID, Name: "Bob"},
		{ID: m2, BillID: bill.ID, Name: "Carl"},
	}
	m := New()
	require.NoError(t, m.Apply(context.Background(), bill, &domain.Operation{
		OpType: domain.OpMemberClaim, TargetID: &m1, ActorID: &user, CreatedAt: time.Now(),
	}))
	err := m.Apply(context.Background(), bill, &domain.Operation{
		OpType: domain.OpMemberClaim, TargetID: &m2, ActorID: &user, CreatedAt: time.Now(),
	})
	assert.ErrorIs(t, err, domain.ErrUserAlreadyClaimedOther)
}

func TestApply_MemberUnclaim_OnlyClaimingUser(t *testing.T) {
	bill := newTestBill()
	memberID := uuid.New()
	owner := uuid.New()
	other := uuid.New()
	bill.Members = []*domain.Member{{ID: memberID, BillID: bill.ID, Name: "Dee"}}
	m := New()
	require.NoError(t, m.Apply(context.Background(), bill, &domain.Operation{
		OpType: domain.OpMemberClaim, TargetID: &memberID, ActorID: &owner, CreatedAt: time.Now(),
	}))

	err := m.Apply(context.Background(), bill, &domain.Operation{
		OpType: domain.OpMemberUnclaim, TargetID: &memberID, ActorID: &other,
	})
	assert.ErrorIs(t, err, domain.ErrUnauthorizedUnclaim)

	require.NoError(t, m.Apply(context.Background(), bill, &domain.Operation{
		OpType: domain.OpMemberUnclaim, TargetID: &memberID, ActorID: &owner,
	}))
	assert.False(t, bill.MemberByID(memberID).IsClaimed())
}

func TestApply_MemberClaim_SavesAndRestoresOriginalName(t *testing.T) {
	bill := newTestBill()
	memberID := uuid.New()
	owner := uuid.New()
	bill.Members = []*domain.Member{{ID: memberID, BillID: bill.ID, Name: "Guest 1"}}
	m := New()

	require.NoError(t, m.Apply(context.Background(), bill, &domain.Operation{
		OpType:    domain.OpMemberClaim,
		TargetID:  &memberID,
		ActorID:   &owner,
		Payload:   mustPayload(t, domain.MemberClaimPayload{Name: "Priya"}),
		CreatedAt: time.Now(),
	}))
	claimed := bill.MemberByID(memberID)
	assert.Equal(t, "Priya", claimed.Name)
	require.NotNil(t, claimed.OriginalName)
	assert.Equal(t, "Guest 1", *claimed.OriginalName)

	require.NoError(t, m.Apply(context.Background(), bill, &domain.Operation{
		OpType:   domain.OpMemberUnclaim,
		TargetID: &memberID,
		ActorID:  &owner,
	}))
	unclaimed := bill.MemberByID(memberID)
	assert.Equal(t, "Guest 1", unclaimed.Name)
	assert.Nil(t, unclaimed.OriginalName)
}

func TestApply_MemberRemove_CascadesSettledTransfers(t *testing.T) {
	bill := newTestBill()
	m1, m2 := uuid.New(), uuid.New()
	bill.Members = []*domain.Member{
		{ID: m1, BillID: bill.ID, Name: "A"},
		{ID: m2, BillID: bill.ID, Name: "B"},
	}
	bill.SettledTransfers = []*domain.SettledTransfer{
		{BillID: bill.ID, FromMemberID: m1, ToMemberID: m2, Amount: decimal.NewFromInt(10)},
	}
	op := &domain.Operation{OpType: domain.OpMemberRemove, TargetID: &m1, CreatedAt: time.Now()}
	require.NoError(t, New().Apply(context.Background(), bill, op))
	assert.Nil(t, bill.MemberByID(m1)) // removed members are not "live"
	assert.Empty(t, bill.SettledTransfers)
}

func TestApply_ExpenseAddUpdateDelete(t *testing.T) {
	bill := newTestBill()
	expenseID := uuid.New()
	addOp := &domain.Operation{
		OpType:   domain.OpExpenseAdd,
		TargetID: &expenseID,
		Payload:  mustPayload(t, domain.ExpenseAddPayload{Name: "Dinner", Amount: decimal.NewFromInt(90)}),
	}
	m := New()
	require.NoError(t, m.Apply(context.Background(), bill, addOp))
	require.Len(t, bill.Expenses, 1)
	assert.True(t, bill.Expenses[0].ServiceFeePercent.Equal(decimal.Zero))

	newAmount := decimal.NewFromInt(100)
	require.NoError(t, m.Apply(context.Background(), bill, &domain.Operation{
		OpType: domain.OpExpenseUpdate, TargetID: &expenseID,
		Payload: mustPayload(t, domain.ExpenseUpdatePayload{Amount: &newAmount}),
	}))
	assert.True(t, bill.ExpenseByID(expenseID).Amount.Equal(newAmount))

	require.NoError(t, m.Apply(context.Background(), bill, &domain.Operation{
		OpType: domain.OpExpenseDelete, TargetID: &expenseID, CreatedAt: time.Now(),
	}))
	assert.Nil(t, bill.ExpenseByID(expenseID))
}

func TestApply_ExpenseSetParticipants_DropsGhostReferences(t *testing.T) {
	bill := newTestBill()
	expenseID := uuid.New()
	liveMember := uuid.New()
	ghostMember := uuid.New()
	bill.Members = []*domain.Member{{ID: liveMember, BillID: bill.ID, Name: "A"}}
	bill.Expenses = []*domain.Expense{{ID: expenseID, BillID: bill.ID, Amount: decimal.NewFromInt(100)}}

	op := &domain.Operation{
		OpType:   domain.OpExpenseSetParticipants,
		TargetID: &expenseID,
		Payload:  mustPayload(t, domain.SetParticipantsPayload{ParticipantIDs: []uuid.UUID{liveMember, ghostMember}}),
	}
	require.NoError(t, New().Apply(context.Background(), bill, op))
	require.Len(t, bill.ExpenseByID(expenseID).Participants, 1)
	assert.Equal(t, liveMember, bill.ExpenseByID(expenseID).Participants[0].MemberID)
}

func TestApply_ItemAddAndParticipants(t *testing.T) {
	bill := newTestBill()
	expenseID := uuid.New()
	itemID := uuid.New()
	member := uuid.New()
	bill.Members = []*domain.Member{{ID: member, BillID: bill.ID, Name: "A"}}
	bill.Expenses = []*domain.Expense{{ID: expenseID, BillID: bill.ID, IsItemized: true}}

	m := New()
	require.NoError(t, m.Apply(context.Background(), bill, &domain.Operation{
		OpType:   domain.OpItemAdd,
		TargetID: &itemID,
		Payload:  mustPayload(t, domain.ItemAddPayload{ExpenseID: expenseID, Name: "Pizza", Amount: decimal.NewFromInt(20)}),
	}))
	item, expense := bill.ItemByID(itemID)
	require.NotNil(t, item)
	require.NotNil(t, expense)

	require.NoError(t, m.Apply(context.Background(), bill, &domain.Operation{
		OpType:   domain.OpItemSetParticipants,
		TargetID: &itemID,
		Payload:  mustPayload(t, domain.SetParticipantsPayload{ParticipantIDs: []uuid.UUID{member}}),
	}))
	item, _ = bill.ItemByID(itemID)
	require.Len(t, item.Participants, 1)
	assert.True(t, item.Participants[0].Amount.Equal(decimal.NewFromInt(20)))
}

func TestApply_SettlementMarkUnmarkClearAll(t *testing.T) {
	bill := newTestBill()
	from, to := uuid.New(), uuid.New()
	m := New()
	require.NoError(t, m.Apply(context.Background(), bill, &domain.Operation{
		OpType:  domain.OpSettlementMark,
		Payload: mustPayload(t, domain.SettlementMarkPayload{FromMemberID: from, ToMemberID: to, Amount: decimal.NewFromInt(25)}),
	}))
	require.Len(t, bill.SettledTransfers, 1)

	require.NoError(t, m.Apply(context.Background(), bill, &domain.Operation{
		OpType:  domain.OpSettlementUnmark,
		Payload: mustPayload(t, domain.SettlementUnmarkPayload{FromMemberID: from, ToMemberID: to}),
	}))
	assert.Empty(t, bill.SettledTransfers)

	require.NoError(t, m.Apply(context.Background(), bill, &domain.Operation{
		OpType:  domain.OpSettlementMark,
		Payload: mustPayload(t, domain.SettlementMarkPayload{FromMemberID: from, ToMemberID: to, Amount: decimal.NewFromInt(25)}),
	}))
	require.NoError(t, m.Apply(context.Background(), bill, &domain.Operation{OpType: domain.OpSettlementClearAll}))
	assert.Empty(t, bill.SettledTransfers)
}

func TestApply_UnknownOpType(t *testing.T) {
	bill := newTestBill()
	err := New().Apply(context.Background(), bill, &domain.Operation{OpType: "BOGUS"})
	assert.Error(t, err)
}
