package settlement

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapsplit/sync-core/internal/domain"
)

func TestCompute_ThreeWayTrip(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	bill := &domain.Bill{
		ID: uuid.New(),
		Members: []*domain.Member{
			{ID: a, Name: "A"},
			{ID: b, Name: "B"},
			{ID: c, Name: "C"},
		},
		Expenses: []*domain.Expense{
			{
				ID:             uuid.New(),
				Amount:         decimal.NewFromInt(900),
				PaidByMemberID: &a,
				Participants: []*domain.ExpenseParticipant{
					{MemberID: a, Amount: decimal.NewFromInt(450)},
					{MemberID: b, Amount: decimal.NewFromInt(450)},
				},
			},
			{
				ID:             uuid.New(),
				Amount:         decimal.NewFromInt(300),
				PaidByMemberID: &b,
				Participants: []*domain.ExpenseParticipant{
					{MemberID: a, Amount: decimal.NewFromInt(100)},
					{MemberID: b, Amount: decimal.NewFromInt(100)},
					{MemberID: c, Amount: decimal.NewFromInt(100)},
				},
			},
		},
	}

	result := Compute(bill)
	assert.True(t, result.Balances[a].Equal(decimal.NewFromInt(350)), "A balance: %s", result.Balances[a])
	assert.True(t, result.Balances[b].Equal(decimal.NewFromInt(-250)), "B balance: %s", result.Balances[b])
	assert.True(t, result.Balances[c].Equal(decimal.NewFromInt(-100)), "C balance: %s", result.Balances[c])

	require.Len(t, result.Transfers, 2)
	byDebtor := map[uuid.UUID]Transfer{}
	for _, tr := range result.Transfers {
		byDebtor[tr.From] = tr
	}
	bTransfer, ok := byDebtor[b]
	require.True(t, ok)
	assert.Equal(t, a, bTransfer.To)
	assert.True(t, bTransfer.Amount.Equal(decimal.NewFromInt(250)))

	cTransfer, ok := byDebtor[c]
	require.True(t, ok)
	assert.Equal(t, a, cTransfer.To)
	assert.True(t, cTransfer.Amount.Equal(decimal.NewFromInt(100)))
}

func TestMinimalTransfers_AllSettledIsEmpty(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	transfers := MinimalTransfers(map[uuid.UUID]decimal.Decimal{a: decimal.Zero, b: decimal.Zero})
	assert.Empty(t, transfers)
}

func TestMinimalTransfers_Deterministic(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	balances := map[uuid.UUID]decimal.Decimal{
		a: decimal.NewFromInt(30),
		b: decimal.NewFromInt(-10),
		c: decimal.NewFromInt(-20),
	}
	first := MinimalTransfers(balances)
	second := MinimalTransfers(balances)
	assert.Equal(t, first, second)

	sum := decimal.Zero
	for _, tr := range first {
		sum = sum.Add(tr.Amount)
	}
	assert.True(t, sum.Equal(decimal.NewFromInt(30)))
}

func TestItemizedExpense_CreditsItemPayer(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	bill := &domain.Bill{
		Members: []*domain.Member{{ID: a}, {ID: b}},
		Expenses: []*domain.Expense{
			{
				IsItemized: true,
				Items: []*domain.ExpenseItem{
					{
						Amount:         decimal.NewFromInt(20),
						PaidByMemberID: &a,
						Participants: []*domain.ExpenseItemParticipant{
							{MemberID: a, Amount: decimal.NewFromInt(10)},
							{MemberID: b, Amount: decimal.NewFromInt(10)},
						},
					},
				},
			},
		},
	}
	result := Compute(bill)
	assert.True(t, result.Balances[a].Equal(decimal.NewFromInt(10)))
	assert.True(t, result.Balances[b].Equal(decimal.NewFromInt(-10)))
}

func TestIsSettled_And_ToggleSettled(t *testing.T) {
	from, to := uuid.New(), uuid.New()
	var transfers []*domain.SettledTransfer
	assert.False(t, IsSettled(transfers, from, to))

	toggled := ToggleSettled(transfers, from, to, decimal.NewFromInt(50))
	assert.Equal(t, domain.OpSettlementMark, toggled.OpType)
	require.NotNil(t, toggled.Mark)

	transfers = append(transfers, &domain.SettledTransfer{FromMemberID: from, ToMemberID: to, Amount: decimal.NewFromInt(50)})
	assert.True(t, IsSettled(transfers, from, to))

	toggled = ToggleSettled(transfers, from, to, decimal.NewFromInt(50))
	assert.Equal(t, domain.OpSettlementUnmark, toggled.OpType)
	require.NotNil(t, toggled.Unmark)
}
