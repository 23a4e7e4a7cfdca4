package batch

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lromero/factorops/pkg/models"
	"github.com/lromero/factorops/pkg/projection"
	"github.com/lromero/factorops/pkg/settlement"
)

func testOperation() *models.Operation {
	return &models.Operation{
		ID:               uuid.New(),
		ClientKey:        "cli-001",
		Capital:          decimal.NewFromInt(10000),
		MonthlyRate:      decimal.NewFromFloat(0.02),
		DisbursementDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		DueDate:          time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		OriginalInterest: decimal.NewFromInt(400),
		OriginalIGV:      decimal.NewFromInt(72),
		Status:           models.StatusVigente,
	}
}

func TestSettleAll_IsolatesBadItem(t *testing.T) {
	calc := settlement.NewCalculator(settlement.Config{}, nil)
	o := NewOrchestrator(calc)

	good1 := testOperation()
	good2 := testOperation()
	bad := testOperation()

	items := []SettlementItem{
		{Operation: good1, PaymentDate: good1.DueDate, AmountReceived: decimal.NewFromInt(9000)},
		// Payment before disbursement: a validation error, not a batch abort.
		{Operation: bad, PaymentDate: bad.DisbursementDate.AddDate(0, 0, -5), AmountReceived: decimal.NewFromInt(9000)},
		{Operation: good2, PaymentDate: good2.DueDate, AmountReceived: decimal.NewFromInt(9000)},
	}

	results := o.SettleAll(items)
	require.Len(t, results, 3)

	assert.Equal(t, ItemStatusOK, results[0].Status)
	assert.NotNil(t, results[0].Event)

	assert.Equal(t, ItemStatusError, results[1].Status)
	assert.Equal(t, bad.ID.String(), results[1].ItemID)
	assert.Contains(t, results[1].Message, "payment date precedes disbursement date")
	assert.Nil(t, results[1].Event)

	assert.Equal(t, ItemStatusOK, results[2].Status)
	assert.NotNil(t, results[2].Event)
}

func TestSettleAll_MissingOperation(t *testing.T) {
	calc := settlement.NewCalculator(settlement.Config{}, nil)
	o := NewOrchestrator(calc)

	results := o.SettleAll([]SettlementItem{{PaymentDate: time.Now(), AmountReceived: decimal.NewFromInt(100)}})
	require.Len(t, results, 1)
	assert.Equal(t, ItemStatusError, results[0].Status)
	assert.Equal(t, "missing operation", results[0].Message)
}

func TestSettleAll_ParallelMatchesSequential(t *testing.T) {
	calc := settlement.NewCalculator(settlement.Config{}, nil)

	var items []SettlementItem
	for i := 0; i < 20; i++ {
		op := testOperation()
		items = append(items, SettlementItem{
			Operation:      op,
			PaymentDate:    op.DueDate,
			AmountReceived: decimal.NewFromInt(int64(8000 + i)),
			UseBackDoor:    true,
		})
	}

	sequential := NewOrchestrator(calc).SettleAll(items)
	parallel := NewOrchestrator(calc).WithWorkers(4).SettleAll(items)

	require.Len(t, parallel, len(sequential))
	for i := range sequential {
		assert.Equal(t, sequential[i].Status, parallel[i].Status)
		assert.Equal(t, sequential[i].ItemID, parallel[i].ItemID)
		require.NotNil(t, parallel[i].Event)
		assert.True(t, sequential[i].Event.GlobalBalance.Equal(parallel[i].Event.GlobalBalance),
			"item %d: balances diverged between sequential and parallel runs", i)
	}
}

func TestProjectAll_IsolatesBadItem(t *testing.T) {
	calc := settlement.NewCalculator(settlement.Config{}, nil)
	o := NewOrchestrator(calc)

	good := projection.Input{
		InitialCapital: decimal.NewFromInt(1000),
		StartDate:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		MonthlyRate:    decimal.NewFromFloat(0.02),
		HorizonDays:    5,
	}
	bad := good
	bad.InitialCapital = decimal.Zero

	results := o.ProjectAll([]projection.Input{good, bad})
	require.Len(t, results, 2)

	assert.Equal(t, ItemStatusOK, results[0].Status)
	assert.Len(t, results[0].Days, 5)

	assert.Equal(t, ItemStatusError, results[1].Status)
	assert.Contains(t, results[1].Message, "initial capital must be positive")
}
