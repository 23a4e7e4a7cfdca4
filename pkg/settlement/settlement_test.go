package settlement

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lromero/factorops/pkg/models"
)

func newTestCalculator() *Calculator {
	return NewCalculator(Config{}, nil)
}

func testOperation() *models.Operation {
	return &models.Operation{
		ID:               uuid.New(),
		ClientKey:        "cli-001",
		Capital:          decimal.NewFromFloat(17822.01),
		MonthlyRate:      decimal.NewFromFloat(0.02),
		DisbursementDate: time.Date(2024, 12, 24, 0, 0, 0, 0, time.UTC),
		DueDate:          time.Date(2025, 3, 24, 0, 0, 0, 0, time.UTC),
		OriginalInterest: decimal.NewFromFloat(1202.85),
		OriginalIGV:      decimal.NewFromFloat(216.51),
		Status:           models.StatusVigente,
	}
}

func tolerance(t *testing.T, got, want decimal.Decimal, tol float64, msg string) {
	t.Helper()
	assert.True(t, got.Sub(want).Abs().LessThan(decimal.NewFromFloat(tol)),
		"%s: expected ~%s, got %s", msg, want, got)
}

func TestSettle_ValidationFixture(t *testing.T) {
	// Payment two months after disbursement (62 days, before the due date) of
	// 17700.00 against a capital of 17822.01 at 2% monthly. The interest
	// billed at origination covered the full 90-day term, so both interest
	// deltas are negative and the global balance lands around -410.19.
	calc := newTestCalculator()
	op := testOperation()

	ev, err := calc.Settle(op, time.Date(2025, 2, 24, 0, 0, 0, 0, time.UTC), decimal.NewFromFloat(17700.00))
	require.NoError(t, err)

	assert.Equal(t, 62, ev.ElapsedDays)
	assert.Equal(t, 0, ev.MoratoryDays)
	assert.True(t, ev.MoratoryInterest.IsZero())
	assert.True(t, ev.MoratoryIGV.IsZero())

	tolerance(t, ev.AccruedInterest, decimal.NewFromFloat(751.82), 0.05, "accrued interest")
	tolerance(t, ev.AccruedIGV, decimal.NewFromFloat(135.33), 0.05, "accrued igv")
	tolerance(t, ev.DeltaCapital, decimal.NewFromFloat(122.01), 0.0001, "capital delta")
	tolerance(t, ev.GlobalBalance, decimal.NewFromFloat(-410.19), 0.05, "global balance")

	// di<0, dc>0, gb<0 -> case 6, settled with a refund.
	assert.Equal(t, models.Case6, ev.Case)
	assert.True(t, ev.Settled)
	assert.Equal(t, models.StatusLiquidado, ev.Status)
}

func TestSettle_PaymentBeforeDisbursement(t *testing.T) {
	calc := newTestCalculator()
	op := testOperation()

	_, err := calc.Settle(op, op.DisbursementDate.AddDate(0, 0, -1), decimal.NewFromInt(1000))
	assert.ErrorIs(t, err, ErrPaymentBeforeDisbursement)
}

func TestSettle_NonPositiveAmount(t *testing.T) {
	calc := newTestCalculator()
	op := testOperation()

	_, err := calc.Settle(op, op.DueDate, decimal.Zero)
	assert.ErrorIs(t, err, ErrNonPositiveAmount)
}

func TestSettle_LatePaymentAccruesMoratory(t *testing.T) {
	calc := newTestCalculator()
	op := testOperation()

	// Ten days past due: moratory interest at the default 3% monthly rate.
	paymentDate := op.DueDate.AddDate(0, 0, 10)
	ev, err := calc.Settle(op, paymentDate, decimal.NewFromInt(17000))
	require.NoError(t, err)

	assert.Equal(t, 10, ev.MoratoryDays)
	assert.True(t, ev.MoratoryInterest.IsPositive())
	tolerance(t, ev.MoratoryIGV, ev.MoratoryInterest.Mul(decimal.NewFromFloat(0.18)), 0.0001, "moratory igv")

	// Roughly capital * 0.03/30 * 10 with daily compounding on top.
	approx := op.Capital.Mul(decimal.NewFromFloat(0.01))
	tolerance(t, ev.MoratoryInterest, approx, 1.0, "moratory magnitude")
}

func TestSettle_PaymentOnDueDateHasNoMoratory(t *testing.T) {
	calc := newTestCalculator()
	op := testOperation()

	ev, err := calc.Settle(op, op.DueDate, decimal.NewFromInt(17822))
	require.NoError(t, err)
	assert.Equal(t, 0, ev.MoratoryDays)
	assert.True(t, ev.MoratoryInterest.IsZero())
}

func TestSettle_UsesRemainingCapital(t *testing.T) {
	calc := newTestCalculator()
	op := testOperation()
	op.CapitalRemaining = decimal.NewFromInt(5000)

	ev, err := calc.Settle(op, op.DueDate, decimal.NewFromInt(4000))
	require.NoError(t, err)

	assert.True(t, ev.CapitalApplied.Equal(decimal.NewFromInt(5000)))
	assert.True(t, ev.DeltaCapital.Equal(decimal.NewFromInt(1000)))
}

func TestClassify(t *testing.T) {
	n10 := decimal.NewFromInt(-10)
	p10 := decimal.NewFromInt(10)

	tests := []struct {
		name       string
		di, dc, gb decimal.Decimal
		want       models.CaseLabel
		settled    bool
	}{
		{"case 1: all negative", n10, decimal.NewFromInt(-50), decimal.NewFromInt(-60), models.Case1, true},
		{"case 2", n10, p10, p10, models.Case2, false},
		{"case 3: all positive", p10, p10, p10, models.Case3, false},
		{"case 4", p10, n10, p10, models.Case4, false},
		{"case 5", p10, n10, n10, models.Case5, true},
		{"case 6", n10, p10, n10, models.Case6, true},
		{"zero interest delta", decimal.Zero, p10, p10, models.CaseUnclassified, false},
		{"zero capital delta", p10, decimal.Zero, p10, models.CaseUnclassified, false},
		{"zero balance", n10, p10, decimal.Zero, models.CaseUnclassified, false},
		{"all zero", decimal.Zero, decimal.Zero, decimal.Zero, models.CaseUnclassified, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.di, tc.dc, tc.gb)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.settled, got.Settled())
			assert.NotEmpty(t, got.RecommendedAction())
		})
	}
}
