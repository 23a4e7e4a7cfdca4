// Package settlement computes the liquidation breakdown for a payment received
// against an originated operation: compensatory interest accrued to the payment
// date, moratory interest past the due date, IGV on both, deltas against the
// amounts billed at origination, and the six-case classification of the result.
// The back-door engine lives in backdoor.go.
package settlement

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lromero/factorops/pkg/fincalc"
	"github.com/lromero/factorops/pkg/models"
)

var (
	// DefaultMoratoryRate is the monthly late-payment rate applied when the
	// operation does not carry its own (3% per month).
	DefaultMoratoryRate = decimal.NewFromFloat(0.03)

	// DefaultBackdoorThreshold is the balance ceiling under which the back
	// door may fire.
	DefaultBackdoorThreshold = decimal.NewFromInt(100)

	// DefaultTransactionCost is the average cost of pursuing a balance; a
	// balance above it is worth collecting even when below the threshold.
	DefaultTransactionCost = decimal.NewFromInt(25)
)

var (
	ErrPaymentBeforeDisbursement = errors.New("payment date precedes disbursement date")
	ErrNonPositiveAmount         = errors.New("amount received must be positive")
)

// Config carries the tunable constants of the calculator. Zero values fall
// back to the package defaults.
type Config struct {
	IGVRate           decimal.Decimal
	MoratoryRate      decimal.Decimal
	BackdoorThreshold decimal.Decimal
	TransactionCost   decimal.Decimal
}

// Calculator computes settlements. It is stateless per call; the only shared
// state is the injected audit sink the back-door engine reports to.
type Calculator struct {
	igvRate           decimal.Decimal
	moratoryRate      decimal.Decimal
	backdoorThreshold decimal.Decimal
	transactionCost   decimal.Decimal
	audit             AuditSink
}

// NewCalculator builds a Calculator with the given config and audit sink. A nil
// sink gets an in-memory audit log.
func NewCalculator(cfg Config, audit AuditSink) *Calculator {
	if cfg.IGVRate.IsZero() {
		cfg.IGVRate = fincalc.DefaultIGVRate
	}
	if cfg.MoratoryRate.IsZero() {
		cfg.MoratoryRate = DefaultMoratoryRate
	}
	if cfg.BackdoorThreshold.IsZero() {
		cfg.BackdoorThreshold = DefaultBackdoorThreshold
	}
	if cfg.TransactionCost.IsZero() {
		cfg.TransactionCost = DefaultTransactionCost
	}
	if audit == nil {
		audit = NewMemoryAuditLog()
	}
	return &Calculator{
		igvRate:           cfg.IGVRate,
		moratoryRate:      cfg.MoratoryRate,
		backdoorThreshold: cfg.BackdoorThreshold,
		transactionCost:   cfg.TransactionCost,
		audit:             audit,
	}
}

// Settle computes the settlement breakdown for a payment, without the
// back-door reduction pass.
func (c *Calculator) Settle(op *models.Operation, paymentDate time.Time, amountReceived decimal.Decimal) (*models.SettlementEvent, error) {
	if amountReceived.LessThanOrEqual(decimal.Zero) {
		return nil, ErrNonPositiveAmount
	}
	elapsedDays := fincalc.DayCount(op.DisbursementDate, paymentDate)
	if elapsedDays < 0 {
		return nil, ErrPaymentBeforeDisbursement
	}

	capital := op.LiveCapital()

	accruedInterest, err := fincalc.CompoundInterest(capital, op.MonthlyRate, elapsedDays)
	if err != nil {
		return nil, err
	}
	accruedIGV := fincalc.ApplyIGV(accruedInterest, c.igvRate)

	moratoryDays := 0
	moratoryInterest := decimal.Zero
	moratoryIGV := decimal.Zero
	if fincalc.DayCount(op.DueDate, paymentDate) > 0 {
		moratoryDays = fincalc.DayCount(op.DueDate, paymentDate)
		moratoryRate := op.MonthlyMoratoryRate
		if moratoryRate.IsZero() {
			moratoryRate = c.moratoryRate
		}
		moratoryInterest, err = fincalc.CompoundInterest(capital, moratoryRate, moratoryDays)
		if err != nil {
			return nil, err
		}
		moratoryIGV = fincalc.ApplyIGV(moratoryInterest, c.igvRate)
	}

	// Deltas against origination billing. Delta capital is against the
	// operation's capital, never the disbursed amount.
	deltaInterest := accruedInterest.Sub(op.OriginalInterest)
	deltaIGV := accruedIGV.Sub(op.OriginalIGV)
	deltaCapital := capital.Sub(amountReceived)

	globalBalance := deltaInterest.Add(deltaIGV).
		Add(moratoryInterest).Add(moratoryIGV).
		Add(deltaCapital)

	label := Classify(deltaInterest, deltaCapital, globalBalance)

	status := models.StatusParcial
	if globalBalance.LessThanOrEqual(decimal.Zero) {
		status = models.StatusLiquidado
	}

	return &models.SettlementEvent{
		ID:                uuid.New(),
		OperationID:       op.ID,
		PaymentDate:       paymentDate,
		AmountReceived:    amountReceived,
		CapitalApplied:    capital,
		ElapsedDays:       elapsedDays,
		MoratoryDays:      moratoryDays,
		AccruedInterest:   accruedInterest,
		AccruedIGV:        accruedIGV,
		MoratoryInterest:  moratoryInterest,
		MoratoryIGV:       moratoryIGV,
		DeltaInterest:     deltaInterest,
		DeltaIGV:          deltaIGV,
		DeltaCapital:      deltaCapital,
		GlobalBalance:     globalBalance,
		Case:              label,
		Settled:           label.Settled(),
		RecommendedAction: label.RecommendedAction(),
		Status:            status,
		CreatedAt:         time.Now(),
	}, nil
}

// SettleWithBackDoor chains Settle with the back-door reduction pass.
func (c *Calculator) SettleWithBackDoor(op *models.Operation, paymentDate time.Time, amountReceived decimal.Decimal) (*models.SettlementEvent, error) {
	ev, err := c.Settle(op, paymentDate, amountReceived)
	if err != nil {
		return nil, err
	}
	return c.ApplyBackDoor(ev), nil
}

// Classify maps the sign combination of delta interest, delta capital and
// global balance to one of the six contracted cases. Anything outside the
// table, including exact zeros, is unclassified.
func Classify(deltaInterest, deltaCapital, globalBalance decimal.Decimal) models.CaseLabel {
	neg := func(d decimal.Decimal) bool { return d.IsNegative() }
	pos := func(d decimal.Decimal) bool { return d.IsPositive() }

	switch {
	case neg(deltaInterest) && neg(deltaCapital) && neg(globalBalance):
		return models.Case1
	case neg(deltaInterest) && pos(deltaCapital) && pos(globalBalance):
		return models.Case2
	case pos(deltaInterest) && pos(deltaCapital) && pos(globalBalance):
		return models.Case3
	case pos(deltaInterest) && neg(deltaCapital) && pos(globalBalance):
		return models.Case4
	case pos(deltaInterest) && neg(deltaCapital) && neg(globalBalance):
		return models.Case5
	case neg(deltaInterest) && pos(deltaCapital) && neg(globalBalance):
		return models.Case6
	default:
		return models.CaseUnclassified
	}
}
