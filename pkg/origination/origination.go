// Package origination computes the initial disbursement breakdown for a batch
// of invoices. The commission method (percentage vs. fixed minimum) is decided
// once for the whole batch, taking whichever total yields more revenue, and is
// then applied uniformly to every item. The reverse mode solves for the capital
// (and hence the advance rate) needed to hit a target disbursement.
package origination

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/lromero/factorops/pkg/fincalc"
)

type FeeMethod string

const (
	FeeMethodPercentage FeeMethod = "PERCENTAGE"
	FeeMethodFixed      FeeMethod = "FIXED"
)

var (
	one = decimal.NewFromInt(1)

	// ErrEmptyBatch is returned when a batch has no items at all.
	ErrEmptyBatch = errors.New("empty batch")
)

// InvoiceInput is one invoice to originate in forward mode.
type InvoiceInput struct {
	InvoiceID        string          `json:"invoice_id"`
	NetAmount        decimal.Decimal `json:"net_amount"`
	AdvanceRate      decimal.Decimal `json:"advance_rate"` // Fraction of the net amount advanced, e.g. 0.9
	MonthlyRate      decimal.Decimal `json:"monthly_rate"`
	TermDays         int             `json:"term_days"`
	MinCommission    decimal.Decimal `json:"fixed_min_commission"`
	PctCommission    decimal.Decimal `json:"pct_commission"`
	TaxRate          decimal.Decimal `json:"tax_rate"` // Zero applies the statutory IGV
	AffiliationFee   decimal.Decimal `json:"affiliation_fee"`
	ApplyAffiliation bool            `json:"apply_affiliation"`
}

// TargetInput is one invoice in reverse mode: the disbursement is given and the
// capital is solved for.
type TargetInput struct {
	InvoiceID          string          `json:"invoice_id"`
	NetAmount          decimal.Decimal `json:"net_amount"`
	TargetDisbursement decimal.Decimal `json:"target_disbursement"`
	MonthlyRate        decimal.Decimal `json:"monthly_rate"`
	TermDays           int             `json:"term_days"`
	MinCommission      decimal.Decimal `json:"fixed_min_commission"`
	PctCommission      decimal.Decimal `json:"pct_commission"`
	TaxRate            decimal.Decimal `json:"tax_rate"`
	AffiliationFee     decimal.Decimal `json:"affiliation_fee"`
	ApplyAffiliation   bool            `json:"apply_affiliation"`
}

// ItemBreakdown is the full origination breakdown for one invoice.
type ItemBreakdown struct {
	InvoiceID       string          `json:"invoice_id"`
	Capital         decimal.Decimal `json:"capital"`
	AdvanceRate     decimal.Decimal `json:"advance_rate"`
	Interest        decimal.Decimal `json:"interest"`
	IGVInterest     decimal.Decimal `json:"igv_interest"`
	Commission      decimal.Decimal `json:"commission"`
	IGVCommission   decimal.Decimal `json:"igv_commission"`
	Affiliation     decimal.Decimal `json:"affiliation"`
	IGVAffiliation  decimal.Decimal `json:"igv_affiliation"`
	DisbursedAmount decimal.Decimal `json:"disbursed_amount"` // Floored to the currency unit
	DisbursedExact  decimal.Decimal `json:"disbursed_exact"`  // Full-precision value before flooring
	SafetyMargin    decimal.Decimal `json:"safety_margin"`    // Net amount not advanced
	TermDays        int             `json:"term_days"`
	Infeasible      bool            `json:"infeasible,omitempty"` // Reverse mode: target unreachable under the fee structure
}

type ItemStatus string

const (
	ItemStatusOK    ItemStatus = "OK"
	ItemStatusError ItemStatus = "ERROR"
)

// ItemOutcome wraps a per-item breakdown or the validation error that excluded
// the item from the batch.
type ItemOutcome struct {
	InvoiceID string         `json:"invoice_id"`
	Status    ItemStatus     `json:"status"`
	Message   string         `json:"message,omitempty"`
	Breakdown *ItemBreakdown `json:"breakdown,omitempty"`
}

// BatchOriginationResult carries the batch-level fee decision and the per-item
// outcomes in input order.
type BatchOriginationResult struct {
	FeeMethod       FeeMethod       `json:"chosen_fee_method"`
	TotalCommission decimal.Decimal `json:"total_commission"`
	Items           []ItemOutcome   `json:"items"`
}

func validateInvoice(in InvoiceInput) error {
	if in.NetAmount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("net amount must be positive, got %s", in.NetAmount)
	}
	if in.AdvanceRate.LessThanOrEqual(decimal.Zero) || in.AdvanceRate.GreaterThan(one) {
		return fmt.Errorf("advance rate must be in (0, 1], got %s", in.AdvanceRate)
	}
	if in.MonthlyRate.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("monthly rate must be positive, got %s", in.MonthlyRate)
	}
	if in.TermDays <= 0 {
		return fmt.Errorf("term days must be positive, got %d", in.TermDays)
	}
	if in.MinCommission.IsNegative() || in.PctCommission.IsNegative() {
		return errors.New("commission values must not be negative")
	}
	return nil
}

func validateTarget(in TargetInput) error {
	if in.NetAmount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("net amount must be positive, got %s", in.NetAmount)
	}
	if in.TargetDisbursement.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("target disbursement must be positive, got %s", in.TargetDisbursement)
	}
	if in.MonthlyRate.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("monthly rate must be positive, got %s", in.MonthlyRate)
	}
	if in.TermDays <= 0 {
		return fmt.Errorf("term days must be positive, got %d", in.TermDays)
	}
	if in.MinCommission.IsNegative() || in.PctCommission.IsNegative() {
		return errors.New("commission values must not be negative")
	}
	return nil
}

// interestFactor is (1 + monthlyRate/30)^termDays - 1, the fraction of capital
// consumed by compensatory interest over the term.
func interestFactor(monthlyRate decimal.Decimal, termDays int) decimal.Decimal {
	f, _ := fincalc.CompoundInterest(one, monthlyRate, termDays)
	return f
}

// ComputeBatchOrigination runs forward origination over a batch. Invalid items
// are excluded from the aggregate fee decision and reported as per-item errors;
// they never abort the batch.
func ComputeBatchOrigination(items []InvoiceInput) (*BatchOriginationResult, error) {
	if len(items) == 0 {
		return nil, ErrEmptyBatch
	}

	outcomes := make([]ItemOutcome, len(items))
	valid := make([]bool, len(items))

	pctTotal := decimal.Zero
	fixedTotal := decimal.Zero
	for i, in := range items {
		if err := validateInvoice(in); err != nil {
			outcomes[i] = ItemOutcome{InvoiceID: in.InvoiceID, Status: ItemStatusError, Message: err.Error()}
			continue
		}
		valid[i] = true
		capital := in.NetAmount.Mul(in.AdvanceRate)
		pctTotal = pctTotal.Add(capital.Mul(in.PctCommission))
		fixedTotal = fixedTotal.Add(in.MinCommission)
	}

	// Whichever commission total generates more revenue wins for the whole
	// batch. Exact equality picks the percentage method.
	method := FeeMethodPercentage
	if fixedTotal.GreaterThan(pctTotal) {
		method = FeeMethodFixed
	}

	totalCommission := decimal.Zero
	for i, in := range items {
		if !valid[i] {
			continue
		}
		capital := in.NetAmount.Mul(in.AdvanceRate)
		bd := breakdownItem(in, capital, method)
		totalCommission = totalCommission.Add(bd.Commission)
		outcomes[i] = ItemOutcome{InvoiceID: in.InvoiceID, Status: ItemStatusOK, Breakdown: bd}
	}

	return &BatchOriginationResult{
		FeeMethod:       method,
		TotalCommission: totalCommission,
		Items:           outcomes,
	}, nil
}

// breakdownItem expands a capital amount into the full fee breakdown under the
// chosen commission method. All math is full precision; only the reported
// disbursed amount is floored to the currency unit.
func breakdownItem(in InvoiceInput, capital decimal.Decimal, method FeeMethod) *ItemBreakdown {
	interest := capital.Mul(interestFactor(in.MonthlyRate, in.TermDays))
	igvInterest := fincalc.ApplyIGV(interest, in.TaxRate)

	var commission decimal.Decimal
	if method == FeeMethodFixed {
		commission = in.MinCommission
	} else {
		commission = capital.Mul(in.PctCommission)
	}
	igvCommission := fincalc.ApplyIGV(commission, in.TaxRate)

	affiliation := decimal.Zero
	igvAffiliation := decimal.Zero
	if in.ApplyAffiliation {
		affiliation = in.AffiliationFee
		igvAffiliation = fincalc.ApplyIGV(affiliation, in.TaxRate)
	}

	disbursed := capital.
		Sub(interest).Sub(igvInterest).
		Sub(commission).Sub(igvCommission).
		Sub(affiliation).Sub(igvAffiliation)

	return &ItemBreakdown{
		InvoiceID:       in.InvoiceID,
		Capital:         capital,
		AdvanceRate:     in.AdvanceRate,
		Interest:        interest,
		IGVInterest:     igvInterest,
		Commission:      commission,
		IGVCommission:   igvCommission,
		Affiliation:     affiliation,
		IGVAffiliation:  igvAffiliation,
		DisbursedAmount: disbursed.Floor(),
		DisbursedExact:  disbursed,
		SafetyMargin:    in.NetAmount.Sub(capital),
		TermDays:        in.TermDays,
	}
}

// FindAdvanceRate solves, per item, for the capital required to land on the
// target disbursement under each commission method, then lets the aggregate
// fee decision choose which capital set is used for the final breakdown.
//
// Inverting the forward formula:
//
//	disb = capital*(1 - (1+igv)*(f + pct)) - (1+igv)*aff              (percentage)
//	disb = capital*(1 - (1+igv)*f) - (1+igv)*(minComm + aff)          (fixed)
//
// where f is the interest factor for the term. A non-positive denominator means
// the fee structure eats the whole capital; the capital is reported as zero and
// the item is flagged infeasible.
func FindAdvanceRate(items []TargetInput) (*BatchOriginationResult, error) {
	if len(items) == 0 {
		return nil, ErrEmptyBatch
	}

	outcomes := make([]ItemOutcome, len(items))
	valid := make([]bool, len(items))
	capPct := make([]decimal.Decimal, len(items))
	capFixed := make([]decimal.Decimal, len(items))
	pctFeasible := make([]bool, len(items))
	fixedFeasible := make([]bool, len(items))

	pctTotal := decimal.Zero
	fixedTotal := decimal.Zero
	for i, in := range items {
		if err := validateTarget(in); err != nil {
			outcomes[i] = ItemOutcome{InvoiceID: in.InvoiceID, Status: ItemStatusError, Message: err.Error()}
			continue
		}
		valid[i] = true

		taxRate := in.TaxRate
		if taxRate.IsZero() {
			taxRate = fincalc.DefaultIGVRate
		}
		taxMul := one.Add(taxRate)
		f := interestFactor(in.MonthlyRate, in.TermDays)

		aff := decimal.Zero
		if in.ApplyAffiliation {
			aff = in.AffiliationFee
		}

		capPct[i], pctFeasible[i] = solveCapital(
			in.TargetDisbursement.Add(taxMul.Mul(aff)),
			one.Sub(taxMul.Mul(f.Add(in.PctCommission))),
		)
		capFixed[i], fixedFeasible[i] = solveCapital(
			in.TargetDisbursement.Add(taxMul.Mul(in.MinCommission.Add(aff))),
			one.Sub(taxMul.Mul(f)),
		)

		pctTotal = pctTotal.Add(capPct[i].Mul(in.PctCommission))
		fixedTotal = fixedTotal.Add(in.MinCommission)
	}

	method := FeeMethodPercentage
	if fixedTotal.GreaterThan(pctTotal) {
		method = FeeMethodFixed
	}

	totalCommission := decimal.Zero
	for i, in := range items {
		if !valid[i] {
			continue
		}
		capital := capPct[i]
		feasible := pctFeasible[i]
		if method == FeeMethodFixed {
			capital = capFixed[i]
			feasible = fixedFeasible[i]
		}

		fwd := InvoiceInput{
			InvoiceID:        in.InvoiceID,
			NetAmount:        in.NetAmount,
			AdvanceRate:      capital.Div(in.NetAmount),
			MonthlyRate:      in.MonthlyRate,
			TermDays:         in.TermDays,
			MinCommission:    in.MinCommission,
			PctCommission:    in.PctCommission,
			TaxRate:          in.TaxRate,
			AffiliationFee:   in.AffiliationFee,
			ApplyAffiliation: in.ApplyAffiliation,
		}
		bd := breakdownItem(fwd, capital, method)
		bd.Infeasible = !feasible
		totalCommission = totalCommission.Add(bd.Commission)
		outcomes[i] = ItemOutcome{InvoiceID: in.InvoiceID, Status: ItemStatusOK, Breakdown: bd}
	}

	return &BatchOriginationResult{
		FeeMethod:       method,
		TotalCommission: totalCommission,
		Items:           outcomes,
	}, nil
}

// solveCapital divides numerator by denominator, substituting zero when the
// denominator is not positive. The boolean reports feasibility.
func solveCapital(numerator, denominator decimal.Decimal) (decimal.Decimal, bool) {
	if denominator.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, false
	}
	return numerator.Div(denominator), true
}
