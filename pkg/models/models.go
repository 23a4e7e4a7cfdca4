package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OperationStatus string

const (
	StatusVigente           OperationStatus = "VIGENTE"
	StatusParcial           OperationStatus = "PARCIAL"
	StatusLiquidado         OperationStatus = "LIQUIDADO"
	StatusLiquidadoBackDoor OperationStatus = "LIQUIDADO - BACK DOOR"
)

// Operation is an originated factoring advance. It is immutable once settlement
// begins except for CapitalRemaining and Status, which carry the running state
// across repeated partial payments.
type Operation struct {
	ID                  uuid.UUID       `json:"id"`
	ClientKey           string          `json:"client_key"` // Link to external client system
	Capital             decimal.Decimal `json:"capital"`
	MonthlyRate         decimal.Decimal `json:"monthly_rate"`          // Compensatory rate, e.g. 0.02
	MonthlyMoratoryRate decimal.Decimal `json:"monthly_moratory_rate"` // Zero means the calculator default applies
	DisbursementDate    time.Time       `json:"disbursement_date"`
	DueDate             time.Time       `json:"due_date"`
	OriginalInterest    decimal.Decimal `json:"original_interest"` // Compensatory interest billed at origination
	OriginalIGV         decimal.Decimal `json:"original_igv"`      // IGV billed on that interest
	DisbursedAmount     decimal.Decimal `json:"disbursed_amount"`  // Net amount wired to the client
	CapitalRemaining    decimal.Decimal `json:"capital_remaining"` // Capital still to liquidate; zero before first settlement
	Status              OperationStatus `json:"status"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// LiveCapital is the capital a settlement must be computed against: the running
// remainder once partial payments exist, the full capital otherwise.
func (o *Operation) LiveCapital() decimal.Decimal {
	if o.CapitalRemaining.GreaterThan(decimal.Zero) {
		return o.CapitalRemaining
	}
	return o.Capital
}

// CaseLabel is the settlement outcome classification. The six contracted cases
// are a strict sign matrix over delta interest, delta capital and global
// balance; every other combination (including exact zeros) is unclassified and
// goes to manual review.
type CaseLabel int

const (
	CaseUnclassified CaseLabel = iota
	Case1                      // di<0 dc<0 gb<0: settled, credit note and refund
	Case2                      // di<0 dc>0 gb>0: credit note for interest, new schedule
	Case3                      // di>0 dc>0 gb>0: bill additional interest, new schedule
	Case4                      // di>0 dc<0 gb>0: bill interest, evaluate late fees
	Case5                      // di>0 dc<0 gb<0: settled, bill interest, refund capital excess
	Case6                      // di<0 dc>0 gb<0: settled, credit note, refund balance
)

var caseNames = map[CaseLabel]string{
	CaseUnclassified: "SIN CLASIFICAR",
	Case1:            "CASO 1",
	Case2:            "CASO 2",
	Case3:            "CASO 3",
	Case4:            "CASO 4",
	Case5:            "CASO 5",
	Case6:            "CASO 6",
}

var caseActions = map[CaseLabel]string{
	CaseUnclassified: "revision manual",
	Case1:            "emitir nota de credito y devolver al cliente",
	Case2:            "nota de credito por intereses y nuevo cronograma de pago",
	Case3:            "facturar interes adicional y nuevo cronograma de pago",
	Case4:            "facturar interes y evaluar mora",
	Case5:            "facturar interes y devolver exceso de capital",
	Case6:            "nota de credito y devolver saldo negativo",
}

func (c CaseLabel) String() string {
	if s, ok := caseNames[c]; ok {
		return s
	}
	return caseNames[CaseUnclassified]
}

// Settled reports whether the case closes the operation.
func (c CaseLabel) Settled() bool {
	return c == Case1 || c == Case5 || c == Case6
}

// RecommendedAction is the follow-up the business expects for the case.
func (c CaseLabel) RecommendedAction() string {
	if a, ok := caseActions[c]; ok {
		return a
	}
	return caseActions[CaseUnclassified]
}

// ParseCaseLabel maps a stored label back to its enum value. Unknown strings
// fall back to unclassified.
func ParseCaseLabel(s string) CaseLabel {
	for c, name := range caseNames {
		if name == s {
			return c
		}
	}
	return CaseUnclassified
}

func (c CaseLabel) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *CaseLabel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*c = ParseCaseLabel(s)
	return nil
}

type ReductionType string

const (
	ReductionMoratory     ReductionType = "MORATORIO"
	ReductionCompensatory ReductionType = "COMPENSATORIO"
	ReductionCapital      ReductionType = "CAPITAL"
)

// Reduction is one forgiveness step applied by the back-door engine. The list
// on a settlement event is ordered: moratory, then compensatory, then capital.
type Reduction struct {
	Type             ReductionType   `json:"type"`
	Amount           decimal.Decimal `json:"amount"`
	ResultingBalance decimal.Decimal `json:"resulting_balance"`
}

// SettlementEvent is the full breakdown of one payment applied against an
// operation. Events are append-only; a later partial payment creates a new
// event against the updated remaining capital.
type SettlementEvent struct {
	ID                uuid.UUID       `json:"id"`
	OperationID       uuid.UUID       `json:"operation_id"`
	PaymentDate       time.Time       `json:"payment_date"`
	AmountReceived    decimal.Decimal `json:"amount_received"`
	CapitalApplied    decimal.Decimal `json:"capital_applied"` // Capital snapshot the breakdown used
	ElapsedDays       int             `json:"elapsed_days"`
	MoratoryDays      int             `json:"moratory_days"`
	AccruedInterest   decimal.Decimal `json:"accrued_interest"`
	AccruedIGV        decimal.Decimal `json:"accrued_igv"`
	MoratoryInterest  decimal.Decimal `json:"moratory_interest"`
	MoratoryIGV       decimal.Decimal `json:"moratory_igv"`
	DeltaInterest     decimal.Decimal `json:"delta_interest"`
	DeltaIGV          decimal.Decimal `json:"delta_igv"`
	DeltaCapital      decimal.Decimal `json:"delta_capital"`
	GlobalBalance     decimal.Decimal `json:"global_balance"`
	Case              CaseLabel       `json:"case_label"`
	Settled           bool            `json:"settled"`
	RecommendedAction string          `json:"recommended_action"`
	BackdoorApplied   bool            `json:"backdoor_applied"`
	BackdoorThreshold decimal.Decimal `json:"backdoor_threshold"`
	OriginalBalance   decimal.Decimal `json:"original_balance"` // Pre-reduction balance when the back door fired
	Status            OperationStatus `json:"status"`
	Reductions        []Reduction     `json:"reductions,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Rounded returns a presentation copy with every monetary field rounded to two
// decimal places. Internal math stays at full precision; only output is rounded.
func (e *SettlementEvent) Rounded() *SettlementEvent {
	out := *e
	out.AccruedInterest = e.AccruedInterest.Round(2)
	out.AccruedIGV = e.AccruedIGV.Round(2)
	out.MoratoryInterest = e.MoratoryInterest.Round(2)
	out.MoratoryIGV = e.MoratoryIGV.Round(2)
	out.DeltaInterest = e.DeltaInterest.Round(2)
	out.DeltaIGV = e.DeltaIGV.Round(2)
	out.DeltaCapital = e.DeltaCapital.Round(2)
	out.GlobalBalance = e.GlobalBalance.Round(2)
	out.OriginalBalance = e.OriginalBalance.Round(2)
	out.CapitalApplied = e.CapitalApplied.Round(2)
	if len(e.Reductions) > 0 {
		out.Reductions = make([]Reduction, len(e.Reductions))
		for i, r := range e.Reductions {
			out.Reductions[i] = Reduction{
				Type:             r.Type,
				Amount:           r.Amount.Round(2),
				ResultingBalance: r.ResultingBalance.Round(2),
			}
		}
	}
	return &out
}

// AuditRecord is the trace left by one back-door application.
type AuditRecord struct {
	ID              uuid.UUID       `json:"id"`
	OperationID     uuid.UUID       `json:"operation_id"`
	Timestamp       time.Time       `json:"timestamp"`
	OriginalBalance decimal.Decimal `json:"original_balance"`
	FinalBalance    decimal.Decimal `json:"final_balance"`
	Threshold       decimal.Decimal `json:"threshold"`
	TransactionCost decimal.Decimal `json:"transaction_cost"`
	Reductions      []Reduction     `json:"reductions"`
}
