// Package projection produces a day-by-day compounding forecast for a capital
// balance: each day accrues compensatory and moratory interest plus IGV on
// both, and all four amounts capitalize into the next day's balance. It is a
// pure forecast; no persisted state is touched.
package projection

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lromero/factorops/pkg/fincalc"
)

var ErrNonPositiveCapital = errors.New("initial capital must be positive")

// Input describes one projection run.
type Input struct {
	InitialCapital      decimal.Decimal `json:"initial_capital"`
	StartDate           time.Time       `json:"start_date"`
	MonthlyRate         decimal.Decimal `json:"monthly_comp_rate"`
	MonthlyMoratoryRate decimal.Decimal `json:"monthly_moratory_rate"`
	HorizonDays         int             `json:"horizon_days"`
}

// DayRecord is one row of the forecast table.
type DayRecord struct {
	Day              int             `json:"day"`
	Date             time.Time       `json:"date"`
	CapitalBefore    decimal.Decimal `json:"capital_before"`
	Interest         decimal.Decimal `json:"interest"`
	IGVInterest      decimal.Decimal `json:"igv_interest"`
	MoratoryInterest decimal.Decimal `json:"moratory_interest"`
	IGVMoratory      decimal.Decimal `json:"igv_moratory"`
	CapitalAfter     decimal.Decimal `json:"capital_after"`
}

// Projector walks the forecast one day at a time and can be rewound to the
// start, so the same projection can be replayed without recomputing inputs.
type Projector struct {
	in      Input
	igvRate decimal.Decimal
	day     int
	capital decimal.Decimal
}

func NewProjector(in Input) (*Projector, error) {
	if in.InitialCapital.LessThanOrEqual(decimal.Zero) {
		return nil, ErrNonPositiveCapital
	}
	p := &Projector{in: in, igvRate: fincalc.DefaultIGVRate}
	p.Reset()
	return p, nil
}

// Reset rewinds the projector to day zero.
func (p *Projector) Reset() {
	p.day = 0
	p.capital = p.in.InitialCapital
}

// Next produces the record for the next day, or false once the horizon is
// exhausted.
func (p *Projector) Next() (DayRecord, bool) {
	if p.day >= p.in.HorizonDays {
		return DayRecord{}, false
	}

	interest := p.capital.Mul(fincalc.DailyRate(p.in.MonthlyRate))
	igvInterest := fincalc.ApplyIGV(interest, p.igvRate)
	moratory := p.capital.Mul(fincalc.DailyRate(p.in.MonthlyMoratoryRate))
	igvMoratory := fincalc.ApplyIGV(moratory, p.igvRate)

	after := p.capital.Add(interest).Add(igvInterest).Add(moratory).Add(igvMoratory)

	rec := DayRecord{
		Day:              p.day + 1,
		Date:             p.in.StartDate.AddDate(0, 0, p.day),
		CapitalBefore:    p.capital,
		Interest:         interest,
		IGVInterest:      igvInterest,
		MoratoryInterest: moratory,
		IGVMoratory:      igvMoratory,
		CapitalAfter:     after,
	}

	p.capital = after
	p.day++
	return rec, true
}

// Project materializes the whole forecast, ordered by date ascending.
func Project(in Input) ([]DayRecord, error) {
	p, err := NewProjector(in)
	if err != nil {
		return nil, err
	}
	records := make([]DayRecord, 0, in.HorizonDays)
	for {
		rec, ok := p.Next()
		if !ok {
			break
		}
		records = append(records, rec)
	}
	return records, nil
}
