package settlement

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lromero/factorops/pkg/fincalc"
	"github.com/lromero/factorops/pkg/models"
)

// AuditSink receives one record per back-door application. Implementations
// must be safe for concurrent use; the calculator calls Record from whatever
// goroutine runs the settlement.
type AuditSink interface {
	Record(rec models.AuditRecord)
}

// ApplyBackDoor runs the small-balance forgiveness pass over a settlement
// result and returns the same event, augmented.
//
// It fires only when the balance is positive, at or under the configured
// threshold, AND at or under the average transaction cost — a balance above the
// transaction cost is worth pursuing even when it sits below the threshold.
//
// Forgiveness order is fixed: moratory interest, then the compensatory interest
// delta, then the capital delta. Each step reduces the running balance by
// min(remaining, bucket) and records a reduction entry; the bucket's IGV field
// is recomputed proportionally from the reduced bucket. The pass stops when the
// balance reaches zero or all three buckets are exhausted; whatever remains
// overwrites the global balance.
func (c *Calculator) ApplyBackDoor(ev *models.SettlementEvent) *models.SettlementEvent {
	gb := ev.GlobalBalance
	if !gb.IsPositive() || gb.GreaterThan(c.backdoorThreshold) || gb.GreaterThan(c.transactionCost) {
		return ev
	}

	remaining := gb
	var reductions []models.Reduction

	// 1. Moratory interest.
	if cut := minPositive(remaining, ev.MoratoryInterest); cut.IsPositive() {
		ev.MoratoryInterest = ev.MoratoryInterest.Sub(cut)
		ev.MoratoryIGV = fincalc.ApplyIGV(ev.MoratoryInterest, c.igvRate)
		remaining = remaining.Sub(cut)
		reductions = append(reductions, models.Reduction{
			Type: models.ReductionMoratory, Amount: cut, ResultingBalance: remaining,
		})
	}

	// 2. Compensatory interest delta.
	if cut := minPositive(remaining, ev.DeltaInterest); cut.IsPositive() {
		ev.DeltaInterest = ev.DeltaInterest.Sub(cut)
		ev.DeltaIGV = fincalc.ApplyIGV(ev.DeltaInterest, c.igvRate)
		remaining = remaining.Sub(cut)
		reductions = append(reductions, models.Reduction{
			Type: models.ReductionCompensatory, Amount: cut, ResultingBalance: remaining,
		})
	}

	// 3. Capital delta.
	if cut := minPositive(remaining, ev.DeltaCapital); cut.IsPositive() {
		ev.DeltaCapital = ev.DeltaCapital.Sub(cut)
		remaining = remaining.Sub(cut)
		reductions = append(reductions, models.Reduction{
			Type: models.ReductionCapital, Amount: cut, ResultingBalance: remaining,
		})
	}

	ev.OriginalBalance = gb
	ev.GlobalBalance = remaining
	ev.BackdoorApplied = true
	ev.BackdoorThreshold = c.backdoorThreshold
	ev.Reductions = reductions
	ev.Status = models.StatusLiquidadoBackDoor
	ev.Settled = true

	c.audit.Record(models.AuditRecord{
		ID:              uuid.New(),
		OperationID:     ev.OperationID,
		Timestamp:       time.Now(),
		OriginalBalance: gb,
		FinalBalance:    remaining,
		Threshold:       c.backdoorThreshold,
		TransactionCost: c.transactionCost,
		Reductions:      reductions,
	})

	return ev
}

// minPositive returns min(remaining, bucket) clamped at zero; negative buckets
// contribute nothing.
func minPositive(remaining, bucket decimal.Decimal) decimal.Decimal {
	if !remaining.IsPositive() || !bucket.IsPositive() {
		return decimal.Zero
	}
	if bucket.LessThan(remaining) {
		return bucket
	}
	return remaining
}

// MemoryAuditLog is the default AuditSink: a mutex-guarded, process-lifetime,
// append-only log that also answers aggregate metrics.
type MemoryAuditLog struct {
	mu      sync.Mutex
	records []models.AuditRecord
}

func NewMemoryAuditLog() *MemoryAuditLog {
	return &MemoryAuditLog{}
}

func (l *MemoryAuditLog) Record(rec models.AuditRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
}

// Records returns a copy of the accumulated audit trail.
func (l *MemoryAuditLog) Records() []models.AuditRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.AuditRecord, len(l.records))
	copy(out, l.records)
	return out
}

// AuditMetrics aggregates the back-door history: how often it fired, how much
// was written off, and the pursuit cost avoided net of the write-offs.
type AuditMetrics struct {
	Applications     int             `json:"applications"`
	TotalForgiven    decimal.Decimal `json:"total_forgiven"`
	AverageForgiven  decimal.Decimal `json:"average_forgiven"`
	EstimatedSavings decimal.Decimal `json:"estimated_savings"`
}

func (l *MemoryAuditLog) Metrics() AuditMetrics {
	l.mu.Lock()
	defer l.mu.Unlock()

	m := AuditMetrics{
		TotalForgiven:    decimal.Zero,
		AverageForgiven:  decimal.Zero,
		EstimatedSavings: decimal.Zero,
	}
	for _, rec := range l.records {
		forgiven := rec.OriginalBalance.Sub(rec.FinalBalance)
		m.Applications++
		m.TotalForgiven = m.TotalForgiven.Add(forgiven)
		m.EstimatedSavings = m.EstimatedSavings.Add(rec.TransactionCost.Sub(forgiven))
	}
	if m.Applications > 0 {
		m.AverageForgiven = m.TotalForgiven.Div(decimal.NewFromInt(int64(m.Applications)))
	}
	return m
}
