// Package batch sequences calculator runs over lists of work items, isolating
// per-item failures so one bad record never aborts the batch. Items are
// independent, so runs may be spread over a bounded worker pool; the audit
// sink inside the settlement calculator is the only shared state and carries
// its own lock.
package batch

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lromero/factorops/pkg/models"
	"github.com/lromero/factorops/pkg/projection"
	"github.com/lromero/factorops/pkg/settlement"
)

type ItemStatus string

const (
	ItemStatusOK    ItemStatus = "OK"
	ItemStatusError ItemStatus = "ERROR"
)

// SettlementItem is one payment event to liquidate.
type SettlementItem struct {
	Operation      *models.Operation
	PaymentDate    time.Time
	AmountReceived decimal.Decimal
	UseBackDoor    bool
}

// SettlementOutcome is the per-item result: a settlement event or an error
// descriptor.
type SettlementOutcome struct {
	ItemID  string                  `json:"item_id"`
	Status  ItemStatus              `json:"status"`
	Message string                  `json:"message,omitempty"`
	Event   *models.SettlementEvent `json:"event,omitempty"`
}

// ProjectionOutcome is the per-item result of a projection run.
type ProjectionOutcome struct {
	Status  ItemStatus             `json:"status"`
	Message string                 `json:"message,omitempty"`
	Days    []projection.DayRecord `json:"days,omitempty"`
}

// Orchestrator fans calculator calls over batches. Workers <= 1 runs items
// sequentially in input order; results keep input order either way.
type Orchestrator struct {
	calc    *settlement.Calculator
	workers int
}

func NewOrchestrator(calc *settlement.Calculator) *Orchestrator {
	return &Orchestrator{calc: calc, workers: 1}
}

// WithWorkers sets the parallelism for subsequent runs.
func (o *Orchestrator) WithWorkers(n int) *Orchestrator {
	if n < 1 {
		n = 1
	}
	o.workers = n
	return o
}

// SettleAll liquidates every item, capturing per-item errors in place.
func (o *Orchestrator) SettleAll(items []SettlementItem) []SettlementOutcome {
	results := make([]SettlementOutcome, len(items))
	o.run(len(items), func(i int) {
		results[i] = o.settleOne(items[i])
	})
	return results
}

func (o *Orchestrator) settleOne(item SettlementItem) (out SettlementOutcome) {
	if item.Operation != nil {
		out.ItemID = item.Operation.ID.String()
	}
	defer func() {
		if r := recover(); r != nil {
			out.Status = ItemStatusError
			out.Message = fmt.Sprintf("settlement panicked: %v", r)
		}
	}()

	if item.Operation == nil {
		out.Status = ItemStatusError
		out.Message = "missing operation"
		return out
	}

	var (
		ev  *models.SettlementEvent
		err error
	)
	if item.UseBackDoor {
		ev, err = o.calc.SettleWithBackDoor(item.Operation, item.PaymentDate, item.AmountReceived)
	} else {
		ev, err = o.calc.Settle(item.Operation, item.PaymentDate, item.AmountReceived)
	}
	if err != nil {
		out.Status = ItemStatusError
		out.Message = err.Error()
		return out
	}
	out.Status = ItemStatusOK
	out.Event = ev
	return out
}

// ProjectAll runs a projection per input, capturing per-item errors in place.
func (o *Orchestrator) ProjectAll(inputs []projection.Input) []ProjectionOutcome {
	results := make([]ProjectionOutcome, len(inputs))
	o.run(len(inputs), func(i int) {
		days, err := projection.Project(inputs[i])
		if err != nil {
			results[i] = ProjectionOutcome{Status: ItemStatusError, Message: err.Error()}
			return
		}
		results[i] = ProjectionOutcome{Status: ItemStatusOK, Days: days}
	})
	return results
}

// run executes fn(i) for each index, sequentially or over the worker pool.
// Each index writes only its own result slot, so no extra locking is needed.
func (o *Orchestrator) run(n int, fn func(i int)) {
	if o.workers <= 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, o.workers)
	for i := 0; i < n; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			fn(i)
		}(i)
	}
	wg.Wait()
}
