package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/lromero/factorops/pkg/config"
	"github.com/lromero/factorops/pkg/models"
	"github.com/lromero/factorops/pkg/origination"
	"github.com/lromero/factorops/pkg/projection"
	"github.com/lromero/factorops/pkg/settlement"
	"github.com/lromero/factorops/pkg/store"
)

const dateLayout = "2006-01-02"

// Server holds the calculators, the audit log and the storage.
type Server struct {
	calc    *settlement.Calculator
	audit   *settlement.MemoryAuditLog
	storage store.Storage
	cfg     *config.Config
}

// persistingAuditSink forwards back-door audit records to the in-memory log
// and the database.
type persistingAuditSink struct {
	log     *settlement.MemoryAuditLog
	storage store.Storage
}

func (s *persistingAuditSink) Record(rec models.AuditRecord) {
	s.log.Record(rec)
	if err := s.storage.CreateAuditRecord(&rec); err != nil {
		log.Printf("Error persisting audit record for operation %s: %v\n", rec.OperationID, err)
	}
}

func NewServer(cfg *config.Config, storage store.Storage) *Server {
	auditLog := settlement.NewMemoryAuditLog()
	calc := settlement.NewCalculator(settlement.Config{
		IGVRate:           cfg.IGVRate,
		MoratoryRate:      cfg.MoratoryRate,
		BackdoorThreshold: cfg.BackdoorThreshold,
		TransactionCost:   cfg.TransactionCost,
	}, &persistingAuditSink{log: auditLog, storage: storage})

	return &Server{
		calc:    calc,
		audit:   auditLog,
		storage: storage,
		cfg:     cfg,
	}
}

func (s *Server) originationHandler(w http.ResponseWriter, r *http.Request) {
	var items []origination.InvoiceInput
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := origination.ComputeBatchOrigination(items)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (s *Server) reverseOriginationHandler(w http.ResponseWriter, r *http.Request) {
	var items []origination.TargetInput
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := origination.FindAdvanceRate(items)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (s *Server) createOperationHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClientKey           string          `json:"client_key"`
		Capital             decimal.Decimal `json:"capital"`
		MonthlyRate         decimal.Decimal `json:"monthly_rate"`
		MonthlyMoratoryRate decimal.Decimal `json:"monthly_moratory_rate"`
		DisbursementDate    string          `json:"disbursement_date"`
		DueDate             string          `json:"due_date"`
		OriginalInterest    decimal.Decimal `json:"original_interest"`
		OriginalIGV         decimal.Decimal `json:"original_igv"`
		DisbursedAmount     decimal.Decimal `json:"disbursed_amount"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	disb, err := time.Parse(dateLayout, req.DisbursementDate)
	if err != nil {
		http.Error(w, "Invalid disbursement_date", http.StatusBadRequest)
		return
	}
	due, err := time.Parse(dateLayout, req.DueDate)
	if err != nil {
		http.Error(w, "Invalid due_date", http.StatusBadRequest)
		return
	}
	if due.Before(disb) {
		http.Error(w, "due_date precedes disbursement_date", http.StatusBadRequest)
		return
	}
	if req.Capital.LessThanOrEqual(decimal.Zero) {
		http.Error(w, "capital must be positive", http.StatusBadRequest)
		return
	}

	op := &models.Operation{
		ID:                  uuid.New(),
		ClientKey:           req.ClientKey,
		Capital:             req.Capital,
		MonthlyRate:         req.MonthlyRate,
		MonthlyMoratoryRate: req.MonthlyMoratoryRate,
		DisbursementDate:    disb,
		DueDate:             due,
		OriginalInterest:    req.OriginalInterest,
		OriginalIGV:         req.OriginalIGV,
		DisbursedAmount:     req.DisbursedAmount,
		CapitalRemaining:    req.Capital,
		Status:              models.StatusVigente,
		CreatedAt:           time.Now(),
		UpdatedAt:           time.Now(),
	}

	if err := s.storage.CreateOperation(op); err != nil {
		log.Printf("Error creating operation: %v\n", err)
		http.Error(w, fmt.Sprintf("Failed to create operation: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(op)
}

func (s *Server) getOperationHandler(w http.ResponseWriter, r *http.Request) {
	opID, ok := parseID(w, r)
	if !ok {
		return
	}

	op, err := s.storage.GetOperation(opID)
	if err != nil {
		if err.Error() == "operation not found" {
			http.Error(w, "Operation not found", http.StatusNotFound)
		} else {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(op)
}

func (s *Server) listOperationsHandler(w http.ResponseWriter, r *http.Request) {
	ops, err := s.storage.GetAllOperations()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ops)
}

func (s *Server) deleteOperationHandler(w http.ResponseWriter, r *http.Request) {
	opID, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := s.storage.DeleteOperation(opID); err != nil {
		if err.Error() == "operation not found" {
			http.Error(w, "Operation not found", http.StatusNotFound)
		} else {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) settleHandler(w http.ResponseWriter, r *http.Request) {
	opID, ok := parseID(w, r)
	if !ok {
		return
	}

	var req struct {
		PaymentDate    string          `json:"payment_date"`
		AmountReceived decimal.Decimal `json:"amount_received"`
		Backdoor       bool            `json:"backdoor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	paymentDate, err := time.Parse(dateLayout, req.PaymentDate)
	if err != nil {
		http.Error(w, "Invalid payment_date", http.StatusBadRequest)
		return
	}

	op, err := s.storage.GetOperation(opID)
	if err != nil {
		if err.Error() == "operation not found" {
			http.Error(w, "Operation not found", http.StatusNotFound)
		} else {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	var ev *models.SettlementEvent
	if req.Backdoor {
		ev, err = s.calc.SettleWithBackDoor(op, paymentDate, req.AmountReceived)
	} else {
		ev, err = s.calc.Settle(op, paymentDate, req.AmountReceived)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.storage.CreateSettlementEvent(ev); err != nil {
		log.Printf("Error storing settlement event: %v\n", err)
		http.Error(w, fmt.Sprintf("Failed to store settlement event: %v", err), http.StatusInternalServerError)
		return
	}

	// Carry the running capital and lifecycle state on the operation.
	if ev.GlobalBalance.LessThanOrEqual(decimal.Zero) {
		op.CapitalRemaining = decimal.Zero
		op.Status = ev.Status
	} else {
		if ev.DeltaCapital.IsPositive() {
			op.CapitalRemaining = ev.DeltaCapital
		} else {
			op.CapitalRemaining = decimal.Zero
		}
		op.Status = models.StatusParcial
	}
	op.UpdatedAt = time.Now()
	if err := s.storage.UpdateOperation(op); err != nil {
		log.Printf("Error updating operation after settlement: %v\n", err)
		http.Error(w, fmt.Sprintf("Failed to update operation: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(ev.Rounded())
}

func (s *Server) listSettlementsHandler(w http.ResponseWriter, r *http.Request) {
	opID, ok := parseID(w, r)
	if !ok {
		return
	}

	events, err := s.storage.GetSettlementEventsForOperation(opID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	rounded := make([]*models.SettlementEvent, len(events))
	for i, ev := range events {
		rounded[i] = ev.Rounded()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rounded)
}

func (s *Server) projectionHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InitialCapital      decimal.Decimal `json:"initial_capital"`
		StartDate           string          `json:"start_date"`
		MonthlyRate         decimal.Decimal `json:"monthly_comp_rate"`
		MonthlyMoratoryRate decimal.Decimal `json:"monthly_moratory_rate"`
		HorizonDays         int             `json:"horizon_days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	startDate, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		http.Error(w, "Invalid start_date", http.StatusBadRequest)
		return
	}
	horizon := req.HorizonDays
	if horizon <= 0 {
		horizon = s.cfg.ProjectionHorizonDays
	}

	days, err := projection.Project(projection.Input{
		InitialCapital:      req.InitialCapital,
		StartDate:           startDate,
		MonthlyRate:         req.MonthlyRate,
		MonthlyMoratoryRate: req.MonthlyMoratoryRate,
		HorizonDays:         horizon,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(days)
}

func (s *Server) backdoorAuditHandler(w http.ResponseWriter, r *http.Request) {
	records, err := s.storage.GetAuditRecords()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp := struct {
		Metrics settlement.AuditMetrics `json:"metrics"`
		Records []*models.AuditRecord   `json:"records"`
	}{
		Metrics: s.audit.Metrics(),
		Records: records,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	vars := mux.Vars(r)
	opID, err := uuid.Parse(vars["id"])
	if err != nil {
		http.Error(w, "Invalid operation ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return opID, true
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/originations", s.originationHandler).Methods("POST")
	router.HandleFunc("/originations/reverse", s.reverseOriginationHandler).Methods("POST")

	router.HandleFunc("/operations", s.listOperationsHandler).Methods("GET")
	router.HandleFunc("/operations", s.createOperationHandler).Methods("POST")
	router.HandleFunc("/operations/{id}", s.getOperationHandler).Methods("GET")
	router.HandleFunc("/operations/{id}", s.deleteOperationHandler).Methods("DELETE")
	router.HandleFunc("/operations/{id}/settlements", s.settleHandler).Methods("POST")
	router.HandleFunc("/operations/{id}/settlements", s.listSettlementsHandler).Methods("GET")

	router.HandleFunc("/projections", s.projectionHandler).Methods("POST")
	router.HandleFunc("/backdoor/audit", s.backdoorAuditHandler).Methods("GET")

	return router
}

func main() {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	sqliteStore, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize SQLite store: %v", err)
	}
	defer sqliteStore.Close()

	server := NewServer(cfg, sqliteStore)

	log.Printf("Server starting on :%s", cfg.HTTPPort)
	log.Fatal(http.ListenAndServe(":"+cfg.HTTPPort, server.routes()))
}

func getConfigPath() string {
	if path := os.Getenv("FACTOROPS_CONFIG"); path != "" {
		return path
	}
	return "factorops.yaml"
}
