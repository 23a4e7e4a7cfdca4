package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/lromero/factorops/pkg/config"
	"github.com/lromero/factorops/pkg/models"
	"github.com/lromero/factorops/pkg/store"
	"github.com/shopspring/decimal"
)

func setupTestServer(t *testing.T) (*Server, string) {
	dbFile := "test_api_ops.db"
	os.Remove(dbFile)

	s, err := store.NewSQLiteStore(dbFile)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	return NewServer(cfg, s), dbFile
}

func TestAPI_CreateAndSettleOperation(t *testing.T) {
	server, dbFile := setupTestServer(t)
	defer os.Remove(dbFile)
	defer server.storage.Close()

	router := server.routes()

	// Register an originated operation
	opReq := map[string]interface{}{
		"client_key":        "cli_test",
		"capital":           17822.01,
		"monthly_rate":      0.02,
		"disbursement_date": "2024-12-24",
		"due_date":          "2025-03-24",
		"original_interest": 1202.85,
		"original_igv":      216.51,
		"disbursed_amount":  16300.00,
	}
	body, _ := json.Marshal(opReq)
	req := httptest.NewRequest("POST", "/operations", bytes.NewBuffer(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	var createdOp models.Operation
	json.Unmarshal(rr.Body.Bytes(), &createdOp)

	if createdOp.Status != models.StatusVigente {
		t.Errorf("Expected status %s, got %s", models.StatusVigente, createdOp.Status)
	}

	// Settle a payment before the due date
	settleReq := map[string]interface{}{
		"payment_date":    "2025-02-24",
		"amount_received": 17700.00,
	}
	body, _ = json.Marshal(settleReq)
	req = httptest.NewRequest("POST", "/operations/"+createdOp.ID.String()+"/settlements", bytes.NewBuffer(body))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	var ev models.SettlementEvent
	json.Unmarshal(rr.Body.Bytes(), &ev)

	if ev.ElapsedDays != 62 {
		t.Errorf("Expected 62 elapsed days, got %d", ev.ElapsedDays)
	}
	expectedBalance := decimal.NewFromFloat(-410.19)
	if ev.GlobalBalance.Sub(expectedBalance).Abs().GreaterThan(decimal.NewFromFloat(0.05)) {
		t.Errorf("Expected global balance ~%s, got %s", expectedBalance, ev.GlobalBalance)
	}
	if ev.Case != models.Case6 {
		t.Errorf("Expected case %s, got %s", models.Case6, ev.Case)
	}

	// The operation should now be closed
	req = httptest.NewRequest("GET", "/operations/"+createdOp.ID.String(), nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}

	var fetchedOp models.Operation
	json.Unmarshal(rr.Body.Bytes(), &fetchedOp)
	if fetchedOp.Status != models.StatusLiquidado {
		t.Errorf("Expected status %s, got %s", models.StatusLiquidado, fetchedOp.Status)
	}

	// And carry its settlement history
	req = httptest.NewRequest("GET", "/operations/"+createdOp.ID.String()+"/settlements", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	var events []models.SettlementEvent
	json.Unmarshal(rr.Body.Bytes(), &events)
	if len(events) != 1 {
		t.Errorf("Expected 1 settlement event, got %d", len(events))
	}
}

func TestAPI_SettlementValidation(t *testing.T) {
	server, dbFile := setupTestServer(t)
	defer os.Remove(dbFile)
	defer server.storage.Close()

	router := server.routes()

	opReq := map[string]interface{}{
		"client_key":        "cli_test",
		"capital":           1000.0,
		"monthly_rate":      0.02,
		"disbursement_date": "2025-01-15",
		"due_date":          "2025-03-15",
	}
	body, _ := json.Marshal(opReq)
	req := httptest.NewRequest("POST", "/operations", bytes.NewBuffer(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	var createdOp models.Operation
	json.Unmarshal(rr.Body.Bytes(), &createdOp)

	// Payment before the disbursement date must be rejected
	settleReq := map[string]interface{}{
		"payment_date":    "2025-01-10",
		"amount_received": 500.0,
	}
	body, _ = json.Marshal(settleReq)
	req = httptest.NewRequest("POST", "/operations/"+createdOp.ID.String()+"/settlements", bytes.NewBuffer(body))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}
}

func TestAPI_Origination(t *testing.T) {
	server, dbFile := setupTestServer(t)
	defer os.Remove(dbFile)
	defer server.storage.Close()

	router := server.routes()

	items := []map[string]interface{}{
		{
			"invoice_id":           "F001-123",
			"net_amount":           10000.0,
			"advance_rate":         0.9,
			"monthly_rate":         0.02,
			"term_days":            30,
			"fixed_min_commission": 200.0,
			"pct_commission":       0.005,
		},
	}
	body, _ := json.Marshal(items)
	req := httptest.NewRequest("POST", "/originations", bytes.NewBuffer(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	var result struct {
		FeeMethod string `json:"chosen_fee_method"`
		Items     []struct {
			Status    string `json:"status"`
			Breakdown *struct {
				Capital         decimal.Decimal `json:"capital"`
				DisbursedAmount decimal.Decimal `json:"disbursed_amount"`
			} `json:"breakdown"`
		} `json:"items"`
	}
	json.Unmarshal(rr.Body.Bytes(), &result)

	// Fixed minimum (200) beats 9000 * 0.005 = 45
	if result.FeeMethod != "FIXED" {
		t.Errorf("Expected FIXED fee method, got %s", result.FeeMethod)
	}
	if len(result.Items) != 1 || result.Items[0].Status != "OK" {
		t.Fatalf("Expected 1 OK item, got %+v", result.Items)
	}
	if !result.Items[0].Breakdown.Capital.Equal(decimal.NewFromInt(9000)) {
		t.Errorf("Expected capital 9000, got %s", result.Items[0].Breakdown.Capital)
	}

	// Empty batch is rejected
	req = httptest.NewRequest("POST", "/originations", bytes.NewBufferString("[]"))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for empty batch, got %d", rr.Code)
	}
}

func TestAPI_Projection(t *testing.T) {
	server, dbFile := setupTestServer(t)
	defer os.Remove(dbFile)
	defer server.storage.Close()

	router := server.routes()

	projReq := map[string]interface{}{
		"initial_capital":   1000.0,
		"start_date":        "2025-01-01",
		"monthly_comp_rate": 0.02,
		"horizon_days":      10,
	}
	body, _ := json.Marshal(projReq)
	req := httptest.NewRequest("POST", "/projections", bytes.NewBuffer(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	var days []map[string]interface{}
	json.Unmarshal(rr.Body.Bytes(), &days)
	if len(days) != 10 {
		t.Errorf("Expected 10 day records, got %d", len(days))
	}
}
