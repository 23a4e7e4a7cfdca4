package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/lromero/factorops/pkg/models"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore and initializes the database.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	// Manually enable foreign keys and WAL mode
	_, err = db.Exec("PRAGMA foreign_keys = ON;")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	_, err = db.Exec("PRAGMA journal_mode = WAL;")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	log.Println("Database connection established and schema initialized.")
	return s, nil
}

// initSchema creates the database tables if they don't already exist.
// We use TEXT for decimal fields in SQLite to ensure no precision is lost.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS operations (
		id TEXT PRIMARY KEY,
		client_key TEXT NOT NULL,
		capital TEXT NOT NULL,
		monthly_rate TEXT NOT NULL,
		monthly_moratory_rate TEXT NOT NULL DEFAULT '0',
		disbursement_date DATETIME NOT NULL,
		due_date DATETIME NOT NULL,
		original_interest TEXT NOT NULL DEFAULT '0',
		original_igv TEXT NOT NULL DEFAULT '0',
		disbursed_amount TEXT NOT NULL DEFAULT '0',
		capital_remaining TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS settlement_events (
		id TEXT PRIMARY KEY,
		operation_id TEXT NOT NULL,
		payment_date DATETIME NOT NULL,
		amount_received TEXT NOT NULL,
		capital_applied TEXT NOT NULL,
		elapsed_days INTEGER NOT NULL,
		moratory_days INTEGER NOT NULL,
		accrued_interest TEXT NOT NULL,
		accrued_igv TEXT NOT NULL,
		moratory_interest TEXT NOT NULL,
		moratory_igv TEXT NOT NULL,
		delta_interest TEXT NOT NULL,
		delta_igv TEXT NOT NULL,
		delta_capital TEXT NOT NULL,
		global_balance TEXT NOT NULL,
		case_label TEXT NOT NULL,
		settled INTEGER NOT NULL,
		recommended_action TEXT NOT NULL,
		backdoor_applied INTEGER NOT NULL,
		backdoor_threshold TEXT NOT NULL DEFAULT '0',
		original_balance TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL,
		reductions TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME NOT NULL,
		FOREIGN KEY(operation_id) REFERENCES operations(id)
	);
	CREATE TABLE IF NOT EXISTS backdoor_audit (
		id TEXT PRIMARY KEY,
		operation_id TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		original_balance TEXT NOT NULL,
		final_balance TEXT NOT NULL,
		threshold TEXT NOT NULL,
		transaction_cost TEXT NOT NULL,
		reductions TEXT NOT NULL DEFAULT '[]'
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateOperation inserts a new operation into the database.
func (s *SQLiteStore) CreateOperation(op *models.Operation) error {
	_, err := s.db.Exec(
		`INSERT INTO operations (id, client_key, capital, monthly_rate, monthly_moratory_rate, disbursement_date, due_date, original_interest, original_igv, disbursed_amount, capital_remaining, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		op.ID.String(), op.ClientKey, op.Capital, op.MonthlyRate, op.MonthlyMoratoryRate, op.DisbursementDate, op.DueDate, op.OriginalInterest, op.OriginalIGV, op.DisbursedAmount, op.CapitalRemaining, op.Status, op.CreatedAt, op.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create operation: %w", err)
	}
	return nil
}

const operationColumns = `id, client_key, capital, monthly_rate, monthly_moratory_rate, disbursement_date, due_date, original_interest, original_igv, disbursed_amount, capital_remaining, status, created_at, updated_at`

// GetOperation retrieves an operation by its ID.
func (s *SQLiteStore) GetOperation(id uuid.UUID) (*models.Operation, error) {
	row := s.db.QueryRow(`SELECT `+operationColumns+` FROM operations WHERE id = ?`, id.String())
	op, err := scanOperation(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("operation not found")
		}
		return nil, fmt.Errorf("failed to get operation: %w", err)
	}
	return op, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOperation(row rowScanner) (*models.Operation, error) {
	var op models.Operation
	var idStr, status string
	var disb, due, created, updated time.Time
	err := row.Scan(&idStr, &op.ClientKey, &op.Capital, &op.MonthlyRate, &op.MonthlyMoratoryRate, &disb, &due, &op.OriginalInterest, &op.OriginalIGV, &op.DisbursedAmount, &op.CapitalRemaining, &status, &created, &updated)
	if err != nil {
		return nil, err
	}
	op.ID = uuid.MustParse(idStr)
	op.Status = models.OperationStatus(status)
	op.DisbursementDate = disb
	op.DueDate = due
	op.CreatedAt = created
	op.UpdatedAt = updated
	return &op, nil
}

// UpdateOperation updates an existing operation in the database.
func (s *SQLiteStore) UpdateOperation(op *models.Operation) error {
	result, err := s.db.Exec(
		`UPDATE operations SET client_key = ?, capital = ?, monthly_rate = ?, monthly_moratory_rate = ?, disbursement_date = ?, due_date = ?, original_interest = ?, original_igv = ?, disbursed_amount = ?, capital_remaining = ?, status = ?, updated_at = ? WHERE id = ?`,
		op.ClientKey, op.Capital, op.MonthlyRate, op.MonthlyMoratoryRate, op.DisbursementDate, op.DueDate, op.OriginalInterest, op.OriginalIGV, op.DisbursedAmount, op.CapitalRemaining, op.Status, op.UpdatedAt, op.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update operation: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("operation not found")
	}
	return nil
}

// DeleteOperation removes an operation and its settlement events within a
// transaction.
func (s *SQLiteStore) DeleteOperation(id uuid.UUID) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`DELETE FROM settlement_events WHERE operation_id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete associated settlement events: %w", err)
	}

	result, err := tx.Exec(`DELETE FROM operations WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete operation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("operation not found")
	}

	return tx.Commit()
}

// GetAllOperations retrieves all operations.
func (s *SQLiteStore) GetAllOperations() ([]*models.Operation, error) {
	rows, err := s.db.Query(`SELECT ` + operationColumns + ` FROM operations`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all operations: %w", err)
	}
	defer rows.Close()

	return s.scanOperations(rows)
}

// GetOpenOperations retrieves operations that still have a balance to
// liquidate.
func (s *SQLiteStore) GetOpenOperations() ([]*models.Operation, error) {
	rows, err := s.db.Query(`SELECT `+operationColumns+` FROM operations WHERE status IN (?, ?)`, models.StatusVigente, models.StatusParcial)
	if err != nil {
		return nil, fmt.Errorf("failed to get open operations: %w", err)
	}
	defer rows.Close()

	return s.scanOperations(rows)
}

func (s *SQLiteStore) scanOperations(rows *sql.Rows) ([]*models.Operation, error) {
	var ops []*models.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation row: %w", err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return ops, nil
}

// CreateSettlementEvent inserts a new settlement event. The reduction list is
// stored as JSON.
func (s *SQLiteStore) CreateSettlementEvent(ev *models.SettlementEvent) error {
	reductions, err := json.Marshal(ev.Reductions)
	if err != nil {
		return fmt.Errorf("failed to encode reductions: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO settlement_events (id, operation_id, payment_date, amount_received, capital_applied, elapsed_days, moratory_days, accrued_interest, accrued_igv, moratory_interest, moratory_igv, delta_interest, delta_igv, delta_capital, global_balance, case_label, settled, recommended_action, backdoor_applied, backdoor_threshold, original_balance, status, reductions, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID.String(), ev.OperationID.String(), ev.PaymentDate, ev.AmountReceived, ev.CapitalApplied, ev.ElapsedDays, ev.MoratoryDays,
		ev.AccruedInterest, ev.AccruedIGV, ev.MoratoryInterest, ev.MoratoryIGV,
		ev.DeltaInterest, ev.DeltaIGV, ev.DeltaCapital, ev.GlobalBalance,
		ev.Case.String(), ev.Settled, ev.RecommendedAction, ev.BackdoorApplied, ev.BackdoorThreshold, ev.OriginalBalance, ev.Status, string(reductions), ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create settlement event: %w", err)
	}
	return nil
}

// GetSettlementEventsForOperation retrieves the settlement history for an
// operation, oldest first.
func (s *SQLiteStore) GetSettlementEventsForOperation(opID uuid.UUID) ([]*models.SettlementEvent, error) {
	rows, err := s.db.Query(
		`SELECT id, operation_id, payment_date, amount_received, capital_applied, elapsed_days, moratory_days, accrued_interest, accrued_igv, moratory_interest, moratory_igv, delta_interest, delta_igv, delta_capital, global_balance, case_label, settled, recommended_action, backdoor_applied, backdoor_threshold, original_balance, status, reductions, created_at
		FROM settlement_events WHERE operation_id = ? ORDER BY payment_date ASC`, opID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get settlement events for operation %s: %w", opID, err)
	}
	defer rows.Close()

	var events []*models.SettlementEvent
	for rows.Next() {
		var ev models.SettlementEvent
		var idStr, opIDStr, caseLabel, status, reductions string
		var payment, created time.Time
		if err := rows.Scan(&idStr, &opIDStr, &payment, &ev.AmountReceived, &ev.CapitalApplied, &ev.ElapsedDays, &ev.MoratoryDays,
			&ev.AccruedInterest, &ev.AccruedIGV, &ev.MoratoryInterest, &ev.MoratoryIGV,
			&ev.DeltaInterest, &ev.DeltaIGV, &ev.DeltaCapital, &ev.GlobalBalance,
			&caseLabel, &ev.Settled, &ev.RecommendedAction, &ev.BackdoorApplied, &ev.BackdoorThreshold, &ev.OriginalBalance, &status, &reductions, &created); err != nil {
			return nil, fmt.Errorf("failed to scan settlement event row: %w", err)
		}
		ev.ID = uuid.MustParse(idStr)
		ev.OperationID = uuid.MustParse(opIDStr)
		ev.PaymentDate = payment
		ev.CreatedAt = created
		ev.Case = models.ParseCaseLabel(caseLabel)
		ev.Status = models.OperationStatus(status)
		if err := json.Unmarshal([]byte(reductions), &ev.Reductions); err != nil {
			return nil, fmt.Errorf("failed to decode reductions: %w", err)
		}
		events = append(events, &ev)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for settlement events: %w", err)
	}
	return events, nil
}

// CreateAuditRecord inserts one back-door audit record.
func (s *SQLiteStore) CreateAuditRecord(rec *models.AuditRecord) error {
	reductions, err := json.Marshal(rec.Reductions)
	if err != nil {
		return fmt.Errorf("failed to encode reductions: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO backdoor_audit (id, operation_id, timestamp, original_balance, final_balance, threshold, transaction_cost, reductions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.OperationID.String(), rec.Timestamp, rec.OriginalBalance, rec.FinalBalance, rec.Threshold, rec.TransactionCost, string(reductions),
	)
	if err != nil {
		return fmt.Errorf("failed to create audit record: %w", err)
	}
	return nil
}

// GetAuditRecords retrieves the whole back-door audit trail, oldest first.
func (s *SQLiteStore) GetAuditRecords() ([]*models.AuditRecord, error) {
	rows, err := s.db.Query(`SELECT id, operation_id, timestamp, original_balance, final_balance, threshold, transaction_cost, reductions FROM backdoor_audit ORDER BY timestamp ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit records: %w", err)
	}
	defer rows.Close()

	var records []*models.AuditRecord
	for rows.Next() {
		var rec models.AuditRecord
		var idStr, opIDStr, reductions string
		var ts time.Time
		if err := rows.Scan(&idStr, &opIDStr, &ts, &rec.OriginalBalance, &rec.FinalBalance, &rec.Threshold, &rec.TransactionCost, &reductions); err != nil {
			return nil, fmt.Errorf("failed to scan audit record row: %w", err)
		}
		rec.ID = uuid.MustParse(idStr)
		rec.OperationID = uuid.MustParse(opIDStr)
		rec.Timestamp = ts
		if err := json.Unmarshal([]byte(reductions), &rec.Reductions); err != nil {
			return nil, fmt.Errorf("failed to decode reductions: %w", err)
		}
		records = append(records, &rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for audit records: %w", err)
	}
	return records, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
