package store

import (
	"github.com/google/uuid"

	"github.com/lromero/factorops/pkg/models"
)

// Storage defines the interface for database operations related to factoring
// operations, their settlement history and the back-door audit trail.
type Storage interface {
	CreateOperation(op *models.Operation) error
	GetOperation(id uuid.UUID) (*models.Operation, error)
	UpdateOperation(op *models.Operation) error
	DeleteOperation(id uuid.UUID) error
	GetAllOperations() ([]*models.Operation, error)
	GetOpenOperations() ([]*models.Operation, error)

	CreateSettlementEvent(ev *models.SettlementEvent) error
	GetSettlementEventsForOperation(opID uuid.UUID) ([]*models.SettlementEvent, error)

	CreateAuditRecord(rec *models.AuditRecord) error
	GetAuditRecords() ([]*models.AuditRecord, error)

	Close() error
}
