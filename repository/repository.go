package repository

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/trainops/coachms/repository/models"
)

// PostgreSQL error codes as constants
const (
	// Class 23 — Integrity Constraint Violation
	PgErrForeignKeyViolation = "23503" // foreign_key_violation
	PgErrUniqueViolation     = "23505" // unique_violation
	PgErrCheckViolation      = "23514" // check_violation
	PgErrNotNullViolation    = "23502" // not_null_violation

	// Class 40 — Transaction Rollback
	PgErrTransactionRollback = "40000" // transaction_rollback
	PgErrSerializationFail   = "40001" // serialization_failure

	// Class 08 — Connection Exception
	PgErrConnectionException = "08000" // connection_exception
	PgErrConnectionFailure   = "08006" // connection_failure
)

// Repository error codes. Every operation returns one of these in
// RepositoryError.Code, or a raw Postgres SQLSTATE when the driver error is
// surfaced directly.
const (
	ErrCodeDenied              = "DENIED"
	ErrCodeSessionTerminal     = "SESSION_TERMINAL"
	ErrCodeIncompleteChecklist = "INCOMPLETE_CHECKLIST"
	ErrCodeUnresolvedDefects   = "UNRESOLVED_DEFECTS"
	ErrCodeAlreadyTransitioned = "ALREADY_TRANSITIONED"
	ErrCodeDuplicateDefect     = "DUPLICATE_DEFECT"
	ErrCodeMissingEvidence     = "MISSING_EVIDENCE"
	ErrCodeAlreadyResolved     = "ALREADY_RESOLVED"
	ErrCodeEntityNotFound      = "ENTITY_NOT_FOUND"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeInvalidState        = "INVALID_STATE"
	ErrCodeDatabaseError       = "DATABASE_ERROR"
)

// RepositoryError represents an error in the repository layer. Missing is
// populated for INCOMPLETE_CHECKLIST (question ids) and UNRESOLVED_DEFECTS
// (defect ids) so the caller can act on the specific entries.
type RepositoryError struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Detail  string   `json:"detail,omitempty"`
	Missing []string `json:"missing,omitempty"`
}

// Principal is the authenticated caller supplied by the surrounding system.
// Token issuance and verification happen upstream; the repository only
// consumes {id, role}.
type Principal struct {
	ID   string
	Role string
}

// RoleAdmin is the role required for monitoring and audit reads.
const RoleAdmin = "admin"

// AuditSink receives operational audit events. The badger-backed trail in the
// audit package implements it; tests may pass nil.
type AuditSink interface {
	Record(eventType string, fields map[string]any)
}

// Roster resolves a coach's module assignment. Injected so the guard never
// reaches for a global; the default implementation reads the coaches table.
type Roster interface {
	ModuleAssignment(coachID string) (*models.Coach, *RepositoryError)
}

type Repository struct {
	db     *gorm.DB
	roster Roster
	audit  AuditSink
	logger *slog.Logger
}

func NewRepository(logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Repository{logger: logger}
	r.roster = &dbRoster{repo: r}
	return r
}

// ConnectDB dials Postgres with retries; container orchestration may bring
// the database up after the service.
func (r *Repository) ConnectDB(dsn string) error {
	var lastErr error
	for i := range 10 {
		db, err := gorm.Open(postgres.Open(dsn))
		if err != nil {
			lastErr = err
			r.logger.Warn("database connection attempt failed", "attempt", i+1, "err", err)
			time.Sleep(2 * time.Second)
			continue
		}
		r.db = db
		r.logger.Info("connected to Postgres")
		return nil
	}
	return lastErr
}

// UseDB attaches an already-open gorm handle. Tests use this with the
// in-memory sqlite driver.
func (r *Repository) UseDB(db *gorm.DB) {
	r.db = db
}

// SetRoster overrides the default database-backed roster.
func (r *Repository) SetRoster(roster Roster) {
	r.roster = roster
}

// SetAuditSink attaches the audit trail. A nil sink disables audit emission.
func (r *Repository) SetAuditSink(sink AuditSink) {
	r.audit = sink
}

func (r *Repository) Migrate() error {
	return r.db.AutoMigrate(
		&models.Coach{},
		&models.Inspector{},
		&models.Category{},
		&models.Subcategory{},
		&models.ChecklistItem{},
		&models.Question{},
		&models.InspectionSession{},
		&models.Answer{},
		&models.Defect{},
	)
}

func (r *Repository) record(eventType string, fields map[string]any) {
	if r.audit == nil {
		return
	}
	r.audit.Record(eventType, fields)
}

// wrapDBError converts a driver error to a RepositoryError, surfacing the
// Postgres SQLSTATE when one is present.
func wrapDBError(err error) *RepositoryError {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &RepositoryError{
			Code:    pgErr.Code,
			Message: pgErr.Message,
			Detail:  pgErr.Detail,
		}
	}
	return &RepositoryError{
		Code:    ErrCodeDatabaseError,
		Message: "a database error occurred",
		Detail:  err.Error(),
	}
}

// isUniqueViolation reports whether err is a unique-constraint failure on any
// supported driver. Postgres reports SQLSTATE 23505; the sqlite driver used
// in tests reports a plain "UNIQUE constraint failed" error.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == PgErrUniqueViolation {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// dbRoster looks up module assignment from the coaches table.
type dbRoster struct {
	repo *Repository
}

func (dr *dbRoster) ModuleAssignment(coachID string) (*models.Coach, *RepositoryError) {
	var coach models.Coach
	err := dr.repo.db.Where("coach_id = ?", coachID).First(&coach).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &RepositoryError{
				Code:    ErrCodeEntityNotFound,
				Message: "Coach is not on the roster",
				Detail:  "coach " + coachID + " is unknown to the roster",
			}
		}
		return nil, wrapDBError(err)
	}
	return &coach, nil
}
