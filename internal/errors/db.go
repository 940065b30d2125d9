package errors

import (
	"context"
	"errors"
	"regexp"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// reKeyField extracts the column from a unique violation detail: "Key (field)=(value) already exists.".
var reKeyField = regexp.MustCompile(`Key \(([^)]+)\)=`)

// MapDBError maps database errors to AppError instances:
//   - context timeouts/cancellations → Timeout/Canceled
//   - pgx.ErrNoRows → NotFound
//   - unique violations → Conflict
//   - not-null, check, type and length errors → Validation
//   - undefined table/column → Schema
//   - connection exceptions and shutdowns → Unavailable
//
// Errors that are not recognized database errors are returned unchanged.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(err, ErrCodeTimeout, "database operation timed out")
	}
	if errors.Is(err, context.Canceled) {
		return Wrap(err, ErrCodeCanceled, "database operation canceled")
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return Wrap(err, ErrCodeNotFound, "row not found")
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapPgError(pgErr)
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return Wrap(err, ErrCodeUnavailable, "database unreachable")
	}

	return err
}

func mapPgError(pgErr *pgconn.PgError) error {
	switch {
	case pgErr.Code == pgerrcode.UniqueViolation:
		return &AppError{
			Code:    ErrCodeConflict,
			Message: "duplicate key",
			Field:   violatedColumn(pgErr),
			Cause:   pgErr,
		}
	case pgErr.Code == pgerrcode.NotNullViolation,
		pgErr.Code == pgerrcode.CheckViolation,
		pgerrcode.IsDataException(pgErr.Code):
		return &AppError{
			Code:    ErrCodeValidation,
			Message: "value rejected by database",
			Field:   pgErr.ColumnName,
			Cause:   pgErr,
		}
	case pgErr.Code == pgerrcode.UndefinedTable,
		pgErr.Code == pgerrcode.UndefinedColumn:
		return Wrap(pgErr, ErrCodeSchema, "database schema mismatch")
	case pgerrcode.IsConnectionException(pgErr.Code),
		pgerrcode.IsOperatorIntervention(pgErr.Code),
		pgerrcode.IsInsufficientResources(pgErr.Code):
		return Wrap(pgErr, ErrCodeUnavailable, "database unavailable")
	default:
		return Wrap(pgErr, ErrCodeInternal, "database error")
	}
}

// violatedColumn prefers ColumnName metadata and falls back to parsing Detail.
func violatedColumn(pgErr *pgconn.PgError) string {
	if pgErr.ColumnName != "" {
		return pgErr.ColumnName
	}
	if m := reKeyField.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
		return m[1]
	}
	return ""
}
