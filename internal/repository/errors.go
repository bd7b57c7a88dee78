package repository

import (
	"errors"

	"hiss/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

// ErrBodyTooLong is the message surfaced when the store rejects a post body.
const ErrBodyTooLong = "You can only post upto 150 characters"

// pgCheckViolation is the PostgreSQL SQLSTATE for check_violation.
const pgCheckViolation = "23514"

// isCheckViolation reports whether err is a CHECK constraint failure from
// either supported driver.
func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgCheckViolation
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintCheck
	}
	return false
}

// classifyWrite maps a failed post write to the error callers act on.
func classifyWrite(err error) error {
	if isCheckViolation(err) {
		return models.NewValidationError(ErrBodyTooLong)
	}
	return err
}
