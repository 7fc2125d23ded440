package sqldb

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrNotFound is returned when a single-row lookup matches no rows, or
	// when an update or delete affects none.
	ErrNotFound = errors.New("object not found")

	// ErrMultipleResults is returned by Get when more than one row matches.
	ErrMultipleResults = errors.New("multiple objects returned")

	// ErrUnknownConnection is returned when a connection name is not
	// present in the pool.
	ErrUnknownConnection = errors.New("unknown connection")

	// ErrConnectionClosed is returned by operations on a closed connection.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrDetached is returned by Update and Delete for records that were
	// never added to or loaded from a connection of the pool.
	ErrDetached = errors.New("record is not associated with a connection")

	// ErrUnknownField is returned for filter, order or dict keys that are
	// not columns of the record's schema.
	ErrUnknownField = errors.New("unknown field")

	// ErrNotConfigured is returned by callers that require a pool when
	// the extension has no databases configured.
	ErrNotConfigured = errors.New("database extension not configured")
)

// postgres SQLSTATE codes
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUniqueViolation reports whether err is a unique or primary key
// constraint violation from postgres or sqlite. The error itself is left
// untouched so engine detail stays available to the caller.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// IsForeignKeyViolation reports whether err is a foreign key violation
// from postgres or sqlite.
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgForeignKeyViolation
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
	}
	return false
}
