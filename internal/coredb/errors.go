package coredb

import (
	"errors"
	"strings"

	sqlite3 "modernc.org/sqlite/lib"
)

// codeError matches modernc.org/sqlite error types exposed by the driver.
type codeError interface {
	Code() int
}

func sqliteCode(err error) (int, bool) {
	var coder codeError
	if errors.As(err, &coder) {
		return coder.Code(), true
	}
	return 0, false
}

// IsUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY constraint
// failure. Callers map this to the tracker's Conflict kind.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := sqliteCode(err); ok {
		if code == int(sqlite3.SQLITE_CONSTRAINT_UNIQUE) || code == int(sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY) {
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed")
}

// IsForeignKeyViolation reports whether err is a FOREIGN KEY constraint
// failure. Callers map this to the tracker's InvalidReference kind.
func IsForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := sqliteCode(err); ok {
		if code == int(sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY) {
			return true
		}
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// IsCheckViolation reports whether err is a CHECK constraint failure.
func IsCheckViolation(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := sqliteCode(err); ok {
		if code == int(sqlite3.SQLITE_CONSTRAINT_CHECK) {
			return true
		}
	}
	return strings.Contains(err.Error(), "CHECK constraint failed")
}

// IsQuotaExceeded reports whether the supplied error indicates that the
// configured DB storage quota has been exhausted. This covers SQLite's
// SQLITE_FULL result when the max_page_count boundary is reached. A string
// fallback handles filesystem-level quota messages surfaced by SQLite.
func IsQuotaExceeded(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := sqliteCode(err); ok {
		if code == int(sqlite3.SQLITE_FULL) {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "database or disk is full"):
		return true
	case strings.Contains(msg, "quota") && strings.Contains(msg, "exceeded"):
		return true
	default:
		return false
	}
}
