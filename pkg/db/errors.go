package db

import (
	"strings"

	pkgerrors "github.com/angelmondragon/teamprint-backend/pkg/errors"
)

const uniqueViolationCode = "23505"

// IsUniqueViolation reports whether err is a unique constraint failure. A
// non-empty constraint narrows the match to that index. Errors from drivers
// without structured codes (sqlite in tests) are matched on their text.
func IsUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}
	if pg, ok := pkgerrors.Postgres(err); ok {
		return pg.Code == uniqueViolationCode && (constraint == "" || pg.Constraint == constraint)
	}
	msg := err.Error()
	if !strings.Contains(msg, "duplicate key value") && !strings.Contains(msg, "UNIQUE constraint failed") {
		return false
	}
	return constraint == "" || strings.Contains(msg, constraint) || strings.Contains(msg, "UNIQUE constraint failed")
}
