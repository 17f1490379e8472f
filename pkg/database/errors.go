package database

import (
	"errors"

	"github.com/lib/pq"
)

// pq code 23505
const uniqueViolationCode = "23505"

// IsUniqueViolation reports whether the error is a unique constraint
// violation from Postgres. Resolution treats these as "retry as update".
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolationCode
	}
	return false
}
