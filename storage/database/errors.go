package database

import (
	"database/sql"

	"github.com/lib/pq"
	"github.com/pkg/errors"
)

var sqlNoRows = sql.ErrNoRows

const uniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique constraint failure.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
