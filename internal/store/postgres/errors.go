package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDuplicateSubdomain indicates a tenant with the same subdomain already exists.
var ErrDuplicateSubdomain = errors.New("subdomain already exists")

// ErrNoFields indicates a partial update carried nothing to change.
var ErrNoFields = errors.New("no fields to update")

// isUniqueViolation reports whether err is a Postgres unique constraint violation (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
