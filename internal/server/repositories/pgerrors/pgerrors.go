// Package pgerrors classifies PostgreSQL errors surfaced through pgx.
package pgerrors

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the repositories react to.
const (
	UniqueViolation     = "23505"
	ForeignKeyViolation = "23503"
	CheckViolation      = "23514"
)

// Code returns the SQLSTATE of err, or "" if err is not a PostgreSQL error.
func Code(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func IsUniqueViolation(err error) bool { return Code(err) == UniqueViolation }

func IsForeignKeyViolation(err error) bool { return Code(err) == ForeignKeyViolation }

func IsCheckViolation(err error) bool { return Code(err) == CheckViolation }
