// Package repository contains the sqlx-backed persistence layer. Repositories
// return sql.ErrNoRows untouched; the service layer translates it into the
// domain error taxonomy.
package repository

import (
	"database/sql"
	"errors"
)

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
