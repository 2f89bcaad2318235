package store

import (
	"database/sql"
	"errors"
)

// DBTX is the subset of *sql.DB and *sql.Tx the stores use, so every
// store can run either standalone or inside a caller's transaction.
type DBTX interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(...any) error
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

// ErrNoRows is returned by updates that were expected to touch exactly one row.
var ErrNoRows = errors.New("no rows affected")
