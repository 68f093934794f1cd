package db

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Sentinel errors for database operations. Check with errors.Is().
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a unique constraint was violated, e.g. two
	// CIs for the same (external_id, import_source_id) pair.
	ErrAlreadyExists = errors.New("already exists")
)

// wrapError maps pgx errors onto the package sentinels. Returns the original
// error when it matches no known pattern.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
		return errors.Join(ErrAlreadyExists, err)
	}
	return err
}
