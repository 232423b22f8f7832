package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgDuplicateKeyCode   = "23505"
	pgCheckViolationCode = "23514"
)

var (
	// ErrStore marks a persistence failure that is not a missing row or a duplicate key.
	ErrStore = errors.New("store failure")
	// ErrConstraint marks a row rejected by a CHECK constraint.
	ErrConstraint = errors.New("constraint violation")
)

// MapError translates database errors to domain errors.
// sql.ErrNoRows maps to notFoundErr and unique violations (23505) map to
// duplicateErr (when non-nil). Check violations are wrapped with ErrConstraint; every other
// failure is wrapped with ErrStore so callers can classify it with errors.Is.
func MapError(err error, notFoundErr, duplicateErr error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return notFoundErr
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgDuplicateKeyCode:
			if duplicateErr != nil {
				return duplicateErr
			}
		case pgCheckViolationCode:
			return fmt.Errorf("%w: %w: %w", ErrStore, ErrConstraint, err)
		}
	}

	if errors.Is(err, ErrStore) {
		return err
	}

	return fmt.Errorf("%w: %w", ErrStore, err)
}
