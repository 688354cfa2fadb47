package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when no row matches
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique constraint rejects a write
	ErrConflict = errors.New("conflict")
	// ErrCoupleAlreadyPaired is returned when the conditional pairing update finds the couple already paired
	ErrCoupleAlreadyPaired = errors.New("couple already paired")
	// ErrMemberConflict is returned when the redeeming user is already in another paired couple
	ErrMemberConflict = errors.New("user already in a paired couple")
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
