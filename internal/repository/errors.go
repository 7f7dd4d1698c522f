package repository

import (
	"errors"

	"github.com/lib/pq"
)

// ErrUniqueViolation is returned when an insert collides with a unique index.
var ErrUniqueViolation = errors.New("unique constraint violation")

// ErrCapacityExhausted is returned when a conditional capacity increment matches no row.
var ErrCapacityExhausted = errors.New("offer capacity exhausted")

// ErrStaleStatus is returned when a compare-and-set status update lost a race.
var ErrStaleStatus = errors.New("status changed concurrently")

const pqUniqueViolation = "23505"

func translateError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return ErrUniqueViolation
	}
	return err
}
