package db

import (
	"errors"
	"fmt"

	"github.com/deemkeen/fedcore/domain"
)

// isDomainError reports whether err already carries a domain error kind
func isDomainError(err error) bool {
	return errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrMalformed) ||
		errors.Is(err, domain.ErrUnauthorized) ||
		errors.Is(err, domain.ErrConflict) ||
		errors.Is(err, domain.ErrTransient)
}

// transient tags a raw driver error as a storage failure
func transient(op string, err error) error {
	return fmt.Errorf("%w: failed to %s: %v", domain.ErrTransient, op, err)
}
