package service

import (
	"errors"
	"fmt"

	"github.com/punchamoorthee/chapterbudget/internal/domain"
)

func forbidden(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrForbidden, fmt.Sprintf(format, args...))
}

func invalidState(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidState, fmt.Sprintf(format, args...))
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrValidation, fmt.Sprintf(format, args...))
}

// isDomainError reports whether err is one of the expected business outcomes,
// as opposed to an infrastructure failure worth an error log.
func isDomainError(err error) bool {
	for _, kind := range []error{
		domain.ErrValidation, domain.ErrForbidden, domain.ErrInvalidState,
		domain.ErrNotFound, domain.ErrConflict, domain.ErrIdempotencyMismatch,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// outcome is the metric label for the result of an operation.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	case errors.Is(err, domain.ErrForbidden):
		return "forbidden"
	case errors.Is(err, domain.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrIdempotencyMismatch):
		return "conflict"
	}
	return "error"
}
