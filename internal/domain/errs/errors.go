package errs

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrQuotaExceeded     = errors.New("daily post limit reached")
	ErrNotFound          = errors.New("not found")
	ErrAlreadyReported   = errors.New("post already reported by user")
	ErrBanned            = errors.New("user is banned")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrForbidden         = errors.New("action not allowed for actor")
	ErrRateLimited       = errors.New("too many requests")
	ErrTransport         = errors.New("transport failure")
	ErrStore             = errors.New("store failure")
)

// Store marks err as a persistence failure while keeping the cause in the chain.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStore) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyReported) || errors.Is(err, ErrInvalidTransition) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStore, err)
}

func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Code is the stable machine-readable identifier sent to clients.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrQuotaExceeded):
		return "limit_exceeded"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyReported):
		return "already_reported"
	case errors.Is(err, ErrBanned):
		return "banned"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrRateLimited):
		return "too_fast"
	case errors.Is(err, ErrStore):
		return "store_unavailable"
	default:
		return "internal_error"
	}
}
