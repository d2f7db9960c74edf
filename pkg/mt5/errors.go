package mt5

import (
	"errors"
	"fmt"
)

// Error kinds. Every error surfaced by the gateway wraps exactly one of
// these so handlers can map it to a stable wire code with errors.Is.
var (
	// ErrValidation marks bad input rejected before any bridge call.
	ErrValidation = errors.New("validation error")
	// ErrConnection marks the bridge being unreachable or timed out.
	ErrConnection = errors.New("terminal unavailable")
	// ErrBridge marks an application-level rejection from the terminal.
	ErrBridge = errors.New("terminal error")
	// ErrNotFound marks an unknown symbol or ticket.
	ErrNotFound = errors.New("not found")
)

// Kind returns the stable wire identifier for err, or "INTERNAL_ERROR"
// when the error does not belong to the taxonomy.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "VALIDATION_ERROR"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrConnection):
		return "TERMINAL_UNAVAILABLE"
	case errors.Is(err, ErrBridge):
		return "TERMINAL_REJECTED"
	default:
		return "INTERNAL_ERROR"
	}
}

// BridgeError carries the terminal retcode and comment verbatim.
type BridgeError struct {
	Retcode int
	Message string
}

func (e *BridgeError) Error() string {
	return fmt.Sprintf("terminal retcode %d: %s", e.Retcode, e.Message)
}

// Unwrap ties BridgeError into the taxonomy.
func (e *BridgeError) Unwrap() error { return ErrBridge }
