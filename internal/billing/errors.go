package billing

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrEmptyCart is returned when an action needs at least one line item.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrMissingMobile is returned when the customer mobile number is blank.
	ErrMissingMobile = errors.New("customer mobile is required")
	// ErrConfirmationRequired is returned when an operation needs a user decision
	// that was not supplied.
	ErrConfirmationRequired = errors.New("confirmation required")
	// ErrActionInProgress is returned while another save, print or share runs.
	ErrActionInProgress = errors.New("another bill action is in progress")
	// ErrBillLocked is returned when mutating a bill that has already been saved.
	ErrBillLocked = errors.New("bill already saved; reset to start a new one")
	// ErrItemNotFound is returned for an out of range item index.
	ErrItemNotFound = errors.New("line item not found")
	// ErrUnknownField is returned by UpdateField for fields it does not manage.
	ErrUnknownField = errors.New("unknown line item field")
	// ErrSessionNotFound is returned for unknown or expired session ids.
	ErrSessionNotFound = errors.New("billing session not found")
)

// ValidationError lists offending fields with a short reason each.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// ConfirmationError carries the prompt the user has to answer.
type ConfirmationError struct {
	Prompt Prompt
}

func (e *ConfirmationError) Error() string { return "confirmation required: " + e.Prompt.Message }

// Unwrap lets errors.Is match ErrConfirmationRequired.
func (e *ConfirmationError) Unwrap() error { return ErrConfirmationRequired }
