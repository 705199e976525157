// internal/apperrors/errors.go
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for the request taxonomy. Handlers translate these to
// 401/403; everything else falls through to 500.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// NotFoundError names the missing resource, e.g. "campaign" or "segment".
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// Helper constructor
func NewNotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ValidationError is a malformed or semantically invalid request body.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func NewValidation(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// PermanentDeliveryError marks a delivery failure that must never be
// retried: a missing unsubscribe_url variable, or rendered output that
// dropped the unsubscribe link.
type PermanentDeliveryError struct {
	Reason string
}

func (e *PermanentDeliveryError) Error() string {
	return "permanent delivery failure: " + e.Reason
}

func NewPermanentDelivery(reason string) error {
	return &PermanentDeliveryError{Reason: reason}
}

func IsPermanentDelivery(err error) bool {
	var pe *PermanentDeliveryError
	return errors.As(err, &pe)
}
