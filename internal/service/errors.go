package service

import (
	"errors"
	"fmt"
	"strings"
)

// ErrStoreUnavailable is returned when the document store cannot be
// reached. It is transient; the caller may resubmit.
var ErrStoreUnavailable = errors.New("store unavailable, please try again")

// ErrEventNotFound is returned when the event id does not resolve.
var ErrEventNotFound = errors.New("event not found")

// ErrForbidden is returned when the identity may not perform the operation.
var ErrForbidden = errors.New("administrator sign-in required")

// DuplicateRegistrationError reports an email already registered for the
// event. Email is the address as the registrant typed it.
type DuplicateRegistrationError struct {
	Email string
}

func (e *DuplicateRegistrationError) Error() string {
	return fmt.Sprintf("%s is already registered for this event", e.Email)
}

// RegistrationFailedError wraps a store fault during the registration
// writes. The registration document may already exist when the counter
// increment was the step that failed.
type RegistrationFailedError struct {
	Err error
}

func (e *RegistrationFailedError) Error() string {
	return "registration failed: " + e.Err.Error()
}

func (e *RegistrationFailedError) Unwrap() error { return e.Err }

// ValidationError lists the fields missing or malformed before any store
// call was attempted.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "invalid or missing fields: " + strings.Join(e.Fields, ", ")
}
