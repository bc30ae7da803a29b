// Package model defines the core domain types for event publishing and
// registration.
package model

import (
	"strings"
	"time"
)

// DateLayout and TimeLayout are the stored formats of Event.Date and Event.Time.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Event is a published event. AttendeeCount only ever grows, by one per
// successful registration.
type Event struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	PhotoURL      string `json:"photoUrl"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	CreatedAt     int64  `json:"createdAt"`
	CreatedBy     string `json:"createdBy"`
	AttendeeCount int64  `json:"attendeeCount"`
}

// Day parses Date as a calendar day in loc.
func (e *Event) Day(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout, e.Date, loc)
}

// Registration is one attendee of one event, keyed by normalized email.
type Registration struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	RegisteredAt int64  `json:"registeredAt"`
}

// Confirmation is returned to the registrant. Name and Email are echoed as
// typed, not normalized. The notification email is never actually sent.
type Confirmation struct {
	EventID               string `json:"eventId"`
	EventTitle            string `json:"eventTitle"`
	Name                  string `json:"name"`
	Email                 string `json:"email"`
	RegisteredAt          int64  `json:"registeredAt"`
	NotificationSimulated bool   `json:"notificationSimulated"`
	Message               string `json:"message"`
}

// Identity is the session holder as issued by the identity provider.
type Identity struct {
	UID       string `json:"uid"`
	Anonymous bool   `json:"anonymous"`
	Email     string `json:"email,omitempty"`
}

// CreateEventRequest is the payload for creating a new event. Time and
// PhotoURL are free text; Date must parse so the feed can filter on it.
type CreateEventRequest struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description" validate:"required"`
	PhotoURL    string `json:"photoUrl"`
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
	Time        string `json:"time" validate:"required"`
}

// RegisterRequest is the payload for registering for an event.
type RegisterRequest struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
}

// CredentialsRequest is the payload for sign in and sign up.
type CredentialsRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// TokenRequest is the payload for signing in with an existing token.
type TokenRequest struct {
	Token string `json:"token"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}

// Account is a credentialed identity as persisted by the identity provider.
type Account struct {
	UID          string
	Email        string
	PasswordHash string
	CreatedAt    int64
}

// NormalizeEmail lower-cases and trims email. Two addresses that differ only
// in case or surrounding whitespace normalize to the same key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
