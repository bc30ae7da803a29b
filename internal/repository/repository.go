// Package repository maps the domain types onto documents in the document
// store. It is the only layer that knows collection paths and field names.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Shivanand-hulikatti/event-feed/internal/docstore"
	"github.com/Shivanand-hulikatti/event-feed/internal/model"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = docstore.ErrNotFound

// ErrAlreadyRegistered is returned when the registration key is taken.
var ErrAlreadyRegistered = errors.New("email already registered for this event")

// ErrAccountExists is returned when an account email is taken.
var ErrAccountExists = errors.New("account already exists")

// Stored field names.
const (
	FieldTitle         = "title"
	FieldDescription   = "description"
	FieldPhotoURL      = "photoUrl"
	FieldDate          = "date"
	FieldTime          = "time"
	FieldCreatedAt     = "createdAt"
	FieldCreatedBy     = "createdBy"
	FieldAttendeeCount = "attendeeCount"

	FieldName         = "name"
	FieldEmail        = "email"
	FieldRegisteredAt = "registeredAt"

	FieldUID          = "uid"
	FieldPasswordHash = "passwordHash"
)

// Collections resolves collection paths inside one namespace.
type Collections struct {
	Namespace string
}

func (c Collections) Events() string {
	return docstore.Path("apps", c.Namespace, "events")
}

func (c Collections) Registrations(eventID string) string {
	return docstore.Path(c.Events(), eventID, "registrations")
}

func (c Collections) Accounts() string {
	return docstore.Path("apps", c.Namespace, "accounts")
}

// EventRepository handles persistence for events.
type EventRepository struct {
	db    docstore.Store
	colls Collections
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(db docstore.Store, colls Collections) *EventRepository {
	return &EventRepository{db: db, colls: colls}
}

// Create stores a new event and returns its generated id.
func (r *EventRepository) Create(ctx context.Context, e model.Event) (string, error) {
	id, err := r.db.Add(ctx, r.colls.Events(), eventFields(e))
	if err != nil {
		return "", fmt.Errorf("insert event: %w", err)
	}
	return id, nil
}

// List returns all events ordered by date ascending.
func (r *EventRepository) List(ctx context.Context) ([]model.Event, error) {
	docs, err := r.db.Query(ctx, r.listQuery())
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return toEvents(docs), nil
}

// GetByID returns a single event or ErrNotFound.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*model.Event, error) {
	doc, err := r.db.Get(ctx, docstore.Doc(r.colls.Events(), id))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	e := toEvent(*doc)
	return &e, nil
}

// IncrementAttendees atomically adds one to the attendee counter and
// returns the new value.
func (r *EventRepository) IncrementAttendees(ctx context.Context, id string) (int64, error) {
	n, err := r.db.Increment(ctx, docstore.Doc(r.colls.Events(), id), FieldAttendeeCount, 1)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("increment %s: %w", FieldAttendeeCount, err)
	}
	return n, nil
}

// Watch calls fn with every event, ordered by date, now and after each
// change to the events collection.
func (r *EventRepository) Watch(ctx context.Context, fn func([]model.Event, error)) (docstore.Subscription, error) {
	sub, err := r.db.Subscribe(ctx, r.listQuery(), func(snap docstore.Snapshot) {
		if snap.Err != nil {
			fn(nil, fmt.Errorf("event snapshot: %w", snap.Err))
			return
		}
		fn(toEvents(snap.Docs), nil)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe events: %w", err)
	}
	return sub, nil
}

func (r *EventRepository) listQuery() docstore.Query {
	return docstore.Query{Collection: r.colls.Events(), OrderBy: FieldDate}
}

func eventFields(e model.Event) docstore.Fields {
	return docstore.Fields{
		FieldTitle:         e.Title,
		FieldDescription:   e.Description,
		FieldPhotoURL:      e.PhotoURL,
		FieldDate:          e.Date,
		FieldTime:          e.Time,
		FieldCreatedAt:     e.CreatedAt,
		FieldCreatedBy:     e.CreatedBy,
		FieldAttendeeCount: e.AttendeeCount,
	}
}

func toEvent(doc docstore.Document) model.Event {
	f := doc.Fields
	return model.Event{
		ID:            doc.Ref.ID,
		Title:         f.String(FieldTitle),
		Description:   f.String(FieldDescription),
		PhotoURL:      f.String(FieldPhotoURL),
		Date:          f.String(FieldDate),
		Time:          f.String(FieldTime),
		CreatedAt:     f.Int(FieldCreatedAt),
		CreatedBy:     f.String(FieldCreatedBy),
		AttendeeCount: f.Int(FieldAttendeeCount),
	}
}

func toEvents(docs []docstore.Document) []model.Event {
	events := make([]model.Event, 0, len(docs))
	for _, d := range docs {
		events = append(events, toEvent(d))
	}
	return events
}

// RegistrationRepository handles persistence for registrations.
type RegistrationRepository struct {
	db    docstore.Store
	colls Collections
}

// NewRegistrationRepository constructs a RegistrationRepository.
func NewRegistrationRepository(db docstore.Store, colls Collections) *RegistrationRepository {
	return &RegistrationRepository{db: db, colls: colls}
}

// Create stores reg under key in the event's registrations, failing with
// ErrAlreadyRegistered when the key exists. The store performs the existence
// check and the write as one operation.
func (r *RegistrationRepository) Create(ctx context.Context, eventID, key string, reg model.Registration) error {
	err := r.db.Create(ctx, docstore.Doc(r.colls.Registrations(eventID), key), docstore.Fields{
		FieldName:         reg.Name,
		FieldEmail:        reg.Email,
		FieldRegisteredAt: reg.RegisteredAt,
	})
	if err != nil {
		if errors.Is(err, docstore.ErrAlreadyExists) {
			return ErrAlreadyRegistered
		}
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

// Get returns the registration stored under key or ErrNotFound.
func (r *RegistrationRepository) Get(ctx context.Context, eventID, key string) (*model.Registration, error) {
	doc, err := r.db.Get(ctx, docstore.Doc(r.colls.Registrations(eventID), key))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}
	reg := toRegistration(*doc)
	return &reg, nil
}

// ListByEvent returns all registrations for a given event, oldest first.
func (r *RegistrationRepository) ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	docs, err := r.db.Query(ctx, docstore.Query{
		Collection: r.colls.Registrations(eventID),
		OrderBy:    FieldRegisteredAt,
	})
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	regs := make([]model.Registration, 0, len(docs))
	for _, d := range docs {
		regs = append(regs, toRegistration(d))
	}
	return regs, nil
}

func toRegistration(doc docstore.Document) model.Registration {
	return model.Registration{
		Name:         doc.Fields.String(FieldName),
		Email:        doc.Fields.String(FieldEmail),
		RegisteredAt: doc.Fields.Int(FieldRegisteredAt),
	}
}

// AccountRepository persists credentialed accounts keyed by normalized email.
type AccountRepository struct {
	db    docstore.Store
	colls Collections
}

// NewAccountRepository constructs an AccountRepository.
func NewAccountRepository(db docstore.Store, colls Collections) *AccountRepository {
	return &AccountRepository{db: db, colls: colls}
}

// Create stores a, failing with ErrAccountExists when the email is taken.
func (r *AccountRepository) Create(ctx context.Context, a model.Account) error {
	err := r.db.Create(ctx, docstore.Doc(r.colls.Accounts(), a.Email), docstore.Fields{
		FieldUID:          a.UID,
		FieldEmail:        a.Email,
		FieldPasswordHash: a.PasswordHash,
		FieldCreatedAt:    a.CreatedAt,
	})
	if err != nil {
		if errors.Is(err, docstore.ErrAlreadyExists) {
			return ErrAccountExists
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// Get returns the account for email or ErrNotFound.
func (r *AccountRepository) Get(ctx context.Context, email string) (*model.Account, error) {
	doc, err := r.db.Get(ctx, docstore.Doc(r.colls.Accounts(), email))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &model.Account{
		UID:          doc.Fields.String(FieldUID),
		Email:        doc.Fields.String(FieldEmail),
		PasswordHash: doc.Fields.String(FieldPasswordHash),
		CreatedAt:    doc.Fields.Int(FieldCreatedAt),
	}, nil
}
