// Package service implements business logic, validation, and orchestration
// between HTTP handlers and the repository layer.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/event-feed/internal/docstore"
	"github.com/Shivanand-hulikatti/event-feed/internal/metrics"
	"github.com/Shivanand-hulikatti/event-feed/internal/model"
	"github.com/Shivanand-hulikatti/event-feed/internal/repository"
)

var tracer = otel.Tracer("github.com/Shivanand-hulikatti/event-feed/internal/service")

// Authorizer decides who may publish events and read registrations.
type Authorizer interface {
	IsAdmin(id model.Identity) bool
}

// Options holds the tunables of EventService and Feed.
type Options struct {
	// PlaceholderPhoto replaces a blank photo URL on new events.
	PlaceholderPhoto string
	// Now defaults to time.Now.
	Now func() time.Time
	// Location is where "today" is computed for the upcoming filter.
	// Defaults to time.Local.
	Location *time.Location
}

func (o *Options) defaults() {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Location == nil {
		o.Location = time.Local
	}
}

// EventService orchestrates event-related business operations.
type EventService struct {
	events        *repository.EventRepository
	registrations *repository.RegistrationRepository
	auth          Authorizer
	notifier      Notifier
	validate      *Validator
	metrics       *metrics.Metrics
	log           *zap.Logger
	opts          Options
}

// NewEventService constructs an EventService with its dependencies.
func NewEventService(
	events *repository.EventRepository,
	registrations *repository.RegistrationRepository,
	auth Authorizer,
	notifier Notifier,
	m *metrics.Metrics,
	log *zap.Logger,
	opts Options,
) *EventService {
	opts.defaults()
	return &EventService{
		events:        events,
		registrations: registrations,
		auth:          auth,
		notifier:      notifier,
		validate:      NewValidator(),
		metrics:       m,
		log:           log,
		opts:          opts,
	}
}

// CreateEvent validates the request and stores a new event with an
// attendee count of zero. Only administrators may publish.
func (s *EventService) CreateEvent(ctx context.Context, who model.Identity, req model.CreateEventRequest) (*model.Event, error) {
	ctx, span := tracer.Start(ctx, "EventService.CreateEvent")
	defer span.End()

	if !s.auth.IsAdmin(who) {
		return nil, ErrForbidden
	}

	req.Title = strings.TrimSpace(req.Title)
	req.Description = strings.TrimSpace(req.Description)
	req.PhotoURL = strings.TrimSpace(req.PhotoURL)
	req.Date = strings.TrimSpace(req.Date)
	req.Time = strings.TrimSpace(req.Time)
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	if req.PhotoURL == "" {
		req.PhotoURL = s.opts.PlaceholderPhoto
	}

	event := model.Event{
		Title:         req.Title,
		Description:   req.Description,
		PhotoURL:      req.PhotoURL,
		Date:          req.Date,
		Time:          req.Time,
		CreatedAt:     s.opts.Now().UnixMilli(),
		CreatedBy:     who.UID,
		AttendeeCount: 0,
	}
	id, err := s.events.Create(ctx, event)
	if err != nil {
		span.RecordError(err)
		return nil, storeErr(err)
	}
	event.ID = id

	s.metrics.EventsCreated.Inc()
	s.log.Info("event created",
		zap.String("event_id", id), zap.String("title", event.Title), zap.String("created_by", who.UID))
	return &event, nil
}

// GetEvent returns a single event by ID.
func (s *EventService) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	if id == "" {
		return nil, &ValidationError{Fields: []string{"id"}}
	}
	event, err := s.events.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, storeErr(err)
	}
	return event, nil
}

// ListUpcoming returns the events dated today or later, by date.
func (s *EventService) ListUpcoming(ctx context.Context) ([]model.Event, error) {
	events, err := s.events.List(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	return FilterUpcoming(events, s.opts.Now(), s.opts.Location), nil
}

// ListRegistrations returns all registrations for an event. Only
// administrators may read them.
func (s *EventService) ListRegistrations(ctx context.Context, who model.Identity, eventID string) ([]model.Registration, error) {
	if !s.auth.IsAdmin(who) {
		return nil, ErrForbidden
	}
	if _, err := s.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	regs, err := s.registrations.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, storeErr(err)
	}
	return regs, nil
}

// storeErr maps connectivity faults onto ErrStoreUnavailable and leaves
// every other error as is.
func storeErr(err error) error {
	if docstore.IsUnavailable(err) {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return err
}
