package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/event-feed/internal/docstore"
	"github.com/Shivanand-hulikatti/event-feed/internal/metrics"
	"github.com/Shivanand-hulikatti/event-feed/internal/model"
	"github.com/Shivanand-hulikatti/event-feed/internal/repository"
)

// Register records one attendee for an event.
//
// The normalized email (lower-cased, trimmed) is the registration key, so
// addresses that differ only in case or padding collide. The existence
// check and the write are a single conditional create in the store, and
// the attendee counter is bumped with the store's atomic increment, so
// concurrent registrations neither duplicate a key nor lose a count.
//
// A failed increment does not undo the registration document; the counter
// then trails the registrations by one.
func (s *EventService) Register(ctx context.Context, eventID string, req model.RegisterRequest) (conf *model.Confirmation, err error) {
	ctx, span := tracer.Start(ctx, "EventService.Register", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	outcome := metrics.OutcomeSuccess
	defer func() {
		s.metrics.Registrations.WithLabelValues(outcome).Inc()
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	name := strings.TrimSpace(req.Name)
	key := model.NormalizeEmail(req.Email)
	span.SetAttributes(attribute.String("event.id", eventID))

	if err := s.validate.Struct(model.RegisterRequest{Name: name, Email: key}); err != nil {
		outcome = metrics.OutcomeInvalid
		return nil, err
	}
	if eventID == "" {
		outcome = metrics.OutcomeInvalid
		return nil, &ValidationError{Fields: []string{"eventId"}}
	}

	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			outcome = metrics.OutcomeNotFound
			return nil, ErrEventNotFound
		}
		outcome, err = s.writeFault(err)
		return nil, err
	}

	registeredAt := s.opts.Now().UnixMilli()
	err = s.registrations.Create(ctx, eventID, key, model.Registration{
		Name:         name,
		Email:        key,
		RegisteredAt: registeredAt,
	})
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyRegistered) {
			outcome = metrics.OutcomeDuplicate
			return nil, &DuplicateRegistrationError{Email: req.Email}
		}
		outcome, err = s.writeFault(err)
		return nil, err
	}

	count, err := s.events.IncrementAttendees(ctx, eventID)
	if err != nil {
		s.log.Warn("registration stored but attendee count not incremented",
			zap.String("event_id", eventID), zap.String("email", key), zap.Error(err))
		outcome, err = s.writeFault(err)
		return nil, err
	}

	conf = &model.Confirmation{
		EventID:               eventID,
		EventTitle:            event.Title,
		Name:                  req.Name,
		Email:                 req.Email,
		RegisteredAt:          registeredAt,
		NotificationSimulated: true,
		Message: fmt.Sprintf("Thanks %s, you are registered for %s. A confirmation email to %s was simulated; no email was sent.",
			name, event.Title, strings.TrimSpace(req.Email)),
	}
	if nerr := s.notifier.Notify(ctx, *conf); nerr != nil {
		s.log.Warn("confirmation notification failed", zap.String("event_id", eventID), zap.Error(nerr))
	}

	s.log.Info("registration created",
		zap.String("event_id", eventID), zap.String("email", key), zap.Int64("attendee_count", count))
	return conf, nil
}

// writeFault classifies a store error met during the registration steps.
func (s *EventService) writeFault(err error) (string, error) {
	if docstore.IsUnavailable(err) {
		return metrics.OutcomeUnavailable, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return metrics.OutcomeFailed, &RegistrationFailedError{Err: err}
}
