package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/event-feed/internal/model"
)

// Notifier tells a registrant about a successful registration.
type Notifier interface {
	Notify(ctx context.Context, c model.Confirmation) error
}

// SimulatedNotifier logs the confirmation email instead of sending it.
type SimulatedNotifier struct {
	log *zap.Logger
}

func NewSimulatedNotifier(log *zap.Logger) *SimulatedNotifier {
	return &SimulatedNotifier{log: log}
}

func (n *SimulatedNotifier) Notify(ctx context.Context, c model.Confirmation) error {
	n.log.Info("simulated confirmation email",
		zap.String("to", c.Email),
		zap.String("event_id", c.EventID),
		zap.String("event_title", c.EventTitle),
	)
	return nil
}
