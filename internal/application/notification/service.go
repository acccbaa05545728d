package notification

import (
	"github.com/rs/zerolog"

	domain "github.com/aet-hub/aet-hub/internal/domain/notification"
)

// Service implements domain.Publisher on top of a connection hub.
type Service struct {
	hub    domain.Hub
	logger zerolog.Logger
}

// NewService creates a notification service.
func NewService(hub domain.Hub, logger zerolog.Logger) *Service {
	return &Service{
		hub:    hub,
		logger: logger.With().Str("service", "notification").Logger(),
	}
}

// Publish serializes and broadcasts an event. Failures are logged, never returned.
func (s *Service) Publish(eventType domain.EventType, data any) {
	if s == nil || s.hub == nil {
		return
	}
	msg, err := domain.NewMessage(eventType, data)
	if err != nil {
		s.logger.Error().Err(err).Str("event", string(eventType)).Msg("failed to encode event")
		return
	}
	s.hub.Broadcast(msg)
	s.logger.Debug().Str("event", string(eventType)).Int("clients", s.hub.ClientCount()).Msg("event broadcast")
}
