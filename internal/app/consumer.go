package app

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/ivanValieri/din-cash/internal/domain"
)

// IdentityEventConsumer provisions users announced by the identity provider.
type IdentityEventConsumer struct {
	service *Service
}

func NewIdentityEventConsumer(service *Service) *IdentityEventConsumer {
	return &IdentityEventConsumer{service: service}
}

// HandleUserCreated processes one identity.user.created message. Returning false asks
// the broker to redeliver.
func (c *IdentityEventConsumer) HandleUserCreated(body []byte) bool {
	logger := c.service.logger.With("consumer", "identity_events")

	var event domain.UserCreatedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		logger.Error("failed to unmarshal user created event", "error", err)
		return true
	}
	if strings.TrimSpace(event.Subject) == "" {
		logger.Warn("user created event without subject; dropping")
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if _, err := c.service.ProvisionUser(ctx, IdentityFromEvent(event)); err != nil {
		if errors.Is(err, ErrValidation) {
			logger.Warn("invalid user created event; dropping", "subject", event.Subject, "error", err)
			return true
		}
		logger.Error("failed to provision user", "subject", event.Subject, "error", err)
		return false
	}
	return true
}

// IdentityFromEvent prefers the e-mail as contact and falls back to the phone number.
func IdentityFromEvent(event domain.UserCreatedEvent) domain.Identity {
	contact := strings.TrimSpace(event.Email)
	if contact == "" {
		contact = strings.TrimSpace(event.Phone)
	}
	return domain.Identity{
		Subject: strings.TrimSpace(event.Subject),
		Name:    strings.TrimSpace(event.Name),
		Contact: contact,
	}
}
