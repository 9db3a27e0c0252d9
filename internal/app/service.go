/**
 * @description
 * This file contains the core of the rewards service. The `Service` struct owns the
 * ledger and approval workflow: users submit mission completions and request withdrawals,
 * administrators review them, and every balance change happens inside the same store
 * transaction as the status change that causes it.
 *
 * Key features:
 * - Authorizes every operation against the calling `domain.Actor`.
 * - Translates store errors into the workflow error taxonomy exactly once.
 * - Publishes a ledger event after each successful transition. Publishing is best effort
 *   and never fails the operation that triggered it.
 * - Applies per-user rate limits to submissions and withdrawal requests when a limiter
 *   is configured.
 *
 * @dependencies
 * - context, log/slog, strings, time: Standard Go libraries.
 * - github.com/google/uuid: For identifier generation.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For event publishing.
 */

package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ivanValieri/din-cash/internal/domain"
	"github.com/ivanValieri/din-cash/internal/store"
	"github.com/ivanValieri/din-cash/pkg/rabbitmq"
)

const (
	EventsExchange = "dincash.events"

	RoutingKeyCompletionSubmitted = "mission.completion.submitted"
	RoutingKeyCompletionApproved  = "mission.completion.approved"
	RoutingKeyCompletionRejected  = "mission.completion.rejected"
	RoutingKeyWithdrawalRequested = "withdrawal.requested"
	RoutingKeyWithdrawalApproved  = "withdrawal.approved"
	RoutingKeyWithdrawalRejected  = "withdrawal.rejected"
	RoutingKeyDriftDetected       = "ledger.drift_detected"
	RoutingKeyUserCreated         = "identity.user.created"

	DefaultMinWithdrawal = 2000 // 20 BRL in centavos

	rateLimitScopeSubmission = "mission_submission"
	rateLimitScopeWithdrawal = "withdrawal_request"
	rateLimitWindow          = time.Minute
	publishTimeout           = 5 * time.Second
)

// Options tunes the workflow.
type Options struct {
	MinWithdrawal            int64
	AdminContacts            []string
	SubmissionLimitPerMinute int
	WithdrawalLimitPerMinute int
}

// Service provides the ledger and approval workflow.
type Service struct {
	repo      store.Repository
	publisher rabbitmq.Publisher
	limiter   RateLimiter
	logger    *slog.Logger
	opts      Options
	admins    map[string]struct{}
	newID     func() uuid.UUID
}

// NewService creates a new rewards service. A nil publisher or limiter disables that
// concern.
func NewService(repo store.Repository, publisher rabbitmq.Publisher, limiter RateLimiter, logger *slog.Logger, opts Options) *Service {
	if publisher == nil {
		publisher = &rabbitmq.EventProducerFallback{Logger: logger}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MinWithdrawal <= 0 {
		opts.MinWithdrawal = DefaultMinWithdrawal
	}

	admins := make(map[string]struct{}, len(opts.AdminContacts))
	for _, contact := range opts.AdminContacts {
		if normalized := normalizeContact(contact); normalized != "" {
			admins[normalized] = struct{}{}
		}
	}

	return &Service{
		repo:      repo,
		publisher: publisher,
		limiter:   limiter,
		logger:    logger.With("component", "ledger"),
		opts:      opts,
		admins:    admins,
		newID:     uuid.New,
	}
}

// MinWithdrawal returns the smallest withdrawal amount accepted, in cents.
func (s *Service) MinWithdrawal() int64 {
	return s.opts.MinWithdrawal
}

// Ping reports whether the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.repo.Ping(ctx); err != nil {
		return translateStoreError("ping", err)
	}
	return nil
}

func requireAuthenticated(actor domain.Actor) error {
	if actor.IsZero() {
		return ErrUnauthenticated
	}
	return nil
}

func requireSelf(actor domain.Actor, userID uuid.UUID) error {
	if actor.IsZero() {
		return ErrUnauthenticated
	}
	if actor.UserID != userID {
		return ErrUnauthorized
	}
	return nil
}

func requireAdmin(actor domain.Actor) error {
	if actor.IsZero() {
		return ErrUnauthenticated
	}
	if !actor.IsAdmin {
		return ErrUnauthorized
	}
	return nil
}

func normalizeContact(contact string) string {
	return strings.ToLower(strings.TrimSpace(contact))
}

func (s *Service) isAdminContact(contact string) bool {
	_, ok := s.admins[normalizeContact(contact)]
	return ok
}

// ResolveActor maps an authenticated identity onto a DinCash user, creating the user on
// first sight.
func (s *Service) ResolveActor(ctx context.Context, identity domain.Identity) (*domain.User, error) {
	subject := strings.TrimSpace(identity.Subject)
	if subject == "" {
		return nil, ErrUnauthenticated
	}

	user, err := s.repo.FindUserBySubject(ctx, subject)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, store.ErrUserNotFound) {
		return nil, translateStoreError("resolve actor", err)
	}
	return s.ProvisionUser(ctx, identity)
}

// ProvisionUser creates the user for an identity. It is idempotent on the subject.
func (s *Service) ProvisionUser(ctx context.Context, identity domain.Identity) (*domain.User, error) {
	subject := strings.TrimSpace(identity.Subject)
	if subject == "" {
		return nil, validationError("identity subject is required")
	}
	contact := strings.TrimSpace(identity.Contact)
	name := strings.TrimSpace(identity.Name)
	if name == "" {
		name = contact
	}

	user, err := s.repo.CreateUser(ctx, &domain.User{
		ID:          s.newID(),
		AuthSubject: subject,
		Name:        name,
		Contact:     contact,
		IsAdmin:     s.isAdminContact(contact),
	})
	if err != nil {
		return nil, translateStoreError("provision user", err)
	}
	s.logger.Info("user provisioned", "user_id", user.ID, "is_admin", user.IsAdmin)
	return user, nil
}

// GetUser returns a user's profile and balances. Users may read themselves; admins may
// read anyone.
func (s *Service) GetUser(ctx context.Context, actor domain.Actor, userID uuid.UUID) (*domain.User, error) {
	if err := requireAuthenticated(actor); err != nil {
		return nil, err
	}
	if actor.UserID != userID && !actor.IsAdmin {
		return nil, ErrUnauthorized
	}
	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		return nil, translateStoreError("get user", err)
	}
	return user, nil
}

func (s *Service) consumeRateLimit(ctx context.Context, scope string, userID uuid.UUID, limit int) error {
	if s.limiter == nil || limit <= 0 {
		return nil
	}
	count, retryAfter, err := s.limiter.ConsumeRateLimit(ctx, scope, userID.String(), limit, rateLimitWindow)
	if err != nil {
		// Fail open when Redis is unreachable.
		s.logger.Warn("rate limiter unavailable; allowing request", "scope", scope, "user_id", userID, "error", err)
		return nil
	}
	if count > limit {
		return &RateLimitError{Scope: scope, RetryAfterSeconds: retryAfter}
	}
	return nil
}

func (s *Service) publish(routingKey string, payload interface{}) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(ctx, EventsExchange, routingKey, payload); err != nil {
		s.logger.Warn("event publish failed", "routing_key", routingKey, "error", err)
	}
}
