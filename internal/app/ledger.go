package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ivanValieri/din-cash/internal/domain"
)

// SubmitMissionCompletion records that a user claims to have finished a mission. The
// completion always starts pending; no balance moves until an admin approves it.
func (s *Service) SubmitMissionCompletion(ctx context.Context, actor domain.Actor, userID, missionID uuid.UUID) (*domain.MissionCompletion, error) {
	if err := requireSelf(actor, userID); err != nil {
		return nil, err
	}
	if err := s.consumeRateLimit(ctx, rateLimitScopeSubmission, userID, s.opts.SubmissionLimitPerMinute); err != nil {
		return nil, err
	}

	if _, err := s.repo.FindUserByID(ctx, userID); err != nil {
		return nil, translateStoreError("submit completion", err)
	}
	mission, err := s.repo.FindMissionByID(ctx, missionID)
	if err != nil {
		return nil, translateStoreError("submit completion", err)
	}
	if mission.DeletedAt != nil {
		return nil, fmt.Errorf("submit completion: %w: mission %s was deleted", ErrNotFound, missionID)
	}

	completion := &domain.MissionCompletion{
		ID:        s.newID(),
		UserID:    userID,
		MissionID: missionID,
		Status:    domain.CompletionPending,
	}
	if err := s.repo.CreateCompletion(ctx, completion); err != nil {
		return nil, translateStoreError("submit completion", err)
	}

	s.logger.Info("mission completion submitted", "completion_id", completion.ID, "user_id", userID, "mission_id", missionID)
	s.publishCompletion(RoutingKeyCompletionSubmitted, completion, mission.Reward)
	return completion, nil
}

// ApproveMissionCompletion moves a pending completion to completed and credits the
// mission reward in one atomic step. A second approval fails with ErrInvalidState.
func (s *Service) ApproveMissionCompletion(ctx context.Context, actor domain.Actor, completionID uuid.UUID) (*domain.MissionCompletion, error) {
	return s.reviewCompletion(ctx, actor, completionID, domain.CompletionCompleted, RoutingKeyCompletionApproved)
}

// RejectMissionCompletion moves a pending completion to rejected. The balance is untouched.
func (s *Service) RejectMissionCompletion(ctx context.Context, actor domain.Actor, completionID uuid.UUID) (*domain.MissionCompletion, error) {
	return s.reviewCompletion(ctx, actor, completionID, domain.CompletionRejected, RoutingKeyCompletionRejected)
}

func (s *Service) reviewCompletion(ctx context.Context, actor domain.Actor, completionID uuid.UUID, to domain.CompletionStatus, routingKey string) (*domain.MissionCompletion, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	completion, err := s.repo.TransitionCompletion(ctx, completionID, to)
	if err != nil {
		return nil, translateStoreError("review completion", err)
	}

	var reward int64
	if mission, err := s.repo.FindMissionByID(ctx, completion.MissionID); err == nil {
		reward = mission.Reward
	}
	s.logger.Info("mission completion reviewed",
		"completion_id", completion.ID,
		"user_id", completion.UserID,
		"status", completion.Status,
		"reviewer_id", actor.UserID,
	)
	s.publishCompletion(routingKey, completion, reward)
	return completion, nil
}

// RequestWithdrawal creates a pending withdrawal and reserves its amount so overlapping
// requests can never exceed the balance.
func (s *Service) RequestWithdrawal(ctx context.Context, actor domain.Actor, userID uuid.UUID, amount int64) (*domain.Withdrawal, error) {
	if err := requireSelf(actor, userID); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, validationError("amount must be positive")
	}
	if amount < s.opts.MinWithdrawal {
		return nil, validationError("amount %d is below the minimum withdrawal of %d", amount, s.opts.MinWithdrawal)
	}
	if err := s.consumeRateLimit(ctx, rateLimitScopeWithdrawal, userID, s.opts.WithdrawalLimitPerMinute); err != nil {
		return nil, err
	}

	withdrawal := &domain.Withdrawal{
		ID:     s.newID(),
		UserID: userID,
		Amount: amount,
		Status: domain.WithdrawalPending,
	}
	if err := s.repo.CreateWithdrawal(ctx, withdrawal); err != nil {
		return nil, translateStoreError("request withdrawal", err)
	}

	s.logger.Info("withdrawal requested", "withdrawal_id", withdrawal.ID, "user_id", userID, "amount", amount)
	s.publishWithdrawal(RoutingKeyWithdrawalRequested, withdrawal)
	return withdrawal, nil
}

// ApproveWithdrawal debits the balance and marks the withdrawal approved. The balance is
// re-validated at approval time.
func (s *Service) ApproveWithdrawal(ctx context.Context, actor domain.Actor, withdrawalID uuid.UUID) (*domain.Withdrawal, error) {
	return s.reviewWithdrawal(ctx, actor, withdrawalID, domain.WithdrawalApproved, RoutingKeyWithdrawalApproved)
}

// RejectWithdrawal releases the reservation and marks the withdrawal rejected.
func (s *Service) RejectWithdrawal(ctx context.Context, actor domain.Actor, withdrawalID uuid.UUID) (*domain.Withdrawal, error) {
	return s.reviewWithdrawal(ctx, actor, withdrawalID, domain.WithdrawalRejected, RoutingKeyWithdrawalRejected)
}

func (s *Service) reviewWithdrawal(ctx context.Context, actor domain.Actor, withdrawalID uuid.UUID, to domain.WithdrawalStatus, routingKey string) (*domain.Withdrawal, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	withdrawal, err := s.repo.TransitionWithdrawal(ctx, withdrawalID, to)
	if err != nil {
		return nil, translateStoreError("review withdrawal", err)
	}

	s.logger.Info("withdrawal reviewed",
		"withdrawal_id", withdrawal.ID,
		"user_id", withdrawal.UserID,
		"status", withdrawal.Status,
		"amount", withdrawal.Amount,
		"reviewer_id", actor.UserID,
	)
	s.publishWithdrawal(routingKey, withdrawal)
	return withdrawal, nil
}

func (s *Service) publishCompletion(routingKey string, completion *domain.MissionCompletion, reward int64) {
	missionID := completion.MissionID
	s.publish(routingKey, domain.LedgerEvent{
		UserID:    completion.UserID,
		EntityID:  completion.ID,
		MissionID: &missionID,
		Amount:    reward,
		Status:    string(completion.Status),
		Timestamp: time.Now().UTC(),
	})
}

func (s *Service) publishWithdrawal(routingKey string, withdrawal *domain.Withdrawal) {
	s.publish(routingKey, domain.LedgerEvent{
		UserID:    withdrawal.UserID,
		EntityID:  withdrawal.ID,
		Amount:    withdrawal.Amount,
		Status:    string(withdrawal.Status),
		Timestamp: time.Now().UTC(),
	})
}
