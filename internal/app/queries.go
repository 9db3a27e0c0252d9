package app

import (
	"context"

	"github.com/google/uuid"
	"github.com/ivanValieri/din-cash/internal/domain"
)

// ListMissions returns the active catalogue.
func (s *Service) ListMissions(ctx context.Context, actor domain.Actor) ([]domain.Mission, error) {
	if err := requireAuthenticated(actor); err != nil {
		return nil, err
	}
	missions, err := s.repo.ListMissions(ctx)
	if err != nil {
		return nil, translateStoreError("list missions", err)
	}
	return missions, nil
}

// ListAvailableMissions returns the missions a user can still submit.
func (s *Service) ListAvailableMissions(ctx context.Context, actor domain.Actor, userID uuid.UUID) ([]domain.Mission, error) {
	if err := requireSelf(actor, userID); err != nil {
		return nil, err
	}
	missions, err := s.repo.ListAvailableMissions(ctx, userID)
	if err != nil {
		return nil, translateStoreError("list available missions", err)
	}
	return missions, nil
}

// ListUserCompletions returns a user's completions, optionally filtered by status.
func (s *Service) ListUserCompletions(ctx context.Context, actor domain.Actor, userID uuid.UUID, status *domain.CompletionStatus) ([]domain.MissionCompletion, error) {
	if err := requireSelf(actor, userID); err != nil {
		return nil, err
	}
	if status != nil && !status.Valid() {
		return nil, validationError("unknown completion status %q", *status)
	}
	completions, err := s.repo.ListCompletionsByUser(ctx, userID, status)
	if err != nil {
		return nil, translateStoreError("list completions", err)
	}
	return completions, nil
}

// ListUserWithdrawals returns a user's withdrawals, optionally filtered by status.
func (s *Service) ListUserWithdrawals(ctx context.Context, actor domain.Actor, userID uuid.UUID, status *domain.WithdrawalStatus) ([]domain.Withdrawal, error) {
	if err := requireSelf(actor, userID); err != nil {
		return nil, err
	}
	if status != nil && !status.Valid() {
		return nil, validationError("unknown withdrawal status %q", *status)
	}
	withdrawals, err := s.repo.ListWithdrawalsByUser(ctx, userID, status)
	if err != nil {
		return nil, translateStoreError("list withdrawals", err)
	}
	return withdrawals, nil
}

// ListPendingCompletions returns the admin review queue for completions.
func (s *Service) ListPendingCompletions(ctx context.Context, actor domain.Actor) ([]domain.CompletionView, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	views, err := s.repo.ListPendingCompletions(ctx)
	if err != nil {
		return nil, translateStoreError("list pending completions", err)
	}
	return views, nil
}

// ListPendingWithdrawals returns the admin review queue for withdrawals.
func (s *Service) ListPendingWithdrawals(ctx context.Context, actor domain.Actor) ([]domain.WithdrawalView, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	views, err := s.repo.ListPendingWithdrawals(ctx)
	if err != nil {
		return nil, translateStoreError("list pending withdrawals", err)
	}
	return views, nil
}
