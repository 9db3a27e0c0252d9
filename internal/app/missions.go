package app

import (
	"context"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/ivanValieri/din-cash/internal/domain"
)

// CreateMission adds a mission to the catalogue.
func (s *Service) CreateMission(ctx context.Context, actor domain.Actor, req domain.CreateMissionRequest) (*domain.Mission, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	mission, err := s.buildMission(req)
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateMission(ctx, mission); err != nil {
		return nil, translateStoreError("create mission", err)
	}
	s.logger.Info("mission created", "mission_id", mission.ID, "reward", mission.Reward, "admin_id", actor.UserID)
	return mission, nil
}

func (s *Service) buildMission(req domain.CreateMissionRequest) (*domain.Mission, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, validationError("title is required")
	}
	if req.Reward <= 0 {
		return nil, validationError("reward must be positive")
	}

	var link *string
	if req.URL != nil {
		trimmed := strings.TrimSpace(*req.URL)
		if trimmed != "" {
			parsed, err := url.Parse(trimmed)
			if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
				return nil, validationError("url must be an absolute http(s) address")
			}
			link = &trimmed
		}
	}

	return &domain.Mission{
		ID:               s.newID(),
		Title:            title,
		Description:      strings.TrimSpace(req.Description),
		Reward:           req.Reward,
		URL:              link,
		FixedForNewUsers: req.FixedForNewUsers,
	}, nil
}

// DeleteMission retires a mission. Completions still waiting on it are rejected in the
// same unit of work; completed ones keep counting toward balances.
func (s *Service) DeleteMission(ctx context.Context, actor domain.Actor, missionID uuid.UUID) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	rejected, err := s.repo.DeleteMission(ctx, missionID)
	if err != nil {
		return translateStoreError("delete mission", err)
	}
	s.logger.Info("mission deleted", "mission_id", missionID, "rejected_completions", len(rejected), "admin_id", actor.UserID)

	var reward int64
	if len(rejected) > 0 {
		if mission, err := s.repo.FindMissionByID(ctx, missionID); err == nil {
			reward = mission.Reward
		}
	}
	for i := range rejected {
		s.publishCompletion(RoutingKeyCompletionRejected, &rejected[i], reward)
	}
	return nil
}

// SeedDefaultMissions fills an empty catalogue with the starter missions and returns how
// many were created.
func (s *Service) SeedDefaultMissions(ctx context.Context) (int, error) {
	existing, err := s.repo.ListMissions(ctx)
	if err != nil {
		return 0, translateStoreError("seed missions", err)
	}
	if len(existing) > 0 {
		return 0, nil
	}

	created := 0
	for _, req := range domain.DefaultMissions() {
		mission, err := s.buildMission(req)
		if err != nil {
			return created, err
		}
		if err := s.repo.CreateMission(ctx, mission); err != nil {
			return created, translateStoreError("seed missions", err)
		}
		created++
	}
	s.logger.Info("default missions seeded", "count", created)
	return created, nil
}

// ListUsers returns every user, newest first.
func (s *Service) ListUsers(ctx context.Context, actor domain.Actor) ([]domain.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, translateStoreError("list users", err)
	}
	return users, nil
}

// Dashboard returns the admin overview counters.
func (s *Service) Dashboard(ctx context.Context, actor domain.Actor) (*domain.DashboardStats, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	stats, err := s.repo.GetDashboardStats(ctx)
	if err != nil {
		return nil, translateStoreError("dashboard", err)
	}
	return stats, nil
}
