package store

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/ivanValieri/din-cash/internal/domain"
)

func seedUser(t *testing.T, repo *MemoryRepository, subject string) *domain.User {
	t.Helper()
	user, err := repo.CreateUser(context.Background(), &domain.User{
		ID:          uuid.New(),
		AuthSubject: subject,
		Name:        "user " + subject,
		Contact:     subject + "@example.com",
	})
	if err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}
	return user
}

func seedMission(t *testing.T, repo *MemoryRepository, title string, reward int64, fixed bool) *domain.Mission {
	t.Helper()
	mission := &domain.Mission{ID: uuid.New(), Title: title, Reward: reward, FixedForNewUsers: fixed}
	if err := repo.CreateMission(context.Background(), mission); err != nil {
		t.Fatalf("CreateMission returned error: %v", err)
	}
	return mission
}

func seedCompletion(t *testing.T, repo *MemoryRepository, userID, missionID uuid.UUID) *domain.MissionCompletion {
	t.Helper()
	completion := &domain.MissionCompletion{
		ID:        uuid.New(),
		UserID:    userID,
		MissionID: missionID,
		Status:    domain.CompletionPending,
	}
	if err := repo.CreateCompletion(context.Background(), completion); err != nil {
		t.Fatalf("CreateCompletion returned error: %v", err)
	}
	return completion
}

func TestMemoryRepository_CreateUserReturnsExistingForSameSubject(t *testing.T) {
	repo := NewMemoryRepository()
	first := seedUser(t, repo, "sub-1")

	second, err := repo.CreateUser(context.Background(), &domain.User{ID: uuid.New(), AuthSubject: "sub-1"})
	if err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected existing user %s, got %s", first.ID, second.ID)
	}
	users, _ := repo.ListUsers(context.Background())
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
}

func TestMemoryRepository_DuplicateLiveCompletionRejected(t *testing.T) {
	repo := NewMemoryRepository()
	user := seedUser(t, repo, "sub-1")
	mission := seedMission(t, repo, "m", 500, false)
	first := seedCompletion(t, repo, user.ID, mission.ID)

	err := repo.CreateCompletion(context.Background(), &domain.MissionCompletion{
		ID: uuid.New(), UserID: user.ID, MissionID: mission.ID, Status: domain.CompletionPending,
	})
	if !errors.Is(err, ErrDuplicateCompletion) {
		t.Fatalf("expected ErrDuplicateCompletion, got %v", err)
	}

	if _, err := repo.TransitionCompletion(context.Background(), first.ID, domain.CompletionRejected); err != nil {
		t.Fatalf("TransitionCompletion returned error: %v", err)
	}
	err = repo.CreateCompletion(context.Background(), &domain.MissionCompletion{
		ID: uuid.New(), UserID: user.ID, MissionID: mission.ID, Status: domain.CompletionPending,
	})
	if err != nil {
		t.Fatalf("expected resubmission after rejection to succeed, got %v", err)
	}
}

func TestMemoryRepository_TransitionCompletionCreditsOnce(t *testing.T) {
	repo := NewMemoryRepository()
	user := seedUser(t, repo, "sub-1")
	mission := seedMission(t, repo, "m", 500, false)
	completion := seedCompletion(t, repo, user.ID, mission.ID)

	if _, err := repo.TransitionCompletion(context.Background(), completion.ID, domain.CompletionCompleted); err != nil {
		t.Fatalf("TransitionCompletion returned error: %v", err)
	}
	if _, err := repo.TransitionCompletion(context.Background(), completion.ID, domain.CompletionCompleted); !errors.Is(err, ErrStatusConflict) {
		t.Fatalf("expected ErrStatusConflict on second approval, got %v", err)
	}

	stored, _ := repo.FindUserByID(context.Background(), user.ID)
	if stored.Balance != 500 {
		t.Fatalf("expected balance 500, got %d", stored.Balance)
	}
}

func TestMemoryRepository_WithdrawalHoldLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	user := seedUser(t, repo, "sub-1")
	mission := seedMission(t, repo, "m", 5000, false)
	completion := seedCompletion(t, repo, user.ID, mission.ID)
	if _, err := repo.TransitionCompletion(ctx, completion.ID, domain.CompletionCompleted); err != nil {
		t.Fatalf("TransitionCompletion returned error: %v", err)
	}

	first := &domain.Withdrawal{ID: uuid.New(), UserID: user.ID, Amount: 3000, Status: domain.WithdrawalPending}
	if err := repo.CreateWithdrawal(ctx, first); err != nil {
		t.Fatalf("CreateWithdrawal returned error: %v", err)
	}
	second := &domain.Withdrawal{ID: uuid.New(), UserID: user.ID, Amount: 3000, Status: domain.WithdrawalPending}
	if err := repo.CreateWithdrawal(ctx, second); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds for overlapping request, got %v", err)
	}

	if _, err := repo.TransitionWithdrawal(ctx, first.ID, domain.WithdrawalRejected); err != nil {
		t.Fatalf("TransitionWithdrawal returned error: %v", err)
	}
	stored, _ := repo.FindUserByID(ctx, user.ID)
	if stored.Balance != 5000 || stored.HeldBalance != 0 {
		t.Fatalf("expected balance 5000 held 0 after rejection, got %d/%d", stored.Balance, stored.HeldBalance)
	}

	if err := repo.CreateWithdrawal(ctx, second); err != nil {
		t.Fatalf("CreateWithdrawal returned error: %v", err)
	}
	if _, err := repo.TransitionWithdrawal(ctx, second.ID, domain.WithdrawalApproved); err != nil {
		t.Fatalf("TransitionWithdrawal returned error: %v", err)
	}
	stored, _ = repo.FindUserByID(ctx, user.ID)
	if stored.Balance != 2000 || stored.HeldBalance != 0 {
		t.Fatalf("expected balance 2000 held 0 after approval, got %d/%d", stored.Balance, stored.HeldBalance)
	}
	if _, err := repo.TransitionWithdrawal(ctx, second.ID, domain.WithdrawalRejected); !errors.Is(err, ErrStatusConflict) {
		t.Fatalf("expected ErrStatusConflict leaving terminal state, got %v", err)
	}
}

func TestMemoryRepository_ListAvailableMissionsOrdering(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	user := seedUser(t, repo, "sub-1")
	regular := seedMission(t, repo, "regular", 100, false)
	fixed := seedMission(t, repo, "fixed", 100, true)
	newest := seedMission(t, repo, "newest", 100, false)
	done := seedMission(t, repo, "done", 100, false)
	seedCompletion(t, repo, user.ID, done.ID)

	missions, err := repo.ListAvailableMissions(ctx, user.ID)
	if err != nil {
		t.Fatalf("ListAvailableMissions returned error: %v", err)
	}
	want := []uuid.UUID{fixed.ID, newest.ID, regular.ID}
	if len(missions) != len(want) {
		t.Fatalf("expected %d missions, got %d", len(want), len(missions))
	}
	for i, id := range want {
		if missions[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s (%s)", i, id, missions[i].ID, missions[i].Title)
		}
	}
}

func TestMemoryRepository_DeleteMissionRejectsPending(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	user := seedUser(t, repo, "sub-1")
	mission := seedMission(t, repo, "m", 100, false)
	completion := seedCompletion(t, repo, user.ID, mission.ID)

	rejected, err := repo.DeleteMission(ctx, mission.ID)
	if err != nil {
		t.Fatalf("DeleteMission returned error: %v", err)
	}
	if len(rejected) != 1 || rejected[0].ID != completion.ID {
		t.Fatalf("expected completion %s to be rejected, got %+v", completion.ID, rejected)
	}
	if rejected[0].Status != domain.CompletionRejected || rejected[0].ReviewedAt == nil {
		t.Fatalf("expected returned completion to carry the rejection, got %+v", rejected[0])
	}
	stored, _ := repo.FindCompletionByID(ctx, completion.ID)
	if stored.Status != domain.CompletionRejected {
		t.Fatalf("expected rejected completion, got %s", stored.Status)
	}
	if _, err := repo.DeleteMission(ctx, mission.ID); !errors.Is(err, ErrMissionNotFound) {
		t.Fatalf("expected ErrMissionNotFound on second delete, got %v", err)
	}
	missions, _ := repo.ListMissions(ctx)
	if len(missions) != 0 {
		t.Fatalf("expected deleted mission to be hidden, got %d missions", len(missions))
	}
}

func TestMemoryRepository_CreateCompletionRejectsDeletedMission(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	user := seedUser(t, repo, "sub-1")
	mission := seedMission(t, repo, "m", 100, false)
	if _, err := repo.DeleteMission(ctx, mission.ID); err != nil {
		t.Fatalf("DeleteMission returned error: %v", err)
	}

	err := repo.CreateCompletion(ctx, &domain.MissionCompletion{
		ID: uuid.New(), UserID: user.ID, MissionID: mission.ID, Status: domain.CompletionPending,
	})
	if !errors.Is(err, ErrMissionNotFound) {
		t.Fatalf("expected ErrMissionNotFound for deleted mission, got %v", err)
	}
	completions, _ := repo.ListCompletionsByUser(ctx, user.ID, nil)
	if len(completions) != 0 {
		t.Fatalf("expected no completions, got %d", len(completions))
	}
}

func TestMemoryRepository_RejectsUnsupportedTransitions(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	user := seedUser(t, repo, "sub-1")
	mission := seedMission(t, repo, "m", 5000, false)
	completion := seedCompletion(t, repo, user.ID, mission.ID)

	if _, err := repo.TransitionCompletion(ctx, completion.ID, domain.CompletionPending); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for completion to pending, got %v", err)
	}
	if _, err := repo.TransitionCompletion(ctx, completion.ID, domain.CompletionCompleted); err != nil {
		t.Fatalf("TransitionCompletion returned error: %v", err)
	}

	withdrawal := &domain.Withdrawal{ID: uuid.New(), UserID: user.ID, Amount: 2000, Status: domain.WithdrawalPending}
	if err := repo.CreateWithdrawal(ctx, withdrawal); err != nil {
		t.Fatalf("CreateWithdrawal returned error: %v", err)
	}
	if _, err := repo.TransitionWithdrawal(ctx, withdrawal.ID, domain.WithdrawalStatus("paid")); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for withdrawal to paid, got %v", err)
	}
	stored, _ := repo.FindWithdrawalByID(ctx, withdrawal.ID)
	if stored.Status != domain.WithdrawalPending {
		t.Fatalf("expected withdrawal to stay pending, got %s", stored.Status)
	}
}

func TestValidTransitionTargets(t *testing.T) {
	completionTargets := map[domain.CompletionStatus]bool{
		domain.CompletionPending:   false,
		domain.CompletionCompleted: true,
		domain.CompletionRejected:  true,
		"archived":                 false,
	}
	for status, want := range completionTargets {
		if got := ValidCompletionTarget(status); got != want {
			t.Fatalf("ValidCompletionTarget(%q): expected %v, got %v", status, want, got)
		}
	}

	withdrawalTargets := map[domain.WithdrawalStatus]bool{
		domain.WithdrawalPending:  false,
		domain.WithdrawalApproved: true,
		domain.WithdrawalRejected: true,
		"paid":                    false,
	}
	for status, want := range withdrawalTargets {
		if got := ValidWithdrawalTarget(status); got != want {
			t.Fatalf("ValidWithdrawalTarget(%q): expected %v, got %v", status, want, got)
		}
	}
}

func TestMemoryRepository_LedgerTotalsReportDrift(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	user := seedUser(t, repo, "sub-1")
	mission := seedMission(t, repo, "m", 2500, false)
	completion := seedCompletion(t, repo, user.ID, mission.ID)
	if _, err := repo.TransitionCompletion(ctx, completion.ID, domain.CompletionCompleted); err != nil {
		t.Fatalf("TransitionCompletion returned error: %v", err)
	}
	if err := repo.CreateWithdrawal(ctx, &domain.Withdrawal{ID: uuid.New(), UserID: user.ID, Amount: 2000, Status: domain.WithdrawalPending}); err != nil {
		t.Fatalf("CreateWithdrawal returned error: %v", err)
	}

	totals, _ := repo.ListLedgerTotals(ctx)
	if len(totals) != 1 || totals[0].Drifted() {
		t.Fatalf("expected consistent totals, got %+v", totals)
	}

	repo.SetBalanceForTest(user.ID, 9999)
	totals, _ = repo.ListLedgerTotals(ctx)
	if !totals[0].Drifted() {
		t.Fatalf("expected drift after overwriting balance, got %+v", totals[0])
	}
	if totals[0].LedgerBalance() != 2500 || totals[0].PendingWithdrawals != 2000 {
		t.Fatalf("unexpected ledger sums: %+v", totals[0])
	}
}

func TestPgErrorCode(t *testing.T) {
	if code := pgErrorCode(errors.New("boom")); code != "" {
		t.Fatalf("expected empty code for non-pg error, got %q", code)
	}
}
