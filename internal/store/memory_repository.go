package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ivanValieri/din-cash/internal/domain"
)

// MemoryRepository is an in-process Repository used for local runs and tests.
// Every method holds one mutex, so each ledger transition is trivially atomic.
type MemoryRepository struct {
	mu  sync.Mutex
	now func() time.Time

	users       map[uuid.UUID]*domain.User
	subjects    map[string]uuid.UUID
	missions    map[uuid.UUID]*domain.Mission
	completions map[uuid.UUID]*domain.MissionCompletion
	withdrawals map[uuid.UUID]*domain.Withdrawal

	// insertion order, oldest first
	userOrder       []uuid.UUID
	missionOrder    []uuid.UUID
	completionOrder []uuid.UUID
	withdrawalOrder []uuid.UUID
}

// NewMemoryRepository creates an empty in-process store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		now:         func() time.Time { return time.Now().UTC() },
		users:       make(map[uuid.UUID]*domain.User),
		subjects:    make(map[string]uuid.UUID),
		missions:    make(map[uuid.UUID]*domain.Mission),
		completions: make(map[uuid.UUID]*domain.MissionCompletion),
		withdrawals: make(map[uuid.UUID]*domain.Withdrawal),
	}
}

func (r *MemoryRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (r *MemoryRepository) FindUserBySubject(ctx context.Context, subject string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.subjects[subject]
	if !ok {
		return nil, ErrUserNotFound
	}
	user := *r.users[id]
	return &user, nil
}

func (r *MemoryRepository) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (r *MemoryRepository) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.subjects[user.AuthSubject]; ok {
		existing := *r.users[id]
		return &existing, nil
	}

	stored := *user
	stored.Balance = 0
	stored.HeldBalance = 0
	stored.CreatedAt = r.now()
	r.users[stored.ID] = &stored
	r.subjects[stored.AuthSubject] = stored.ID
	r.userOrder = append(r.userOrder, stored.ID)

	created := stored
	return &created, nil
}

func (r *MemoryRepository) ListUsers(ctx context.Context) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	users := make([]domain.User, 0, len(r.userOrder))
	for i := len(r.userOrder) - 1; i >= 0; i-- {
		users = append(users, *r.users[r.userOrder[i]])
	}
	return users, nil
}

func (r *MemoryRepository) CreateMission(ctx context.Context, mission *domain.Mission) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	mission.CreatedAt = r.now()
	stored := *mission
	r.missions[stored.ID] = &stored
	r.missionOrder = append(r.missionOrder, stored.ID)
	return nil
}

func (r *MemoryRepository) FindMissionByID(ctx context.Context, missionID uuid.UUID) (*domain.Mission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	mission, ok := r.missions[missionID]
	if !ok {
		return nil, ErrMissionNotFound
	}
	copied := *mission
	return &copied, nil
}

func (r *MemoryRepository) ListMissions(ctx context.Context) ([]domain.Mission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var missions []domain.Mission
	for i := len(r.missionOrder) - 1; i >= 0; i-- {
		mission := r.missions[r.missionOrder[i]]
		if mission.DeletedAt == nil {
			missions = append(missions, *mission)
		}
	}
	return missions, nil
}

func (r *MemoryRepository) ListAvailableMissions(ctx context.Context, userID uuid.UUID) ([]domain.Mission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	taken := make(map[uuid.UUID]bool)
	for _, completion := range r.completions {
		if completion.UserID == userID && completion.Status != domain.CompletionRejected {
			taken[completion.MissionID] = true
		}
	}

	var missions []domain.Mission
	for i := len(r.missionOrder) - 1; i >= 0; i-- {
		mission := r.missions[r.missionOrder[i]]
		if mission.DeletedAt != nil || taken[mission.ID] {
			continue
		}
		missions = append(missions, *mission)
	}
	sort.SliceStable(missions, func(i, j int) bool {
		return missions[i].FixedForNewUsers && !missions[j].FixedForNewUsers
	})
	return missions, nil
}

func (r *MemoryRepository) DeleteMission(ctx context.Context, missionID uuid.UUID) ([]domain.MissionCompletion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	mission, ok := r.missions[missionID]
	if !ok || mission.DeletedAt != nil {
		return nil, ErrMissionNotFound
	}
	now := r.now()
	mission.DeletedAt = &now

	var rejected []domain.MissionCompletion
	for _, id := range r.completionOrder {
		completion := r.completions[id]
		if completion.MissionID == missionID && completion.Status == domain.CompletionPending {
			reviewedAt := now
			completion.Status = domain.CompletionRejected
			completion.ReviewedAt = &reviewedAt
			rejected = append(rejected, *completion)
		}
	}
	return rejected, nil
}

func (r *MemoryRepository) CreateCompletion(ctx context.Context, completion *domain.MissionCompletion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[completion.UserID]; !ok {
		return ErrUserNotFound
	}
	if mission, ok := r.missions[completion.MissionID]; !ok || mission.DeletedAt != nil {
		return ErrMissionNotFound
	}
	for _, existing := range r.completions {
		if existing.UserID == completion.UserID &&
			existing.MissionID == completion.MissionID &&
			existing.Status != domain.CompletionRejected {
			return ErrDuplicateCompletion
		}
	}

	completion.CreatedAt = r.now()
	stored := *completion
	r.completions[stored.ID] = &stored
	r.completionOrder = append(r.completionOrder, stored.ID)
	return nil
}

func (r *MemoryRepository) FindCompletionByID(ctx context.Context, completionID uuid.UUID) (*domain.MissionCompletion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	completion, ok := r.completions[completionID]
	if !ok {
		return nil, ErrCompletionNotFound
	}
	copied := *completion
	return &copied, nil
}

func (r *MemoryRepository) TransitionCompletion(ctx context.Context, completionID uuid.UUID, to domain.CompletionStatus) (*domain.MissionCompletion, error) {
	if !ValidCompletionTarget(to) {
		return nil, fmt.Errorf("%w: completion to %q", ErrInvalidTransition, to)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	completion, ok := r.completions[completionID]
	if !ok {
		return nil, ErrCompletionNotFound
	}
	if completion.Status != domain.CompletionPending {
		return nil, ErrStatusConflict
	}

	if to == domain.CompletionCompleted {
		user, ok := r.users[completion.UserID]
		if !ok {
			return nil, ErrUserNotFound
		}
		mission, ok := r.missions[completion.MissionID]
		if !ok {
			return nil, ErrMissionNotFound
		}
		user.Balance += mission.Reward
	}

	now := r.now()
	completion.Status = to
	completion.ReviewedAt = &now
	copied := *completion
	return &copied, nil
}

func (r *MemoryRepository) ListCompletionsByUser(ctx context.Context, userID uuid.UUID, status *domain.CompletionStatus) ([]domain.MissionCompletion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var completions []domain.MissionCompletion
	for i := len(r.completionOrder) - 1; i >= 0; i-- {
		completion := r.completions[r.completionOrder[i]]
		if completion.UserID != userID {
			continue
		}
		if status != nil && completion.Status != *status {
			continue
		}
		completions = append(completions, *completion)
	}
	return completions, nil
}

func (r *MemoryRepository) ListPendingCompletions(ctx context.Context) ([]domain.CompletionView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var views []domain.CompletionView
	for i := len(r.completionOrder) - 1; i >= 0; i-- {
		completion := r.completions[r.completionOrder[i]]
		if completion.Status != domain.CompletionPending {
			continue
		}
		user := r.users[completion.UserID]
		mission := r.missions[completion.MissionID]
		views = append(views, domain.CompletionView{
			MissionCompletion: *completion,
			UserName:          user.Name,
			UserContact:       user.Contact,
			MissionTitle:      mission.Title,
			MissionReward:     mission.Reward,
		})
	}
	return views, nil
}

func (r *MemoryRepository) CreateWithdrawal(ctx context.Context, withdrawal *domain.Withdrawal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[withdrawal.UserID]
	if !ok {
		return ErrUserNotFound
	}
	if user.Balance-user.HeldBalance < withdrawal.Amount {
		return ErrInsufficientFunds
	}

	withdrawal.CreatedAt = r.now()
	stored := *withdrawal
	r.withdrawals[stored.ID] = &stored
	r.withdrawalOrder = append(r.withdrawalOrder, stored.ID)
	user.HeldBalance += stored.Amount
	return nil
}

func (r *MemoryRepository) FindWithdrawalByID(ctx context.Context, withdrawalID uuid.UUID) (*domain.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	withdrawal, ok := r.withdrawals[withdrawalID]
	if !ok {
		return nil, ErrWithdrawalNotFound
	}
	copied := *withdrawal
	return &copied, nil
}

func (r *MemoryRepository) TransitionWithdrawal(ctx context.Context, withdrawalID uuid.UUID, to domain.WithdrawalStatus) (*domain.Withdrawal, error) {
	if !ValidWithdrawalTarget(to) {
		return nil, fmt.Errorf("%w: withdrawal to %q", ErrInvalidTransition, to)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	withdrawal, ok := r.withdrawals[withdrawalID]
	if !ok {
		return nil, ErrWithdrawalNotFound
	}
	if withdrawal.Status != domain.WithdrawalPending {
		return nil, ErrStatusConflict
	}
	user, ok := r.users[withdrawal.UserID]
	if !ok {
		return nil, ErrUserNotFound
	}

	switch to {
	case domain.WithdrawalApproved:
		if user.Balance < withdrawal.Amount {
			return nil, ErrInsufficientFunds
		}
		user.Balance -= withdrawal.Amount
		user.HeldBalance -= withdrawal.Amount
	case domain.WithdrawalRejected:
		user.HeldBalance -= withdrawal.Amount
	}

	now := r.now()
	withdrawal.Status = to
	withdrawal.ReviewedAt = &now
	copied := *withdrawal
	return &copied, nil
}

func (r *MemoryRepository) ListWithdrawalsByUser(ctx context.Context, userID uuid.UUID, status *domain.WithdrawalStatus) ([]domain.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var withdrawals []domain.Withdrawal
	for i := len(r.withdrawalOrder) - 1; i >= 0; i-- {
		withdrawal := r.withdrawals[r.withdrawalOrder[i]]
		if withdrawal.UserID != userID {
			continue
		}
		if status != nil && withdrawal.Status != *status {
			continue
		}
		withdrawals = append(withdrawals, *withdrawal)
	}
	return withdrawals, nil
}

func (r *MemoryRepository) ListPendingWithdrawals(ctx context.Context) ([]domain.WithdrawalView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var views []domain.WithdrawalView
	for i := len(r.withdrawalOrder) - 1; i >= 0; i-- {
		withdrawal := r.withdrawals[r.withdrawalOrder[i]]
		if withdrawal.Status != domain.WithdrawalPending {
			continue
		}
		user := r.users[withdrawal.UserID]
		views = append(views, domain.WithdrawalView{
			Withdrawal:  *withdrawal,
			UserName:    user.Name,
			UserContact: user.Contact,
		})
	}
	return views, nil
}

func (r *MemoryRepository) GetDashboardStats(ctx context.Context) (*domain.DashboardStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := domain.DashboardStats{Users: int64(len(r.users))}
	for _, mission := range r.missions {
		if mission.DeletedAt == nil {
			stats.ActiveMissions++
		}
	}
	for _, completion := range r.completions {
		if completion.Status == domain.CompletionPending {
			stats.PendingCompletions++
		}
	}
	for _, withdrawal := range r.withdrawals {
		if withdrawal.Status == domain.WithdrawalPending {
			stats.PendingWithdrawals++
		}
	}
	return &stats, nil
}

func (r *MemoryRepository) ListLedgerTotals(ctx context.Context) ([]LedgerTotals, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byUser := make(map[uuid.UUID]*LedgerTotals, len(r.users))
	totals := make([]LedgerTotals, len(r.userOrder))
	for i, id := range r.userOrder {
		user := r.users[id]
		totals[i] = LedgerTotals{
			UserID:        id,
			StoredBalance: user.Balance,
			StoredHeld:    user.HeldBalance,
		}
		byUser[id] = &totals[i]
	}
	for _, completion := range r.completions {
		if completion.Status != domain.CompletionCompleted {
			continue
		}
		if t, ok := byUser[completion.UserID]; ok {
			t.CompletedRewards += r.missions[completion.MissionID].Reward
		}
	}
	for _, withdrawal := range r.withdrawals {
		t, ok := byUser[withdrawal.UserID]
		if !ok {
			continue
		}
		switch withdrawal.Status {
		case domain.WithdrawalApproved:
			t.ApprovedWithdrawals += withdrawal.Amount
		case domain.WithdrawalPending:
			t.PendingWithdrawals += withdrawal.Amount
		}
	}
	return totals, nil
}

// SetBalanceForTest overwrites a user's stored balance without touching the ledger.
// It exists so reconciliation can be exercised against injected drift.
func (r *MemoryRepository) SetBalanceForTest(userID uuid.UUID, balance int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if user, ok := r.users[userID]; ok {
		user.Balance = balance
	}
}
