/**
 * @description
 * This file defines the `Repository` interface, the contract for every data access
 * operation the rewards service needs. The ledger transitions (completion approval,
 * withdrawal reservation and review) are exposed as single atomic methods so that each
 * implementation can guarantee all-or-nothing semantics with its own primitives
 * (row locks and conditional updates in PostgreSQL, a mutex in the in-process store).
 *
 * @dependencies
 * - context, errors: Standard Go libraries.
 * - github.com/google/uuid: For entity identifiers.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/ivanValieri/din-cash/internal/domain"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrMissionNotFound     = errors.New("mission not found")
	ErrCompletionNotFound  = errors.New("mission completion not found")
	ErrWithdrawalNotFound  = errors.New("withdrawal not found")
	ErrDuplicateCompletion = errors.New("mission already submitted for this user")
	ErrStatusConflict      = errors.New("record is no longer pending")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInvalidTransition   = errors.New("unsupported status transition")
)

// ValidCompletionTarget reports whether a pending completion may move to status.
func ValidCompletionTarget(status domain.CompletionStatus) bool {
	return status == domain.CompletionCompleted || status == domain.CompletionRejected
}

// ValidWithdrawalTarget reports whether a pending withdrawal may move to status.
func ValidWithdrawalTarget(status domain.WithdrawalStatus) bool {
	return status == domain.WithdrawalApproved || status == domain.WithdrawalRejected
}

// Repository defines the set of methods for interacting with the durable store.
type Repository interface {
	Ping(ctx context.Context) error

	// User methods
	FindUserBySubject(ctx context.Context, subject string) (*domain.User, error)
	FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	// CreateUser inserts the user, or returns the existing row when the auth subject is taken.
	CreateUser(ctx context.Context, user *domain.User) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)

	// Mission methods
	CreateMission(ctx context.Context, mission *domain.Mission) error
	FindMissionByID(ctx context.Context, missionID uuid.UUID) (*domain.Mission, error)
	ListMissions(ctx context.Context) ([]domain.Mission, error)
	ListAvailableMissions(ctx context.Context, userID uuid.UUID) ([]domain.Mission, error)
	// DeleteMission soft-deletes an active mission and rejects its pending completions,
	// returning the completions it rejected.
	DeleteMission(ctx context.Context, missionID uuid.UUID) ([]domain.MissionCompletion, error)

	// Mission completion methods
	CreateCompletion(ctx context.Context, completion *domain.MissionCompletion) error
	FindCompletionByID(ctx context.Context, completionID uuid.UUID) (*domain.MissionCompletion, error)
	// TransitionCompletion moves a pending completion to a terminal status. Moving to
	// completed credits the mission reward to the owner within the same unit of work.
	TransitionCompletion(ctx context.Context, completionID uuid.UUID, to domain.CompletionStatus) (*domain.MissionCompletion, error)
	ListCompletionsByUser(ctx context.Context, userID uuid.UUID, status *domain.CompletionStatus) ([]domain.MissionCompletion, error)
	ListPendingCompletions(ctx context.Context) ([]domain.CompletionView, error)

	// Withdrawal methods
	// CreateWithdrawal inserts a pending withdrawal and reserves its amount against the
	// owner's available balance.
	CreateWithdrawal(ctx context.Context, withdrawal *domain.Withdrawal) error
	FindWithdrawalByID(ctx context.Context, withdrawalID uuid.UUID) (*domain.Withdrawal, error)
	// TransitionWithdrawal moves a pending withdrawal to a terminal status, debiting the
	// balance on approval and releasing the reservation in both cases.
	TransitionWithdrawal(ctx context.Context, withdrawalID uuid.UUID, to domain.WithdrawalStatus) (*domain.Withdrawal, error)
	ListWithdrawalsByUser(ctx context.Context, userID uuid.UUID, status *domain.WithdrawalStatus) ([]domain.Withdrawal, error)
	ListPendingWithdrawals(ctx context.Context) ([]domain.WithdrawalView, error)

	// Reporting methods
	GetDashboardStats(ctx context.Context) (*domain.DashboardStats, error)
	ListLedgerTotals(ctx context.Context) ([]LedgerTotals, error)
}

// LedgerTotals pairs a user's stored balances with the sums derived from the ledger.
type LedgerTotals struct {
	UserID              uuid.UUID
	StoredBalance       int64
	StoredHeld          int64
	CompletedRewards    int64
	ApprovedWithdrawals int64
	PendingWithdrawals  int64
}

// LedgerBalance is the balance implied by the ledger rows.
func (t LedgerTotals) LedgerBalance() int64 {
	return t.CompletedRewards - t.ApprovedWithdrawals
}

// Drifted reports whether the stored balances disagree with the ledger.
func (t LedgerTotals) Drifted() bool {
	return t.StoredBalance != t.LedgerBalance() || t.StoredHeld != t.PendingWithdrawals
}
