/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * Status transitions are conditional writes (`WHERE status = 'pending'`) executed in the
 * same transaction as the balance change they imply, with `FOR UPDATE` row locks on the
 * user being credited or debited. Concurrent reviews of the same record therefore
 * serialize on its row, while work on unrelated users never contends.
 *
 * @dependencies
 * - context, errors, fmt: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/ivanValieri/din-cash/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

const userColumns = `id, auth_subject, name, contact, balance, held_balance, is_admin, created_at`
const missionColumns = `id, title, description, reward, url, fixed_for_new_users, created_at, deleted_at`
const completionColumns = `id, user_id, mission_id, status, created_at, reviewed_at`
const withdrawalColumns = `id, user_id, amount, status, created_at, reviewed_at`

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Ping checks that the database is reachable.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.AuthSubject,
		&user.Name,
		&user.Contact,
		&user.Balance,
		&user.HeldBalance,
		&user.IsAdmin,
		&user.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}

func scanMission(row pgx.Row) (*domain.Mission, error) {
	var mission domain.Mission
	if err := row.Scan(
		&mission.ID,
		&mission.Title,
		&mission.Description,
		&mission.Reward,
		&mission.URL,
		&mission.FixedForNewUsers,
		&mission.CreatedAt,
		&mission.DeletedAt,
	); err != nil {
		return nil, err
	}
	return &mission, nil
}

func scanCompletion(row pgx.Row) (*domain.MissionCompletion, error) {
	var completion domain.MissionCompletion
	var status string
	if err := row.Scan(
		&completion.ID,
		&completion.UserID,
		&completion.MissionID,
		&status,
		&completion.CreatedAt,
		&completion.ReviewedAt,
	); err != nil {
		return nil, err
	}
	completion.Status = domain.CompletionStatus(status)
	return &completion, nil
}

func scanWithdrawal(row pgx.Row) (*domain.Withdrawal, error) {
	var withdrawal domain.Withdrawal
	var status string
	if err := row.Scan(
		&withdrawal.ID,
		&withdrawal.UserID,
		&withdrawal.Amount,
		&status,
		&withdrawal.CreatedAt,
		&withdrawal.ReviewedAt,
	); err != nil {
		return nil, err
	}
	withdrawal.Status = domain.WithdrawalStatus(status)
	return &withdrawal, nil
}

// FindUserBySubject retrieves a user by the identity provider subject.
func (r *PostgresRepository) FindUserBySubject(ctx context.Context, subject string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE auth_subject = $1`
	user, err := scanUser(r.db.QueryRow(ctx, query, subject))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// FindUserByID retrieves a user by internal id.
func (r *PostgresRepository) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// CreateUser inserts a user. A concurrent sign-up for the same subject returns the row
// that won the race instead of failing.
func (r *PostgresRepository) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	query := `
		INSERT INTO users (id, auth_subject, name, contact, balance, held_balance, is_admin)
		VALUES ($1, $2, $3, $4, 0, 0, $5)
		ON CONFLICT (auth_subject) DO UPDATE SET auth_subject = EXCLUDED.auth_subject
		RETURNING ` + userColumns
	return scanUser(r.db.QueryRow(ctx, query, user.ID, user.AuthSubject, user.Name, user.Contact, user.IsAdmin))
}

// ListUsers returns all users, newest first.
func (r *PostgresRepository) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

// CreateMission inserts a mission.
func (r *PostgresRepository) CreateMission(ctx context.Context, mission *domain.Mission) error {
	query := `
		INSERT INTO missions (id, title, description, reward, url, fixed_for_new_users)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	return r.db.QueryRow(ctx, query,
		mission.ID,
		mission.Title,
		mission.Description,
		mission.Reward,
		mission.URL,
		mission.FixedForNewUsers,
	).Scan(&mission.CreatedAt)
}

// FindMissionByID retrieves a mission, including soft-deleted ones.
func (r *PostgresRepository) FindMissionByID(ctx context.Context, missionID uuid.UUID) (*domain.Mission, error) {
	query := `SELECT ` + missionColumns + ` FROM missions WHERE id = $1`
	mission, err := scanMission(r.db.QueryRow(ctx, query, missionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMissionNotFound
		}
		return nil, err
	}
	return mission, nil
}

// ListMissions returns every active mission, newest first.
func (r *PostgresRepository) ListMissions(ctx context.Context) ([]domain.Mission, error) {
	query := `SELECT ` + missionColumns + ` FROM missions WHERE deleted_at IS NULL ORDER BY created_at DESC`
	return r.queryMissions(ctx, query)
}

// ListAvailableMissions returns active missions the user has neither completed nor has
// pending review. Missions flagged for new users come first.
func (r *PostgresRepository) ListAvailableMissions(ctx context.Context, userID uuid.UUID) ([]domain.Mission, error) {
	query := `
		SELECT ` + missionColumns + `
		FROM missions m
		WHERE m.deleted_at IS NULL
		  AND NOT EXISTS (
			SELECT 1
			FROM mission_completions c
			WHERE c.mission_id = m.id
			  AND c.user_id = $1
			  AND c.status IN ('pending', 'completed')
		  )
		ORDER BY m.fixed_for_new_users DESC, m.created_at DESC
	`
	return r.queryMissions(ctx, query, userID)
}

func (r *PostgresRepository) queryMissions(ctx context.Context, query string, args ...any) ([]domain.Mission, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var missions []domain.Mission
	for rows.Next() {
		mission, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		missions = append(missions, *mission)
	}
	return missions, rows.Err()
}

// DeleteMission soft-deletes a mission and rejects the completions still waiting on it.
func (r *PostgresRepository) DeleteMission(ctx context.Context, missionID uuid.UUID) ([]domain.MissionCompletion, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE missions SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, missionID)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrMissionNotFound
	}

	rows, err := tx.Query(ctx, `
		UPDATE mission_completions
		SET status = 'rejected', reviewed_at = NOW()
		WHERE mission_id = $1 AND status = 'pending'
		RETURNING `+completionColumns, missionID)
	if err != nil {
		return nil, err
	}
	var rejected []domain.MissionCompletion
	for rows.Next() {
		completion, err := scanCompletion(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		rejected = append(rejected, *completion)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return rejected, nil
}

// CreateCompletion inserts a pending completion for an active mission. The mission row is
// share-locked so a concurrent DeleteMission either sees the new completion or wins and
// leaves nothing to insert. The partial unique index on (user_id, mission_id) rejects a
// second live submission.
func (r *PostgresRepository) CreateCompletion(ctx context.Context, completion *domain.MissionCompletion) error {
	query := `
		INSERT INTO mission_completions (id, user_id, mission_id, status)
		SELECT $1::UUID, $2::UUID, m.id, $4::TEXT
		FROM missions m
		WHERE m.id = $3::UUID AND m.deleted_at IS NULL
		FOR SHARE
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query,
		completion.ID,
		completion.UserID,
		completion.MissionID,
		string(completion.Status),
	).Scan(&completion.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrMissionNotFound
		}
		switch pgErrorCode(err) {
		case pgUniqueViolation:
			return ErrDuplicateCompletion
		case pgForeignKeyViolation:
			return fmt.Errorf("create completion: %w", ErrUserNotFound)
		}
		return err
	}
	return nil
}

// FindCompletionByID retrieves a mission completion.
func (r *PostgresRepository) FindCompletionByID(ctx context.Context, completionID uuid.UUID) (*domain.MissionCompletion, error) {
	query := `SELECT ` + completionColumns + ` FROM mission_completions WHERE id = $1`
	completion, err := scanCompletion(r.db.QueryRow(ctx, query, completionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCompletionNotFound
		}
		return nil, err
	}
	return completion, nil
}

// TransitionCompletion performs a compare-and-swap from pending to the target status and,
// for approvals, credits the mission reward in the same transaction.
func (r *PostgresRepository) TransitionCompletion(ctx context.Context, completionID uuid.UUID, to domain.CompletionStatus) (*domain.MissionCompletion, error) {
	if !ValidCompletionTarget(to) {
		return nil, fmt.Errorf("%w: completion to %q", ErrInvalidTransition, to)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE mission_completions
		SET status = $2, reviewed_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + completionColumns
	completion, err := scanCompletion(tx.QueryRow(ctx, query, completionID, string(to)))
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM mission_completions WHERE id = $1)`, completionID).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, ErrCompletionNotFound
		}
		return nil, ErrStatusConflict
	}

	if to == domain.CompletionCompleted {
		tag, err := tx.Exec(ctx, `
			UPDATE users u
			SET balance = u.balance + m.reward
			FROM missions m
			WHERE u.id = $1 AND m.id = $2
		`, completion.UserID, completion.MissionID)
		if err != nil {
			return nil, err
		}
		if tag.RowsAffected() != 1 {
			return nil, ErrUserNotFound
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return completion, nil
}

// ListCompletionsByUser returns a user's completions, optionally filtered by status.
func (r *PostgresRepository) ListCompletionsByUser(ctx context.Context, userID uuid.UUID, status *domain.CompletionStatus) ([]domain.MissionCompletion, error) {
	query := `
		SELECT ` + completionColumns + `
		FROM mission_completions
		WHERE user_id = $1
		  AND ($2::TEXT IS NULL OR status = $2)
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID, statusArg(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var completions []domain.MissionCompletion
	for rows.Next() {
		completion, err := scanCompletion(rows)
		if err != nil {
			return nil, err
		}
		completions = append(completions, *completion)
	}
	return completions, rows.Err()
}

// ListPendingCompletions returns every pending completion joined with its user and mission.
func (r *PostgresRepository) ListPendingCompletions(ctx context.Context) ([]domain.CompletionView, error) {
	query := `
		SELECT c.id, c.user_id, c.mission_id, c.status, c.created_at, c.reviewed_at,
		       u.name, u.contact, m.title, m.reward
		FROM mission_completions c
		JOIN users u ON u.id = c.user_id
		JOIN missions m ON m.id = c.mission_id
		WHERE c.status = 'pending'
		ORDER BY c.created_at DESC
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []domain.CompletionView
	for rows.Next() {
		var view domain.CompletionView
		var status string
		if err := rows.Scan(
			&view.ID,
			&view.UserID,
			&view.MissionID,
			&status,
			&view.CreatedAt,
			&view.ReviewedAt,
			&view.UserName,
			&view.UserContact,
			&view.MissionTitle,
			&view.MissionReward,
		); err != nil {
			return nil, err
		}
		view.Status = domain.CompletionStatus(status)
		views = append(views, view)
	}
	return views, rows.Err()
}

// CreateWithdrawal locks the owner's row, checks the unreserved balance, inserts the
// withdrawal and reserves its amount.
func (r *PostgresRepository) CreateWithdrawal(ctx context.Context, withdrawal *domain.Withdrawal) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var balance, held int64
	err = tx.QueryRow(ctx, `SELECT balance, held_balance FROM users WHERE id = $1 FOR UPDATE`, withdrawal.UserID).Scan(&balance, &held)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}
	if balance-held < withdrawal.Amount {
		return ErrInsufficientFunds
	}

	query := `
		INSERT INTO withdrawals (id, user_id, amount, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`
	if err := tx.QueryRow(ctx, query,
		withdrawal.ID,
		withdrawal.UserID,
		withdrawal.Amount,
		string(withdrawal.Status),
	).Scan(&withdrawal.CreatedAt); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `UPDATE users SET held_balance = held_balance + $2 WHERE id = $1`, withdrawal.UserID, withdrawal.Amount); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// FindWithdrawalByID retrieves a withdrawal.
func (r *PostgresRepository) FindWithdrawalByID(ctx context.Context, withdrawalID uuid.UUID) (*domain.Withdrawal, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE id = $1`
	withdrawal, err := scanWithdrawal(r.db.QueryRow(ctx, query, withdrawalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, err
	}
	return withdrawal, nil
}

// TransitionWithdrawal locks the withdrawal and its owner, re-validates the balance for
// approvals, and applies the status change and balance movement together.
func (r *PostgresRepository) TransitionWithdrawal(ctx context.Context, withdrawalID uuid.UUID, to domain.WithdrawalStatus) (*domain.Withdrawal, error) {
	if !ValidWithdrawalTarget(to) {
		return nil, fmt.Errorf("%w: withdrawal to %q", ErrInvalidTransition, to)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	query := `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE id = $1 FOR UPDATE`
	withdrawal, err := scanWithdrawal(tx.QueryRow(ctx, query, withdrawalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, err
	}
	if withdrawal.Status != domain.WithdrawalPending {
		return nil, ErrStatusConflict
	}

	var balance, held int64
	err = tx.QueryRow(ctx, `SELECT balance, held_balance FROM users WHERE id = $1 FOR UPDATE`, withdrawal.UserID).Scan(&balance, &held)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	switch to {
	case domain.WithdrawalApproved:
		if balance < withdrawal.Amount {
			return nil, ErrInsufficientFunds
		}
		_, err = tx.Exec(ctx, `
			UPDATE users
			SET balance = balance - $2, held_balance = held_balance - $2
			WHERE id = $1
		`, withdrawal.UserID, withdrawal.Amount)
	case domain.WithdrawalRejected:
		_, err = tx.Exec(ctx, `UPDATE users SET held_balance = held_balance - $2 WHERE id = $1`, withdrawal.UserID, withdrawal.Amount)
	}
	if err != nil {
		return nil, err
	}

	err = tx.QueryRow(ctx, `
		UPDATE withdrawals
		SET status = $2, reviewed_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING reviewed_at
	`, withdrawalID, string(to)).Scan(&withdrawal.ReviewedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStatusConflict
		}
		return nil, err
	}
	withdrawal.Status = to

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return withdrawal, nil
}

// ListWithdrawalsByUser returns a user's withdrawals, optionally filtered by status.
func (r *PostgresRepository) ListWithdrawalsByUser(ctx context.Context, userID uuid.UUID, status *domain.WithdrawalStatus) ([]domain.Withdrawal, error) {
	var statusFilter *string
	if status != nil {
		value := string(*status)
		statusFilter = &value
	}
	query := `
		SELECT ` + withdrawalColumns + `
		FROM withdrawals
		WHERE user_id = $1
		  AND ($2::TEXT IS NULL OR status = $2)
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID, statusFilter)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var withdrawals []domain.Withdrawal
	for rows.Next() {
		withdrawal, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		withdrawals = append(withdrawals, *withdrawal)
	}
	return withdrawals, rows.Err()
}

// ListPendingWithdrawals returns every pending withdrawal joined with its owner.
func (r *PostgresRepository) ListPendingWithdrawals(ctx context.Context) ([]domain.WithdrawalView, error) {
	query := `
		SELECT w.id, w.user_id, w.amount, w.status, w.created_at, w.reviewed_at, u.name, u.contact
		FROM withdrawals w
		JOIN users u ON u.id = w.user_id
		WHERE w.status = 'pending'
		ORDER BY w.created_at DESC
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []domain.WithdrawalView
	for rows.Next() {
		var view domain.WithdrawalView
		var status string
		if err := rows.Scan(
			&view.ID,
			&view.UserID,
			&view.Amount,
			&status,
			&view.CreatedAt,
			&view.ReviewedAt,
			&view.UserName,
			&view.UserContact,
		); err != nil {
			return nil, err
		}
		view.Status = domain.WithdrawalStatus(status)
		views = append(views, view)
	}
	return views, rows.Err()
}

// GetDashboardStats counts the records the admin overview shows.
func (r *PostgresRepository) GetDashboardStats(ctx context.Context) (*domain.DashboardStats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM missions WHERE deleted_at IS NULL),
			(SELECT COUNT(*) FROM mission_completions WHERE status = 'pending'),
			(SELECT COUNT(*) FROM withdrawals WHERE status = 'pending')
	`
	var stats domain.DashboardStats
	if err := r.db.QueryRow(ctx, query).Scan(
		&stats.Users,
		&stats.ActiveMissions,
		&stats.PendingCompletions,
		&stats.PendingWithdrawals,
	); err != nil {
		return nil, err
	}
	return &stats, nil
}

// ListLedgerTotals returns every user's stored balances next to the ledger sums.
func (r *PostgresRepository) ListLedgerTotals(ctx context.Context) ([]LedgerTotals, error) {
	query := `
		SELECT
			u.id,
			u.balance,
			u.held_balance,
			COALESCE((
				SELECT SUM(m.reward)
				FROM mission_completions c
				JOIN missions m ON m.id = c.mission_id
				WHERE c.user_id = u.id AND c.status = 'completed'
			), 0)::BIGINT,
			COALESCE((
				SELECT SUM(w.amount) FROM withdrawals w
				WHERE w.user_id = u.id AND w.status = 'approved'
			), 0)::BIGINT,
			COALESCE((
				SELECT SUM(w.amount) FROM withdrawals w
				WHERE w.user_id = u.id AND w.status = 'pending'
			), 0)::BIGINT
		FROM users u
		ORDER BY u.created_at
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var totals []LedgerTotals
	for rows.Next() {
		var t LedgerTotals
		if err := rows.Scan(
			&t.UserID,
			&t.StoredBalance,
			&t.StoredHeld,
			&t.CompletedRewards,
			&t.ApprovedWithdrawals,
			&t.PendingWithdrawals,
		); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

func statusArg(status *domain.CompletionStatus) *string {
	if status == nil {
		return nil
	}
	value := string(*status)
	return &value
}

// pgErrorCode returns the SQLSTATE of a PostgreSQL error, or "" for anything else.
func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
