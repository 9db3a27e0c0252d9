package app

import (
	"context"
	"time"

	"github.com/ivanValieri/din-cash/internal/domain"
)

// ReconcileBalances compares every stored balance and hold with the sums implied by the
// ledger. It never writes: drift is logged and published for an operator to act on.
func (s *Service) ReconcileBalances(ctx context.Context) (*domain.ReconciliationResult, error) {
	result := &domain.ReconciliationResult{StartedAt: time.Now().UTC(), Drifts: []domain.BalanceDrift{}}

	totals, err := s.repo.ListLedgerTotals(ctx)
	if err != nil {
		return nil, translateStoreError("reconcile balances", err)
	}
	result.UsersChecked = len(totals)

	for _, t := range totals {
		if !t.Drifted() {
			continue
		}
		drift := domain.BalanceDrift{
			UserID:        t.UserID,
			StoredBalance: t.StoredBalance,
			LedgerBalance: t.LedgerBalance(),
			StoredHeld:    t.StoredHeld,
			LedgerHeld:    t.PendingWithdrawals,
		}
		result.Drifts = append(result.Drifts, drift)
		s.logger.Error("balance drift detected",
			"user_id", drift.UserID,
			"stored_balance", drift.StoredBalance,
			"ledger_balance", drift.LedgerBalance,
			"stored_held", drift.StoredHeld,
			"ledger_held", drift.LedgerHeld,
		)
		s.publish(RoutingKeyDriftDetected, drift)
	}

	s.logger.Info("balance reconciliation finished", "users_checked", result.UsersChecked, "drifts", len(result.Drifts))
	return result, nil
}

// ReconcileBalancesAs runs a reconciliation on behalf of an admin.
func (s *Service) ReconcileBalancesAs(ctx context.Context, actor domain.Actor) (*domain.ReconciliationResult, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.ReconcileBalances(ctx)
}
