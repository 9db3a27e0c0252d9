package domain

import (
	"time"

	"github.com/google/uuid"
)

// LedgerEvent is published whenever a completion or withdrawal changes state.
type LedgerEvent struct {
	UserID    uuid.UUID  `json:"user_id"`
	EntityID  uuid.UUID  `json:"entity_id"`
	MissionID *uuid.UUID `json:"mission_id,omitempty"`
	Amount    int64      `json:"amount"`
	Status    string     `json:"status"`
	Timestamp time.Time  `json:"timestamp"`
}

// UserCreatedEvent is consumed from the identity provider when an account signs up.
type UserCreatedEvent struct {
	Subject string `json:"subject"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
}

// BalanceDrift describes a user whose stored balance disagrees with the ledger.
type BalanceDrift struct {
	UserID        uuid.UUID `json:"user_id"`
	StoredBalance int64     `json:"stored_balance"`
	LedgerBalance int64     `json:"ledger_balance"`
	StoredHeld    int64     `json:"stored_held"`
	LedgerHeld    int64     `json:"ledger_held"`
}

// ReconciliationResult summarizes a reconciliation run.
type ReconciliationResult struct {
	UsersChecked int            `json:"users_checked"`
	Drifts       []BalanceDrift `json:"drifts"`
	StartedAt    time.Time      `json:"started_at"`
}
