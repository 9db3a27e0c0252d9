package domain

import (
	"time"

	"github.com/google/uuid"
)

// WithdrawalStatus is the review state of a withdrawal request.
type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "pending"
	WithdrawalApproved WithdrawalStatus = "approved"
	WithdrawalRejected WithdrawalStatus = "rejected"
)

// Valid reports whether s is a known withdrawal status.
func (s WithdrawalStatus) Valid() bool {
	switch s {
	case WithdrawalPending, WithdrawalApproved, WithdrawalRejected:
		return true
	}
	return false
}

// Withdrawal is a request to pay part of a user's balance out. Amount is in cents.
type Withdrawal struct {
	ID         uuid.UUID        `json:"id"`
	UserID     uuid.UUID        `json:"user_id"`
	Amount     int64            `json:"amount"`
	Status     WithdrawalStatus `json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
	ReviewedAt *time.Time       `json:"reviewed_at,omitempty"`
}

// WithdrawalRequest is the user payload for a new withdrawal.
type WithdrawalRequest struct {
	Amount int64 `json:"amount"`
}

// WithdrawalView is a withdrawal joined with its owner for presentation.
type WithdrawalView struct {
	Withdrawal
	UserName    string `json:"user_name"`
	UserContact string `json:"user_contact"`
}
