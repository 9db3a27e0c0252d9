/**
 * @description
 * Domain models for DinCash users and the identities that map onto them.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is a DinCash account holder. Balance and HeldBalance are in cents.
type User struct {
	ID          uuid.UUID `json:"id"`
	AuthSubject string    `json:"-"`
	Name        string    `json:"name"`
	Contact     string    `json:"contact"`
	Balance     int64     `json:"balance"`
	HeldBalance int64     `json:"held_balance"`
	IsAdmin     bool      `json:"is_admin"`
	CreatedAt   time.Time `json:"created_at"`
}

// AvailableBalance is the part of the balance not reserved by pending withdrawals.
func (u User) AvailableBalance() int64 {
	return u.Balance - u.HeldBalance
}

// Identity is what the identity provider tells us about an authenticated caller.
type Identity struct {
	Subject string `json:"subject"`
	Name    string `json:"name"`
	Contact string `json:"contact"`
}

// Actor is the caller of a workflow operation.
type Actor struct {
	UserID  uuid.UUID
	IsAdmin bool
}

// IsZero reports whether the actor carries no identity.
func (a Actor) IsZero() bool {
	return a.UserID == uuid.Nil
}

// DashboardStats summarizes the admin overview.
type DashboardStats struct {
	Users              int64 `json:"users"`
	ActiveMissions     int64 `json:"active_missions"`
	PendingCompletions int64 `json:"pending_completions"`
	PendingWithdrawals int64 `json:"pending_withdrawals"`
}
