package domain

import (
	"time"

	"github.com/google/uuid"
)

// CompletionStatus is the review state of a mission completion.
type CompletionStatus string

const (
	CompletionPending   CompletionStatus = "pending"
	CompletionCompleted CompletionStatus = "completed"
	CompletionRejected  CompletionStatus = "rejected"
)

// Valid reports whether s is a known completion status.
func (s CompletionStatus) Valid() bool {
	switch s {
	case CompletionPending, CompletionCompleted, CompletionRejected:
		return true
	}
	return false
}

// MissionCompletion is a user's claim of having finished a mission.
type MissionCompletion struct {
	ID         uuid.UUID        `json:"id"`
	UserID     uuid.UUID        `json:"user_id"`
	MissionID  uuid.UUID        `json:"mission_id"`
	Status     CompletionStatus `json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
	ReviewedAt *time.Time       `json:"reviewed_at,omitempty"`
}

// CompletionView is a completion joined with its owner and mission for presentation.
type CompletionView struct {
	MissionCompletion
	UserName      string `json:"user_name"`
	UserContact   string `json:"user_contact"`
	MissionTitle  string `json:"mission_title"`
	MissionReward int64  `json:"mission_reward"`
}
