package model

import "time"

// Invitation invites a caregiver by email to join a baby's family. The code
// is a 6-digit number delivered by email; only its bcrypt hash is stored.
type Invitation struct {
	ID          int64        `json:"id"`
	Email       string       `json:"email"`
	BabyID      int64        `json:"baby_id"`
	Relation    Relation     `json:"relation"`
	Permissions []Permission `json:"permissions,omitempty"`
	InvitedBy   *int64       `json:"invited_by,omitempty"`
	ExpiresAt   time.Time    `json:"expires_at"`
	AcceptedAt  *time.Time   `json:"accepted_at,omitempty"`
	Attempts    int          `json:"attempts"`
	CreatedAt   time.Time    `json:"created_at"`
}
