package model

import "time"

// User roles. Moderators may verify badge submissions; admins may additionally
// manage badge definitions.
const (
	RoleCaregiver = "caregiver"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

type User struct {
	ID        int64     `json:"id"`
	UID       string    `json:"uid"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsModerator reports whether the user holds moderation authority.
func (u *User) IsModerator() bool {
	return u.Role == RoleModerator || u.Role == RoleAdmin
}

type Session struct {
	ID        int64     `json:"id"`
	Token     string    `json:"token"`
	UserID    int64     `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
