package model

import "time"

// Badge categories and difficulties. Closed sets shared with the clients.
type BadgeCategory string

const (
	CategoryMotor     BadgeCategory = "motor"
	CategoryCognitive BadgeCategory = "cognitive"
	CategorySocial    BadgeCategory = "social"
	CategoryLanguage  BadgeCategory = "language"
	CategorySelfCare  BadgeCategory = "self-care"
	CategoryMilestone BadgeCategory = "milestone"
)

var BadgeCategories = []BadgeCategory{
	CategoryMotor, CategoryCognitive, CategorySocial,
	CategoryLanguage, CategorySelfCare, CategoryMilestone,
}

func (c BadgeCategory) Valid() bool {
	for _, cat := range BadgeCategories {
		if c == cat {
			return true
		}
	}
	return false
}

type BadgeDifficulty string

const (
	DifficultyEasy   BadgeDifficulty = "easy"
	DifficultyMedium BadgeDifficulty = "medium"
	DifficultyHard   BadgeDifficulty = "hard"
)

var BadgeDifficulties = []BadgeDifficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

func (d BadgeDifficulty) Valid() bool {
	for _, diff := range BadgeDifficulties {
		if d == diff {
			return true
		}
	}
	return false
}

// Badge is an achievement definition. Immutable once referenced by submissions.
type Badge struct {
	ID           int64           `json:"id"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Category     BadgeCategory   `json:"category"`
	Difficulty   BadgeDifficulty `json:"difficulty"`
	MinAgeMonths *int            `json:"min_age_months,omitempty"`
	MaxAgeMonths *int            `json:"max_age_months,omitempty"`
	Active       bool            `json:"active"`
	Custom       bool            `json:"custom"`
	CreatedAt    time.Time       `json:"created_at"`
}

// VerificationStatus is the moderation state of a badge collection.
// Pending is the only non-terminal state.
type VerificationStatus string

const (
	StatusPending      VerificationStatus = "pending"
	StatusApproved     VerificationStatus = "approved"
	StatusRejected     VerificationStatus = "rejected"
	StatusAutoApproved VerificationStatus = "auto-approved"
)

// Terminal reports whether no further transition is permitted out of s.
func (s VerificationStatus) Terminal() bool {
	return s != StatusPending
}

// MediaRef describes one piece of evidence attached to a submission.
type MediaRef struct {
	ID          int64     `json:"id,omitempty"`
	ObjectKey   string    `json:"object_key"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// BadgeCollection is one caregiver's claim that a baby achieved a badge,
// subject to moderation. Never physically deleted by the normal workflow.
type BadgeCollection struct {
	ID               int64              `json:"id"`
	BabyID           int64              `json:"baby_id"`
	BadgeID          int64              `json:"badge_id"`
	SubmittedBy      int64              `json:"submitted_by"`
	CompletedAt      time.Time          `json:"completed_at"`
	Note             string             `json:"note,omitempty"`
	Media            []MediaRef         `json:"media,omitempty"`
	Status           VerificationStatus `json:"status"`
	VerifiedBy       *int64             `json:"verified_by,omitempty"`
	VerifiedAt       *time.Time         `json:"verified_at,omitempty"`
	VerificationNote string             `json:"verification_note,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}
