package model

import "time"

// Relation classifies a caregiver's relationship to a baby. The string values
// are part of the wire contract shared with the mobile clients.
type Relation string

const (
	RelationMother              Relation = "mother"
	RelationFather              Relation = "father"
	RelationGrandmotherMaternal Relation = "grandmother-maternal"
	RelationGrandmotherPaternal Relation = "grandmother-paternal"
	RelationGrandfatherMaternal Relation = "grandfather-maternal"
	RelationGrandfatherPaternal Relation = "grandfather-paternal"
	RelationStepmother          Relation = "stepmother"
	RelationStepfather          Relation = "stepfather"
	RelationAuntMaternal        Relation = "aunt-maternal"
	RelationAuntPaternal        Relation = "aunt-paternal"
	RelationUncleMaternal       Relation = "uncle-maternal"
	RelationUnclePaternal       Relation = "uncle-paternal"
	RelationGuardian            Relation = "guardian"
	RelationNanny               Relation = "nanny"
	RelationOther               Relation = "other"
)

// Relations lists every valid relation value.
var Relations = []Relation{
	RelationMother, RelationFather,
	RelationGrandmotherMaternal, RelationGrandmotherPaternal,
	RelationGrandfatherMaternal, RelationGrandfatherPaternal,
	RelationStepmother, RelationStepfather,
	RelationAuntMaternal, RelationAuntPaternal,
	RelationUncleMaternal, RelationUnclePaternal,
	RelationGuardian, RelationNanny, RelationOther,
}

// Valid reports whether r is one of the closed set of relations.
func (r Relation) Valid() bool {
	for _, rel := range Relations {
		if r == rel {
			return true
		}
	}
	return false
}

// Permission is a single capability a caregiver may hold for a baby.
type Permission string

const (
	PermView          Permission = "view"
	PermViewMedical   Permission = "view-medical"
	PermEdit          Permission = "edit"
	PermEditMedical   Permission = "edit-medical"
	PermDelete        Permission = "delete"
	PermManageFamily  Permission = "manage-family"
	PermUploadMedia   Permission = "upload-media"
	PermViewAnalytics Permission = "view-analytics"
)

// Permissions lists every valid permission value.
var Permissions = []Permission{
	PermView, PermViewMedical, PermEdit, PermEditMedical,
	PermDelete, PermManageFamily, PermUploadMedia, PermViewAnalytics,
}

// Valid reports whether p is one of the closed set of permissions.
func (p Permission) Valid() bool {
	for _, perm := range Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

type Baby struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
	DueDate   *time.Time `json:"due_date,omitempty"`
	Gender    string     `json:"gender,omitempty"`
	CreatedBy *int64     `json:"created_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// FamilyMember links a user to a baby with a relation and an optional explicit
// permission set. A nil Permissions slice means "use the relation defaults";
// an explicit set, once assigned, survives later relation changes.
type FamilyMember struct {
	ID          int64        `json:"id"`
	BabyID      int64        `json:"baby_id"`
	UserID      int64        `json:"user_id"`
	Relation    Relation     `json:"relation"`
	DisplayName string       `json:"display_name,omitempty"`
	IsPrimary   bool         `json:"is_primary"`
	Permissions []Permission `json:"permissions,omitempty"`
	AddedBy     *int64       `json:"added_by,omitempty"`
	AddedAt     time.Time    `json:"added_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}
