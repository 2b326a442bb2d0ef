// Package family implements the permission model governing what each
// caregiver may do for a baby, including the invariant that every baby keeps
// at least one primary caregiver.
package family

import "github.com/nestlinghq/nestling/internal/model"

// DefaultPermissions returns the fixed default capability set for a relation
// type. Pure lookup; callers must not mutate the returned slice.
func DefaultPermissions(relation model.Relation) []model.Permission {
	switch relation {
	case model.RelationMother, model.RelationFather:
		return []model.Permission{
			model.PermView, model.PermViewMedical, model.PermEdit, model.PermEditMedical,
			model.PermDelete, model.PermManageFamily, model.PermUploadMedia, model.PermViewAnalytics,
		}
	case model.RelationGuardian:
		return []model.Permission{
			model.PermView, model.PermViewMedical, model.PermEdit, model.PermEditMedical,
			model.PermManageFamily, model.PermUploadMedia, model.PermViewAnalytics,
		}
	case model.RelationGrandmotherMaternal, model.RelationGrandmotherPaternal,
		model.RelationGrandfatherMaternal, model.RelationGrandfatherPaternal:
		return []model.Permission{
			model.PermView, model.PermViewMedical, model.PermEdit,
			model.PermUploadMedia, model.PermViewAnalytics,
		}
	case model.RelationStepmother, model.RelationStepfather:
		return []model.Permission{
			model.PermView, model.PermViewMedical, model.PermEdit, model.PermUploadMedia,
		}
	case model.RelationAuntMaternal, model.RelationAuntPaternal,
		model.RelationUncleMaternal, model.RelationUnclePaternal:
		return []model.Permission{model.PermView, model.PermUploadMedia}
	case model.RelationNanny:
		return []model.Permission{model.PermView, model.PermViewMedical, model.PermUploadMedia}
	default:
		// RelationOther and anything unrecognized: view only.
		return []model.Permission{model.PermView}
	}
}

// Effective returns the member's effective capability set. A non-empty
// explicit permission set is authoritative; an empty or absent set means
// "use the relation defaults". A relation change alone never retroactively
// changes an explicit set.
func Effective(m *model.FamilyMember) []model.Permission {
	if len(m.Permissions) == 0 {
		return DefaultPermissions(m.Relation)
	}
	return m.Permissions
}

// CanPerform reports whether the member's effective permissions include perm.
func CanPerform(m *model.FamilyMember, perm model.Permission) bool {
	for _, p := range Effective(m) {
		if p == perm {
			return true
		}
	}
	return false
}
