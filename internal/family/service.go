package family

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nestlinghq/nestling/internal/model"
	"github.com/nestlinghq/nestling/internal/store"
)

var (
	// ErrNotFound is returned when the baby or member does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied is returned when the actor lacks the required
	// capability or targets itself illegally.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrLastPrimaryCaregiver is returned when a mutation would leave the
	// baby with zero primary caregivers.
	ErrLastPrimaryCaregiver = errors.New("would leave zero primary caregivers")
)

// ValidationError describes a rejected input field. The mutation was not
// applied.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// Service coordinates family membership mutations. Invariant-sensitive
// operations on the same baby are serialized through a per-baby lock so the
// primary-caregiver check and the write apply as one atomic unit.
type Service struct {
	db      *sql.DB
	babies  *store.BabyStore
	members *store.FamilyMemberStore

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func NewService(db *sql.DB, babies *store.BabyStore, members *store.FamilyMemberStore) *Service {
	return &Service{
		db:      db,
		babies:  babies,
		members: members,
		locks:   make(map[int64]*sync.Mutex),
	}
}

func (s *Service) babyLock(babyID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[babyID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[babyID] = l
	}
	return l
}

// CreateBaby creates a baby and enrolls the creator as its first primary
// caregiver. Both writes share one transaction; a baby without a primary
// caregiver must never persist, not even on a failed member insert.
func (s *Service) CreateBaby(creatorUserID int64, name string, birthDate, dueDate *time.Time, gender string, relation model.Relation) (*model.Baby, error) {
	if name == "" {
		return nil, &ValidationError{Field: "name", Msg: "is required"}
	}
	if !relation.Valid() {
		return nil, &ValidationError{Field: "relation", Msg: "unknown relation type"}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin create baby: %w", err)
	}
	defer tx.Rollback()

	baby, err := s.babies.CreateTx(tx, name, birthDate, dueDate, gender, creatorUserID)
	if err != nil {
		return nil, err
	}
	if _, err := s.members.CreateTx(tx, baby.ID, creatorUserID, relation, "", true, nil, &creatorUserID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create baby: %w", err)
	}
	return baby, nil
}

// AddMember adds a caregiver to a baby's family. The actor must hold
// manage-family for the baby.
func (s *Service) AddMember(actorUserID, babyID, userID int64, relation model.Relation, displayName string, isPrimary bool, perms []model.Permission) (*model.FamilyMember, error) {
	if !relation.Valid() {
		return nil, &ValidationError{Field: "relation", Msg: "unknown relation type"}
	}
	for _, p := range perms {
		if !p.Valid() {
			return nil, &ValidationError{Field: "permissions", Msg: fmt.Sprintf("unknown permission %q", p)}
		}
	}

	lock := s.babyLock(babyID)
	lock.Lock()
	defer lock.Unlock()

	actor, err := s.requireActor(babyID, actorUserID)
	if err != nil {
		return nil, err
	}
	if !CanPerform(actor, model.PermManageFamily) {
		return nil, ErrPermissionDenied
	}

	existing, err := s.members.GetByUser(babyID, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &ValidationError{Field: "user_id", Msg: "already a family member"}
	}

	return s.members.Create(babyID, userID, relation, displayName, isPrimary, perms, &actorUserID)
}

// Enroll creates a membership directly, bypassing the actor check. Used by
// invitation acceptance, where authorization happened when the invite was
// issued.
func (s *Service) Enroll(babyID, userID int64, relation model.Relation, perms []model.Permission, invitedBy *int64) (*model.FamilyMember, error) {
	lock := s.babyLock(babyID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.members.GetByUser(babyID, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	return s.members.Create(babyID, userID, relation, "", false, perms, invitedBy)
}

// UpdateMemberParams carries the mutable fields of a membership. Nil fields
// are left unchanged. Permissions distinguishes "leave alone" (nil pointer)
// from "reset to relation defaults" (pointer to nil slice).
type UpdateMemberParams struct {
	Relation    *model.Relation
	DisplayName *string
	IsPrimary   *bool
	Permissions *[]model.Permission
}

// UpdateMember edits a member's relation, display name, explicit permission
// set, or primary flag. Anything beyond the member's own display name
// requires the actor to hold manage-family. Clearing the primary flag is
// invariant-checked.
func (s *Service) UpdateMember(actorUserID, babyID, userID int64, params UpdateMemberParams) (*model.FamilyMember, error) {
	if params.Relation != nil && !params.Relation.Valid() {
		return nil, &ValidationError{Field: "relation", Msg: "unknown relation type"}
	}
	if params.Permissions != nil && *params.Permissions != nil {
		for _, p := range *params.Permissions {
			if !p.Valid() {
				return nil, &ValidationError{Field: "permissions", Msg: fmt.Sprintf("unknown permission %q", p)}
			}
		}
	}

	lock := s.babyLock(babyID)
	lock.Lock()
	defer lock.Unlock()

	actor, err := s.requireActor(babyID, actorUserID)
	if err != nil {
		return nil, err
	}
	target, err := s.members.GetByUser(babyID, userID)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, ErrNotFound
	}

	selfDisplayNameOnly := actorUserID == userID &&
		params.Relation == nil && params.IsPrimary == nil && params.Permissions == nil
	if !selfDisplayNameOnly && !CanPerform(actor, model.PermManageFamily) {
		return nil, ErrPermissionDenied
	}

	// Check the invariant before touching anything: all-or-nothing.
	if params.IsPrimary != nil && !*params.IsPrimary && target.IsPrimary {
		if err := s.checkPrimaryInvariant(babyID, target); err != nil {
			return nil, err
		}
	}

	relation := target.Relation
	if params.Relation != nil {
		relation = *params.Relation
	}
	displayName := target.DisplayName
	if params.DisplayName != nil {
		displayName = *params.DisplayName
	}
	perms := target.Permissions
	if params.Permissions != nil {
		perms = *params.Permissions
	}

	return s.members.Update(target.ID, relation, displayName, perms, params.IsPrimary)
}

// SetPrimary toggles a member's primary-caregiver flag. Clearing it is
// rejected when it would leave the baby with no primary caregiver.
func (s *Service) SetPrimary(actorUserID, babyID, userID int64, primary bool) (*model.FamilyMember, error) {
	p := primary
	return s.UpdateMember(actorUserID, babyID, userID, UpdateMemberParams{IsPrimary: &p})
}

// RemoveMember removes a caregiver from a baby's family. Self-removal is
// disallowed; removing the last primary caregiver is rejected.
func (s *Service) RemoveMember(actorUserID, babyID, userID int64) error {
	if actorUserID == userID {
		return ErrPermissionDenied
	}

	lock := s.babyLock(babyID)
	lock.Lock()
	defer lock.Unlock()

	actor, err := s.requireActor(babyID, actorUserID)
	if err != nil {
		return err
	}
	if !CanPerform(actor, model.PermManageFamily) {
		return ErrPermissionDenied
	}

	target, err := s.members.GetByUser(babyID, userID)
	if err != nil {
		return err
	}
	if target == nil {
		return ErrNotFound
	}

	if err := s.checkPrimaryInvariant(babyID, target); err != nil {
		return err
	}
	return s.members.Delete(target.ID)
}

// ListMembers returns a baby's family, visible to any member.
func (s *Service) ListMembers(actorUserID, babyID int64) ([]model.FamilyMember, error) {
	if _, err := s.requireActor(babyID, actorUserID); err != nil {
		return nil, err
	}
	return s.members.ListByBaby(babyID)
}

// Member returns the actor's own membership for a baby.
func (s *Service) Member(babyID, userID int64) (*model.FamilyMember, error) {
	m, err := s.members.GetByUser(babyID, userID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNotFound
	}
	return m, nil
}

// MemberUserIDs returns the user ids of a baby's family, for realtime and
// notification fan-out. No actor check; callers gate access themselves.
func (s *Service) MemberUserIDs(babyID int64) ([]int64, error) {
	return s.members.ListUserIDs(babyID)
}

// checkPrimaryInvariant verifies that removing (or de-flagging) target still
// leaves at least one primary caregiver. Callers hold the baby lock.
func (s *Service) checkPrimaryInvariant(babyID int64, target *model.FamilyMember) error {
	count, err := s.members.CountPrimary(babyID)
	if err != nil {
		return err
	}
	remaining := count
	if target.IsPrimary {
		remaining--
	}
	if remaining < 1 {
		return ErrLastPrimaryCaregiver
	}
	return nil
}

func (s *Service) requireActor(babyID, actorUserID int64) (*model.FamilyMember, error) {
	baby, err := s.babies.GetByID(babyID)
	if err != nil {
		return nil, err
	}
	if baby == nil {
		return nil, ErrNotFound
	}
	actor, err := s.members.GetByUser(babyID, actorUserID)
	if err != nil {
		return nil, err
	}
	if actor == nil {
		return nil, ErrPermissionDenied
	}
	return actor, nil
}
