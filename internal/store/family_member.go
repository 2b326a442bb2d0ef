package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/nestlinghq/nestling/internal/model"
)

type FamilyMemberStore struct {
	db *sql.DB
}

func NewFamilyMemberStore(db *sql.DB) *FamilyMemberStore {
	return &FamilyMemberStore{db: db}
}

// marshalPermissions converts an explicit permission set to its stored JSON
// form. A nil slice maps to NULL, meaning "use relation defaults".
func marshalPermissions(perms []model.Permission) (sql.NullString, error) {
	if perms == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(perms)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal permissions: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalPermissionList(data string, dst *[]model.Permission) error {
	if err := json.Unmarshal([]byte(data), dst); err != nil {
		return fmt.Errorf("unmarshal permissions: %w", err)
	}
	return nil
}

func scanFamilyMember(scanner interface{ Scan(...any) error }) (*model.FamilyMember, error) {
	var m model.FamilyMember
	var isPrimary int
	var perms sql.NullString
	var addedBy sql.NullInt64

	err := scanner.Scan(
		&m.ID, &m.BabyID, &m.UserID, &m.Relation, &m.DisplayName,
		&isPrimary, &perms, &addedBy, &m.AddedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.IsPrimary = isPrimary != 0
	if perms.Valid {
		if err := unmarshalPermissionList(perms.String, &m.Permissions); err != nil {
			return nil, err
		}
	}
	if addedBy.Valid {
		m.AddedBy = &addedBy.Int64
	}
	return &m, nil
}

const familyMemberCols = `id, baby_id, user_id, relation, display_name, is_primary, permissions, added_by, added_at, updated_at`

func (s *FamilyMemberStore) Create(babyID, userID int64, relation model.Relation, displayName string, isPrimary bool, perms []model.Permission, addedBy *int64) (*model.FamilyMember, error) {
	return s.create(s.db, babyID, userID, relation, displayName, isPrimary, perms, addedBy)
}

// CreateTx inserts a member inside an open transaction, so a baby and its
// first primary caregiver can be created as one atomic unit.
func (s *FamilyMemberStore) CreateTx(tx *sql.Tx, babyID, userID int64, relation model.Relation, displayName string, isPrimary bool, perms []model.Permission, addedBy *int64) (*model.FamilyMember, error) {
	return s.create(tx, babyID, userID, relation, displayName, isPrimary, perms, addedBy)
}

func (s *FamilyMemberStore) create(q execer, babyID, userID int64, relation model.Relation, displayName string, isPrimary bool, perms []model.Permission, addedBy *int64) (*model.FamilyMember, error) {
	permsVal, err := marshalPermissions(perms)
	if err != nil {
		return nil, err
	}

	var primary int
	if isPrimary {
		primary = 1
	}
	var by sql.NullInt64
	if addedBy != nil {
		by = sql.NullInt64{Int64: *addedBy, Valid: true}
	}

	result, err := q.Exec(
		`INSERT INTO family_members (baby_id, user_id, relation, display_name, is_primary, permissions, added_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		babyID, userID, relation, displayName, primary, permsVal, by,
	)
	if err != nil {
		return nil, fmt.Errorf("insert family member: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := q.QueryRow(`SELECT `+familyMemberCols+` FROM family_members WHERE id = ?`, id)
	m, err := scanFamilyMember(row)
	if err != nil {
		return nil, fmt.Errorf("get family member: %w", err)
	}
	return m, nil
}

func (s *FamilyMemberStore) GetByID(id int64) (*model.FamilyMember, error) {
	row := s.db.QueryRow(`SELECT `+familyMemberCols+` FROM family_members WHERE id = ?`, id)
	m, err := scanFamilyMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get family member: %w", err)
	}
	return m, nil
}

// GetByUser returns the membership of a user for a baby, or nil if none.
func (s *FamilyMemberStore) GetByUser(babyID, userID int64) (*model.FamilyMember, error) {
	row := s.db.QueryRow(
		`SELECT `+familyMemberCols+` FROM family_members WHERE baby_id = ? AND user_id = ?`,
		babyID, userID,
	)
	m, err := scanFamilyMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get family member by user: %w", err)
	}
	return m, nil
}

// ListByBaby returns all members of a baby's family, primaries first.
func (s *FamilyMemberStore) ListByBaby(babyID int64) ([]model.FamilyMember, error) {
	rows, err := s.db.Query(
		`SELECT `+familyMemberCols+` FROM family_members WHERE baby_id = ? ORDER BY is_primary DESC, added_at ASC`,
		babyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list family members: %w", err)
	}
	defer rows.Close()

	var members []model.FamilyMember
	for rows.Next() {
		m, err := scanFamilyMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan family member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

// ListUserIDs returns the user ids of a baby's family members.
func (s *FamilyMemberStore) ListUserIDs(babyID int64) ([]int64, error) {
	rows, err := s.db.Query(`SELECT user_id FROM family_members WHERE baby_id = ?`, babyID)
	if err != nil {
		return nil, fmt.Errorf("list member user ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountPrimary returns the number of primary caregivers for a baby.
func (s *FamilyMemberStore) CountPrimary(babyID int64) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM family_members WHERE baby_id = ? AND is_primary = 1`,
		babyID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count primary caregivers: %w", err)
	}
	return count, nil
}

// Update rewrites a member's mutable fields in one statement; a nil
// isPrimary leaves the flag alone. One write keeps the primary flag and the
// rest of the mutation atomic.
func (s *FamilyMemberStore) Update(id int64, relation model.Relation, displayName string, perms []model.Permission, isPrimary *bool) (*model.FamilyMember, error) {
	permsVal, err := marshalPermissions(perms)
	if err != nil {
		return nil, err
	}

	var primary sql.NullInt64
	if isPrimary != nil {
		primary = sql.NullInt64{Valid: true}
		if *isPrimary {
			primary.Int64 = 1
		}
	}

	_, err = s.db.Exec(
		`UPDATE family_members
		 SET relation = ?, display_name = ?, permissions = ?,
		     is_primary = COALESCE(?, is_primary), updated_at = datetime('now')
		 WHERE id = ?`,
		relation, displayName, permsVal, primary, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update family member: %w", err)
	}
	return s.GetByID(id)
}

func (s *FamilyMemberStore) SetPrimary(id int64, primary bool) (*model.FamilyMember, error) {
	var p int
	if primary {
		p = 1
	}
	_, err := s.db.Exec(
		`UPDATE family_members SET is_primary = ?, updated_at = datetime('now') WHERE id = ?`,
		p, id,
	)
	if err != nil {
		return nil, fmt.Errorf("set primary: %w", err)
	}
	return s.GetByID(id)
}

func (s *FamilyMemberStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM family_members WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete family member: %w", err)
	}
	return nil
}
