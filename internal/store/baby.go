package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/nestlinghq/nestling/internal/model"
)

type BabyStore struct {
	db *sql.DB
}

func NewBabyStore(db *sql.DB) *BabyStore {
	return &BabyStore{db: db}
}

func scanBaby(scanner interface{ Scan(...any) error }) (*model.Baby, error) {
	var b model.Baby
	var birthDate, dueDate sql.NullTime
	var createdBy sql.NullInt64

	err := scanner.Scan(&b.ID, &b.Name, &birthDate, &dueDate, &b.Gender, &createdBy, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if birthDate.Valid {
		b.BirthDate = &birthDate.Time
	}
	if dueDate.Valid {
		b.DueDate = &dueDate.Time
	}
	if createdBy.Valid {
		b.CreatedBy = &createdBy.Int64
	}
	return &b, nil
}

const babyCols = `id, name, birth_date, due_date, gender, created_by, created_at, updated_at`

// execer covers both *sql.DB and *sql.Tx, so inserts can join a caller's
// transaction.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

func (s *BabyStore) Create(name string, birthDate, dueDate *time.Time, gender string, createdBy int64) (*model.Baby, error) {
	return s.create(s.db, name, birthDate, dueDate, gender, createdBy)
}

// CreateTx inserts a baby inside an open transaction.
func (s *BabyStore) CreateTx(tx *sql.Tx, name string, birthDate, dueDate *time.Time, gender string, createdBy int64) (*model.Baby, error) {
	return s.create(tx, name, birthDate, dueDate, gender, createdBy)
}

func (s *BabyStore) create(q execer, name string, birthDate, dueDate *time.Time, gender string, createdBy int64) (*model.Baby, error) {
	var bd, dd sql.NullTime
	if birthDate != nil {
		bd = sql.NullTime{Time: *birthDate, Valid: true}
	}
	if dueDate != nil {
		dd = sql.NullTime{Time: *dueDate, Valid: true}
	}

	result, err := q.Exec(
		`INSERT INTO babies (name, birth_date, due_date, gender, created_by) VALUES (?, ?, ?, ?, ?)`,
		name, bd, dd, gender, createdBy,
	)
	if err != nil {
		return nil, fmt.Errorf("insert baby: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := q.QueryRow(`SELECT `+babyCols+` FROM babies WHERE id = ?`, id)
	b, err := scanBaby(row)
	if err != nil {
		return nil, fmt.Errorf("get baby: %w", err)
	}
	return b, nil
}

func (s *BabyStore) GetByID(id int64) (*model.Baby, error) {
	row := s.db.QueryRow(`SELECT `+babyCols+` FROM babies WHERE id = ?`, id)
	b, err := scanBaby(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get baby: %w", err)
	}
	return b, nil
}

// ListForUser returns babies the user is a family member of, newest first.
func (s *BabyStore) ListForUser(userID int64) ([]model.Baby, error) {
	rows, err := s.db.Query(
		`SELECT b.id, b.name, b.birth_date, b.due_date, b.gender, b.created_by, b.created_at, b.updated_at
		 FROM babies b
		 JOIN family_members fm ON fm.baby_id = b.id
		 WHERE fm.user_id = ?
		 ORDER BY b.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list babies for user: %w", err)
	}
	defer rows.Close()

	var babies []model.Baby
	for rows.Next() {
		b, err := scanBaby(rows)
		if err != nil {
			return nil, fmt.Errorf("scan baby: %w", err)
		}
		babies = append(babies, *b)
	}
	return babies, rows.Err()
}

func (s *BabyStore) Update(id int64, name string, birthDate, dueDate *time.Time, gender string) (*model.Baby, error) {
	var bd, dd sql.NullTime
	if birthDate != nil {
		bd = sql.NullTime{Time: *birthDate, Valid: true}
	}
	if dueDate != nil {
		dd = sql.NullTime{Time: *dueDate, Valid: true}
	}

	_, err := s.db.Exec(
		`UPDATE babies SET name = ?, birth_date = ?, due_date = ?, gender = ?, updated_at = datetime('now') WHERE id = ?`,
		name, bd, dd, gender, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update baby: %w", err)
	}
	return s.GetByID(id)
}

func (s *BabyStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM babies WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete baby: %w", err)
	}
	return nil
}
