package store

import (
	"database/sql"
	"fmt"

	"github.com/nestlinghq/nestling/internal/model"
)

type BadgeStore struct {
	db *sql.DB
}

func NewBadgeStore(db *sql.DB) *BadgeStore {
	return &BadgeStore{db: db}
}

func scanBadge(scanner interface{ Scan(...any) error }) (*model.Badge, error) {
	var b model.Badge
	var minAge, maxAge sql.NullInt64
	var active, custom int

	err := scanner.Scan(
		&b.ID, &b.Title, &b.Description, &b.Category, &b.Difficulty,
		&minAge, &maxAge, &active, &custom, &b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if minAge.Valid {
		v := int(minAge.Int64)
		b.MinAgeMonths = &v
	}
	if maxAge.Valid {
		v := int(maxAge.Int64)
		b.MaxAgeMonths = &v
	}
	b.Active = active != 0
	b.Custom = custom != 0
	return &b, nil
}

const badgeCols = `id, title, description, category, difficulty, min_age_months, max_age_months, active, custom, created_at`

func (s *BadgeStore) Create(title, description string, category model.BadgeCategory, difficulty model.BadgeDifficulty, minAge, maxAge *int, custom bool) (*model.Badge, error) {
	var minVal, maxVal sql.NullInt64
	if minAge != nil {
		minVal = sql.NullInt64{Int64: int64(*minAge), Valid: true}
	}
	if maxAge != nil {
		maxVal = sql.NullInt64{Int64: int64(*maxAge), Valid: true}
	}
	var c int
	if custom {
		c = 1
	}

	result, err := s.db.Exec(
		`INSERT INTO badges (title, description, category, difficulty, min_age_months, max_age_months, custom)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		title, description, category, difficulty, minVal, maxVal, c,
	)
	if err != nil {
		return nil, fmt.Errorf("insert badge: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *BadgeStore) GetByID(id int64) (*model.Badge, error) {
	row := s.db.QueryRow(`SELECT `+badgeCols+` FROM badges WHERE id = ?`, id)
	b, err := scanBadge(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get badge: %w", err)
	}
	return b, nil
}

// ListActive returns active badges, optionally filtered by category.
func (s *BadgeStore) ListActive(category model.BadgeCategory) ([]model.Badge, error) {
	query := `SELECT ` + badgeCols + ` FROM badges WHERE active = 1`
	args := []any{}
	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY category ASC, title ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}
	defer rows.Close()

	var badges []model.Badge
	for rows.Next() {
		b, err := scanBadge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan badge: %w", err)
		}
		badges = append(badges, *b)
	}
	return badges, rows.Err()
}

func (s *BadgeStore) SetActive(id int64, active bool) (*model.Badge, error) {
	var a int
	if active {
		a = 1
	}
	_, err := s.db.Exec(`UPDATE badges SET active = ? WHERE id = ?`, a, id)
	if err != nil {
		return nil, fmt.Errorf("set badge active: %w", err)
	}
	return s.GetByID(id)
}
