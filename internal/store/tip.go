package store

import (
	"database/sql"
	"fmt"

	"github.com/nestlinghq/nestling/internal/model"
)

type TipStore struct {
	db *sql.DB
}

func NewTipStore(db *sql.DB) *TipStore {
	return &TipStore{db: db}
}

func scanTip(scanner interface{ Scan(...any) error }) (*model.Tip, error) {
	var t model.Tip
	var week sql.NullInt64
	var important int

	err := scanner.Scan(&t.ID, &t.Title, &t.Body, &t.Category, &week, &important, &t.TrendingScore, &t.PublishedAt)
	if err != nil {
		return nil, err
	}

	if week.Valid {
		w := int(week.Int64)
		t.Week = &w
	}
	t.Important = important != 0
	return &t, nil
}

const tipCols = `id, title, body, category, week, important, trending_score, published_at`

// TipFilter narrows a tip query. Zero values mean "no constraint".
type TipFilter struct {
	Category  string
	Week      *int
	Trending  bool
	Important bool
}

// Query returns a page of tips matching the filter. Trending queries order by
// trending score; everything else is newest first.
func (s *TipStore) Query(f TipFilter, page, limit int) ([]model.Tip, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := `SELECT ` + tipCols + ` FROM tips WHERE 1=1`
	args := []any{}
	if f.Category != "" {
		query += ` AND category = ?`
		args = append(args, f.Category)
	}
	if f.Week != nil {
		query += ` AND week = ?`
		args = append(args, *f.Week)
	}
	if f.Important {
		query += ` AND important = 1`
	}
	if f.Trending {
		query += ` ORDER BY trending_score DESC, published_at DESC`
	} else {
		query += ` ORDER BY published_at DESC`
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, (page-1)*limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tips: %w", err)
	}
	defer rows.Close()

	var tips []model.Tip
	for rows.Next() {
		t, err := scanTip(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tip: %w", err)
		}
		tips = append(tips, *t)
	}
	return tips, rows.Err()
}

func (s *TipStore) Create(title, body, category string, week *int, important bool, trendingScore int) (*model.Tip, error) {
	var w sql.NullInt64
	if week != nil {
		w = sql.NullInt64{Int64: int64(*week), Valid: true}
	}
	var imp int
	if important {
		imp = 1
	}

	result, err := s.db.Exec(
		`INSERT INTO tips (title, body, category, week, important, trending_score) VALUES (?, ?, ?, ?, ?, ?)`,
		title, body, category, w, imp, trendingScore,
	)
	if err != nil {
		return nil, fmt.Errorf("insert tip: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := s.db.QueryRow(`SELECT `+tipCols+` FROM tips WHERE id = ?`, id)
	return scanTip(row)
}
