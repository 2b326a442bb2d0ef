package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/nestlinghq/nestling/internal/model"
)

type CollectionStore struct {
	db *sql.DB
}

func NewCollectionStore(db *sql.DB) *CollectionStore {
	return &CollectionStore{db: db}
}

func scanCollection(scanner interface{ Scan(...any) error }) (*model.BadgeCollection, error) {
	var c model.BadgeCollection
	var verifiedBy sql.NullInt64
	var verifiedAt sql.NullTime

	err := scanner.Scan(
		&c.ID, &c.BabyID, &c.BadgeID, &c.SubmittedBy, &c.CompletedAt, &c.Note,
		&c.Status, &verifiedBy, &verifiedAt, &c.VerificationNote, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if verifiedBy.Valid {
		c.VerifiedBy = &verifiedBy.Int64
	}
	if verifiedAt.Valid {
		c.VerifiedAt = &verifiedAt.Time
	}
	return &c, nil
}

const collectionCols = `id, baby_id, badge_id, submitted_by, completed_at, note, status, verified_by, verified_at, verification_note, created_at, updated_at`

// Create inserts a collection and its media rows in one transaction.
func (s *CollectionStore) Create(babyID, badgeID, submittedBy int64, completedAt time.Time, note string, media []model.MediaRef, status model.VerificationStatus) (*model.BadgeCollection, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`INSERT INTO badge_collections (baby_id, badge_id, submitted_by, completed_at, note, status)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		babyID, badgeID, submittedBy, completedAt.UTC(), note, status,
	)
	if err != nil {
		return nil, fmt.Errorf("insert collection: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	for _, m := range media {
		_, err := tx.Exec(
			`INSERT INTO badge_media (collection_id, object_key, content_type, size_bytes) VALUES (?, ?, ?, ?)`,
			id, m.ObjectKey, m.ContentType, m.SizeBytes,
		)
		if err != nil {
			return nil, fmt.Errorf("insert media: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(id)
}

func (s *CollectionStore) GetByID(id int64) (*model.BadgeCollection, error) {
	row := s.db.QueryRow(`SELECT `+collectionCols+` FROM badge_collections WHERE id = ?`, id)
	c, err := scanCollection(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get collection: %w", err)
	}

	c.Media, err = s.listMedia(id)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CollectionStore) listMedia(collectionID int64) ([]model.MediaRef, error) {
	rows, err := s.db.Query(
		`SELECT id, object_key, content_type, size_bytes, created_at FROM badge_media WHERE collection_id = ? ORDER BY id ASC`,
		collectionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	defer rows.Close()

	var media []model.MediaRef
	for rows.Next() {
		var m model.MediaRef
		if err := rows.Scan(&m.ID, &m.ObjectKey, &m.ContentType, &m.SizeBytes, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan media: %w", err)
		}
		media = append(media, m)
	}
	return media, rows.Err()
}

// CountSameDay returns how many submissions the submitter already has whose
// completed-at date falls on the same calendar day (UTC) as day. When babyID
// is non-nil the count is scoped to that baby.
func (s *CollectionStore) CountSameDay(submittedBy int64, day time.Time, babyID *int64) (int, error) {
	query := `SELECT COUNT(*) FROM badge_collections WHERE submitted_by = ? AND date(completed_at) = date(?)`
	args := []any{submittedBy, day.UTC()}
	if babyID != nil {
		query += ` AND baby_id = ?`
		args = append(args, *babyID)
	}

	var count int
	if err := s.db.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count same-day submissions: %w", err)
	}
	return count, nil
}

// Finalize transitions a pending collection to a terminal status, recording
// the verifier, note, and timestamp. Returns false without mutating anything
// if the collection is no longer pending; the WHERE clause makes the
// terminal-state guard atomic at the database.
func (s *CollectionStore) Finalize(id int64, status model.VerificationStatus, verifiedBy int64, note string) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE badge_collections
		 SET status = ?, verified_by = ?, verified_at = datetime('now'), verification_note = ?, updated_at = datetime('now')
		 WHERE id = ? AND status = ?`,
		status, verifiedBy, note, id, model.StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("finalize collection: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// UpdateContent replaces the note and media of a pending collection. Returns
// false if the collection is no longer pending.
func (s *CollectionStore) UpdateContent(id int64, note string, media []model.MediaRef) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`UPDATE badge_collections SET note = ?, updated_at = datetime('now') WHERE id = ? AND status = ?`,
		note, id, model.StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("update collection: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if _, err := tx.Exec(`DELETE FROM badge_media WHERE collection_id = ?`, id); err != nil {
		return false, fmt.Errorf("clear media: %w", err)
	}
	for _, m := range media {
		_, err := tx.Exec(
			`INSERT INTO badge_media (collection_id, object_key, content_type, size_bytes) VALUES (?, ?, ?, ?)`,
			id, m.ObjectKey, m.ContentType, m.SizeBytes,
		)
		if err != nil {
			return false, fmt.Errorf("insert media: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// ListByBaby returns a baby's collections, newest completion first. An empty
// status lists all.
func (s *CollectionStore) ListByBaby(babyID int64, status model.VerificationStatus) ([]model.BadgeCollection, error) {
	query := `SELECT ` + collectionCols + ` FROM badge_collections WHERE baby_id = ?`
	args := []any{babyID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY completed_at DESC`

	return s.list(query, args...)
}

// ListPending returns pending collections across all babies, oldest first,
// for the moderation queue.
func (s *CollectionStore) ListPending(limit int) ([]model.BadgeCollection, error) {
	return s.list(
		`SELECT `+collectionCols+` FROM badge_collections WHERE status = ? ORDER BY created_at ASC LIMIT ?`,
		model.StatusPending, limit,
	)
}

func (s *CollectionStore) list(query string, args ...any) ([]model.BadgeCollection, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	var collections []model.BadgeCollection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		collections = append(collections, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range collections {
		media, err := s.listMedia(collections[i].ID)
		if err != nil {
			return nil, err
		}
		collections[i].Media = media
	}
	return collections, nil
}
