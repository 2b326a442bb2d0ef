package store

import (
	"crypto/rand"
	"database/sql"
	"fmt"
	"math/big"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/nestlinghq/nestling/internal/model"
)

type InvitationStore struct {
	db *sql.DB
}

func NewInvitationStore(db *sql.DB) *InvitationStore {
	return &InvitationStore{db: db}
}

func scanInvitation(scanner interface{ Scan(...any) error }) (*model.Invitation, string, error) {
	var inv model.Invitation
	var codeHash string
	var perms sql.NullString
	var invitedBy sql.NullInt64
	var acceptedAt sql.NullTime

	err := scanner.Scan(
		&inv.ID, &codeHash, &inv.Email, &inv.BabyID, &inv.Relation, &perms,
		&invitedBy, &inv.ExpiresAt, &acceptedAt, &inv.Attempts, &inv.CreatedAt,
	)
	if err != nil {
		return nil, "", err
	}

	if perms.Valid {
		if err := unmarshalPermissionList(perms.String, &inv.Permissions); err != nil {
			return nil, "", err
		}
	}
	if invitedBy.Valid {
		inv.InvitedBy = &invitedBy.Int64
	}
	if acceptedAt.Valid {
		inv.AcceptedAt = &acceptedAt.Time
	}
	return &inv, codeHash, nil
}

const invitationCols = `id, code_hash, email, baby_id, relation, permissions, invited_by, expires_at, accepted_at, attempts, created_at`

// generateCode returns a 6-digit numeric code (100000–999999).
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// Create generates an invitation with a 6-digit code and 72-hour expiry, and
// returns the plaintext code for email delivery. Only the bcrypt hash is
// persisted. Any previous open invitations for the same email and baby are
// expired first.
func (s *InvitationStore) Create(email string, babyID int64, relation model.Relation, perms []model.Permission, invitedBy int64) (*model.Invitation, string, error) {
	_, err := s.db.Exec(
		`UPDATE invitations SET expires_at = datetime('now') WHERE email = ? AND baby_id = ? AND accepted_at IS NULL AND expires_at > datetime('now')`,
		email, babyID,
	)
	if err != nil {
		return nil, "", fmt.Errorf("expire previous invitations: %w", err)
	}

	code, err := generateCode()
	if err != nil {
		return nil, "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash code: %w", err)
	}

	permsVal, err := marshalPermissions(perms)
	if err != nil {
		return nil, "", err
	}
	expiresAt := time.Now().UTC().Add(72 * time.Hour)

	result, err := s.db.Exec(
		`INSERT INTO invitations (code_hash, email, baby_id, relation, permissions, invited_by, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(hash), email, babyID, relation, permsVal, invitedBy, expiresAt,
	)
	if err != nil {
		return nil, "", fmt.Errorf("insert invitation: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, "", fmt.Errorf("last insert id: %w", err)
	}

	inv, _, err := s.getByID(id)
	if err != nil {
		return nil, "", err
	}
	return inv, code, nil
}

func (s *InvitationStore) getByID(id int64) (*model.Invitation, string, error) {
	row := s.db.QueryRow(`SELECT `+invitationCols+` FROM invitations WHERE id = ?`, id)
	inv, hash, err := scanInvitation(row)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("get invitation: %w", err)
	}
	return inv, hash, nil
}

// maxAttempts bounds code guesses before an invitation is burned.
const maxAttempts = 5

// Redeem verifies the code against the newest open invitation for the email
// and marks it accepted. Returns nil if there is no open invitation, the code
// does not match, or the attempt budget is exhausted.
func (s *InvitationStore) Redeem(email, code string) (*model.Invitation, error) {
	row := s.db.QueryRow(
		`SELECT `+invitationCols+` FROM invitations
		 WHERE email = ? AND accepted_at IS NULL AND expires_at > datetime('now')
		 ORDER BY created_at DESC LIMIT 1`,
		email,
	)
	inv, hash, err := scanInvitation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get open invitation: %w", err)
	}
	if inv.Attempts >= maxAttempts {
		return nil, nil
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) != nil {
		_, err := s.db.Exec(`UPDATE invitations SET attempts = attempts + 1 WHERE id = ?`, inv.ID)
		if err != nil {
			return nil, fmt.Errorf("increment attempts: %w", err)
		}
		return nil, nil
	}

	_, err = s.db.Exec(`UPDATE invitations SET accepted_at = datetime('now') WHERE id = ?`, inv.ID)
	if err != nil {
		return nil, fmt.Errorf("mark invitation accepted: %w", err)
	}

	inv, _, err = s.getByID(inv.ID)
	return inv, err
}

func (s *InvitationStore) DeleteExpired() (int64, error) {
	result, err := s.db.Exec(`DELETE FROM invitations WHERE expires_at <= datetime('now') AND accepted_at IS NULL`)
	if err != nil {
		return 0, fmt.Errorf("delete expired invitations: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
