package store

import (
	"database/sql"
	"fmt"

	"github.com/nestlinghq/nestling/internal/model"
)

type PushStore struct {
	db *sql.DB
}

func NewPushStore(db *sql.DB) *PushStore {
	return &PushStore{db: db}
}

func scanSubscription(scanner interface{ Scan(...any) error }) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	err := scanner.Scan(&sub.ID, &sub.UserID, &sub.Endpoint, &sub.P256dhKey, &sub.AuthKey, &sub.DeviceName, &sub.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

const subscriptionCols = `id, user_id, endpoint, p256dh_key, auth_key, device_name, created_at`

// Subscribe registers a push subscription, replacing any existing row for the
// same endpoint.
func (s *PushStore) Subscribe(userID int64, endpoint, p256dh, auth, deviceName string) (*model.PushSubscription, error) {
	result, err := s.db.Exec(
		`INSERT INTO push_subscriptions (user_id, endpoint, p256dh_key, auth_key, device_name) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(endpoint) DO UPDATE SET user_id = excluded.user_id, p256dh_key = excluded.p256dh_key, auth_key = excluded.auth_key, device_name = excluded.device_name`,
		userID, endpoint, p256dh, auth, deviceName,
	)
	if err != nil {
		return nil, fmt.Errorf("insert subscription: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := s.db.QueryRow(`SELECT `+subscriptionCols+` FROM push_subscriptions WHERE id = ?`, id)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		// Upsert hit the conflict branch; look up by endpoint instead.
		row = s.db.QueryRow(`SELECT `+subscriptionCols+` FROM push_subscriptions WHERE endpoint = ?`, endpoint)
		sub, err = scanSubscription(row)
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

func (s *PushStore) ListByUser(userID int64) ([]model.PushSubscription, error) {
	rows, err := s.db.Query(
		`SELECT `+subscriptionCols+` FROM push_subscriptions WHERE user_id = ? ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []model.PushSubscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

func (s *PushStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM push_subscriptions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}

func (s *PushStore) DeleteByEndpoint(endpoint string) error {
	_, err := s.db.Exec(`DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint)
	if err != nil {
		return fmt.Errorf("delete subscription by endpoint: %w", err)
	}
	return nil
}

// IsEnabled reports whether the user has the notification type enabled.
// Missing preference rows default to enabled.
func (s *PushStore) IsEnabled(userID int64, notificationType string) (bool, error) {
	var enabled int
	err := s.db.QueryRow(
		`SELECT enabled FROM notification_preferences WHERE user_id = ? AND notification_type = ?`,
		userID, notificationType,
	).Scan(&enabled)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("get preference: %w", err)
	}
	return enabled != 0, nil
}

func (s *PushStore) SetPreference(userID int64, notificationType string, enabled bool) error {
	var e int
	if enabled {
		e = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO notification_preferences (user_id, notification_type, enabled) VALUES (?, ?, ?)
		 ON CONFLICT(user_id, notification_type) DO UPDATE SET enabled = excluded.enabled, updated_at = datetime('now')`,
		userID, notificationType, e,
	)
	if err != nil {
		return fmt.Errorf("set preference: %w", err)
	}
	return nil
}

func (s *PushStore) ListPreferences(userID int64) ([]model.NotificationPreference, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, notification_type, enabled, created_at, updated_at FROM notification_preferences WHERE user_id = ? ORDER BY notification_type`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list preferences: %w", err)
	}
	defer rows.Close()

	var prefs []model.NotificationPreference
	for rows.Next() {
		var p model.NotificationPreference
		var enabled int
		if err := rows.Scan(&p.ID, &p.UserID, &p.NotificationType, &enabled, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		p.Enabled = enabled != 0
		prefs = append(prefs, p)
	}
	return prefs, rows.Err()
}
