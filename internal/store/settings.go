package store

import (
	"database/sql"
	"fmt"
	"strings"
)

// Settings keys grouped by concern.
var mediaKeys = []string{
	"media_s3_endpoint",
	"media_s3_bucket",
	"media_s3_region",
}

var badgeKeys = []string{
	"badge_daily_limit",
	"badge_rate_scope",
	"badge_trusted_uids",
}

type SettingsStore struct {
	db *sql.DB
}

func NewSettingsStore(db *sql.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

func (s *SettingsStore) Get(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("setting %q not found", key)
	}
	if err != nil {
		return "", fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, nil
}

func (s *SettingsStore) Set(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, datetime('now'))
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = datetime('now')`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

func (s *SettingsStore) getGroup(keys []string) (map[string]string, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}

	rows, err := s.db.Query(`SELECT key, value FROM settings WHERE key IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("get settings group: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		settings[k] = v
	}
	return settings, rows.Err()
}

// GetMediaSettings returns the S3 media storage settings.
func (s *SettingsStore) GetMediaSettings() (map[string]string, error) {
	return s.getGroup(mediaKeys)
}

// GetBadgeSettings returns the badge workflow settings (rate limit, scope,
// trusted submitter uids).
func (s *SettingsStore) GetBadgeSettings() (map[string]string, error) {
	return s.getGroup(badgeKeys)
}
