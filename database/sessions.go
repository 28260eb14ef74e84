package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"linkedsongs/models"
)

// GetSession loads the server-side state behind a session cookie.
func (d *Database) GetSession(id string) (*models.WebSession, error) {
	var s models.WebSession
	err := d.db.Get(&s,
		`SELECT id, user_id, playlist_name, playlist_id, playlist_uri, device_id, device_name, oauth_state
		 FROM web_session
		 WHERE id = ?`,
		id,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	return &s, nil
}

// SaveSession inserts or replaces the session row.
func (d *Database) SaveSession(s *models.WebSession) error {
	_, err := d.db.NamedExec(
		`INSERT INTO web_session (id, user_id, playlist_name, playlist_id, playlist_uri, device_id, device_name, oauth_state, updated_at)
		 VALUES (:id, :user_id, :playlist_name, :playlist_id, :playlist_uri, :device_id, :device_name, :oauth_state, :updated_at)
		 ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			playlist_name = excluded.playlist_name,
			playlist_id = excluded.playlist_id,
			playlist_uri = excluded.playlist_uri,
			device_id = excluded.device_id,
			device_name = excluded.device_name,
			oauth_state = excluded.oauth_state,
			updated_at = excluded.updated_at`,
		map[string]interface{}{
			"id":            s.ID,
			"user_id":       s.UserID,
			"playlist_name": s.PlaylistName,
			"playlist_id":   s.PlaylistID,
			"playlist_uri":  s.PlaylistURI,
			"device_id":     s.DeviceID,
			"device_name":   s.DeviceName,
			"oauth_state":   s.OAuthState,
			"updated_at":    time.Now().UTC().Format(time.RFC3339Nano),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (d *Database) DeleteSession(id string) error {
	if _, err := d.db.Exec(`DELETE FROM web_session WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
