package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"linkedsongs/models"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateHeadSong = errors.New("song is already a head song in this playlist")
)

type Database struct {
	db *sqlx.DB
}

// New opens (creating if needed) the SQLite database at dbPath and applies
// the schema.
func New(dbPath string) (*Database, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
	}

	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	d := &Database{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Infof("Database initialized at %s", dbPath)
	return d, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS head_song (
			head_number INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			artist TEXT NOT NULL DEFAULT '',
			u_id TEXT NOT NULL REFERENCES users(id),
			playlist TEXT NOT NULL,
			UNIQUE (u_id, playlist, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_head_song_user_playlist ON head_song(u_id, playlist)`,
		`CREATE TABLE IF NOT EXISTS link_song (
			link_number INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			artist TEXT NOT NULL DEFAULT '',
			u_id TEXT NOT NULL REFERENCES users(id),
			h_id INTEGER NOT NULL REFERENCES head_song(head_number),
			playlist TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_link_song_user_playlist ON link_song(u_id, playlist)`,
		`CREATE INDEX IF NOT EXISTS idx_link_song_head ON link_song(u_id, h_id)`,
		`CREATE TABLE IF NOT EXISTS web_session (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL DEFAULT '',
			playlist_name TEXT NOT NULL DEFAULT '',
			playlist_id TEXT NOT NULL DEFAULT '',
			playlist_uri TEXT NOT NULL DEFAULT '',
			device_id TEXT NOT NULL DEFAULT '',
			device_name TEXT NOT NULL DEFAULT '',
			oauth_state TEXT NOT NULL DEFAULT '',
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}

	return nil
}

// EnsureUser records a Spotify user ID the first time it signs in.
func (d *Database) EnsureUser(userID string) error {
	if _, err := d.db.Exec(`INSERT OR IGNORE INTO users (id) VALUES (?)`, userID); err != nil {
		return fmt.Errorf("failed to record user: %w", err)
	}
	return nil
}

// HeadSongs returns every head song a user attached to a playlist, oldest first.
func (d *Database) HeadSongs(userID, playlist string) ([]models.HeadSong, error) {
	songs := []models.HeadSong{}
	err := d.db.Select(&songs,
		`SELECT head_number, id, title, artist, u_id, playlist
		 FROM head_song
		 WHERE u_id = ? AND playlist = ?
		 ORDER BY head_number`,
		userID, playlist,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query head songs: %w", err)
	}
	return songs, nil
}

// LinkSongs returns every link song for a user's playlist, oldest first.
func (d *Database) LinkSongs(userID, playlist string) ([]models.LinkSong, error) {
	songs := []models.LinkSong{}
	err := d.db.Select(&songs,
		`SELECT link_number, id, title, artist, u_id, h_id, playlist
		 FROM link_song
		 WHERE u_id = ? AND playlist = ?
		 ORDER BY link_number`,
		userID, playlist,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query link songs: %w", err)
	}
	return songs, nil
}

func (d *Database) HeadSong(userID string, headNumber int64) (*models.HeadSong, error) {
	var song models.HeadSong
	err := d.db.Get(&song,
		`SELECT head_number, id, title, artist, u_id, playlist
		 FROM head_song
		 WHERE head_number = ? AND u_id = ?`,
		headNumber, userID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query head song: %w", err)
	}
	return &song, nil
}

func (d *Database) LinkSong(userID string, linkNumber int64) (*models.LinkSong, error) {
	var song models.LinkSong
	err := d.db.Get(&song,
		`SELECT link_number, id, title, artist, u_id, h_id, playlist
		 FROM link_song
		 WHERE link_number = ? AND u_id = ?`,
		linkNumber, userID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query link song: %w", err)
	}
	return &song, nil
}

// AddHeadSong inserts a head song and returns its ordinal. A URI can only be
// a head song once per user and playlist.
func (d *Database) AddHeadSong(song models.HeadSong) (int64, error) {
	tx, err := d.db.Beginx()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.Get(&count,
		`SELECT COUNT(*) FROM head_song WHERE u_id = ? AND playlist = ? AND id = ?`,
		song.UserID, song.Playlist, song.URI,
	); err != nil {
		return 0, fmt.Errorf("failed to check for duplicate head song: %w", err)
	}
	if count > 0 {
		return 0, ErrDuplicateHeadSong
	}

	res, err := tx.Exec(
		`INSERT INTO head_song (id, title, artist, u_id, playlist) VALUES (?, ?, ?, ?, ?)`,
		song.URI, song.Title, song.Artist, song.UserID, song.Playlist,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert head song: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read head song id: %w", err)
	}
	return id, tx.Commit()
}

// AddLinkSong attaches a link song to an existing head song of the same user
// and playlist.
func (d *Database) AddLinkSong(song models.LinkSong) (int64, error) {
	tx, err := d.db.Beginx()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.Get(&count,
		`SELECT COUNT(*) FROM head_song WHERE head_number = ? AND u_id = ? AND playlist = ?`,
		song.HeadNumber, song.UserID, song.Playlist,
	); err != nil {
		return 0, fmt.Errorf("failed to look up head song: %w", err)
	}
	if count == 0 {
		return 0, ErrNotFound
	}

	res, err := tx.Exec(
		`INSERT INTO link_song (id, title, artist, u_id, h_id, playlist) VALUES (?, ?, ?, ?, ?, ?)`,
		song.URI, song.Title, song.Artist, song.UserID, song.HeadNumber, song.Playlist,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert link song: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read link song id: %w", err)
	}
	return id, tx.Commit()
}

// DeleteHeadSong removes a head song together with every link song that
// references it, and returns the removed head song.
func (d *Database) DeleteHeadSong(userID string, headNumber int64) (*models.HeadSong, error) {
	tx, err := d.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var song models.HeadSong
	err = tx.Get(&song,
		`SELECT head_number, id, title, artist, u_id, playlist
		 FROM head_song
		 WHERE head_number = ? AND u_id = ?`,
		headNumber, userID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query head song: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM link_song WHERE h_id = ? AND u_id = ?`, headNumber, userID); err != nil {
		return nil, fmt.Errorf("failed to delete link songs: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM head_song WHERE head_number = ? AND u_id = ?`, headNumber, userID); err != nil {
		return nil, fmt.Errorf("failed to delete head song: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit head song delete: %w", err)
	}
	return &song, nil
}

func (d *Database) DeleteLinkSong(userID string, linkNumber int64) error {
	res, err := d.db.Exec(`DELETE FROM link_song WHERE link_number = ? AND u_id = ?`, linkNumber, userID)
	if err != nil {
		return fmt.Errorf("failed to delete link song: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete link song: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
