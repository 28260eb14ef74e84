package models

// HeadSong is a track that, once it starts playing, pulls its linked songs
// into the playback queue. HeadNumber is the ordinal link rows point at.
type HeadSong struct {
	HeadNumber int64  `db:"head_number" json:"head_number"`
	URI        string `db:"id" json:"uri"`
	Title      string `db:"title" json:"title"`
	Artist     string `db:"artist" json:"artist"`
	UserID     string `db:"u_id" json:"-"`
	Playlist   string `db:"playlist" json:"playlist"`
}

// LinkSong is queued whenever the head song referenced by HeadNumber starts.
type LinkSong struct {
	LinkNumber int64  `db:"link_number" json:"link_number"`
	URI        string `db:"id" json:"uri"`
	Title      string `db:"title" json:"title"`
	Artist     string `db:"artist" json:"artist"`
	UserID     string `db:"u_id" json:"-"`
	HeadNumber int64  `db:"h_id" json:"head_number"`
	Playlist   string `db:"playlist" json:"playlist"`
}

// WebSession is the server-side state behind a session cookie. OAuthState is
// the state parameter of a pending sign-in.
type WebSession struct {
	ID           string `db:"id"`
	UserID       string `db:"user_id"`
	PlaylistName string `db:"playlist_name"`
	PlaylistID   string `db:"playlist_id"`
	PlaylistURI  string `db:"playlist_uri"`
	DeviceID     string `db:"device_id"`
	DeviceName   string `db:"device_name"`
	OAuthState   string `db:"oauth_state"`
}

func (s *WebSession) HasPlaylist() bool {
	return s.PlaylistName != "" && s.PlaylistID != "" && s.PlaylistURI != ""
}

func (s *WebSession) HasDevice() bool {
	return s.DeviceID != ""
}
