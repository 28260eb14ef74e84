package spotify

import (
	"context"
	"errors"
	"strings"

	sentry "github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"
	spotifyclient "github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

const searchLimit = 10

// Client wraps the Spotify Web API for one signed-in user.
type Client struct {
	api    *spotifyclient.Client
	logger *log.Entry
}

type TrackInfo struct {
	URI    string `json:"uri"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

type Playlist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

type Device struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Active bool   `json:"active"`
}

type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// NewClient builds a client whose HTTP transport refreshes token as needed.
// onRefresh, when set, receives every token the transport refreshes.
func NewClient(ctx context.Context, auth *spotifyauth.Authenticator, token *oauth2.Token, onRefresh func(*oauth2.Token)) *Client {
	logger := log.WithFields(log.Fields{
		"module": "spotify",
	})

	httpClient := auth.Client(ctx, token)
	if onRefresh != nil {
		notifyRefresh(httpClient, token, onRefresh, logger)
	}

	return &Client{
		api:    spotifyclient.New(httpClient),
		logger: logger,
	}
}

// Note: zmb3/spotify only exposes the HTTP status through the error text for
// some calls, so not-found and forbidden are detected by string.
func friendlyError(err error) error {
	errStr := err.Error()
	if strings.Contains(errStr, "404") || strings.Contains(errStr, "Not Found") {
		return errors.New("not found on Spotify")
	}
	if strings.Contains(errStr, "403") || strings.Contains(errStr, "Forbidden") {
		return errors.New("not allowed by Spotify (premium account required for playback control)")
	}
	return err
}

func (c *Client) fail(span *sentry.Span, msg string, err error) error {
	c.logger.Errorf("%s: %v", msg, err)
	sentry.CaptureException(err)
	span.Status = sentry.SpanStatusInternalError
	return friendlyError(err)
}

func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	span := sentry.StartSpan(ctx, "spotify.current_user")
	span.Description = "Get current user from Spotify API"
	defer span.Finish()

	user, err := c.api.CurrentUser(ctx)
	if err != nil {
		return nil, c.fail(span, "Failed to fetch current Spotify user", err)
	}

	span.Status = sentry.SpanStatusOK
	return &User{ID: user.ID, DisplayName: user.DisplayName}, nil
}

// CurrentlyPlaying returns the URI of the track loaded in the player. ok is
// false when the account has nothing playing (or only a podcast episode).
func (c *Client) CurrentlyPlaying(ctx context.Context) (string, bool, error) {
	playing, err := c.api.PlayerCurrentlyPlaying(ctx)
	if err != nil {
		return "", false, err
	}
	if playing == nil || playing.Item == nil {
		return "", false, nil
	}
	return string(playing.Item.URI), true, nil
}

// PlaybackActive reports whether a track is actively playing.
func (c *Client) PlaybackActive(ctx context.Context) (bool, error) {
	span := sentry.StartSpan(ctx, "spotify.player_state")
	span.Description = "Get player state from Spotify API"
	defer span.Finish()

	state, err := c.api.PlayerState(ctx)
	if err != nil {
		return false, c.fail(span, "Failed to fetch Spotify player state", err)
	}

	span.Status = sentry.SpanStatusOK
	return state != nil && state.Item != nil && state.Playing, nil
}

// StartPlayback turns shuffle on and starts contextURI on deviceID.
func (c *Client) StartPlayback(ctx context.Context, deviceID string, contextURI string) error {
	span := sentry.StartSpan(ctx, "spotify.start_playback")
	span.Description = "Shuffle and start playback"
	span.SetTag("device_id", deviceID)
	span.SetTag("context_uri", contextURI)
	defer span.Finish()

	opts := &spotifyclient.PlayOptions{}
	if deviceID != "" {
		id := spotifyclient.ID(deviceID)
		opts.DeviceID = &id
	}

	if err := c.api.ShuffleOpt(ctx, true, opts); err != nil {
		return c.fail(span, "Failed to enable shuffle", err)
	}

	if contextURI != "" {
		uri := spotifyclient.URI(contextURI)
		opts.PlaybackContext = &uri
	}
	if err := c.api.PlayOpt(ctx, opts); err != nil {
		return c.fail(span, "Failed to start playback", err)
	}

	c.logger.Debugf("Started playback of %s on device %s", contextURI, deviceID)
	span.Status = sentry.SpanStatusOK
	return nil
}

func (c *Client) Pause(ctx context.Context, deviceID string) error {
	span := sentry.StartSpan(ctx, "spotify.pause")
	span.Description = "Pause playback"
	span.SetTag("device_id", deviceID)
	defer span.Finish()

	opts := &spotifyclient.PlayOptions{}
	if deviceID != "" {
		id := spotifyclient.ID(deviceID)
		opts.DeviceID = &id
	}
	if err := c.api.PauseOpt(ctx, opts); err != nil {
		return c.fail(span, "Failed to pause playback", err)
	}

	span.Status = sentry.SpanStatusOK
	return nil
}

// Queue appends a track to the user's playback queue.
func (c *Client) Queue(ctx context.Context, uri string) error {
	id, err := TrackID(uri)
	if err != nil {
		return err
	}
	return c.api.QueueSong(ctx, id)
}

func (c *Client) Search(ctx context.Context, query string) ([]TrackInfo, error) {
	span := sentry.StartSpan(ctx, "spotify.search")
	span.Description = "Search Spotify API"
	span.SetTag("query", query)
	defer span.Finish()

	results, err := c.api.Search(ctx, query, spotifyclient.SearchTypeTrack, spotifyclient.Limit(searchLimit))
	if err != nil {
		return nil, c.fail(span, "Failed to search Spotify", err)
	}

	tracks := []TrackInfo{}
	if results.Tracks != nil {
		for _, track := range results.Tracks.Tracks {
			tracks = append(tracks, trackInfo(track.SimpleTrack))
		}
	}

	span.Status = sentry.SpanStatusOK
	span.SetData("tracks_count", len(tracks))
	return tracks, nil
}

func (c *Client) GetTrack(ctx context.Context, uri string) (*TrackInfo, error) {
	log.Tracef("Fetching track from Spotify API: %s", uri)

	id, err := TrackID(uri)
	if err != nil {
		return nil, err
	}

	span := sentry.StartSpan(ctx, "spotify.get_track")
	span.Description = "Get track from Spotify API"
	span.SetTag("track_id", string(id))
	defer span.Finish()

	track, err := c.api.GetTrack(ctx, id)
	if err != nil {
		return nil, c.fail(span, "Failed to fetch Spotify track "+uri, err)
	}

	info := trackInfo(track.SimpleTrack)
	c.logger.Debugf("Successfully fetched Spotify track: '%s' by %s", info.Title, info.Artist)
	span.Status = sentry.SpanStatusOK
	return &info, nil
}

func trackInfo(track spotifyclient.SimpleTrack) TrackInfo {
	artist := ""
	if len(track.Artists) > 0 {
		artist = track.Artists[0].Name
	}
	return TrackInfo{
		URI:    string(track.URI),
		Title:  track.Name,
		Artist: artist,
	}
}

func (c *Client) Playlists(ctx context.Context) ([]Playlist, error) {
	span := sentry.StartSpan(ctx, "spotify.current_user_playlists")
	span.Description = "Get current user playlists from Spotify API"
	defer span.Finish()

	page, err := c.api.CurrentUsersPlaylists(ctx, spotifyclient.Limit(50))
	if err != nil {
		return nil, c.fail(span, "Failed to fetch Spotify playlists", err)
	}

	playlists := make([]Playlist, 0, len(page.Playlists))
	for _, p := range page.Playlists {
		playlists = append(playlists, Playlist{
			ID:   string(p.ID),
			Name: p.Name,
			URI:  string(p.URI),
		})
	}

	span.Status = sentry.SpanStatusOK
	span.SetData("playlists_count", len(playlists))
	return playlists, nil
}

func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	span := sentry.StartSpan(ctx, "spotify.devices")
	span.Description = "Get playback devices from Spotify API"
	defer span.Finish()

	devices, err := c.api.PlayerDevices(ctx)
	if err != nil {
		return nil, c.fail(span, "Failed to fetch Spotify devices", err)
	}

	out := make([]Device, 0, len(devices))
	for _, d := range devices {
		out = append(out, Device{
			ID:     string(d.ID),
			Name:   d.Name,
			Type:   d.Type,
			Active: d.Active,
		})
	}

	span.Status = sentry.SpanStatusOK
	return out, nil
}

// MoveToEnd removes every occurrence of the track from the playlist and
// appends it once.
func (c *Client) MoveToEnd(ctx context.Context, playlistID string, uri string) error {
	id, err := TrackID(uri)
	if err != nil {
		return err
	}

	span := sentry.StartSpan(ctx, "spotify.move_to_end")
	span.Description = "Move track to the end of a playlist"
	span.SetTag("playlist_id", playlistID)
	span.SetTag("track_id", string(id))
	defer span.Finish()

	if _, err := c.api.RemoveTracksFromPlaylist(ctx, spotifyclient.ID(playlistID), id); err != nil {
		return c.fail(span, "Failed to remove track from playlist", err)
	}
	if _, err := c.api.AddTracksToPlaylist(ctx, spotifyclient.ID(playlistID), id); err != nil {
		return c.fail(span, "Failed to add track to playlist", err)
	}

	span.Status = sentry.SpanStatusOK
	return nil
}

// RemoveFromPlaylist removes every occurrence of the track from the playlist.
func (c *Client) RemoveFromPlaylist(ctx context.Context, playlistID string, uri string) error {
	id, err := TrackID(uri)
	if err != nil {
		return err
	}

	span := sentry.StartSpan(ctx, "spotify.remove_from_playlist")
	span.Description = "Remove track from a playlist"
	span.SetTag("playlist_id", playlistID)
	span.SetTag("track_id", string(id))
	defer span.Finish()

	if _, err := c.api.RemoveTracksFromPlaylist(ctx, spotifyclient.ID(playlistID), id); err != nil {
		return c.fail(span, "Failed to remove track from playlist", err)
	}

	span.Status = sentry.SpanStatusOK
	return nil
}
