package spotify

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"linkedsongs/config"
)

var ErrNoToken = errors.New("no cached Spotify token")

// Scopes needed to read the player, steer playback and edit playlists.
var Scopes = []string{
	spotifyauth.ScopeUserReadCurrentlyPlaying,
	spotifyauth.ScopeUserReadPlaybackState,
	spotifyauth.ScopeUserModifyPlaybackState,
	spotifyauth.ScopePlaylistReadPrivate,
	spotifyauth.ScopePlaylistModifyPrivate,
	spotifyauth.ScopePlaylistModifyPublic,
	spotifyauth.ScopeStreaming,
}

func NewAuthenticator(cfg config.SpotifyConfig) *spotifyauth.Authenticator {
	return spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithRedirectURL(cfg.RedirectURL),
		spotifyauth.WithScopes(Scopes...),
	)
}

// AuthURL is the Spotify consent page. The dialog is always shown so a
// different account can sign in after signing out.
func AuthURL(auth *spotifyauth.Authenticator, state string) string {
	return auth.AuthURL(state, oauth2.SetAuthURLParam("show_dialog", "true"))
}

// TokenCache keeps one OAuth token file per web session.
type TokenCache struct {
	dir string
}

func NewTokenCache(dir string) (*TokenCache, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create token cache directory %s: %w", dir, err)
	}
	return &TokenCache{dir: dir}, nil
}

// session IDs become file names, so only accept what we issue ourselves
func (t *TokenCache) path(sessionID string) (string, error) {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return "", fmt.Errorf("invalid session id %q: %w", sessionID, err)
	}
	return filepath.Join(t.dir, id.String()), nil
}

func (t *TokenCache) Load(sessionID string) (*oauth2.Token, error) {
	path, err := t.path(sessionID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}
	// an expired access token is fine as long as it can be refreshed
	if !token.Valid() && token.RefreshToken == "" {
		return nil, ErrNoToken
	}
	return &token, nil
}

func (t *TokenCache) Save(sessionID string, token *oauth2.Token) error {
	path, err := t.path(sessionID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write token: %w", err)
	}
	return nil
}

// Saver returns a callback that writes refreshed tokens for the session.
func (t *TokenCache) Saver(sessionID string) func(*oauth2.Token) {
	return func(token *oauth2.Token) {
		if err := t.Save(sessionID, token); err != nil {
			log.Warnf("Failed to cache refreshed token for session %s: %v", sessionID, err)
			return
		}
		log.Debugf("Cached refreshed token for session %s", sessionID)
	}
}

// Remove deletes the session's token. A missing file is not an error.
func (t *TokenCache) Remove(sessionID string) error {
	path, err := t.path(sessionID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove token: %w", err)
	}
	return nil
}
