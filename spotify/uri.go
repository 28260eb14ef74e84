package spotify

import (
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"
	spotifyclient "github.com/zmb3/spotify/v2"
)

var ErrNotTrackURI = errors.New("not a Spotify track URI or URL")

const trackURIPrefix = "spotify:track:"

// TrackID extracts the track ID from a spotify:track: URI or an
// open.spotify.com track URL.
func TrackID(uri string) (spotifyclient.ID, error) {
	if strings.HasPrefix(uri, trackURIPrefix) {
		id := strings.TrimPrefix(uri, trackURIPrefix)
		if id == "" || strings.Contains(id, ":") {
			return "", ErrNotTrackURI
		}
		return spotifyclient.ID(id), nil
	}

	if strings.HasPrefix(uri, "https://open.spotify.com/") {
		parts := strings.Split(uri, "/")
		if len(parts) < 5 || parts[3] != "track" {
			log.Warnf("Not a Spotify track URL: %s", uri)
			return "", ErrNotTrackURI
		}
		// Strip query parameters from ID (e.g., ?si=tracking_id)
		id := strings.Split(parts[4], "?")[0]
		if id == "" {
			return "", ErrNotTrackURI
		}
		return spotifyclient.ID(id), nil
	}

	return "", ErrNotTrackURI
}

// TrackURI normalises a track URI or URL to the spotify:track: form.
func TrackURI(uri string) (string, error) {
	id, err := TrackID(uri)
	if err != nil {
		return "", err
	}
	return trackURIPrefix + string(id), nil
}
