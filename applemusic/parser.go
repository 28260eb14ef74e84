package applemusic

import (
	"errors"
	"net/url"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"
)

var ErrNotTrackURL = errors.New("not an Apple Music track URL")

var albumRegex = regexp.MustCompile(`/album/[^/]+/(\d+)`)

// TrackLink identifies one song on an Apple Music album page.
type TrackLink struct {
	Country string
	AlbumID string
	TrackID string
}

// IsAppleMusicURL reports whether rawURL points at music.apple.com or
// itunes.apple.com.
func IsAppleMusicURL(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return parsed.Host == "music.apple.com" || parsed.Host == "itunes.apple.com"
}

// ParseTrackURL extracts the album and track from a song link such as
// https://music.apple.com/us/album/name/123456789?i=1646389445. Album,
// playlist and artist links are rejected since they don't name one song.
func ParseTrackURL(rawURL string) (TrackLink, error) {
	if !IsAppleMusicURL(rawURL) {
		return TrackLink{}, ErrNotTrackURL
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return TrackLink{}, ErrNotTrackURL
	}

	link := TrackLink{Country: "us", TrackID: parsed.Query().Get("i")}
	if parts := strings.Split(strings.TrimPrefix(parsed.Path, "/"), "/"); len(parts) > 1 && len(parts[0]) == 2 {
		link.Country = parts[0]
	}
	if matches := albumRegex.FindStringSubmatch(parsed.Path); len(matches) > 1 {
		link.AlbumID = matches[1]
	}

	if link.TrackID == "" || link.AlbumID == "" {
		log.Debugf("Apple Music URL without a track: %s", rawURL)
		return TrackLink{}, ErrNotTrackURL
	}
	return link, nil
}
