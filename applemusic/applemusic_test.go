package applemusic

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseTrackURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    TrackLink
		wantErr bool
	}{
		{
			name: "track with i query",
			url:  "https://music.apple.com/us/album/album-name/123456789?i=1646389445",
			want: TrackLink{Country: "us", AlbumID: "123456789", TrackID: "1646389445"},
		},
		{
			name: "other storefront",
			url:  "https://music.apple.com/gb/album/album-name/123456789?i=42",
			want: TrackLink{Country: "gb", AlbumID: "123456789", TrackID: "42"},
		},
		{
			name: "itunes domain",
			url:  "https://itunes.apple.com/us/album/album-name/123456789?i=42",
			want: TrackLink{Country: "us", AlbumID: "123456789", TrackID: "42"},
		},
		{
			name:    "album without track",
			url:     "https://music.apple.com/us/album/the-dark-side-of-the-moon/1441165866",
			wantErr: true,
		},
		{
			name:    "playlist",
			url:     "https://music.apple.com/us/playlist/90s-alternative/pl.u-8VoLGjY1l8l5",
			wantErr: true,
		},
		{
			name:    "not apple",
			url:     "https://open.spotify.com/track/0VjIjW4GlUZAMYd2vXMi3b",
			wantErr: true,
		},
		{
			name:    "lookalike host",
			url:     "https://music.apple.com.example.org/us/album/x/1?i=2",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTrackURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTrackURL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrNotTrackURL) {
					t.Errorf("error = %v, want ErrNotTrackURL", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("ParseTrackURL() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

const jsonLDPage = `<html><head>
<script type="application/ld+json">{"@type":"MusicAlbum","name":"Wrong"}</script>
<script type="application/ld+json">{"@type":"MusicRecording","name":"Heroes","byArtist":[{"name":"David Bowie"},{"name":"Someone"}]}</script>
</head></html>`

const openGraphPage = `<html><head>
<title>Heroes - David Bowie on Apple Music</title>
<meta property="og:title" content="Heroes">
</head></html>`

func TestLookup(t *testing.T) {
	pages := map[string]string{
		"1": jsonLDPage,
		"2": openGraphPage,
		"3": "<html></html>",
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/us/album/99" {
			http.NotFound(w, r)
			return
		}
		page, ok := pages[r.URL.Query().Get("i")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(page))
	}))
	defer server.Close()

	scraper := NewScraper()
	scraper.BaseURL = server.URL

	tests := []struct {
		name    string
		trackID string
		want    Track
		wantErr bool
	}{
		{name: "json-ld", trackID: "1", want: Track{Title: "Heroes", Artist: "David Bowie"}},
		{name: "open graph fallback", trackID: "2", want: Track{Title: "Heroes", Artist: "David Bowie"}},
		{name: "no metadata", trackID: "3", wantErr: true},
		{name: "missing page", trackID: "4", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := scraper.Lookup(context.Background(), TrackLink{Country: "us", AlbumID: "99", TrackID: tt.trackID})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Lookup() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && *got != tt.want {
				t.Errorf("Lookup() = %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestTrackQuery(t *testing.T) {
	got := Track{Title: "Heroes", Artist: "David Bowie"}.Query()
	if got != "track:Heroes artist:David Bowie" {
		t.Errorf("Query() = %q", got)
	}
}
