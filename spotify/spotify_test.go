package spotify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"linkedsongs/config"
)

func TestTrackURI(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		want    string
		wantErr bool
	}{
		{
			name: "uri",
			uri:  "spotify:track:0VjIjW4GlUZAMYd2vXMi3b",
			want: "spotify:track:0VjIjW4GlUZAMYd2vXMi3b",
		},
		{
			name: "url",
			uri:  "https://open.spotify.com/track/0VjIjW4GlUZAMYd2vXMi3b",
			want: "spotify:track:0VjIjW4GlUZAMYd2vXMi3b",
		},
		{
			name: "url with si query",
			uri:  "https://open.spotify.com/track/0VjIjW4GlUZAMYd2vXMi3b?si=abc123",
			want: "spotify:track:0VjIjW4GlUZAMYd2vXMi3b",
		},
		{
			name:    "episode uri",
			uri:     "spotify:episode:512ojhOuo1ktJprKbVcKyQ",
			wantErr: true,
		},
		{
			name:    "playlist url",
			uri:     "https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M",
			wantErr: true,
		},
		{
			name:    "empty id",
			uri:     "spotify:track:",
			wantErr: true,
		},
		{
			name:    "missing url id",
			uri:     "https://open.spotify.com/track/",
			wantErr: true,
		},
		{
			name:    "invalid domain",
			uri:     "https://example.com/track/abc",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TrackURI(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Errorf("TrackURI() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				if !errors.Is(err, ErrNotTrackURI) {
					t.Errorf("TrackURI() error = %v, want ErrNotTrackURI", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("TrackURI() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTokenCache(t *testing.T) {
	cache, err := NewTokenCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewTokenCache: %v", err)
	}
	sessionID := uuid.NewString()

	if _, err := cache.Load(sessionID); !errors.Is(err, ErrNoToken) {
		t.Fatalf("Load before Save err = %v, want ErrNoToken", err)
	}

	token := &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour).Round(time.Second),
	}
	if err := cache.Save(sessionID, token); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := cache.Load(sessionID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.AccessToken != "access" || got.RefreshToken != "refresh" || !got.Expiry.Equal(token.Expiry) {
		t.Errorf("Load = %+v, want %+v", got, token)
	}

	if err := cache.Remove(sessionID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := cache.Remove(sessionID); err != nil {
		t.Errorf("second Remove: %v", err)
	}
	if _, err := cache.Load(sessionID); !errors.Is(err, ErrNoToken) {
		t.Errorf("Load after Remove err = %v, want ErrNoToken", err)
	}
}

func TestTokenCacheExpiredWithoutRefresh(t *testing.T) {
	cache, _ := NewTokenCache(t.TempDir())
	sessionID := uuid.NewString()

	cache.Save(sessionID, &oauth2.Token{AccessToken: "old", Expiry: time.Now().Add(-time.Hour)})
	if _, err := cache.Load(sessionID); !errors.Is(err, ErrNoToken) {
		t.Errorf("Load expired err = %v, want ErrNoToken", err)
	}

	cache.Save(sessionID, &oauth2.Token{AccessToken: "old", RefreshToken: "r", Expiry: time.Now().Add(-time.Hour)})
	if _, err := cache.Load(sessionID); err != nil {
		t.Errorf("refreshable token should load: %v", err)
	}
}

func TestTokenCacheRejectsPathTraversal(t *testing.T) {
	cache, _ := NewTokenCache(t.TempDir())
	for _, id := range []string{"../../etc/passwd", "", "not-a-uuid"} {
		if err := cache.Save(id, &oauth2.Token{AccessToken: "x"}); err == nil {
			t.Errorf("Save(%q) should fail", id)
		}
	}
}

type staticSource struct {
	calls int
	token *oauth2.Token
}

func (s *staticSource) Token() (*oauth2.Token, error) {
	s.calls++
	return s.token, nil
}

func TestRefreshedTokenIsCached(t *testing.T) {
	var mutex sync.Mutex
	var authHeaders []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mutex.Lock()
		defer mutex.Unlock()
		authHeaders = append(authHeaders, r.Header.Get("Authorization"))
	}))
	defer server.Close()

	cache, _ := NewTokenCache(t.TempDir())
	sessionID := uuid.NewString()
	stale := &oauth2.Token{AccessToken: "stale", RefreshToken: "refresh", Expiry: time.Now().Add(-time.Hour)}
	cache.Save(sessionID, stale)

	saves := 0
	save := cache.Saver(sessionID)
	onRefresh := func(token *oauth2.Token) {
		saves++
		save(token)
	}

	source := &staticSource{token: &oauth2.Token{AccessToken: "fresh", RefreshToken: "refresh", Expiry: time.Now().Add(time.Hour)}}
	client := oauth2.NewClient(context.Background(), source)
	notifyRefresh(client, stale, onRefresh, log.WithField("module", "spotify"))

	for i := 0; i < 3; i++ {
		resp, err := client.Get(server.URL)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		resp.Body.Close()
	}

	if saves != 1 {
		t.Errorf("refresh callbacks = %d, want 1", saves)
	}
	mutex.Lock()
	defer mutex.Unlock()
	if len(authHeaders) != 3 {
		t.Errorf("requests = %d, want 3", len(authHeaders))
	}
	for _, h := range authHeaders {
		if h != "Bearer fresh" {
			t.Errorf("Authorization = %q, want the refreshed token", h)
		}
	}
	got, err := cache.Load(sessionID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.AccessToken != "fresh" {
		t.Errorf("cached AccessToken = %q, want fresh", got.AccessToken)
	}
}

func TestUnchangedTokenIsNotCached(t *testing.T) {
	token := &oauth2.Token{AccessToken: "same", Expiry: time.Now().Add(time.Hour)}
	notifier := &refreshNotifier{
		base:      &staticSource{token: token},
		onRefresh: func(*oauth2.Token) { t.Error("unchanged token reported as refreshed") },
		access:    "same",
	}
	if _, err := notifier.Token(); err != nil {
		t.Fatalf("Token: %v", err)
	}
}

func TestAuthURL(t *testing.T) {
	auth := NewAuthenticator(config.SpotifyConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://127.0.0.1:8080/",
	})
	u := AuthURL(auth, "state-123")

	for _, want := range []string{"client_id=client", "state=state-123", "show_dialog=true", "user-modify-playback-state"} {
		if !contains(u, want) {
			t.Errorf("AuthURL() = %s, missing %s", u, want)
		}
	}
}

func contains(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
