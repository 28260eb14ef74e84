package handlers

// handlers are the gin routes in front of the follower controller and the
// song store. They keep per-visitor state in a server-side session row keyed
// by a random cookie, and the visitor's Spotify token in the token cache.

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"linkedsongs/applemusic"
	"linkedsongs/controller"
	"linkedsongs/database"
	"linkedsongs/models"
	"linkedsongs/pages"
	"linkedsongs/spotify"
)

const (
	sessionCookie = "linkedsongs_session"
	sessionMaxAge = 30 * 24 * 60 * 60

	sessionKey = "session"
	spotifyKey = "spotify"
)

// SpotifyAPI is everything the routes call on a signed-in account.
type SpotifyAPI interface {
	controller.Provider
	CurrentUser(ctx context.Context) (*spotify.User, error)
	Playlists(ctx context.Context) ([]spotify.Playlist, error)
	Devices(ctx context.Context) ([]spotify.Device, error)
	Search(ctx context.Context, query string) ([]spotify.TrackInfo, error)
	GetTrack(ctx context.Context, uri string) (*spotify.TrackInfo, error)
	MoveToEnd(ctx context.Context, playlistID string, uri string) error
	RemoveFromPlaylist(ctx context.Context, playlistID string, uri string) error
	Pause(ctx context.Context, deviceID string) error
}

type Manager struct {
	DB            *database.Database
	Controller    *controller.Controller
	Auth          *spotifyauth.Authenticator
	Tokens        *spotify.TokenCache
	SecureCookies bool
	// NewClient builds the API client for a session's token. The client
	// outlives the request when a follower is started with it.
	NewClient func(sessionID string, token *oauth2.Token) SpotifyAPI
	// AppleMusic resolves pasted Apple Music song links.
	AppleMusic TrackScraper
	logger     *log.Entry
}

type TrackScraper interface {
	Lookup(ctx context.Context, link applemusic.TrackLink) (*applemusic.Track, error)
}

func NewManager(db *database.Database, ctrl *controller.Controller, auth *spotifyauth.Authenticator, tokens *spotify.TokenCache, secureCookies bool) *Manager {
	return &Manager{
		DB:            db,
		Controller:    ctrl,
		Auth:          auth,
		Tokens:        tokens,
		SecureCookies: secureCookies,
		AppleMusic:    applemusic.NewScraper(),
		NewClient: func(sessionID string, token *oauth2.Token) SpotifyAPI {
			return spotify.NewClient(context.Background(), auth, token, tokens.Saver(sessionID))
		},
		logger: log.WithFields(log.Fields{
			"module": "handlers",
		}),
	}
}

// Routes registers every route on router.
func (manager *Manager) Routes(router gin.IRouter) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "following": manager.Controller.Running()})
	})

	web := router.Group("/", manager.SessionMiddleware())
	web.GET("/", manager.Index)
	web.GET("/sign_out", manager.SignOut)

	authed := web.Group("/", manager.RequireSpotify())
	authed.GET("/playlists", manager.ListPlaylists)
	authed.POST("/playlists/select", manager.SelectPlaylist)
	authed.POST("/search", manager.Search)
	authed.POST("/heads", manager.AddHead)
	authed.DELETE("/heads/:number", manager.DeleteHead)
	authed.POST("/heads/:number/links", manager.AddLink)
	authed.DELETE("/links/:number", manager.DeleteLink)
	authed.GET("/devices", manager.ListDevices)
	authed.POST("/devices/select", manager.SelectDevice)
	authed.GET("/play", manager.PlayStatus)
	authed.POST("/play", manager.Play)
	authed.POST("/stop", manager.Stop)
}

// SessionMiddleware makes sure the visitor carries a session cookie and
// loads the session row behind it.
func (manager *Manager) SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(sessionCookie)
		if err != nil {
			id = ""
		}
		if _, perr := uuid.Parse(id); perr != nil {
			// Step 1. Visitor is unknown, give random ID
			id = uuid.NewString()
			manager.setSessionCookie(c, id, sessionMaxAge)
		}

		sess, err := manager.DB.GetSession(id)
		if errors.Is(err, database.ErrNotFound) {
			sess = &models.WebSession{ID: id}
		} else if err != nil {
			manager.internalError(c, err)
			c.Abort()
			return
		}

		c.Set(sessionKey, sess)
		c.Next()
	}
}

func (manager *Manager) setSessionCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, value, maxAge, "/", "", manager.SecureCookies, true)
}

// RequireSpotify rejects visitors without a cached token and attaches the
// Spotify client for everyone else. The session is bound to the Spotify user
// on first use.
func (manager *Manager) RequireSpotify() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessionFrom(c)

		token, err := manager.Tokens.Load(sess.ID)
		if err != nil {
			if !errors.Is(err, spotify.ErrNoToken) {
				manager.logger.Warnf("Failed to load token for session %s: %v", sess.ID, err)
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "sign in with Spotify first", "sign_in": "/"})
			return
		}

		api := manager.NewClient(sess.ID, token)
		if sess.UserID == "" {
			if err := manager.bindUser(c.Request.Context(), sess, api); err != nil {
				manager.providerError(c, err)
				c.Abort()
				return
			}
		}

		c.Set(spotifyKey, api)
		c.Next()
	}
}

func (manager *Manager) bindUser(ctx context.Context, sess *models.WebSession, api SpotifyAPI) error {
	user, err := api.CurrentUser(ctx)
	if err != nil {
		return err
	}
	if err := manager.DB.EnsureUser(user.ID); err != nil {
		return err
	}
	sess.UserID = user.ID
	return manager.DB.SaveSession(sess)
}

// Index walks a visitor through sign in and, once signed in, returns the
// head and link songs of the current playlist.
func (manager *Manager) Index(c *gin.Context) {
	sess := sessionFrom(c)
	ctx := c.Request.Context()

	if code := c.Query("code"); code != "" {
		// Step 3. Being redirected from Spotify auth page
		if sess.OAuthState == "" || c.Query("state") != sess.OAuthState {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid state parameter"})
			return
		}
		sess.OAuthState = ""
		if err := manager.DB.SaveSession(sess); err != nil {
			manager.internalError(c, err)
			return
		}
		token, err := manager.Auth.Exchange(ctx, code)
		if err != nil {
			manager.logger.Warnf("Token exchange failed: %v", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "token exchange failed"})
			return
		}
		if err := manager.Tokens.Save(sess.ID, token); err != nil {
			manager.internalError(c, err)
			return
		}
		c.Redirect(http.StatusFound, "/")
		return
	}

	token, err := manager.Tokens.Load(sess.ID)
	if err != nil {
		// Step 2. Display sign in link when no token
		if sess.OAuthState == "" {
			sess.OAuthState = uuid.NewString()
			if err := manager.DB.SaveSession(sess); err != nil {
				manager.internalError(c, err)
				return
			}
		}
		authURL := spotify.AuthURL(manager.Auth, sess.OAuthState)
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(fmt.Sprintf(pages.SignIn, html.EscapeString(authURL))))
		return
	}

	// Step 4. Signed in, display data
	api := manager.NewClient(sess.ID, token)
	user, err := api.CurrentUser(ctx)
	if err != nil {
		manager.providerError(c, err)
		return
	}
	if sess.UserID != user.ID {
		if err := manager.DB.EnsureUser(user.ID); err != nil {
			manager.internalError(c, err)
			return
		}
		sess.UserID = user.ID
		if err := manager.DB.SaveSession(sess); err != nil {
			manager.internalError(c, err)
			return
		}
	}

	if !manager.ensurePlaylist(c, sess, api) {
		return
	}

	heads, links, err := manager.songs(sess)
	if err != nil {
		manager.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"name":       user.DisplayName,
		"playlist":   sess.PlaylistName,
		"head_songs": heads,
		"link_songs": links,
		"following":  manager.Controller.IsRunning(sess.UserID),
	})
}

// SignOut forgets the visitor's token and session. A follower this session
// started is stopped; one started from another browser keeps running.
func (manager *Manager) SignOut(c *gin.Context) {
	sess := sessionFrom(c)

	if handle := manager.Controller.Handle(sess.UserID); handle != nil && handle.SessionID == sess.ID {
		manager.Controller.Stop(sess.UserID)
	}
	if err := manager.Tokens.Remove(sess.ID); err != nil {
		manager.logger.Warnf("Failed to remove token for session %s: %v", sess.ID, err)
	}
	if err := manager.DB.DeleteSession(sess.ID); err != nil {
		manager.logger.Warnf("Failed to delete session %s: %v", sess.ID, err)
	}

	manager.setSessionCookie(c, "", -1)
	c.Redirect(http.StatusFound, "/")
}

// ensurePlaylist defaults the session to the user's first playlist. It
// writes the error response itself and returns false on failure.
func (manager *Manager) ensurePlaylist(c *gin.Context, sess *models.WebSession, api SpotifyAPI) bool {
	if sess.HasPlaylist() {
		return true
	}

	playlists, err := api.Playlists(c.Request.Context())
	if err != nil {
		manager.providerError(c, err)
		return false
	}
	if len(playlists) == 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "create a Spotify playlist first"})
		return false
	}

	sess.PlaylistName = playlists[0].Name
	sess.PlaylistID = playlists[0].ID
	sess.PlaylistURI = playlists[0].URI
	if err := manager.DB.SaveSession(sess); err != nil {
		manager.internalError(c, err)
		return false
	}
	return true
}

func (manager *Manager) songs(sess *models.WebSession) ([]models.HeadSong, []models.LinkSong, error) {
	heads, err := manager.DB.HeadSongs(sess.UserID, sess.PlaylistName)
	if err != nil {
		return nil, nil, err
	}
	links, err := manager.DB.LinkSongs(sess.UserID, sess.PlaylistName)
	if err != nil {
		return nil, nil, err
	}
	return heads, links, nil
}

func sessionFrom(c *gin.Context) *models.WebSession {
	return c.MustGet(sessionKey).(*models.WebSession)
}

func spotifyFrom(c *gin.Context) SpotifyAPI {
	return c.MustGet(spotifyKey).(SpotifyAPI)
}

func (manager *Manager) internalError(c *gin.Context, err error) {
	manager.logger.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	captureException(c, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

// providerError answers for a failed Spotify call. The Spotify client has
// already logged and reported it.
func (manager *Manager) providerError(c *gin.Context, err error) {
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}

func captureException(c *gin.Context, err error) {
	if hub := sentrygin.GetHubFromContext(c); hub != nil {
		hub.CaptureException(err)
		return
	}
	sentry.CaptureException(err)
}
